package websocket

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/hunt-game/internal/auth"
	"github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/game"
	"github.com/wfunc/hunt-game/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// 移动端App直连，无浏览器同源约束
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GameHandler 比赛消息处理器：认证、声明路由、观战
type GameHandler struct {
	hub      *Hub
	manager  *game.Manager
	verifier *auth.Verifier
	log      *zap.Logger
}

// NewGameHandler 创建消息处理器
func NewGameHandler(hub *Hub, manager *game.Manager, verifier *auth.Verifier) *GameHandler {
	handler := &GameHandler{
		hub:      hub,
		manager:  manager,
		verifier: verifier,
		log:      logger.WithModule("ws_handler"),
	}
	hub.SetHandler(handler)
	return handler
}

// ServeWS 升级HTTP连接为WebSocket
func (g *GameHandler) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Error("WebSocket升级失败", zap.Error(err))
		return
	}

	client := NewClient(g.hub, conn)
	g.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

// HandleClientMessage 按消息类型分发
func (g *GameHandler) HandleClientMessage(c *Client, msg *Message) {
	logger.LogWebSocketMessage("recv", msg.Type, nil)

	switch msg.Type {
	case MessageTypePong:
		return
	case MessageTypeAuth:
		g.handleAuth(c, msg)
	case MessageTypeSpectate:
		g.handleSpectate(c, msg)
	case MessageTypeState:
		g.handleState(c, msg)
	case MessageTypeRegister:
		g.handleRegister(c, msg)
	case MessageTypeCheckIn:
		g.handleCheckIn(c, msg)
	case MessageTypeKillClaim:
		g.handleKillClaim(c, msg)
	case MessageTypeHeartbeat:
		g.handleHeartbeat(c, msg)
	case MessageTypeLocation:
		g.handleLocation(c, msg)
	default:
		c.SendError(msg.RequestID, int(errors.ErrMessageFormat), "不支持的消息类型: "+msg.Type, "")
	}
}

// handleAuth 签名认证：验证地址对消息的签名并绑定连接身份
func (g *GameHandler) handleAuth(c *Client, msg *Message) {
	var payload AuthPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.SendError(msg.RequestID, int(errors.ErrMessageFormat), "认证负载格式错误", "")
		return
	}

	if err := g.verifier.Verify(payload.Address, payload.GameID, payload.Timestamp, payload.Signature); err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}

	session, err := g.manager.GetSession(payload.GameID)
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}

	c.Address = payload.Address
	g.hub.JoinRoom(c, session.GameID())

	c.SendMessage(MessageTypeAuthOK, msg.RequestID, map[string]interface{}{
		"address": payload.Address,
		"game_id": payload.GameID,
	})

	// 认证即下发全量快照，重连补齐就靠它
	g.sendSnapshot(c, session)

	g.log.Info("玩家认证成功",
		zap.String("address", payload.Address),
		zap.Uint64("game_id", payload.GameID))
}

// handleSpectate 观众进入房间，无需签名
func (g *GameHandler) handleSpectate(c *Client, msg *Message) {
	var payload SpectatePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.SendError(msg.RequestID, int(errors.ErrMessageFormat), "观战负载格式错误", "")
		return
	}

	session, err := g.manager.GetSession(payload.GameID)
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}

	c.Address = ""
	g.hub.JoinRoom(c, session.GameID())
	g.sendSnapshot(c, session)
}

// handleState 主动拉取全量状态
func (g *GameHandler) handleState(c *Client, msg *Message) {
	session, err := g.sessionOf(c)
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}
	g.sendSnapshot(c, session)
}

// handleRegister 报名
func (g *GameHandler) handleRegister(c *Client, msg *Message) {
	session, err := g.authedSession(c)
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}

	number, err := session.Register(c.Address)
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}
	c.SendMessage(MessageTypeAck, msg.RequestID, &AckPayload{
		Action: MessageTypeRegister,
		Result: map[string]int{"player_number": number},
	})
}

// handleCheckIn 集合签到
func (g *GameHandler) handleCheckIn(c *Client, msg *Message) {
	session, err := g.authedSession(c)
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}

	var payload CheckInPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.SendError(msg.RequestID, int(errors.ErrMessageFormat), "签到负载格式错误", "")
		return
	}

	err = session.SubmitCheckIn(&game.CheckInClaim{
		Address:   c.Address,
		Lat:       payload.Lat,
		Lng:       payload.Lng,
		QRPayload: payload.QRPayload,
	})
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}
	c.SendMessage(MessageTypeAck, msg.RequestID, &AckPayload{Action: MessageTypeCheckIn})
}

// handleKillClaim 猎杀扫码
func (g *GameHandler) handleKillClaim(c *Client, msg *Message) {
	session, err := g.authedSession(c)
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}

	var payload KillClaimPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.SendError(msg.RequestID, int(errors.ErrMessageFormat), "猎杀负载格式错误", "")
		return
	}

	validated, err := session.SubmitKillClaim(&game.KillClaim{
		Hunter:    c.Address,
		QRPayload: payload.QRPayload,
		Lat:       payload.Lat,
		Lng:       payload.Lng,
		BLENearby: payload.BLENearby,
	})
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}
	c.SendMessage(MessageTypeAck, msg.RequestID, &AckPayload{
		Action: MessageTypeKillClaim,
		Result: map[string]interface{}{
			"target":   validated.Target,
			"distance": validated.Distance,
		},
	})
}

// handleHeartbeat 心跳扫码
func (g *GameHandler) handleHeartbeat(c *Client, msg *Message) {
	session, err := g.authedSession(c)
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}

	var payload HeartbeatPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.SendError(msg.RequestID, int(errors.ErrMessageFormat), "心跳负载格式错误", "")
		return
	}

	err = session.SubmitHeartbeat(&game.HeartbeatClaim{
		Address:   c.Address,
		QRPayload: payload.QRPayload,
		Lat:       payload.Lat,
		Lng:       payload.Lng,
	})
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}
	c.SendMessage(MessageTypeAck, msg.RequestID, &AckPayload{Action: MessageTypeHeartbeat})
}

// handleLocation 位置上报。高频消息，成功不回Ack省流量。
func (g *GameHandler) handleLocation(c *Client, msg *Message) {
	session, err := g.authedSession(c)
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
		return
	}

	var payload LocationPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		c.SendError(msg.RequestID, int(errors.ErrMessageFormat), "位置负载格式错误", "")
		return
	}

	err = session.SubmitLocation(&game.LocationClaim{
		Address:   c.Address,
		Lat:       payload.Lat,
		Lng:       payload.Lng,
		Timestamp: payload.Timestamp,
	})
	if err != nil {
		g.sendAppError(c, msg.RequestID, err)
	}
}

// sessionOf 取连接当前所在比赛的会话
func (g *GameHandler) sessionOf(c *Client) (*game.Session, error) {
	if c.GameID == 0 {
		return nil, errors.New(errors.ErrNotAuthenticated, "尚未进入任何比赛")
	}
	return g.manager.GetSession(c.GameID)
}

// authedSession 声明入口要求已认证身份
func (g *GameHandler) authedSession(c *Client) (*game.Session, error) {
	if c.Address == "" {
		return nil, errors.New(errors.ErrNotAuthenticated, "请先认证")
	}
	return g.sessionOf(c)
}

// sendSnapshot 下发全量状态事件
func (g *GameHandler) sendSnapshot(c *Client, session *game.Session) {
	ev := session.SnapshotEvent(c.Address)
	data, err := json.Marshal(ev)
	if err != nil {
		g.log.Error("快照序列化失败", zap.Error(err))
		return
	}
	c.SendMessage(MessageTypeEvent, "", json.RawMessage(data))
}

// sendAppError 把应用错误转成错误应答
func (g *GameHandler) sendAppError(c *Client, requestID string, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		c.SendError(requestID, int(appErr.Code), appErr.Message, appErr.Details)
		return
	}
	c.SendError(requestID, int(errors.ErrUnknown), err.Error(), "")
}
