package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/hunt-game/internal/game"
	"github.com/wfunc/hunt-game/internal/logger"
)

// 错误定义
var (
	ErrClientNotFound = errors.New("客户端未找到")
	ErrSendBufferFull = errors.New("发送缓冲区已满")
)

// Hub WebSocket连接管理中心。
// 每场比赛一个房间；玩家与观众都在房间内，目标分配等私密消息
// 只通过玩家索引单发。实现 game.Broadcaster。
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[string]*Client

	roomsMu sync.RWMutex
	rooms   map[uint64]map[string]*Client // gameID -> clientID -> client
	players map[uint64]map[string]*Client // gameID -> 玩家地址 -> client

	register   chan *Client
	unregister chan *Client
	quit       chan struct{}

	handler *GameHandler
	log     *zap.Logger
}

// NewHub 创建Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[uint64]map[string]*Client),
		players:    make(map[uint64]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		log:        logger.WithModule("websocket"),
	}
}

// SetHandler 注入消息处理器
func (h *Hub) SetHandler(handler *GameHandler) {
	h.handler = handler
}

// Run 运行Hub
func (h *Hub) Run() {
	go h.runHeartbeat()

	for {
		select {
		case <-h.quit:
			return
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

// Stop 停止Hub
func (h *Hub) Stop() {
	close(h.quit)
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.log.Info("WebSocket客户端连接", zap.String("client_id", client.ID))

	msg := &Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().Unix(),
	}
	h.sendToClient(client, msg)
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.leaveRoom(client)

	h.log.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("address", client.Address))
}

// JoinRoom 把客户端加入比赛房间。已认证玩家同时登记到玩家索引，
// 同一玩家重连时顶掉旧索引。
func (h *Hub) JoinRoom(client *Client, gameID uint64) {
	h.leaveRoom(client)

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if h.rooms[gameID] == nil {
		h.rooms[gameID] = make(map[string]*Client)
	}
	h.rooms[gameID][client.ID] = client
	client.GameID = gameID

	if client.Address != "" {
		if h.players[gameID] == nil {
			h.players[gameID] = make(map[string]*Client)
		}
		h.players[gameID][client.Address] = client
	}
}

func (h *Hub) leaveRoom(client *Client) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()

	if client.GameID == 0 {
		return
	}
	if room, ok := h.rooms[client.GameID]; ok {
		delete(room, client.ID)
		if len(room) == 0 {
			delete(h.rooms, client.GameID)
		}
	}
	// 按连接扫描，身份可能已被切换（玩家转观众）
	if players, ok := h.players[client.GameID]; ok {
		for addr, cl := range players {
			if cl == client {
				delete(players, addr)
			}
		}
		if len(players) == 0 {
			delete(h.players, client.GameID)
		}
	}
}

// BroadcastEvent 把会话事件广播给比赛房间的所有连接。
// 调用方（会话）持锁顺序调用，入队顺序即seq顺序；
// 写队列满的慢客户端丢消息，靠重连拉快照补齐。
func (h *Hub) BroadcastEvent(gameID uint64, ev *game.Event) {
	msg := h.eventMessage(ev)
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("事件序列化失败", zap.Error(err))
		return
	}

	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()

	for _, client := range h.rooms[gameID] {
		select {
		case client.Send <- data:
		default:
			h.log.Warn("客户端发送缓冲区满，事件丢弃",
				zap.String("client_id", client.ID),
				zap.Uint64("seq", ev.Seq))
		}
	}
}

// SendToPlayer 私密事件只发给指定玩家
func (h *Hub) SendToPlayer(gameID uint64, address string, ev *game.Event) {
	msg := h.eventMessage(ev)
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("事件序列化失败", zap.Error(err))
		return
	}

	h.roomsMu.RLock()
	client, ok := h.players[gameID][address]
	h.roomsMu.RUnlock()
	if !ok {
		// 玩家离线，重连时从快照补齐
		return
	}

	select {
	case client.Send <- data:
	default:
		h.log.Warn("玩家发送缓冲区满",
			zap.String("address", address),
			zap.Uint64("seq", ev.Seq))
	}
}

func (h *Hub) eventMessage(ev *game.Event) *Message {
	data, _ := json.Marshal(ev)
	return &Message{
		Type:      MessageTypeEvent,
		GameID:    ev.GameID,
		Data:      data,
		Timestamp: ev.Timestamp,
	}
}

// sendToClient 序列化并投递单条消息
func (h *Hub) sendToClient(client *Client, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// OnlineCount 在线连接数
func (h *Hub) OnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// RoomCount 房间内连接数
func (h *Hub) RoomCount(gameID uint64) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[gameID])
}

// runHeartbeat 周期性下发应用层ping
func (h *Hub) runHeartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.quit:
			return
		case <-ticker.C:
			ping := &Message{Type: MessageTypePing, Timestamp: time.Now().Unix()}
			data, _ := json.Marshal(ping)

			h.clientsMu.RLock()
			for _, client := range h.clients {
				select {
				case client.Send <- data:
				default:
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

var _ game.Broadcaster = (*Hub)(nil)
