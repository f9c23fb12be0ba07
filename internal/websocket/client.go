package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 读取pong超时
	pongWait = 60 * time.Second

	// ping发送周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小。声明消息都很小，64KB足够
	maxMessageSize = 64 * 1024
)

// Client WebSocket客户端连接
type Client struct {
	ID      string          // 客户端ID
	Address string          // 认证后的玩家地址，空表示观众
	GameID  uint64          // 所在比赛房间
	Hub     *Hub            // Hub引用
	Conn    *websocket.Conn // WebSocket连接
	Send    chan []byte     // 发送通道
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		Hub:  hub,
		Conn: conn,
		Send: make(chan []byte, 256),
	}
}

// ReadPump 读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Error("WebSocket读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			break
		}

		c.handleMessage(message)
	}
}

// WritePump 写入消息
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// 事件必须逐帧发送，保持seq顺序对客户端可见
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Hub.log.Warn("解析WebSocket消息失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
		c.SendError("", 5002, "消息格式错误", "")
		return
	}
	if msg.Type == "" {
		c.SendError(msg.RequestID, 5002, "消息类型不能为空", "")
		return
	}

	if c.Hub.handler != nil {
		c.Hub.handler.HandleClientMessage(c, &msg)
	}
}

// SendMessage 发送消息给客户端
func (c *Client) SendMessage(msgType, requestID string, data interface{}) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			c.Hub.log.Error("消息序列化失败", zap.Error(err))
			return
		}
		raw = encoded
	}

	msg := &Message{
		Type:      msgType,
		RequestID: requestID,
		GameID:    c.GameID,
		Data:      raw,
		Timestamp: time.Now().Unix(),
	}
	if err := c.Hub.sendToClient(c, msg); err != nil {
		c.Hub.log.Warn("消息投递失败",
			zap.String("client_id", c.ID),
			zap.Error(err))
	}
}

// SendError 发送错误应答
func (c *Client) SendError(requestID string, code int, message, details string) {
	c.SendMessage(MessageTypeError, requestID, &ErrorPayload{
		Code:    code,
		Message: message,
		Details: details,
	})
}
