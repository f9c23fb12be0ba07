package websocket

import (
	"encoding/json"
)

// Message WebSocket消息信封
type Message struct {
	Type      string          `json:"type"`                 // 消息类型
	RequestID string          `json:"request_id,omitempty"` // 客户端请求ID，应答原样带回
	GameID    uint64          `json:"game_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// 客户端上行消息类型
const (
	MessageTypeAuth      = "auth"       // 签名认证
	MessageTypeSpectate  = "spectate"   // 观战某场比赛
	MessageTypeRegister  = "register"   // 报名
	MessageTypeCheckIn   = "check_in"   // 集合签到
	MessageTypeKillClaim = "kill_claim" // 猎杀扫码
	MessageTypeHeartbeat = "heartbeat"  // 心跳扫码
	MessageTypeLocation  = "location"   // 位置上报
	MessageTypeState     = "state"      // 请求全量状态
	MessageTypePong      = "pong"
)

// 服务端下行消息类型
const (
	MessageTypeConnected = "connected"
	MessageTypeAuthOK    = "auth_ok"
	MessageTypeAck       = "ack"   // 声明受理成功
	MessageTypeError     = "error" // 声明被拒绝
	MessageTypeEvent     = "event" // 会话事件（按seq有序）
	MessageTypePing      = "ping"
)

// AuthPayload 签名认证负载。
// 客户端对 "{prefix}:{gameID}:{timestamp}" 签名证明地址所有权。
type AuthPayload struct {
	Address   string `json:"address"`
	GameID    uint64 `json:"game_id"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// SpectatePayload 观战负载
type SpectatePayload struct {
	GameID uint64 `json:"game_id"`
}

// CheckInPayload 签到负载
type CheckInPayload struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	QRPayload string  `json:"qr_payload,omitempty"`
}

// KillClaimPayload 猎杀负载
type KillClaimPayload struct {
	QRPayload string   `json:"qr_payload"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	BLENearby []string `json:"ble_nearby,omitempty"`
}

// HeartbeatPayload 心跳负载
type HeartbeatPayload struct {
	QRPayload string  `json:"qr_payload"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// LocationPayload 位置上报负载
type LocationPayload struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

// ErrorPayload 错误负载
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// AckPayload 受理成功负载
type AckPayload struct {
	Action string      `json:"action"`
	Result interface{} `json:"result,omitempty"`
}
