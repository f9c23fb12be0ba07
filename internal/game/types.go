package game

import (
	"context"
	"time"

	"github.com/wfunc/hunt-game/internal/geo"
	"github.com/wfunc/hunt-game/internal/models"
	"github.com/wfunc/hunt-game/internal/zone"
)

// PingState 玩家最近一次定位状态
type PingState struct {
	Point  geo.Point `json:"point"`
	InZone bool      `json:"in_zone"`
	At     time.Time `json:"at"`

	// 出圈追踪：首次出圈时间与是否已警告
	ExitedZoneAt *time.Time `json:"exited_zone_at,omitempty"`
	Warned       bool       `json:"warned"`
}

// PlayerState 玩家在会话内的完整状态
type PlayerState struct {
	Address      string `json:"address"`
	PlayerNumber int    `json:"player_number"`
	IsAlive      bool   `json:"is_alive"`
	Kills        int    `json:"kills"`
	CheckedIn    bool   `json:"checked_in"`

	LastHeartbeatAt time.Time  `json:"last_heartbeat_at"`
	LastPing        *PingState `json:"last_ping,omitempty"`

	EliminatedAt *time.Time              `json:"eliminated_at,omitempty"`
	EliminatedBy string                  `json:"eliminated_by,omitempty"`
	Cause        models.EliminationCause `json:"cause,omitempty"`
}

// clone 深拷贝（快照用）
func (p *PlayerState) clone() *PlayerState {
	cp := *p
	if p.LastPing != nil {
		ping := *p.LastPing
		cp.LastPing = &ping
	}
	return &cp
}

// Snapshot 会话状态的不可变快照，声明校验在快照上进行，不触碰共享状态
type Snapshot struct {
	GameID  uint64                  `json:"game_id"`
	Phase   models.GamePhase        `json:"phase"`
	Players map[string]*PlayerState `json:"players"` // 地址 -> 状态
	Numbers map[int]string          `json:"numbers"` // 编号 -> 地址
	Targets map[string]string       `json:"targets"` // 猎人 -> 目标

	// 校验所需的比赛参数
	MeetingPoint     geo.Point `json:"meeting_point"`
	CheckInRadius    float64   `json:"check_in_radius"`
	KillProximity    float64   `json:"kill_proximity"`
	RequireProximity bool      `json:"require_proximity"`
}

// KillClaim 猎杀扫码声明（不可信输入）
type KillClaim struct {
	Hunter    string   `json:"hunter"`              // 经连接认证的地址
	QRPayload string   `json:"qr_payload"`          // 被扫玩家的二维码内容
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	BLENearby []string `json:"ble_nearby,omitempty"` // 蓝牙侦测到的邻近地址
}

// HeartbeatClaim 心跳扫码声明
type HeartbeatClaim struct {
	Address   string   `json:"address"`
	QRPayload string   `json:"qr_payload"`
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	BLENearby []string `json:"ble_nearby,omitempty"`
}

// CheckInClaim 集合签到声明
type CheckInClaim struct {
	Address     string  `json:"address"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	QRPayload   string  `json:"qr_payload,omitempty"`
	BluetoothID string  `json:"bluetooth_id,omitempty"`
}

// LocationClaim 位置上报声明
type LocationClaim struct {
	Address   string  `json:"address"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp int64   `json:"timestamp"`
}

// KillValidated 校验通过的猎杀事件
type KillValidated struct {
	Hunter    string    `json:"hunter"`
	Target    string    `json:"target"`
	HunterPos geo.Point `json:"hunter_pos"`
	TargetPos geo.Point `json:"target_pos"`
	Distance  float64   `json:"distance"`
}

// HeartbeatValidated 校验通过的心跳事件
type HeartbeatValidated struct {
	Address string    `json:"address"`
	Pos     geo.Point `json:"pos"`
}

// CheckInValidated 校验通过的签到事件
type CheckInValidated struct {
	Address string    `json:"address"`
	Pos     geo.Point `json:"pos"`
}

// LocationValidated 校验通过的位置上报
type LocationValidated struct {
	Address string    `json:"address"`
	Pos     geo.Point `json:"pos"`
	At      time.Time `json:"at"`
}

// GameResults 终局结果
type GameResults struct {
	Winner1   string `json:"winner1"`
	Winner2   string `json:"winner2,omitempty"`
	Winner3   string `json:"winner3,omitempty"`
	TopKiller string `json:"top_killer,omitempty"`
}

// Broadcaster 事件广播接口，由传输层实现
type Broadcaster interface {
	// BroadcastEvent 按应用顺序广播给比赛的所有连接
	BroadcastEvent(gameID uint64, ev *Event)
	// SendToPlayer 只发给指定玩家（如新目标分配）
	SendToPlayer(gameID uint64, address string, ev *Event)
}

// Settler 链上结算接口，由chain.Dispatcher实现。
// 全部为异步入队，绝不阻塞主循环。
type Settler interface {
	SubmitStartGame(gameID uint64)
	SubmitRecordKill(gameID uint64, hunter, target string)
	SubmitEliminatePlayer(gameID uint64, target string)
	SubmitEndGame(gameID uint64, results *GameResults)
	SubmitTriggerCancellation(gameID uint64)
	SubmitTriggerExpiry(gameID uint64)
}

// Store 会话持久化接口，由repository实现
type Store interface {
	CreateGame(ctx context.Context, game *models.Game, schedule zone.Schedule) error
	LoadActiveGames(ctx context.Context) ([]*models.Game, error)
	LoadSchedule(ctx context.Context, gameID uint64) (zone.Schedule, error)
	LoadPlayers(ctx context.Context, gameID uint64) ([]*models.Player, error)
	LoadSession(ctx context.Context, gameID uint64) (*models.SessionSnapshot, error)

	SaveSession(ctx context.Context, snap *models.SessionSnapshot) error
	SavePlayer(ctx context.Context, player *models.Player) error
	AppendKill(ctx context.Context, rec *models.KillRecord) error
	AppendPing(ctx context.Context, ping *models.LocationPing) error
}
