package models

import (
	"time"
)

// GamePhase 比赛阶段
// 链上只有 REGISTRATION/ACTIVE/ENDED/CANCELLED，服务端在 ACTIVE 内细分
// CHECK_IN 和 PREGAME 两个子阶段。
type GamePhase string

const (
	PhaseRegistration GamePhase = "registration" // 报名阶段
	PhaseCheckIn      GamePhase = "check_in"     // 集合签到阶段
	PhasePregame      GamePhase = "pregame"      // 开局前分散倒计时
	PhaseActive       GamePhase = "active"       // 比赛进行中
	PhaseEnded        GamePhase = "ended"        // 已结束
	PhaseCancelled    GamePhase = "cancelled"    // 已取消（退款路径）
)

// IsTerminal 判断是否为终态
func (p GamePhase) IsTerminal() bool {
	return p == PhaseEnded || p == PhaseCancelled
}

// Game 比赛配置表（创建后不可变的部分 + 服务端阶段快照）
type Game struct {
	BaseModel
	ChainGameID uint64 `gorm:"uniqueIndex;not null" json:"chain_game_id"` // 链上gameId
	Title       string `gorm:"size:200;not null" json:"title"`
	EntryFee    int64  `gorm:"not null" json:"entry_fee"` // 最小货币单位
	MinPlayers  int    `gorm:"not null" json:"min_players"`
	MaxPlayers  int    `gorm:"not null" json:"max_players"`

	RegistrationDeadline time.Time `json:"registration_deadline"`
	GameDate             time.Time `json:"game_date"`
	MaxDurationSec       int64     `gorm:"not null" json:"max_duration_sec"`

	// 虚拟边界圆心与集合点
	CenterLat  float64 `json:"center_lat"`
	CenterLng  float64 `json:"center_lng"`
	MeetingLat float64 `json:"meeting_lat"`
	MeetingLng float64 `json:"meeting_lng"`

	// 奖金分配（基点，合计必须为10000）
	Bps1st     int `json:"bps_1st"`
	Bps2nd     int `json:"bps_2nd"`
	Bps3rd     int `json:"bps_3rd"`
	BpsKills   int `json:"bps_kills"`
	BpsCreator int `json:"bps_creator"`

	BaseReward int64 `json:"base_reward"`

	// 服务端阶段快照（崩溃恢复用）
	Phase      GamePhase  `gorm:"size:20;default:'registration';index" json:"phase"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Halted     bool       `gorm:"default:false" json:"halted"`
	HaltReason string     `gorm:"size:500" json:"halt_reason,omitempty"`

	// 关联
	Shrinks []ZoneShrink `gorm:"foreignKey:ChainGameID;references:ChainGameID" json:"shrinks,omitempty"`
	Players []Player     `gorm:"foreignKey:ChainGameID;references:ChainGameID" json:"players,omitempty"`
}

// BpsTotal 奖金分配基点合计
func (g *Game) BpsTotal() int {
	return g.Bps1st + g.Bps2nd + g.Bps3rd + g.BpsKills + g.BpsCreator
}

// MaxDuration 最大时长
func (g *Game) MaxDuration() time.Duration {
	return time.Duration(g.MaxDurationSec) * time.Second
}

// ZoneShrink 缩圈计划条目表
type ZoneShrink struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	ChainGameID  uint64  `gorm:"index;not null" json:"chain_game_id"`
	AtSecond     int64   `gorm:"not null" json:"at_second"`
	RadiusMeters float64 `gorm:"not null" json:"radius_meters"`
}

// TableName 指定表名
func (ZoneShrink) TableName() string {
	return "zone_shrinks"
}

// SessionSnapshot 会话状态快照表（崩溃安全的阶段转换记录）
type SessionSnapshot struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ChainGameID     uint64     `gorm:"uniqueIndex;not null" json:"chain_game_id"`
	Phase           GamePhase  `gorm:"size:20;not null" json:"phase"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CheckInDeadline *time.Time `json:"check_in_deadline,omitempty"`
	PregameEndsAt   *time.Time `json:"pregame_ends_at,omitempty"`
	Halted          bool       `gorm:"default:false" json:"halted"`
	HaltReason      string     `gorm:"size:500" json:"halt_reason,omitempty"`
	EventSeq        uint64     `gorm:"default:0" json:"event_seq"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (SessionSnapshot) TableName() string {
	return "session_snapshots"
}
