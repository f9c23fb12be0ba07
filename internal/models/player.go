package models

import (
	"time"
)

// EliminationCause 淘汰原因
type EliminationCause string

const (
	CauseKill      EliminationCause = "kill"      // 被猎杀
	CauseZone      EliminationCause = "zone"      // 出圈超时
	CauseHeartbeat EliminationCause = "heartbeat" // 心跳超时
	CauseNoShow    EliminationCause = "no_show"   // 签到缺席
)

// Player 玩家表
// 比赛期间玩家记录永不删除，淘汰后保留用于排行榜和观战历史。
type Player struct {
	BaseModel
	ChainGameID  uint64 `gorm:"not null;uniqueIndex:idx_game_address;index" json:"chain_game_id"`
	Address      string `gorm:"size:66;not null;uniqueIndex:idx_game_address" json:"address"`
	PlayerNumber int    `gorm:"not null" json:"player_number"` // 1..N，比赛内稳定且不复用

	IsAlive   bool `gorm:"default:true" json:"is_alive"`
	Kills     int  `gorm:"default:0" json:"kills"`
	CheckedIn bool `gorm:"default:false" json:"checked_in"`

	// 当前目标地址，不对外暴露。随淘汰重连更新，崩溃恢复时重建目标链用。
	TargetAddress string `gorm:"size:66" json:"-"`

	LastHeartbeatAt *time.Time       `json:"last_heartbeat_at,omitempty"`
	EliminatedAt    *time.Time       `json:"eliminated_at,omitempty"`
	EliminatedBy    string           `gorm:"size:66" json:"eliminated_by,omitempty"` // 空表示非猎杀淘汰
	Cause           EliminationCause `gorm:"size:20" json:"cause,omitempty"`
	HasClaimed      bool             `gorm:"default:false" json:"has_claimed"`
}

// TableName 指定表名
func (Player) TableName() string {
	return "players"
}
