package game

import (
	"time"

	"github.com/wfunc/hunt-game/internal/models"
	"github.com/wfunc/hunt-game/internal/zone"
)

// EventType 会话事件类型（封闭集合，传输层穷举处理）
type EventType string

const (
	EventSnapshot          EventType = "snapshot"            // 全量状态（连接/重连时）
	EventPhaseChange       EventType = "phase_change"        // 阶段转换
	EventPlayerRegistered  EventType = "player_registered"   // 新玩家报名
	EventPlayerCheckedIn   EventType = "player_checked_in"   // 玩家签到
	EventKill              EventType = "kill"                // 猎杀成功
	EventElimination       EventType = "elimination"         // 淘汰（含原因）
	EventZoneShrinkWarning EventType = "zone_shrink_warning" // 缩圈预警
	EventZoneShrink        EventType = "zone_shrink"         // 缩圈生效
	EventNewTarget         EventType = "new_target_assigned" // 新目标（仅发给该猎人）
	EventGameEnded         EventType = "game_ended"          // 比赛结束（含胜者）
	EventGameCancelled     EventType = "game_cancelled"      // 比赛取消
)

// Event 会话事件
// Seq 为比赛内严格递增序号，与权威状态的变更顺序一致，传输层不得重排。
type Event struct {
	Seq       uint64      `json:"seq"`
	Type      EventType   `json:"type"`
	GameID    uint64      `json:"game_id"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// PhaseChangePayload 阶段转换负载
type PhaseChangePayload struct {
	From models.GamePhase `json:"from"`
	To   models.GamePhase `json:"to"`
}

// RegisteredPayload 报名负载
type RegisteredPayload struct {
	Address      string `json:"address"`
	PlayerNumber int    `json:"player_number"`
	PlayerCount  int    `json:"player_count"`
}

// CheckedInPayload 签到负载
type CheckedInPayload struct {
	Address      string `json:"address"`
	PlayerNumber int    `json:"player_number"`
	CheckedIn    int    `json:"checked_in_count"`
	Total        int    `json:"total"`
}

// KillPayload 猎杀负载
type KillPayload struct {
	Hunter       string  `json:"hunter"`
	HunterNumber int     `json:"hunter_number"`
	Target       string  `json:"target"`
	TargetNumber int     `json:"target_number"`
	Distance     float64 `json:"distance_meters"`
}

// EliminationPayload 淘汰负载
type EliminationPayload struct {
	Address      string                  `json:"address"`
	PlayerNumber int                     `json:"player_number"`
	Cause        models.EliminationCause `json:"cause"`
	EliminatedBy string                  `json:"eliminated_by,omitempty"`
	AliveCount   int                     `json:"alive_count"`
}

// ZoneShrinkPayload 缩圈负载（预警与生效共用）
type ZoneShrinkPayload struct {
	CurrentRadius float64    `json:"current_radius"`
	NextRadius    *float64   `json:"next_radius,omitempty"`
	NextShrinkAt  *time.Time `json:"next_shrink_at,omitempty"`
}

// NewTargetPayload 新目标负载（仅发给受影响的猎人）
type NewTargetPayload struct {
	Target       string `json:"target"`
	TargetNumber int    `json:"target_number"`
}

// GameEndedPayload 终局负载
type GameEndedPayload struct {
	Results  *GameResults `json:"results"`
	Duration int64        `json:"duration_sec"`
}

// SnapshotPlayer 快照中的玩家视图
// 观众视图下坐标经过脱敏，且不包含目标分配。
type SnapshotPlayer struct {
	Address      string                  `json:"address"`
	PlayerNumber int                     `json:"player_number"`
	IsAlive      bool                    `json:"is_alive"`
	Kills        int                     `json:"kills"`
	CheckedIn    bool                    `json:"checked_in"`
	Lat          *float64                `json:"lat,omitempty"`
	Lng          *float64                `json:"lng,omitempty"`
	Cause        models.EliminationCause `json:"cause,omitempty"`
}

// SnapshotPayload 全量状态负载
type SnapshotPayload struct {
	GameID     uint64           `json:"game_id"`
	Phase      models.GamePhase `json:"phase"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	Zone       *zone.State      `json:"zone,omitempty"`
	Players    []SnapshotPlayer `json:"players"`
	AliveCount int              `json:"alive_count"`

	// 仅玩家视角：自己的当前目标
	YourTarget       string `json:"your_target,omitempty"`
	YourTargetNumber int    `json:"your_target_number,omitempty"`
}
