package models

import (
	"time"
)

// KillRecord 猎杀审计记录表（只追加）
type KillRecord struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ChainGameID uint64 `gorm:"index;not null" json:"chain_game_id"`
	Hunter      string `gorm:"size:66;not null" json:"hunter"`
	Target      string `gorm:"size:66;not null" json:"target"`

	HunterLat float64 `json:"hunter_lat"`
	HunterLng float64 `json:"hunter_lng"`
	TargetLat float64 `json:"target_lat"`
	TargetLng float64 `json:"target_lng"`

	DistanceMeters float64 `json:"distance_meters"`
	TxHash         string  `gorm:"size:100" json:"tx_hash,omitempty"` // 上链后回填

	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (KillRecord) TableName() string {
	return "kill_records"
}

// LocationPing 位置上报记录表（只追加）
type LocationPing struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ChainGameID uint64    `gorm:"index;not null" json:"chain_game_id"`
	Address     string    `gorm:"size:66;not null;index" json:"address"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	InZone      bool      `json:"in_zone"`
	PingedAt    time.Time `json:"pinged_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName 指定表名
func (LocationPing) TableName() string {
	return "location_pings"
}

// TxStatus 操作员交易状态
type TxStatus string

const (
	TxPending   TxStatus = "pending"   // 排队中
	TxSubmitted TxStatus = "submitted" // 已提交
	TxConfirmed TxStatus = "confirmed" // 已确认
	TxFailed    TxStatus = "failed"    // 重试耗尽
)

// TxKind 操作员交易类型
type TxKind string

const (
	TxCreateGame         TxKind = "create_game"
	TxStartGame          TxKind = "start_game"
	TxRecordKill         TxKind = "record_kill"
	TxEliminatePlayer    TxKind = "eliminate_player"
	TxEndGame            TxKind = "end_game"
	TxTriggerCancel      TxKind = "trigger_cancellation"
	TxTriggerExpiry      TxKind = "trigger_expiry"
)

// OperatorTx 链上操作审计表
// 本地真相先行，链上提交异步重试；IdempotencyKey 保证重试不重复生效。
type OperatorTx struct {
	BaseModel
	OrderNo        string   `gorm:"uniqueIndex;size:64;not null" json:"order_no"`
	ChainGameID    uint64   `gorm:"index;not null" json:"chain_game_id"`
	Kind           TxKind   `gorm:"size:50;not null;index" json:"kind"`
	IdempotencyKey string   `gorm:"uniqueIndex;size:128;not null" json:"idempotency_key"`
	Payload        JSONMap  `gorm:"type:json" json:"payload"`
	Status         TxStatus `gorm:"size:20;default:'pending';index" json:"status"`
	Attempts       int      `gorm:"default:0" json:"attempts"`
	TxHash         string   `gorm:"size:100" json:"tx_hash,omitempty"`
	LastError      string   `gorm:"size:500" json:"last_error,omitempty"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}

// TableName 指定表名
func (OperatorTx) TableName() string {
	return "operator_txs"
}
