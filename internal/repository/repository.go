package repository

import (
	"gorm.io/gorm"

	"github.com/wfunc/hunt-game/internal/chain"
	"github.com/wfunc/hunt-game/internal/game"
)

// Repository 数据访问层，聚合各实体的读写
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建数据访问层
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB 暴露底层连接（API层分页查询用）
func (r *Repository) DB() *gorm.DB {
	return r.db
}

var (
	_ game.Store    = (*Repository)(nil)
	_ chain.TxStore = (*Repository)(nil)
)
