package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/models"
)

// LoadPlayers 加载比赛全部玩家，按编号升序
func (r *Repository) LoadPlayers(ctx context.Context, gameID uint64) ([]*models.Player, error) {
	var players []*models.Player
	err := r.db.WithContext(ctx).
		Where("chain_game_id = ?", gameID).
		Order("player_number").
		Find(&players).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return players, nil
}

// SavePlayer 玩家状态落库（按比赛+地址整行覆盖）
func (r *Repository) SavePlayer(ctx context.Context, player *models.Player) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chain_game_id"}, {Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_alive", "kills", "checked_in", "target_address",
			"last_heartbeat_at", "eliminated_at", "eliminated_by", "cause",
			"has_claimed", "updated_at",
		}),
	}).Create(player).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseInsert)
	}
	return nil
}

// GetPlayer 按比赛与地址查玩家
func (r *Repository) GetPlayer(ctx context.Context, gameID uint64, address string) (*models.Player, error) {
	var player models.Player
	err := r.db.WithContext(ctx).
		Where("chain_game_id = ? AND address = ?", gameID, address).
		First(&player).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return &player, nil
}

// Leaderboard 比赛排行榜：先存活、再按击杀数、再按淘汰时间倒序
func (r *Repository) Leaderboard(ctx context.Context, gameID uint64) ([]*models.Player, error) {
	var players []*models.Player
	err := r.db.WithContext(ctx).
		Where("chain_game_id = ?", gameID).
		Order("is_alive DESC, kills DESC, eliminated_at DESC, player_number").
		Find(&players).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return players, nil
}
