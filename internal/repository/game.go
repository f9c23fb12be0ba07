package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/models"
	"github.com/wfunc/hunt-game/internal/zone"
)

// CreateGame 建局：比赛与缩圈计划同事务落库
func (r *Repository) CreateGame(ctx context.Context, game *models.Game, schedule zone.Schedule) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(game).Error; err != nil {
			return err
		}
		for _, shrink := range schedule {
			row := &models.ZoneShrink{
				ChainGameID:  game.ChainGameID,
				AtSecond:     shrink.AtSecond,
				RadiusMeters: shrink.RadiusMeters,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return nil
}

// GetGame 按链上ID查比赛
func (r *Repository) GetGame(ctx context.Context, gameID uint64) (*models.Game, error) {
	var game models.Game
	err := r.db.WithContext(ctx).Where("chain_game_id = ?", gameID).First(&game).Error
	if err == gorm.ErrRecordNotFound {
		return nil, errors.Newf(errors.ErrGameNotFound, "比赛: %d", gameID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return &game, nil
}

// LoadActiveGames 加载全部非终态比赛（启动恢复用）
func (r *Repository) LoadActiveGames(ctx context.Context) ([]*models.Game, error) {
	var games []*models.Game
	err := r.db.WithContext(ctx).
		Where("phase NOT IN ?", []models.GamePhase{models.PhaseEnded, models.PhaseCancelled}).
		Order("chain_game_id").
		Find(&games).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return games, nil
}

// ListGames 分页列出比赛（操作员接口用）
func (r *Repository) ListGames(ctx context.Context, offset, limit int) ([]*models.Game, int64, error) {
	var games []*models.Game
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Game{}).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	err := r.db.WithContext(ctx).
		Order("chain_game_id DESC").
		Offset(offset).Limit(limit).
		Find(&games).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return games, total, nil
}

// UpdateGamePhase 同步比赛表的阶段字段（会话快照才是权威）
func (r *Repository) UpdateGamePhase(ctx context.Context, gameID uint64, phase models.GamePhase) error {
	err := r.db.WithContext(ctx).Model(&models.Game{}).
		Where("chain_game_id = ?", gameID).
		Update("phase", phase).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return nil
}

// LoadSchedule 加载缩圈计划，按时间升序
func (r *Repository) LoadSchedule(ctx context.Context, gameID uint64) (zone.Schedule, error) {
	var rows []models.ZoneShrink
	err := r.db.WithContext(ctx).
		Where("chain_game_id = ?", gameID).
		Order("at_second").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	schedule := make(zone.Schedule, 0, len(rows))
	for _, row := range rows {
		schedule = append(schedule, zone.Shrink{
			AtSecond:     row.AtSecond,
			RadiusMeters: row.RadiusMeters,
		})
	}
	return schedule, nil
}

// LoadSession 加载会话快照，不存在时返回nil
func (r *Repository) LoadSession(ctx context.Context, gameID uint64) (*models.SessionSnapshot, error) {
	var snap models.SessionSnapshot
	err := r.db.WithContext(ctx).Where("chain_game_id = ?", gameID).First(&snap).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrDatabaseQuery)
	}
	return &snap, nil
}

// SaveSession 会话快照落库（按比赛ID整行覆盖）
func (r *Repository) SaveSession(ctx context.Context, snap *models.SessionSnapshot) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chain_game_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"phase", "started_at", "check_in_deadline", "pregame_ends_at",
			"halted", "halt_reason", "event_seq", "updated_at",
		}),
	}).Create(snap).Error
	if err != nil {
		return errors.Wrap(err, errors.ErrDatabaseQuery)
	}

	// 比赛表阶段字段一并同步，列表查询不用联表
	return r.UpdateGamePhase(ctx, snap.ChainGameID, snap.Phase)
}
