package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/models"
)

// AppendKill 追加猎杀审计记录
func (r *Repository) AppendKill(ctx context.Context, rec *models.KillRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert)
	}
	return nil
}

// AppendPing 追加位置上报记录
func (r *Repository) AppendPing(ctx context.Context, ping *models.LocationPing) error {
	if err := r.db.WithContext(ctx).Create(ping).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert)
	}
	return nil
}

// ListKills 比赛猎杀记录，按时间升序
func (r *Repository) ListKills(ctx context.Context, gameID uint64) ([]*models.KillRecord, error) {
	var recs []*models.KillRecord
	err := r.db.WithContext(ctx).
		Where("chain_game_id = ?", gameID).
		Order("id").
		Find(&recs).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return recs, nil
}

// EnqueueTx 交易审计幂等入库。
// 幂等键冲突说明同一笔链上操作已经入过队，返回ok=false。
func (r *Repository) EnqueueTx(ctx context.Context, tx *models.OperatorTx) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(tx)
	if result.Error != nil {
		return false, apperrors.Wrap(result.Error, apperrors.ErrDatabaseInsert)
	}
	return result.RowsAffected > 0, nil
}

// UpdateTx 更新交易审计状态
func (r *Repository) UpdateTx(ctx context.Context, tx *models.OperatorTx) error {
	err := r.db.WithContext(ctx).Model(&models.OperatorTx{}).
		Where("idempotency_key = ?", tx.IdempotencyKey).
		Updates(map[string]interface{}{
			"status":       tx.Status,
			"attempts":     tx.Attempts,
			"tx_hash":      tx.TxHash,
			"last_error":   tx.LastError,
			"submitted_at": tx.SubmittedAt,
			"confirmed_at": tx.ConfirmedAt,
		}).Error
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate)
	}
	return nil
}

// LoadUnfinishedTxs 加载全部待提交/提交中交易（启动重放用）
func (r *Repository) LoadUnfinishedTxs(ctx context.Context) ([]*models.OperatorTx, error) {
	var txs []*models.OperatorTx
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.TxStatus{models.TxPending, models.TxSubmitted}).
		Order("id").
		Find(&txs).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return txs, nil
}

// GetTx 按幂等键查交易审计
func (r *Repository) GetTx(ctx context.Context, key string) (*models.OperatorTx, error) {
	var tx models.OperatorTx
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return &tx, nil
}
