package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wfunc/hunt-game/internal/config"
	"github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/game"
	"github.com/wfunc/hunt-game/internal/logger"
	"github.com/wfunc/hunt-game/internal/models"
)

// TxStore 操作员交易审计持久化，由repository实现
type TxStore interface {
	// EnqueueTx 幂等入库：幂等键已存在时返回已有记录且ok=false
	EnqueueTx(ctx context.Context, tx *models.OperatorTx) (ok bool, err error)
	UpdateTx(ctx context.Context, tx *models.OperatorTx) error
	LoadUnfinishedTxs(ctx context.Context) ([]*models.OperatorTx, error)
	// GetTx 按幂等键查询，不存在时返回(nil, nil)
	GetTx(ctx context.Context, key string) (*models.OperatorTx, error)
}

// Dispatcher 链上结算调度器。
// 本地真相先行：比赛进程从不等待上链，交易先落审计表再异步提交，
// 失败按指数退避重试，重试耗尽标记failed等待人工介入。
// 实现 game.Settler。
type Dispatcher struct {
	cfg    *config.ChainConfig
	bridge Bridge
	store  TxStore
	log    *zap.Logger

	queue chan *models.OperatorTx
	quit  chan struct{}
	done  chan struct{}
}

// NewDispatcher 创建调度器
func NewDispatcher(cfg *config.ChainConfig, bridge Bridge, store TxStore) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		bridge: bridge,
		store:  store,
		log:    logger.WithModule("chain"),
		queue:  make(chan *models.OperatorTx, cfg.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start 启动工作协程并重放上次未完成的交易
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.store != nil {
		pending, err := d.store.LoadUnfinishedTxs(ctx)
		if err != nil {
			return err
		}
		for _, tx := range pending {
			select {
			case d.queue <- tx:
			default:
				d.log.Warn("重放队列已满", zap.String("order_no", tx.OrderNo))
			}
		}
		if len(pending) > 0 {
			d.log.Info("重放未完成交易", zap.Int("count", len(pending)))
		}
	}

	go d.run()
	return nil
}

// Stop 停止调度器，队列中未处理的交易留待下次启动重放
func (d *Dispatcher) Stop() {
	close(d.quit)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.quit:
			return
		case tx := <-d.queue:
			d.process(tx)
		}
	}
}

// process 带退避重试地提交单笔交易
func (d *Dispatcher) process(tx *models.OperatorTx) {
	payload := map[string]interface{}(tx.Payload)

	for attempt := tx.Attempts; attempt < d.cfg.RetryTimes; attempt++ {
		tx.Attempts = attempt + 1

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.RequestTimeout)
		txHash, err := d.bridge.Submit(ctx, tx.Kind, tx.ChainGameID, tx.IdempotencyKey, payload)
		cancel()

		if err == nil {
			now := time.Now()
			tx.Status = models.TxConfirmed
			tx.TxHash = txHash
			tx.LastError = ""
			tx.SubmittedAt = &now
			tx.ConfirmedAt = &now
			d.updateTx(tx)
			logger.LogChainTx(string(tx.Kind), tx.ChainGameID, string(models.TxConfirmed), nil)
			return
		}

		tx.Status = models.TxSubmitted
		tx.LastError = err.Error()
		d.updateTx(tx)

		if !errors.IsRetryable(err) {
			d.log.Error("交易被永久拒绝",
				zap.String("order_no", tx.OrderNo),
				zap.String("kind", string(tx.Kind)),
				zap.Error(err))
			break
		}

		// 指数退避，期间可被停止打断
		delay := d.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt))
		d.log.Warn("交易提交失败，等待重试",
			zap.String("order_no", tx.OrderNo),
			zap.Int("attempt", tx.Attempts),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-d.quit:
			return
		case <-time.After(delay):
		}
	}

	tx.Status = models.TxFailed
	d.updateTx(tx)
	logger.LogChainTx(string(tx.Kind), tx.ChainGameID, string(models.TxFailed), nil)
}

func (d *Dispatcher) updateTx(tx *models.OperatorTx) {
	if d.store == nil {
		return
	}
	if err := d.store.UpdateTx(context.Background(), tx); err != nil {
		d.log.Error("交易审计更新失败", zap.String("order_no", tx.OrderNo), zap.Error(err))
	}
}

// enqueue 落审计表并入队。幂等键重复说明此前已提交过，直接丢弃。
func (d *Dispatcher) enqueue(kind models.TxKind, gameID uint64, subject string, payload map[string]interface{}) {
	tx := &models.OperatorTx{
		OrderNo:        uuid.New().String(),
		ChainGameID:    gameID,
		Kind:           kind,
		IdempotencyKey: fmt.Sprintf("%d:%s:%s", gameID, kind, subject),
		Payload:        models.JSONMap(payload),
		Status:         models.TxPending,
	}

	if d.store != nil {
		ok, err := d.store.EnqueueTx(context.Background(), tx)
		if err != nil {
			d.log.Error("交易审计入库失败",
				zap.String("kind", string(kind)),
				zap.Uint64("game_id", gameID),
				zap.Error(err))
			return
		}
		if !ok {
			d.log.Debug("重复交易已忽略", zap.String("key", tx.IdempotencyKey))
			return
		}
	}

	select {
	case d.queue <- tx:
	default:
		// 队列满时只落库不入队，重启时由重放兜底
		d.log.Warn("结算队列已满，交易延后处理", zap.String("order_no", tx.OrderNo))
	}
}

// RetryTx 重放重试耗尽的交易（操作员人工介入入口）。
// 只接受failed状态；清零计数重新入队。
func (d *Dispatcher) RetryTx(ctx context.Context, idempotencyKey string) error {
	if d.store == nil {
		return errors.New(errors.ErrChainNotReady, "审计存储未就绪")
	}

	tx, err := d.store.GetTx(ctx, idempotencyKey)
	if err != nil {
		return err
	}
	if tx == nil {
		return errors.Newf(errors.ErrNotFound, "交易不存在: %s", idempotencyKey)
	}
	if tx.Status != models.TxFailed {
		return errors.Newf(errors.ErrChainSubmit, "交易状态%s不可重试", tx.Status)
	}

	tx.Status = models.TxPending
	tx.Attempts = 0
	tx.LastError = ""
	if err := d.store.UpdateTx(ctx, tx); err != nil {
		return err
	}

	select {
	case d.queue <- tx:
	default:
		return errors.New(errors.ErrChainNotReady, "结算队列已满，请稍后重试")
	}

	d.log.Info("交易已重新入队", zap.String("key", idempotencyKey))
	return nil
}

// SubmitCreateGame 同步链上建局
func (d *Dispatcher) SubmitCreateGame(gameID uint64, payload map[string]interface{}) {
	d.enqueue(models.TxCreateGame, gameID, "game", payload)
}

// SubmitStartGame 开赛上链
func (d *Dispatcher) SubmitStartGame(gameID uint64) {
	d.enqueue(models.TxStartGame, gameID, "game", nil)
}

// SubmitRecordKill 猎杀上链
func (d *Dispatcher) SubmitRecordKill(gameID uint64, hunter, target string) {
	d.enqueue(models.TxRecordKill, gameID, target, map[string]interface{}{
		"hunter": hunter,
		"target": target,
	})
}

// SubmitEliminatePlayer 非猎杀淘汰上链
func (d *Dispatcher) SubmitEliminatePlayer(gameID uint64, target string) {
	d.enqueue(models.TxEliminatePlayer, gameID, target, map[string]interface{}{
		"target": target,
	})
}

// SubmitEndGame 终局结算上链
func (d *Dispatcher) SubmitEndGame(gameID uint64, results *game.GameResults) {
	d.enqueue(models.TxEndGame, gameID, "game", map[string]interface{}{
		"winner1":    results.Winner1,
		"winner2":    results.Winner2,
		"winner3":    results.Winner3,
		"top_killer": results.TopKiller,
	})
}

// SubmitTriggerCancellation 取消退款上链
func (d *Dispatcher) SubmitTriggerCancellation(gameID uint64) {
	d.enqueue(models.TxTriggerCancel, gameID, "game", nil)
}

// SubmitTriggerExpiry 过期结算上链
func (d *Dispatcher) SubmitTriggerExpiry(gameID uint64) {
	d.enqueue(models.TxTriggerExpiry, gameID, "game", nil)
}

var _ game.Settler = (*Dispatcher)(nil)
