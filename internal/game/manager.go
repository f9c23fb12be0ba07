package game

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wfunc/hunt-game/internal/config"
	"github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/logger"
	"github.com/wfunc/hunt-game/internal/models"
	"github.com/wfunc/hunt-game/internal/zone"
)

// bps基点总额，奖金分配方案必须恰好分完
const bpsTotal = 10000

// Manager 管理全部进行中的比赛会话
type Manager struct {
	mu       sync.RWMutex
	sessions map[uint64]*Session

	cfg         *config.GameConfig
	log         *zap.Logger
	broadcaster Broadcaster
	settler     Settler
	store       Store
}

// NewManager 创建会话管理器
func NewManager(cfg *config.GameConfig, broadcaster Broadcaster, settler Settler, store Store) *Manager {
	return &Manager{
		sessions:    make(map[uint64]*Session),
		cfg:         cfg,
		log:         logger.WithModule("manager"),
		broadcaster: broadcaster,
		settler:     settler,
		store:       store,
	}
}

// CreateGame 创建比赛：校验参数、落库并启动会话
func (m *Manager) CreateGame(ctx context.Context, game *models.Game, schedule zone.Schedule) (*Session, error) {
	if game.BpsTotal() != bpsTotal {
		return nil, errors.Newf(errors.ErrInvalidPayload,
			"奖金分配基点合计%d，要求%d", game.BpsTotal(), bpsTotal)
	}
	if game.MinPlayers < 2 {
		return nil, errors.New(errors.ErrInvalidPayload, "最少2名玩家")
	}
	if game.MaxPlayers < game.MinPlayers {
		return nil, errors.New(errors.ErrInvalidPayload, "最大人数小于最小人数")
	}
	if !game.GameDate.After(game.RegistrationDeadline) {
		return nil, errors.New(errors.ErrInvalidPayload, "比赛时间必须晚于报名截止")
	}
	if game.MaxDurationSec <= 0 {
		return nil, errors.New(errors.ErrInvalidPayload, "最大时长必须为正")
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[game.ChainGameID]; exists {
		return nil, errors.Newf(errors.ErrInvalidPayload, "比赛已存在: %d", game.ChainGameID)
	}

	game.Phase = models.PhaseRegistration
	if m.store != nil {
		if err := m.store.CreateGame(ctx, game, schedule); err != nil {
			return nil, err
		}
	}

	s := NewSession(game, schedule, m.cfg, m.broadcaster, m.settler, m.store)
	s.Start()
	m.sessions[game.ChainGameID] = s

	m.log.Info("比赛已创建",
		zap.Uint64("game_id", game.ChainGameID),
		zap.String("title", game.Title),
		zap.Int("max_players", game.MaxPlayers))
	return s, nil
}

// GetSession 按链上ID取会话
func (m *Manager) GetSession(gameID uint64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[gameID]
	if !ok {
		return nil, errors.Newf(errors.ErrGameNotFound, "比赛: %d", gameID)
	}
	return s, nil
}

// Sessions 全部会话（操作员列表用）
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Recover 进程重启后恢复全部非终态比赛
func (m *Manager) Recover(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	games, err := m.store.LoadActiveGames(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, g := range games {
		schedule, err := m.store.LoadSchedule(ctx, g.ChainGameID)
		if err != nil {
			m.log.Error("缩圈计划加载失败", zap.Uint64("game_id", g.ChainGameID), zap.Error(err))
			continue
		}
		players, err := m.store.LoadPlayers(ctx, g.ChainGameID)
		if err != nil {
			m.log.Error("玩家加载失败", zap.Uint64("game_id", g.ChainGameID), zap.Error(err))
			continue
		}
		snap, err := m.store.LoadSession(ctx, g.ChainGameID)
		if err != nil {
			m.log.Error("会话快照加载失败", zap.Uint64("game_id", g.ChainGameID), zap.Error(err))
			continue
		}

		var s *Session
		if snap != nil {
			s, err = RestoreSession(g, schedule, snap, players, m.cfg, m.broadcaster, m.settler, m.store)
			if err != nil {
				m.log.Error("会话恢复失败", zap.Uint64("game_id", g.ChainGameID), zap.Error(err))
				continue
			}
		} else {
			s = NewSession(g, schedule, m.cfg, m.broadcaster, m.settler, m.store)
			for _, p := range players {
				s.registry.Restore(p)
			}
		}

		s.Start()
		m.sessions[g.ChainGameID] = s
	}

	m.log.Info("会话恢复完成", zap.Int("count", len(m.sessions)))
	return nil
}

// Shutdown 停止全部会话主循环（状态已随每次变更落库）
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.Stop()
	}
	m.log.Info("全部会话已停止")
}
