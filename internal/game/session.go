package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/hunt-game/internal/config"
	"github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/geo"
	"github.com/wfunc/hunt-game/internal/logger"
	"github.com/wfunc/hunt-game/internal/models"
	"github.com/wfunc/hunt-game/internal/zone"
)

// Session 单场比赛的权威会话。
// 所有状态变更都在 mu 内完成并按 seq 顺序发出事件；
// 声明校验在锁外的不可变快照上进行，应用前在锁内复核。
type Session struct {
	mu sync.Mutex

	game     *models.Game
	schedule zone.Schedule
	registry *Registry
	cfg      *config.GameConfig
	log      *zap.Logger

	broadcaster Broadcaster
	settler     Settler
	store       Store

	phase           models.GamePhase
	startedAt       *time.Time
	endedAt         *time.Time
	checkInDeadline *time.Time
	pregameEndsAt   *time.Time

	halted     bool
	haltReason string

	seq        uint64
	lastRadius float64 // 已广播的当前圈半径
	warnedAt   int64   // 已预警的下一次缩圈时刻（AtSecond），-1表示无

	ticker *time.Ticker
	quit   chan struct{}
	done   chan struct{}
}

// NewSession 创建新比赛会话（报名阶段）
func NewSession(game *models.Game, schedule zone.Schedule, cfg *config.GameConfig,
	broadcaster Broadcaster, settler Settler, store Store) *Session {
	return &Session{
		game:        game,
		schedule:    schedule,
		registry:    NewRegistry(game.MaxPlayers),
		cfg:         cfg,
		log:         logger.WithModule("session").With(zap.Uint64("game_id", game.ChainGameID)),
		broadcaster: broadcaster,
		settler:     settler,
		store:       store,
		phase:       models.PhaseRegistration,
		warnedAt:    -1,
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// RestoreSession 从持久化快照恢复会话（进程重启后）
func RestoreSession(game *models.Game, schedule zone.Schedule, snap *models.SessionSnapshot,
	players []*models.Player, cfg *config.GameConfig,
	broadcaster Broadcaster, settler Settler, store Store) (*Session, error) {

	s := NewSession(game, schedule, cfg, broadcaster, settler, store)
	s.phase = snap.Phase
	s.startedAt = snap.StartedAt
	s.checkInDeadline = snap.CheckInDeadline
	s.pregameEndsAt = snap.PregameEndsAt
	s.halted = snap.Halted
	s.haltReason = snap.HaltReason
	s.seq = snap.EventSeq

	for _, p := range players {
		s.registry.Restore(p)
	}

	// 进行中的比赛需要重建目标链并校验单环不变量
	if s.phase == models.PhaseActive {
		if s.startedAt == nil {
			return nil, errors.New(errors.ErrPhaseTransition, "进行中的比赛缺少开始时间")
		}
		if err := s.registry.RebuildCycle(players); err != nil {
			return nil, err
		}
		if state, err := zone.StateAt(schedule, *s.startedAt, time.Now()); err == nil {
			s.lastRadius = state.CurrentRadius
		}
	}

	s.log.Info("会话已恢复",
		zap.String("phase", string(s.phase)),
		zap.Int("players", s.registry.Count()),
		zap.Uint64("seq", s.seq))
	return s, nil
}

// GameID 链上比赛ID
func (s *Session) GameID() uint64 {
	return s.game.ChainGameID
}

// Game 比赛静态配置
func (s *Session) Game() *models.Game {
	return s.game
}

// Phase 当前阶段
func (s *Session) Phase() models.GamePhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Start 启动主循环
func (s *Session) Start() {
	s.ticker = time.NewTicker(s.cfg.TickInterval)
	go s.run()
	s.log.Info("会话主循环启动", zap.Duration("tick", s.cfg.TickInterval))
}

// Stop 停止主循环（不改变比赛状态）
func (s *Session) Stop() {
	close(s.quit)
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)
	defer s.ticker.Stop()
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, nil)
			s.mu.Lock()
			s.haltLocked(fmt.Sprintf("主循环panic: %v", r))
			s.mu.Unlock()
		}
	}()

	for {
		select {
		case <-s.quit:
			return
		case now := <-s.ticker.C:
			s.Tick(now)
		}
	}
}

// Tick 执行一次主循环。独立成方法便于测试按指定时刻驱动。
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted || s.phase.IsTerminal() {
		return
	}

	switch s.phase {
	case models.PhaseRegistration:
		s.tickRegistration(now)
	case models.PhaseCheckIn:
		s.tickCheckIn(now)
	case models.PhasePregame:
		s.tickPregame(now)
	case models.PhaseActive:
		s.tickActive(now)
	}
}

// tickRegistration 到达比赛日即转入签到；人数不足则取消退款
func (s *Session) tickRegistration(now time.Time) {
	if now.Before(s.game.GameDate) {
		return
	}

	if s.registry.Count() < s.game.MinPlayers {
		s.log.Warn("报名人数不足，取消比赛",
			zap.Int("count", s.registry.Count()),
			zap.Int("min", s.game.MinPlayers))
		s.cancelLocked("报名人数不足")
		return
	}

	deadline := now.Add(s.cfg.CheckInWindow)
	s.checkInDeadline = &deadline
	s.transitionLocked(models.PhaseCheckIn, now)
}

// tickCheckIn 全员到齐提前转入，否则到期淘汰缺席者
func (s *Session) tickCheckIn(now time.Time) {
	allIn := s.registry.CheckedInCount() == s.registry.Count()
	expired := s.checkInDeadline != nil && !now.Before(*s.checkInDeadline)
	if !allIn && !expired {
		return
	}

	// 缺席者按no_show淘汰，押金不退（链上同步淘汰）
	for _, p := range s.registry.Players() {
		if p.IsAlive && !p.CheckedIn {
			if err := s.applyEliminationLocked(p.Address, "", models.CauseNoShow, now); err != nil {
				return
			}
		}
	}

	if s.registry.AliveCount() < 2 {
		s.log.Warn("签到后人数不足，取消比赛",
			zap.Int("alive", s.registry.AliveCount()))
		s.cancelLocked("签到人数不足")
		return
	}

	ends := now.Add(s.cfg.PregameCountdown)
	s.pregameEndsAt = &ends
	s.transitionLocked(models.PhasePregame, now)
}

// tickPregame 倒计时结束后分配首轮目标并开赛
func (s *Session) tickPregame(now time.Time) {
	if s.pregameEndsAt == nil || now.Before(*s.pregameEndsAt) {
		return
	}

	seed := int64(s.game.ChainGameID) ^ now.UnixNano()
	if err := s.registry.BuildInitialCycle(seed); err != nil {
		s.log.Error("首轮目标分配失败", zap.Error(err))
		s.haltLocked(err.Error())
		return
	}

	s.startedAt = &now
	s.lastRadius = s.schedule[0].RadiusMeters
	for addr, p := range s.registry.Players() {
		if p.IsAlive {
			p.LastHeartbeatAt = now
		}
		s.persistPlayerLocked(addr)
	}

	s.transitionLocked(models.PhaseActive, now)
	s.settler.SubmitStartGame(s.game.ChainGameID)

	// 目标是私密信息，只发给各自的猎人
	for hunter := range s.registry.Players() {
		if target, ok := s.registry.TargetOf(hunter); ok {
			s.sendNewTargetLocked(hunter, target, now)
		}
	}

	s.log.Info("比赛开始",
		zap.Int("players", s.registry.AliveCount()),
		zap.Float64("radius", s.lastRadius))
}

// tickActive 缩圈推进、出圈与心跳淘汰、终局判定
func (s *Session) tickActive(now time.Time) {
	state, err := zone.StateAt(s.schedule, *s.startedAt, now)
	if err != nil {
		s.log.Error("边界状态计算失败", zap.Error(err))
		s.haltLocked(err.Error())
		return
	}

	// 缩圈生效
	if state.CurrentRadius != s.lastRadius {
		s.lastRadius = state.CurrentRadius
		s.emitLocked(EventZoneShrink, now, &ZoneShrinkPayload{
			CurrentRadius: state.CurrentRadius,
			NextRadius:    state.NextRadius,
			NextShrinkAt:  state.NextShrinkAt,
		})
		s.log.Info("缩圈生效", zap.Float64("radius", state.CurrentRadius))
	}

	// 缩圈预警（每个边界只发一次）
	if state.NextShrinkAt != nil {
		nextAt := state.NextShrinkAt.Unix()
		if s.warnedAt != nextAt && !now.Add(s.cfg.ZoneWarningLead).Before(*state.NextShrinkAt) {
			s.warnedAt = nextAt
			s.emitLocked(EventZoneShrinkWarning, now, &ZoneShrinkPayload{
				CurrentRadius: state.CurrentRadius,
				NextRadius:    state.NextRadius,
				NextShrinkAt:  state.NextShrinkAt,
			})
		}
	}

	center := geo.Point{Lat: s.game.CenterLat, Lng: s.game.CenterLng}
	var toEliminate []struct {
		addr  string
		cause models.EliminationCause
	}

	for addr, p := range s.registry.Players() {
		if !p.IsAlive {
			continue
		}

		// 心跳超时：无法证明仍在参与
		if now.Sub(p.LastHeartbeatAt) > s.cfg.HeartbeatInterval {
			toEliminate = append(toEliminate, struct {
				addr  string
				cause models.EliminationCause
			}{addr, models.CauseHeartbeat})
			continue
		}

		// 出圈判定基于最近上报位置；宽限期内回圈可豁免
		if p.LastPing == nil {
			continue
		}
		if geo.InZone(p.LastPing.Point, center, s.lastRadius) {
			p.LastPing.ExitedZoneAt = nil
			p.LastPing.Warned = false
			continue
		}
		if p.LastPing.ExitedZoneAt == nil {
			t := now
			p.LastPing.ExitedZoneAt = &t
			continue
		}
		if now.Sub(*p.LastPing.ExitedZoneAt) > s.cfg.ZoneGracePeriod {
			toEliminate = append(toEliminate, struct {
				addr  string
				cause models.EliminationCause
			}{addr, models.CauseZone})
		}
	}

	for _, e := range toEliminate {
		if s.registry.AliveCount() <= 1 {
			break
		}
		if err := s.applyEliminationLocked(e.addr, "", e.cause, now); err != nil {
			return
		}
	}

	// 终局：剩一人，或达到最长时限
	if s.registry.AliveCount() <= 1 {
		s.endLocked(now)
		return
	}
	if now.Sub(*s.startedAt) >= s.game.MaxDuration() {
		s.log.Info("达到最长比赛时限")
		s.endLocked(now)
	}
}

// Register 玩家报名（身份已在链上缴费并经签名认证）
func (s *Session) Register(address string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return 0, errors.New(errors.ErrGameHalted, s.haltReason)
	}
	if s.phase != models.PhaseRegistration {
		return 0, errors.New(errors.ErrWrongPhase, "报名已截止")
	}
	if time.Now().After(s.game.RegistrationDeadline) {
		return 0, errors.New(errors.ErrWrongPhase, "报名已截止")
	}

	number, err := s.registry.Register(address)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	s.persistPlayerLocked(address)
	s.emitLocked(EventPlayerRegistered, now, &RegisteredPayload{
		Address:      address,
		PlayerNumber: number,
		PlayerCount:  s.registry.Count(),
	})
	s.log.Info("玩家报名", zap.String("address", address), zap.Int("number", number))
	return number, nil
}

// SubmitCheckIn 集合签到声明
func (s *Session) SubmitCheckIn(claim *CheckInClaim) error {
	snap := s.snapshot()
	validated, err := ValidateCheckInClaim(claim, snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return errors.New(errors.ErrGameHalted, s.haltReason)
	}
	if s.phase != models.PhaseCheckIn {
		return errors.New(errors.ErrWrongPhase, "不在签到阶段")
	}

	p, ok := s.registry.Get(validated.Address)
	if !ok {
		return errors.New(errors.ErrPlayerNotFound)
	}
	if p.CheckedIn {
		return nil // 重复签到无害
	}

	now := time.Now()
	p.CheckedIn = true
	p.LastPing = &PingState{Point: validated.Pos, InZone: true, At: now}
	s.persistPlayerLocked(validated.Address)
	s.emitLocked(EventPlayerCheckedIn, now, &CheckedInPayload{
		Address:      validated.Address,
		PlayerNumber: p.PlayerNumber,
		CheckedIn:    s.registry.CheckedInCount(),
		Total:        s.registry.Count(),
	})
	return nil
}

// SubmitKillClaim 猎杀扫码声明。
// 校验在锁外快照上进行；应用时在锁内由注册表复核存活与目标分配，
// 并发的重复击杀只有先到者生效。
func (s *Session) SubmitKillClaim(claim *KillClaim) (*KillValidated, error) {
	snap := s.snapshot()
	validated, err := ValidateKillClaim(claim, snap)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return nil, errors.New(errors.ErrGameHalted, s.haltReason)
	}
	if s.phase != models.PhaseActive {
		return nil, errors.New(errors.ErrWrongPhase, "比赛未在进行中")
	}

	now := time.Now()
	result, err := s.registry.RecordKill(validated.Hunter, validated.Target, now)
	if err != nil {
		if errors.IsFatal(err) {
			s.log.Error("目标链损坏", zap.Error(err))
			s.haltLocked(err.Error())
		}
		return nil, err
	}

	hunter, _ := s.registry.Get(validated.Hunter)
	s.persistPlayerLocked(validated.Hunter)
	s.persistPlayerLocked(validated.Target)
	s.appendKillLocked(validated)

	s.emitLocked(EventKill, now, &KillPayload{
		Hunter:       validated.Hunter,
		HunterNumber: hunter.PlayerNumber,
		Target:       validated.Target,
		TargetNumber: result.PlayerNumber,
		Distance:     validated.Distance,
	})
	s.emitLocked(EventElimination, now, &EliminationPayload{
		Address:      validated.Target,
		PlayerNumber: result.PlayerNumber,
		Cause:        models.CauseKill,
		EliminatedBy: validated.Hunter,
		AliveCount:   result.AliveCount,
	})
	if result.NewTarget != "" {
		s.sendNewTargetLocked(result.Hunter, result.NewTarget, now)
	}

	s.settler.SubmitRecordKill(s.game.ChainGameID, validated.Hunter, validated.Target)
	s.log.Info("猎杀成功",
		zap.String("hunter", validated.Hunter),
		zap.String("target", validated.Target),
		zap.Float64("distance", validated.Distance),
		zap.Int("alive", result.AliveCount))

	if result.AliveCount <= 1 {
		s.endLocked(now)
	}
	return validated, nil
}

// SubmitHeartbeat 心跳扫码声明
func (s *Session) SubmitHeartbeat(claim *HeartbeatClaim) error {
	snap := s.snapshot()
	validated, err := ValidateHeartbeatClaim(claim, snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return errors.New(errors.ErrGameHalted, s.haltReason)
	}
	p, ok := s.registry.Get(validated.Address)
	if !ok || !p.IsAlive {
		return errors.New(errors.ErrPlayerNotAlive)
	}

	now := time.Now()
	p.LastHeartbeatAt = now
	s.updatePingLocked(p, validated.Pos, now)
	s.persistPlayerLocked(validated.Address)
	return nil
}

// SubmitLocation 位置上报声明
func (s *Session) SubmitLocation(claim *LocationClaim) error {
	snap := s.snapshot()
	validated, err := ValidateLocationClaim(claim, snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.halted {
		return errors.New(errors.ErrGameHalted, s.haltReason)
	}
	p, ok := s.registry.Get(validated.Address)
	if !ok || !p.IsAlive {
		return errors.New(errors.ErrPlayerNotAlive)
	}

	now := time.Now()
	s.updatePingLocked(p, validated.Pos, now)

	if s.store != nil {
		ping := &models.LocationPing{
			ChainGameID: s.game.ChainGameID,
			Address:     validated.Address,
			Lat:         validated.Pos.Lat,
			Lng:         validated.Pos.Lng,
			InZone:      p.LastPing.InZone,
			PingedAt:    validated.At,
		}
		if err := s.store.AppendPing(context.Background(), ping); err != nil {
			s.log.Warn("位置记录写入失败", zap.Error(err))
		}
	}
	return nil
}

// updatePingLocked 更新最近位置并维护出圈追踪
func (s *Session) updatePingLocked(p *PlayerState, pos geo.Point, now time.Time) {
	inZone := true
	if s.phase == models.PhaseActive && s.lastRadius > 0 {
		center := geo.Point{Lat: s.game.CenterLat, Lng: s.game.CenterLng}
		inZone = geo.InZone(pos, center, s.lastRadius)
	}

	prev := p.LastPing
	p.LastPing = &PingState{Point: pos, InZone: inZone, At: now}
	if !inZone && prev != nil && prev.ExitedZoneAt != nil {
		p.LastPing.ExitedZoneAt = prev.ExitedZoneAt
		p.LastPing.Warned = prev.Warned
	}
	if !inZone && p.LastPing.ExitedZoneAt == nil {
		t := now
		p.LastPing.ExitedZoneAt = &t
	}
}

// Cancel 操作员取消比赛，仅限开赛前阶段（链上走退款路径）
func (s *Session) Cancel(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseRegistration && s.phase != models.PhaseCheckIn {
		return errors.New(errors.ErrWrongPhase, "比赛已开始，无法取消")
	}
	s.log.Warn("操作员取消比赛", zap.String("reason", reason))
	s.cancelLocked(reason)
	return nil
}

// ForceCheckIn 操作员提前开启签到，不等比赛日到点
func (s *Session) ForceCheckIn() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseRegistration {
		return errors.New(errors.ErrWrongPhase, "仅报名阶段可提前开启签到")
	}
	if s.registry.Count() < s.game.MinPlayers {
		return errors.Newf(errors.ErrNotEnoughPlayers,
			"已报名%d人，最少%d人", s.registry.Count(), s.game.MinPlayers)
	}

	now := time.Now()
	deadline := now.Add(s.cfg.CheckInWindow)
	s.checkInDeadline = &deadline
	s.log.Info("操作员提前开启签到")
	s.transitionLocked(models.PhaseCheckIn, now)
	return nil
}

// ForceExpire 操作员强制结束超时比赛（链上走过期结算路径）
func (s *Session) ForceExpire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != models.PhaseActive {
		return errors.New(errors.ErrWrongPhase, "比赛未在进行中")
	}
	now := time.Now()
	if now.Sub(*s.startedAt) < s.game.MaxDuration() {
		return errors.New(errors.ErrWrongPhase, "比赛尚未超时")
	}

	s.log.Warn("操作员强制过期结算")
	s.phase = models.PhaseEnded
	s.endedAt = &now
	s.settler.SubmitTriggerExpiry(s.game.ChainGameID)

	results := s.registry.ComputeResults()
	s.emitLocked(EventGameEnded, now, &GameEndedPayload{
		Results:  results,
		Duration: int64(now.Sub(*s.startedAt) / time.Second),
	})
	s.persistSessionLocked()
	return nil
}

// StateSnapshot 构造全量状态。
// viewer为空表示观众视角：坐标经量化加噪脱敏，且不含目标分配。
func (s *Session) StateSnapshot(viewer string) *SnapshotPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := &SnapshotPayload{
		GameID:     s.game.ChainGameID,
		Phase:      s.phase,
		StartedAt:  s.startedAt,
		AliveCount: s.registry.AliveCount(),
	}

	if s.phase == models.PhaseActive && s.startedAt != nil {
		if state, err := zone.StateAt(s.schedule, *s.startedAt, time.Now()); err == nil {
			payload.Zone = state
		}
	}

	stale := time.Now().Add(-s.cfg.LocationStaleAfter)
	for number := 1; ; number++ {
		addr, ok := s.registry.GetByNumber(number)
		if !ok {
			break
		}
		p, _ := s.registry.Get(addr)
		sp := SnapshotPlayer{
			Address:      p.Address,
			PlayerNumber: p.PlayerNumber,
			IsAlive:      p.IsAlive,
			Kills:        p.Kills,
			CheckedIn:    p.CheckedIn,
			Cause:        p.Cause,
		}

		if p.LastPing != nil && p.LastPing.At.After(stale) {
			switch {
			case viewer == p.Address:
				// 本人看到自己的精确位置
				sp.Lat, sp.Lng = &p.LastPing.Point.Lat, &p.LastPing.Point.Lng
			case viewer == "" && p.IsAlive:
				// 观众只能看到脱敏后的大致位置
				fz := geo.Fuzz(p.LastPing.Point, s.cfg.SpectatorFuzzGrid)
				sp.Lat, sp.Lng = &fz.Lat, &fz.Lng
			}
		}
		payload.Players = append(payload.Players, sp)
	}

	if viewer != "" {
		if target, ok := s.registry.TargetOf(viewer); ok {
			payload.YourTarget = target
			if tp, ok := s.registry.Get(target); ok {
				payload.YourTargetNumber = tp.PlayerNumber
			}
		}
	}
	return payload
}

// SnapshotEvent 把全量状态包成事件（连接/重连时下发）
func (s *Session) SnapshotEvent(viewer string) *Event {
	payload := s.StateSnapshot(viewer)
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Event{
		Seq:       s.seq,
		Type:      EventSnapshot,
		GameID:    s.game.ChainGameID,
		Timestamp: time.Now().Unix(),
		Data:      payload,
	}
}

// snapshot 为锁外校验构造不可变快照
func (s *Session) snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		GameID:           s.game.ChainGameID,
		Phase:            s.phase,
		Players:          make(map[string]*PlayerState, s.registry.Count()),
		Numbers:          make(map[int]string, s.registry.Count()),
		Targets:          make(map[string]string),
		MeetingPoint:     geo.Point{Lat: s.game.MeetingLat, Lng: s.game.MeetingLng},
		CheckInRadius:    s.cfg.CheckInRadius,
		KillProximity:    s.cfg.KillProximity,
		RequireProximity: s.cfg.RequireProximity,
	}
	for addr, p := range s.registry.Players() {
		snap.Players[addr] = p.clone()
		snap.Numbers[p.PlayerNumber] = addr
		if target, ok := s.registry.TargetOf(addr); ok {
			snap.Targets[addr] = target
		}
	}
	return snap
}

// applyEliminationLocked 执行非猎杀淘汰并发布事件、同步链上
func (s *Session) applyEliminationLocked(address, by string, cause models.EliminationCause, now time.Time) error {
	result, err := s.registry.Eliminate(address, by, cause, now)
	if err != nil {
		if errors.IsFatal(err) {
			s.log.Error("淘汰时目标链损坏", zap.Error(err))
			s.haltLocked(err.Error())
			return err
		}
		s.log.Warn("淘汰失败", zap.String("address", address), zap.Error(err))
		return nil
	}

	s.persistPlayerLocked(address)
	s.emitLocked(EventElimination, now, &EliminationPayload{
		Address:      address,
		PlayerNumber: result.PlayerNumber,
		Cause:        cause,
		EliminatedBy: by,
		AliveCount:   result.AliveCount,
	})
	if result.NewTarget != "" {
		s.persistPlayerLocked(result.Hunter)
		s.sendNewTargetLocked(result.Hunter, result.NewTarget, now)
	}

	s.settler.SubmitEliminatePlayer(s.game.ChainGameID, address)
	s.log.Info("玩家淘汰",
		zap.String("address", address),
		zap.String("cause", string(cause)),
		zap.Int("alive", result.AliveCount))
	return nil
}

// endLocked 正常终局：计算名次并提交链上结算
func (s *Session) endLocked(now time.Time) {
	results := s.registry.ComputeResults()
	s.phase = models.PhaseEnded
	s.endedAt = &now

	var duration int64
	if s.startedAt != nil {
		duration = int64(now.Sub(*s.startedAt) / time.Second)
	}
	s.emitLocked(EventGameEnded, now, &GameEndedPayload{Results: results, Duration: duration})
	s.settler.SubmitEndGame(s.game.ChainGameID, results)
	s.persistSessionLocked()

	logger.LogGameEvent("game_ended", s.game.ChainGameID, map[string]interface{}{
		"winner1":    results.Winner1,
		"top_killer": results.TopKiller,
		"duration":   duration,
	})
}

// cancelLocked 取消比赛（链上触发全员退款）
func (s *Session) cancelLocked(reason string) {
	now := time.Now()
	s.phase = models.PhaseCancelled
	s.endedAt = &now
	s.emitLocked(EventGameCancelled, now, map[string]string{"reason": reason})
	s.settler.SubmitTriggerCancellation(s.game.ChainGameID)
	s.persistSessionLocked()
}

// haltLocked 不变量被破坏时冻结比赛，拒绝一切后续声明。
// 冻结不改变链上状态，等待人工介入。
func (s *Session) haltLocked(reason string) {
	if s.halted {
		return
	}
	s.halted = true
	s.haltReason = reason
	s.persistSessionLocked()
	s.log.Error("会话已冻结", zap.String("reason", reason))
}

// Halted 是否已冻结
func (s *Session) Halted() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted, s.haltReason
}

// transitionLocked 阶段转换并广播
func (s *Session) transitionLocked(to models.GamePhase, now time.Time) {
	from := s.phase
	s.phase = to
	s.emitLocked(EventPhaseChange, now, &PhaseChangePayload{From: from, To: to})
	s.persistSessionLocked()
	s.log.Info("阶段转换", zap.String("from", string(from)), zap.String("to", string(to)))
}

// emitLocked 发出会话事件。seq在锁内分配，广播接口不得阻塞。
func (s *Session) emitLocked(typ EventType, now time.Time, data interface{}) {
	s.seq++
	ev := &Event{
		Seq:       s.seq,
		Type:      typ,
		GameID:    s.game.ChainGameID,
		Timestamp: now.Unix(),
		Data:      data,
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(s.game.ChainGameID, ev)
	}
}

// sendNewTargetLocked 新目标只发给对应猎人
func (s *Session) sendNewTargetLocked(hunter, target string, now time.Time) {
	s.seq++
	tp, _ := s.registry.Get(target)
	number := 0
	if tp != nil {
		number = tp.PlayerNumber
	}
	ev := &Event{
		Seq:       s.seq,
		Type:      EventNewTarget,
		GameID:    s.game.ChainGameID,
		Timestamp: now.Unix(),
		Data:      &NewTargetPayload{Target: target, TargetNumber: number},
	}
	if s.broadcaster != nil {
		s.broadcaster.SendToPlayer(s.game.ChainGameID, hunter, ev)
	}
}

// persistSessionLocked 会话快照落库
func (s *Session) persistSessionLocked() {
	if s.store == nil {
		return
	}
	snap := &models.SessionSnapshot{
		ChainGameID:     s.game.ChainGameID,
		Phase:           s.phase,
		StartedAt:       s.startedAt,
		CheckInDeadline: s.checkInDeadline,
		PregameEndsAt:   s.pregameEndsAt,
		Halted:          s.halted,
		HaltReason:      s.haltReason,
		EventSeq:        s.seq,
	}
	if err := s.store.SaveSession(context.Background(), snap); err != nil {
		s.log.Error("会话快照写入失败", zap.Error(err))
	}
}

// persistPlayerLocked 玩家状态落库
func (s *Session) persistPlayerLocked(address string) {
	if s.store == nil {
		return
	}
	p, ok := s.registry.Get(address)
	if !ok {
		return
	}
	m := &models.Player{
		ChainGameID:  s.game.ChainGameID,
		Address:      p.Address,
		PlayerNumber: p.PlayerNumber,
		IsAlive:      p.IsAlive,
		Kills:        p.Kills,
		CheckedIn:    p.CheckedIn,
		EliminatedAt: p.EliminatedAt,
		EliminatedBy: p.EliminatedBy,
		Cause:        p.Cause,
	}
	if target, ok := s.registry.TargetOf(address); ok {
		m.TargetAddress = target
	}
	if !p.LastHeartbeatAt.IsZero() {
		t := p.LastHeartbeatAt
		m.LastHeartbeatAt = &t
	}
	if err := s.store.SavePlayer(context.Background(), m); err != nil {
		s.log.Error("玩家状态写入失败", zap.Error(err))
	}
}

// appendKillLocked 猎杀审计记录落库
func (s *Session) appendKillLocked(v *KillValidated) {
	if s.store == nil {
		return
	}
	rec := &models.KillRecord{
		ChainGameID:    s.game.ChainGameID,
		Hunter:         v.Hunter,
		Target:         v.Target,
		HunterLat:      v.HunterPos.Lat,
		HunterLng:      v.HunterPos.Lng,
		TargetLat:      v.TargetPos.Lat,
		TargetLng:      v.TargetPos.Lng,
		DistanceMeters: v.Distance,
	}
	if err := s.store.AppendKill(context.Background(), rec); err != nil {
		s.log.Error("猎杀记录写入失败", zap.Error(err))
	}
}
