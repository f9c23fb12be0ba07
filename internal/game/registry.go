package game

import (
	"math/rand"
	"time"

	"github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/models"
)

// Registry 玩家注册表与目标链管理器。
// 不变量：存活玩家的 猎人->目标 分配构成恰好一个有向环。
// 本身不加锁，所有调用由会话串行化。
type Registry struct {
	maxPlayers int
	players    map[string]*PlayerState
	byNumber   map[int]string
	targets    map[string]string // 猎人地址 -> 目标地址（仅存活玩家）
	nextNumber int
	aliveCount int
}

// NewRegistry 创建注册表
func NewRegistry(maxPlayers int) *Registry {
	return &Registry{
		maxPlayers: maxPlayers,
		players:    make(map[string]*PlayerState),
		byNumber:   make(map[int]string),
		targets:    make(map[string]string),
		nextNumber: 1,
	}
}

// Register 报名，分配顺序编号（1起，永不复用）
func (r *Registry) Register(address string) (int, error) {
	if len(r.players) >= r.maxPlayers {
		return 0, errors.New(errors.ErrGameFull)
	}
	if _, exists := r.players[address]; exists {
		return 0, errors.New(errors.ErrAlreadyRegistered)
	}

	number := r.nextNumber
	r.nextNumber++

	r.players[address] = &PlayerState{
		Address:      address,
		PlayerNumber: number,
		IsAlive:      true,
	}
	r.byNumber[number] = address
	r.aliveCount++

	return number, nil
}

// Restore 从持久化记录恢复玩家（崩溃恢复路径）
func (r *Registry) Restore(p *models.Player) {
	state := &PlayerState{
		Address:      p.Address,
		PlayerNumber: p.PlayerNumber,
		IsAlive:      p.IsAlive,
		Kills:        p.Kills,
		CheckedIn:    p.CheckedIn,
		EliminatedAt: p.EliminatedAt,
		EliminatedBy: p.EliminatedBy,
		Cause:        p.Cause,
	}
	if p.LastHeartbeatAt != nil {
		state.LastHeartbeatAt = *p.LastHeartbeatAt
	}

	r.players[p.Address] = state
	r.byNumber[p.PlayerNumber] = p.Address
	if p.PlayerNumber >= r.nextNumber {
		r.nextNumber = p.PlayerNumber + 1
	}
	if p.IsAlive {
		r.aliveCount++
	}
}

// Get 按地址取玩家
func (r *Registry) Get(address string) (*PlayerState, bool) {
	p, ok := r.players[address]
	return p, ok
}

// GetByNumber 按编号取玩家地址
func (r *Registry) GetByNumber(number int) (string, bool) {
	addr, ok := r.byNumber[number]
	return addr, ok
}

// TargetOf 查询猎人的当前目标
func (r *Registry) TargetOf(hunter string) (string, bool) {
	t, ok := r.targets[hunter]
	return t, ok
}

// HunterOf 查询目标的当前猎人（反向查找）
func (r *Registry) HunterOf(target string) (string, bool) {
	for hunter, t := range r.targets {
		if t == target {
			return hunter, true
		}
	}
	return "", false
}

// Count 报名人数
func (r *Registry) Count() int {
	return len(r.players)
}

// AliveCount 存活人数
func (r *Registry) AliveCount() int {
	return r.aliveCount
}

// CheckedInCount 已签到人数
func (r *Registry) CheckedInCount() int {
	n := 0
	for _, p := range r.players {
		if p.CheckedIn {
			n++
		}
	}
	return n
}

// Players 遍历所有玩家（调用方不得跨越会话锁持有返回值）
func (r *Registry) Players() map[string]*PlayerState {
	return r.players
}

// BuildInitialCycle 开赛时构造覆盖所有存活玩家的单一随机环。
// 按编号排序后用seed洗牌，保证恢复时可重建同一个环。
func (r *Registry) BuildInitialCycle(seed int64) error {
	alive := r.aliveAddressesByNumber()
	if len(alive) < 2 {
		return errors.Newf(errors.ErrNotEnoughPlayers, "存活玩家: %d", len(alive))
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(alive), func(i, j int) {
		alive[i], alive[j] = alive[j], alive[i]
	})

	r.targets = make(map[string]string, len(alive))
	for i, hunter := range alive {
		r.targets[hunter] = alive[(i+1)%len(alive)]
	}

	return r.CheckCycle()
}

// RebuildCycle 从持久化的目标分配重建目标链（崩溃恢复路径）。
// 只恢复存活玩家的分配，重建后必须通过单环校验。
func (r *Registry) RebuildCycle(players []*models.Player) error {
	r.targets = make(map[string]string)
	for _, p := range players {
		if !p.IsAlive || p.TargetAddress == "" {
			continue
		}
		if _, ok := r.players[p.TargetAddress]; !ok {
			return errors.Newf(errors.ErrCycleCorrupted, "目标地址未注册: %s", p.TargetAddress)
		}
		r.targets[p.Address] = p.TargetAddress
	}
	if r.aliveCount <= 1 {
		r.targets = make(map[string]string)
		return nil
	}
	return r.CheckCycle()
}

// aliveAddressesByNumber 按编号升序返回存活玩家地址
func (r *Registry) aliveAddressesByNumber() []string {
	alive := make([]string, 0, r.aliveCount)
	for number := 1; number < r.nextNumber; number++ {
		addr, ok := r.byNumber[number]
		if !ok {
			continue
		}
		if r.players[addr].IsAlive {
			alive = append(alive, addr)
		}
	}
	return alive
}

// EliminationResult 淘汰结果
type EliminationResult struct {
	Eliminated   string // 被淘汰者
	Hunter       string // 被淘汰者的原猎人（目标链被重连的一方）
	NewTarget    string // 原猎人的新目标（空表示终局无需重连）
	AliveCount   int    // 淘汰后存活人数
	PlayerNumber int
}

// Eliminate 淘汰玩家并重连目标链。
// 重连规则：被淘汰者的猎人改为追踪被淘汰者的原目标（跳过死节点拼接），
// 其余玩家的分配不变，单环不变量保持。
func (r *Registry) Eliminate(address, eliminatedBy string, cause models.EliminationCause, now time.Time) (*EliminationResult, error) {
	p, ok := r.players[address]
	if !ok {
		return nil, errors.New(errors.ErrPlayerNotFound)
	}
	if !p.IsAlive {
		return nil, errors.New(errors.ErrPlayerNotAlive)
	}

	p.IsAlive = false
	p.EliminatedAt = &now
	p.EliminatedBy = eliminatedBy
	p.Cause = cause
	r.aliveCount--

	result := &EliminationResult{
		Eliminated:   address,
		AliveCount:   r.aliveCount,
		PlayerNumber: p.PlayerNumber,
	}

	// 开赛前淘汰（签到缺席）不存在目标链
	if len(r.targets) == 0 {
		return result, nil
	}

	formerTarget := r.targets[address]
	hunter, _ := r.HunterOf(address)
	delete(r.targets, address)

	if r.aliveCount <= 1 {
		// 只剩一人，环退化，清空分配
		r.targets = make(map[string]string)
		result.Hunter = hunter
		return result, nil
	}

	r.targets[hunter] = formerTarget
	result.Hunter = hunter
	result.NewTarget = formerTarget

	if err := r.CheckCycle(); err != nil {
		return nil, err
	}

	return result, nil
}

// RecordKill 记录一次猎杀：猎人击杀自己的目标。
// 幂等性：目标已死亡的重复提交返回 TargetNotAlive，绝不重复计数。
func (r *Registry) RecordKill(hunter, target string, now time.Time) (*EliminationResult, error) {
	if hunter == target {
		return nil, errors.New(errors.ErrCannotSelfKill)
	}

	h, ok := r.players[hunter]
	if !ok {
		return nil, errors.New(errors.ErrPlayerNotFound, "猎人未注册")
	}
	t, ok := r.players[target]
	if !ok {
		return nil, errors.New(errors.ErrPlayerNotFound, "目标未注册")
	}
	if !h.IsAlive {
		return nil, errors.New(errors.ErrHunterNotAlive)
	}
	if !t.IsAlive {
		return nil, errors.New(errors.ErrTargetNotAlive)
	}
	if assigned, ok := r.targets[hunter]; !ok || assigned != target {
		return nil, errors.New(errors.ErrNotYourTarget)
	}

	h.Kills++

	result, err := r.Eliminate(target, hunter, models.CauseKill, now)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CheckCycle 校验单环不变量：从任一存活玩家沿目标链行走，
// 必须恰好经过所有存活玩家一次后回到起点。失败即为致命错误。
func (r *Registry) CheckCycle() error {
	if r.aliveCount <= 1 {
		if len(r.targets) != 0 {
			return errors.New(errors.ErrCycleCorrupted, "终局残留目标分配")
		}
		return nil
	}

	if len(r.targets) != r.aliveCount {
		return errors.Newf(errors.ErrCycleCorrupted,
			"分配数%d与存活数%d不符", len(r.targets), r.aliveCount)
	}

	var start string
	for hunter := range r.targets {
		start = hunter
		break
	}

	visited := make(map[string]bool, r.aliveCount)
	current := start
	for i := 0; i < r.aliveCount; i++ {
		p, ok := r.players[current]
		if !ok || !p.IsAlive {
			return errors.Newf(errors.ErrCycleCorrupted, "链中出现非存活节点: %s", current)
		}
		if visited[current] {
			return errors.Newf(errors.ErrCycleCorrupted, "出现子环，节点: %s", current)
		}
		visited[current] = true

		next, ok := r.targets[current]
		if !ok {
			return errors.Newf(errors.ErrCycleCorrupted, "节点无目标: %s", current)
		}
		current = next
	}

	if current != start {
		return errors.New(errors.ErrCycleCorrupted, "行走未回到起点")
	}

	return nil
}

// ComputeResults 计算终局名次。
// 排序：存活优先（按击杀数降序、编号升序），其后按淘汰时间倒序
// （死得越晚名次越高）。TopKiller 为全场击杀数最多者，平局取编号最小。
func (r *Registry) ComputeResults() *GameResults {
	ranked := r.rankPlayers()

	results := &GameResults{}
	if len(ranked) > 0 {
		results.Winner1 = ranked[0].Address
	}
	if len(ranked) > 1 {
		results.Winner2 = ranked[1].Address
	}
	if len(ranked) > 2 {
		results.Winner3 = ranked[2].Address
	}

	var top *PlayerState
	for number := 1; number < r.nextNumber; number++ {
		addr, ok := r.byNumber[number]
		if !ok {
			continue
		}
		p := r.players[addr]
		if p.Kills == 0 {
			continue
		}
		if top == nil || p.Kills > top.Kills {
			top = p
		}
	}
	if top != nil {
		results.TopKiller = top.Address
	}

	return results
}

// rankPlayers 按名次排序全部玩家
func (r *Registry) rankPlayers() []*PlayerState {
	ranked := make([]*PlayerState, 0, len(r.players))
	for number := 1; number < r.nextNumber; number++ {
		addr, ok := r.byNumber[number]
		if !ok {
			continue
		}
		ranked = append(ranked, r.players[addr])
	}

	// 插入排序足矣，玩家数不超过maxPlayers
	less := func(a, b *PlayerState) bool {
		if a.IsAlive != b.IsAlive {
			return a.IsAlive
		}
		if a.IsAlive {
			if a.Kills != b.Kills {
				return a.Kills > b.Kills
			}
			return a.PlayerNumber < b.PlayerNumber
		}
		// 都已淘汰：死得晚的在前
		if !a.EliminatedAt.Equal(*b.EliminatedAt) {
			return a.EliminatedAt.After(*b.EliminatedAt)
		}
		return a.PlayerNumber < b.PlayerNumber
	}

	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && less(ranked[j], ranked[j-1]); j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	return ranked
}
