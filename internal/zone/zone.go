package zone

import (
	"time"

	"github.com/wfunc/hunt-game/internal/errors"
)

// Shrink 缩圈计划条目
type Shrink struct {
	AtSecond     int64   `json:"at_second"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Schedule 缩圈计划（按时间升序、半径严格递减）
type Schedule []Shrink

// Validate 校验缩圈计划
// 首条必须从第0秒开始；时间严格递增；半径严格递减。
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return errors.New(errors.ErrScheduleInvalid, "缩圈计划为空")
	}
	if s[0].AtSecond != 0 {
		return errors.Newf(errors.ErrScheduleInvalid, "首条必须从0秒开始，实际: %d", s[0].AtSecond)
	}

	for i := range s {
		if s[i].RadiusMeters <= 0 {
			return errors.Newf(errors.ErrScheduleInvalid, "第%d条半径非正: %.1f", i, s[i].RadiusMeters)
		}
		if i == 0 {
			continue
		}
		if s[i].AtSecond <= s[i-1].AtSecond {
			return errors.Newf(errors.ErrScheduleInvalid, "第%d条时间未递增", i)
		}
		if s[i].RadiusMeters >= s[i-1].RadiusMeters {
			return errors.Newf(errors.ErrScheduleInvalid, "第%d条半径未递减", i)
		}
	}

	return nil
}

// State 某一时刻的边界状态
type State struct {
	CurrentRadius float64    `json:"current_radius"`
	NextRadius    *float64   `json:"next_radius,omitempty"`
	NextShrinkAt  *time.Time `json:"next_shrink_at,omitempty"`
}

// StateAt 计算 now 时刻的边界状态，纯函数。
// 取 atSecond <= elapsed 的最后一条为当前半径（缩圈边界左闭：到点即生效）；
// 其后一条给出下一次缩圈。开赛前边界未定义，返回错误。
func StateAt(schedule Schedule, startedAt, now time.Time) (*State, error) {
	if now.Before(startedAt) {
		return nil, errors.New(errors.ErrWrongPhase, "比赛尚未开始，边界未定义")
	}
	if len(schedule) == 0 {
		return nil, errors.New(errors.ErrScheduleInvalid, "缩圈计划为空")
	}

	elapsed := int64(now.Sub(startedAt) / time.Second)

	idx := 0
	for i := range schedule {
		if schedule[i].AtSecond <= elapsed {
			idx = i
		} else {
			break
		}
	}

	state := &State{CurrentRadius: schedule[idx].RadiusMeters}

	if idx+1 < len(schedule) {
		next := schedule[idx+1]
		state.NextRadius = &next.RadiusMeters
		at := startedAt.Add(time.Duration(next.AtSecond) * time.Second)
		state.NextShrinkAt = &at
	}

	return state, nil
}
