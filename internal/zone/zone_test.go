package zone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchedule = Schedule{
	{AtSecond: 0, RadiusMeters: 2000},
	{AtSecond: 600, RadiusMeters: 1000},
	{AtSecond: 1200, RadiusMeters: 400},
}

// 测试计划校验
func TestScheduleValidate(t *testing.T) {
	assert.NoError(t, testSchedule.Validate())

	// 空计划
	assert.Error(t, Schedule{}.Validate())

	// 首条不从0开始
	assert.Error(t, Schedule{{AtSecond: 10, RadiusMeters: 100}}.Validate())

	// 时间未递增
	assert.Error(t, Schedule{
		{AtSecond: 0, RadiusMeters: 2000},
		{AtSecond: 0, RadiusMeters: 1000},
	}.Validate())

	// 半径未递减
	assert.Error(t, Schedule{
		{AtSecond: 0, RadiusMeters: 1000},
		{AtSecond: 600, RadiusMeters: 1000},
	}.Validate())

	// 非正半径
	assert.Error(t, Schedule{{AtSecond: 0, RadiusMeters: 0}}.Validate())
}

// 测试边界状态计算与左闭区间语义
func TestStateAt(t *testing.T) {
	startedAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	// 开赛瞬间
	state, err := StateAt(testSchedule, startedAt, startedAt)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, state.CurrentRadius)
	require.NotNil(t, state.NextRadius)
	assert.Equal(t, 1000.0, *state.NextRadius)
	assert.Equal(t, startedAt.Add(600*time.Second), *state.NextShrinkAt)

	// 缩圈前1秒
	state, err = StateAt(testSchedule, startedAt, startedAt.Add(599*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2000.0, state.CurrentRadius)

	// 缩圈边界：到点立即生效
	state, err = StateAt(testSchedule, startedAt, startedAt.Add(600*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1000.0, state.CurrentRadius)
	assert.Equal(t, 400.0, *state.NextRadius)

	// 最后一段之后没有下一次缩圈
	state, err = StateAt(testSchedule, startedAt, startedAt.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 400.0, state.CurrentRadius)
	assert.Nil(t, state.NextRadius)
	assert.Nil(t, state.NextShrinkAt)
}

// 测试开赛前边界未定义
func TestStateAtBeforeStart(t *testing.T) {
	startedAt := time.Now()
	_, err := StateAt(testSchedule, startedAt, startedAt.Add(-time.Second))
	assert.Error(t, err)
}

// 测试半径单调性：时间推进半径不增，下一次缩圈总在未来
func TestRadiusMonotonic(t *testing.T) {
	startedAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	prev := testSchedule[0].RadiusMeters
	for sec := int64(0); sec <= 1800; sec += 7 {
		now := startedAt.Add(time.Duration(sec) * time.Second)
		state, err := StateAt(testSchedule, startedAt, now)
		require.NoError(t, err)
		require.LessOrEqual(t, state.CurrentRadius, prev)
		prev = state.CurrentRadius

		if state.NextShrinkAt != nil {
			require.True(t, state.NextShrinkAt.After(now))
		}
	}
}
