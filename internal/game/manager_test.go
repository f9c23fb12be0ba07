package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalerrors "github.com/wfunc/hunt-game/internal/errors"
)

func newTestManager() *Manager {
	return NewManager(testGameConfig(), newFakeBroadcaster(), &fakeSettler{}, nil)
}

func TestManagerCreateGame(t *testing.T) {
	m := newTestManager()
	defer m.Shutdown()

	s, err := m.CreateGame(context.Background(), testGame(time.Now()), testSchedule)
	require.NoError(t, err)
	assert.Equal(t, testGameID, s.GameID())

	got, err := m.GetSession(testGameID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	// 重复创建
	_, err = m.CreateGame(context.Background(), testGame(time.Now()), testSchedule)
	assertCode(t, err, internalerrors.ErrInvalidPayload)

	_, err = m.GetSession(testGameID + 1)
	assertCode(t, err, internalerrors.ErrGameNotFound)
}

func TestManagerCreateGameValidation(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()

	// 奖金基点不足10000
	g := testGame(time.Now())
	g.BpsCreator = 0
	_, err := m.CreateGame(ctx, g, testSchedule)
	assertCode(t, err, internalerrors.ErrInvalidPayload)

	// 人数下限
	g = testGame(time.Now())
	g.MinPlayers = 1
	_, err = m.CreateGame(ctx, g, testSchedule)
	assertCode(t, err, internalerrors.ErrInvalidPayload)

	// 比赛时间早于报名截止
	g = testGame(time.Now())
	g.GameDate = g.RegistrationDeadline.Add(-time.Minute)
	_, err = m.CreateGame(ctx, g, testSchedule)
	assertCode(t, err, internalerrors.ErrInvalidPayload)

	// 非法缩圈计划
	g = testGame(time.Now())
	_, err = m.CreateGame(ctx, g, nil)
	assertCode(t, err, internalerrors.ErrScheduleInvalid)
}
