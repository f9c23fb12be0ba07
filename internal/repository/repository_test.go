package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/hunt-game/internal/models"
	"github.com/wfunc/hunt-game/internal/zone"
)

type RepositoryTestSuite struct {
	suite.Suite
	db   *gorm.DB
	repo *Repository
	ctx  context.Context
}

func (suite *RepositoryTestSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	suite.Require().NoError(err)

	err = db.AutoMigrate(
		&models.Game{},
		&models.ZoneShrink{},
		&models.Player{},
		&models.SessionSnapshot{},
		&models.KillRecord{},
		&models.LocationPing{},
		&models.OperatorTx{},
	)
	suite.Require().NoError(err)

	suite.db = db
	suite.repo = NewRepository(db)
	suite.ctx = context.Background()
}

func (suite *RepositoryTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

func (suite *RepositoryTestSuite) testGame(id uint64) *models.Game {
	return &models.Game{
		ChainGameID:          id,
		Title:                fmt.Sprintf("测试比赛%d", id),
		EntryFee:             1000,
		MinPlayers:           2,
		MaxPlayers:           10,
		RegistrationDeadline: time.Now().Add(time.Hour),
		GameDate:             time.Now().Add(2 * time.Hour),
		MaxDurationSec:       3600,
		Bps1st:               5000,
		Bps2nd:               2000,
		Bps3rd:               1000,
		BpsKills:             1500,
		BpsCreator:           500,
		Phase:                models.PhaseRegistration,
	}
}

func (suite *RepositoryTestSuite) TestCreateAndLoadGame() {
	schedule := zone.Schedule{
		{AtSecond: 0, RadiusMeters: 2000},
		{AtSecond: 600, RadiusMeters: 1000},
	}
	err := suite.repo.CreateGame(suite.ctx, suite.testGame(1), schedule)
	suite.NoError(err)

	game, err := suite.repo.GetGame(suite.ctx, 1)
	suite.NoError(err)
	suite.Equal("测试比赛1", game.Title)

	loaded, err := suite.repo.LoadSchedule(suite.ctx, 1)
	suite.NoError(err)
	suite.Equal(schedule, loaded)
	suite.NoError(loaded.Validate())
}

func (suite *RepositoryTestSuite) TestLoadActiveGamesSkipsTerminal() {
	suite.repo.CreateGame(suite.ctx, suite.testGame(1), zone.Schedule{{AtSecond: 0, RadiusMeters: 500}})
	suite.repo.CreateGame(suite.ctx, suite.testGame(2), zone.Schedule{{AtSecond: 0, RadiusMeters: 500}})
	suite.repo.UpdateGamePhase(suite.ctx, 2, models.PhaseEnded)

	games, err := suite.repo.LoadActiveGames(suite.ctx)
	suite.NoError(err)
	suite.Len(games, 1)
	suite.Equal(uint64(1), games[0].ChainGameID)
}

func (suite *RepositoryTestSuite) TestSavePlayerUpsert() {
	player := &models.Player{
		ChainGameID:  1,
		Address:      "02aa",
		PlayerNumber: 1,
		IsAlive:      true,
	}
	suite.NoError(suite.repo.SavePlayer(suite.ctx, player))

	// 同一玩家再次落库应覆盖而非新增
	now := time.Now()
	update := &models.Player{
		ChainGameID:   1,
		Address:       "02aa",
		PlayerNumber:  1,
		IsAlive:       false,
		Kills:         2,
		CheckedIn:     true,
		TargetAddress: "02bb",
		EliminatedAt:  &now,
		Cause:         models.CauseKill,
	}
	suite.NoError(suite.repo.SavePlayer(suite.ctx, update))

	players, err := suite.repo.LoadPlayers(suite.ctx, 1)
	suite.NoError(err)
	suite.Require().Len(players, 1)
	suite.False(players[0].IsAlive)
	suite.Equal(2, players[0].Kills)
	suite.Equal("02bb", players[0].TargetAddress)
	suite.Equal(models.CauseKill, players[0].Cause)
}

func (suite *RepositoryTestSuite) TestSessionSnapshotRoundTrip() {
	missing, err := suite.repo.LoadSession(suite.ctx, 9)
	suite.NoError(err)
	suite.Nil(missing)

	now := time.Now()
	snap := &models.SessionSnapshot{
		ChainGameID: 9,
		Phase:       models.PhaseActive,
		StartedAt:   &now,
		EventSeq:    17,
	}
	suite.repo.CreateGame(suite.ctx, suite.testGame(9), zone.Schedule{{AtSecond: 0, RadiusMeters: 500}})
	suite.NoError(suite.repo.SaveSession(suite.ctx, snap))

	// 覆盖保存
	snap.Phase = models.PhaseEnded
	snap.EventSeq = 42
	suite.NoError(suite.repo.SaveSession(suite.ctx, snap))

	loaded, err := suite.repo.LoadSession(suite.ctx, 9)
	suite.NoError(err)
	suite.Require().NotNil(loaded)
	suite.Equal(models.PhaseEnded, loaded.Phase)
	suite.Equal(uint64(42), loaded.EventSeq)

	// 比赛表阶段同步
	game, err := suite.repo.GetGame(suite.ctx, 9)
	suite.NoError(err)
	suite.Equal(models.PhaseEnded, game.Phase)
}

func (suite *RepositoryTestSuite) TestAuditAppendOnly() {
	rec := &models.KillRecord{
		ChainGameID:    1,
		Hunter:         "02aa",
		Target:         "02bb",
		DistanceMeters: 12.5,
	}
	suite.NoError(suite.repo.AppendKill(suite.ctx, rec))
	suite.NoError(suite.repo.AppendPing(suite.ctx, &models.LocationPing{
		ChainGameID: 1, Address: "02aa", Lat: 39.9, Lng: 116.4, InZone: true, PingedAt: time.Now(),
	}))

	kills, err := suite.repo.ListKills(suite.ctx, 1)
	suite.NoError(err)
	suite.Require().Len(kills, 1)
	suite.Equal("02bb", kills[0].Target)
}

func (suite *RepositoryTestSuite) TestEnqueueTxIdempotent() {
	tx := &models.OperatorTx{
		OrderNo:        "order-1",
		ChainGameID:    1,
		Kind:           models.TxRecordKill,
		IdempotencyKey: "1:record_kill:02bb",
		Status:         models.TxPending,
	}
	ok, err := suite.repo.EnqueueTx(suite.ctx, tx)
	suite.NoError(err)
	suite.True(ok)

	// 幂等键冲突不生效
	dup := &models.OperatorTx{
		OrderNo:        "order-2",
		ChainGameID:    1,
		Kind:           models.TxRecordKill,
		IdempotencyKey: "1:record_kill:02bb",
		Status:         models.TxPending,
	}
	ok, err = suite.repo.EnqueueTx(suite.ctx, dup)
	suite.NoError(err)
	suite.False(ok)
}

func (suite *RepositoryTestSuite) TestTxLifecycle() {
	tx := &models.OperatorTx{
		OrderNo:        "order-1",
		ChainGameID:    1,
		Kind:           models.TxEndGame,
		IdempotencyKey: "1:end_game:game",
		Status:         models.TxPending,
	}
	_, err := suite.repo.EnqueueTx(suite.ctx, tx)
	suite.NoError(err)

	unfinished, err := suite.repo.LoadUnfinishedTxs(suite.ctx)
	suite.NoError(err)
	suite.Len(unfinished, 1)

	now := time.Now()
	tx.Status = models.TxConfirmed
	tx.Attempts = 2
	tx.TxHash = "0xdef"
	tx.ConfirmedAt = &now
	suite.NoError(suite.repo.UpdateTx(suite.ctx, tx))

	unfinished, err = suite.repo.LoadUnfinishedTxs(suite.ctx)
	suite.NoError(err)
	suite.Empty(unfinished)

	got, err := suite.repo.GetTx(suite.ctx, "1:end_game:game")
	suite.NoError(err)
	suite.Require().NotNil(got)
	suite.Equal("0xdef", got.TxHash)
	suite.Equal(2, got.Attempts)
}

func (suite *RepositoryTestSuite) TestLeaderboardOrder() {
	now := time.Now()
	earlier := now.Add(-time.Minute)
	suite.repo.SavePlayer(suite.ctx, &models.Player{
		ChainGameID: 1, Address: "02aa", PlayerNumber: 1, IsAlive: true, Kills: 1,
	})
	suite.repo.SavePlayer(suite.ctx, &models.Player{
		ChainGameID: 1, Address: "02bb", PlayerNumber: 2, IsAlive: false, Kills: 3, EliminatedAt: &now,
	})
	suite.repo.SavePlayer(suite.ctx, &models.Player{
		ChainGameID: 1, Address: "02cc", PlayerNumber: 3, IsAlive: false, Kills: 3, EliminatedAt: &earlier,
	})

	players, err := suite.repo.Leaderboard(suite.ctx, 1)
	suite.NoError(err)
	suite.Require().Len(players, 3)
	suite.Equal("02aa", players[0].Address, "存活者居首")
	suite.Equal("02bb", players[1].Address, "同击杀数时活得久的在前")
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
