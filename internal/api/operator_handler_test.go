package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/hunt-game/internal/config"
	"github.com/wfunc/hunt-game/internal/game"
	"github.com/wfunc/hunt-game/internal/models"
	"github.com/wfunc/hunt-game/internal/repository"
	"github.com/wfunc/hunt-game/internal/utils"
	"github.com/wfunc/hunt-game/internal/zone"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// fakeSettler 记录链上提交调用
type fakeSettler struct {
	created []uint64
	retried []string
}

func (f *fakeSettler) SubmitCreateGame(gameID uint64, payload map[string]interface{}) {
	f.created = append(f.created, gameID)
}
func (f *fakeSettler) RetryTx(ctx context.Context, idempotencyKey string) error {
	f.retried = append(f.retried, idempotencyKey)
	return nil
}
func (f *fakeSettler) SubmitStartGame(gameID uint64)                              {}
func (f *fakeSettler) SubmitRecordKill(gameID uint64, hunter, target string)      {}
func (f *fakeSettler) SubmitEliminatePlayer(gameID uint64, target string)         {}
func (f *fakeSettler) SubmitEndGame(gameID uint64, results *game.GameResults)     {}
func (f *fakeSettler) SubmitTriggerCancellation(gameID uint64)                    {}
func (f *fakeSettler) SubmitTriggerExpiry(gameID uint64)                          {}

type apiTestEnv struct {
	handler *OperatorHandler
	manager *game.Manager
	settler *fakeSettler
	jwt     *utils.JWTManager
}

func newAPITestEnv(t *testing.T) *apiTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Game{}, &models.ZoneShrink{}, &models.Player{},
		&models.KillRecord{}, &models.LocationPing{},
		&models.SessionSnapshot{}, &models.OperatorTx{},
	))

	repo := repository.NewRepository(db)
	settler := &fakeSettler{}
	gameCfg := &config.GameConfig{
		TickInterval:       time.Second,
		HeartbeatInterval:  90 * time.Second,
		ZoneGracePeriod:    30 * time.Second,
		ZoneWarningLead:    time.Minute,
		CheckInWindow:      15 * time.Minute,
		CheckInRadius:      50,
		PregameCountdown:   2 * time.Minute,
		KillProximity:      30,
		RequireProximity:   true,
		SpectatorFuzzGrid:  100,
		LocationStaleAfter: time.Minute,
	}
	manager := game.NewManager(gameCfg, nil, settler, repo)
	t.Cleanup(manager.Shutdown)

	passHash, err := utils.HashPassword("operator-secret")
	require.NoError(t, err)

	secCfg := &config.SecurityConfig{
		JWT:              config.JWTConfig{Secret: "test-secret", ExpireHours: 1},
		OperatorUser:     "operator",
		OperatorPassHash: passHash,
	}
	jwtManager := utils.NewJWTManager(secCfg.JWT.Secret, time.Hour)

	return &apiTestEnv{
		handler: NewOperatorHandler(secCfg, jwtManager, manager, repo, settler, zap.NewNop()),
		manager: manager,
		settler: settler,
		jwt:     jwtManager,
	}
}

func postJSON(t *testing.T, handler gin.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.POST(path, handler)

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func createGameRequest(gameID uint64) *CreateGameRequest {
	base := time.Now().Add(time.Hour)
	return &CreateGameRequest{
		ChainGameID:          gameID,
		Title:                "城市猎杀赛",
		EntryFee:             1000,
		MinPlayers:           2,
		MaxPlayers:           30,
		RegistrationDeadline: base,
		GameDate:             base.Add(time.Hour),
		MaxDurationSec:       3600,
		CenterLat:            39.9042,
		CenterLng:            116.4074,
		MeetingLat:           39.9042,
		MeetingLng:           116.4074,
		Bps1st:               5000,
		Bps2nd:               2000,
		Bps3rd:               1000,
		BpsKills:             1500,
		BpsCreator:           500,
		Shrinks: []zone.Shrink{
			{AtSecond: 0, RadiusMeters: 2000},
			{AtSecond: 600, RadiusMeters: 1000},
		},
	}
}

// 测试操作员登录
func TestOperatorLogin(t *testing.T) {
	env := newAPITestEnv(t)

	w := postJSON(t, env.handler.Login, "/login", LoginRequest{
		Username: "operator",
		Password: "operator-secret",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	claims, err := env.jwt.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, "operator", claims.Role)
}

// 测试登录失败
func TestOperatorLoginRejected(t *testing.T) {
	env := newAPITestEnv(t)

	w := postJSON(t, env.handler.Login, "/login", LoginRequest{
		Username: "operator",
		Password: "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(t, env.handler.Login, "/login", LoginRequest{
		Username: "intruder",
		Password: "operator-secret",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// 测试创建比赛
func TestCreateGameEndpoint(t *testing.T) {
	env := newAPITestEnv(t)

	w := postJSON(t, env.handler.CreateGame, "/games", createGameRequest(101))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	session, err := env.manager.GetSession(101)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseRegistration, session.Phase())

	// 链上登记已入队
	assert.Equal(t, []uint64{101}, env.settler.created)
}

// 测试创建比赛参数校验
func TestCreateGameValidation(t *testing.T) {
	env := newAPITestEnv(t)

	// 奖金分配基点不足10000
	req := createGameRequest(102)
	req.BpsCreator = 0
	w := postJSON(t, env.handler.CreateGame, "/games", req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, env.settler.created)

	// 缩圈计划缺失（binding层拒绝）
	req = createGameRequest(103)
	req.Shrinks = nil
	w = postJSON(t, env.handler.CreateGame, "/games", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// 测试比赛列表与详情
func TestListAndGetGame(t *testing.T) {
	env := newAPITestEnv(t)

	w := postJSON(t, env.handler.CreateGame, "/games", createGameRequest(104))
	require.Equal(t, http.StatusOK, w.Code)

	router := gin.New()
	router.GET("/games", env.handler.ListGames)
	router.GET("/games/:id", env.handler.GetGame)
	router.GET("/games/:id/leaderboard", env.handler.Leaderboard)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/games", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Games []models.Game `json:"games"`
		Total int64         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Equal(t, int64(1), listResp.Total)
	require.Len(t, listResp.Games, 1)
	assert.Equal(t, uint64(104), listResp.Games[0].ChainGameID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/games/104", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/games/99999", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/games/104/leaderboard", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// 测试取消比赛
func TestCancelGameEndpoint(t *testing.T) {
	env := newAPITestEnv(t)

	w := postJSON(t, env.handler.CreateGame, "/games", createGameRequest(105))
	require.Equal(t, http.StatusOK, w.Code)

	router := gin.New()
	router.POST("/games/:id/cancel", env.handler.CancelGame)

	raw, _ := json.Marshal(CancelRequest{Reason: "场地不可用"})
	w = httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/games/105/cancel", bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	session, err := env.manager.GetSession(105)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCancelled, session.Phase())

	// 终态后再取消应失败
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/games/105/cancel", bytes.NewBuffer(raw))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusOK, w.Code)
}

// 测试提前开启签到
func TestStartCheckInEndpoint(t *testing.T) {
	env := newAPITestEnv(t)

	w := postJSON(t, env.handler.CreateGame, "/games", createGameRequest(106))
	require.Equal(t, http.StatusOK, w.Code)

	router := gin.New()
	router.POST("/games/:id/start", env.handler.StartCheckIn)

	// 无人报名时不允许
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/games/106/start", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	session, err := env.manager.GetSession(106)
	require.NoError(t, err)
	_, err = session.Register("02" + fmt.Sprintf("%064x", 1))
	require.NoError(t, err)
	_, err = session.Register("02" + fmt.Sprintf("%064x", 2))
	require.NoError(t, err)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/games/106/start", nil))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.PhaseCheckIn, session.Phase())
}

// 测试重放链上交易
func TestRetryTxEndpoint(t *testing.T) {
	env := newAPITestEnv(t)

	w := postJSON(t, env.handler.RetryTx, "/txs/retry", RetryTxRequest{Key: "7:end_game:game"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"7:end_game:game"}, env.settler.retried)

	// 缺少key
	w = postJSON(t, env.handler.RetryTx, "/txs/retry", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// 测试无效比赛ID
func TestPathGameIDInvalid(t *testing.T) {
	env := newAPITestEnv(t)

	router := gin.New()
	router.GET("/games/:id", env.handler.GetGame)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", fmt.Sprintf("/games/%s", "abc"), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
