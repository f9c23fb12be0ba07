package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/hunt-game/internal/config"
	apperrors "github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/game"
	"github.com/wfunc/hunt-game/internal/models"
	"github.com/wfunc/hunt-game/internal/repository"
	"github.com/wfunc/hunt-game/internal/utils"
	"github.com/wfunc/hunt-game/internal/zone"
	"go.uber.org/zap"
)

// Settler 操作员侧的链上提交入口
type Settler interface {
	SubmitCreateGame(gameID uint64, payload map[string]interface{})
	RetryTx(ctx context.Context, idempotencyKey string) error
}

// OperatorHandler 操作员处理器
type OperatorHandler struct {
	cfg        *config.SecurityConfig
	jwtManager *utils.JWTManager
	manager    *game.Manager
	repo       *repository.Repository
	settler    Settler
	log        *zap.Logger
}

// NewOperatorHandler 创建操作员处理器
func NewOperatorHandler(cfg *config.SecurityConfig, jwtManager *utils.JWTManager, manager *game.Manager, repo *repository.Repository, settler Settler, log *zap.Logger) *OperatorHandler {
	return &OperatorHandler{
		cfg:        cfg,
		jwtManager: jwtManager,
		manager:    manager,
		repo:       repo,
		settler:    settler,
		log:        log,
	}
}

// LoginRequest 操作员登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Login 操作员登录
func (h *OperatorHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	userMatch := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.OperatorUser)) == 1
	passMatch, err := utils.VerifyPassword(req.Password, h.cfg.OperatorPassHash)
	if err != nil || !userMatch || !passMatch {
		h.log.Warn("操作员登录失败", zap.String("username", req.Username), zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "LOGIN_FAILED",
			Message: "用户名或密码错误",
		})
		return
	}

	expiry := time.Duration(h.cfg.JWT.ExpireHours) * time.Hour
	token, err := h.jwtManager.GenerateToken(req.Username, "operator")
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "TOKEN_FAILED",
			Message: "令牌生成失败",
		})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(expiry).Unix(),
	})
}

// CreateGameRequest 创建比赛请求
type CreateGameRequest struct {
	ChainGameID uint64 `json:"chain_game_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	EntryFee    int64  `json:"entry_fee"`
	MinPlayers  int    `json:"min_players" binding:"required"`
	MaxPlayers  int    `json:"max_players" binding:"required"`

	RegistrationDeadline time.Time `json:"registration_deadline" binding:"required"`
	GameDate             time.Time `json:"game_date" binding:"required"`
	MaxDurationSec       int64     `json:"max_duration_sec" binding:"required"`

	CenterLat  float64 `json:"center_lat"`
	CenterLng  float64 `json:"center_lng"`
	MeetingLat float64 `json:"meeting_lat"`
	MeetingLng float64 `json:"meeting_lng"`

	Bps1st     int `json:"bps_1st"`
	Bps2nd     int `json:"bps_2nd"`
	Bps3rd     int `json:"bps_3rd"`
	BpsKills   int `json:"bps_kills"`
	BpsCreator int `json:"bps_creator"`

	BaseReward int64 `json:"base_reward"`

	Shrinks []zone.Shrink `json:"shrinks" binding:"required"`
}

// CreateGame 创建比赛
func (h *OperatorHandler) CreateGame(c *gin.Context) {
	var req CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	g := &models.Game{
		ChainGameID:          req.ChainGameID,
		Title:                req.Title,
		EntryFee:             req.EntryFee,
		MinPlayers:           req.MinPlayers,
		MaxPlayers:           req.MaxPlayers,
		RegistrationDeadline: req.RegistrationDeadline,
		GameDate:             req.GameDate,
		MaxDurationSec:       req.MaxDurationSec,
		CenterLat:            req.CenterLat,
		CenterLng:            req.CenterLng,
		MeetingLat:           req.MeetingLat,
		MeetingLng:           req.MeetingLng,
		Bps1st:               req.Bps1st,
		Bps2nd:               req.Bps2nd,
		Bps3rd:               req.Bps3rd,
		BpsKills:             req.BpsKills,
		BpsCreator:           req.BpsCreator,
		BaseReward:           req.BaseReward,
	}

	session, err := h.manager.CreateGame(c.Request.Context(), g, zone.Schedule(req.Shrinks))
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	if h.settler != nil {
		h.settler.SubmitCreateGame(g.ChainGameID, map[string]interface{}{
			"title":          g.Title,
			"entry_fee":      g.EntryFee,
			"min_players":    g.MinPlayers,
			"max_players":    g.MaxPlayers,
			"game_date":      g.GameDate.Unix(),
			"max_duration":   g.MaxDurationSec,
			"bps_1st":        g.Bps1st,
			"bps_2nd":        g.Bps2nd,
			"bps_3rd":        g.Bps3rd,
			"bps_kills":      g.BpsKills,
			"bps_creator":    g.BpsCreator,
			"base_reward":    g.BaseReward,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"game_id": session.GameID(),
		"phase":   session.Phase(),
	})
}

// ListGames 比赛列表
func (h *OperatorHandler) ListGames(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	games, total, err := h.repo.ListGames(c.Request.Context(), (page-1)*size, size)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"games": games,
		"total": total,
		"page":  page,
		"size":  size,
	})
}

// GetGame 比赛详情（含实时快照，观众视角）
func (h *OperatorHandler) GetGame(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}

	g, err := h.repo.GetGame(c.Request.Context(), gameID)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	resp := gin.H{"game": g}
	if session, err := h.manager.GetSession(gameID); err == nil {
		resp["state"] = session.StateSnapshot("")
	}

	c.JSON(http.StatusOK, resp)
}

// Leaderboard 排行榜
func (h *OperatorHandler) Leaderboard(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}

	players, err := h.repo.Leaderboard(c.Request.Context(), gameID)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"game_id": gameID,
		"players": players,
	})
}

// ListKills 猎杀记录
func (h *OperatorHandler) ListKills(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}

	kills, err := h.repo.ListKills(c.Request.Context(), gameID)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"game_id": gameID,
		"kills":   kills,
	})
}

// CancelRequest 取消比赛请求
type CancelRequest struct {
	Reason string `json:"reason"`
}

// CancelGame 取消比赛（仅报名/签到阶段）
func (h *OperatorHandler) CancelGame(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}

	var req CancelRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "操作员取消"
	}

	session, err := h.manager.GetSession(gameID)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	if err := session.Cancel(req.Reason); err != nil {
		h.respondAppError(c, err)
		return
	}

	h.log.Info("操作员取消比赛", zap.Uint64("game_id", gameID), zap.String("reason", req.Reason))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StartCheckIn 提前开启签到
func (h *OperatorHandler) StartCheckIn(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}

	session, err := h.manager.GetSession(gameID)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	if err := session.ForceCheckIn(); err != nil {
		h.respondAppError(c, err)
		return
	}

	h.log.Info("操作员提前开启签到", zap.Uint64("game_id", gameID))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RetryTxRequest 重放交易请求
type RetryTxRequest struct {
	Key string `json:"key" binding:"required"`
}

// RetryTx 人工重放失败的链上交易
func (h *OperatorHandler) RetryTx(c *gin.Context) {
	var req RetryTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	if err := h.settler.RetryTx(c.Request.Context(), req.Key); err != nil {
		h.respondAppError(c, err)
		return
	}

	h.log.Info("操作员重放链上交易", zap.String("key", req.Key))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ExpireGame 强制超时结算（超过最大时长仍未结束时）
func (h *OperatorHandler) ExpireGame(c *gin.Context) {
	gameID, ok := h.pathGameID(c)
	if !ok {
		return
	}

	session, err := h.manager.GetSession(gameID)
	if err != nil {
		h.respondAppError(c, err)
		return
	}

	if err := session.ForceExpire(); err != nil {
		h.respondAppError(c, err)
		return
	}

	h.log.Info("操作员触发超时结算", zap.Uint64("game_id", gameID))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// pathGameID 解析路径中的比赛ID
func (h *OperatorHandler) pathGameID(c *gin.Context) (uint64, bool) {
	gameID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "比赛ID无效",
		})
		return 0, false
	}
	return gameID, true
}

// respondAppError 按应用错误码返回HTTP响应
func (h *OperatorHandler) respondAppError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if e, ok := err.(*apperrors.AppError); ok {
		appErr = e
	} else {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	c.JSON(appErr.HTTPStatus(), ErrorResponse{
		Code:    strconv.Itoa(int(appErr.Code)),
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
