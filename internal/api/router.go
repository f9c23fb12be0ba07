package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/hunt-game/internal/config"
	"github.com/wfunc/hunt-game/internal/game"
	"github.com/wfunc/hunt-game/internal/middleware"
	"github.com/wfunc/hunt-game/internal/repository"
	"github.com/wfunc/hunt-game/internal/utils"
	"github.com/wfunc/hunt-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine          *gin.Engine
	db              *gorm.DB
	operatorHandler *OperatorHandler
	wsHandler       *websocket.GameHandler
	authMiddleware  *middleware.AuthMiddleware
	wsPath          string
	log             *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cfg *config.Config, manager *game.Manager, repo *repository.Repository, settler Settler, wsHandler *websocket.GameHandler, log *zap.Logger) *Router {
	if cfg.Server.Mode == "release" || cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	jwtManager := utils.NewJWTManager(cfg.Security.JWT.Secret,
		time.Duration(cfg.Security.JWT.ExpireHours)*time.Hour)

	operatorHandler := NewOperatorHandler(&cfg.Security, jwtManager, manager, repo, settler, log)
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)

	router := &Router{
		engine:          engine,
		db:              repo.DB(),
		operatorHandler: operatorHandler,
		wsHandler:       wsHandler,
		authMiddleware:  authMiddleware,
		wsPath:          cfg.WebSocket.Path,
		log:             log,
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 玩家/观众WebSocket入口，身份在连接内通过签名认证
	r.engine.GET(r.wsPath, r.wsHandler.ServeWS)

	v1 := r.engine.Group("/api/v1")
	{
		// 认证相关路由（不需要认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", r.operatorHandler.Login)
		}

		// 公开查询路由
		games := v1.Group("/games")
		{
			games.GET("", r.operatorHandler.ListGames)
			games.GET("/:id", r.operatorHandler.GetGame)
			games.GET("/:id/leaderboard", r.operatorHandler.Leaderboard)
		}

		// 操作员路由（需要操作员权限）
		operator := v1.Group("/operator")
		operator.Use(r.authMiddleware.RequireRole("operator"))
		{
			operator.POST("/games", r.operatorHandler.CreateGame)
			operator.GET("/games/:id/kills", r.operatorHandler.ListKills)
			operator.POST("/games/:id/start", r.operatorHandler.StartCheckIn)
			operator.POST("/games/:id/cancel", r.operatorHandler.CancelGame)
			operator.POST("/games/:id/expire", r.operatorHandler.ExpireGame)
			operator.POST("/txs/retry", r.operatorHandler.RetryTx)
		}
	}

	// 404处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库连接失败",
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(500, gin.H{
			"status":  "unhealthy",
			"message": "数据库ping失败",
		})
		return
	}

	c.JSON(200, gin.H{
		"status":  "healthy",
		"message": "服务运行正常",
	})
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
