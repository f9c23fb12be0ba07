package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wfunc/hunt-game/internal/api"
	"github.com/wfunc/hunt-game/internal/auth"
	"github.com/wfunc/hunt-game/internal/chain"
	"github.com/wfunc/hunt-game/internal/config"
	"github.com/wfunc/hunt-game/internal/database"
	"github.com/wfunc/hunt-game/internal/errors"
	"github.com/wfunc/hunt-game/internal/game"
	"github.com/wfunc/hunt-game/internal/logger"
	"github.com/wfunc/hunt-game/internal/repository"
	"github.com/wfunc/hunt-game/internal/websocket"
	"go.uber.org/zap"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	repo       *repository.Repository
	dispatcher *chain.Dispatcher
	manager    *game.Manager
	hub        *websocket.Hub
	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("hunt-game-server %s (build: %s, commit: %s)\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:    cfg,
		logger: logger.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动猎杀赛协调服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initDatabase(); err != nil {
		return err
	}

	s.repo = repository.NewRepository(database.GetDB())

	// 链上结算
	bridge, err := chain.NewClient(&s.cfg.Chain)
	if err != nil {
		return err
	}
	s.dispatcher = chain.NewDispatcher(&s.cfg.Chain, bridge, s.repo)
	if err := s.dispatcher.Start(s.ctx); err != nil {
		return err
	}

	// 比赛会话
	s.hub = websocket.NewHub()
	s.manager = game.NewManager(&s.cfg.Game, s.hub, s.dispatcher, s.repo)
	if err := s.manager.Recover(s.ctx); err != nil {
		return errors.Wrap(err, errors.ErrUnknown, "恢复进行中比赛失败")
	}

	// WebSocket
	verifier := auth.NewVerifier(s.cfg.Security.MessagePrefix, s.cfg.Security.MessageFreshness)
	wsHandler := websocket.NewGameHandler(s.hub, s.manager, verifier)
	go s.hub.Run()

	// HTTP
	router := api.NewRouter(s.cfg, s.manager, s.repo, s.dispatcher, wsHandler, s.logger)
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router.GetEngine(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务器异常退出", zap.Error(err))
		}
	}()

	s.logger.Info("服务器启动成功",
		zap.String("http", addr),
		zap.String("websocket", s.cfg.WebSocket.Path),
	)

	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return errors.Wrap(err, errors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return errors.Wrap(err, errors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return errors.New(errors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接收新请求
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务器关闭超时", zap.Error(err))
		}
	}

	// 停止比赛主循环并落盘
	if s.manager != nil {
		s.manager.Shutdown()
	}

	// 停止链上提交队列
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}

	// 断开所有WebSocket连接
	if s.hub != nil {
		s.hub.Stop()
	}

	s.cancel()

	if err := database.Close(); err != nil {
		s.logger.Error("关闭数据库失败", zap.Error(err))
	}

	logger.Cleanup()

	return nil
}
