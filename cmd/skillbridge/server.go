package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/BaSui01/skillbridge/agent/credentials"
	"github.com/BaSui01/skillbridge/agent/dispatch"
	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/agent/state"
	"github.com/BaSui01/skillbridge/agent/transport"
	"github.com/BaSui01/skillbridge/api/handlers"
	"github.com/BaSui01/skillbridge/config"
	"github.com/BaSui01/skillbridge/internal/cache"
	"github.com/BaSui01/skillbridge/internal/database"
	"github.com/BaSui01/skillbridge/internal/metrics"
	"github.com/BaSui01/skillbridge/internal/server"
	"github.com/BaSui01/skillbridge/internal/telemetry"
	"github.com/BaSui01/skillbridge/internal/tlsutil"
	"github.com/BaSui01/skillbridge/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// purgeInterval 数据库状态过期清理周期
const purgeInterval = 10 * time.Minute

// evictInterval 空闲技能连接回收检查周期
const evictInterval = time.Minute

// skipAuthPaths 不需要鉴权的端点
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 SkillBridge 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// 调度核心
	registry    *skills.Registry
	watcher     *skills.Watcher
	pool        *transport.Pool
	store       dispatch.Store
	storeCloser io.Closer
	dispatcher  *dispatch.Dispatcher

	// Handlers
	healthHandler   *handlers.HealthHandler
	activityHandler *handlers.ActivityHandler
	skillHandler    *handlers.SkillHandler

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 指标收集器
	metricsCollector *metrics.Collector

	// 后台任务（限流清理、状态过期清理）生命周期
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// 1. 指标收集器
	s.metricsCollector = metrics.NewCollector("skillbridge", s.logger)

	// 2. 技能清单
	s.registry = skills.NewRegistry(s.logger)
	if err := loadSkills(s.registry, s.cfg.Skills); err != nil {
		return fmt.Errorf("failed to load skills: %w", err)
	}
	if s.cfg.Skills.Watch {
		s.watcher = skills.NewWatcher(s.registry, s.cfg.Skills.ManifestDir, s.cfg.Skills.ManifestFiles,
			skills.WithPollInterval(s.cfg.Skills.WatchInterval),
			skills.WithWatcherLogger(s.logger),
		)
		if err := s.watcher.Start(bgCtx); err != nil {
			return fmt.Errorf("failed to watch skills: %w", err)
		}
	}

	// 3. 调度器（凭据、传输、状态存储）
	if err := s.initDispatcher(bgCtx); err != nil {
		return fmt.Errorf("failed to init dispatcher: %w", err)
	}

	// 4. Handlers
	s.initHandlers()

	// 5. HTTP 服务器
	if err := s.startHTTPServer(bgCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Int("skills", s.registry.Len()),
		zap.String("state_backend", s.cfg.State.Backend),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initDispatcher 组装凭据提供者、传输连接池、状态存储与调度器
func (s *Server) initDispatcher(ctx context.Context) error {
	creds, err := newCredentialProvider(s.cfg.Host, s.logger)
	if err != nil {
		return err
	}

	s.pool = transport.NewPool(creds, transport.Options{
		DialTimeout:  s.cfg.Transport.DialTimeout,
		HTTPClient:   tlsutil.WebSocketClient(s.cfg.Transport.DialTimeout),
		WriteTimeout: s.cfg.Transport.WriteTimeout,
		ReadLimit:    s.cfg.Transport.ReadLimit,
		Observer:     s.metricsCollector,
		OnUnsolicited: func(_ context.Context, a *types.Activity) error {
			s.logger.Info("dropping unsolicited skill activity",
				zap.String("conversation_id", a.Conversation.ID),
				zap.String("type", string(a.Type)),
			)
			return nil
		},
	}, s.cfg.Transport.ForwardRPS, s.cfg.Transport.ForwardBurst, s.logger)

	if s.cfg.Transport.IdleTimeout > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pool.RunEviction(ctx, evictInterval, s.cfg.Transport.IdleTimeout)
		}()
	}

	s.store, s.storeCloser, err = state.New(s.cfg, s.metricsCollector, s.logger)
	if err != nil {
		return err
	}
	if gs, ok := s.store.(*state.GormStore); ok {
		s.wg.Add(1)
		go s.purgeLoop(ctx, gs)
	}

	deps := dispatch.Collaborators{
		Store:    s.store,
		Auth:     &dispatch.SurfaceAuthPrompt{Prompt: s.cfg.Dispatch.SignInPromptText},
		Confirm:  dispatch.NewYesNoPrompt(s.cfg.Dispatch.ConfirmMaxRetries),
		Recorder: s.metricsCollector,
		Registry: s.registry,
	}
	if len(s.cfg.Skills.Keywords) > 0 {
		deps.Recognizer = dispatch.NewKeywordRecognizer(s.cfg.Skills.Keywords)
	}

	s.dispatcher = dispatch.NewDispatcher(s.registry, dispatch.FromPool(s.pool), deps, dispatch.Options{
		Dialog: dispatch.DialogOptions{
			SkillSwitchConfirmation: s.cfg.Dispatch.SkillSwitchConfirmation,
			MaxCallbackHops:         s.cfg.Dispatch.MaxCallbackHops,
			SwitchPromptTemplate:    s.cfg.Dispatch.SwitchPromptTemplate,
		},
		GenericErrorText: s.cfg.Dispatch.GenericErrorText,
	}, s.logger)
	return nil
}

// newCredentialProvider 由宿主身份配置创建 JWT 提供者，私钥文件优先于共享密钥
func newCredentialProvider(host config.HostConfig, logger *zap.Logger) (*credentials.JWTProvider, error) {
	cc := credentials.Config{
		AppID:       host.AppID,
		Secret:      host.Secret,
		TTL:         host.TokenTTL,
		RefreshSkew: host.TokenRefreshSkew,
	}
	if host.PrivateKeyFile != "" {
		pem, err := os.ReadFile(host.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read host private key: %w", err)
		}
		cc.PrivateKeyPEM = string(pem)
	}
	return credentials.NewJWTProvider(cc, logger)
}

// purgeLoop 定期删除过期的会话状态行
func (s *Server) purgeLoop(ctx context.Context, gs *state.GormStore) {
	defer s.wg.Done()
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := gs.PurgeExpired(ctx); err != nil {
				s.logger.Warn("purge expired state failed", zap.Error(err))
			}
		}
	}
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	var ping func(context.Context) error
	switch c := s.storeCloser.(type) {
	case *cache.Manager:
		ping = c.Ping
	case *database.PoolManager:
		ping = c.Ping
	}
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.Register(
		handlers.NewSkillsCheck(s.registry.List),
		handlers.NewTransportCheck(s.pool.Len),
		handlers.NewStateCheck(s.cfg.State.Backend, ping),
	)

	s.activityHandler = handlers.NewActivityHandler(s.dispatcher, s.logger)
	s.skillHandler = handlers.NewSkillHandler(s.registry, s.logger)
	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 挂载全部端点
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleLive)
	mux.HandleFunc("/healthz", s.healthHandler.HandleLive)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	s.activityHandler.Register(mux)
	s.skillHandler.Register(mux)
	return mux
}

// startHTTPServer 构建中间件链并启动 API 服务器
func (s *Server) startHTTPServer(ctx context.Context) error {
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger))
	}
	if s.cfg.Server.JWT.Enabled() {
		verifier, err := newVerifier(s.cfg.Server.JWT)
		if err != nil {
			return err
		}
		middlewares = append(middlewares, JWTAuth(verifier, skipAuthPaths, s.logger))
	}
	handler := Chain(s.routes(), middlewares...)

	s.httpManager = server.NewManager("api", handler, server.ConfigFrom(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}
	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// newVerifier 由入站 JWT 配置创建校验器
func newVerifier(cfg config.JWTConfig) (*credentials.Verifier, error) {
	var publicKey string
	if cfg.PublicKeyFile != "" {
		pem, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read JWT public key: %w", err)
		}
		publicKey = string(pem)
	}
	return credentials.NewVerifier(cfg.Issuer, cfg.Audience, cfg.Secret, publicKey)
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	cfg := server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort)
	cfg.TLSCertFile, cfg.TLSKeyFile = "", ""
	s.metricsManager = server.NewManager("metrics", mux, cfg, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}
	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		if err := s.httpManager.Wait(context.Background()); err != nil {
			s.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务，存储在技能连接断开之后关闭
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")
	ctx := context.Background()

	if s.bgCancel != nil {
		s.bgCancel()
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Skill connection pool shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	if s.storeCloser != nil {
		if err := s.storeCloser.Close(); err != nil {
			s.logger.Error("State store shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.otel.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
