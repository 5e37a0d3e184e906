package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/api/handlers"
	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/server"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/telemetry"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/tlsutil"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 持有组装好的应用与 HTTP/Metrics 两个监听器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	registry  *prometheus.Registry
	telemetry *telemetry.Providers
	app       *App
	handler   http.Handler

	api     *server.Endpoint
	metrics *server.Endpoint

	reloader *config.Reloader

	// 限流清理 goroutine 的生命周期
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器；configPath 非空时启用治理策略与路由阈值的热更新
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Init 初始化遥测、执行图、路由与配置热更新，但不监听端口
func (s *Server) Init(ctx context.Context) error {
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		// 遥测不可用不影响服务
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		s.telemetry = providers
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.app, err = buildApp(ctx, s.cfg, s.registry, s.logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	s.handler = s.buildHandler()

	if s.configPath != "" {
		if err := s.startReloader(ctx); err != nil {
			return fmt.Errorf("start config reloader: %w", err)
		}
	}
	return nil
}

// Start 初始化并启动 HTTP 与 Metrics 服务器（非阻塞）
func (s *Server) Start(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	apiOpts := server.OptionsFrom("api", s.cfg.Server, s.cfg.Server.HTTPPort)
	if tlsutil.ServerTLSEnabled(s.cfg.Server) {
		apiOpts.CertFile, apiOpts.KeyFile = s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile
		apiOpts.TLS = tlsutil.ForServer(s.cfg.Server)
	}
	s.api = server.New(s.handler, apiOpts, s.logger)
	if err := s.api.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	if s.cfg.Server.MetricsPort > 0 {
		s.metrics = server.New(s.metricsHandler(),
			server.OptionsFrom("metrics", s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
		if err := s.metrics.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	s.logger.Info("all servers started",
		zap.String("http_addr", s.api.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.reloader != nil),
	)
	return nil
}

// Handler 返回带完整中间件链的 API handler；Init 之后可用
func (s *Server) Handler() http.Handler {
	return s.handler
}

// startReloader 把可热更新的配置段绑定到治理器与路由器
func (s *Server) startReloader(ctx context.Context) error {
	r, err := config.NewReloader(s.configPath, s.cfg, s.logger)
	if err != nil {
		return err
	}
	r.OnGovernance(func(g config.GovernanceConfig) {
		s.app.Governor.UpdatePolicy(governance.NewPolicy(g.Allowlists, g.Thresholds))
	})
	r.OnRouter(func(rc config.RouterConfig) {
		s.app.Router.SetThreshold(rc.ConfidenceThreshold)
	})
	if err := r.Start(ctx); err != nil {
		return err
	}
	s.reloader = r
	return nil
}

// =============================================================================
// 🌐 路由
// =============================================================================

func (s *Server) buildHandler() http.Handler {
	app := s.app
	health := handlers.NewHealthHandler(0, s.logger)
	for _, p := range app.Probes {
		health.Register(p)
	}
	sessions := handlers.NewSessionHandler(app.Engine, s.logger)
	// 未启用认证时没有身份可校验角色
	approverRole := ""
	if s.cfg.Auth.Enabled {
		approverRole = s.cfg.Auth.ApproverRole
	}
	approvals := handlers.NewApprovalHandler(app.Approvals, app.Engine, approverRole, s.logger)
	stream := handlers.NewStreamHandler(app.Hub, app.Engine, s.cfg.Server.CORSAllowedOrigins, s.logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.HandleLive)
	mux.HandleFunc("GET /healthz", health.HandleLive)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", handlers.HandleVersion(handlers.BuildInfo{
		Version: Version, BuildTime: BuildTime, GitCommit: GitCommit,
	}))

	mux.HandleFunc("POST /v1/run", sessions.HandleRun)
	mux.HandleFunc("GET /v1/sessions/{id}", sessions.HandleStatus)
	mux.HandleFunc("GET /v1/sessions/{id}/checkpoints", sessions.HandleCheckpoints)
	mux.HandleFunc("POST /v1/sessions/{id}/cancel", sessions.HandleCancel)
	mux.HandleFunc("POST /v1/sessions/{id}/recover", sessions.HandleRecover)
	mux.HandleFunc("GET /v1/sessions/{id}/events", stream.HandleSSE)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", stream.HandleWebSocket)

	mux.HandleFunc("GET /v1/approvals", approvals.HandleList)
	mux.HandleFunc("GET /v1/approvals/{id}", approvals.HandleGet)
	mux.HandleFunc("POST /v1/approvals/{id}/decide", approvals.HandleDecide)

	// 没有独立的 metrics 端口时挂在主路由上
	if s.cfg.Server.MetricsPort == 0 {
		mux.Handle("GET /metrics", s.metricsHandler())
	}

	middlewares := []Middleware{
		RequestID(),
		Observe(s.logger, app.Metrics, mux),
		Recovery(s.logger),
		SecurityHeaders(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		rlCtx, cancel := context.WithCancel(context.Background())
		s.rateLimiterCancel = cancel
		middlewares = append(middlewares,
			RateLimiter(rlCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	if s.cfg.Auth.Enabled {
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth, s.logger))
	} else {
		s.logger.Warn("authentication disabled, all callers are anonymous")
	}

	return Chain(mux, middlewares...)
}

func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	return mux
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞直到收到 SIGINT/SIGTERM 或服务器异常退出，然后优雅关闭
func (s *Server) WaitForShutdown() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var endpoints []*server.Endpoint
	for _, e := range []*server.Endpoint{s.api, s.metrics} {
		if e != nil {
			endpoints = append(endpoints, e)
		}
	}
	serveErr := server.Serve(ctx, endpoints...)
	return errors.Join(serveErr, s.Shutdown(context.Background()))
}

// Shutdown 按依赖逆序关闭：先停止接收请求，再释放执行图与存储
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("starting graceful shutdown")
	var errs []error

	if s.reloader != nil {
		if err := s.reloader.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("config reloader: %w", err))
		}
	}
	for _, e := range []*server.Endpoint{s.api, s.metrics} {
		if e != nil {
			errs = append(errs, e.Stop(ctx))
		}
	}
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.app != nil {
		if err := s.app.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("graceful shutdown finished with errors", zap.Error(err))
	} else {
		s.logger.Info("graceful shutdown completed")
	}
	return err
}
