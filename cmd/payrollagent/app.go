package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/api/handlers"
	"github.com/FaresOuhachi/HR-Payroll-Agent/approval"
	"github.com/FaresOuhachi/HR-Payroll-Agent/checkpoint"
	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
	"github.com/FaresOuhachi/HR-Payroll-Agent/events"
	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/graph"
	"github.com/FaresOuhachi/HR-Payroll-Agent/guardrails"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/cache"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/database"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/metrics"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/migration"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/telemetry"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/tlsutil"
	"github.com/FaresOuhachi/HR-Payroll-Agent/llm"
	"github.com/FaresOuhachi/HR-Payroll-Agent/payroll"
	"github.com/FaresOuhachi/HR-Payroll-Agent/retrieval"
	"github.com/FaresOuhachi/HR-Payroll-Agent/router"
	"github.com/FaresOuhachi/HR-Payroll-Agent/specialist"
)

// metricsNamespace Prometheus 指标前缀
const metricsNamespace = "payroll"

const (
	// directoryCacheTTL 员工目录缓存时间
	directoryCacheTTL = 5 * time.Minute
	dbStatsInterval   = 30 * time.Second
)

// App 组装好的执行图及其依赖。由 buildApp 创建，Close 按逆序释放资源。
type App struct {
	Engine    *graph.Engine
	Approvals *approval.Workflow
	Governor  *governance.Governor
	Router    *router.Router
	Store     checkpoint.Store
	Hub       *events.Hub
	Metrics   *metrics.Collector
	Probes    []handlers.Probe

	logger  *zap.Logger
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func (a *App) addProbe(name string, ping func(ctx context.Context) error, optional bool) {
	a.Probes = append(a.Probes, handlers.Probe{Name: name, Ping: ping, Optional: optional})
}

// Close 释放所有资源，返回遇到的全部错误
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Error("close component failed", zap.String("component", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// backends 存储后端选择的结果
type backends struct {
	store     checkpoint.Store
	approvals approval.Store
	directory payroll.Directory
	lock      graph.RunLock
}

// buildApp 按配置组装执行图。reg 用于注册指标，测试可传入独立的 registry。
func buildApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (_ *App, err error) {
	app := &App{
		logger:  logger,
		Metrics: metrics.New(reg, metricsNamespace, logger),
	}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	b, err := app.openBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = b.store
	app.addProbe("checkpoint_store", b.store.Ping, false)
	app.onClose("checkpoint_store", b.store.Close)

	// 工具与治理
	registry := governance.NewRegistry(logger)
	svc := payroll.NewService(b.directory, cfg.Engine.ToolTimeout)
	if err := svc.Register(registry); err != nil {
		return nil, fmt.Errorf("register payroll tools: %w", err)
	}
	app.Governor = governance.NewGovernor(registry,
		governance.NewPolicy(cfg.Governance.Allowlists, cfg.Governance.Thresholds), logger)

	departments, err := b.directory.Departments(ctx)
	if err != nil {
		return nil, fmt.Errorf("load departments: %w", err)
	}

	// 模型
	budget := llm.NewTokenBudget(cfg.Engine.TokenizerModel, cfg.Engine.HistoryTokenBudget, logger)
	specs := specialist.NewSet(specialist.Options{
		Generator: llm.NewRuleGenerator(departments),
		Governor:  app.Governor,
		Budget:    budget,
		Logger:    logger,
	})
	app.Router = router.New(llm.NewRuleClassifier(), router.Config{
		Threshold: cfg.Router.ConfidenceThreshold,
		Fallback:  cfg.Router.FallbackSpecialist,
		Known:     specs.Names(),
	}, logger)

	app.Approvals = approval.NewWorkflow(b.approvals, logger)

	emitter, err := app.openEvents(ctx, cfg.Events)
	if err != nil {
		return nil, err
	}

	// OTel 指标使用 telemetry.Init 注册的全局 MeterProvider
	otelMetrics, err := telemetry.NewGraphMetrics(nil)
	if err != nil {
		return nil, fmt.Errorf("create otel graph metrics: %w", err)
	}

	app.Engine, err = graph.New(graph.Options{
		Store:             b.store,
		Router:            app.Router,
		Specialists:       specs,
		Governor:          app.Governor,
		Registry:          registry,
		Approvals:         app.Approvals,
		Retriever:         retrieval.NewHandbook(retrieval.DefaultPolicies(), logger),
		Guard:             guardrails.New(cfg.Guardrails, logger),
		Emitter:           emitter,
		Lock:              b.lock,
		Observer:          graph.MultiObserver(app.Metrics, otelMetrics),
		Config:            cfg.Engine,
		RetainCheckpoints: cfg.Store.RetainCheckpoints,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	logger.Info("execution graph assembled",
		zap.String("store_backend", cfg.Store.Backend),
		zap.Strings("specialists", specs.Names()),
		zap.Strings("departments", departments),
		zap.Bool("audit", cfg.Events.AuditEnabled))
	return app, nil
}

// openBackends 按 store.backend 选择检查点、审批、员工目录与运行锁的实现
func (a *App) openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	switch cfg.Store.Backend {
	case "database":
		return a.openDatabase(ctx, cfg)
	case "redis":
		return a.openRedis(ctx, cfg)
	case "memory", "":
		a.logger.Warn("using in-memory store, sessions will not survive a restart")
		return &backends{
			store:     checkpoint.NewMemoryStore(),
			approvals: approval.NewMemoryStore(),
			directory: payroll.NewMemoryDirectory(payroll.DemoEmployees()),
			lock:      graph.NewMemoryRunLock(),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

func (a *App) openDatabase(ctx context.Context, cfg *config.Config) (*backends, error) {
	// 先跑迁移，模式以迁移文件为准
	m, err := migration.OpenDatabase(cfg.Database, a.logger)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	version, err := m.EnsureLatest(ctx)
	closeErr := m.Close()
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if closeErr != nil {
		a.logger.Warn("close migrator failed", zap.Error(closeErr))
	}
	a.logger.Info("database schema up to date", zap.Uint("version", version))

	db, err := database.Open(cfg.Database, a.logger)
	if err != nil {
		return nil, err
	}
	pool, err := database.NewPool(db, database.LimitsFrom(cfg.Database), dbStatsInterval, a.Metrics, a.logger)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	a.onClose("database", pool.Close)
	a.addProbe("database", pool.Ping, false)

	dir := payroll.NewGormDirectory(db, a.logger)
	if cfg.Database.SeedDemoData {
		// 已存在的行保持不变
		if err := dir.Seed(ctx, payroll.DemoEmployees()); err != nil {
			return nil, err
		}
	}

	// 跨进程锁只能用 Redis；单库部署下用进程内锁
	return &backends{
		store:     checkpoint.NewGormStore(db, a.logger),
		approvals: approval.NewGormStore(db, a.logger),
		directory: dir,
		lock:      graph.NewMemoryRunLock(),
	}, nil
}

func (a *App) openRedis(ctx context.Context, cfg *config.Config) (*backends, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		TLSConfig:    tlsutil.ForRedis(cfg.Redis),
	})
	a.onClose("redis", client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	a.addProbe("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() }, false)

	dirCache := cache.NewStore(client, cache.Options{
		KeyPrefix:  cfg.Store.KeyPrefix + "cache:",
		DefaultTTL: directoryCacheTTL,
		Jitter:     0.1,
	}, a.logger)
	a.onClose("cache", dirCache.Close)
	// 目录数据随进程加载，上一个进程留下的条目可能已过期
	if _, err := dirCache.Purge(ctx); err != nil {
		a.logger.Warn("purge directory cache failed", zap.Error(err))
	}

	inner := payroll.NewMemoryDirectory(payroll.DemoEmployees())
	return &backends{
		store:     checkpoint.NewRedisStore(client, cfg.Store.KeyPrefix, a.logger),
		approvals: approval.NewMemoryStore(),
		directory: cache.NewDirectory(inner, dirCache, directoryCacheTTL, a.Metrics),
		lock:      graph.NewRedisRunLock(client, cfg.Store.KeyPrefix, cfg.Store.LockTTL, a.logger),
	}, nil
}

// openEvents 建立事件扇出：SSE/WebSocket hub 总是启用，审计开启时追加 MongoDB
func (a *App) openEvents(ctx context.Context, cfg config.EventsConfig) (events.Emitter, error) {
	a.Hub = events.NewHub(cfg.BufferSize, a.logger)
	if !cfg.AuditEnabled {
		return a.Hub, nil
	}

	client, coll, err := events.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	if err != nil {
		return nil, fmt.Errorf("connect audit store: %w", err)
	}
	a.onClose("mongo", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Disconnect(ctx)
	})
	// 审计落库失败不阻塞审批流程
	a.addProbe("mongo", func(ctx context.Context) error { return client.Ping(ctx, nil) }, true)

	sink := events.NewMongoSink(coll, cfg.BufferSize, a.logger)
	a.onClose("audit_sink", sink.Close)
	return events.NewMultiEmitter(a.logger, a.Hub, sink), nil
}
