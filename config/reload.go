package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reloader 在配置文件变化时重新加载，只把可热更新的部分（治理策略、路由阈值）
// 推送给订阅者；其余字段的变化记录日志，需要重启生效。
type Reloader struct {
	path     string
	opts     []Option
	debounce time.Duration
	logger   *zap.Logger

	mu         sync.Mutex
	current    *Config
	governance []func(GovernanceConfig)
	router     []func(RouterConfig)
	watch      *fileWatch
}

type ReloadOption func(*Reloader)

// WithDebounce 文件事件合并间隔，默认 200ms
func WithDebounce(d time.Duration) ReloadOption {
	return func(r *Reloader) {
		if d > 0 {
			r.debounce = d
		}
	}
}

// NewReloader initial 是启动时加载的配置，文件变化前 Current 返回它
func NewReloader(path string, initial *Config, logger *zap.Logger, opts ...ReloadOption) (*Reloader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}
	r := &Reloader{
		path:     abs,
		opts:     []Option{WithFile(abs), WithValidation()},
		debounce: 200 * time.Millisecond,
		logger:   logger.With(zap.String("component", "config_reloader")),
		current:  initial,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// OnGovernance 订阅治理策略变化
func (r *Reloader) OnGovernance(fn func(GovernanceConfig)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.governance = append(r.governance, fn)
}

// OnRouter 订阅路由配置变化
func (r *Reloader) OnRouter(fn func(RouterConfig)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.router = append(r.router, fn)
}

// Current 返回最近一次成功加载的配置
func (r *Reloader) Current() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Start 监听配置文件，直到 ctx 结束或 Stop
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watch != nil {
		return errors.New("config reloader already started")
	}
	w, err := startFileWatch(ctx, r.path, r.debounce, r.logger, r.fileChanged)
	if err != nil {
		return err
	}
	r.watch = w
	r.logger.Info("watching config file", zap.String("path", r.path), zap.Duration("debounce", r.debounce))
	return nil
}

func (r *Reloader) Stop() error {
	r.mu.Lock()
	w := r.watch
	r.watch = nil
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.stop()
}

func (r *Reloader) fileChanged(removed bool) {
	if removed {
		r.logger.Warn("config file removed, keeping current configuration", zap.String("path", r.path))
		return
	}
	if _, err := r.Reload(); err != nil {
		r.logger.Error("config reload failed, keeping current configuration", zap.Error(err))
	}
}

// Reload 立即重新加载并通知订阅者，返回发生变化的可热更新段
func (r *Reloader) Reload() ([]string, error) {
	next, err := Load(r.opts...)
	if err != nil {
		return nil, fmt.Errorf("reload config: %w", err)
	}

	r.mu.Lock()
	prev := r.current
	r.current = next
	govSubs := append([]func(GovernanceConfig){}, r.governance...)
	routerSubs := append([]func(RouterConfig){}, r.router...)
	r.mu.Unlock()

	var changed []string
	if prev == nil || !reflect.DeepEqual(prev.Governance, next.Governance) {
		changed = append(changed, "governance")
		for _, fn := range govSubs {
			fn(next.Governance)
		}
	}
	if prev == nil || !reflect.DeepEqual(prev.Router, next.Router) {
		changed = append(changed, "router")
		for _, fn := range routerSubs {
			fn(next.Router)
		}
	}
	if prev != nil {
		for _, section := range restartSections(prev, next) {
			r.logger.Warn("config section changed, restart required", zap.String("section", section))
		}
	}

	r.logger.Info("configuration reloaded", zap.Strings("applied", changed))
	return changed, nil
}

func restartSections(prev, next *Config) []string {
	var out []string
	pairs := []struct {
		name string
		a, b any
	}{
		{"server", prev.Server, next.Server},
		{"engine", prev.Engine, next.Engine},
		{"store", prev.Store, next.Store},
		{"redis", prev.Redis, next.Redis},
		{"database", prev.Database, next.Database},
		{"events", prev.Events, next.Events},
		{"guardrails", prev.Guardrails, next.Guardrails},
		{"auth", prev.Auth, next.Auth},
		{"log", prev.Log, next.Log},
		{"telemetry", prev.Telemetry, next.Telemetry},
	}
	for _, p := range pairs {
		if !reflect.DeepEqual(p.a, p.b) {
			out = append(out, p.name)
		}
	}
	return out
}
