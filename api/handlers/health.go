package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 就绪状态
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Probe 一个依赖的就绪探针。Optional 探针失败只把状态降为 degraded，仍返回 200。
type Probe struct {
	Name     string
	Ping     func(ctx context.Context) error
	Optional bool
}

// HealthReport /health 与 /ready 的响应体
type HealthReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]ProbeResult `json:"checks,omitempty"`
}

// ProbeResult 单个探针结果
type ProbeResult struct {
	Status    string `json:"status"` // pass | fail
	Optional  bool   `json:"optional,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// BuildInfo /version 的内容
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// HealthHandler 存活与就绪探针
type HealthHandler struct {
	logger  *zap.Logger
	timeout time.Duration
	started time.Time

	mu     sync.RWMutex
	probes []Probe
}

// NewHealthHandler 创建处理器；每次就绪检查整体超时 timeout，<=0 时为 5s
func NewHealthHandler(timeout time.Duration, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("handler", "health")),
		timeout: timeout,
		started: time.Now(),
	}
}

// Register 追加探针，同名探针会被替换
func (h *HealthHandler) Register(p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.probes {
		if h.probes[i].Name == p.Name {
			h.probes[i] = p
			return
		}
	}
	h.probes = append(h.probes, p)
}

// HandleLive 存活探针，只说明进程在处理请求
func (h *HealthHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthReport{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	})
}

// HandleReady 并发执行全部探针。任一必需探针失败返回 503。
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate(r.Context())
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, report)
}

// Evaluate 执行探针并汇总
func (h *HealthHandler) Evaluate(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	probes := append([]Probe(nil), h.probes...)
	h.mu.RUnlock()

	results := make([]ProbeResult, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			results[i] = h.run(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	report := HealthReport{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]ProbeResult, len(probes)),
	}
	for i, p := range probes {
		res := results[i]
		report.Checks[p.Name] = res
		if res.Status == "pass" {
			continue
		}
		if p.Optional {
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		} else {
			report.Status = StatusUnhealthy
		}
	}
	return report
}

func (h *HealthHandler) run(ctx context.Context, p Probe) ProbeResult {
	start := time.Now()
	err := p.Ping(ctx)
	elapsed := time.Since(start)

	res := ProbeResult{Status: "pass", Optional: p.Optional, LatencyMS: elapsed.Milliseconds()}
	if err != nil {
		res.Status = "fail"
		res.Error = err.Error()
		h.logger.Warn("readiness probe failed",
			zap.String("probe", p.Name),
			zap.Bool("optional", p.Optional),
			zap.Duration("latency", elapsed),
			zap.Error(err),
		)
	}
	return res
}

// HandleVersion 返回构建信息
func HandleVersion(info BuildInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}
