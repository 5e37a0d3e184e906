package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	httpBuckets  = prometheus.DefBuckets
	sizeBuckets  = prometheus.ExponentialBuckets(128, 8, 7)
	runBuckets   = []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}
	writeBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
	toolBuckets  = []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}
)

// Collector 持有服务的全部 Prometheus 指标，并实现 graph.Observer、
// cache.HitRecorder 与 database.StatsRecorder。
type Collector struct {
	httpRequests *prometheus.CounterVec   // method, path, class
	httpLatency  *prometheus.HistogramVec // method, path
	httpBytes    *prometheus.HistogramVec // method, path, direction

	transitions *prometheus.CounterVec   // from, to
	runs        *prometheus.CounterVec   // outcome
	runLatency  *prometheus.HistogramVec // outcome
	verdicts    *prometheus.CounterVec   // verdict
	approvals   *prometheus.CounterVec   // status

	cpWrites      prometheus.Histogram
	cpWriteErrors prometheus.Counter

	toolCalls   *prometheus.CounterVec   // tool, status
	toolLatency *prometheus.HistogramVec // tool

	cacheLookups *prometheus.CounterVec // cache, result
	dbConns      *prometheus.GaugeVec   // database, state
}

type builder struct {
	f  promauto.Factory
	ns string
}

func (b builder) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return b.f.NewCounterVec(prometheus.CounterOpts{Namespace: b.ns, Name: name, Help: help}, labels)
}

func (b builder) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return b.f.NewHistogramVec(prometheus.HistogramOpts{Namespace: b.ns, Name: name, Help: help, Buckets: buckets}, labels)
}

// New 把指标注册到 reg。同一 registry 上重复调用会 panic。
func New(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	b := builder{f: promauto.With(reg), ns: namespace}
	c := &Collector{
		httpRequests: b.counter("http_requests_total", "HTTP requests by method, route and status class", "method", "path", "status"),
		httpLatency:  b.histogram("http_request_duration_seconds", "HTTP request latency", httpBuckets, "method", "path"),
		httpBytes:    b.histogram("http_body_bytes", "HTTP body sizes", sizeBuckets, "method", "path", "direction"),

		transitions: b.counter("graph_transitions_total", "Checkpointed node transitions", "from_node", "to_node"),
		runs:        b.counter("graph_runs_total", "Engine runs by outcome", "outcome"),
		runLatency:  b.histogram("graph_run_duration_seconds", "Time from start or resume to a terminal or suspended node", runBuckets, "outcome"),
		verdicts:    b.counter("governance_decisions_total", "Tool governance verdicts", "verdict"),
		approvals:   b.counter("approvals_resolved_total", "Resolved approvals by status", "status"),

		cpWrites: b.f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "checkpoint_write_duration_seconds",
			Help: "Checkpoint write latency, failed writes included", Buckets: writeBuckets,
		}),
		cpWriteErrors: b.f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkpoint_write_failures_total",
			Help: "Checkpoint writes that did not persist",
		}),

		toolCalls:   b.counter("tool_executions_total", "Tool executions by result", "tool", "status"),
		toolLatency: b.histogram("tool_execution_duration_seconds", "Tool execution latency", toolBuckets, "tool"),

		cacheLookups: b.counter("cache_lookups_total", "Directory cache lookups by result", "cache", "result"),
		dbConns: b.f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "db_connections",
			Help: "Database pool connections by state",
		}, []string{"database", "state"}),
	}
	if logger != nil {
		logger.Debug("prometheus collectors registered", zap.String("namespace", namespace))
	}
	return c
}

// RecordHTTPRequest path 应已归一化，避免动态段产生大量序列
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration, reqBytes, respBytes int64) {
	c.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpLatency.WithLabelValues(method, path).Observe(d.Seconds())
	c.httpBytes.WithLabelValues(method, path, "in").Observe(float64(reqBytes))
	c.httpBytes.WithLabelValues(method, path, "out").Observe(float64(respBytes))
}

func (c *Collector) ObserveTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) ObserveRun(outcome string, d time.Duration) {
	c.runs.WithLabelValues(outcome).Inc()
	c.runLatency.WithLabelValues(outcome).Observe(d.Seconds())
}

func (c *Collector) ObserveGovernance(verdict string) {
	c.verdicts.WithLabelValues(verdict).Inc()
}

func (c *Collector) ObserveApproval(status string) {
	c.approvals.WithLabelValues(status).Inc()
}

func (c *Collector) ObserveCheckpointWrite(d time.Duration, err error) {
	c.cpWrites.Observe(d.Seconds())
	if err != nil {
		c.cpWriteErrors.Inc()
	}
}

func (c *Collector) ObserveToolExecution(tool, status string, d time.Duration) {
	c.toolCalls.WithLabelValues(tool, status).Inc()
	c.toolLatency.WithLabelValues(tool).Observe(d.Seconds())
}

func (c *Collector) RecordCacheHit(cache string)  { c.cacheLookups.WithLabelValues(cache, "hit").Inc() }
func (c *Collector) RecordCacheMiss(cache string) { c.cacheLookups.WithLabelValues(cache, "miss").Inc() }

// RecordDBConnections in_use 由 open - idle 得出
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConns.WithLabelValues(database, "open").Set(float64(open))
	c.dbConns.WithLabelValues(database, "idle").Set(float64(idle))
	c.dbConns.WithLabelValues(database, "in_use").Set(float64(open - idle))
}

// statusClass 200 -> "2xx"；1xx 与非法值归为 unknown
func statusClass(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
