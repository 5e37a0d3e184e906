package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/FaresOuhachi/HR-Payroll-Agent/graph"

// GraphMetrics 把执行图的观测数据记录为 OTel 指标，经 OTLP 导出。
// 与 Prometheus Collector 并行工作；遥测关闭时全局 MeterProvider 为 noop。
type GraphMetrics struct {
	transitions     metric.Int64Counter
	runs            metric.Int64Counter
	runDuration     metric.Float64Histogram
	governance      metric.Int64Counter
	approvals       metric.Int64Counter
	checkpointWrite metric.Float64Histogram
	toolDuration    metric.Float64Histogram
}

// NewGraphMetrics 创建指标；mp 为 nil 时使用全局 MeterProvider
func NewGraphMetrics(mp metric.MeterProvider) (*GraphMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	m := &GraphMetrics{}
	var err error

	if m.transitions, err = meter.Int64Counter("payroll.graph.transitions",
		metric.WithDescription("Checkpointed node transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if m.runs, err = meter.Int64Counter("payroll.graph.runs",
		metric.WithDescription("Engine runs by outcome"),
		metric.WithUnit("{run}")); err != nil {
		return nil, err
	}
	if m.runDuration, err = meter.Float64Histogram("payroll.graph.run.duration",
		metric.WithDescription("Engine run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30)); err != nil {
		return nil, err
	}
	if m.governance, err = meter.Int64Counter("payroll.governance.decisions",
		metric.WithDescription("Governance verdicts"),
		metric.WithUnit("{decision}")); err != nil {
		return nil, err
	}
	if m.approvals, err = meter.Int64Counter("payroll.approvals",
		metric.WithDescription("Resolved approvals by status"),
		metric.WithUnit("{approval}")); err != nil {
		return nil, err
	}
	if m.checkpointWrite, err = meter.Float64Histogram("payroll.checkpoint.write.duration",
		metric.WithDescription("Checkpoint write duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1)); err != nil {
		return nil, err
	}
	if m.toolDuration, err = meter.Float64Histogram("payroll.tool.duration",
		metric.WithDescription("Tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1, 5, 10)); err != nil {
		return nil, err
	}
	return m, nil
}

// 观测回调没有请求上下文，统一使用 Background
func (m *GraphMetrics) ObserveTransition(from, to string) {
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *GraphMetrics) ObserveRun(outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(context.Background(), 1, attrs)
	m.runDuration.Record(context.Background(), d.Seconds(), attrs)
}

func (m *GraphMetrics) ObserveGovernance(verdict string) {
	m.governance.Add(context.Background(), 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

func (m *GraphMetrics) ObserveApproval(status string) {
	m.approvals.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *GraphMetrics) ObserveCheckpointWrite(d time.Duration, err error) {
	m.checkpointWrite.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(attribute.Bool("error", err != nil)))
}

func (m *GraphMetrics) ObserveToolExecution(tool, status string, d time.Duration) {
	m.toolDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
}
