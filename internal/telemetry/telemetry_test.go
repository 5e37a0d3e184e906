package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

// saveAndRestoreGlobalProviders 测试结束后还原全局 Provider
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	tp, mp, prop := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInit_DisabledKeepsGlobals(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	before := otel.GetTracerProvider()

	core, logs := observer.New(zap.InfoLevel)
	p, err := Init(config.TelemetryConfig{Enabled: false, OTLPEndpoint: "collector:4317"}, zap.New(core))
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Same(t, before, otel.GetTracerProvider())
	assert.Equal(t, 1, logs.FilterMessage("telemetry disabled").Len())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_EnabledRegistersSDK(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	// exporter 惰性连接，没有收集器也能创建
	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "127.0.0.1:4317",
		SampleRate:   0.25,
		Insecure:     true,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.True(t, p.Enabled())
	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	assert.IsType(t, &sdkmetric.MeterProvider{}, otel.GetMeterProvider())
	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}

func TestProviders_ShutdownIsIdempotent(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	var nilProviders *Providers
	assert.NoError(t, nilProviders.Shutdown(context.Background()))

	p, err := Init(config.TelemetryConfig{Enabled: true, OTLPEndpoint: "127.0.0.1:4317", Insecure: true}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// 没有收集器时 flush 可能报错，这里只关心第二次调用
	_ = p.Shutdown(ctx)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(ctx))
}

func TestModuleVersion(t *testing.T) {
	assert.Equal(t, "dev", moduleVersion())
}

func TestClampRate(t *testing.T) {
	for in, want := range map[float64]float64{-0.5: 0, 0: 0, 0.25: 0.25, 1: 1, 3: 1} {
		assert.Equal(t, want, clampRate(in), "rate %v", in)
	}
}
