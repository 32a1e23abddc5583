package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/careerflow/config"
)

// restoreGlobals Init 会替换全局 provider，测试结束后还原.
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, mp, prop := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabledConfig() config.TelemetryConfig {
	cfg := config.DefaultTelemetryConfig()
	cfg.Enabled = true
	cfg.ServiceName = "careerflow-test"
	cfg.Environment = "test"
	cfg.SampleRate = 1
	return cfg
}

func TestInit_DisabledKeepsGlobals(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	p, err := Init(config.TelemetryConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Equal(t, before, otel.GetTracerProvider())
	assert.Equal(t, otel.GetTracerProvider(), p.TracerProvider())
	assert.Equal(t, otel.GetMeterProvider(), p.MeterProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_RejectsSampleRate(t *testing.T) {
	restoreGlobals(t)
	for _, rate := range []float64{-0.1, 1.5} {
		cfg := enabledConfig()
		cfg.SampleRate = rate
		_, err := Init(cfg, nil)
		assert.ErrorContains(t, err, "sample rate", rate)
	}
}

func TestInit_ExportsSpansWithResource(t *testing.T) {
	restoreGlobals(t)
	spans := tracetest.NewInMemoryExporter()

	p, err := Init(enabledConfig(), zaptest.NewLogger(t),
		WithSpanExporter(spans),
		WithMetricReader(sdkmetric.NewManualReader()))
	require.NoError(t, err)
	require.True(t, p.Enabled())
	assert.Same(t, p.tp, otel.GetTracerProvider())

	_, span := otel.Tracer("test").Start(context.Background(), "session.turn")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	got := spans.GetSpans()
	require.Len(t, got, 1)
	assert.Equal(t, "session.turn", got[0].Name)

	attrs := got[0].Resource.Set()
	name, ok := attrs.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "careerflow-test", name.AsString())
	env, ok := attrs.Value(semconv.DeploymentEnvironmentKey)
	require.True(t, ok)
	assert.Equal(t, "test", env.AsString())
}

func TestInit_CollectsMetrics(t *testing.T) {
	restoreGlobals(t)
	reader := sdkmetric.NewManualReader()

	p, err := Init(enabledConfig(), nil,
		WithSpanExporter(tracetest.NewInMemoryExporter()),
		WithMetricReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	counter, err := p.MeterProvider().Meter("test").Int64Counter("session.started")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.EqualValues(t, 2, sum.DataPoints[0].Value)
}

func TestProviders_NilSafe(t *testing.T) {
	var p *Providers
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NotNil(t, p.TracerProvider())
	assert.NotNil(t, p.MeterProvider())
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制的 Main.Version 为 "(devel)"
	assert.Equal(t, "dev", buildVersion())
}
