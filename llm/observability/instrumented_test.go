package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/BaSui01/careerflow/llm"
)

type stubProvider struct {
	resp *llm.ChatResponse
	err  error
}

func (s *stubProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return s.resp, s.err
}

func (s *stubProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (s *stubProvider) Name() string { return "azure_openai" }

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.SpanRecorder) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	recorder := tracetest.NewSpanRecorder()
	m, err := NewMetrics(
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
		WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))),
	)
	require.NoError(t, err)
	return m, reader, recorder
}

func sumInt64(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestInstrumentedProvider_Success(t *testing.T) {
	m, reader, recorder := newTestMetrics(t)
	costs := NewCostTracker(NewCostCalculator())
	inner := &stubProvider{resp: &llm.ChatResponse{
		Model: "gpt-4o-2024-08-06",
		Usage: llm.ChatUsage{PromptTokens: 1000, CompletionTokens: 100, TotalTokens: 1100},
	}}
	p := NewInstrumentedProvider(inner, "SkillAgent", m, costs, nil)
	assert.Equal(t, "azure_openai", p.Name())

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{TraceID: "s-1"})
	require.NoError(t, err)
	assert.InDelta(t, 0.0025+0.001, resp.Usage.Cost, 1e-9)

	assert.EqualValues(t, 1, sumInt64(t, reader, "llm.request.total"))
	assert.EqualValues(t, 1100, sumInt64(t, reader, "llm.token.total"))
	assert.EqualValues(t, 0, sumInt64(t, reader, "llm.request.active"))
	assert.Equal(t, 1, costs.Summary().RequestCount)
	assert.Equal(t, "SkillAgent", costs.ByAgent()[0].Agent)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "llm.completion", spans[0].Name())
	assert.NotEqual(t, codes.Error, spans[0].Status().Code)

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "azure_openai", attrs["gen_ai.system"])
	assert.Equal(t, "gpt-4o-2024-08-06", attrs["gen_ai.request.model"])
	assert.Equal(t, "SkillAgent", attrs["careerflow.agent"])
	assert.Equal(t, "s-1", attrs["careerflow.correlation_id"])
	assert.EqualValues(t, 1000, attrs["gen_ai.usage.input_tokens"])
}

func TestInstrumentedProvider_Error(t *testing.T) {
	m, reader, recorder := newTestMetrics(t)
	inner := &stubProvider{err: &llm.Error{Code: llm.ErrRateLimited, Retryable: true}}
	p := NewInstrumentedProvider(inner, "TriageAgent", m, nil, nil)

	_, err := p.Completion(context.Background(), &llm.ChatRequest{Model: "gpt-4o"})
	require.Error(t, err)

	assert.EqualValues(t, 1, sumInt64(t, reader, "llm.error.total"))
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, string(llm.ErrRateLimited), spans[0].Status().Description)
}

func TestMetrics_RecordToolCall(t *testing.T) {
	m, reader, _ := newTestMetrics(t)
	m.RecordToolCall("brave_web_search", 20*time.Millisecond, nil)
	m.RecordToolCall("analyze_resume", time.Second, assert.AnError)
	assert.EqualValues(t, 2, sumInt64(t, reader, "llm.tool_call.total"))
}
