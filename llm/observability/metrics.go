package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/BaSui01/careerflow/llm"

// span 属性沿用 OTel GenAI 约定的键名
const (
	attrSystem       = attribute.Key("gen_ai.system")
	attrRequestModel = attribute.Key("gen_ai.request.model")
	attrInputTokens  = attribute.Key("gen_ai.usage.input_tokens")
	attrOutputTokens = attribute.Key("gen_ai.usage.output_tokens")
	attrAgent        = attribute.Key("careerflow.agent")
	attrCorrelation  = attribute.Key("careerflow.correlation_id")
)

// Metrics 持有 LLM 调用与工具调用的 OTel 仪表.
type Metrics struct {
	tracer trace.Tracer

	requests  metric.Int64Counter
	tokens    metric.Int64Counter
	errors    metric.Int64Counter
	toolCalls metric.Int64Counter
	inflight  metric.Int64UpDownCounter

	latency     metric.Float64Histogram
	cost        metric.Float64Histogram
	toolLatency metric.Float64Histogram
}

type Option func(*options)

type options struct {
	mp metric.MeterProvider
	tp trace.TracerProvider
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// NewMetrics 注册全部仪表，默认使用 otel 全局 provider.
func NewMetrics(opts ...Option) (*Metrics, error) {
	o := options{mp: otel.GetMeterProvider(), tp: otel.GetTracerProvider()}
	for _, opt := range opts {
		opt(&o)
	}
	meter := o.mp.Meter(instrumentationName)
	m := &Metrics{tracer: o.tp.Tracer(instrumentationName)}

	var errs []error
	counter := func(dst *metric.Int64Counter, name, unit, desc string) {
		c, err := meter.Int64Counter(name, metric.WithUnit(unit), metric.WithDescription(desc))
		*dst = c
		errs = append(errs, err)
	}
	histogram := func(dst *metric.Float64Histogram, name, unit, desc string, bounds ...float64) {
		hopts := []metric.Float64HistogramOption{metric.WithUnit(unit), metric.WithDescription(desc)}
		if len(bounds) > 0 {
			hopts = append(hopts, metric.WithExplicitBucketBoundaries(bounds...))
		}
		h, err := meter.Float64Histogram(name, hopts...)
		*dst = h
		errs = append(errs, err)
	}

	counter(&m.requests, "llm.request.total", "{request}", "LLM completions by agent and outcome")
	counter(&m.tokens, "llm.token.total", "{token}", "Prompt and completion tokens")
	counter(&m.errors, "llm.error.total", "{error}", "Failed completions by error code")
	counter(&m.toolCalls, "llm.tool_call.total", "{call}", "Tool invocations")
	histogram(&m.latency, "llm.request.duration", "s", "Completion latency", 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60)
	histogram(&m.cost, "llm.cost.per_request", "USD", "Estimated cost per completion", 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5)
	histogram(&m.toolLatency, "llm.tool_call.duration", "s", "Tool execution latency")

	inflight, err := meter.Int64UpDownCounter("llm.request.active",
		metric.WithUnit("{request}"), metric.WithDescription("Completions in flight"))
	m.inflight = inflight
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

type RequestAttrs struct {
	Provider      string
	Model         string
	Agent         string
	CorrelationID string
}

type ResponseAttrs struct {
	Status           string
	ErrorCode        string
	TokensPrompt     int
	TokensCompletion int
	Cost             float64
	Duration         time.Duration
}

// Call 是一次进行中的补全. 必须调用且只调用一次 End.
type Call struct {
	m     *Metrics
	span  trace.Span
	attrs RequestAttrs
}

// StartRequest 打开 span 并增加在途计数.
func (m *Metrics) StartRequest(ctx context.Context, attrs RequestAttrs) (context.Context, *Call) {
	ctx, span := m.tracer.Start(ctx, "llm.completion",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attrSystem.String(attrs.Provider),
			attrRequestModel.String(attrs.Model),
			attrAgent.String(attrs.Agent),
			attrCorrelation.String(attrs.CorrelationID),
		))
	m.inflight.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", attrs.Provider)))
	return ctx, &Call{m: m, span: span, attrs: attrs}
}

// Span 供调用方追加事件或记录错误.
func (c *Call) Span() trace.Span { return c.span }

// SetModel 在请求未指定模型时用响应里的实际模型补全维度.
func (c *Call) SetModel(model string) {
	if c.attrs.Model == "" {
		c.attrs.Model = model
		c.span.SetAttributes(attrRequestModel.String(model))
	}
}

func (c *Call) End(ctx context.Context, resp ResponseAttrs) {
	defer c.span.End()

	m, req := c.m, c.attrs
	m.inflight.Add(ctx, -1, metric.WithAttributes(attribute.String("provider", req.Provider)))

	outcome := metric.WithAttributes(
		attribute.String("provider", req.Provider),
		attribute.String("model", req.Model),
		attribute.String("agent", req.Agent),
		attribute.String("status", resp.Status),
	)
	m.requests.Add(ctx, 1, outcome)
	m.latency.Record(ctx, resp.Duration.Seconds(), outcome)
	if resp.Cost > 0 {
		m.cost.Record(ctx, resp.Cost, outcome)
	}

	for kind, n := range map[string]int{"prompt": resp.TokensPrompt, "completion": resp.TokensCompletion} {
		if n > 0 {
			m.tokens.Add(ctx, int64(n), metric.WithAttributes(
				attribute.String("model", req.Model),
				attribute.String("agent", req.Agent),
				attribute.String("type", kind)))
		}
	}

	c.span.SetAttributes(
		attrInputTokens.Int(resp.TokensPrompt),
		attrOutputTokens.Int(resp.TokensCompletion),
		attribute.Float64("careerflow.cost_usd", resp.Cost))

	if resp.ErrorCode != "" {
		m.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", req.Provider),
			attribute.String("agent", req.Agent),
			attribute.String("error_code", resp.ErrorCode)))
		c.span.SetAttributes(attribute.String("error.type", resp.ErrorCode))
		c.span.SetStatus(codes.Error, resp.ErrorCode)
	}
}

// RecordToolCall 的签名与 tools.WithExecutionObserver 对齐.
func (m *Metrics) RecordToolCall(toolName string, duration time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("tool", toolName),
		attribute.Bool("success", err == nil))
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolLatency.Record(ctx, duration.Seconds(), attrs)
}
