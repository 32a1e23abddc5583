package observability

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/llm"
)

// InstrumentedProvider 为每次补全记录 span、指标与成本.
type InstrumentedProvider struct {
	next    llm.Provider
	agent   string
	metrics *Metrics
	costs   *CostTracker
	logger  *zap.Logger
}

// NewInstrumentedProvider 包装 next. agent 作为指标维度，区分同一 provider 的不同调用方.
func NewInstrumentedProvider(next llm.Provider, agent string, metrics *Metrics, costs *CostTracker, logger *zap.Logger) *InstrumentedProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedProvider{
		next:    next,
		agent:   agent,
		metrics: metrics,
		costs:   costs,
		logger:  logger,
	}
}

func (p *InstrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	provider := p.next.Name()
	ctx, call := p.metrics.StartRequest(ctx, RequestAttrs{
		Provider:      provider,
		Model:         req.Model,
		Agent:         p.agent,
		CorrelationID: req.TraceID,
	})

	start := time.Now()
	resp, err := p.next.Completion(ctx, req)
	out := ResponseAttrs{Status: "success", Duration: time.Since(start)}

	if err != nil {
		out.Status, out.ErrorCode = "error", "unknown"
		var le *llm.Error
		if errors.As(err, &le) {
			out.ErrorCode = string(le.Code)
		}
		call.Span().RecordError(err)
		call.End(ctx, out)
		p.logger.Warn("llm completion failed",
			zap.String("agent", p.agent),
			zap.String("error_code", out.ErrorCode),
			zap.Duration("duration", out.Duration),
			zap.Error(err))
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = resp.Model
		call.SetModel(model)
	}
	out.TokensPrompt = resp.Usage.PromptTokens
	out.TokensCompletion = resp.Usage.CompletionTokens
	if p.costs != nil {
		out.Cost = p.costs.Track(p.agent, provider, model, out.TokensPrompt, out.TokensCompletion)
		resp.Usage.Cost = out.Cost
	}
	call.End(ctx, out)

	p.logger.Debug("llm completion",
		zap.String("agent", p.agent),
		zap.String("model", model),
		zap.Int("prompt_tokens", out.TokensPrompt),
		zap.Int("completion_tokens", out.TokensCompletion),
		zap.Float64("cost_usd", out.Cost),
		zap.Duration("duration", out.Duration))
	return resp, nil
}

func (p *InstrumentedProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return p.next.HealthCheck(ctx)
}

func (p *InstrumentedProvider) Name() string { return p.next.Name() }
