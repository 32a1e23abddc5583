package metrics

import (
	"context"
	"time"

	"github.com/BaSui01/careerflow/llm"
)

type instrumentedProvider struct {
	next llm.Provider
	c    *Collector
}

// WrapProvider 为 LLM 补全记录请求数、耗时与 token 用量.
func (c *Collector) WrapProvider(next llm.Provider) llm.Provider {
	return &instrumentedProvider{next: next, c: c}
}

func (p *instrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.next.Completion(ctx, req)
	model := req.Model
	if err != nil {
		p.c.RecordLLMRequest(p.next.Name(), model, "error", time.Since(start), 0, 0, 0)
		return nil, err
	}
	if model == "" {
		model = resp.Model
	}
	p.c.RecordLLMRequest(p.next.Name(), model, "success", time.Since(start),
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.Cost)
	return resp, nil
}

func (p *instrumentedProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return p.next.HealthCheck(ctx)
}

func (p *instrumentedProvider) Name() string { return p.next.Name() }
