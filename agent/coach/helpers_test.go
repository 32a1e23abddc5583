package coach

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/careerflow/llm"
)

// scriptedProvider 依次返回预设回复并记录请求.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []llm.Message
	errs      []error
	requests  []*llm.ChatRequest
}

func (p *scriptedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := len(p.requests)
	cp := *req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	p.requests = append(p.requests, &cp)

	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.responses) {
		return nil, errors.New("script exhausted")
	}
	return &llm.ChatResponse{
		Model:   "gpt-4o",
		Choices: []llm.ChatChoice{{Message: p.responses[i]}},
	}, nil
}

func (p *scriptedProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Requests() []*llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.ChatRequest(nil), p.requests...)
}

func text(content string) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: content}
}
