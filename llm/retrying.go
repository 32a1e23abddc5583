package llm

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/llm/retry"
)

// RetryingProvider 对可重试的上游错误（限流、5xx、网络）做退避重试。
type RetryingProvider struct {
	next    Provider
	retryer *retry.Retryer
}

// NewRetryingProvider 包装 next。policy.ShouldRetry 为空时使用 IsRetryable。
func NewRetryingProvider(next Provider, policy retry.Policy, logger *zap.Logger) *RetryingProvider {
	if policy.ShouldRetry == nil {
		policy.ShouldRetry = IsRetryable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingProvider{
		next:    next,
		retryer: retry.New(policy, logger.With(zap.String("provider", next.Name()))),
	}
}

func (p *RetryingProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return retry.Do(ctx, p.retryer, func(ctx context.Context) (*ChatResponse, error) {
		return p.next.Completion(ctx, req)
	})
}

func (p *RetryingProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return p.next.HealthCheck(ctx)
}

func (p *RetryingProvider) Name() string { return p.next.Name() }
