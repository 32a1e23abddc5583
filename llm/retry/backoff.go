package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// DelayHinter 由携带服务端等待建议的错误实现，例如解析过 Retry-After 的 *llm.Error.
type DelayHinter interface {
	RetryDelay() time.Duration
}

// Policy 是指数退避参数. 零值字段在 New 中补默认值.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool // ±25%

	// ShouldRetry 为 nil 时所有错误都重试
	ShouldRetry func(err error) bool
	OnRetry     func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 用于模型补全. 嵌入与搜索各自有更短的超时，不走这里.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

func (p Policy) normalized() Policy {
	p.MaxRetries = max(p.MaxRetries, 0)
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

type Retryer struct {
	policy Policy
	logger *zap.Logger
}

func New(policy Policy, logger *zap.Logger) *Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy.normalized(), logger: logger}
}

func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do 执行 fn 直到成功、遇到不可重试错误、次数用尽或 ctx 结束.
// 不可重试的错误原样返回，次数用尽时包装最后一次错误.
func Do[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempt := 0
	for {
		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		if r.policy.ShouldRetry != nil && !r.policy.ShouldRetry(err) {
			return zero, err
		}
		if attempt == r.policy.MaxRetries {
			r.logger.Warn("retries exhausted", zap.Int("attempts", attempt+1), zap.Error(err))
			return zero, fmt.Errorf("failed after %d retries: %w", attempt, err)
		}

		attempt++
		delay := r.delayFor(attempt, err)
		r.logger.Debug("retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", r.policy.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err))
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// delayFor 优先采用错误里的等待建议，但不超过 MaxDelay.
func (r *Retryer) delayFor(attempt int, err error) time.Duration {
	var hint DelayHinter
	if errors.As(err, &hint) {
		if d := hint.RetryDelay(); d > 0 {
			return min(d, r.policy.MaxDelay)
		}
	}
	return r.Delay(attempt)
}

// Delay 返回第 attempt 次重试前的退避：InitialDelay * Multiplier^(attempt-1)，
// 截断到 MaxDelay，抖动后不低于 InitialDelay.
func (r *Retryer) Delay(attempt int) time.Duration {
	p := r.policy
	d := min(float64(p.InitialDelay)*math.Pow(p.Multiplier, float64(attempt-1)), float64(p.MaxDelay))
	if p.Jitter {
		d += d * 0.25 * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(d, float64(p.InitialDelay)))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
