package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/careerflow/llm"
	"github.com/BaSui01/careerflow/types"
)

// DefaultTimeout 是未配置超时的工具的执行上限.
const DefaultTimeout = 30 * time.Second

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema    llm.ToolSchema   // Tool JSON Schema
	RateLimit *RateLimitConfig // 可选
	Timeout   time.Duration    // 默认 30s
}

// RateLimitConfig 以令牌桶描述工具级限流：Window 内最多 MaxCalls 次.
type RateLimitConfig struct {
	MaxCalls int
	Window   time.Duration
	// Wait 为 true 时排队等待令牌，否则立即拒绝.
	Wait bool
}

// ToolResult represents tool execution result.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// Content 返回回填给模型的文本：成功时为结果，失败时为错误描述.
func (r ToolResult) Content() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	return string(r.Result)
}

type registeredTool struct {
	fn      ToolFunc
	meta    ToolMetadata
	limiter *rate.Limiter
}

// Registry 保存可供模型调用的工具.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]registeredTool
	logger *zap.Logger
}

// NewRegistry 创建工具注册中心.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]registeredTool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *Registry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	if fn == nil {
		return fmt.Errorf("tool %s has no function", name)
	}
	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if metadata.Timeout == 0 {
		metadata.Timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if rl := metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(rl.MaxCalls)/rl.Window.Seconds()), rl.MaxCalls)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = registeredTool{fn: fn, meta: metadata, limiter: limiter}

	r.logger.Info("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *Registry) get(name string) (registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.get(name)
	return ok
}

// Schemas 返回指定工具的 schema，names 为空时返回全部，按名称排序.
func (r *Registry) Schemas(names ...string) ([]llm.ToolSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	out := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("tool %s not found", name)
		}
		out = append(out, t.meta.Schema)
	}
	return out, nil
}

// Executor 执行模型请求的工具调用.
type Executor struct {
	registry    *Registry
	concurrency int
	observe     func(name string, elapsed time.Duration, err error)
	logger      *zap.Logger
}

// ExecutorOption 配置 Executor.
type ExecutorOption func(*Executor)

// WithConcurrency 限制同一批调用的并发数，默认 4.
func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithExecutionObserver 在每次调用结束后回调，用于指标.
func WithExecutionObserver(fn func(name string, elapsed time.Duration, err error)) ExecutorOption {
	return func(e *Executor) { e.observe = fn }
}

// NewExecutor 创建工具执行器.
func NewExecutor(registry *Registry, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		registry:    registry,
		concurrency: 4,
		logger:      logger.With(zap.String("component", "tool_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute 并发执行一批调用，结果顺序与 calls 一致. 单个工具失败写入 ToolResult.Error，不中断其他调用.
func (e *Executor) Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(gctx, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ExecuteOne 执行单个调用.
func (e *Executor) ExecuteOne(ctx context.Context, call llm.ToolCall) ToolResult {
	start := time.Now()
	result := ToolResult{ToolCallID: call.ID, Name: call.Name}
	logger := e.callLogger(ctx, call)
	finish := func(err error) ToolResult {
		result.Duration = time.Since(start)
		if err != nil {
			result.Error = err.Error()
		}
		if e.observe != nil {
			e.observe(call.Name, result.Duration, err)
		}
		return result
	}

	tool, ok := e.registry.get(call.Name)
	if !ok {
		logger.Warn("tool not found")
		return finish(fmt.Errorf("tool not found: %s", call.Name))
	}

	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		logger.Warn("invalid tool arguments")
		return finish(fmt.Errorf("invalid arguments for %s", call.Name))
	}

	if err := waitLimiter(ctx, tool); err != nil {
		logger.Warn("tool rate limited", zap.Error(err))
		return finish(err)
	}

	execCtx, cancel := context.WithTimeout(ctx, tool.meta.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := tool.fn(execCtx, call.Arguments)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			logger.Error("tool execution failed", zap.Error(out.err))
			return finish(out.err)
		}
		result.Result = out.res
		logger.Debug("tool executed", zap.Duration("duration", time.Since(start)))
		return finish(nil)
	case <-execCtx.Done():
		err := fmt.Errorf("execution timeout after %s", tool.meta.Timeout)
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		logger.Error("tool execution interrupted", zap.Error(err))
		return finish(err)
	}
}

// callLogger 带上工具名以及发起调用的会话与参与者.
func (e *Executor) callLogger(ctx context.Context, call llm.ToolCall) *zap.Logger {
	fields := []zap.Field{zap.String("name", call.Name)}
	if id, ok := types.SessionID(ctx); ok {
		fields = append(fields, zap.String("session_id", id))
	}
	if p, ok := types.Participant(ctx); ok {
		fields = append(fields, zap.String("participant", p))
	}
	return e.logger.With(fields...)
}

func waitLimiter(ctx context.Context, tool registeredTool) error {
	if tool.limiter == nil {
		return nil
	}
	if tool.meta.RateLimit.Wait {
		if err := tool.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
		return nil
	}
	if !tool.limiter.Allow() {
		return fmt.Errorf("rate limit exceeded for %s", tool.meta.Schema.Name)
	}
	return nil
}
