package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/careerflow/llm"
)

func echoTool(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	require.NoError(t, r.Register("echo", echoTool, ToolMetadata{}))
	assert.True(t, r.Has("echo"))

	assert.Error(t, r.Register("echo", echoTool, ToolMetadata{}), "duplicate")
	assert.Error(t, r.Register("nil", nil, ToolMetadata{}))
	assert.Error(t, r.Register("a", echoTool, ToolMetadata{Schema: llm.ToolSchema{Name: "b"}}))

	require.NoError(t, r.Register("alpha", echoTool, ToolMetadata{}))
	schemas, err := r.Schemas()
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	assert.Equal(t, "alpha", schemas[0].Name)

	_, err = r.Schemas("missing")
	assert.Error(t, err)
}

func TestExecutor_ExecuteKeepsOrder(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("echo", echoTool, ToolMetadata{}))
	require.NoError(t, r.Register("fail", func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("boom")
	}, ToolMetadata{}))

	var observed atomic.Int64
	e := NewExecutor(r, zaptest.NewLogger(t), WithConcurrency(2), WithExecutionObserver(func(string, time.Duration, error) {
		observed.Add(1)
	}))

	results := e.Execute(context.Background(), []llm.ToolCall{
		{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"a":1}`)},
		{ID: "2", Name: "fail"},
		{ID: "3", Name: "nope"},
		{ID: "4", Name: "echo", Arguments: json.RawMessage(`{bad`)},
	})
	require.Len(t, results, 4)
	assert.Equal(t, "1", results[0].ToolCallID)
	assert.JSONEq(t, `{"a":1}`, results[0].Content())
	assert.Equal(t, "Error: boom", results[1].Content())
	assert.Contains(t, results[2].Error, "tool not found")
	assert.Contains(t, results[3].Error, "invalid arguments")
	assert.EqualValues(t, 4, observed.Load())
}

func TestExecutor_Timeout(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("slow", func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		select {
		case <-time.After(time.Second):
			return json.RawMessage(`"late"`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, ToolMetadata{Timeout: 20 * time.Millisecond}))

	res := NewExecutor(r, nil).ExecuteOne(context.Background(), llm.ToolCall{ID: "x", Name: "slow"})
	assert.NotEmpty(t, res.Error)
	assert.Less(t, res.Duration, time.Second)
}

func TestExecutor_RateLimitRejects(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("limited", echoTool, ToolMetadata{
		RateLimit: &RateLimitConfig{MaxCalls: 1, Window: time.Hour},
	}))
	e := NewExecutor(r, nil)

	first := e.ExecuteOne(context.Background(), llm.ToolCall{Name: "limited", Arguments: json.RawMessage(`{}`)})
	assert.Empty(t, first.Error)
	second := e.ExecuteOne(context.Background(), llm.ToolCall{Name: "limited", Arguments: json.RawMessage(`{}`)})
	assert.Contains(t, second.Error, "rate limit exceeded")
}

func TestExecutor_RateLimitWaitHonoursContext(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register("queued", echoTool, ToolMetadata{
		RateLimit: &RateLimitConfig{MaxCalls: 1, Window: time.Hour, Wait: true},
	}))
	e := NewExecutor(r, nil)
	_ = e.ExecuteOne(context.Background(), llm.ToolCall{Name: "queued"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := e.ExecuteOne(ctx, llm.ToolCall{Name: "queued"})
	assert.Contains(t, res.Error, "rate limit wait")
}
