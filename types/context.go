package types

import "context"

// ctxKey 以类型区分，不同包的同名 key 不会冲突.
type ctxKey[T any] struct{ name string }

func withValue[T any](ctx context.Context, k ctxKey[T], v T) context.Context {
	return context.WithValue(ctx, k, v)
}

func value[T comparable](ctx context.Context, k ctxKey[T]) (T, bool) {
	var zero T
	v, ok := ctx.Value(k).(T)
	return v, ok && v != zero
}

var (
	traceIDKey     = ctxKey[string]{"trace_id"}
	requestIDKey   = ctxKey[string]{"request_id"}
	sessionIDKey   = ctxKey[string]{"session_id"}
	userIDKey      = ctxKey[string]{"user_id"}
	participantKey = ctxKey[string]{"participant"}
)

// WithTraceID 记录 OTel trace id，由 tracing 中间件写入.
func WithTraceID(ctx context.Context, id string) context.Context {
	return withValue(ctx, traceIDKey, id)
}

func TraceID(ctx context.Context) (string, bool) { return value(ctx, traceIDKey) }

func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) (string, bool) { return value(ctx, requestIDKey) }

// WithSessionID 标记当前会话. 记忆检索与 CV 钩子按它做会话隔离.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, sessionIDKey, id)
}

func SessionID(ctx context.Context) (string, bool) { return value(ctx, sessionIDKey) }

func WithUserID(ctx context.Context, id string) context.Context {
	return withValue(ctx, userIDKey, id)
}

func UserID(ctx context.Context) (string, bool) { return value(ctx, userIDKey) }

// WithParticipant 标记正在发言的参与者.
func WithParticipant(ctx context.Context, id string) context.Context {
	return withValue(ctx, participantKey, id)
}

func Participant(ctx context.Context) (string, bool) { return value(ctx, participantKey) }

// CorrelationID 返回最具体的关联 id：trace id，其次会话 id，最后请求 id.
func CorrelationID(ctx context.Context) string {
	for _, k := range []ctxKey[string]{traceIDKey, sessionIDKey, requestIDKey} {
		if v, ok := value(ctx, k); ok {
			return v
		}
	}
	return ""
}
