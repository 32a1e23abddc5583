package hitl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/conversation"
	"github.com/BaSui01/careerflow/types"
)

// DefaultProxyID is the registry id of the human stand-in.
const DefaultProxyID = "user_proxy"

// DefaultWaitNotice is emitted every time the proxy starts waiting.
const DefaultWaitNotice = "WAITING FOR USER INPUT"

// HumanProxy 代表用户参与会话：被选中时从 InputBridge 取一条输入作为回复。
type HumanProxy struct {
	id      string
	bridge  *InputBridge
	sink    conversation.EventSink
	notice  string
	timeout time.Duration
	onWait  func(elapsed time.Duration, err error)
	logger  *zap.Logger
}

// ProxyOption configures a HumanProxy.
type ProxyOption func(*HumanProxy)

// WithNoticeSink sets where the waiting notice goes.
func WithNoticeSink(sink conversation.EventSink) ProxyOption {
	return func(p *HumanProxy) { p.sink = sink }
}

// WithWaitNotice overrides the waiting notice text. Empty disables it.
func WithWaitNotice(text string) ProxyOption {
	return func(p *HumanProxy) { p.notice = text }
}

// WithInputTimeout bounds each wait. Zero waits until cancelled.
func WithInputTimeout(d time.Duration) ProxyOption {
	return func(p *HumanProxy) { p.timeout = d }
}

// WithWaitObserver is called after each wait with its duration.
func WithWaitObserver(fn func(elapsed time.Duration, err error)) ProxyOption {
	return func(p *HumanProxy) { p.onWait = fn }
}

// WithProxyLogger sets the logger.
func WithProxyLogger(logger *zap.Logger) ProxyOption {
	return func(p *HumanProxy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewHumanProxy creates the human stand-in fed by bridge.
func NewHumanProxy(id string, bridge *InputBridge, opts ...ProxyOption) *HumanProxy {
	if id == "" {
		id = DefaultProxyID
	}
	p := &HumanProxy{
		id:     id,
		bridge: bridge,
		sink:   conversation.NopSink{},
		notice: DefaultWaitNotice,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "human_proxy"), zap.String("participant", id))
	return p
}

func (p *HumanProxy) ID() string { return p.id }

func (p *HumanProxy) Capabilities() conversation.Capabilities {
	return conversation.Capabilities{IsHumanProxy: true}
}

// Reply 阻塞当前回合直到用户输入到达。桥关闭被视为连接断开。
func (p *HumanProxy) Reply(ctx context.Context, _ []types.Message) ([]types.Message, error) {
	if p.notice != "" {
		if err := p.sink.Emit(ctx, conversation.SystemEvent(p.notice)); err != nil {
			return nil, fmt.Errorf("%w: %v", conversation.ErrDisconnected, err)
		}
	}

	waitCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	started := time.Now()
	text, err := p.bridge.Fetch(waitCtx)
	if p.onWait != nil {
		p.onWait(time.Since(started), err)
	}

	switch {
	case err == nil:
		p.logger.Debug("user input received", zap.Int("length", len(text)))
		return []types.Message{types.NewTextMessage(p.id, text)}, nil
	case errors.Is(err, ErrBridgeClosed):
		return nil, fmt.Errorf("%w: %v", conversation.ErrDisconnected, err)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return nil, types.NewError(types.ErrTimeout,
			fmt.Sprintf("no user input within %s", p.timeout)).WithCause(err)
	default:
		return nil, types.NewError(types.ErrInputCancelled, "user input wait failed").WithCause(err)
	}
}
