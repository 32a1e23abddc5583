package coach

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/conversation"
	"github.com/BaSui01/careerflow/agent/hitl"
	"github.com/BaSui01/careerflow/agent/memory"
)

// SessionFactoryConfig 是每个会话共用的装配参数.
type SessionFactoryConfig struct {
	MaxTurns          int
	ProxyID           string
	HumanInputTimeout time.Duration
	CVHook            CVHookConfig
	CVHookEnabled     bool
}

// SessionFactory 为每条连接装配一支新的辅导团队.
type SessionFactory struct {
	cfg       SessionFactoryConfig
	roster    *Roster
	profile   memory.LongTerm
	observers []conversation.Observer
	onWait    func(time.Duration, error)
	logger    *zap.Logger
}

// FactoryOption configures a SessionFactory.
type FactoryOption func(*SessionFactory)

// WithProfileMemory 设置 CV hook 查询的用户档案记忆.
func WithProfileMemory(mem memory.LongTerm) FactoryOption {
	return func(f *SessionFactory) { f.profile = mem }
}

// WithSessionObservers 为每个会话挂上观察者，例如持久化与指标.
func WithSessionObservers(obs ...conversation.Observer) FactoryOption {
	return func(f *SessionFactory) { f.observers = append(f.observers, obs...) }
}

// WithHumanWaitObserver 透传给 HumanProxy.
func WithHumanWaitObserver(fn func(time.Duration, error)) FactoryOption {
	return func(f *SessionFactory) { f.onWait = fn }
}

func WithFactoryLogger(logger *zap.Logger) FactoryOption {
	return func(f *SessionFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewSessionFactory creates a factory over roster.
func NewSessionFactory(cfg SessionFactoryConfig, roster *Roster, opts ...FactoryOption) *SessionFactory {
	if cfg.ProxyID == "" {
		cfg.ProxyID = hitl.DefaultProxyID
	}
	f := &SessionFactory{cfg: cfg, roster: roster, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("component", "session_factory"))
	return f
}

// NewSession 组装会话. release 清理会话内的短期记忆，调用方在会话结束后必须调用.
func (f *SessionFactory) NewSession(_ context.Context, sessionID string, bridge *hitl.InputBridge, sink conversation.EventSink) (*conversation.Session, func(), error) {
	if sink == nil {
		sink = conversation.NopSink{}
	}
	gateway, specialists, err := f.roster.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build roster: %w", err)
	}

	proxy := hitl.NewHumanProxy(f.cfg.ProxyID, bridge,
		hitl.WithNoticeSink(sink),
		hitl.WithInputTimeout(f.cfg.HumanInputTimeout),
		hitl.WithWaitObserver(f.onWait),
		hitl.WithProxyLogger(f.logger))

	registry, err := conversation.NewRegistry(gateway, specialists, proxy)
	if err != nil {
		return nil, nil, err
	}

	sess, err := conversation.NewSession(sessionID, registry,
		conversation.WithMaxTurns(f.cfg.MaxTurns),
		conversation.WithEventSink(sink),
		conversation.WithObserver(f.observers...),
		conversation.WithLogger(f.logger))
	if err != nil {
		return nil, nil, err
	}

	if f.cfg.CVHookEnabled && f.profile != nil {
		hook := NewCVHook(f.profile, f.cfg.CVHook, f.logger)
		if err := sess.RegisterFirstTurnHook(ProfilerAgentID, hook); err != nil {
			return nil, nil, fmt.Errorf("register cv hook: %w", err)
		}
	}

	release := func() {
		for _, p := range registry.Participants() {
			if a, ok := p.(*Assistant); ok {
				a.ShortTerm().Clear()
			}
		}
	}
	return sess, release, nil
}
