package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/types"
)

// DefaultMaxTurns caps participant invocations per session.
const DefaultMaxTurns = 30

const tracerName = "github.com/BaSui01/careerflow/agent/conversation"

// TerminationReason explains why a session stopped.
type TerminationReason string

const (
	ReasonMaxTurns     TerminationReason = "max_turns"
	ReasonEndSignal    TerminationReason = "end_signal"
	ReasonDisconnected TerminationReason = "disconnected"
	ReasonCancelled    TerminationReason = "cancelled"
	ReasonError        TerminationReason = "error"
)

var (
	// ErrDisconnected is the cancel cause used when the external connection
	// driving a session goes away.
	ErrDisconnected = errors.New("conversation: connection closed")
	// ErrAlreadyRun is returned when Run is called twice on one session.
	ErrAlreadyRun = errors.New("conversation: session already started")
)

// Result contains the conversation outcome.
type Result struct {
	SessionID         string            `json:"session_id"`
	Messages          []types.Message   `json:"messages"`
	Turns             int               `json:"turns"`
	StartTime         time.Time         `json:"start_time"`
	EndTime           time.Time         `json:"end_time"`
	TerminationReason TerminationReason `json:"termination_reason"`
}

// Session drives one group conversation: it owns the history, asks the
// selector for the next speaker, invokes it and streams what it produced.
type Session struct {
	id         string
	registry   *Registry
	selector   Selector
	history    *History
	maxTurns   int
	sink       EventSink
	terminator Terminator
	observers  []Observer
	logger     *zap.Logger

	mu      sync.Mutex
	hooks   map[string]FirstTurnHook
	fired   map[string]bool
	started bool
	turns   int
}

// Option configures a Session.
type Option func(*Session)

// WithMaxTurns sets the turn cap. Non-positive values keep the default.
func WithMaxTurns(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithEventSink sets where events are streamed.
func WithEventSink(sink EventSink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithSelector overrides the speaker selector.
func WithSelector(sel Selector) Option {
	return func(s *Session) { s.selector = sel }
}

// WithTerminator overrides the end-signal detector.
func WithTerminator(t Terminator) Option {
	return func(s *Session) { s.terminator = t }
}

// WithObserver adds progress observers.
func WithObserver(obs ...Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, obs...) }
}

// WithHistory seeds the session with a prior history prefix.
func WithHistory(msgs ...types.Message) Option {
	return func(s *Session) { s.history = NewHistory(msgs...) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession creates a session. An empty id gets a random UUID.
func NewSession(id string, registry *Registry, opts ...Option) (*Session, error) {
	if registry == nil {
		return nil, fmt.Errorf("conversation: registry is required")
	}
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{
		id:       id,
		registry: registry,
		maxTurns: DefaultMaxTurns,
		sink:     NopSink{},
		logger:   zap.NewNop(),
		hooks:    make(map[string]FirstTurnHook),
		fired:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "session"), zap.String("session_id", id))
	if s.history == nil {
		s.history = NewHistory()
	}
	if s.selector == nil {
		s.selector = SelectorForRegistry(registry, WithSelectorLogger(s.logger))
	}
	if s.terminator == nil {
		s.terminator = NewKeywordTerminator(registry)
	}
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Registry returns the participant registry.
func (s *Session) Registry() *Registry { return s.registry }

// History returns a snapshot of the conversation so far.
func (s *Session) History() []types.Message { return s.history.Snapshot() }

// Turns returns the number of participant invocations so far.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// RegisterFirstTurnHook attaches a one-shot hook to a participant.
func (s *Session) RegisterFirstTurnHook(participantID string, hook FirstTurnHook) error {
	if _, ok := s.registry.Get(participantID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyRun
	}
	s.hooks[participantID] = hook
	return nil
}

// HookFired reports whether the participant's first-turn hook has run.
func (s *Session) HookFired(participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired[participantID]
}

// Emit streams a session-level event through the configured sink.
func (s *Session) Emit(ctx context.Context, ev Event) error {
	return s.sink.Emit(ctx, ev)
}

// Run drives the turn loop until the turn cap, the end signal, a
// disconnect or a participant failure. A non-empty task is recorded as the
// human's opening message.
func (s *Session) Run(ctx context.Context, task string) (*Result, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	s.started = true
	s.mu.Unlock()

	ctx = types.WithSessionID(ctx, s.id)
	res := &Result{SessionID: s.id, StartTime: time.Now()}
	s.logger.Info("session started",
		zap.Int("max_turns", s.maxTurns),
		zap.Int("participants", s.registry.Len()))

	if task != "" {
		if err := s.record(ctx, types.NewTextMessage(s.registry.ProxyID(), task)); err != nil {
			return s.finish(ctx, res, ReasonDisconnected, err)
		}
	}

	for s.Turns() < s.maxTurns {
		if ctx.Err() != nil {
			return s.finishCancelled(ctx, res)
		}

		snapshot := s.history.Snapshot()
		next := s.selector.Select(snapshot)
		p, ok := s.registry.Get(next)
		if !ok {
			s.logger.Warn("selector returned unknown participant, using gateway", zap.String("participant", next))
			p = s.registry.Gateway()
		}

		started := time.Now()
		msgs, err := s.invoke(ctx, p, snapshot)
		s.mu.Lock()
		s.turns++
		s.mu.Unlock()
		s.notifyTurn(p.ID(), time.Since(started), err)

		if err != nil {
			if ctx.Err() != nil {
				return s.finishCancelled(ctx, res)
			}
			if errors.Is(err, ErrDisconnected) {
				return s.finish(ctx, res, ReasonDisconnected, nil)
			}
			s.logger.Error("participant failed", zap.String("participant", p.ID()), zap.Error(err))
			failure := types.NewError(types.ErrParticipantFailed, fmt.Sprintf("participant %s failed", p.ID())).WithCause(err)
			if emitErr := s.sink.Emit(ctx, SystemEvent(fmt.Sprintf("Error: %s failed: %v", p.ID(), err))); emitErr != nil {
				s.logger.Warn("emit error event failed", zap.Error(emitErr))
			}
			return s.finish(ctx, res, ReasonError, failure)
		}

		// 整轮输出全部追加后才进入下一次选择
		for _, m := range msgs {
			if err := s.record(ctx, s.stamp(p, m)); err != nil {
				return s.finish(ctx, res, ReasonDisconnected, err)
			}
		}

		if s.terminator != nil && s.terminator.ShouldTerminate(s.history.Snapshot()) {
			return s.finish(ctx, res, ReasonEndSignal, nil)
		}
	}
	return s.finish(ctx, res, ReasonMaxTurns, nil)
}

// invoke 每轮一个 span，父 span 来自 websocket 升级请求.
func (s *Session) invoke(ctx context.Context, p Participant, history []types.Message) ([]types.Message, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "session.turn", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("participant.id", p.ID()),
		attribute.Int("history.len", len(history)),
	))
	defer span.End()

	msgs, err := s.reply(ctx, p, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("messages.out", len(msgs)))
	return msgs, nil
}

func (s *Session) reply(ctx context.Context, p Participant, history []types.Message) ([]types.Message, error) {
	ctx = types.WithParticipant(ctx, p.ID())
	if hook := s.takeHook(p.ID()); hook != nil {
		msgs, handled, err := hook.BeforeFirstTurn(ctx, p.ID(), history)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("first-turn hook failed, running normal turn",
				zap.String("participant", p.ID()), zap.Error(err))
		case handled:
			s.logger.Debug("first-turn hook handled turn", zap.String("participant", p.ID()))
			return msgs, nil
		}
	}
	return p.Reply(ctx, history)
}

// takeHook returns the participant's hook the first time only.
func (s *Session) takeHook(id string) FirstTurnHook {
	s.mu.Lock()
	defer s.mu.Unlock()
	hook, ok := s.hooks[id]
	if !ok || s.fired[id] {
		return nil
	}
	s.fired[id] = true
	return hook
}

func (s *Session) stamp(p Participant, m types.Message) types.Message {
	if m.Source == "" {
		m.Source = p.ID()
	}
	if m.Kind == "" {
		m.Kind = types.KindText
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	return m
}

func (s *Session) record(ctx context.Context, m types.Message) error {
	s.history.Append(m)
	for _, o := range s.observers {
		o.OnMessage(ctx, s.id, m)
	}
	if err := s.sink.Emit(ctx, EventFromMessage(m)); err != nil {
		return fmt.Errorf("emit event: %w", err)
	}
	return nil
}

func (s *Session) notifyTurn(participantID string, elapsed time.Duration, err error) {
	for _, o := range s.observers {
		o.OnTurn(s.id, participantID, elapsed, err)
	}
}

func (s *Session) finishCancelled(ctx context.Context, res *Result) (*Result, error) {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrDisconnected) {
		return s.finish(ctx, res, ReasonDisconnected, nil)
	}
	return s.finish(ctx, res, ReasonCancelled, cause)
}

func (s *Session) finish(ctx context.Context, res *Result, reason TerminationReason, err error) (*Result, error) {
	res.EndTime = time.Now()
	res.Messages = s.history.Snapshot()
	res.Turns = s.Turns()
	res.TerminationReason = reason

	fields := []zap.Field{
		zap.String("reason", string(reason)),
		zap.Int("turns", res.Turns),
		zap.Int("messages", len(res.Messages)),
		zap.Duration("duration", res.EndTime.Sub(res.StartTime)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Info("session ended", fields...)

	endCtx := context.WithoutCancel(ctx)
	for _, o := range s.observers {
		o.OnEnd(endCtx, res)
	}
	return res, err
}
