package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/BaSui01/careerflow/types"
)

func TestNewSession_Defaults(t *testing.T) {
	r := newTestRoster(nil, nil)
	s, err := NewSession("", r.registry)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, DefaultMaxTurns, s.maxTurns)

	_, err = NewSession("x", nil)
	assert.Error(t, err)
}

func TestSession_TurnCap(t *testing.T) {
	r := newTestRoster(textReply(testGateway, "Team, let's go."), textReply(testProxy, "sure"))
	s, err := NewSession("cap", r.registry, WithMaxTurns(5), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), "help me")
	require.NoError(t, err)
	assert.Equal(t, ReasonMaxTurns, res.TerminationReason)
	assert.Equal(t, 5, res.Turns)
	// 开场消息 + 5 轮各一条
	assert.Len(t, res.Messages, 6)

	// gateway opens, then specialists rotate
	sources := make([]string, 0, len(res.Messages))
	for _, m := range res.Messages {
		sources = append(sources, m.Source)
	}
	assert.Equal(t, []string{testProxy, testGateway, "ProfilerAgent", "SkillAgent", "LearningPlanAgent", "GlobalJobsAgent"}, sources)
}

func TestProperty_TurnCapBoundsInvocations(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxTurns := rapid.IntRange(1, 25).Draw(t, "max_turns")
		asks := rapid.Bool().Draw(t, "gateway_asks")
		gatewayText := "Team, please look."
		if asks {
			gatewayText = "Tell me more?"
		}
		r := newTestRoster(textReply(testGateway, gatewayText), textReply(testProxy, "ok"))
		s, err := NewSession("p", r.registry, WithMaxTurns(maxTurns), WithTerminator(TerminatorFunc(func([]types.Message) bool { return false })))
		require.NoError(t, err)

		res, err := s.Run(context.Background(), "")
		require.NoError(t, err)
		invocations := r.gateway.Calls() + r.proxy.Calls() + r.specialistCalls()
		assert.Equal(t, maxTurns, invocations)
		assert.Equal(t, maxTurns, res.Turns)
	})
}

func TestSession_HistoryIsCompleteBeforeNextSelection(t *testing.T) {
	r := newTestRoster(func(context.Context, []types.Message) ([]types.Message, error) {
		return []types.Message{
			types.NewToolCallMessage("", types.ToolCall{ID: "1", Name: "search"}),
			types.NewToolResultMessage("", types.ToolCall{ID: "1", Name: "search"}, "found."),
			types.NewTextMessage("", "Team, review this."),
		}, nil
	}, nil)

	var seen [][]types.Message
	var mu sync.Mutex
	sel := SelectorFunc(func(h []types.Message) string {
		mu.Lock()
		seen = append(seen, h)
		mu.Unlock()
		return SelectorForRegistry(r.registry).Select(h)
	})
	s, err := NewSession("order", r.registry, WithMaxTurns(2), WithSelector(sel))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Len(t, seen[0], 0)
	assert.Len(t, seen[1], 3, "all three gateway messages appended before second selection")
	assert.Equal(t, testGateway, res.Messages[0].Source, "empty source stamped with participant id")
	assert.Equal(t, types.KindToolCall, res.Messages[0].Kind)
	assert.Equal(t, "ProfilerAgent", res.Messages[3].Source)
}

func TestSession_EventsStreamed(t *testing.T) {
	r := newTestRoster(func(context.Context, []types.Message) ([]types.Message, error) {
		return []types.Message{
			types.NewToolCallMessage("", types.ToolCall{ID: "1", Name: "brave_web_search"}),
			types.NewHandoffMessage("", "ProfilerAgent", "ProfilerAgent, please analyze."),
		}, nil
	}, nil)
	sink := &RecordingSink{}
	s, err := NewSession("ev", r.registry, WithMaxTurns(1), WithEventSink(sink))
	require.NoError(t, err)

	_, err = s.Run(context.Background(), "hello")
	require.NoError(t, err)

	events := sink.Events()
	require.Len(t, events, 3)
	assert.Equal(t, Event{Agent: testProxy, Type: EventMessage, Content: "hello"}, events[0])
	assert.Equal(t, EventTool, events[1].Type)
	require.NotNil(t, events[1].Tool)
	assert.Equal(t, "brave_web_search", *events[1].Tool)
	assert.Equal(t, EventHandoff, events[2].Type)
	assert.True(t, events[2].Handoff)
}

func TestSession_FirstTurnHookFiresOnce(t *testing.T) {
	r := newTestRoster(textReply(testGateway, "Team, go."), nil)
	s, err := NewSession("hook", r.registry, WithMaxTurns(12))
	require.NoError(t, err)

	var hookCalls int
	err = s.RegisterFirstTurnHook("ProfilerAgent", FirstTurnHookFunc(
		func(_ context.Context, id string, _ []types.Message) ([]types.Message, bool, error) {
			hookCalls++
			return []types.Message{types.NewTextMessage(id, "I found your uploaded CV.")}, true, nil
		}))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, hookCalls)
	assert.True(t, s.HookFired("ProfilerAgent"))
	assert.False(t, s.HookFired("SkillAgent"))

	profiler := r.specialists[0]
	var profilerMsgs int
	for _, m := range res.Messages {
		if m.Source == "ProfilerAgent" {
			profilerMsgs++
		}
	}
	assert.Greater(t, profilerMsgs, 1, "profiler selected more than once")
	assert.Equal(t, profilerMsgs-1, profiler.Calls(), "hook short-circuited only the first turn")
}

func TestSession_FirstTurnHookNotHandledFallsThrough(t *testing.T) {
	r := newTestRoster(textReply(testGateway, "Team, go."), nil)
	s, err := NewSession("hook2", r.registry, WithMaxTurns(2))
	require.NoError(t, err)
	require.NoError(t, s.RegisterFirstTurnHook("ProfilerAgent", FirstTurnHookFunc(
		func(context.Context, string, []types.Message) ([]types.Message, bool, error) {
			return nil, false, errors.New("vector store down")
		})))

	_, err = s.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, r.specialists[0].Calls())
	assert.True(t, s.HookFired("ProfilerAgent"))
}

func TestSession_RegisterHookUnknownParticipant(t *testing.T) {
	r := newTestRoster(nil, nil)
	s, err := NewSession("x", r.registry)
	require.NoError(t, err)
	err = s.RegisterFirstTurnHook("Nobody", FirstTurnHookFunc(nil))
	assert.ErrorIs(t, err, ErrUnknownParticipant)
}

func TestSession_ParticipantFailureAborts(t *testing.T) {
	boom := errors.New("completion engine down")
	r := newTestRoster(func(context.Context, []types.Message) ([]types.Message, error) {
		return nil, boom
	}, nil)
	sink := &RecordingSink{}
	s, err := NewSession("fail", r.registry, WithEventSink(sink))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, types.IsErrorCode(err, types.ErrParticipantFailed))
	assert.Equal(t, ReasonError, res.TerminationReason)
	assert.Equal(t, 1, r.gateway.Calls(), "no retry")

	events := sink.Events()
	last := events[len(events)-1]
	assert.Equal(t, EventSystem, last.Type)
	assert.Equal(t, SystemAgent, last.Agent)
	assert.Contains(t, last.Content, "completion engine down")
}

func TestSession_DisconnectDuringHumanWait(t *testing.T) {
	waiting := make(chan struct{})
	r := newTestRoster(textReply(testGateway, "What are your career goals?"),
		func(ctx context.Context, _ []types.Message) ([]types.Message, error) {
			close(waiting)
			<-ctx.Done()
			return nil, ctx.Err()
		})
	s, err := NewSession("dc", r.registry)
	require.NoError(t, err)

	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan struct{})
	var res *Result
	var runErr error
	go func() {
		defer close(done)
		res, runErr = s.Run(ctx, "")
	}()

	<-waiting
	cancel(ErrDisconnected)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after disconnect")
	}
	require.NoError(t, runErr)
	assert.Equal(t, ReasonDisconnected, res.TerminationReason)
	assert.Equal(t, 2, res.Turns)
}

func TestSession_CancelledContext(t *testing.T) {
	r := newTestRoster(nil, nil)
	s, err := NewSession("c", r.registry)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Run(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ReasonCancelled, res.TerminationReason)
	assert.Equal(t, 0, res.Turns)
}

func TestSession_ProxyReportsDisconnect(t *testing.T) {
	r := newTestRoster(textReply(testGateway, "Anything else?"),
		func(context.Context, []types.Message) ([]types.Message, error) {
			return nil, ErrDisconnected
		})
	s, err := NewSession("pd", r.registry)
	require.NoError(t, err)

	res, err := s.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ReasonDisconnected, res.TerminationReason)
}

func TestSession_EndSignal(t *testing.T) {
	turn := 0
	r := newTestRoster(func(context.Context, []types.Message) ([]types.Message, error) {
		turn++
		if turn == 1 {
			return []types.Message{types.NewTextMessage(testGateway, "Does this plan work for you?")}, nil
		}
		return []types.Message{types.NewTextMessage(testGateway, "Glad to help. TERMINATE")}, nil
	}, textReply(testProxy, "Yes, thanks"))

	// 用户回复后轮到 specialist，强制回到 gateway 以便测试结束信号
	sel := SelectorFunc(func(h []types.Message) string {
		if len(h) > 0 && h[len(h)-1].Source == testProxy {
			return testGateway
		}
		return SelectorForRegistry(r.registry).Select(h)
	})
	s, err := NewSession("end", r.registry, WithSelector(sel))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, ReasonEndSignal, res.TerminationReason)
	assert.Equal(t, 3, res.Turns)
}

func TestSession_EmitFailureEndsSession(t *testing.T) {
	r := newTestRoster(textReply(testGateway, "Team, go."), nil)
	sink := SinkFunc(func(context.Context, Event) error { return errors.New("broken pipe") })
	s, err := NewSession("emit", r.registry, WithEventSink(sink))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, ReasonDisconnected, res.TerminationReason)
}

func TestSession_RunTwice(t *testing.T) {
	r := newTestRoster(nil, nil)
	s, err := NewSession("twice", r.registry, WithMaxTurns(1))
	require.NoError(t, err)
	_, err = s.Run(context.Background(), "")
	require.NoError(t, err)
	_, err = s.Run(context.Background(), "")
	assert.ErrorIs(t, err, ErrAlreadyRun)
}

func TestSession_ResumeFromHistoryPrefix(t *testing.T) {
	r := newTestRoster(nil, nil)
	prefix := []types.Message{msg(testProxy, "hi"), msg(testGateway, "Team, go."), msg("ProfilerAgent", "Done.")}
	s, err := NewSession("resume", r.registry, WithMaxTurns(1), WithHistory(prefix...))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "SkillAgent", res.Messages[len(res.Messages)-1].Source)
}

type countingObserver struct {
	BaseObserver
	mu       sync.Mutex
	messages int
	turns    int
	ended    *Result
}

func (o *countingObserver) OnMessage(context.Context, string, types.Message) {
	o.mu.Lock()
	o.messages++
	o.mu.Unlock()
}

func (o *countingObserver) OnTurn(string, string, time.Duration, error) {
	o.mu.Lock()
	o.turns++
	o.mu.Unlock()
}

func (o *countingObserver) OnEnd(_ context.Context, r *Result) {
	o.mu.Lock()
	o.ended = r
	o.mu.Unlock()
}

func TestSession_Observers(t *testing.T) {
	r := newTestRoster(textReply(testGateway, "Team."), nil)
	obs := &countingObserver{}
	s, err := NewSession("obs", r.registry, WithMaxTurns(3), WithObserver(obs))
	require.NoError(t, err)

	res, err := s.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, 4, obs.messages)
	assert.Equal(t, 3, obs.turns)
	assert.Same(t, res, obs.ended)
}

func TestSession_TurnSpans(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	boom := errors.New("boom")
	r := newTestRoster(textReply(testGateway, "Team, go."), nil)
	r.specialists[0].reply = func(context.Context, []types.Message) ([]types.Message, error) { return nil, boom }
	s, err := NewSession("traced", r.registry, WithMaxTurns(5))
	require.NoError(t, err)

	_, err = s.Run(context.Background(), "hi")
	require.ErrorIs(t, err, boom)

	got := spans.GetSpans()
	require.Len(t, got, 2)
	for _, sp := range got {
		assert.Equal(t, "session.turn", sp.Name)
	}
	assert.Equal(t, codes.Unset, got[0].Status.Code)
	assert.Equal(t, codes.Error, got[1].Status.Code)
	assert.Contains(t, got[1].Attributes, attribute.String("participant.id", "ProfilerAgent"))
	assert.Contains(t, got[1].Attributes, attribute.String("session.id", "traced"))
}
