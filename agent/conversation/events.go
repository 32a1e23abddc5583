package conversation

import (
	"context"
	"sync"

	"github.com/BaSui01/careerflow/types"
)

// EventType is the outbound event category.
type EventType string

const (
	EventMessage EventType = "message"
	EventTool    EventType = "tool"
	EventSystem  EventType = "system"
	EventHandoff EventType = "handoff"
)

// SystemAgent is the agent name used for session-level notices.
const SystemAgent = "system"

// Event is what the session streams to the outside world.
type Event struct {
	Agent   string    `json:"agent"`
	Type    EventType `json:"type"`
	Content string    `json:"content"`
	Tool    *string   `json:"tool"`
	Handoff bool      `json:"handoff"`
}

// EventFromMessage converts a history entry into its outbound event.
func EventFromMessage(m types.Message) Event {
	ev := Event{Agent: m.Source, Type: EventMessage, Content: m.Content}
	switch m.Kind {
	case types.KindToolCall, types.KindToolResult:
		ev.Type = EventTool
		if name := m.ToolName(); name != "" {
			ev.Tool = &name
		}
	case types.KindHandoff:
		ev.Type = EventHandoff
		ev.Handoff = true
	}
	return ev
}

// SystemEvent builds a session-level notice.
func SystemEvent(content string) Event {
	return Event{Agent: SystemAgent, Type: EventSystem, Content: content}
}

// EventSink receives session events. Implementations must be safe for
// concurrent use; the turn loop and the human-wait lane both emit.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error { return nil }

// MultiSink fans an event out to several sinks, stopping at the first error.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, ev Event) error {
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordingSink keeps every event in memory. Used by tests and the CLI.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *RecordingSink) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *RecordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
