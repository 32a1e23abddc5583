// Package types provides core types used across careerflow.
// This package has ZERO dependencies on other careerflow packages to avoid circular imports.
package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageKind tags what a history entry carries.
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindToolCall   MessageKind = "tool_call"
	KindToolResult MessageKind = "tool_result"
	KindHandoff    MessageKind = "handoff"
)

// Valid reports whether k is one of the known kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindToolCall, KindToolResult, KindHandoff:
		return true
	}
	return false
}

// ToolCall represents a tool invocation requested by a participant.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one immutable entry of the conversation history.
// Position in the history is the only ordering key; Timestamp is informational.
type Message struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Content   string            `json:"content"`
	Kind      MessageKind       `json:"kind"`
	Tool      *ToolCall         `json:"tool,omitempty"`
	Target    string            `json:"target,omitempty"` // handoff 目标
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewMessage creates a message of the given kind.
func NewMessage(source string, kind MessageKind, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Source:    source,
		Content:   content,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// NewTextMessage creates a plain text message.
func NewTextMessage(source, content string) Message {
	return NewMessage(source, KindText, content)
}

// NewToolCallMessage records a tool invocation request.
func NewToolCallMessage(source string, call ToolCall) Message {
	msg := NewMessage(source, KindToolCall, string(call.Arguments))
	msg.Tool = &call
	return msg
}

// NewToolResultMessage records the output of a tool invocation.
func NewToolResultMessage(source string, call ToolCall, result string) Message {
	msg := NewMessage(source, KindToolResult, result)
	msg.Tool = &ToolCall{ID: call.ID, Name: call.Name}
	return msg
}

// NewHandoffMessage records a transfer of the floor to target.
func NewHandoffMessage(source, target, content string) Message {
	msg := NewMessage(source, KindHandoff, content)
	msg.Target = target
	return msg
}

// ToolName returns the tool name or "" when the message carries no tool.
func (m Message) ToolName() string {
	if m.Tool == nil {
		return ""
	}
	return m.Tool.Name
}

// WithMetadata returns a copy of m with key set in its metadata.
func (m Message) WithMetadata(key, value string) Message {
	md := make(map[string]string, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		md[k] = v
	}
	md[key] = value
	m.Metadata = md
	return m
}

// Clone returns a deep copy so callers can't alias history internals.
func (m Message) Clone() Message {
	if m.Tool != nil {
		tc := *m.Tool
		if tc.Arguments != nil {
			tc.Arguments = append(json.RawMessage(nil), tc.Arguments...)
		}
		m.Tool = &tc
	}
	if m.Metadata != nil {
		md := make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}
