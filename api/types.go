package api

import (
	"github.com/BaSui01/careerflow/agent/conversation"
	"github.com/BaSui01/careerflow/agent/hitl"
	"github.com/BaSui01/careerflow/agent/streaming"
)

// =============================================================================
// Websocket 帧
// =============================================================================

// Event 是服务端下发的帧.
// @Description {agent, type, content, tool, handoff}
type Event = conversation.Event

// EventType 是 Event.Type 的取值.
type EventType = conversation.EventType

const (
	EventMessage = conversation.EventMessage
	EventTool    = conversation.EventTool
	EventSystem  = conversation.EventSystem
	EventHandoff = conversation.EventHandoff
)

// Inbound 是客户端发送的帧.
// @Description {content}
type Inbound = streaming.Inbound

// WaitingNotice 是服务端等待用户输入时下发的系统事件内容.
const WaitingNotice = hitl.DefaultWaitNotice

// SessionIDParam 是 /ws/chat 与上传接口的会话参数名.
const SessionIDParam = "session_id"

// APIKeyParam 是 websocket 升级时携带 API key 的查询参数.
const APIKeyParam = "api_key"

// IsWaiting 判断事件是否表示服务端在等待用户输入.
func IsWaiting(ev Event) bool {
	return ev.Type == EventSystem && ev.Content == WaitingNotice
}
