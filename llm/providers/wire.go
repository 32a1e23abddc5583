package providers

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/BaSui01/careerflow/llm"
)

// =============================================================================
// 🔧 Chat Completions 线上格式（OpenAI 与 Azure OpenAI 共用）
// =============================================================================

type WireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []WireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type WireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function WireFunction `json:"function"`
}

// WireFunction 的 Arguments 在线上是 JSON 字符串.
type WireFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type WireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

// CompletionRequest 是 POST /chat/completions 的请求体.
type CompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []WireMessage `json:"messages"`
	Tools       []WireTool    `json:"tools,omitempty"`
	ToolChoice  any           `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	// User 传会话 ID，便于在上游控制台按会话排查
	User string `json:"user,omitempty"`
}

type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created,omitempty"`
	Choices []struct {
		Index        int         `json:"index"`
		FinishReason string      `json:"finish_reason"`
		Message      WireMessage `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

// NewCompletionRequest 把 llm.ChatRequest 转为线上请求. Model 与 ToolChoice 由调用方决定.
func NewCompletionRequest(req *llm.ChatRequest) CompletionRequest {
	out := CompletionRequest{
		Messages:    make([]WireMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		User:        req.TraceID,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, toWireMessage(m))
	}
	for _, t := range req.Tools {
		var wt WireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		out.Tools = append(out.Tools, wt)
	}
	return out
}

func toWireMessage(m llm.Message) WireMessage {
	wm := WireMessage{Role: string(m.Role), Name: m.Name, Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		wm.ToolCalls = append(wm.ToolCalls, WireToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: WireFunction{Name: tc.Name, Arguments: EncodeArguments(tc.Arguments)},
		})
	}
	return wm
}

// ChatResponse 把线上响应转为 llm.ChatResponse.
func (r CompletionResponse) ChatResponse(provider string) *llm.ChatResponse {
	resp := &llm.ChatResponse{ID: r.ID, Provider: provider, Model: r.Model}
	if r.Created != 0 {
		resp.CreatedAt = time.Unix(r.Created, 0)
	}
	for _, c := range r.Choices {
		msg := llm.Message{Role: llm.RoleAssistant, Content: c.Message.Content, Name: c.Message.Name}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: DecodeArguments(tc.Function.Arguments),
			})
		}
		resp.Choices = append(resp.Choices, llm.ChatChoice{Index: c.Index, FinishReason: c.FinishReason, Message: msg})
	}
	if r.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}
	}
	return resp
}

// ChooseModel 依次取请求、配置与兜底模型.
func ChooseModel(req *llm.ChatRequest, defaultModel, fallbackModel string) string {
	for _, m := range []string{modelOf(req), defaultModel} {
		if m != "" {
			return m
		}
	}
	return fallbackModel
}

func modelOf(req *llm.ChatRequest) string {
	if req == nil {
		return ""
	}
	return req.Model
}

// EncodeArguments 把参数对象编码为线上要求的 JSON 字符串，已是字符串时原样返回.
func EncodeArguments(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage(`"{}"`)
	}
	if args[0] == '"' {
		return args
	}
	b, err := json.Marshal(string(args))
	if err != nil {
		return json.RawMessage(`"{}"`)
	}
	return b
}

// DecodeArguments 把线上的 JSON 字符串还原为参数对象；已是对象时原样返回.
func DecodeArguments(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || raw[0] != '"' {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	if strings.TrimSpace(s) == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(s)
}
