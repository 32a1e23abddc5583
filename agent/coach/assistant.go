package coach

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/conversation"
	"github.com/BaSui01/careerflow/agent/memory"
	"github.com/BaSui01/careerflow/llm"
	"github.com/BaSui01/careerflow/llm/tokenizer"
	"github.com/BaSui01/careerflow/llm/tools"
	"github.com/BaSui01/careerflow/types"
)

// DefaultShortTermCapacity 是每个 Assistant 的模型上下文窗口（消息条数）.
const DefaultShortTermCapacity = 10

// AssistantConfig 描述一个由大模型驱动的参与者.
type AssistantConfig struct {
	Name         string
	SystemPrompt string
	Model        string

	// Tools 是注册中心里的工具名.
	Tools []string
	// ReflectOnToolUse 为 true 时工具执行后再调用一次模型生成最终回复，
	// 否则把工具结果拼接为回复.
	ReflectOnToolUse bool
	// AddressesHuman 仅 gateway 为 true.
	AddressesHuman bool
	// Peers 是可被点名交接的其他参与者.
	Peers []string

	Temperature       float32
	MaxTokens         int
	ShortTermCapacity int
	// RecallTopK > 0 时每轮从长期记忆召回相关条目.
	RecallTopK int
}

// Assistant 实现 conversation.Participant.
type Assistant struct {
	cfg       AssistantConfig
	provider  llm.Provider
	registry  *tools.Registry
	executor  *tools.Executor
	tokenizer tokenizer.Tokenizer
	shortTerm *memory.ShortTerm
	longTerm  memory.LongTerm
	logger    *zap.Logger

	mu   sync.Mutex
	seen int
}

// AssistantOption configures an Assistant.
type AssistantOption func(*Assistant)

// WithTools 提供工具注册中心与执行器.
func WithTools(registry *tools.Registry, executor *tools.Executor) AssistantOption {
	return func(a *Assistant) {
		a.registry = registry
		a.executor = executor
	}
}

// WithLongTermMemory 设置共享的长期记忆.
func WithLongTermMemory(mem memory.LongTerm) AssistantOption {
	return func(a *Assistant) { a.longTerm = mem }
}

// WithTokenizer overrides the tokenizer chosen from the model name.
func WithTokenizer(tok tokenizer.Tokenizer) AssistantOption {
	return func(a *Assistant) { a.tokenizer = tok }
}

func WithAssistantLogger(logger *zap.Logger) AssistantOption {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAssistant creates an LLM-backed participant.
func NewAssistant(cfg AssistantConfig, provider llm.Provider, opts ...AssistantOption) (*Assistant, error) {
	if cfg.Name == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "assistant name is required")
	}
	if provider == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "assistant "+cfg.Name+" has no provider")
	}
	if cfg.ShortTermCapacity <= 0 {
		cfg.ShortTermCapacity = DefaultShortTermCapacity
	}

	a := &Assistant{
		cfg:      cfg,
		provider: provider,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if len(cfg.Tools) > 0 && (a.registry == nil || a.executor == nil) {
		return nil, types.NewError(types.ErrInvalidRequest, "assistant "+cfg.Name+" declares tools but has no executor")
	}
	for _, name := range cfg.Tools {
		if !a.registry.Has(name) {
			return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("assistant %s: unknown tool %s", cfg.Name, name))
		}
	}
	if a.tokenizer == nil {
		a.tokenizer = tokenizer.ForModel(cfg.Model)
	}
	a.shortTerm = memory.NewShortTerm(cfg.ShortTermCapacity)
	a.logger = a.logger.With(zap.String("component", "assistant"), zap.String("participant", cfg.Name))
	return a, nil
}

func (a *Assistant) ID() string { return a.cfg.Name }

func (a *Assistant) Capabilities() conversation.Capabilities {
	return conversation.Capabilities{
		CanAddressHuman: a.cfg.AddressesHuman,
		CanUseTools:     len(a.cfg.Tools) > 0,
	}
}

// ShortTerm exposes the model context window.
func (a *Assistant) ShortTerm() *memory.ShortTerm { return a.shortTerm }

// Reply 把新历史并入短期记忆，调用模型，必要时执行一轮工具.
func (a *Assistant) Reply(ctx context.Context, history []types.Message) ([]types.Message, error) {
	a.ingest(history)

	messages := a.buildPrompt(ctx, history)
	req := &llm.ChatRequest{
		TraceID:     types.CorrelationID(ctx),
		Model:       a.cfg.Model,
		Messages:    messages,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		Metadata:    map[string]string{"agent": a.cfg.Name},
	}
	if len(a.cfg.Tools) > 0 {
		schemas, err := a.registry.Schemas(a.cfg.Tools...)
		if err != nil {
			return nil, err
		}
		req.Tools = schemas
		req.ToolChoice = "auto"
	}

	resp, err := a.provider.Completion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", a.cfg.Name, err)
	}
	msg, ok := resp.FirstMessage()
	if !ok {
		return nil, fmt.Errorf("%s completion returned no choices", a.cfg.Name)
	}

	if len(msg.ToolCalls) == 0 {
		return []types.Message{a.finalMessage(msg.Content)}, nil
	}
	return a.runTools(ctx, req, msg)
}

func (a *Assistant) runTools(ctx context.Context, req *llm.ChatRequest, msg llm.Message) ([]types.Message, error) {
	out := make([]types.Message, 0, 2*len(msg.ToolCalls)+1)
	for _, call := range msg.ToolCalls {
		out = append(out, types.NewToolCallMessage(a.cfg.Name, types.ToolCall{
			ID: call.ID, Name: call.Name, Arguments: call.Arguments,
		}))
	}

	results := a.executor.Execute(ctx, msg.ToolCalls)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := make([]string, 0, len(results))
	followUp := append(append([]llm.Message(nil), req.Messages...), llm.Message{
		Role:      llm.RoleAssistant,
		Content:   msg.Content,
		ToolCalls: msg.ToolCalls,
	})
	for i, res := range results {
		call := msg.ToolCalls[i]
		content := res.Content()
		out = append(out, types.NewToolResultMessage(a.cfg.Name, types.ToolCall{ID: call.ID, Name: call.Name}, content))
		summary = append(summary, content)
		followUp = append(followUp, llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Name: call.Name, Content: content})
	}
	a.logger.Debug("tools executed", zap.Int("calls", len(results)))

	if !a.cfg.ReflectOnToolUse {
		return append(out, a.finalMessage(strings.Join(summary, "\n"))), nil
	}

	// 反思调用不再提供工具
	reflect := *req
	reflect.Messages = followUp
	reflect.Tools = nil
	reflect.ToolChoice = ""
	resp, err := a.provider.Completion(ctx, &reflect)
	if err != nil {
		return nil, fmt.Errorf("%s reflection: %w", a.cfg.Name, err)
	}
	final, ok := resp.FirstMessage()
	if !ok {
		return nil, fmt.Errorf("%s reflection returned no choices", a.cfg.Name)
	}
	return append(out, a.finalMessage(final.Content)), nil
}

// finalMessage 点名交接给同伴时标记为 handoff.
func (a *Assistant) finalMessage(content string) types.Message {
	if target := DetectHandoff(content, a.cfg.Peers); target != "" {
		return types.NewHandoffMessage(a.cfg.Name, target, content)
	}
	return types.NewTextMessage(a.cfg.Name, content)
}

// ingest 把上次之后的新消息放入短期记忆. 工具往来不进入模型上下文.
func (a *Assistant) ingest(history []types.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seen > len(history) {
		a.shortTerm.Clear()
		a.seen = 0
	}
	for _, m := range history[a.seen:] {
		if m.Kind == types.KindToolCall || m.Kind == types.KindToolResult {
			continue
		}
		a.shortTerm.Add(m)
	}
	a.seen = len(history)
}

func (a *Assistant) buildPrompt(ctx context.Context, history []types.Message) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: a.cfg.SystemPrompt}}

	if a.longTerm != nil && a.cfg.RecallTopK > 0 {
		if query := lastText(history); query != "" {
			if recalled := memory.Recall(ctx, a.longTerm, query, a.cfg.RecallTopK, a.logger); len(recalled) > 0 {
				messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: formatRecall(recalled)})
			}
		}
	}

	for _, m := range a.shortTerm.Query(0) {
		messages = append(messages, a.toLLM(m))
	}
	return a.fit(messages)
}

func (a *Assistant) toLLM(m types.Message) llm.Message {
	switch {
	case m.Source == memory.ContextSource:
		return llm.Message{Role: llm.RoleSystem, Content: m.Content}
	case m.Source == a.cfg.Name:
		return llm.Message{Role: llm.RoleAssistant, Content: m.Content}
	default:
		return llm.Message{Role: llm.RoleUser, Name: sanitizeName(m.Source), Content: m.Content}
	}
}

// fit 按模型上下文长度裁剪，给补全预留 MaxTokens.
func (a *Assistant) fit(messages []llm.Message) []llm.Message {
	budget := a.tokenizer.MaxTokens() - a.cfg.MaxTokens
	if budget <= 0 {
		return messages
	}
	tm := make([]tokenizer.Message, len(messages))
	for i, m := range messages {
		tm[i] = tokenizer.Message{Role: string(m.Role), Content: m.Content}
	}
	_, dropped := tokenizer.FitMessages(a.tokenizer, tm, budget)
	if dropped == 0 {
		return messages
	}

	head := 0
	for head < len(messages) && messages[head].Role == llm.RoleSystem {
		head++
	}
	a.logger.Debug("context trimmed", zap.Int("dropped", dropped))
	return append(messages[:head:head], messages[head+dropped:]...)
}

func lastText(history []types.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == types.KindText || history[i].Kind == types.KindHandoff {
			if c := strings.TrimSpace(history[i].Content); c != "" {
				return c
			}
		}
	}
	return ""
}

func formatRecall(results []memory.Result) string {
	var b strings.Builder
	b.WriteString("Relevant memory content:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// sanitizeName 满足 OpenAI name 字段 ^[a-zA-Z0-9_-]{1,64}$.
func sanitizeName(s string) string {
	s = invalidNameChars.ReplaceAllString(s, "_")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

var handoffPhrases = []string{"hand off to ", "handing off to ", "handoff to ", "over to "}

// DetectHandoff 返回 content 点名交接的参与者：以 "Peer," / "Peer:" 开头，
// 或包含 "hand off to Peer" 之类的说法. 未命中返回空串.
func DetectHandoff(content string, peers []string) string {
	trimmed := strings.TrimSpace(content)
	for _, p := range peers {
		if p == "" {
			continue
		}
		if strings.HasPrefix(trimmed, p+",") || strings.HasPrefix(trimmed, p+":") {
			return p
		}
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range handoffPhrases {
		for _, p := range peers {
			if p != "" && strings.Contains(lower, phrase+strings.ToLower(p)) {
				return p
			}
		}
	}
	return ""
}
