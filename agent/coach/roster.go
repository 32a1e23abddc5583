package coach

import (
	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/conversation"
	"github.com/BaSui01/careerflow/agent/memory"
	"github.com/BaSui01/careerflow/llm"
	"github.com/BaSui01/careerflow/llm/tools"
)

// RosterConfig 是五个辅导 Agent 的公共参数.
type RosterConfig struct {
	Model             string
	Temperature       float32
	MaxTokens         int
	ShortTermCapacity int
	RecallTopK        int
}

// ProviderWrapper 按 Agent 包装 provider，用于指标与重试.
type ProviderWrapper func(agent string, p llm.Provider) llm.Provider

// Roster 构建 TriageAgent 与四个 specialist.
type Roster struct {
	cfg      RosterConfig
	provider llm.Provider
	registry *tools.Registry
	executor *tools.Executor
	core     memory.LongTerm
	wrap     ProviderWrapper
	logger   *zap.Logger
}

// RosterOption configures a Roster.
type RosterOption func(*Roster)

// WithCoreMemory 设置团队共享的长期记忆.
func WithCoreMemory(mem memory.LongTerm) RosterOption {
	return func(r *Roster) { r.core = mem }
}

func WithProviderWrapper(fn ProviderWrapper) RosterOption {
	return func(r *Roster) { r.wrap = fn }
}

func WithRosterLogger(logger *zap.Logger) RosterOption {
	return func(r *Roster) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRoster creates a roster. registry 与 executor 必须已注册分析工具，搜索工具可缺省.
func NewRoster(cfg RosterConfig, provider llm.Provider, registry *tools.Registry, executor *tools.Executor, opts ...RosterOption) *Roster {
	r := &Roster{
		cfg:      cfg,
		provider: provider,
		registry: registry,
		executor: executor,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "roster"))
	return r
}

type agentSpec struct {
	id      string
	prompt  string
	tools   []string
	reflect bool
}

func (r *Roster) specs() []agentSpec {
	return []agentSpec{
		{id: TriageAgentID, prompt: TriagePrompt},
		{id: ProfilerAgentID, prompt: ProfilerPrompt, tools: []string{AnalyzeResumeTool}},
		{id: SkillAgentID, prompt: SkillPrompt, tools: []string{AnalyzeSkillGapTool, tools.WebSearchToolName}, reflect: true},
		{id: LearningPlanAgentID, prompt: LearningPlanPrompt, tools: []string{tools.WebSearchToolName}, reflect: true},
		{id: GlobalJobsAgentID, prompt: GlobalJobsPrompt, tools: []string{tools.WebSearchToolName}, reflect: true},
	}
}

// SpecialistIDs 按声明顺序返回 specialist.
func SpecialistIDs() []string {
	return []string{ProfilerAgentID, SkillAgentID, LearningPlanAgentID, GlobalJobsAgentID}
}

// Build 为一个会话创建全新的 Agent 实例. 每个会话需要独立的短期记忆，所以不可复用.
func (r *Roster) Build() (gateway conversation.Participant, specialists []conversation.Participant, err error) {
	specs := r.specs()
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.id
	}

	for _, s := range specs {
		provider := r.provider
		if r.wrap != nil {
			provider = r.wrap(s.id, provider)
		}

		a, err := NewAssistant(AssistantConfig{
			Name:              s.id,
			SystemPrompt:      s.prompt,
			Model:             r.cfg.Model,
			Tools:             r.available(s.id, s.tools),
			ReflectOnToolUse:  s.reflect,
			AddressesHuman:    s.id == TriageAgentID,
			Peers:             without(ids, s.id),
			Temperature:       r.cfg.Temperature,
			MaxTokens:         r.cfg.MaxTokens,
			ShortTermCapacity: r.cfg.ShortTermCapacity,
			RecallTopK:        r.cfg.RecallTopK,
		}, provider,
			WithTools(r.registry, r.executor),
			WithLongTermMemory(r.core),
			WithAssistantLogger(r.logger))
		if err != nil {
			return nil, nil, err
		}

		if s.id == TriageAgentID {
			gateway = a
			continue
		}
		specialists = append(specialists, a)
	}
	return gateway, specialists, nil
}

// 角色名.
const (
	RoleGateway    = "gateway"
	RoleSpecialist = "specialist"
	RoleHumanProxy = "human_proxy"
)

// AgentDescriptor 描述一个 Agent 的角色与可用工具.
type AgentDescriptor struct {
	ID               string   `json:"id"`
	Role             string   `json:"role"`
	Tools            []string `json:"tools"`
	ReflectOnToolUse bool     `json:"reflect_on_tool_use"`
	AddressesHuman   bool     `json:"addresses_human"`
}

// Describe 按声明顺序返回 Agent 描述，工具列表与 Build 一致.
func (r *Roster) Describe() []AgentDescriptor {
	specs := r.specs()
	out := make([]AgentDescriptor, 0, len(specs))
	for _, s := range specs {
		d := AgentDescriptor{
			ID:               s.id,
			Role:             RoleSpecialist,
			Tools:            []string{},
			ReflectOnToolUse: s.reflect,
		}
		if s.id == TriageAgentID {
			d.Role = RoleGateway
			d.AddressesHuman = true
		}
		for _, n := range s.tools {
			if r.registry != nil && r.registry.Has(n) {
				d.Tools = append(d.Tools, n)
			}
		}
		out = append(out, d)
	}
	return out
}

// available 过滤未注册的工具，例如未配置 Brave key 时的搜索.
func (r *Roster) available(agent string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if r.registry != nil && r.registry.Has(n) {
			out = append(out, n)
			continue
		}
		r.logger.Warn("tool unavailable, agent runs without it", zap.String("agent", agent), zap.String("tool", n))
	}
	return out
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids)-1)
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
