package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/llm"
	"github.com/BaSui01/careerflow/llm/tools"
)

// 子智能体工具名.
const (
	AnalyzeResumeTool   = "analyze_resume"
	AnalyzeSkillGapTool = "analyze_skill_gap"
)

// SubAgentConfig 把一次单轮补全包装成工具.
type SubAgentConfig struct {
	Name         string
	Description  string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Timeout      time.Duration
}

type subAgentArgs struct {
	Task string `json:"task"`
}

var subAgentParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"task": {"type": "string", "description": "The task for the agent to perform, including all the material it needs."}
	},
	"required": ["task"]
}`)

// NewSubAgentTool 返回工具函数：以 SystemPrompt 和 task 调用 provider 一次，回复文本作为结果.
func NewSubAgentTool(cfg SubAgentConfig, provider llm.Provider, logger *zap.Logger) (tools.ToolFunc, tools.ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tool", cfg.Name))

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params subAgentArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid %s arguments: %w", cfg.Name, err)
		}
		if strings.TrimSpace(params.Task) == "" {
			return nil, fmt.Errorf("task is required")
		}

		resp, err := provider.Completion(ctx, &llm.ChatRequest{
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: cfg.SystemPrompt},
				{Role: llm.RoleUser, Content: params.Task},
			},
			Metadata: map[string]string{"tool": cfg.Name},
		})
		if err != nil {
			logger.Warn("sub-agent completion failed", zap.Error(err))
			return nil, err
		}
		msg, ok := resp.FirstMessage()
		if !ok {
			return nil, fmt.Errorf("%s returned no choices", cfg.Name)
		}
		return json.Marshal(msg.Content)
	}

	return fn, tools.ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        cfg.Name,
			Description: cfg.Description,
			Parameters:  subAgentParameters,
		},
		Timeout: cfg.Timeout,
	}
}

// RegisterAnalyzerTools 注册 analyze_resume 与 analyze_skill_gap，二者使用工具模型.
func RegisterAnalyzerTools(registry *tools.Registry, provider llm.Provider, model string, logger *zap.Logger) error {
	defs := []SubAgentConfig{
		{
			Name:         AnalyzeResumeTool,
			Description:  "Analyze a resume for strengths, weaknesses, and ATS optimization. You need to give actionable feedback.",
			SystemPrompt: AnalyzeResumePrompt,
			Model:        model,
			Timeout:      2 * time.Minute,
		},
		{
			Name:         AnalyzeSkillGapTool,
			Description:  "Compare user skills to job requirements and identify gaps.",
			SystemPrompt: AnalyzeSkillGapPrompt,
			Model:        model,
			Timeout:      2 * time.Minute,
		},
	}
	for _, d := range defs {
		fn, meta := NewSubAgentTool(d, provider, logger)
		if err := registry.Register(d.Name, fn, meta); err != nil {
			return err
		}
	}
	return nil
}
