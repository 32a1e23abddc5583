package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/internal/tlsutil"
	"github.com/BaSui01/careerflow/llm"
	"github.com/BaSui01/careerflow/llm/providers"
)

const (
	defaultModel   = "gpt-4o"
	// DefaultAzureAPIVersion 是未配置时使用的 Azure API 版本。
	DefaultAzureAPIVersion = "2024-06-01"
)

// Provider 实现 llm.Provider。
type Provider struct {
	cfg    providers.OpenAIConfig
	name   string
	client *http.Client
	logger *zap.Logger
}

// New 创建 Provider。Azure 配置存在时 Name 为 "azure_openai"。
func New(cfg providers.OpenAIConfig, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	name := "openai"
	if az := cfg.Azure; az != nil {
		if err := az.Validate(DefaultAzureAPIVersion); err != nil {
			return nil, &llm.Error{
				Code:       llm.ErrProviderUnavailable,
				Message:    err.Error(),
				HTTPStatus: http.StatusServiceUnavailable,
				Provider:   "azure_openai",
			}
		}
		name = "azure_openai"
	} else if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	return &Provider{
		cfg:    cfg,
		name:   name,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("provider", name)),
	}, nil
}

// Name 返回 Provider 名称。
func (p *Provider) Name() string { return p.name }

// Model 返回默认模型；Azure 下为部署名。
func (p *Provider) Model() string {
	if p.cfg.Azure != nil {
		return p.cfg.Azure.Deployment
	}
	return p.cfg.Model
}

func (p *Provider) url(op string) string {
	if az := p.cfg.Azure; az != nil {
		if op == "models" {
			return az.ResourceURL(op)
		}
		return az.DeploymentURL(op)
	}
	return providers.OpenAIURL(p.cfg.BaseURL, op)
}

func (p *Provider) setHeaders(req *http.Request) {
	providers.SetAuthHeaders(req.Header, p.cfg.APIKey, p.cfg.Organization, p.cfg.Azure != nil)
}

// Completion 发起非流式聊天请求。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := providers.NewCompletionRequest(req)
	// Azure 由部署决定模型
	if p.cfg.Azure == nil {
		body.Model = providers.ChooseModel(req, p.cfg.Model, defaultModel)
	}
	if req.ToolChoice != "" && len(body.Tools) > 0 {
		body.ToolChoice = toolChoice(req.ToolChoice)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url("chat/completions"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(httpReq)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		code := llm.ErrUpstreamError
		if ctx.Err() == nil && isTimeout(err) {
			code = llm.ErrUpstreamTimeout
		}
		return nil, &llm.Error{
			Code: code, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: ctx.Err() == nil, Provider: p.name,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		e := providers.FromResponse(resp, p.name)
		p.logger.Warn("completion failed",
			zap.Int("status", resp.StatusCode),
			zap.String("message", e.Message),
			zap.Duration("retry_after", e.RetryAfter))
		return nil, e
	}

	var oaResp providers.CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.name,
		}
	}

	result := oaResp.ChatResponse(p.name)
	p.logger.Debug("completion done",
		zap.String("model", result.Model),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)))
	return result, nil
}

// HealthCheck 请求模型列表以确认服务可达。
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url("models"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d msg=%s", p.name, resp.StatusCode, msg)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// toolChoice 把 auto/none/required 原样传递，其他值视为工具名。
func toolChoice(choice string) any {
	switch choice {
	case "auto", "none", "required":
		return choice
	default:
		return map[string]any{
			"type":     "function",
			"function": map[string]string{"name": choice},
		}
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
