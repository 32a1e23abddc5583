package providers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultOpenAIBaseURL 是未配置 BaseURL 时的 OpenAI 入口.
const DefaultOpenAIBaseURL = "https://api.openai.com"

// BaseProviderConfig 是聊天与嵌入 Provider 共用的连接参数.
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIConfig 中 Azure 非空时走 Azure OpenAI 部署，Model 由部署决定.
type OpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Organization       string       `json:"organization,omitempty" yaml:"organization,omitempty"`
	Azure              *AzureConfig `json:"azure,omitempty" yaml:"azure,omitempty"`
}

// AzureConfig 指向一个 Azure OpenAI 部署.
type AzureConfig struct {
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	Deployment string `json:"deployment" yaml:"deployment"`
	APIVersion string `json:"api_version" yaml:"api_version"`
}

// Validate 检查必填字段并补上 API 版本.
func (a *AzureConfig) Validate(defaultVersion string) error {
	if strings.TrimSpace(a.Endpoint) == "" || strings.TrimSpace(a.Deployment) == "" {
		return fmt.Errorf("azure openai requires endpoint and deployment")
	}
	if a.APIVersion == "" {
		a.APIVersion = defaultVersion
	}
	return nil
}

// DeploymentURL 返回部署级接口，op 如 "chat/completions"、"embeddings".
func (a *AzureConfig) DeploymentURL(op string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
		strings.TrimRight(a.Endpoint, "/"), url.PathEscape(a.Deployment), op, url.QueryEscape(a.APIVersion))
}

// ResourceURL 返回资源级接口，例如 "models".
func (a *AzureConfig) ResourceURL(op string) string {
	return fmt.Sprintf("%s/openai/%s?api-version=%s",
		strings.TrimRight(a.Endpoint, "/"), op, url.QueryEscape(a.APIVersion))
}

// OpenAIURL 拼接 OpenAI 兼容的 /v1 接口.
func OpenAIURL(baseURL, op string) string {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return strings.TrimRight(baseURL, "/") + "/v1/" + op
}

// SetAuthHeaders 按平台设置鉴权头：Azure 用 api-key，OpenAI 用 Bearer.
func SetAuthHeaders(h http.Header, apiKey, organization string, azure bool) {
	h.Set("Content-Type", "application/json")
	if azure {
		h.Set("api-key", apiKey)
		return
	}
	h.Set("Authorization", "Bearer "+apiKey)
	if organization != "" {
		h.Set("OpenAI-Organization", organization)
	}
}
