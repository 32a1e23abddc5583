package embedding

import (
	"time"

	"github.com/BaSui01/careerflow/llm/providers"
)

// DefaultAzureAPIVersion 是 Azure 嵌入接口的默认版本.
const DefaultAzureAPIVersion = "2023-05-15"

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Dimensions > 0 时随请求发送；ada-002 不支持该参数.
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	MaxBatch   int `json:"max_batch,omitempty" yaml:"max_batch,omitempty"`
	// Concurrency 是 EmbedDocuments 同时在途的批次数
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	Azure *AzureConfig `json:"azure,omitempty" yaml:"azure,omitempty"`
}

// AzureConfig 指向 Azure OpenAI 的嵌入部署，与聊天部署共用同一结构.
type AzureConfig = providers.AzureConfig
