package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/careerflow/internal/tlsutil"
	"github.com/BaSui01/careerflow/llm"
	"github.com/BaSui01/careerflow/llm/providers"
)

const (
	defaultOpenAIModel  = "text-embedding-3-small"
	defaultMaxBatch     = 256
	defaultConcurrency  = 4
	defaultEmbedTimeout = 30 * time.Second
)

// modelDimensions 是常见模型的默认维度.
var modelDimensions = map[string]int{
	"text-embedding-ada-002": 1536,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
}

// Usage 是一次嵌入请求的 token 用量.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Result 中的 Vectors 与输入一一对应.
type Result struct {
	Model   string
	Vectors [][]float64
	Usage   Usage
}

// OpenAIProvider 调用 OpenAI /v1/embeddings 或 Azure OpenAI 嵌入部署.
type OpenAIProvider struct {
	name     string
	cfg      OpenAIConfig
	endpoint string
	client   *http.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	p := &OpenAIProvider{name: "openai-embedding"}
	if az := cfg.Azure; az != nil {
		if err := az.Validate(DefaultAzureAPIVersion); err != nil {
			return nil, err
		}
		if cfg.Model == "" {
			cfg.Model = az.Deployment
		}
		p.name = "azure-openai-embedding"
		p.endpoint = az.DeploymentURL("embeddings")
	} else {
		if cfg.Model == "" {
			cfg.Model = defaultOpenAIModel
		}
		p.endpoint = providers.OpenAIURL(cfg.BaseURL, "embeddings")
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultEmbedTimeout
	}
	p.cfg = cfg
	p.client = tlsutil.SecureHTTPClient(cfg.Timeout)
	return p, nil
}

func (p *OpenAIProvider) Name() string  { return p.name }
func (p *OpenAIProvider) Model() string { return p.cfg.Model }

// Dimensions 返回配置的维度，未配置时按模型推断，未知模型返回 0.
func (p *OpenAIProvider) Dimensions() int {
	if p.cfg.Dimensions > 0 {
		return p.cfg.Dimensions
	}
	return modelDimensions[p.cfg.Model]
}

type embedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Embed 一次请求嵌入 texts，不分批. 上游错误映射为 *llm.Error.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) (*Result, error) {
	body := embedRequest{Input: texts, Dimensions: p.cfg.Dimensions}
	// Azure 由部署决定模型
	if p.cfg.Azure == nil {
		body.Model = p.cfg.Model
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	providers.SetAuthHeaders(req.Header, p.cfg.APIKey, "", p.cfg.Azure != nil)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  ctx.Err() == nil,
			Provider:   p.name,
		}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, providers.FromResponse(resp, p.name)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	// data 不保证按 index 排列
	vectors := make([][]float64, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embedding count mismatch: missing index %d of %d", i, len(texts))
		}
	}
	return &Result{Model: out.Model, Vectors: vectors, Usage: out.Usage}, nil
}

// EmbedDocuments 按 MaxBatch 分批并发请求，结果保持输入顺序. 任一批失败则整体失败.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	out := make([][]float64, len(documents))
	if len(documents) == 0 {
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for start := 0; start < len(documents); start += p.cfg.MaxBatch {
		end := min(start+p.cfg.MaxBatch, len(documents))
		g.Go(func() error {
			res, err := p.Embed(gctx, documents[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], res.Vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
