package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BaSui01/careerflow/internal/tlsutil"
)

// DefaultBraveEndpoint 是 Brave Web Search API 地址.
const DefaultBraveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveConfig 配置 Brave 搜索.
type BraveConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// BraveProvider 实现 WebSearchProvider.
type BraveProvider struct {
	cfg    BraveConfig
	client *http.Client
}

// NewBraveProvider 创建 Brave 搜索后端.
func NewBraveProvider(cfg BraveConfig) (*BraveProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("brave api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultBraveEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &BraveProvider{cfg: cfg, client: tlsutil.SecureHTTPClient(cfg.Timeout)}, nil
}

func (p *BraveProvider) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Age         string `json:"age"`
		} `json:"results"`
	} `json:"web"`
}

func (p *BraveProvider) Search(ctx context.Context, query string, opts WebSearchOptions) ([]WebSearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	if opts.Count > 0 {
		q.Set("count", strconv.Itoa(opts.Count))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Country != "" {
		q.Set("country", opts.Country)
	}
	if opts.SafeSearch != "" {
		q.Set("safesearch", opts.SafeSearch)
	}
	if opts.Freshness != "" {
		q.Set("freshness", opts.Freshness)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("brave search returned %d: %s", resp.StatusCode, string(body))
	}

	var out braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode brave response: %w", err)
	}

	results := make([]WebSearchResult, 0, len(out.Web.Results))
	for _, r := range out.Web.Results {
		results = append(results, WebSearchResult{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Description,
			PublishedAt: r.Age,
		})
	}
	return results, nil
}
