package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/llm"
)

// WebSearchToolName 是暴露给研究员 Agent 的搜索工具名.
const WebSearchToolName = "brave_web_search"

const (
	maxSearchCount   = 20
	maxSearchOffset  = 9
	maxQueryRunes    = 400
	maxSnippetRunes  = 300
	searchCacheSpace = "search:"
)

// WebSearchProvider 是网页搜索后端.
type WebSearchProvider interface {
	Search(ctx context.Context, query string, opts WebSearchOptions) ([]WebSearchResult, error)
	Name() string
}

type WebSearchOptions struct {
	Count      int    `json:"count"`
	Offset     int    `json:"offset,omitempty"`
	Country    string `json:"country,omitempty"`
	SafeSearch string `json:"safesearch,omitempty"`
	Freshness  string `json:"freshness,omitempty"` // pd / pw / pm / py
}

func DefaultWebSearchOptions() WebSearchOptions {
	return WebSearchOptions{Count: 10, SafeSearch: "moderate"}
}

// WebSearchResult 是一条搜索结果. Snippet 已截断到 maxSnippetRunes.
type WebSearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	PublishedAt string `json:"published_at,omitempty"`
}

// =============================================================================
// 🔧 结果缓存
// =============================================================================

// JSONCache 是搜索缓存的最小接口，cache.Manager 满足它.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CachedSearchProvider 按 (query, opts) 缓存搜索结果.
// 同一会话里研究员经常重复同一个薪资或岗位查询，Brave 免费档配额很紧.
type CachedSearchProvider struct {
	next   WebSearchProvider
	cache  JSONCache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedSearchProvider(next WebSearchProvider, cache JSONCache, ttl time.Duration, logger *zap.Logger) *CachedSearchProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedSearchProvider{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (p *CachedSearchProvider) Name() string { return p.next.Name() }

// Search 读缓存失败一律当作未命中，写缓存失败只记日志.
func (p *CachedSearchProvider) Search(ctx context.Context, query string, opts WebSearchOptions) ([]WebSearchResult, error) {
	key := searchCacheKey(p.next.Name(), query, opts)

	var cached []WebSearchResult
	if err := p.cache.GetJSON(ctx, key, &cached); err == nil {
		p.logger.Debug("web search cache hit", zap.String("query", query))
		return cached, nil
	}

	results, err := p.next.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if err := p.cache.SetJSON(ctx, key, results, p.ttl); err != nil {
		p.logger.Warn("web search cache write failed", zap.String("query", query), zap.Error(err))
	}
	return results, nil
}

func searchCacheKey(provider, query string, opts WebSearchOptions) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	raw, _ := json.Marshal(struct {
		Q string           `json:"q"`
		O WebSearchOptions `json:"o"`
	}{norm, opts})
	sum := sha256.Sum256(raw)
	return searchCacheSpace + provider + ":" + hex.EncodeToString(sum[:12])
}

// =============================================================================
// 🔧 工具
// =============================================================================

type WebSearchToolConfig struct {
	Provider    WebSearchProvider
	DefaultOpts WebSearchOptions
	Timeout     time.Duration
	RateLimit   *RateLimitConfig
}

// DefaultWebSearchToolConfig 的限流对应 Brave 免费档 1 次/秒.
func DefaultWebSearchToolConfig() WebSearchToolConfig {
	return WebSearchToolConfig{
		DefaultOpts: DefaultWebSearchOptions(),
		Timeout:     15 * time.Second,
		RateLimit:   &RateLimitConfig{MaxCalls: 1, Window: time.Second, Wait: true},
	}
}

type webSearchArgs struct {
	Query  string `json:"query"`
	Count  int    `json:"count,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

type webSearchResponse struct {
	Query   string            `json:"query"`
	Results []WebSearchResult `json:"results"`
}

// NewWebSearchTool 返回搜索工具. 结果按 URL 去重，摘要截断后再交给模型.
func NewWebSearchTool(config WebSearchToolConfig, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tool", WebSearchToolName))

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var params webSearchArgs
		if err := json.Unmarshal(args, &params); err != nil {
			return nil, fmt.Errorf("invalid %s arguments: %w", WebSearchToolName, err)
		}
		query := strings.TrimSpace(params.Query)
		if query == "" {
			return nil, fmt.Errorf("query is required")
		}
		if config.Provider == nil {
			return nil, fmt.Errorf("web search provider not configured")
		}
		query = truncateRunes(query, maxQueryRunes)

		opts := config.DefaultOpts
		if params.Count > 0 {
			opts.Count = min(params.Count, maxSearchCount)
		}
		if params.Offset > 0 {
			opts.Offset = min(params.Offset, maxSearchOffset)
		}

		start := time.Now()
		results, err := config.Provider.Search(ctx, query, opts)
		if err != nil {
			logger.Error("web search failed", zap.String("query", query), zap.Error(err))
			return nil, fmt.Errorf("web search failed: %w", err)
		}
		results = tidyResults(results)

		logger.Info("web search completed",
			zap.String("query", query),
			zap.String("provider", config.Provider.Name()),
			zap.Int("results", len(results)),
			zap.Duration("duration", time.Since(start)))

		return json.Marshal(webSearchResponse{Query: query, Results: results})
	}

	metadata := ToolMetadata{
		Schema: llm.ToolSchema{
			Name: WebSearchToolName,
			Description: "Searches the web with Brave Search. Use it for job postings, salary ranges, " +
				"company background, hiring trends and recent industry news.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Search query, at most 400 characters"},
					"count": {"type": "integer", "description": "Number of results, 1-20", "default": 10},
					"offset": {"type": "integer", "description": "Result page, 0-9", "default": 0}
				},
				"required": ["query"]
			}`),
		},
		Timeout:   config.Timeout,
		RateLimit: config.RateLimit,
	}
	return fn, metadata
}

func RegisterWebSearchTool(registry *Registry, config WebSearchToolConfig, logger *zap.Logger) error {
	fn, metadata := NewWebSearchTool(config, logger)
	return registry.Register(WebSearchToolName, fn, metadata)
}

// tidyResults 丢弃空 URL 与重复 URL，保持原有顺序.
func tidyResults(in []WebSearchResult) []WebSearchResult {
	seen := make(map[string]struct{}, len(in))
	out := make([]WebSearchResult, 0, len(in))
	for _, r := range in {
		u := strings.TrimRight(strings.TrimSpace(r.URL), "/")
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		r.Snippet = truncateRunes(strings.TrimSpace(r.Snippet), maxSnippetRunes)
		out = append(out, r)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
