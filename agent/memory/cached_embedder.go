package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// JSONCache 是 CachedEmbedder 需要的缓存能力，internal/cache.Manager 满足该接口。
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CachedEmbedder 按文本缓存嵌入向量，只对未命中的文本调用底层 Embedder。
// 缓存读写失败不影响结果。
type CachedEmbedder struct {
	next   Embedder
	cache  JSONCache
	model  string
	ttl    time.Duration
	logger *zap.Logger

	onLookup func(hit bool)
}

// NewCachedEmbedder 创建带缓存的 Embedder。model 参与缓存键，避免不同模型的向量混用。
func NewCachedEmbedder(next Embedder, cache JSONCache, model string, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		next:   next,
		cache:  cache,
		model:  model,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "cached_embedder")),
	}
}

// OnLookup 注册缓存命中回调，用于指标统计。
func (e *CachedEmbedder) OnLookup(fn func(hit bool)) *CachedEmbedder {
	e.onLookup = fn
	return e
}

func (e *CachedEmbedder) observe(hit bool) {
	if e.onLookup != nil {
		e.onLookup(hit)
	}
}

func (e *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + e.model + ":" + hex.EncodeToString(sum[:])
}

func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		var vec []float64
		if err := e.cache.GetJSON(ctx, e.key(t), &vec); err == nil && len(vec) > 0 {
			out[i] = vec
			e.observe(true)
			continue
		}
		e.observe(false)
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}
	for j, vec := range vectors {
		out[missIdx[j]] = vec
		if err := e.cache.SetJSON(ctx, e.key(missTexts[j]), vec, e.ttl); err != nil {
			e.logger.Debug("embedding cache write failed", zap.Error(err))
		}
	}
	e.logger.Debug("embeddings resolved",
		zap.Int("hits", len(texts)-len(missTexts)),
		zap.Int("misses", len(missTexts)))
	return out, nil
}
