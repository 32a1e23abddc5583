package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/internal/cache"
)

func TestCachedEmbedder_HitsSkipUpstream(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	manager, err := cache.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	var calls, embedded atomic.Int64
	upstream := EmbedderFunc(func(ctx context.Context, texts []string) ([][]float64, error) {
		calls.Add(1)
		embedded.Add(int64(len(texts)))
		return wordEmbedder()(ctx, texts)
	})

	var hits, misses atomic.Int64
	emb := NewCachedEmbedder(upstream, manager, "text-embedding-ada-002", time.Hour, nil).
		OnLookup(func(hit bool) {
			if hit {
				hits.Add(1)
			} else {
				misses.Add(1)
			}
		})
	ctx := context.Background()

	first, err := emb.Embed(ctx, []string{"python resume", "remote go"})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := emb.Embed(ctx, []string{"remote go", "python resume", "kubernetes"})
	require.NoError(t, err)
	require.Len(t, second, 3)

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[1])
	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 3, embedded.Load(), "only the new text reaches upstream")
	assert.EqualValues(t, 2, hits.Load())
	assert.EqualValues(t, 3, misses.Load())

	keys := mr.Keys()
	assert.Len(t, keys, 3)
	for _, k := range keys {
		assert.Contains(t, k, "careerflow:emb:text-embedding-ada-002:")
	}
}

func TestCachedEmbedder_CacheDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.MaxRetries = -1
	manager, err := cache.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	mr.Close()

	emb := NewCachedEmbedder(wordEmbedder(), manager, "m", time.Minute, nil)
	vecs, err := emb.Embed(context.Background(), []string{"go"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, 1.0, vecs[0][3])
}

func TestCachedEmbedder_ShortUpstreamResponse(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	manager, err := cache.NewManager(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	short := EmbedderFunc(func(ctx context.Context, texts []string) ([][]float64, error) {
		return [][]float64{{1}}, nil
	})
	_, err = NewCachedEmbedder(short, manager, "m", 0, nil).Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}
