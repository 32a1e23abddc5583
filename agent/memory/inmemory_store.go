package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// InMemoryStoreConfig 配置进程内向量存储。
type InMemoryStoreConfig struct {
	// Dimension > 0 时校验写入与查询向量的维度。
	Dimension int
}

// InMemoryStore 是进程内的余弦相似度向量存储，支持元数据等值过滤。
type InMemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]Document
	dimension int
	closed    bool
	logger    *zap.Logger
}

func NewInMemoryStore(config InMemoryStoreConfig, logger *zap.Logger) *InMemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryStore{
		docs:      make(map[string]Document),
		dimension: config.Dimension,
		logger:    logger.With(zap.String("component", "vector_store_inmemory")),
	}
}

func (s *InMemoryStore) Upsert(ctx context.Context, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document id is required")
		}
		if d.Embedding == nil {
			return fmt.Errorf("document %s has no embedding", d.ID)
		}
		if s.dimension > 0 && len(d.Embedding) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: got %d want %d", len(d.Embedding), s.dimension)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	for _, d := range docs {
		s.docs[d.ID] = Document{
			ID:        d.ID,
			Content:   d.Content,
			Embedding: append([]float64(nil), d.Embedding...),
			Metadata:  cloneMap(d.Metadata),
		}
	}
	s.logger.Debug("documents upserted", zap.Int("count", len(docs)))
	return nil
}

func (s *InMemoryStore) Search(ctx context.Context, vector []float64, topK int, filter map[string]any) ([]SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vector == nil {
		return nil, fmt.Errorf("query vector is required")
	}
	if s.dimension > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: got %d want %d", len(vector), s.dimension)
	}
	if topK <= 0 {
		return []SearchHit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}

	hits := make([]SearchHit, 0, len(s.docs))
	for _, d := range s.docs {
		if !matchesFilter(d.Metadata, filter) {
			continue
		}
		hits = append(hits, SearchHit{
			Document: Document{ID: d.ID, Content: d.Content, Metadata: cloneMap(d.Metadata)},
			Score:    cosineSimilarity(vector, d.Embedding),
		})
	}
	sortHits(hits)

	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

// Len 返回文档数量。
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// sortHits 按分数降序，同分按 ID 排序保证结果稳定。
func sortHits(hits []SearchHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
}
