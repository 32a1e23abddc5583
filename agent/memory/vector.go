package memory

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/types"
)

// MimeTypeText 是召回结果的默认内容类型。
const MimeTypeText = "text/plain"

// Document 是向量存储中的一条记录。
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float64      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchHit 是一次相似度检索的命中。
type SearchHit struct {
	Document Document
	Score    float64
}

// VectorStore 是单个索引上的向量存储。
type VectorStore interface {
	Upsert(ctx context.Context, docs []Document) error
	// Search 按相似度降序返回至多 topK 条命中；filter 为元数据等值过滤。
	Search(ctx context.Context, vector []float64, topK int, filter map[string]any) ([]SearchHit, error)
	Close() error
}

// Embedder 把文本转为向量，返回顺序与输入一致。
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedderFunc 适配普通函数为 Embedder。
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float64, error)

func (f EmbedderFunc) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return f(ctx, texts)
}

// Entry 是写入长期记忆的内容。
type Entry struct {
	Content  string
	Metadata map[string]any
}

// Result 是长期记忆的召回结果。
type Result struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	MimeType string         `json:"mime_type"`
	Score    float64        `json:"score"`
}

// LongTerm 是可被智能体查询的长期记忆。
type LongTerm interface {
	Query(ctx context.Context, text string, topK int, filter map[string]any) ([]Result, error)
}

// VectorMemory 是绑定到命名索引的语义记忆。
type VectorMemory struct {
	index    string
	store    VectorStore
	embedder Embedder
	logger   *zap.Logger
}

// NewVectorMemory 创建语义记忆。
func NewVectorMemory(index string, store VectorStore, embedder Embedder, logger *zap.Logger) (*VectorMemory, error) {
	if strings.TrimSpace(index) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "memory index is required")
	}
	if store == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "vector store is required")
	}
	if embedder == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorMemory{
		index:    index,
		store:    store,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "vector_memory"), zap.String("index", index)),
	}, nil
}

// Index 返回索引名。
func (m *VectorMemory) Index() string { return m.index }

// Add 向量化并写入条目，每条分配新的 uuid。
func (m *VectorMemory) Add(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Content
	}
	vectors, err := m.embedder.Embed(ctx, texts)
	if err != nil {
		return types.WrapError(err, types.ErrMemoryUnavailable, "embed entries")
	}
	if len(vectors) != len(entries) {
		return types.NewError(types.ErrMemoryUnavailable,
			fmt.Sprintf("embedder returned %d vectors for %d entries", len(vectors), len(entries)))
	}

	docs := make([]Document, len(entries))
	for i, e := range entries {
		docs[i] = Document{
			ID:        uuid.NewString(),
			Content:   e.Content,
			Embedding: vectors[i],
			Metadata:  cloneMap(e.Metadata),
		}
	}
	if err := m.store.Upsert(ctx, docs); err != nil {
		return types.WrapError(err, types.ErrMemoryUnavailable, "upsert documents")
	}
	m.logger.Debug("memory entries added", zap.Int("count", len(docs)))
	return nil
}

// Query 召回与 text 最相似的 topK 条内容。
func (m *VectorMemory) Query(ctx context.Context, text string, topK int, filter map[string]any) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}
	vectors, err := m.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, types.WrapError(err, types.ErrMemoryUnavailable, "embed query")
	}
	if len(vectors) != 1 {
		return nil, types.NewError(types.ErrMemoryUnavailable, "embedder returned no vector for query")
	}

	hits, err := m.store.Search(ctx, vectors[0], topK, filter)
	if err != nil {
		return nil, types.WrapError(err, types.ErrMemoryUnavailable, "search documents")
	}
	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		out = append(out, Result{
			Content:  h.Document.Content,
			Metadata: cloneMap(h.Document.Metadata),
			MimeType: MimeTypeText,
			Score:    h.Score,
		})
	}
	return out, nil
}

// Clear 未实现，仅记录告警。
func (m *VectorMemory) Clear(ctx context.Context) error {
	m.logger.Warn("clear is not implemented for vector memory")
	return nil
}

// UpdateContext 对语义记忆无操作。
func (m *VectorMemory) UpdateContext(ctx context.Context, text string) error {
	return nil
}

// Close 关闭底层存储。
func (m *VectorMemory) Close() error {
	return m.store.Close()
}

// Recall 查询长期记忆，出错时降级为空结果。
func Recall(ctx context.Context, mem LongTerm, text string, topK int, logger *zap.Logger) []Result {
	if mem == nil {
		return nil
	}
	results, err := mem.Query(ctx, text, topK, nil)
	if err != nil {
		if logger != nil {
			logger.Warn("memory recall failed, continuing without it",
				zap.String("query", text),
				zap.Error(err))
		}
		return nil
	}
	return results
}

func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	if metadata == nil {
		return false
	}
	for k, v := range filter {
		mv, ok := metadata[k]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(mv, v) {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
