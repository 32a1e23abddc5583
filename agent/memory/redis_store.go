package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStoreConfig 配置 Redis 向量存储。
type RedisStoreConfig struct {
	Index     string `json:"index" yaml:"index"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	// CloseClient 为 true 时 Close 会关闭底层连接。
	CloseClient bool `json:"-" yaml:"-"`
}

// RedisStore 为每个文档保存一个 hash，并在索引集合上做暴力余弦检索。
// 适合 CV、画像这类小规模记忆。
type RedisStore struct {
	client redis.UniversalClient
	cfg    RedisStoreConfig
	logger *zap.Logger
}

// NewRedisStore 创建 Redis 存储。
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig, logger *zap.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if strings.TrimSpace(cfg.Index) == "" {
		return nil, fmt.Errorf("redis store index is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "vector_store_redis"), zap.String("index", cfg.Index)),
	}, nil
}

func (s *RedisStore) setKey() string {
	return s.cfg.KeyPrefix + "vec:" + s.cfg.Index + ":ids"
}

func (s *RedisStore) docKey(id string) string {
	return s.cfg.KeyPrefix + "vec:" + s.cfg.Index + ":doc:" + id
}

func (s *RedisStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	ids := make([]any, 0, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("document[%d] has empty id", i)
		}
		if len(d.Embedding) == 0 {
			return fmt.Errorf("document[%d] has no embedding", i)
		}
		vec, err := json.Marshal(d.Embedding)
		if err != nil {
			return err
		}
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", d.ID, err)
		}
		pipe.HSet(ctx, s.docKey(d.ID), map[string]any{
			"id":        d.ID,
			"content":   d.Content,
			"embedding": string(vec),
			"metadata":  string(meta),
		})
		ids = append(ids, d.ID)
	}
	pipe.SAdd(ctx, s.setKey(), ids...)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}
	s.logger.Debug("documents upserted", zap.Int("count", len(docs)))
	return nil
}

func (s *RedisStore) Search(ctx context.Context, vector []float64, topK int, filter map[string]any) ([]SearchHit, error) {
	if topK <= 0 {
		return []SearchHit{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list index: %w", err)
	}
	if len(ids) == 0 {
		return []SearchHit{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.docKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis load documents: %w", err)
	}

	hits := make([]SearchHit, 0, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			// 集合中残留的 ID，文档已过期或被删除
			continue
		}
		doc, emb, err := decodeRedisDoc(fields)
		if err != nil {
			s.logger.Warn("skip malformed document", zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		if !matchesFilter(doc.Metadata, filter) {
			continue
		}
		hits = append(hits, SearchHit{Document: doc, Score: cosineSimilarity(vector, emb)})
	}
	sortHits(hits)

	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

func decodeRedisDoc(fields map[string]string) (Document, []float64, error) {
	doc := Document{ID: fields["id"], Content: fields["content"]}
	var emb []float64
	if err := json.Unmarshal([]byte(fields["embedding"]), &emb); err != nil {
		return doc, nil, fmt.Errorf("decode embedding: %w", err)
	}
	if raw := fields["metadata"]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &doc.Metadata); err != nil {
			return doc, nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return doc, emb, nil
}

// Count 返回索引中的文档数。
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	return s.client.SCard(ctx, s.setKey()).Result()
}

func (s *RedisStore) Close() error {
	if s.cfg.CloseClient {
		return s.client.Close()
	}
	return nil
}
