package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/careerflow/internal/database"
	"github.com/BaSui01/careerflow/types"
)

const appendRetries = 3

// TranscriptStore 把会话与消息写入关系库.
type TranscriptStore struct {
	pool   *database.PoolManager
	db     *gorm.DB
	logger *zap.Logger

	mu  sync.Mutex
	seq map[string]int // 会话下一条消息的序号
}

// NewTranscriptStore creates a store over the pool. 表由迁移创建.
func NewTranscriptStore(pool *database.PoolManager, logger *zap.Logger) (*TranscriptStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptStore{
		pool:   pool,
		db:     pool.DB(),
		logger: logger.With(zap.String("component", "transcript_store")),
		seq:    make(map[string]int),
	}, nil
}

// SaveSession 记录会话开始. 已存在的会话保持不变.
func (s *TranscriptStore) SaveSession(ctx context.Context, id string) error {
	rec := SessionRecord{ID: id, Status: StatusActive, StartedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// AppendMessage 追加一条消息，序号按会话递增. 序号冲突时重新读取并重试.
func (s *TranscriptStore) AppendMessage(ctx context.Context, sessionID string, msg types.Message) error {
	rec, err := toRecord(sessionID, msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, cached := s.seq[sessionID]
	err = s.pool.WithTransactionRetry(ctx, appendRetries, func(tx *gorm.DB) error {
		if !cached {
			var last int64
			if err := tx.Model(&MessageRecord{}).
				Where("session_id = ?", sessionID).
				Select("COALESCE(MAX(seq), -1)").Row().Scan(&last); err != nil {
				return fmt.Errorf("load sequence for %s: %w", sessionID, err)
			}
			next = int(last) + 1
		}
		rec.Seq = next
		if err := tx.Create(&rec).Error; err != nil {
			cached = false
			return err
		}
		return nil
	})
	if err != nil {
		delete(s.seq, sessionID)
		return fmt.Errorf("append message to %s: %w", sessionID, err)
	}
	s.seq[sessionID] = next + 1
	return nil
}

// DeleteSession 删除会话及其全部消息.
func (s *TranscriptStore) DeleteSession(ctx context.Context, id string) error {
	var affected int64
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&MessageRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&SessionRecord{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}

	s.mu.Lock()
	delete(s.seq, id)
	s.mu.Unlock()

	if affected == 0 {
		return types.NewError(types.ErrSessionNotFound, "session not found: "+id)
	}
	return nil
}

// FinishSession 记录终止原因与回合数.
func (s *TranscriptStore) FinishSession(ctx context.Context, id, reason string, turns int) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&SessionRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":             StatusEnded,
			"termination_reason": reason,
			"turns":              turns,
			"ended_at":           now,
			"updated_at":         now,
		})
	if res.Error != nil {
		return fmt.Errorf("finish session %s: %w", id, res.Error)
	}

	s.mu.Lock()
	delete(s.seq, id)
	s.mu.Unlock()

	if res.RowsAffected == 0 {
		return types.NewError(types.ErrSessionNotFound, "session not found: "+id)
	}
	return nil
}

// Session 返回会话记录.
func (s *TranscriptStore) Session(ctx context.Context, id string) (*SessionRecord, error) {
	var rec SessionRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &rec, nil
}

// Sessions 按开始时间倒序列出会话.
func (s *TranscriptStore) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var recs []SessionRecord
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return recs, nil
}

// Messages 按历史顺序返回会话的消息.
func (s *TranscriptStore) Messages(ctx context.Context, sessionID string) ([]types.Message, error) {
	var recs []MessageRecord
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", sessionID, err)
	}

	out := make([]types.Message, 0, len(recs))
	for _, r := range recs {
		m, err := fromRecord(r)
		if err != nil {
			s.logger.Warn("skipping malformed message", zap.String("id", r.ID), zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func toRecord(sessionID string, m types.Message) (MessageRecord, error) {
	rec := MessageRecord{
		ID:        m.ID,
		SessionID: sessionID,
		Source:    m.Source,
		Kind:      string(m.Kind),
		Content:   m.Content,
		Target:    m.Target,
		CreatedAt: m.Timestamp.UTC(),
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if m.Tool != nil {
		rec.ToolName = m.Tool.Name
		rec.ToolCallID = m.Tool.ID
		rec.ToolArgs = string(m.Tool.Arguments)
	}
	if len(m.Metadata) > 0 {
		md, err := json.Marshal(m.Metadata)
		if err != nil {
			return MessageRecord{}, fmt.Errorf("encode metadata: %w", err)
		}
		rec.Metadata = string(md)
	}
	return rec, nil
}

func fromRecord(r MessageRecord) (types.Message, error) {
	m := types.Message{
		ID:        r.ID,
		Source:    r.Source,
		Content:   r.Content,
		Kind:      types.MessageKind(r.Kind),
		Target:    r.Target,
		Timestamp: r.CreatedAt,
	}
	if r.ToolName != "" || r.ToolCallID != "" {
		m.Tool = &types.ToolCall{ID: r.ToolCallID, Name: r.ToolName}
		if r.ToolArgs != "" {
			m.Tool.Arguments = json.RawMessage(r.ToolArgs)
		}
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &m.Metadata); err != nil {
			return types.Message{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return m, nil
}
