package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/conversation"
	"github.com/BaSui01/careerflow/types"
)

// Recorder 把会话进度写入 TranscriptStore. 写失败只记日志，不影响会话.
type Recorder struct {
	conversation.BaseObserver

	store   *TranscriptStore
	timeout time.Duration
	logger  *zap.Logger

	opened sync.Map // sessionID -> struct{}
}

// NewRecorder creates a session observer backed by store.
func NewRecorder(store *TranscriptStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, timeout: 5 * time.Second, logger: logger.With(zap.String("component", "transcript_recorder"))}
}

func (r *Recorder) OnMessage(ctx context.Context, sessionID string, msg types.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	r.open(ctx, sessionID)
	if err := r.store.AppendMessage(ctx, sessionID, msg); err != nil {
		r.logger.Warn("persist message failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (r *Recorder) OnEnd(ctx context.Context, res *conversation.Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	r.open(ctx, res.SessionID)
	defer r.opened.Delete(res.SessionID)
	if err := r.store.FinishSession(ctx, res.SessionID, string(res.TerminationReason), res.Turns); err != nil {
		r.logger.Warn("persist session end failed", zap.String("session_id", res.SessionID), zap.Error(err))
	}
}

// open 在会话第一条消息前写入会话记录.
func (r *Recorder) open(ctx context.Context, sessionID string) {
	if _, loaded := r.opened.LoadOrStore(sessionID, struct{}{}); loaded {
		return
	}
	if err := r.store.SaveSession(ctx, sessionID); err != nil {
		r.opened.Delete(sessionID)
		r.logger.Warn("persist session start failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}
