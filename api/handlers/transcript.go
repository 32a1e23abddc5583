package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/conversation"
	"github.com/BaSui01/careerflow/agent/persistence"
	"github.com/BaSui01/careerflow/types"
)

// =============================================================================
// 📜 会话记录 Handler
// =============================================================================

// TranscriptReader 是会话记录的读取面，由 persistence.TranscriptStore 实现.
type TranscriptReader interface {
	Sessions(ctx context.Context, limit int) ([]persistence.SessionRecord, error)
	Session(ctx context.Context, id string) (*persistence.SessionRecord, error)
	Messages(ctx context.Context, sessionID string) ([]types.Message, error)
	DeleteSession(ctx context.Context, id string) error
}

// SessionDetail 是单个会话的响应体.
type SessionDetail struct {
	Session  *persistence.SessionRecord `json:"session"`
	Live     bool                       `json:"live"`
	Messages []types.Message            `json:"messages"`
}

// TranscriptHandler 提供会话列表与历史回放.
type TranscriptHandler struct {
	store    TranscriptReader
	sessions *conversation.Manager
	logger   *zap.Logger
}

// NewTranscriptHandler 创建会话记录处理器. store 为 nil 时只提供活跃会话列表.
func NewTranscriptHandler(store TranscriptReader, sessions *conversation.Manager, logger *zap.Logger) *TranscriptHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptHandler{
		store:    store,
		sessions: sessions,
		logger:   logger.With(zap.String("component", "transcript_handler")),
	}
}

// HandleList 处理 GET /api/v1/sessions?limit=
func (h *TranscriptHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	recs, err := h.store.Sessions(r.Context(), QueryInt(r, "limit", 50))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, recs)
}

// HandleActive 处理 GET /api/v1/sessions/active
func (h *TranscriptHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		WriteSuccess(w, r, []string{})
		return
	}
	ids, err := h.sessions.List(r.Context())
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "session index unavailable").WithCause(err), h.logger)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	WriteSuccess(w, r, ids)
}

// HandleGet 处理 GET /api/v1/sessions/{id}
func (h *TranscriptHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	id := r.PathValue("id")
	rec, err := h.store.Session(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	msgs, err := h.store.Messages(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, SessionDetail{Session: rec, Live: h.isLive(id), Messages: nonNil(msgs)})
}

// HandleMessages 处理 GET /api/v1/sessions/{id}/messages
func (h *TranscriptHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	id := r.PathValue("id")
	if _, err := h.store.Session(r.Context(), id); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	msgs, err := h.store.Messages(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, nonNil(msgs))
}

// HandleDelete 处理 DELETE /api/v1/sessions/{id}. 进行中的会话不能删除.
func (h *TranscriptHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	id := r.PathValue("id")
	if h.isLive(id) {
		WriteErrorMessage(w, r, http.StatusConflict, types.ErrInvalidRequest, "session is still active", h.logger)
		return
	}
	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	h.logger.Info("session deleted", zap.String("session_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *TranscriptHandler) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if h.store == nil {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "transcript storage is disabled", h.logger)
		return false
	}
	return true
}

func (h *TranscriptHandler) isLive(id string) bool {
	if h.sessions == nil {
		return false
	}
	_, ok := h.sessions.Get(id)
	return ok
}

func nonNil(msgs []types.Message) []types.Message {
	if msgs == nil {
		return []types.Message{}
	}
	return msgs
}
