package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/careerflow/agent/conversation"
	"github.com/BaSui01/careerflow/agent/hitl"
	"github.com/BaSui01/careerflow/agent/streaming"
	"github.com/BaSui01/careerflow/types"
)

// =============================================================================
// 💬 会话 websocket Handler
// =============================================================================

// SessionFactory 为一条连接装配会话. release 释放会话级资源，会话结束后调用一次.
type SessionFactory interface {
	NewSession(ctx context.Context, sessionID string, bridge *hitl.InputBridge, sink conversation.EventSink) (sess *conversation.Session, release func(), err error)
}

// ChatConfig 是 /ws/chat 的连接参数.
type ChatConfig struct {
	OriginPatterns []string
	KeepAlive      time.Duration
	WriteTimeout   time.Duration
}

// MaxSessionIDLength 与 chat_sessions.id 列宽一致.
const MaxSessionIDLength = 64

// InvalidInboundNotice 在收到无法解析的帧时下发.
const InvalidInboundNotice = `Invalid message: expected {"content": "..."}`

var errSessionDone = errors.New("session finished")

// ChatHandler 处理 /ws/chat?session_id=.
type ChatHandler struct {
	factory  SessionFactory
	sessions *conversation.Manager
	cfg      ChatConfig
	wrapSink func(conversation.EventSink) conversation.EventSink
	logger   *zap.Logger

	mu      sync.Mutex
	conns   map[*streaming.Conn]struct{}
	closing bool
}

// ChatOption configures a ChatHandler.
type ChatOption func(*ChatHandler)

// WithSinkWrapper 包装每条连接的事件下发，例如计数.
func WithSinkWrapper(fn func(conversation.EventSink) conversation.EventSink) ChatOption {
	return func(h *ChatHandler) { h.wrapSink = fn }
}

// NewChatHandler 创建会话处理器
func NewChatHandler(factory SessionFactory, sessions *conversation.Manager, cfg ChatConfig, logger *zap.Logger, opts ...ChatOption) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		sessions = conversation.NewManager(nil, logger)
	}
	h := &ChatHandler{
		factory:  factory,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "chat_handler")),
		conns:    make(map[*streaming.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP 升级连接并驱动会话直到结束或断开.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if !validSessionID(sessionID) {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "invalid session_id", h.logger)
		return
	}
	if _, live := h.sessions.Get(sessionID); live {
		WriteErrorMessage(w, r, http.StatusConflict, types.ErrInvalidRequest, "session already active", h.logger)
		return
	}
	if h.isClosing() {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrServiceUnavailable, "server shutting down", h.logger)
		return
	}

	conn, err := streaming.Accept(w, r, h.cfg.OriginPatterns, h.logger, streaming.WithWriteTimeout(h.cfg.WriteTimeout))
	if err != nil {
		// Accept 已经写出错误响应
		h.logger.Warn("websocket upgrade failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if !h.track(conn) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.untrack(conn)

	ctx := types.WithSessionID(r.Context(), sessionID)
	h.serve(ctx, sessionID, conn)
}

func (h *ChatHandler) serve(ctx context.Context, sessionID string, conn *streaming.Conn) {
	logger := h.logger.With(zap.String("session_id", sessionID))
	bridge := hitl.NewInputBridge()
	defer bridge.Close()

	var sink conversation.EventSink = conn
	if h.wrapSink != nil {
		sink = h.wrapSink(sink)
	}

	sess, release, err := h.factory.NewSession(ctx, sessionID, bridge, sink)
	if err != nil {
		logger.Error("create session failed", zap.Error(err))
		_ = sink.Emit(ctx, conversation.SystemEvent("Error: failed to start session"))
		_ = conn.Close(websocket.StatusInternalError, "failed to start session")
		return
	}
	if release != nil {
		defer release()
	}

	if err := h.sessions.Add(ctx, sess); err != nil {
		logger.Warn("session rejected", zap.Error(err))
		_ = conn.Close(websocket.StatusPolicyViolation, "session already active")
		return
	}
	defer h.sessions.Remove(context.WithoutCancel(ctx), sessionID)

	logger.Info("chat connected")

	var result *conversation.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, runErr := sess.Run(gctx, "")
		result = res
		h.closeAfterRun(gctx, conn, sink, res, runErr, logger)
		return errSessionDone
	})
	g.Go(func() error {
		return readInbound(gctx, conn, bridge, sink, logger)
	})
	g.Go(func() error {
		if err := conn.KeepAlive(gctx, h.cfg.KeepAlive); err != nil {
			return fmt.Errorf("%w: %v", conversation.ErrDisconnected, err)
		}
		return nil
	})
	_ = g.Wait()

	if result != nil {
		logger.Info("chat closed",
			zap.String("reason", string(result.TerminationReason)),
			zap.Int("turns", result.Turns))
	}
}

// closeAfterRun 通知结束原因并以 1000 或 1011 关闭连接.
func (h *ChatHandler) closeAfterRun(ctx context.Context, conn *streaming.Conn, sink conversation.EventSink, res *conversation.Result, runErr error, logger *zap.Logger) {
	if res == nil {
		logger.Error("session run failed", zap.Error(runErr))
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}

	switch res.TerminationReason {
	case conversation.ReasonDisconnected, conversation.ReasonCancelled:
		_ = conn.Close(websocket.StatusGoingAway, string(res.TerminationReason))
	case conversation.ReasonError:
		_ = conn.Close(websocket.StatusInternalError, "session error")
	default:
		notice := conversation.SystemEvent("Conversation ended: " + string(res.TerminationReason))
		if err := sink.Emit(context.WithoutCancel(ctx), notice); err != nil {
			logger.Debug("emit end notice failed", zap.Error(err))
		}
		_ = conn.Close(websocket.StatusNormalClosure, string(res.TerminationReason))
	}
}

// readInbound 把每条入站消息按到达顺序放入输入桥. 对端断开以 ErrDisconnected 结束整个会话.
func readInbound(ctx context.Context, conn *streaming.Conn, bridge *hitl.InputBridge, sink conversation.EventSink, logger *zap.Logger) error {
	for {
		in, err := conn.ReadInbound(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, streaming.ErrInvalidInbound):
			logger.Debug("invalid inbound frame", zap.Error(err))
			if emitErr := sink.Emit(ctx, conversation.SystemEvent(InvalidInboundNotice)); emitErr != nil {
				return fmt.Errorf("%w: %v", conversation.ErrDisconnected, emitErr)
			}
			continue
		default:
			return fmt.Errorf("%w: %v", conversation.ErrDisconnected, err)
		}

		if err := bridge.Submit(in.Content); err != nil {
			return nil
		}
	}
}

// Shutdown 以 1001 关闭全部连接，之后的升级请求返回 503.
func (h *ChatHandler) Shutdown() {
	h.mu.Lock()
	h.closing = true
	conns := make([]*streaming.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Close(websocket.StatusGoingAway, "server shutting down")
		}()
	}
	wg.Wait()
	if len(conns) > 0 {
		h.logger.Info("chat connections closed", zap.Int("count", len(conns)))
	}
}

// ActiveConnections 返回当前连接数.
func (h *ChatHandler) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *ChatHandler) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

func (h *ChatHandler) track(c *streaming.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *ChatHandler) untrack(c *streaming.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

func validSessionID(id string) bool {
	if len(id) > MaxSessionIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
