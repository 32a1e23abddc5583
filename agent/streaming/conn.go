package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/conversation"
)

var (
	// ErrClosed 表示对端正常关闭或连接已被本端关闭.
	ErrClosed = errors.New("streaming: connection closed")
	// ErrInvalidInbound 表示收到的帧不是 {"content": "..."}.
	ErrInvalidInbound = errors.New("streaming: invalid inbound message")
)

// DefaultReadLimit 是单条入站消息的字节上限.
const DefaultReadLimit = 64 << 10

// maxCloseReason 是 RFC 6455 close frame 中 reason 的字节上限.
const maxCloseReason = 123

// Inbound 是客户端发来的消息.
type Inbound struct {
	Content string `json:"content"`
}

// Conn 把一个 websocket 连接适配为 conversation.EventSink 与入站读取器.
// 写操作通过 mutex 串行化，websocket 不支持并发写.
type Conn struct {
	ws     *websocket.Conn
	logger *zap.Logger

	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	closed    bool
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithWriteTimeout bounds each outbound frame. Zero means no bound.
func WithWriteTimeout(d time.Duration) ConnOption {
	return func(c *Conn) { c.writeTimeout = d }
}

// NewConn wraps an established websocket.
func NewConn(ws *websocket.Conn, logger *zap.Logger, opts ...ConnOption) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	ws.SetReadLimit(DefaultReadLimit)
	c := &Conn{
		ws:           ws,
		logger:       logger.With(zap.String("component", "ws_conn")),
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Accept 升级 HTTP 请求. originPatterns 为空时只允许同源.
func Accept(w http.ResponseWriter, r *http.Request, originPatterns []string, logger *zap.Logger, opts ...ConnOption) (*Conn, error) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
	if err != nil {
		return nil, fmt.Errorf("websocket accept: %w", err)
	}
	return NewConn(ws, logger, opts...), nil
}

// ReadInbound 阻塞读取下一条入站消息.
// 对端关闭返回 ErrClosed，格式错误返回 ErrInvalidInbound，连接仍可继续读.
func (c *Conn) ReadInbound(ctx context.Context) (Inbound, error) {
	typ, data, err := c.ws.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
			return Inbound{}, ErrClosed
		}
		if ctx.Err() != nil {
			return Inbound{}, ctx.Err()
		}
		return Inbound{}, fmt.Errorf("%w: %v", ErrClosed, err)
	}
	if typ != websocket.MessageText {
		return Inbound{}, fmt.Errorf("%w: binary frame", ErrInvalidInbound)
	}

	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrInvalidInbound, err)
	}
	return in, nil
}

// Emit implements conversation.EventSink.
func (c *Conn) Emit(ctx context.Context, ev conversation.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	if err := wsjson.Write(ctx, c.ws, ev); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// KeepAlive 周期性 ping 直到 ctx 结束或 ping 失败.
func (c *Conn) KeepAlive(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: ping: %v", ErrClosed, err)
			}
		}
	}
}

// Close 以给定状态码关闭连接，重复调用无效.
func (c *Conn) Close(code websocket.StatusCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
		err = c.ws.Close(code, reason)
		c.logger.Debug("connection closed", zap.Int("code", int(code)), zap.String("reason", reason))
	})
	return err
}
