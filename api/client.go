package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// ChatPath 是会话 websocket 的路径.
const ChatPath = "/ws/chat"

// clientReadLimit 覆盖较长的 Agent 回复.
const clientReadLimit = 1 << 20

// ClosedError 表示服务端关闭了会话连接.
type ClosedError struct {
	Code   websocket.StatusCode
	Reason string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("session closed: %d %s", e.Code, e.Reason)
}

// Normal 表示会话以 end_signal 或 max_turns 正常结束.
func (e *ClosedError) Normal() bool {
	return e.Code == websocket.StatusNormalClosure
}

// Client 是 /ws/chat 的客户端. Send 可与 Receive 并发调用.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
}

type clientOptions struct {
	apiKey string
	header http.Header
	logger *zap.Logger
}

// ClientOption configures Dial.
type ClientOption func(*clientOptions)

// WithAPIKey 通过查询参数携带 API key.
func WithAPIKey(key string) ClientOption {
	return func(o *clientOptions) { o.apiKey = key }
}

// WithHeader 追加握手请求头，例如 Authorization.
func WithHeader(key, value string) ClientOption {
	return func(o *clientOptions) { o.header.Add(key, value) }
}

func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// ChatURL 由服务地址构造 websocket 地址. http/https 分别映射为 ws/wss.
func ChatURL(baseURL, sessionID, apiKey string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + ChatPath

	q := u.Query()
	if sessionID != "" {
		q.Set(SessionIDParam, sessionID)
	}
	if apiKey != "" {
		q.Set(APIKeyParam, apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial 连接到服务端并绑定 sessionID 对应的会话. sessionID 为空时由服务端生成.
func Dial(ctx context.Context, baseURL, sessionID string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{header: http.Header{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	target, err := ChatURL(baseURL, sessionID, o.apiKey)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: o.header})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	conn.SetReadLimit(clientReadLimit)

	return &Client{
		conn:      conn,
		sessionID: sessionID,
		logger:    o.logger.With(zap.String("component", "chat_client"), zap.String("session_id", sessionID)),
	}, nil
}

// SessionID 返回连接时指定的会话 ID.
func (c *Client) SessionID() string { return c.sessionID }

// Send 发送一条用户消息.
func (c *Client) Send(ctx context.Context, content string) error {
	if err := wsjson.Write(ctx, c.conn, Inbound{Content: content}); err != nil {
		return c.mapErr(err)
	}
	return nil
}

// Receive 阻塞读取下一条事件. 服务端关闭连接时返回 *ClosedError.
func (c *Client) Receive(ctx context.Context) (Event, error) {
	var ev Event
	if err := wsjson.Read(ctx, c.conn, &ev); err != nil {
		return Event{}, c.mapErr(err)
	}
	return ev, nil
}

// Close 以 1000 关闭连接，重复调用无效.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close(websocket.StatusNormalClosure, "client closing")
}

func (c *Client) mapErr(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		c.logger.Debug("server closed session", zap.Int("code", int(ce.Code)), zap.String("reason", ce.Reason))
		return &ClosedError{Code: ce.Code, Reason: ce.Reason}
	}
	return err
}
