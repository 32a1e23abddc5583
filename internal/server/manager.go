package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/internal/tlsutil"
)

type state int

const (
	stateIdle state = iota
	stateServing
	stateStopped
)

// Config 是单个监听端口的配置. 网关与指标端口各用一份.
type Config struct {
	Addr              string        `yaml:"addr" json:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout"`

	// 劫持后的 websocket 连接仍受这两个超时约束，网关端口保持 0
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	TLSCertFile string `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" json:"tls_key_file"`
}

func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   30 * time.Second,
	}
}

func (c Config) tls() bool { return c.TLSCertFile != "" && c.TLSKeyFile != "" }

// Manager 负责一个 http.Server 的启动、优雅关闭与信号等待.
type Manager struct {
	srv    *http.Server
	config Config
	logger *zap.Logger

	mu       sync.RWMutex
	state    state
	listener net.Listener
	drains   []func()

	errCh chan error
}

func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              config.Addr,
		Handler:           handler,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
		ErrorLog:          zap.NewStdLog(logger.Named("net_http")),
	}
	if config.tls() {
		srv.TLSConfig = tlsutil.ServerTLSConfig()
	}
	return &Manager{
		srv:    srv,
		config: config,
		logger: logger.With(zap.String("component", "http_server")),
		errCh:  make(chan error, 1),
	}
}

// OnShutdown 注册排空回调. Shutdown 不跟踪被劫持的连接，
// 聊天会话在回调里自行关闭，Shutdown 会等回调结束或 ctx 超时.
func (m *Manager) OnShutdown(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drains = append(m.drains, fn)
}

// Start 监听并在后台开始服务.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateServing:
		return fmt.Errorf("server already started on %s", m.listener.Addr())
	case stateStopped:
		return errors.New("server is closed")
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.config.Addr, err)
	}
	m.listener = ln
	m.state = stateServing

	m.logger.Info("http server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", m.config.tls()))

	go func() {
		var err error
		if m.config.tls() {
			err = m.srv.ServeTLS(ln, m.config.TLSCertFile, m.config.TLSKeyFile)
		} else {
			err = m.srv.Serve(ln)
		}
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		m.logger.Error("http server stopped with error", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}()
	return nil
}

// Shutdown 停止接收新连接，排空普通请求，然后执行 OnShutdown 回调.
// 重复调用无操作.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.state == stateStopped {
		m.mu.Unlock()
		return nil
	}
	m.state = stateStopped
	drains := append([]func(){}, m.drains...)
	m.mu.Unlock()

	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}

	m.logger.Info("http server shutting down", zap.Int("drain_hooks", len(drains)))
	err := m.srv.Shutdown(ctx)
	if err != nil {
		m.logger.Error("http server shutdown incomplete", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, fn := range drains {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fn()
			}()
		}
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("drain hooks did not finish before deadline")
		if err == nil {
			err = ctx.Err()
		}
	}

	if err == nil {
		m.logger.Info("http server stopped")
	}
	return err
}

// Wait 阻塞到 SIGINT/SIGTERM、ctx 结束或服务异常退出. 只有最后一种返回错误.
func (m *Manager) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info("received shutdown signal", zap.Stringer("signal", sig))
		return nil
	case <-ctx.Done():
		return nil
	case err := <-m.errCh:
		return err
	}
}

func (m *Manager) Errors() <-chan error { return m.errCh }

// Addr 返回实际监听地址，未启动时返回配置地址.
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateServing
}
