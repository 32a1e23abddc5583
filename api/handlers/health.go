package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Probe 检查一个依赖是否可用.
type Probe func(ctx context.Context) error

type check struct {
	name     string
	probe    Probe
	degrades bool
}

// CheckOption configures RegisterCheck.
type CheckOption func(*check)

// Degradable 标记非关键依赖：失败时 /ready 返回 200 与 "degraded".
// 会话记录库失败只影响回放，不影响正在进行的辅导.
func Degradable() CheckOption {
	return func(c *check) { c.degrades = true }
}

// HealthStatus 是 /healthz 与 /ready 的响应体.
type HealthStatus struct {
	Status    string                 `json:"status"` // ok, degraded, unhealthy
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Info      map[string]any         `json:"info,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"` // pass, fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthHandler 服务 /health、/healthz、/ready 与 /version.
type HealthHandler struct {
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	checks []check
	info   map[string]func() any
}

func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		timeout: 5 * time.Second,
		info:    make(map[string]func() any),
	}
}

// RegisterCheck 注册 /ready 时并发执行的依赖检查.
func (h *HealthHandler) RegisterCheck(name string, probe Probe, opts ...CheckOption) {
	c := check{name: name, probe: probe}
	for _, opt := range opts {
		opt(&c)
	}
	h.mu.Lock()
	h.checks = append(h.checks, c)
	h.mu.Unlock()
}

// RegisterInfo 在 /ready 响应中附带一个运行时数值，例如活跃会话数.
func (h *HealthHandler) RegisterInfo(name string, fn func() any) {
	h.mu.Lock()
	h.info[name] = fn
	h.mu.Unlock()
}

// HandleHealth 只表示进程存活.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleHealthz 是 Kubernetes 存活探针.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{Status: "ok", Timestamp: time.Now()})
}

// HandleReady 并发执行所有检查，整体受 timeout 限制.
// 任一关键检查失败返回 503；只有可降级检查失败时返回 200 与 degraded.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]check(nil), h.checks...)
	info := make(map[string]any, len(h.info))
	for name, fn := range h.info {
		info[name] = fn()
	}
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = h.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	status := HealthStatus{Status: "ok", Timestamp: time.Now(), Checks: make(map[string]CheckResult, len(checks))}
	if len(info) > 0 {
		status.Info = info
	}
	code := http.StatusOK
	for i, c := range checks {
		status.Checks[c.name] = results[i]
		if results[i].Status == "pass" {
			continue
		}
		if c.degrades {
			if status.Status == "ok" {
				status.Status = "degraded"
			}
			continue
		}
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

func (h *HealthHandler) run(ctx context.Context, c check) CheckResult {
	start := time.Now()
	err := c.probe(ctx)
	latency := time.Since(start)
	if err == nil {
		return CheckResult{Status: "pass", Latency: latency.String()}
	}
	h.logger.Warn("health check failed",
		zap.String("check", c.name),
		zap.Bool("degradable", c.degrades),
		zap.Duration("latency", latency),
		zap.Error(err),
	)
	return CheckResult{Status: "fail", Message: err.Error(), Latency: latency.String()}
}

// HandleVersion 返回构建信息.
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	body := map[string]string{"version": version, "build_time": buildTime, "git_commit": gitCommit}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, r, body)
	}
}
