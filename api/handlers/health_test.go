package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealth(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHealthHandler_HandleHealthz(t *testing.T) {
	handler := NewHealthHandler(nil)

	w := httptest.NewRecorder()
	handler.HandleHealthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "ok", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleReady(t *testing.T) {
	ok := func(context.Context) error { return nil }
	fail := func(msg string) Probe {
		return func(context.Context) error { return errors.New(msg) }
	}

	tests := []struct {
		name       string
		register   func(*HealthHandler)
		wantCode   int
		wantStatus string
		wantChecks map[string]string // name -> pass/fail
	}{
		{
			name:       "no probes",
			register:   func(*HealthHandler) {},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "store and cache up",
			register: func(h *HealthHandler) {
				h.RegisterCheck("database", ok)
				h.RegisterCheck("redis", ok)
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"database": "pass", "redis": "pass"},
		},
		{
			name: "transcript store down is tolerated",
			register: func(h *HealthHandler) {
				h.RegisterCheck("qdrant", ok)
				h.RegisterCheck("database", fail("disk full"), Degradable())
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantChecks: map[string]string{"qdrant": "pass", "database": "fail"},
		},
		{
			name: "vector store down",
			register: func(h *HealthHandler) {
				h.RegisterCheck("database", ok)
				h.RegisterCheck("qdrant", fail("connection refused"))
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"database": "pass", "qdrant": "fail"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(zap.NewNop())
			tt.register(h)

			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			require.Equal(t, tt.wantCode, w.Code)

			var status HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
			assert.Equal(t, tt.wantStatus, status.Status)
			require.Len(t, status.Checks, len(tt.wantChecks))
			for name, want := range tt.wantChecks {
				got := status.Checks[name]
				assert.Equal(t, want, got.Status, name)
				assert.NotEmpty(t, got.Latency, name)
				if want == "fail" {
					assert.NotEmpty(t, got.Message, name)
				}
			}
		})
	}
}

func TestHealthHandler_ReadyReportsInfo(t *testing.T) {
	h := NewHealthHandler(nil)
	h.RegisterInfo("active_sessions", func() any { return 3 })

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.EqualValues(t, 3, status.Info["active_sessions"])
}

func TestHealthHandler_ReadyHonorsDeadline(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())
	handler.RegisterCheck("qdrant", func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		if !hasDeadline {
			return errors.New("no deadline")
		}
		return nil
	})

	w := httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthHandler_ReadyRunsChecksConcurrently(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(2)
	for _, name := range []string{"a", "b"} {
		handler.RegisterCheck(name, func(ctx context.Context) error {
			started.Done()
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	go func() {
		started.Wait()
		close(release)
	}()

	w := httptest.NewRecorder()
	handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVersion("1.2.0", "2024-06-01", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "1.2.0", data["version"])
	assert.Equal(t, "abc123", data["git_commit"])
}
