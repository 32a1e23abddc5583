package server

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDefaultConfig_LeavesStreamTimeoutsOpen(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 10*time.Second, cfg.ReadHeaderTimeout)
	assert.Zero(t, cfg.ReadTimeout)
	assert.Zero(t, cfg.WriteTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
}

func newTestManager(t *testing.T, h http.Handler) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second
	return NewManager(h, cfg, zaptest.NewLogger(t))
}

func TestManager_StartAndShutdown(t *testing.T) {
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	assert.False(t, m.IsRunning())

	var hooked atomic.Bool
	m.OnShutdown(func() { hooked.Store(true) })

	require.NoError(t, m.Start())
	assert.True(t, m.IsRunning())

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	assert.Eventually(t, hooked.Load, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorContains(t, m.Start(), "closed")
}

func TestManager_DoubleStart(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestManager_WaitReturnsOnContext(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, m.Wait(ctx))
}

func TestManager_ListenError(t *testing.T) {
	m := NewManager(http.NewServeMux(), Config{Addr: "256.0.0.1:99999"}, nil)
	assert.Error(t, m.Start())
}

func TestManager_ShutdownWaitsForDrainHooks(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	var drained atomic.Int32
	for range 3 {
		m.OnShutdown(func() {
			time.Sleep(20 * time.Millisecond)
			drained.Add(1)
		})
	}
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, int32(3), drained.Load())
}

func TestManager_DrainHookDeadline(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	m.OnShutdown(func() { <-release })
	require.NoError(t, m.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := m.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
