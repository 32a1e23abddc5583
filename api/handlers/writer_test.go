package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.Equal(t, http.StatusCreated, w.Code)

	n, err := rw.Write([]byte("test"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.EqualValues(t, 4, rw.Bytes)
	assert.Same(t, w, rw.Unwrap())
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	_, err := rw.Write([]byte("{}"))
	require.NoError(t, err)
	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
}

func TestResponseWriter_ReusesWrapper(t *testing.T) {
	outer := NewResponseWriter(httptest.NewRecorder())
	inner := NewResponseWriter(outer)
	assert.Same(t, outer, inner)

	inner.WriteHeader(http.StatusAccepted)
	assert.Equal(t, http.StatusAccepted, outer.StatusCode)
}

func TestResponseWriter_HijackUnsupported(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	_, _, err := rw.Hijack()
	require.Error(t, err)
	assert.False(t, rw.Hijacked)
	assert.False(t, rw.Written)
}
