package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/types"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name       string
		data       any
		wantStatus int
	}{
		{name: "simple object", data: map[string]string{"status": "ok"}, wantStatus: http.StatusOK},
		{name: "array", data: []int{1, 2, 3}, wantStatus: http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, tt.wantStatus, tt.data)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))

	WriteSuccess(w, r, map[string]string{"key": "value"})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Equal(t, "req-1", resp.RequestID)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   types.ErrorCode
		expectedMsg    string
	}{
		{
			name:           "invalid request",
			err:            types.NewError(types.ErrInvalidRequest, "session_id is required"),
			expectedStatus: http.StatusBadRequest,
			expectedCode:   types.ErrInvalidRequest,
			expectedMsg:    "session_id is required",
		},
		{
			name:           "session not found",
			err:            types.NewError(types.ErrSessionNotFound, "session not found"),
			expectedStatus: http.StatusNotFound,
			expectedCode:   types.ErrSessionNotFound,
			expectedMsg:    "session not found",
		},
		{
			name:           "explicit status wins",
			err:            types.NewError(types.ErrInvalidRequest, "conflict").WithHTTPStatus(http.StatusConflict),
			expectedStatus: http.StatusConflict,
			expectedCode:   types.ErrInvalidRequest,
			expectedMsg:    "conflict",
		},
		{
			name:           "plain error is hidden",
			err:            errors.New("dial tcp 10.0.0.1:5432: connection refused"),
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   types.ErrInternalError,
			expectedMsg:    "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("X-Request-ID", "hdr-1")
			WriteError(w, r, tt.err, zap.NewNop())

			assert.Equal(t, tt.expectedStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.expectedCode), resp.Error.Code)
			assert.Equal(t, tt.expectedMsg, resp.Error.Message)
			assert.Equal(t, "hdr-1", resp.RequestID)
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type upload struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "valid JSON", body: `{"filename":"cv.txt","content":"Go developer"}`},
		{name: "invalid JSON", body: `{"filename":"cv.txt",}`, wantErr: true},
		{name: "unknown field", body: `{"filename":"cv.txt","owner":"x"}`, wantErr: true},
		{name: "oversized", body: `{"content":"` + strings.Repeat("x", 2<<20) + `"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))

			var got upload
			err := DecodeJSONBody(w, r, &got, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, http.StatusBadRequest, w.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "cv.txt", got.Filename)
		})
	}
}

func TestDecodeJSONBody_Messages(t *testing.T) {
	type target struct {
		Limit int `json:"limit"`
	}
	tests := map[string]string{
		`{"limit":}`:         "malformed JSON at offset",
		`{"limit":"ten"}`:    `field "limit" must be int`,
		`{"limit":1,"x":2}`:  `unknown field "x"`,
		`{"limit":1}{"a":1}`: "single JSON object",
		`{"limit":1`:         "malformed JSON",
	}
	for body, want := range tests {
		t.Run(body, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			var dst target
			require.Error(t, DecodeJSONBody(w, r, &dst, nil))

			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Contains(t, resp.Error.Message, want)
		})
	}
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
}

func TestWriteError_RetryableByCode(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	WriteError(w, r, types.NewError(types.ErrMemoryUnavailable, "store offline"), nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.True(t, resp.Error.Retryable)
}

func TestDecodeJSONBody_Empty(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/test", http.NoBody)
	var dst map[string]any
	assert.Error(t, DecodeJSONBody(w, r, &dst, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIsJSON(t *testing.T) {
	for ct, want := range map[string]bool{
		"application/json":                true,
		"application/json; charset=UTF-8": true,
		"text/plain":                      false,
		"":                                false,
	} {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set("Content-Type", ct)
		assert.Equal(t, want, IsJSON(r), ct)
	}
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=20&bad=x&neg=-1", nil)
	assert.Equal(t, 20, QueryInt(r, "limit", 50))
	assert.Equal(t, 50, QueryInt(r, "bad", 50))
	assert.Equal(t, 50, QueryInt(r, "neg", 50))
	assert.Equal(t, 50, QueryInt(r, "missing", 50))
}
