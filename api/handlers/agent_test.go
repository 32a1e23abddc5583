package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/coach"
	"github.com/BaSui01/careerflow/types"
)

// =============================================================================
// 🧪 AgentHandler 测试
// =============================================================================

func newAgentMux() *http.ServeMux {
	handler := NewAgentHandler([]coach.AgentDescriptor{
		{ID: coach.TriageAgentID, Role: coach.RoleGateway, Tools: []string{}, AddressesHuman: true},
		{ID: coach.ProfilerAgentID, Role: coach.RoleSpecialist, Tools: []string{coach.AnalyzeResumeTool}},
	}, "user_proxy", zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/agents", handler.HandleListAgents)
	mux.HandleFunc("GET /api/v1/agents/{id}", handler.HandleGetAgent)
	return mux
}

func TestAgentHandler_HandleListAgents(t *testing.T) {
	w := serve(newAgentMux(), http.MethodGet, "/api/v1/agents")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool                    `json:"success"`
		Data    []coach.AgentDescriptor `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, coach.TriageAgentID, resp.Data[0].ID)
	assert.Equal(t, coach.RoleHumanProxy, resp.Data[2].Role)
}

func TestAgentHandler_HandleGetAgent(t *testing.T) {
	mux := newAgentMux()

	w := serve(mux, http.MethodGet, "/api/v1/agents/"+coach.ProfilerAgentID)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	data := resp.Data.(map[string]any)
	assert.Equal(t, coach.RoleSpecialist, data["role"])

	w = serve(mux, http.MethodGet, "/api/v1/agents/RecruiterAgent")
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp = decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrUnknownParticipant), resp.Error.Code)
}

func TestAgentHandler_RoleFilter(t *testing.T) {
	w := serve(newAgentMux(), http.MethodGet, "/api/v1/agents?role="+coach.RoleSpecialist)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []coach.AgentDescriptor `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, coach.ProfilerAgentID, resp.Data[0].ID)
}

func TestAgentHandler_ETag(t *testing.T) {
	mux := newAgentMux()

	w := serve(mux, http.MethodGet, "/api/v1/agents")
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	r.Header.Set("If-None-Match", `"stale", `+etag)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Zero(t, w.Body.Len())

	r = httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	r.Header.Set("If-None-Match", `"stale"`)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}
