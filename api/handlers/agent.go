package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/coach"
	"github.com/BaSui01/careerflow/types"
)

// =============================================================================
// 🤖 Agent 阵容
// =============================================================================

// AgentHandler 暴露会话使用的固定阵容. 阵容在进程生命周期内不变，
// 响应带 ETag，客户端可以用 If-None-Match 轮询.
type AgentHandler struct {
	agents []coach.AgentDescriptor
	etag   string
	logger *zap.Logger
}

// NewAgentHandler proxyID 为空时不列出用户代理.
func NewAgentHandler(agents []coach.AgentDescriptor, proxyID string, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	list := slices.Clone(agents)
	if proxyID != "" {
		list = append(list, coach.AgentDescriptor{ID: proxyID, Role: coach.RoleHumanProxy, Tools: []string{}})
	}

	h := &AgentHandler{agents: list, logger: logger.With(zap.String("component", "agent_handler"))}
	if raw, err := json.Marshal(list); err == nil {
		sum := sha256.Sum256(raw)
		h.etag = `"` + hex.EncodeToString(sum[:8]) + `"`
	}
	return h
}

// notModified 处理条件请求，命中时已写出 304.
func (h *AgentHandler) notModified(w http.ResponseWriter, r *http.Request) bool {
	if h.etag == "" {
		return false
	}
	w.Header().Set("ETag", h.etag)
	w.Header().Set("Cache-Control", "no-cache")
	for _, tag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
		if t := strings.TrimSpace(tag); t == h.etag || t == "*" {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}

// HandleListAgents lists the session roster
// @Summary List agents
// @Description Gateway first, then specialists in rotation order, then the human proxy. Optional role filter.
// @Tags agent
// @Produce json
// @Param role query string false "gateway | specialist | human_proxy"
// @Success 200 {object} Response{data=[]coach.AgentDescriptor} "Agent list"
// @Success 304 "Roster unchanged"
// @Router /api/v1/agents [get]
func (h *AgentHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		if h.notModified(w, r) {
			return
		}
		WriteSuccess(w, r, h.agents)
		return
	}

	filtered := make([]coach.AgentDescriptor, 0, len(h.agents))
	for _, a := range h.agents {
		if string(a.Role) == role {
			filtered = append(filtered, a)
		}
	}
	WriteSuccess(w, r, filtered)
}

// HandleGetAgent gets a single agent
// @Summary Get agent
// @Tags agent
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} Response{data=coach.AgentDescriptor} "Agent info"
// @Failure 404 {object} Response "Agent not found"
// @Router /api/v1/agents/{id} [get]
func (h *AgentHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "agent ID is required", h.logger)
		return
	}
	i := slices.IndexFunc(h.agents, func(a coach.AgentDescriptor) bool { return a.ID == id })
	if i < 0 {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrUnknownParticipant, "agent not found: "+id, h.logger)
		return
	}
	WriteSuccess(w, r, h.agents[i])
}
