package coach

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/memory"
	"github.com/BaSui01/careerflow/types"
)

// CV 检索默认值.
const (
	DefaultCVQuery        = "resume OR curriculum OR cv"
	DefaultCVTopK         = 1
	DefaultCVPreviewChars = 500
)

// CVHookConfig configures the profile lookup.
type CVHookConfig struct {
	Query        string
	TopK         int
	PreviewChars int
	// SessionScoped 为 true 时只匹配 metadata.session_id 等于当前会话的文档.
	SessionScoped bool
}

// CVHook 在 ProfilerAgent 首轮前查找用户上传的简历，找到即以预览代替该轮.
type CVHook struct {
	cfg    CVHookConfig
	mem    memory.LongTerm
	logger *zap.Logger
}

// NewCVHook creates the hook over the profile memory.
func NewCVHook(mem memory.LongTerm, cfg CVHookConfig, logger *zap.Logger) *CVHook {
	if cfg.Query == "" {
		cfg.Query = DefaultCVQuery
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultCVTopK
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = DefaultCVPreviewChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CVHook{cfg: cfg, mem: mem, logger: logger.With(zap.String("component", "cv_hook"))}
}

// BeforeFirstTurn implements conversation.FirstTurnHook.
// 记忆不可用按未找到处理，交回正常回合.
func (h *CVHook) BeforeFirstTurn(ctx context.Context, participantID string, _ []types.Message) ([]types.Message, bool, error) {
	if h.mem == nil {
		return nil, false, nil
	}

	var filter map[string]any
	if h.cfg.SessionScoped {
		if id, ok := types.SessionID(ctx); ok {
			filter = map[string]any{"session_id": id}
		}
	}

	results, err := h.mem.Query(ctx, h.cfg.Query, h.cfg.TopK, filter)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		h.logger.Warn("cv lookup failed, continuing with normal turn", zap.Error(err))
		return nil, false, nil
	}
	if len(results) == 0 || results[0].Content == "" {
		h.logger.Debug("no cv found")
		return nil, false, nil
	}

	h.logger.Info("cv found", zap.String("participant", participantID), zap.Float64("score", results[0].Score))
	return []types.Message{types.NewTextMessage(participantID, CVAnalysis(results[0].Content, h.cfg.PreviewChars))}, true, nil
}

// CVAnalysis 生成简历预览消息. 预览按字符截断.
func CVAnalysis(cv string, previewChars int) string {
	runes := []rune(cv)
	if len(runes) > previewChars {
		runes = runes[:previewChars]
	}
	return fmt.Sprintf("I found your uploaded CV. Here is my analysis:\n\n[CV Preview]\n%s...\n\n"+
		"(For a full analysis, please ask specific questions or provide more details.)", string(runes))
}
