package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/agent/memory"
	"github.com/BaSui01/careerflow/types"
)

// =============================================================================
// 📄 简历上传 Handler
// =============================================================================

// ProfileWriter 写入用户画像记忆，由 memory.VectorMemory 实现.
type ProfileWriter interface {
	Add(ctx context.Context, entries ...memory.Entry) error
}

// CVUpload 是 JSON 形式的上传请求.
type CVUpload struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// CVUploadResult 是上传成功的响应体.
type CVUploadResult struct {
	SessionID  string `json:"session_id,omitempty"`
	Filename   string `json:"filename"`
	Characters int    `json:"characters"`
}

// CV 文档的 metadata 取值.
const (
	DocTypeCV       = "cv"
	defaultFilename = "cv.txt"
)

// ProfileHandler 接收简历文本并写入画像记忆，供 ProfilerAgent 首轮检索.
type ProfileHandler struct {
	mem    ProfileWriter
	logger *zap.Logger
}

// NewProfileHandler 创建简历上传处理器
func NewProfileHandler(mem ProfileWriter, logger *zap.Logger) *ProfileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{mem: mem, logger: logger.With(zap.String("component", "profile_handler"))}
}

// HandleUploadCV 处理 POST /api/v1/profile/cv?session_id=
// 支持纯文本、multipart 的 file 字段与 JSON {filename, content}.
func (h *ProfileHandler) HandleUploadCV(w http.ResponseWriter, r *http.Request) {
	if h.mem == nil {
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrMemoryUnavailable, "profile memory is disabled", h.logger)
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID != "" && !validSessionID(sessionID) {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "invalid session_id", h.logger)
		return
	}

	upload, err := h.readUpload(w, r)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	content := strings.TrimSpace(upload.Content)
	switch {
	case content == "":
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "cv content is empty", h.logger)
		return
	case !utf8.ValidString(content):
		WriteErrorMessage(w, r, http.StatusUnsupportedMediaType, types.ErrInvalidRequest, "cv must be UTF-8 text", h.logger)
		return
	}
	if upload.Filename == "" {
		upload.Filename = defaultFilename
	}

	metadata := map[string]any{
		"type":        DocTypeCV,
		"filename":    upload.Filename,
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
	}
	if sessionID != "" {
		metadata["session_id"] = sessionID
	}

	if err := h.mem.Add(r.Context(), memory.Entry{Content: content, Metadata: metadata}); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	chars := utf8.RuneCountInString(content)
	h.logger.Info("cv stored",
		zap.String("session_id", sessionID),
		zap.String("filename", upload.Filename),
		zap.Int("characters", chars))

	WriteJSON(w, http.StatusCreated, Response{
		Success:   true,
		Data:      CVUploadResult{SessionID: sessionID, Filename: upload.Filename, Characters: chars},
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

func (h *ProfileHandler) readUpload(w http.ResponseWriter, r *http.Request) (CVUpload, error) {
	if IsJSON(r) {
		var up CVUpload
		if err := decodeStrict(http.MaxBytesReader(w, r.Body, MaxBodyBytes), &up); err != nil {
			return CVUpload{}, bodyError(err)
		}
		return up, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return CVUpload{}, types.NewError(types.ErrInvalidRequest, `multipart field "file" is required`)
			}
			return CVUpload{}, bodyError(err)
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return CVUpload{}, bodyError(err)
		}
		return CVUpload{Filename: header.Filename, Content: string(data)}, nil
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return CVUpload{}, bodyError(err)
	}
	return CVUpload{Filename: r.URL.Query().Get("filename"), Content: string(data)}, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return types.NewError(types.ErrInvalidRequest, "cv exceeds 1 MiB").
			WithHTTPStatus(http.StatusRequestEntityTooLarge).WithCause(err)
	}
	return types.NewError(types.ErrInvalidRequest, "invalid upload body").WithCause(err)
}
