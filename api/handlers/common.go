package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/careerflow/types"
)

// =============================================================================
// 📦 响应信封
// =============================================================================

// Response 是所有 REST 接口的统一信封. websocket 帧不走这里.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// fallbackBody 在信封本身无法编码时使用.
const fallbackBody = `{"success":false,"error":{"code":"INTERNAL_ERROR","message":"response encoding failed"}}` + "\n"

// WriteJSON 先编码再写头，编码失败时改写为 500.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(fallbackBody)
	}

	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusOK, envelope(r, data, nil))
}

// WriteError 把 err 转成错误信封. 不是 *types.Error 的错误只记录日志，
// 客户端看到的是通用的 internal error.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	apiErr, ok := types.AsError(err)
	if !ok {
		apiErr = types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
	status := apiErr.Status()
	info := &ErrorInfo{
		Code:       string(apiErr.Code),
		Message:    apiErr.Message,
		Retryable:  types.IsRetryable(apiErr),
		HTTPStatus: status,
	}

	if logger != nil {
		level := zapcore.WarnLevel
		if status >= http.StatusInternalServerError {
			level = zapcore.ErrorLevel
		}
		if ce := logger.Check(level, "API error"); ce != nil {
			ce.Write(
				zap.String("code", info.Code),
				zap.String("message", info.Message),
				zap.Int("status", status),
				zap.String("request_id", requestID(r)),
				zap.Error(apiErr.Cause))
		}
	}

	WriteJSON(w, status, envelope(r, nil, info))
}

// WriteErrorMessage 是 WriteError 的简写，显式指定状态码.
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, r, types.NewError(code, message).WithHTTPStatus(status), logger)
}

func envelope(r *http.Request, data any, info *ErrorInfo) Response {
	return Response{
		Success:   info == nil,
		Data:      data,
		Error:     info,
		Timestamp: time.Now().UTC(),
		RequestID: requestID(r),
	}
}

// requestID 优先取中间件写入 context 的值，其次原样回传请求头.
func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	if id, ok := types.RequestID(r.Context()); ok {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// =============================================================================
// 🛡️ 请求解析
// =============================================================================

// MaxBodyBytes 是 JSON 与上传请求体的字节上限.
const MaxBodyBytes = 1 << 20

// DecodeJSONBody 严格解码单个 JSON 对象. 失败时已经写好 400 响应，
// 调用方只需要 return.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	var err error
	if r.Body == nil || r.Body == http.NoBody {
		err = errors.New("request body is empty")
	} else {
		err = decodeStrict(http.MaxBytesReader(w, r.Body, MaxBodyBytes), dst)
	}
	if err == nil {
		return nil
	}

	apiErr := types.NewError(types.ErrInvalidRequest, describeDecodeError(err)).WithCause(err)
	WriteError(w, r, apiErr, logger)
	return apiErr
}

func decodeStrict(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

// describeDecodeError 给客户端一条能定位问题的消息.
func describeDecodeError(err error) string {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		sizeErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &sizeErr):
		return fmt.Sprintf("request body exceeds %d bytes", sizeErr.Limit)
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q must be %s", typeErr.Field, typeErr.Type)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return "malformed JSON"
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	default:
		return err.Error()
	}
}

// IsJSON 判断请求体是否声明为 JSON.
func IsJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// QueryInt 读取正整数查询参数，缺省或非法时返回 def.
func QueryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
