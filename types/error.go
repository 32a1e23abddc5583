package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 是跨包统一的错误码，同时决定 HTTP 状态与 websocket error 帧内容.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrForbidden          ErrorCode = "FORBIDDEN"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// 会话
const (
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionClosed      ErrorCode = "SESSION_CLOSED"
	ErrParticipantFailed  ErrorCode = "PARTICIPANT_FAILED"
	ErrUnknownParticipant ErrorCode = "UNKNOWN_PARTICIPANT"
	ErrTurnLimit          ErrorCode = "TURN_LIMIT"
	ErrInputCancelled     ErrorCode = "INPUT_CANCELLED"
)

// 记忆与工具
const (
	ErrMemoryUnavailable ErrorCode = "MEMORY_UNAVAILABLE"
	ErrToolFailed        ErrorCode = "TOOL_FAILED"
)

type codeInfo struct {
	status    int
	retryable bool
}

// codes 未登记的错误码按 500、不可重试处理.
var codes = map[ErrorCode]codeInfo{
	ErrInvalidRequest:     {http.StatusBadRequest, false},
	ErrUnknownParticipant: {http.StatusBadRequest, false},
	ErrUnauthorized:       {http.StatusUnauthorized, false},
	ErrForbidden:          {http.StatusForbidden, false},
	ErrNotFound:           {http.StatusNotFound, false},
	ErrSessionNotFound:    {http.StatusNotFound, false},
	ErrSessionClosed:      {http.StatusGone, false},
	ErrTurnLimit:          {http.StatusConflict, false},
	ErrRateLimited:        {http.StatusTooManyRequests, true},
	ErrTimeout:            {http.StatusGatewayTimeout, true},
	ErrUpstreamError:      {http.StatusBadGateway, false},
	ErrParticipantFailed:  {http.StatusBadGateway, false},
	ErrToolFailed:         {http.StatusBadGateway, false},
	ErrServiceUnavailable: {http.StatusServiceUnavailable, true},
	ErrMemoryUnavailable:  {http.StatusServiceUnavailable, true},
}

// HTTPStatusFor 返回错误码的默认 HTTP 状态.
func HTTPStatusFor(code ErrorCode) int {
	if info, ok := codes[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Error 是带错误码的结构化错误. HTTPStatus 为 0 时按错误码映射.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is 按错误码匹配，errors.Is(err, &Error{Code: ErrTimeout}) 即可判断类别.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Status 返回实际写回客户端的 HTTP 状态.
func (e *Error) Status() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return HTTPStatusFor(e.Code)
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WrapError 用 code 包装 err；链上已有 *Error 时原样返回它.
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return &Error{Code: code, Message: message, Cause: err}
}

func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsRetryable 显式标记优先，其次看错误码是否天然可重试.
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.Retryable || codes[e.Code].retryable
}

func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
