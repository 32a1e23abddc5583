package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/careerflow/llm"
)

// maxErrorBody 限制读取上游错误体的大小.
const maxErrorBody = 64 << 10

type statusRule struct {
	code      llm.ErrorCode
	retryable bool
}

var statusRules = map[int]statusRule{
	http.StatusUnauthorized:       {code: llm.ErrUnauthorized},
	http.StatusForbidden:          {code: llm.ErrForbidden},
	http.StatusTooManyRequests:    {code: llm.ErrRateLimited, retryable: true},
	http.StatusRequestTimeout:     {code: llm.ErrUpstreamTimeout, retryable: true},
	http.StatusGatewayTimeout:     {code: llm.ErrUpstreamTimeout, retryable: true},
	http.StatusBadGateway:         {code: llm.ErrUpstreamError, retryable: true},
	http.StatusServiceUnavailable: {code: llm.ErrUpstreamError, retryable: true},
	529:                           {code: llm.ErrModelOverloaded, retryable: true},
}

// badRequestKeywords 细分 400：Azure 内容过滤与额度耗尽都以 400 返回.
var badRequestKeywords = []struct {
	code     llm.ErrorCode
	keywords []string
}{
	{llm.ErrContentFiltered, []string{"content_filter", "content management policy"}},
	{llm.ErrQuotaExceeded, []string{"quota", "credit", "limit"}},
}

// MapHTTPError 把上游非 2xx 响应归类为 *llm.Error. 只有限流、超时与 5xx 可重试.
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	e := &llm.Error{Code: llm.ErrUpstreamError, Message: msg, HTTPStatus: status, Provider: provider}

	if rule, ok := statusRules[status]; ok {
		e.Code, e.Retryable = rule.code, rule.retryable
		return e
	}
	if status == http.StatusBadRequest {
		e.Code = classifyBadRequest(msg)
		return e
	}
	e.Retryable = status >= 500
	return e
}

func classifyBadRequest(msg string) llm.ErrorCode {
	lower := strings.ToLower(msg)
	for _, kw := range badRequestKeywords {
		for _, k := range kw.keywords {
			if strings.Contains(lower, k) {
				return kw.code
			}
		}
	}
	return llm.ErrInvalidRequest
}

// FromResponse 读取错误体并归类，同时带上 Retry-After.
func FromResponse(resp *http.Response, provider string) *llm.Error {
	e := MapHTTPError(resp.StatusCode, ReadErrorMessage(resp.Body), provider)
	if e.Retryable {
		e.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return e
}

// ParseRetryAfter 支持秒数与 HTTP-date 两种形式，无法解析或已过期时返回 0.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// ReadErrorMessage 从错误体中提取 {"error":{"message"}}，解析失败时返回原文.
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return "failed to read error response"
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) != nil || envelope.Error.Message == "" {
		return strings.TrimSpace(string(data))
	}
	if envelope.Error.Type == "" {
		return envelope.Error.Message
	}
	return fmt.Sprintf("%s (type: %s)", envelope.Error.Message, envelope.Error.Type)
}
