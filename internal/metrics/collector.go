// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 汇总 CareerFlow 的 Prometheus 指标：HTTP、会话、工具、LLM、缓存与连接池.
type Collector struct {
	namespace string
	reg       prometheus.Registerer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	sessionsActive   prometheus.Gauge
	sessionsStarted  prometheus.Counter
	sessionsEnded    *prometheus.CounterVec
	sessionTurns     prometheus.Histogram
	sessionDuration  prometheus.Histogram
	turnsTotal       *prometheus.CounterVec
	turnDuration     *prometheus.HistogramVec
	humanWaitSeconds *prometheus.HistogramVec
	eventsSent       *prometheus.CounterVec
	messagesTotal    *prometheus.CounterVec

	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	dbQueryDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 注册到默认 registry. 同一进程只能调用一次.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 注册到 reg，测试用独立 registry 隔离.
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{
		namespace: namespace,
		reg:       reg,
		logger:    logger.With(zap.String("component", "metrics")),
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
	}
	sizeBuckets := prometheus.ExponentialBuckets(100, 10, 8)

	// HTTP
	c.httpRequestsTotal = counter("http_requests_total", "HTTP requests by route and status class", "method", "path", "status")
	c.httpRequestDuration = histogram("http_request_duration_seconds", "HTTP request latency", prometheus.DefBuckets, "method", "path")
	c.httpRequestSize = histogram("http_request_size_bytes", "HTTP request body size", sizeBuckets, "method", "path")
	c.httpResponseSize = histogram("http_response_size_bytes", "HTTP response body size", sizeBuckets, "method", "path")

	// 会话
	c.sessionsActive = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "sessions_active", Help: "Coaching sessions currently running",
	})
	c.sessionsStarted = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "sessions_started_total", Help: "Coaching sessions started",
	})
	c.sessionTurns = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "session_turns", Help: "Turns taken per session",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 50, 100},
	})
	c.sessionDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "session_duration_seconds", Help: "Wall clock duration of a session",
		Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600},
	})
	c.sessionsEnded = counter("sessions_ended_total", "Coaching sessions ended, by termination reason", "reason")
	c.turnsTotal = counter("turns_total", "Turns taken, by participant and outcome", "participant", "status")
	c.turnDuration = histogram("turn_duration_seconds", "Turn latency by participant",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, "participant")
	c.humanWaitSeconds = histogram("human_input_wait_seconds", "Time spent waiting for the human to answer",
		[]float64{1, 5, 15, 30, 60, 120, 300, 600}, "status")
	c.eventsSent = counter("ws_events_sent_total", "Websocket frames sent, by event type", "type")
	c.messagesTotal = counter("messages_total", "Transcript messages, by kind", "kind")

	// 工具
	c.toolCallsTotal = counter("tool_calls_total", "Tool invocations by outcome", "tool", "status")
	c.toolCallDuration = histogram("tool_call_duration_seconds", "Tool invocation latency",
		[]float64{0.05, 0.1, 0.5, 1, 2, 5, 15}, "tool")

	// LLM
	c.llmRequestsTotal = counter("llm_requests_total", "LLM completions by outcome", "provider", "model", "status")
	c.llmRequestDuration = histogram("llm_request_duration_seconds", "LLM completion latency",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}, "provider", "model")
	c.llmTokensUsed = counter("llm_tokens_used_total", "Tokens consumed; type is prompt or completion", "provider", "model", "type")
	c.llmCost = counter("llm_cost_total", "Estimated LLM spend in USD", "provider", "model")

	// 缓存与数据库
	c.cacheHits = counter("cache_hits_total", "Cache hits by cache", "cache_type")
	c.cacheMisses = counter("cache_misses_total", "Cache misses by cache", "cache_type")
	c.dbQueryDuration = histogram("db_query_duration_seconds", "Database statement latency", prometheus.DefBuckets, "database", "operation")

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if requestSize > 0 {
		c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	}
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 💬 会话指标记录
// =============================================================================

// RecordSessionStart 记录会话开始
func (c *Collector) RecordSessionStart() {
	c.sessionsStarted.Inc()
	c.sessionsActive.Inc()
}

// RecordSessionEnd 记录会话结束
func (c *Collector) RecordSessionEnd(reason string, turns int, duration time.Duration) {
	c.sessionsActive.Dec()
	c.sessionsEnded.WithLabelValues(reason).Inc()
	c.sessionTurns.Observe(float64(turns))
	c.sessionDuration.Observe(duration.Seconds())
}

// RecordTurn 记录一次发言
func (c *Collector) RecordTurn(participant string, duration time.Duration, err error) {
	c.turnsTotal.WithLabelValues(participant, outcome(err)).Inc()
	c.turnDuration.WithLabelValues(participant).Observe(duration.Seconds())
}

// RecordHumanWait 记录等待人类输入的时长
func (c *Collector) RecordHumanWait(duration time.Duration, err error) {
	c.humanWaitSeconds.WithLabelValues(outcome(err)).Observe(duration.Seconds())
}

// RecordEvent 记录下发到 websocket 的事件
func (c *Collector) RecordEvent(eventType string) {
	c.eventsSent.WithLabelValues(eventType).Inc()
}

// RecordMessage 记录写入对话记录的消息
func (c *Collector) RecordMessage(kind string) {
	c.messagesTotal.WithLabelValues(kind).Inc()
}

// RecordToolCall 记录工具调用，签名与工具执行器的观察回调一致.
func (c *Collector) RecordToolCall(tool string, duration time.Duration, err error) {
	c.toolCallsTotal.WithLabelValues(tool, outcome(err)).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	if cost > 0 {
		c.llmCost.WithLabelValues(provider, model).Add(cost)
	}
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
