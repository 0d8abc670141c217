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

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 技能转发指标
	skillForwardsTotal   *prometheus.CounterVec
	skillForwardDuration *prometheus.HistogramVec
	skillCallbacksTotal  *prometheus.CounterVec

	// 调度状态机指标
	invocationTransitions *prometheus.CounterVec
	turnErrorsTotal       *prometheus.CounterVec

	// 状态存储指标
	storeOpDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 技能转发指标
	c.skillForwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_forwards_total",
			Help:      "Total number of activities forwarded to skills",
		},
		[]string{"skill", "outcome"},
	)

	c.skillForwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "skill_forward_duration_seconds",
			Help:      "Round trip latency of a forwarded activity in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"skill", "endpoint", "outcome"},
	)

	c.skillCallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skill_callbacks_total",
			Help:      "Total number of callback requests received from skills",
		},
		[]string{"skill", "kind"},
	)

	// 调度状态机指标
	c.invocationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_transitions_total",
			Help:      "Total number of skill invocation phase transitions",
		},
		[]string{"skill", "from", "to"},
	)

	c.turnErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_errors_total",
			Help:      "Total number of turns that ended with an error",
		},
		[]string{"skill", "code"},
	)

	// 状态存储指标
	c.storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "state_store_operation_duration_seconds",
			Help:      "State store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"store", "operation"},
	)

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
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔌 技能转发指标记录
// =============================================================================

// ObserveForward 记录一次技能转发的往返延迟
func (c *Collector) ObserveForward(skill, endpoint, outcome string, duration time.Duration) {
	c.skillForwardsTotal.WithLabelValues(skill, outcome).Inc()
	c.skillForwardDuration.WithLabelValues(skill, endpoint, outcome).Observe(duration.Seconds())
}

// RecordCallback 记录技能发起的回调请求
func (c *Collector) RecordCallback(skill, kind string) {
	c.skillCallbacksTotal.WithLabelValues(skill, kind).Inc()
}

// =============================================================================
// 🎭 调度指标记录
// =============================================================================

// RecordTransition 记录调用阶段转换
func (c *Collector) RecordTransition(skill, from, to string) {
	if from == to {
		return
	}
	c.invocationTransitions.WithLabelValues(skill, from, to).Inc()
}

// RecordTurnError 记录以错误结束的对话轮次
func (c *Collector) RecordTurnError(skill, code string) {
	c.turnErrorsTotal.WithLabelValues(skill, code).Inc()
}

// =============================================================================
// 🗄️ 状态存储指标记录
// =============================================================================

// RecordStoreOp 记录状态存储操作
func (c *Collector) RecordStoreOp(store, operation string, duration time.Duration) {
	c.storeOpDuration.WithLabelValues(store, operation).Observe(duration.Seconds())
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
