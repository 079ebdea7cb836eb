// Package observability exposes Prometheus metrics for LLM calls, tool
// invocations, agent turns and HTTP requests.
package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	metricsMu     sync.RWMutex
)

// Metrics is a set of collectors registered on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	llmDuration *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec
	llmErrors   *prometheus.CounterVec

	toolDuration *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec

	turnsTotal     *prometheus.CounterVec
	turnIterations prometheus.Histogram

	httpDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "multitool",
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM completion requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"model"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multitool",
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the LLM provider.",
		}, []string{"model"}),
		llmErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multitool",
			Name:      "llm_errors_total",
			Help:      "Failed LLM requests.",
		}, []string{"model"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "multitool",
			Name:      "tool_duration_seconds",
			Help:      "Duration of tool invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multitool",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by outcome.",
		}, []string{"tool", "status"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "multitool",
			Name:      "turns_total",
			Help:      "Completed agent turns by outcome.",
		}, []string{"outcome"}),
		turnIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "multitool",
			Name:      "turn_iterations",
			Help:      "Reasoning cycles used per turn.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "multitool",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	m.registry.MustRegister(
		m.llmDuration, m.llmTokens, m.llmErrors,
		m.toolDuration, m.toolCalls,
		m.turnsTotal, m.turnIterations,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) RecordLLMCall(model string, duration time.Duration, tokens int, err error) {
	if m == nil {
		return
	}
	m.llmDuration.WithLabelValues(model).Observe(duration.Seconds())
	if tokens > 0 {
		m.llmTokens.WithLabelValues(model).Add(float64(tokens))
	}
	if err != nil {
		m.llmErrors.WithLabelValues(model).Inc()
	}
}

func (m *Metrics) RecordToolExecution(tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
	m.toolCalls.WithLabelValues(tool, status).Inc()
}

// RecordTurn records a finished turn. outcome is one of "final", "direct",
// "stopped" or "error".
func (m *Metrics) RecordTurn(outcome string, iterations int) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnIterations.Observe(float64(iterations))
}

func (m *Metrics) RecordHTTPRequest(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func SetGlobalMetrics(m *Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide metrics, possibly nil.
func GetGlobalMetrics() *Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
