// Package metrics holds the Prometheus registry and the HTTP-level and
// chat-level collectors of the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chat outcomes recorded in ChatReplies.
const (
	OutcomeSuccess      = "success"
	OutcomeRateLimited  = "rate_limited"
	OutcomeServiceError = "service_error"
	OutcomeError        = "error"
)

// Metrics encapsulates Prometheus metrics for the server.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
	RateLimitHits   *prometheus.CounterVec
	ChatReplies     *prometheus.CounterVec
	PromptTokens    prometheus.Histogram
	SessionsCreated prometheus.Counter
	SessionsStored  prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with a custom registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csai_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "csai_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "csai_http_active_requests",
				Help: "Number of currently active HTTP requests",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csai_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csai_rate_limit_hits_total",
				Help: "Total number of requests rejected by the local limiter or the admission queue",
			},
			[]string{"reason"},
		),
		ChatReplies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "csai_chat_replies_total",
				Help: "Chat replies by outcome",
			},
			[]string{"outcome"},
		),
		PromptTokens: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "csai_prompt_tokens",
				Help:    "Estimated token count of prompts sent upstream",
				Buckets: prometheus.ExponentialBuckets(64, 2, 8),
			},
		),
		SessionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "csai_sessions_created_total",
				Help: "Number of sessions created",
			},
		),
		SessionsStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "csai_sessions_stored",
				Help: "Sessions held by the in-memory store after the last sweep",
			},
		),
	}

	// Register default Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	for _, outcome := range []string{OutcomeSuccess, OutcomeRateLimited, OutcomeServiceError, OutcomeError} {
		m.ChatReplies.WithLabelValues(outcome).Add(0)
	}
	m.ActiveRequests.WithLabelValues("queued").Add(0)
	m.ActiveRequests.WithLabelValues("processing").Add(0)

	return m
}

// Registry returns the registry other components register their collectors on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false,
	})
}
