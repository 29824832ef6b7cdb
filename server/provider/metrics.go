package provider

import "github.com/prometheus/client_golang/prometheus"

// initializeMetrics sets up Prometheus metrics. A nil registry leaves the
// collectors unregistered, which tests rely on.
func (m *Manager) initializeMetrics(registry prometheus.Registerer) error {
	m.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csai_provider_request_duration_seconds",
		Help:    "Latency of generation requests by outcome",
		Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60},
	}, []string{"provider", "outcome"})

	m.upstreamStatus = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "csai_provider_upstream_responses_total",
		Help: "Upstream responses by HTTP status code",
	}, []string{"provider", "code"})

	m.deduplicatedRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "csai_deduplicated_requests_total",
		Help: "Number of generation requests served by a shared in-flight call",
	})

	m.healthyProviders = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "csai_provider_healthy",
		Help: "Whether the provider is currently considered healthy (1) or not (0)",
	}, []string{"provider"})

	if registry == nil {
		return nil
	}
	for _, c := range []prometheus.Collector{m.requestLatency, m.upstreamStatus, m.deduplicatedRequests, m.healthyProviders} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
