package provider

import (
	"context"
	"errors"
	"sync"

	"github.com/Siva-Pavan02/Computer-Science-AI/config"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
	"go.uber.org/zap"
)

// Manager fronts a Provider with a circuit breaker, deduplication of
// identical in-flight prompts and a passive health record.
type Manager struct {
	provider    Provider
	breaker     *circuitbreaker.CircuitBreaker
	group       singleflight.Group
	healthState sync.Map // provider name -> HealthStatus
	logger      *zap.Logger

	mu          sync.RWMutex
	deduplicate bool

	// Metrics
	requestLatency       *prometheus.HistogramVec
	upstreamStatus       *prometheus.CounterVec
	deduplicatedRequests prometheus.Counter
	healthyProviders     *prometheus.GaugeVec
}

// NewManager creates a manager for p and registers its metrics on registry.
func NewManager(cfg *config.Config, p Provider, logger *zap.Logger, registry prometheus.Registerer) (*Manager, error) {
	if p == nil {
		return nil, ErrNoProvider
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		provider:    p,
		logger:      logger,
		deduplicate: cfg.Gemini.Deduplicate,
	}

	if err := m.initializeMetrics(registry); err != nil {
		return nil, err
	}

	breaker, err := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Name:             p.Name(),
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		Interval:         cfg.CircuitBreaker.Interval,
		Timeout:          cfg.CircuitBreaker.Timeout,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		TestMode:         cfg.TestMode,
		IsSuccessful:     countsAsSuccess,
	}, logger.With(zap.String("provider", p.Name())), registry)
	if err != nil {
		return nil, err
	}
	m.breaker = breaker

	// Untried providers are assumed healthy
	m.UpdateHealthStatus(p.Name(), HealthStatus{Healthy: true})

	return m, nil
}

// countsAsSuccess keeps caller mistakes, quota rejections and client
// cancellations from tripping the breaker. Only 5xx answers, transport
// failures and timeouts count against the upstream.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyPrompt) {
		return true
	}
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.StatusCode < 500
	}
	return false
}

// Provider returns the wrapped provider.
func (m *Manager) Provider() Provider {
	return m.provider
}

// Breaker exposes the circuit breaker for health reporting.
func (m *Manager) Breaker() *circuitbreaker.CircuitBreaker {
	return m.breaker
}

// SetDeduplicate toggles collapsing of identical in-flight prompts.
func (m *Manager) SetDeduplicate(enabled bool) {
	m.mu.Lock()
	m.deduplicate = enabled
	m.mu.Unlock()
}

func (m *Manager) deduplicating() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deduplicate
}
