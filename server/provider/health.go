package provider

import (
	"time"

	"github.com/sony/gobreaker"
)

// HealthStatus represents the current health state of a provider. It is
// updated passively from real traffic; the free tier quota is too small to
// spend on probe requests.
type HealthStatus struct {
	Healthy          bool          // Whether the last call reached a working upstream
	LastCheck        time.Time     // When the last call finished
	ConsecutiveFails int           // Consecutive failures seen by the breaker
	Latency          time.Duration // Last observed latency
	ErrorCount       int64         // Total number of failed calls
	RequestCount     int64         // Total number of calls
}

// GetHealthStatus returns the health status for a provider
func (m *Manager) GetHealthStatus(name string) HealthStatus {
	if val, ok := m.healthState.Load(name); ok {
		return val.(HealthStatus)
	}
	return HealthStatus{}
}

// UpdateHealthStatus records the health status for a provider
func (m *Manager) UpdateHealthStatus(name string, status HealthStatus) {
	m.healthState.Store(name, status)

	if status.Healthy {
		m.healthyProviders.WithLabelValues(name).Set(1)
	} else {
		m.healthyProviders.WithLabelValues(name).Set(0)
	}
}

// Healthy reports whether the provider can currently be called: its last
// call succeeded and the breaker is not open.
func (m *Manager) Healthy() bool {
	return m.GetHealthStatus(m.provider.Name()).Healthy && m.breaker.State() != gobreaker.StateOpen
}
