// Package circuitbreaker guards calls to the text-generation service with
// sony/gobreaker and exposes the breaker state as Prometheus metrics.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config holds configuration for the circuit breaker
type Config struct {
	Name             string
	MaxRequests      uint32        // Requests allowed through while half-open
	Interval         time.Duration // Cyclic period of the closed state for clearing counts
	Timeout          time.Duration // Time spent open before probing again
	FailureThreshold uint32        // Consecutive failures before opening
	TestMode         bool          // Skip metric registration in test mode

	// IsSuccessful decides which errors count against the breaker.
	// Nil means every non-nil error is a failure.
	IsSuccessful func(err error) bool
}

// CircuitBreaker wraps gobreaker with logging and metrics.
type CircuitBreaker struct {
	name   string
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger

	stateGauge    prometheus.Gauge
	failuresCount prometheus.Counter
	tripsTotal    prometheus.Counter
}

// NewCircuitBreaker creates a breaker and registers its metrics on registry
// unless config.TestMode is set or registry is nil.
func NewCircuitBreaker(config Config, logger *zap.Logger, registry prometheus.Registerer) (*CircuitBreaker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 1
	}

	cb := &CircuitBreaker{
		name:   config.Name,
		logger: logger,
	}

	labels := prometheus.Labels{"name": config.Name}
	cb.stateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "csai_circuit_breaker_state",
		Help:        "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
		ConstLabels: labels,
	})
	cb.failuresCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "csai_circuit_breaker_failures_total",
		Help:        "Total number of failures recorded by the circuit breaker",
		ConstLabels: labels,
	})
	cb.tripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "csai_circuit_breaker_trips_total",
		Help:        "Total number of times the circuit breaker has tripped",
		ConstLabels: labels,
	})

	if !config.TestMode && registry != nil {
		for _, c := range []prometheus.Collector{cb.stateGauge, cb.failuresCount, cb.tripsTotal} {
			if err := registry.Register(c); err != nil {
				return nil, err
			}
		}
	}

	threshold := config.FailureThreshold
	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: cb.onStateChange,
	}
	isSuccessful := config.IsSuccessful
	if isSuccessful == nil {
		isSuccessful = func(err error) bool { return err == nil }
	}
	settings.IsSuccessful = func(err error) bool {
		ok := isSuccessful(err)
		if !ok {
			cb.failuresCount.Inc()
		}
		return ok
	}

	cb.cb = gobreaker.NewCircuitBreaker(settings)
	return cb, nil
}

func (cb *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	cb.stateGauge.Set(float64(to))
	if to == gobreaker.StateOpen {
		cb.tripsTotal.Inc()
		cb.logger.Warn("Circuit breaker tripped",
			zap.String("name", name),
			zap.String("from", from.String()),
		)
		return
	}
	cb.logger.Info("Circuit breaker state changed",
		zap.String("name", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// Execute runs f if the breaker allows it. A rejected call returns
// ErrCircuitOpen without running f.
func (cb *CircuitBreaker) Execute(f func() error) error {
	_, err := cb.cb.Execute(func() (interface{}, error) {
		return nil, f()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() gobreaker.State {
	return cb.cb.State()
}

// Counts returns the request counts of the current interval.
func (cb *CircuitBreaker) Counts() gobreaker.Counts {
	return cb.cb.Counts()
}

// Name returns the breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}
