package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/Siva-Pavan02/Computer-Science-AI/server/circuitbreaker"
	"go.uber.org/zap"
)

// result represents the outcome of one upstream call
type result struct {
	text   string
	err    error
	status HealthStatus
}

// Generate runs prompt through the breaker. With deduplication on,
// concurrent calls for the same prompt share one upstream request; each
// caller still honors its own context.
func (m *Manager) Generate(ctx context.Context, prompt string) (string, error) {
	if !m.deduplicating() {
		r := m.executeOperation(ctx, prompt)
		m.processResult(r, false)
		return r.text, r.err
	}

	key := generateRequestKey(prompt)
	m.logger.Debug("Starting Generate", zap.String("key", key))

	// The shared call must outlive any single caller's cancellation; the
	// HTTP client timeout still bounds it.
	ch := m.group.DoChan(key, func() (interface{}, error) {
		return m.executeOperation(context.WithoutCancel(ctx), prompt), nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		r := res.Val.(*result)
		m.processResult(r, res.Shared)
		return r.text, r.err
	}
}

// executeOperation handles a single attempt and records its metrics
func (m *Manager) executeOperation(ctx context.Context, prompt string) *result {
	name := m.provider.Name()
	start := time.Now()

	var text string
	err := m.breaker.Execute(func() error {
		// Always check context before executing operation
		if err := ctx.Err(); err != nil {
			return err
		}
		var genErr error
		text, genErr = m.provider.Generate(ctx, prompt)
		return genErr
	})

	duration := time.Since(start)
	outcome := classify(err)
	m.requestLatency.WithLabelValues(name, outcome).Observe(duration.Seconds())

	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		m.upstreamStatus.WithLabelValues(name, strconv.Itoa(upstreamErr.StatusCode)).Inc()
	} else if err == nil {
		m.upstreamStatus.WithLabelValues(name, "200").Inc()
	}

	prev := m.GetHealthStatus(name)
	status := HealthStatus{
		Healthy:      true,
		LastCheck:    time.Now(),
		Latency:      duration,
		ErrorCount:   prev.ErrorCount,
		RequestCount: prev.RequestCount + 1,
	}

	if err != nil {
		counts := m.breaker.Counts()
		m.logger.Debug("operation failed",
			zap.String("provider", name),
			zap.Error(err),
			zap.Duration("duration", duration),
			zap.String("breaker_state", m.breaker.State().String()),
			zap.Uint32("consecutive_failures", counts.ConsecutiveFailures))

		if !countsAsSuccess(err) || errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			status.Healthy = false
			status.ErrorCount++
			status.ConsecutiveFails = int(counts.ConsecutiveFailures)
		}
	}

	return &result{text: text, err: err, status: status}
}

func classify(err error) string {
	var upstreamErr *UpstreamError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "circuit_open"
	case errors.As(err, &upstreamErr) && upstreamErr.RateLimited():
		return "rate_limited"
	case errors.As(err, &upstreamErr):
		return "upstream_error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// generateRequestKey hashes the prompt so keys stay small and the prompt
// never shows up in logs.
func generateRequestKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// processResult updates health state and the deduplication counter
func (m *Manager) processResult(r *result, shared bool) {
	if shared {
		m.deduplicatedRequests.Inc()
	}
	m.UpdateHealthStatus(m.provider.Name(), r.status)
}
