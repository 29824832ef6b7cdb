// Package provider talks to the text-generation service and guards it with a
// circuit breaker, request deduplication and passive health tracking.
package provider

import (
	"context"
)

// Provider generates a completion for a single prompt.
type Provider interface {
	// Name identifies the provider in logs and metrics
	Name() string

	// Generate returns the text of the first candidate. A non-200 answer is
	// reported as *UpstreamError.
	Generate(ctx context.Context, prompt string) (string, error)
}
