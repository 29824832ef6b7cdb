package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Siva-Pavan02/Computer-Science-AI/server/circuitbreaker"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/provider"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Generator produces model text for a prompt. *provider.Manager satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TokenCounter estimates the token count of a prompt.
type TokenCounter interface {
	Count(text string) int
}

// Processor runs the chat pipeline: build prompt, call the model, format.
//
// Upstream failures are turned into success=false replies here. Anything
// else (template execution, transport) is returned as an error so the
// handler can answer with the generic message.
type Processor struct {
	gen    Generator
	logger *zap.Logger

	mu      sync.RWMutex
	builder *PromptBuilder

	counter      TokenCounter
	promptTokens prometheus.Observer
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the processor logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithTokenCounter records the estimated prompt size of every request.
func WithTokenCounter(c TokenCounter, obs prometheus.Observer) Option {
	return func(p *Processor) {
		p.counter = c
		p.promptTokens = obs
	}
}

// NewProcessor creates a processor using promptTemplate.
func NewProcessor(gen Generator, promptTemplate string, opts ...Option) (*Processor, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	builder, err := NewPromptBuilder(promptTemplate)
	if err != nil {
		return nil, err
	}

	p := &Processor{
		gen:     gen,
		builder: builder,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// SetTemplate replaces the prompt template. The old one stays in place if
// the new one does not parse.
func (p *Processor) SetTemplate(promptTemplate string) error {
	builder, err := NewPromptBuilder(promptTemplate)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.builder = builder
	p.mu.Unlock()
	return nil
}

func (p *Processor) promptBuilder() *PromptBuilder {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.builder
}

// BuildPrompt renders the prompt for req without calling the model.
func (p *Processor) BuildPrompt(req *Request) (string, error) {
	return p.promptBuilder().Build(req.Message, req.Memory, req.Role)
}

// Process handles one chat turn. The returned Response is always safe to
// send; a non-nil error means the caller should send GenericErrorMessage.
func (p *Processor) Process(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	prompt, err := p.BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	if p.counter != nil && p.promptTokens != nil {
		p.promptTokens.Observe(float64(p.counter.Count(prompt)))
	}

	text, err := p.gen.Generate(ctx, prompt)
	if err != nil {
		var upstreamErr *provider.UpstreamError
		switch {
		case errors.As(err, &upstreamErr) && upstreamErr.RateLimited():
			p.logger.Warn("upstream rate limit",
				zap.Int("retry_after", upstreamErr.RetryAfter))
			return &Response{
				Content:    RateLimitMessage(upstreamErr.RetryAfter),
				RetryAfter: upstreamErr.RetryAfter,
			}, nil
		case errors.As(err, &upstreamErr):
			p.logger.Error("upstream failure",
				zap.Int("status", upstreamErr.StatusCode),
				zap.ByteString("body", upstreamErr.Body))
			return FailureResponse(ServiceErrorMessage), nil
		case errors.Is(err, circuitbreaker.ErrCircuitOpen):
			p.logger.Warn("upstream circuit open")
			return FailureResponse(ServiceErrorMessage), nil
		default:
			return nil, fmt.Errorf("generation failed: %w", err)
		}
	}

	return &Response{
		Content: Format(text),
		Success: true,
	}, nil
}
