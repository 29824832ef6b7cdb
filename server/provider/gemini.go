package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/Siva-Pavan02/Computer-Science-AI/config"
	"go.uber.org/zap"
)

// maxResponseBytes caps how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// GeminiClient calls the generateContent endpoint of the generative language API.
type GeminiClient struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	mu         sync.RWMutex
	generation config.GenerationConfig
}

// GeminiOption customizes a GeminiClient.
type GeminiOption func(*GeminiClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiClient) {
		g.httpClient = c
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) GeminiOption {
	return func(g *GeminiClient) {
		g.logger = l
	}
}

// NewGeminiClient creates a client from the gemini section of the config.
func NewGeminiClient(cfg config.GeminiConfig, opts ...GeminiOption) *GeminiClient {
	g := &GeminiClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     zap.NewNop(),
		generation: cfg.Generation,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Provider.
func (g *GeminiClient) Name() string {
	return "gemini"
}

// SetGeneration swaps the sampling parameters used by later calls.
func (g *GeminiClient) SetGeneration(gen config.GenerationConfig) {
	g.mu.Lock()
	g.generation = gen
	g.mu.Unlock()
}

// Generation returns the sampling parameters currently in use.
func (g *GeminiClient) Generation() config.GenerationConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.generation
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// endpoint builds {base}/models/{model}:generateContent?key={key}.
func (g *GeminiClient) endpoint() string {
	q := url.Values{}
	q.Set("key", g.apiKey)
	return fmt.Sprintf("%s/models/%s:generateContent?%s", g.baseURL, url.PathEscape(g.model), q.Encode())
}

// Generate sends prompt as a single user turn. A 200 answer without the
// expected candidate shape yields an empty string.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	gen := g.Generation()
	payload, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: generationConfig{
			Temperature:     gen.Temperature,
			TopK:            gen.TopK,
			TopP:            gen.TopP,
			MaxOutputTokens: gen.MaxOutputTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		// The URL carries the key; report the operation without it
		if uerr, ok := err.(*url.Error); ok {
			return "", fmt.Errorf("call %s: %w", g.model, uerr.Err)
		}
		return "", fmt.Errorf("call %s: %w", g.model, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		upstreamErr := &UpstreamError{StatusCode: resp.StatusCode, Body: body}
		if upstreamErr.RateLimited() {
			upstreamErr.RetryAfter = ParseRetryAfter(body)
		}
		// Logged once by the caller, which knows the request
		return "", upstreamErr
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		g.logger.Warn("response without candidate text", zap.String("model", g.model))
		return "", nil
	}
	return decoded.Candidates[0].Content.Parts[0].Text, nil
}
