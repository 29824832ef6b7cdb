// Package config provides configuration management for the chat relay.
// It covers the HTTP server, the Gemini text-generation endpoint, session
// handling, the chat pipeline (prompt template, memory, persona, welcome
// message) and runtime protections such as rate limiting and the circuit breaker.
package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables read on top of the YAML file.
const (
	EnvAPIKey        = "GEMINI_API_KEY"
	EnvSessionSecret = "SESSION_SECRET"
	EnvPort          = "PORT"
	EnvRedisURL      = "REDIS_URL"
	EnvModel         = "GEMINI_MODEL"
)

// Config represents the complete relay configuration.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Gemini         GeminiConfig         `yaml:"gemini"`
	Session        SessionConfig        `yaml:"session"`
	Chat           ChatConfig           `yaml:"chat"`
	Logging        LoggingConfig        `yaml:"logging"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Queue          QueueConfig          `yaml:"queue"`
	Metrics        MetricsConfig        `yaml:"metrics"`
	TestMode       bool                 `yaml:"-"` // Skip Prometheus registration of breaker metrics in tests
}

// ServerConfig holds server-specific configuration for the HTTP server.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 5000)
	Port int `yaml:"port" validate:"gte=0,lte=65535"`

	// ReadTimeout is the maximum duration for reading the entire request (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gte=0"`

	// WriteTimeout must exceed the upstream timeout, a chat reply waits on
	// the remote model (default: 90s)
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`

	// MaxHeaderBytes controls the maximum size of request headers (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes" validate:"gte=0"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// AllowedOrigin is echoed in Access-Control-Allow-Origin. Empty (the
	// default) sends no CORS headers; the page is served same-origin.
	AllowedOrigin string `yaml:"allowed_origin"`
}

// GeminiConfig describes the remote text-generation endpoint.
type GeminiConfig struct {
	// BaseURL of the generative language API
	BaseURL string `yaml:"base_url" validate:"required,url"`

	// Model identifier, e.g. "gemini-1.5-pro-latest"
	Model string `yaml:"model" validate:"required"`

	// APIKey is sent as the "key" query parameter.
	// Use ${GEMINI_API_KEY} or the environment variable directly.
	APIKey string `yaml:"api_key"`

	// Timeout bounds a single generateContent call (default: 60s)
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// Deduplicate collapses identical in-flight prompts into one upstream call
	Deduplicate bool `yaml:"deduplicate"`

	Generation GenerationConfig `yaml:"generation"`
}

// GenerationConfig mirrors the generationConfig block of a generateContent request.
type GenerationConfig struct {
	Temperature     float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	TopK            int     `yaml:"top_k" validate:"gte=1"`
	TopP            float64 `yaml:"top_p" validate:"gt=0,lte=1"`
	MaxOutputTokens int     `yaml:"max_output_tokens" validate:"gt=0"`
}

// SessionConfig controls how visitors are tracked and where their state lives.
type SessionConfig struct {
	// Secret signs the session cookie. Required.
	Secret string `yaml:"secret"`

	// CookieName is the name of the signed cookie carrying the session id
	CookieName string `yaml:"cookie_name" validate:"required"`

	// TTL is both the cookie max age and the store expiry (default: 24h)
	TTL time.Duration `yaml:"ttl" validate:"gt=0"`

	// Secure marks the cookie HTTPS-only
	Secure bool `yaml:"secure"`

	// Backend selects the session store: "memory" or "redis"
	Backend string `yaml:"backend" validate:"oneof=memory redis"`

	// RedisURL is required when Backend is "redis"
	RedisURL string `yaml:"redis_url" validate:"required_if=Backend redis"`

	// KeyPrefix namespaces session keys in Redis
	KeyPrefix string `yaml:"key_prefix"`

	// CleanupInterval is how often the memory store sweeps expired sessions
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gte=0"`
}

// ChatConfig drives prompt assembly and session bookkeeping.
type ChatConfig struct {
	// MaxMemoryPrompts caps the per-session memory of raw user messages
	MaxMemoryPrompts int `yaml:"max_memory_prompts" validate:"gt=0"`

	// DefaultRole is the persona used until a visitor picks one
	DefaultRole string `yaml:"default_role" validate:"required"`

	// MaxRoleLength bounds the persona label accepted from clients
	MaxRoleLength int `yaml:"max_role_length" validate:"gt=0"`

	// WelcomeMessage is pre-formatted markup seeded into new and cleared sessions
	WelcomeMessage string `yaml:"welcome_message" validate:"required"`

	// PromptTemplate is a text/template with .Message, .Memory and .Role
	PromptTemplate string `yaml:"prompt_template" validate:"required"`

	// CountTokens records an estimated prompt token count per request
	CountTokens bool `yaml:"count_tokens"`

	// TokenEncoding is the tiktoken encoding used for estimates
	TokenEncoding string `yaml:"token_encoding"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Format specifies log output format: json or text
	Format string `yaml:"format" validate:"oneof=json text"`
}

// CircuitBreakerConfig configures the breaker guarding the upstream endpoint.
type CircuitBreakerConfig struct {
	// MaxRequests is maximum number of requests allowed to pass through when in half-open state
	MaxRequests uint32 `yaml:"max_requests"`

	// Interval is the cyclic period of the closed state for clearing counts
	Interval time.Duration `yaml:"interval"`

	// Timeout is the period of the open state until it becomes half-open
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is the number of consecutive failures needed to trip the circuit
	FailureThreshold uint32 `yaml:"failure_threshold" validate:"gt=0"`
}

// RateLimitConfig configures per-client limiting of /chat.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" validate:"gte=0"`
	Burst             int  `yaml:"burst" validate:"gte=0"`
}

// QueueConfig bounds /chat concurrency. Requests beyond MaxConcurrent wait
// in FIFO order; beyond MaxSize waiting requests they are shed.
type QueueConfig struct {
	// Enabled determines if the admission queue is active
	Enabled bool `yaml:"enabled"`

	// MaxSize is the maximum number of waiting requests
	MaxSize int64 `yaml:"max_size" validate:"gte=0"`

	// MaxConcurrent is the number of requests processed at once
	MaxConcurrent int64 `yaml:"max_concurrent" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Token, when set, must be presented as a bearer token to read /metrics
	Token string `yaml:"token"`
}

// DefaultPromptTemplate restricts the assistant to Computer Science and
// carries the persona, memory and current message.
const DefaultPromptTemplate = `
You are an AI Assistant specializing in Computer Science.

Your task is to ONLY answer questions strictly related to Computer Science.
If the user's question is outside the Computer Science domain (like cooking, sports, movies, etc.), politely refuse to answer.
{{- if .Role}}

The user is a {{.Role}}. Adapt the depth and tone of your answer to them.
{{- end}}

Previous user messages (for context):
{{.Memory}}

Current user's message: "{{.Message}}"

Respond clearly and concisely. Focus on providing accurate, educational information about computer science topics.
Include examples when helpful. Format code snippets properly for easy reading. Use professional language but be friendly and approachable.
`

// DefaultWelcomeMessage is shown as the first assistant entry of a session.
const DefaultWelcomeMessage = `<i class="fas fa-info-circle me-2"></i> Only Computer Science related questions will be answered.`

// DefaultConfig returns a configuration for a single-instance deployment with
// in-memory sessions. Secrets are left empty and must come from the
// environment or the config file.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},

		Gemini: GeminiConfig{
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			Model:       "gemini-1.5-pro-latest",
			Timeout:     60 * time.Second,
			Deduplicate: true,
			Generation: GenerationConfig{
				Temperature:     0.2,
				TopK:            40,
				TopP:            0.95,
				MaxOutputTokens: 1024,
			},
		},

		Session: SessionConfig{
			CookieName:      "csai_session",
			TTL:             24 * time.Hour,
			Backend:         "memory",
			KeyPrefix:       "csai:session:",
			CleanupInterval: 10 * time.Minute,
		},

		Chat: ChatConfig{
			MaxMemoryPrompts: 10,
			DefaultRole:      "Student",
			MaxRoleLength:    100,
			WelcomeMessage:   DefaultWelcomeMessage,
			PromptTemplate:   DefaultPromptTemplate,
			TokenEncoding:    "cl100k_base",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},

		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},

		// The free tier allows two generateContent calls per minute per key.
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 10,
			Burst:             5,
		},

		Queue: QueueConfig{
			Enabled:       true,
			MaxSize:       64,
			MaxConcurrent: 8,
		},

		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// LoadFile loads configuration from a YAML file
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// LoadOptionalFile is LoadFile, except that a missing file yields the
// defaults plus environment overrides.
func LoadOptionalFile(filename string) (*Config, error) {
	if _, err := os.Stat(filename); err != nil {
		if os.IsNotExist(err) {
			return Load(strings.NewReader(""))
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	return LoadFile(filename)
}

// envRefRe matches an innermost ${VAR} or ${VAR:-default}. Bare $VAR and
// $1 are left alone so prompt text can carry dollar signs.
var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^${}]*))?\}`)

// expandEnvVars resolves ${VAR} and ${VAR:-default} references. Nested
// references are expanded from the inside out until the string stops changing.
//
// Example Transformations:
//   - "${GEMINI_API_KEY}" → "AIza..."
//   - "${PORT:-5000}" → "5000" (if PORT is unset)
//   - "costs $5" → "costs $5"
func expandEnvVars(s string) (string, error) {
	if strings.Count(s, "${") > strings.Count(s, "}") {
		return "", fmt.Errorf("unterminated variable reference")
	}

	resolve := func(ref string) string {
		m := envRefRe.FindStringSubmatch(ref)
		if val := os.Getenv(m[1]); val != "" || !strings.Contains(ref, ":-") {
			return val
		}
		return m[2]
	}

	for i := 0; i < 8 && envRefRe.MatchString(s); i++ {
		next := envRefRe.ReplaceAllStringFunc(s, resolve)
		if next == s {
			break
		}
		s = next
	}
	return s, nil
}

// Load loads configuration from an io.Reader, applies environment overrides
// and validates the result.
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expandedData, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	// Start with defaults
	config := DefaultConfig()

	// Decode YAML on top of defaults; an empty document keeps the defaults
	if strings.TrimSpace(expandedData) != "" {
		dec := yaml.NewDecoder(strings.NewReader(expandedData))
		if err := dec.Decode(config); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// applyEnv lets well-known environment variables win over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Gemini.APIKey = v
	}
	if v := os.Getenv(EnvSessionSecret); v != "" {
		c.Session.Secret = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Gemini.Model = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Session.RedisURL = v
		c.Session.Backend = "redis"
	}
	if v := os.Getenv(EnvPort); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			c.Server.Port = port
		}
	}
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks if the configuration is valid. Missing secrets are
// reported here so the process fails at startup instead of on the first
// chat request.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %q check (value: %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	if strings.TrimSpace(c.Gemini.APIKey) == "" {
		return fmt.Errorf("gemini.api_key is required (set %s)", EnvAPIKey)
	}
	if strings.TrimSpace(c.Session.Secret) == "" {
		return fmt.Errorf("session.secret is required (set %s)", EnvSessionSecret)
	}

	if _, err := template.New("prompt").Parse(c.Chat.PromptTemplate); err != nil {
		return fmt.Errorf("invalid chat.prompt_template: %w", err)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute == 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must be positive when rate limiting is enabled")
	}
	if c.Queue.Enabled && (c.Queue.MaxSize == 0 || c.Queue.MaxConcurrent == 0) {
		return fmt.Errorf("queue.max_size and queue.max_concurrent must be positive when the queue is enabled")
	}

	return nil
}
