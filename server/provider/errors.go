package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultRetryAfter is the wait suggested for a 429 without a usable retry hint.
const DefaultRetryAfter = 15

var (
	// ErrNoProvider indicates the manager was built without a provider
	ErrNoProvider = errors.New("no provider configured")

	// ErrEmptyPrompt is returned for prompts with no text
	ErrEmptyPrompt = errors.New("empty prompt")
)

// UpstreamError is a non-200 answer from the generation endpoint.
type UpstreamError struct {
	StatusCode int
	Body       []byte

	// RetryAfter is the suggested wait in seconds; set only for 429 responses.
	RetryAfter int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// RateLimited reports whether the upstream rejected the call for quota reasons.
func (e *UpstreamError) RateLimited() bool {
	return e.StatusCode == 429
}

type errorEnvelope struct {
	Error struct {
		Details []map[string]interface{} `json:"details"`
	} `json:"error"`
}

// ParseRetryAfter extracts the wait in seconds from a 429 body. It looks for
// an error.details entry whose "@type" names RetryInfo and reads the leading
// digits of its retryDelay ("23s" → 23). Anything missing, unparsable or
// zero yields DefaultRetryAfter.
func ParseRetryAfter(body []byte) int {
	var env errorEnvelope
	if len(body) == 0 || json.Unmarshal(body, &env) != nil {
		return DefaultRetryAfter
	}

	for _, detail := range env.Error.Details {
		typ, _ := detail["@type"].(string)
		if !strings.Contains(typ, "RetryInfo") {
			continue
		}
		delay, _ := detail["retryDelay"].(string)
		if n := leadingInt(delay); n > 0 {
			return n
		}
		return DefaultRetryAfter
	}

	return DefaultRetryAfter
}

func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
