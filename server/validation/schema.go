// Package validation decodes and validates request bodies and estimates
// prompt sizes.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkoukk/tiktoken-go"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	// Message is passed through verbatim; empty is allowed
	Message string `json:"message"`

	// Role, when non-empty, replaces the session role
	Role string `json:"role,omitempty"`
}

// RoleRequest is the body of POST /set_role.
type RoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// FieldError describes one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Validator wraps go-playground/validator with JSON field names.
type Validator struct {
	validate *validator.Validate
}

// New creates a Validator.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct validates s and returns one FieldError per failed rule.
func (v *Validator) Struct(s interface{}) []FieldError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "body", Message: err.Error(), Code: "invalid"}}
	}

	details := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, FieldError{
			Field:   fe.Field(),
			Message: describe(fe.Field(), fe.Tag(), fe.Param()),
			Code:    fe.Tag(),
		})
	}
	return details
}

// Role checks a persona label against the configured maximum length.
func (v *Validator) Role(role string, maxLen int) *FieldError {
	if err := v.validate.Var(role, "required"); err != nil {
		return &FieldError{Field: "role", Message: describe("role", "required", ""), Code: "required"}
	}
	if maxLen > 0 {
		if err := v.validate.Var(role, fmt.Sprintf("max=%d", maxLen)); err != nil {
			return &FieldError{Field: "role", Message: describe("role", "max", fmt.Sprint(maxLen)), Code: "max"}
		}
	}
	return nil
}

func describe(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("field '%s' is required", field)
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s characters", field, param)
	default:
		return fmt.Sprintf("field '%s' failed '%s' validation", field, tag)
	}
}

// Tokenizer defines the interface for token counting
type Tokenizer interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
}

// TokenCounter estimates token counts with a tiktoken encoding. Gemini uses
// its own tokenizer; the numbers are only an approximation for metrics.
type TokenCounter struct {
	encoding Tokenizer
}

// NewTokenCounter loads the named encoding, e.g. "cl100k_base".
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encoding, err)
	}
	return &TokenCounter{encoding: enc}, nil
}

// NewTokenCounterWith uses an existing tokenizer.
func NewTokenCounterWith(t Tokenizer) *TokenCounter {
	return &TokenCounter{encoding: t}
}

// Count returns the number of tokens in text.
func (tc *TokenCounter) Count(text string) int {
	return len(tc.encoding.Encode(text, nil, nil))
}
