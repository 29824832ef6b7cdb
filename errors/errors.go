// Package errors provides the error model shared by the chat relay.
// It includes structured error types, JSON response formatting, request ID
// tracking, and integrated logging with Uber's zap logger.
//
// Two kinds of failures exist in the relay. Non-chat routes answer with the
// structured envelope written by WriteError. The chat route never surfaces an
// error envelope: its failures are folded into a chat reply with success=false
// (see the handlers package), but still use the types here for logging.
//
// Basic usage:
//
//	errors.ErrorWithType(w, "Invalid input", errors.ValidationError, http.StatusBadRequest)
//
// For more complex scenarios, use the constructors in types.go:
//
//	err := errors.NewValidationError(requestID, "Invalid input", map[string]interface{}{
//	    "field": "role",
//	    "error": "required",
//	})
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the default zap logger instance used throughout the package.
// It is initialized to a production configuration but can be overridden using SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger allows setting a custom zap logger instance.
// A nil logger is ignored so logging cannot be disabled by accident.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType represents a category of failure in the relay.
type ErrorType string

const (
	// ValidationError represents input validation failures
	ValidationError ErrorType = "validation_error"

	// InternalError represents unexpected internal server errors
	InternalError ErrorType = "internal_error"

	// ConfigError represents configuration-related errors
	ConfigError ErrorType = "config_error"

	// AuthenticationError represents a missing or invalid credential
	AuthenticationError ErrorType = "authentication_error"

	// RateLimitError represents local or upstream rate limiting
	RateLimitError ErrorType = "rate_limit_error"

	// SessionError represents failures loading or saving session state
	SessionError ErrorType = "session_error"

	// BadRequestError represents invalid request format or parameters
	BadRequestError ErrorType = "bad_request"

	// NotFoundError represents resource not found errors
	NotFoundError ErrorType = "not_found"
)

// RelayError is the relay's error type. It is serialized to JSON for API
// responses while keeping the underlying error for logs.
type RelayError struct {
	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`

	// RequestID links the error to a specific request
	RequestID string `json:"request_id"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	// err is the underlying error (not exposed in JSON)
	err error
}

// Error implements the error interface. It returns a string that
// combines the error type, message, and underlying error (if any).
func (e *RelayError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *RelayError) Unwrap() error {
	return e.err
}

// Is matches on error type only, so errors.Is(err, &RelayError{Type: X})
// works regardless of message or request.
func (e *RelayError) Is(target error) bool {
	t, ok := target.(*RelayError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WriteError writes a RelayError to an http.ResponseWriter as JSON
// with the error's status code.
func WriteError(w http.ResponseWriter, err *RelayError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
}

// ErrorWithType writes an envelope of the given type. The request ID is
// taken from the response headers set by the RequestID middleware.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	requestID := w.Header().Get("X-Request-ID")
	err := &RelayError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
	}
	WriteError(w, err)
}
