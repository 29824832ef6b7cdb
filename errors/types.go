package errors

import (
	"net/http"
)

// NewError creates a new RelayError with the given parameters.
// For most cases, use one of the specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "session store unavailable", 500, "req_123", nil, redisErr)
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *RelayError {
	return &RelayError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewValidationError creates a validation error with appropriate defaults.
// Use this for request validation failures, such as:
//   - Malformed JSON bodies
//   - Missing required fields
//   - Value constraint violations
//
// Example:
//
//	err := NewValidationError("req_123", "Invalid role", map[string]interface{}{
//	    "field": "role",
//	    "error": "must not be empty",
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *RelayError {
	return &RelayError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   validationDetails,
	}
}

// NewRateLimitError creates a rate limit error carrying the suggested wait
// in seconds.
//
// Example:
//
//	err := NewRateLimitError("req_123", 30)
func NewRateLimitError(requestID string, retryAfter int) *RelayError {
	return &RelayError{
		Type:      RateLimitError,
		Message:   "Rate limit exceeded",
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
		Details: map[string]interface{}{
			"retry_after": retryAfter,
		},
	}
}

// NewSessionError creates an error for session store failures.
func NewSessionError(requestID string, err error) *RelayError {
	return &RelayError{
		Type:      SessionError,
		Message:   "Session state unavailable",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

// NewConfigError creates an error for invalid or missing configuration.
func NewConfigError(message string, err error) *RelayError {
	return &RelayError{
		Type:    ConfigError,
		Message: message,
		Code:    http.StatusInternalServerError,
		err:     err,
	}
}

// NewInternalError creates an internal server error for anything not covered
// by the other constructors, panics included.
//
// Example:
//
//	err := NewInternalError("req_123", encodeErr)
func NewInternalError(requestID string, err error) *RelayError {
	return &RelayError{
		Type:      InternalError,
		Message:   "An internal error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

// NewNotFoundError creates an error for unknown routes or methods.
func NewNotFoundError(requestID, message string) *RelayError {
	return &RelayError{
		Type:      NotFoundError,
		Message:   message,
		Code:      http.StatusNotFound,
		RequestID: requestID,
	}
}
