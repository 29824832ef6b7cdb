// Package errors provides error response utilities.
package errors

import (
	"errors"
)

const RequestIDKey = "request_id"

// ErrorResponse is the decoded form of the envelope written by WriteError.
// Clients and tests decode into it.
type ErrorResponse struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// As is a wrapper around errors.As so callers importing this package
// do not also need the standard library package under another name.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
