package errors

import (
	"errors"
	"testing"
)

func TestRelayError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RelayError
		want string
	}{
		{
			name: "basic error without wrapped error",
			err: &RelayError{
				Type:    ValidationError,
				Message: "invalid input",
			},
			want: "validation_error: invalid input",
		},
		{
			name: "error with wrapped error",
			err: &RelayError{
				Type:    SessionError,
				Message: "Session state unavailable",
				err:     errors.New("connection refused"),
			},
			want: "session_error: Session state unavailable: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("RelayError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRelayError_Is(t *testing.T) {
	err1 := &RelayError{Type: SessionError, Message: "test1"}
	err2 := &RelayError{Type: SessionError, Message: "test2"}
	err3 := &RelayError{Type: ValidationError, Message: "test3"}

	if !err1.Is(err2) {
		t.Error("Expected err1.Is(err2) to be true for same error type")
	}
	if err1.Is(err3) {
		t.Error("Expected err1.Is(err3) to be false for different error types")
	}
	if !Is(NewSessionError("req", nil), &RelayError{Type: SessionError}) {
		t.Error("Expected Is to match session errors by type")
	}
}

func TestRelayError_Unwrap(t *testing.T) {
	innerErr := errors.New("inner error")
	err := &RelayError{
		Type:    InternalError,
		Message: "outer error",
		err:     innerErr,
	}

	if unwrapped := err.Unwrap(); unwrapped != innerErr {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, innerErr)
	}
}
