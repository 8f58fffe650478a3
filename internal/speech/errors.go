package speech

import (
	"errors"
	"fmt"
)

// Common speech errors.
var (
	// ErrInvalidInput indicates the request text was rejected before synthesis.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSynthesisFailure indicates the speech engine failed to produce audio.
	ErrSynthesisFailure = errors.New("synthesis failed")

	// ErrUnknownBackend indicates no backend is registered under a name.
	ErrUnknownBackend = errors.New("unknown speech backend")
)

// ErrorCode identifies specific error types.
type ErrorCode string

const (
	// Input errors
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrorCodeTextTooLong  ErrorCode = "TEXT_TOO_LONG"

	// Engine errors
	ErrorCodeSynthesisFailure  ErrorCode = "SYNTHESIS_FAILURE"
	ErrorCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
)

// Error represents a speech error with additional context. Message is safe to
// return to the caller as-is.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewError creates a new speech error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the error belongs to one of the sentinel categories.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Code == ErrorCodeInvalidInput || e.Code == ErrorCodeTextTooLong
	case ErrSynthesisFailure:
		return e.Code == ErrorCodeSynthesisFailure || e.Code == ErrorCodeEngineUnavailable
	}
	return false
}

// synthesisError wraps an engine failure. The raw engine message is kept as
// the caller-facing message.
func synthesisError(cause error) *Error {
	return NewError(ErrorCodeSynthesisFailure, cause.Error(), cause)
}
