package speech

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		invalid   bool
		synthesis bool
	}{
		{ErrorCodeInvalidInput, true, false},
		{ErrorCodeTextTooLong, true, false},
		{ErrorCodeSynthesisFailure, false, true},
		{ErrorCodeEngineUnavailable, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", NewError(tt.code, "msg", nil))
			if got := errors.Is(err, ErrInvalidInput); got != tt.invalid {
				t.Errorf("errors.Is(ErrInvalidInput) = %v, want %v", got, tt.invalid)
			}
			if got := errors.Is(err, ErrSynthesisFailure); got != tt.synthesis {
				t.Errorf("errors.Is(ErrSynthesisFailure) = %v, want %v", got, tt.synthesis)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("espeak failed: exit status 1")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"no cause", NewError(ErrorCodeInvalidInput, "Text is required", nil), "INVALID_INPUT: Text is required"},
		{"cause equals message", synthesisError(cause), "SYNTHESIS_FAILURE: espeak failed: exit status 1"},
		{"distinct cause", NewError(ErrorCodeEngineUnavailable, "no engine", cause), "ENGINE_UNAVAILABLE: no engine: espeak failed: exit status 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	if !errors.Is(synthesisError(cause), cause) {
		t.Error("Expected cause to be reachable through Unwrap")
	}
}
