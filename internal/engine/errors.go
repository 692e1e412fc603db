package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during plan execution.
//
// Runtime errors include:
//   - Invalid request: the request cannot be normalized into a plan input
//   - Unknown provider: a plan names a provider with no registered adapter
//   - Provider evaluation: a backend failed to produce its rows
//   - Cancelled: the context ended before execution finished
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// EvalID identifies the affected evaluation.
	EvalID string

	// Provider names the backend involved, when one is implicated.
	Provider string

	// Err is the underlying cause, when one exists.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidRequest indicates a request the engine cannot turn into
	// a plan input, such as an empty request or a malformed constraint spec.
	ErrCodeInvalidRequest RuntimeErrorCode = "INVALID_REQUEST"

	// ErrCodeUnknownProvider indicates a plan provider without an adapter.
	ErrCodeUnknownProvider RuntimeErrorCode = "UNKNOWN_PROVIDER"

	// ErrCodeProviderEvaluation indicates a backend evaluation failure.
	ErrCodeProviderEvaluation RuntimeErrorCode = "PROVIDER_EVALUATION"

	// ErrCodeCancelled indicates the context ended mid-execution.
	ErrCodeCancelled RuntimeErrorCode = "CANCELLED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.EvalID != "" && e.Provider != "":
		return fmt.Sprintf("%s: %s (eval=%s, provider=%s)", e.Code, e.Message, e.EvalID, e.Provider)
	case e.EvalID != "":
		return fmt.Sprintf("%s: %s (eval=%s)", e.Code, e.Message, e.EvalID)
	case e.Provider != "":
		return fmt.Sprintf("%s: %s (provider=%s)", e.Code, e.Message, e.Provider)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *RuntimeError) Unwrap() error { return e.Err }

// IsInvalidRequest returns true if the error is an invalid request error.
// Uses errors.As to handle wrapped errors.
func IsInvalidRequest(err error) bool {
	return hasCode(err, ErrCodeInvalidRequest)
}

// IsUnknownProvider returns true if the error is an unknown provider error.
func IsUnknownProvider(err error) bool {
	return hasCode(err, ErrCodeUnknownProvider)
}

// IsProviderError returns true if the error is a backend evaluation error.
func IsProviderError(err error) bool {
	return hasCode(err, ErrCodeProviderEvaluation)
}

// IsCancelled returns true if the error is a cancellation error.
func IsCancelled(err error) bool {
	return hasCode(err, ErrCodeCancelled)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewProviderError wraps a backend failure with its provider and evaluation.
func NewProviderError(evalID, provider string, err error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeProviderEvaluation,
		Message:  err.Error(),
		EvalID:   evalID,
		Provider: provider,
		Err:      err,
	}
}
