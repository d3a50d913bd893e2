package types

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the small set of failures visible outside a stage.
type ErrorKind string

const (
	ErrTimeout             ErrorKind = "TIMEOUT"
	ErrModel               ErrorKind = "MODEL_ERROR"
	ErrValidationFailed    ErrorKind = "VALIDATION_FAILED"
	ErrContextInsufficient ErrorKind = "CONTEXT_INSUFFICIENT"
	ErrCache               ErrorKind = "CACHE_ERROR"
	ErrInvalidInput        ErrorKind = "INVALID_INPUT"
)

// PipelineError is the only error type the orchestrator surfaces to callers.
// Inner errors from stages are wrapped, never exposed raw.
type PipelineError struct {
	Kind       ErrorKind
	Message    string
	Retryable  bool
	Suggestion string
	Err        error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewTimeoutError builds the retryable error returned when a stage or the
// whole pipeline exceeds its budget.
func NewTimeoutError(msg string, err error) *PipelineError {
	return &PipelineError{
		Kind:       ErrTimeout,
		Message:    msg,
		Retryable:  true,
		Suggestion: "retry the request, or raise the timeout budget",
		Err:        err,
	}
}

// NewModelError wraps a provider failure. Retryable once.
func NewModelError(msg string, err error) *PipelineError {
	return &PipelineError{
		Kind:       ErrModel,
		Message:    msg,
		Retryable:  true,
		Suggestion: "retry once; check provider credentials and availability",
		Err:        err,
	}
}

// NewValidationError wraps an ensemble/resolution failure. The orchestrator
// recovers by falling back to the primary result.
func NewValidationError(msg string, err error) *PipelineError {
	return &PipelineError{
		Kind:       ErrValidationFailed,
		Message:    msg,
		Retryable:  false,
		Suggestion: "primary classification is still usable; validation was skipped",
		Err:        err,
	}
}

// NewInvalidInputError rejects a malformed request before any stage runs.
// Retrying the same input cannot succeed.
func NewInvalidInputError(msg string) *PipelineError {
	return &PipelineError{
		Kind:       ErrInvalidInput,
		Message:    msg,
		Retryable:  false,
		Suggestion: "correct the request and resubmit",
	}
}

// NewContextError marks a degraded context analysis. Never surfaced raw; the
// analyzer substitutes a minimal context instead.
func NewContextError(msg string, err error) *PipelineError {
	return &PipelineError{
		Kind:       ErrContextInsufficient,
		Message:    msg,
		Retryable:  false,
		Suggestion: "request proceeded with minimal context",
		Err:        err,
	}
}

// NewCacheError marks a cache failure. Recoverable by bypassing the cache.
func NewCacheError(msg string, err error) *PipelineError {
	return &PipelineError{
		Kind:       ErrCache,
		Message:    msg,
		Retryable:  false,
		Suggestion: "cache bypassed for this request",
		Err:        err,
	}
}

// AsPipelineError unwraps err into a *PipelineError if possible.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsKind reports whether err is a PipelineError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	pe, ok := AsPipelineError(err)
	return ok && pe.Kind == kind
}
