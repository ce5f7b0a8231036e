package payflow

import (
	"errors"
	"fmt"
)

// Error type constants for classification
const (
	// ErrorTypeValidation indicates malformed caller input, rejected before
	// any store mutation.
	ErrorTypeValidation = "validation"

	// ErrorTypeNotFound indicates an unknown checkpoint or workflow id.
	ErrorTypeNotFound = "not_found"

	// ErrorTypeAlreadyResolved indicates a resume attempt on a checkpoint
	// that has already been decided. Distinct from not-found so callers can
	// tell "never existed" from "already decided".
	ErrorTypeAlreadyResolved = "already_resolved"

	// ErrorTypeCapability indicates a capability invocation failed. These
	// are caught at the stage boundary and folded into stage output; they
	// never abort a walk on their own.
	ErrorTypeCapability = "capability"

	// ErrorTypeFatal indicates the engine could not continue: a handler was
	// given malformed state or produced an invalid update. The run aborts
	// without rolling back durable writes already committed.
	ErrorTypeFatal = "fatal"
)

// Sentinel errors for store conditions, usable with errors.Is.
var (
	ErrNotFound        = errors.New("checkpoint not found")
	ErrAlreadyResolved = errors.New("checkpoint already resolved")
)

// Error is a structured workflow error with a classification type. It
// supports Go's error wrapping with Unwrap.
type Error struct {
	Type    string `json:"type"`
	Cause   string `json:"cause"`
	Details any    `json:"details,omitempty"`
	Wrapped error  `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// NewValidationError builds a client-input error.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Type: ErrorTypeValidation, Cause: fmt.Sprintf(format, args...)}
}

// NewNotFoundError builds a not-found error wrapping ErrNotFound.
func NewNotFoundError(checkpointID string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Cause:   fmt.Sprintf("checkpoint %q not found", checkpointID),
		Wrapped: ErrNotFound,
	}
}

// NewAlreadyResolvedError builds an already-resolved error wrapping
// ErrAlreadyResolved.
func NewAlreadyResolvedError(checkpointID string) *Error {
	return &Error{
		Type:    ErrorTypeAlreadyResolved,
		Cause:   fmt.Sprintf("checkpoint %q already resolved", checkpointID),
		Wrapped: ErrAlreadyResolved,
	}
}

// NewCapabilityError wraps a capability invocation failure.
func NewCapabilityError(capability string, err error) *Error {
	return &Error{
		Type:    ErrorTypeCapability,
		Cause:   fmt.Sprintf("capability %s: %v", capability, err),
		Wrapped: err,
	}
}

// NewFatalError builds an engine-fatal error that aborts the current walk.
func NewFatalError(format string, args ...any) *Error {
	return &Error{Type: ErrorTypeFatal, Cause: fmt.Sprintf(format, args...)}
}

// TypeOf classifies an arbitrary error, defaulting to fatal for errors this
// package did not produce.
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, ErrAlreadyResolved):
		return ErrorTypeAlreadyResolved
	default:
		return ErrorTypeFatal
	}
}
