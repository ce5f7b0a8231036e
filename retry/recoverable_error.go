// Package retry classifies and retries transient failures from external
// systems such as ERP connectors and enrichment APIs.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
)

// RecoverableError lets an error declare its own retry eligibility.
type RecoverableError interface {
	error
	IsRecoverable() bool
}

// IsRecoverable reports whether an error is worth retrying. Errors that
// implement RecoverableError decide for themselves; everything else falls
// back to transport-level heuristics.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var recoverable RecoverableError
	if errors.As(err, &recoverable) {
		return recoverable.IsRecoverable()
	}
	return isTransient(err)
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"rate limit",
	"service unavailable",
	"bad gateway",
	"gateway timeout",
}

func isTransient(err error) bool {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, context.Canceled):
		// Cancellation is intentional, never retry it.
		return false
	}

	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string       { return e.err.Error() }
func (e *recoverableError) IsRecoverable() bool { return true }
func (e *recoverableError) Unwrap() error       { return e.err }

// NewRecoverableError marks an error as retryable regardless of heuristics.
func NewRecoverableError(err error) RecoverableError {
	return &recoverableError{err: err}
}

type nonRecoverableError struct {
	err error
}

func (e *nonRecoverableError) Error() string       { return e.err.Error() }
func (e *nonRecoverableError) IsRecoverable() bool { return false }
func (e *nonRecoverableError) Unwrap() error       { return e.err }

// NewNonRecoverableError marks an error as permanent regardless of heuristics.
func NewNonRecoverableError(err error) RecoverableError {
	return &nonRecoverableError{err: err}
}
