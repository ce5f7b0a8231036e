package payflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorWrapping(t *testing.T) {
	err := NewValidationError("amount must not be negative: %v", -5.0)
	require.Equal(t, "validation: amount must not be negative: -5", err.Error())
	require.Nil(t, err.Unwrap())

	cause := errors.New("connection refused")
	wrapped := NewCapabilityError("fetch_po", cause)
	require.True(t, errors.Is(wrapped, cause))
	require.Contains(t, wrapped.Error(), "fetch_po")
}

func TestSentinelErrors(t *testing.T) {
	notFound := NewNotFoundError("ckpt_123")
	require.True(t, errors.Is(notFound, ErrNotFound))
	require.False(t, errors.Is(notFound, ErrAlreadyResolved))
	require.Contains(t, notFound.Error(), "ckpt_123")

	resolved := NewAlreadyResolvedError("ckpt_123")
	require.True(t, errors.Is(resolved, ErrAlreadyResolved))
	require.False(t, errors.Is(resolved, ErrNotFound))

	// Sentinels survive another layer of wrapping.
	outer := fmt.Errorf("submit decision: %w", resolved)
	require.True(t, errors.Is(outer, ErrAlreadyResolved))
}

func TestTypeOf(t *testing.T) {
	require.Equal(t, ErrorTypeValidation, TypeOf(NewValidationError("bad")))
	require.Equal(t, ErrorTypeNotFound, TypeOf(NewNotFoundError("x")))
	require.Equal(t, ErrorTypeAlreadyResolved, TypeOf(NewAlreadyResolvedError("x")))
	require.Equal(t, ErrorTypeCapability, TypeOf(NewCapabilityError("x", errors.New("boom"))))
	require.Equal(t, ErrorTypeFatal, TypeOf(NewFatalError("broken")))
	require.Equal(t, ErrorTypeFatal, TypeOf(errors.New("anonymous")))

	require.Equal(t, ErrorTypeNotFound, TypeOf(fmt.Errorf("outer: %w", ErrNotFound)))
	require.Equal(t, ErrorTypeAlreadyResolved, TypeOf(fmt.Errorf("outer: %w", ErrAlreadyResolved)))
}

func TestParseDecision(t *testing.T) {
	decision, err := ParseDecision("ACCEPT")
	require.NoError(t, err)
	require.Equal(t, DecisionAccept, decision)

	decision, err = ParseDecision("REJECT")
	require.NoError(t, err)
	require.Equal(t, DecisionReject, decision)

	for _, bad := range []string{"", "accept", "MAYBE", "Accepted"} {
		_, err := ParseDecision(bad)
		require.Error(t, err, "value %q", bad)
		require.Equal(t, ErrorTypeValidation, TypeOf(err))
	}
}
