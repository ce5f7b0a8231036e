package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRecoverable(t *testing.T) {
	assert.False(t, IsRecoverable(nil))
	assert.False(t, IsRecoverable(errors.New("schema invalid")))
	assert.True(t, IsRecoverable(NewRecoverableError(errors.New("erp down"))))
	assert.False(t, IsRecoverable(NewNonRecoverableError(errors.New("rate limit"))))

	assert.True(t, IsRecoverable(errors.New("erp connector: connection refused")))
	assert.True(t, IsRecoverable(errors.New("enrichment api: rate limit exceeded")))
	assert.True(t, IsRecoverable(context.DeadlineExceeded))
	assert.False(t, IsRecoverable(context.Canceled))
}

func TestDoRetriesRecoverable(t *testing.T) {
	ctx := context.Background()
	count := 0
	err := Do(ctx, func() error {
		count++
		return NewRecoverableError(errors.New("erp down"))
	}, WithMaxRetries(3), WithBaseWait(time.Millisecond))
	assert.Error(t, err)
	assert.Equal(t, "erp down", err.Error())
	assert.Equal(t, 4, count)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	ctx := context.Background()
	count := 0
	err := Do(ctx, func() error {
		count++
		return errors.New("invalid invoice")
	}, WithMaxRetries(3), WithBaseWait(time.Millisecond))
	assert.Error(t, err)
	assert.Equal(t, 1, count)
}

func TestDoZeroMaxRetriesStillRunsOnce(t *testing.T) {
	ctx := context.Background()
	count := 0
	err := Do(ctx, func() error {
		count++
		return NewRecoverableError(errors.New("erp down"))
	}, WithMaxRetries(0), WithBaseWait(time.Millisecond))
	assert.Error(t, err)
	assert.Equal(t, 1, count)
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	ctx := context.Background()
	count := 0
	err := Do(ctx, func() error {
		count++
		if count < 3 {
			return NewRecoverableError(errors.New("erp down"))
		}
		return nil
	}, WithMaxRetries(5), WithBaseWait(time.Millisecond))
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}
