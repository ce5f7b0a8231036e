package retry

import (
	"context"
	"math/rand"
	"time"
)

type config struct {
	maxRetries int
	baseWait   time.Duration
	maxWait    time.Duration
}

// Option customizes retry behavior.
type Option func(*config)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithBaseWait sets the wait before the first retry. Subsequent waits double,
// with jitter, up to the maximum.
func WithBaseWait(d time.Duration) Option {
	return func(c *config) { c.baseWait = d }
}

// WithMaxWait caps the wait between retries.
func WithMaxWait(d time.Duration) Option {
	return func(c *config) { c.maxWait = d }
}

// Do runs fn, retrying recoverable failures with exponential backoff. The
// first attempt always runs; a non-recoverable error or an exhausted budget
// returns the last error. Context cancellation stops the wait early.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	cfg := config{
		maxRetries: 3,
		baseWait:   time.Second,
		maxWait:    30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var err error
	wait := cfg.baseWait
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsRecoverable(err) || attempt >= cfg.maxRetries {
			return err
		}

		jittered := wait/2 + time.Duration(rand.Int63n(int64(wait/2)+1))
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait *= 2
		if wait > cfg.maxWait {
			wait = cfg.maxWait
		}
	}
}
