package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jdziat/device-schedules/pkg/core"
)

// RetryConfig bounds how often the worker repeats a storage call that failed.
type RetryConfig struct {
	// MaxAttempts counts the first call. 1 disables retrying.
	MaxAttempts int
	// InitialBackoff is the pause after the first failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the pause between attempts.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the pause after each failure.
	BackoffMultiplier float64
	// JitterFraction randomizes each pause by up to this share, in both
	// directions.
	JitterFraction float64
}

// DefaultRetryConfig returns five attempts starting at 100ms, doubling up
// to 5s with 10% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// delay is the pause before attempt n+1, without jitter.
func (c RetryConfig) delay(n int) time.Duration {
	d := float64(c.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= c.BackoffMultiplier
		if c.MaxBackoff > 0 && d >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && d > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	return time.Duration(d)
}

func (c RetryConfig) jittered(n int) time.Duration {
	d := c.delay(n)
	if c.JitterFraction <= 0 {
		return d
	}
	j := time.Duration(float64(d) * c.JitterFraction * (rand.Float64()*2 - 1))
	if d+j < 0 {
		return d
	}
	return d + j
}

// retryWithBackoff calls op until it succeeds, returns a permanent error,
// runs out of attempts or ctx is done.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, op func() error) error {
	var err error
	for n := 1; ; n++ {
		if err = op(); err == nil || !IsRetryableError(err) || n >= cfg.MaxAttempts {
			return err
		}

		t := time.NewTimer(cfg.jittered(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// IsRetryableError reports whether err may go away on a second attempt.
// Engine outcomes such as an empty recurrence or a disabled schedule are
// answers, not outages, and are never retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch {
	case errors.Is(err, core.ErrInvalidState),
		errors.Is(err, core.ErrEmptyRecurrence),
		errors.Is(err, core.ErrScheduleNotFound),
		errors.Is(err, core.ErrInvalidTimezone),
		core.IsEvaluatorFailure(err):
		return false
	}

	// Connection resets, lock timeouts and deadlocks usually clear up.
	return true
}
