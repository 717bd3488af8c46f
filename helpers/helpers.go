package helpers

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// RetryPolicy retries an operation with a fixed backoff.
// MaxAttempts <= 0 retries until the context is cancelled.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Do runs op until it succeeds. onErr, when set, sees every failed attempt
// before the backoff starts. The returned error is either the context error
// or ErrAttemptsExhausted wrapping the last failure.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error, onErr func(attempt int, err error)) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(attempt)
		if err == nil {
			return nil
		}
		if onErr != nil {
			onErr(attempt, err)
		}

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return errors.Wrapf(ErrAttemptsExhausted, "after %d attempts: %v", attempt, err)
		}
		if err := SleepContext(ctx, p.Backoff); err != nil {
			return err
		}
	}
}

// SleepContext pauses for d or until ctx is done, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
