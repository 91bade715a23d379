// Package retry provides a bounded retry wrapper with configurable backoff.
package retry

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Strategy selects how the wait interval grows between attempts.
type Strategy string

const (
	// None waits a constant interval between attempts.
	None Strategy = "none"
	// Linear waits interval * attemptNumber.
	Linear Strategy = "linear"
	// Exponential waits interval * 2^(attempt-1), capped at MaxBackoff.
	Exponential Strategy = "exponential"
)

// MaxBackoff caps the exponential wait.
const MaxBackoff = 30 * time.Second

// errPermanent marks errors that must not be retried.
var errPermanent = errors.New("permanent failure")

// Permanent marks err as non-retryable: Do returns it immediately without
// consuming further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, errPermanent)
}

// IsPermanent reports whether err carries the non-retryable marker.
func IsPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}

// ParseStrategy maps a config string onto a Strategy, defaulting to Linear.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case None, Linear, Exponential:
		return Strategy(s)
	default:
		return Linear
	}
}

// Backoff computes the wait before the attempt following attempt (1-based).
func Backoff(strategy Strategy, interval time.Duration, attempt int) time.Duration {
	switch strategy {
	case Linear:
		return interval * time.Duration(attempt)
	case Exponential:
		wait := interval << (attempt - 1)
		// Guard against shift overflow as well as the configured ceiling.
		if wait > MaxBackoff || wait <= 0 {
			return MaxBackoff
		}
		return wait
	default:
		return interval
	}
}

// Do executes fn up to maxAttempts times. On each failure before the last
// attempt it waits the computed backoff, then retries. The last error is
// returned unmodified. Errors marked Permanent and context cancellation stop
// the loop immediately.
func Do(ctx context.Context, fn func(context.Context) error, interval time.Duration, maxAttempts int, strategy Strategy) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) || errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		wait := Backoff(strategy, interval, attempt)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return lastErr
}
