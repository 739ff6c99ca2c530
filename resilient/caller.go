package resilient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

const defaultMaxAttempts = 3

// Caller retries a unit of network work with exponential backoff on top of
// backoff.Retry.
// The zero value is usable: 3 attempts, 2^attempt seconds between them.
type Caller struct {
	MaxAttempts int
	// Backoff returns the pause after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Call describes one network operation for logging.
type Call struct {
	Op     string
	Target string
}

// ExponentialBackoff waits unit * 2^attempt.
func ExponentialBackoff(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(2, float64(attempt))) * unit
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func (c *Caller) attempts() int {
	if c == nil || c.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return c.MaxAttempts
}

func (c *Caller) pause(attempt int) time.Duration {
	if c == nil || c.Backoff == nil {
		return ExponentialBackoff(time.Second)(attempt)
	}
	return c.Backoff(attempt)
}

func (c *Caller) logger() *slog.Logger {
	if c == nil || c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// attemptBackOff adapts the Caller's per-attempt pause to backoff.BackOff.
type attemptBackOff struct {
	caller  *Caller
	attempt int
}

func (b *attemptBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.caller.pause(b.attempt)
}

func (b *attemptBackOff) Reset() { b.attempt = 0 }

// Do runs fn until it succeeds, fails permanently, the context ends or
// the attempts are used up. The last error is returned wrapped.
func Do[T any](ctx context.Context, c *Caller, call Call, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := c.attempts()
	logger := c.logger()

	attempt := 0
	stopped := false
	operation := func() (T, error) {
		attempt++
		if c != nil && c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				stopped = true
				return zero, backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			stopped = true
			return zero, backoff.Permanent(ctxErr)
		}

		logger.WarnContext(ctx, "Network call failed",
			"op", call.Op,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"target", call.Target,
			"error", err,
		)
		if IsPermanent(err) {
			stopped = true
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&attemptBackOff{caller: c}),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.DebugContext(ctx, "Retrying network call", "op", call.Op, "attempt", attempt, "wait", wait)
		}),
	)
	switch {
	case err == nil:
		return result, nil
	case stopped || ctx.Err() != nil:
		return zero, fmt.Errorf("%s: %w", call.Op, err)
	default:
		return zero, fmt.Errorf("%s failed after %d attempts: %w", call.Op, attempt, err)
	}
}
