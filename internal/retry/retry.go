// Package retry provides exponential backoff with jitter and a bounded
// retry wrapper for operations against flaky collaborators (LLM providers,
// database connections, object storage).
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Policy describes how retry delays grow across attempts.
type Policy struct {
	// InitialDelay is the delay before the first retry (attempt 0).
	InitialDelay time.Duration

	// Multiplier is the exponential growth base applied per attempt.
	Multiplier float64

	// MaxDelay caps the computed delay before jitter is applied.
	MaxDelay time.Duration

	// JitterFactor perturbs the delay by a uniform ±factor to avoid
	// synchronized retry storms. Zero disables jitter.
	JitterFactor float64

	// MaxAttempts bounds the total number of calls to the operation.
	MaxAttempts int
}

// DefaultPolicy returns a Policy with reasonable defaults for network calls.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: 2 * time.Second,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
		JitterFactor: 0.25,
		MaxAttempts:  3,
	}
}

// Delay computes the backoff delay for the given zero-based attempt:
// clamp(initial * multiplier^attempt, maxDelay), perturbed by
// ±JitterFactor uniform noise, floored at zero.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	d := float64(p.InitialDelay) * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	if p.JitterFactor > 0 {
		// Uniform in [1-jitter, 1+jitter].
		d *= 1 + p.JitterFactor*(2*rand.Float64()-1)
	}

	if d < 0 {
		d = 0
	}

	return time.Duration(d)
}

// ExhaustedError is returned when an operation keeps failing with
// retryable errors until the attempt budget runs out. It carries the
// attempt count, total elapsed time and the last underlying error.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts in %s: %v",
		e.Attempts, e.Elapsed, e.Err)
}

// Unwrap returns the last underlying error to support errors.Is/errors.As.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Option configures a Do call.
type Option func(*options)

type options struct {
	retryable func(error) bool
	reconnect func(ctx context.Context) error
}

// WithRetryableCheck restricts retries to errors the given predicate
// accepts; any other error is returned immediately.
func WithRetryableCheck(fn func(error) bool) Option {
	return func(o *options) {
		o.retryable = fn
	}
}

// WithReconnect registers a hook invoked between attempts, typically to
// close and reopen an underlying connection before the next try.
func WithReconnect(fn func(ctx context.Context) error) Option {
	return func(o *options) {
		o.reconnect = fn
	}
}

// Do calls op, and on retryable errors sleeps Delay(attempt) and retries
// up to MaxAttempts total calls. On exhaustion it returns an
// *ExhaustedError wrapping the last failure. Context cancellation during
// a backoff sleep aborts immediately with the context error.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error, opts ...Option) error {
	o := options{
		retryable: func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(&o)
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	start := time.Now()
	var lastErr error
	attempts := 0

	for attempt := 0; attempt < maxAttempts; attempt++ {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !o.retryable(err) {
			return err
		}

		if attempt == maxAttempts-1 {
			break
		}

		if o.reconnect != nil {
			if rerr := o.reconnect(ctx); rerr != nil {
				lastErr = fmt.Errorf("reconnect failed: %w", rerr)
				break
			}
		}

		select {
		case <-time.After(policy.Delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return &ExhaustedError{
		Attempts: attempts,
		Elapsed:  time.Since(start),
		Err:      lastErr,
	}
}
