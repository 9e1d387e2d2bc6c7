package retry

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyDelay(t *testing.T) {
	t.Run("GrowsExponentiallyWithoutJitter", func(t *testing.T) {
		policy := Policy{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2,
			MaxDelay:     10 * time.Second,
		}

		assert.Equal(t, 100*time.Millisecond, policy.Delay(0))
		assert.Equal(t, 200*time.Millisecond, policy.Delay(1))
		assert.Equal(t, 400*time.Millisecond, policy.Delay(2))
		assert.Equal(t, 800*time.Millisecond, policy.Delay(3))
	})

	t.Run("CapsAtMaxDelay", func(t *testing.T) {
		policy := Policy{
			InitialDelay: time.Second,
			Multiplier:   2,
			MaxDelay:     5 * time.Second,
		}

		assert.Equal(t, 5*time.Second, policy.Delay(10))
	})

	t.Run("JitterStaysWithinBounds", func(t *testing.T) {
		policy := Policy{
			InitialDelay: time.Second,
			Multiplier:   2,
			MaxDelay:     30 * time.Second,
			JitterFactor: 0.25,
		}

		for attempt := 0; attempt < 6; attempt++ {
			base := math.Min(
				float64(policy.InitialDelay)*math.Pow(2, float64(attempt)),
				float64(policy.MaxDelay),
			)
			d := float64(policy.Delay(attempt))
			assert.GreaterOrEqual(t, d, 0.75*base, "attempt %d below jitter floor", attempt)
			assert.LessOrEqual(t, d, 1.25*base, "attempt %d above jitter ceiling", attempt)
		}
	})

	t.Run("NegativeAttemptTreatedAsZero", func(t *testing.T) {
		policy := Policy{InitialDelay: time.Second, Multiplier: 2}
		assert.Equal(t, time.Second, policy.Delay(-3))
	})

	t.Run("NeverNegative", func(t *testing.T) {
		policy := Policy{InitialDelay: 0, Multiplier: 2, JitterFactor: 1}
		for attempt := 0; attempt < 4; attempt++ {
			assert.GreaterOrEqual(t, policy.Delay(attempt), time.Duration(0))
		}
	})
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	fastPolicy := Policy{
		InitialDelay: time.Millisecond,
		Multiplier:   1,
		MaxAttempts:  3,
	}

	t.Run("SucceedsFirstAttempt", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastPolicy, func(ctx context.Context) error {
			calls++
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("RetriesUntilSuccess", func(t *testing.T) {
		calls := 0
		err := Do(ctx, fastPolicy, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("ExhaustionReturnsExhaustedError", func(t *testing.T) {
		cause := errors.New("still broken")
		calls := 0
		err := Do(ctx, fastPolicy, func(ctx context.Context) error {
			calls++
			return cause
		})

		require.Error(t, err)
		assert.Equal(t, 3, calls)

		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 3, exhausted.Attempts)
		assert.ErrorIs(t, err, cause)
		assert.Greater(t, exhausted.Elapsed, time.Duration(0))
	})

	t.Run("NonRetryableErrorReturnsImmediately", func(t *testing.T) {
		fatal := errors.New("fatal")
		calls := 0
		err := Do(ctx, fastPolicy, func(ctx context.Context) error {
			calls++
			return fatal
		}, WithRetryableCheck(func(err error) bool { return false }))

		require.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls)

		var exhausted *ExhaustedError
		assert.False(t, errors.As(err, &exhausted))
	})

	t.Run("ReconnectHookRunsBetweenAttempts", func(t *testing.T) {
		reconnects := 0
		err := Do(ctx, fastPolicy, func(ctx context.Context) error {
			return errors.New("transient")
		}, WithReconnect(func(ctx context.Context) error {
			reconnects++
			return nil
		}))

		require.Error(t, err)
		assert.Equal(t, 2, reconnects)
	})

	t.Run("ReconnectFailureStopsRetrying", func(t *testing.T) {
		reconnectErr := errors.New("reconnect refused")
		calls := 0
		err := Do(ctx, fastPolicy, func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		}, WithReconnect(func(ctx context.Context) error {
			return reconnectErr
		}))

		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, reconnectErr)
	})

	t.Run("ContextCancellationAbortsBackoff", func(t *testing.T) {
		slowPolicy := Policy{
			InitialDelay: time.Minute,
			Multiplier:   1,
			MaxAttempts:  3,
		}

		cancelCtx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		err := Do(cancelCtx, slowPolicy, func(ctx context.Context) error {
			return errors.New("transient")
		})

		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("ZeroMaxAttemptsMeansOneCall", func(t *testing.T) {
		calls := 0
		err := Do(ctx, Policy{}, func(ctx context.Context) error {
			calls++
			return errors.New("boom")
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	assert.Equal(t, 2*time.Second, policy.InitialDelay)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.InDelta(t, 0.25, policy.JitterFactor, 0.0001)
}
