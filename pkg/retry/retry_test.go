package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds first try", func(t *testing.T) {
		policy := NewExponentialBackoff(Config{})
		calls := 0
		err := policy.Execute(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries until success", func(t *testing.T) {
		policy := NewExponentialBackoff(Config{
			InitialInterval: time.Millisecond,
			MaxAttempts:     3,
		})
		calls := 0
		err := policy.Execute(ctx, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		policy := NewExponentialBackoff(Config{
			InitialInterval: time.Millisecond,
			MaxAttempts:     2,
		})
		calls := 0
		wantErr := errors.New("persistent")
		err := policy.Execute(ctx, func(ctx context.Context) error {
			calls++
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		policy := NewExponentialBackoff(Config{
			InitialInterval: 50 * time.Millisecond,
			MaxAttempts:     10,
		})
		cancelCtx, cancel := context.WithCancel(ctx)
		calls := 0
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		err := policy.Execute(cancelCtx, func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.LessOrEqual(t, calls, 2)
	})

	t.Run("delay grows with attempts", func(t *testing.T) {
		policy := NewExponentialBackoff(Config{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2.0,
		})
		d1 := policy.NextDelay(1)
		d3 := policy.NextDelay(3)
		// Jitter is at most 20 percent, so the ordering holds.
		assert.Less(t, d1, d3)
	})

	t.Run("delay capped at max interval", func(t *testing.T) {
		policy := NewExponentialBackoff(Config{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
			Multiplier:      2.0,
		})
		d := policy.NextDelay(10)
		assert.LessOrEqual(t, d, 24*time.Millisecond) // cap plus jitter
	})
}

func TestNone(t *testing.T) {
	ctx := context.Background()
	policy := NewNone()

	calls := 0
	wantErr := errors.New("boom")
	err := policy.Execute(ctx, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
	assert.Zero(t, policy.NextDelay(5))
}
