// Package retry provides retry policies for transient failures when talking
// to the shared store.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines the retry policy interface.
type Policy interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
	NextDelay(attempt int) time.Duration
}

// Config contains retry configuration.
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	Multiplier      float64
	MaxAttempts     int
}

// ExponentialBackoff implements an exponential backoff retry policy with
// jitter.
type ExponentialBackoff struct {
	config Config
}

// NewExponentialBackoff creates a new exponential backoff retry policy.
// Zero-valued fields fall back to defaults suitable for cache store calls.
func NewExponentialBackoff(config Config) Policy {
	if config.InitialInterval <= 0 {
		config.InitialInterval = 50 * time.Millisecond
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = 2 * time.Second
	}
	if config.MaxElapsedTime <= 0 {
		config.MaxElapsedTime = 10 * time.Second
	}
	if config.Multiplier <= 1.0 {
		config.Multiplier = 2.0
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	return &ExponentialBackoff{config: config}
}

// Execute runs fn, retrying on error until the attempt or elapsed-time budget
// is spent, or the context is cancelled.
func (e *ExponentialBackoff) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	attempt := 0

	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		attempt++
		if attempt >= e.config.MaxAttempts {
			return err
		}
		if time.Since(start) >= e.config.MaxElapsedTime {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-time.After(e.NextDelay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// NextDelay calculates the delay before the given attempt, with ±20% jitter.
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.config.InitialInterval) * math.Pow(e.config.Multiplier, float64(attempt-1))
	if delay > float64(e.config.MaxInterval) {
		delay = float64(e.config.MaxInterval)
	}
	delay += delay * 0.2 * (rand.Float64()*2 - 1)
	return time.Duration(delay)
}

// None is a Policy that runs the function exactly once.
type None struct{}

// NewNone creates a policy with no retries.
func NewNone() Policy { return None{} }

// Execute runs fn once.
func (None) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// NextDelay always returns zero.
func (None) NextDelay(int) time.Duration { return 0 }
