package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts
	MaxRetries int
	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration
	// Multiplier is the backoff multiplier for exponential backoff
	Multiplier float64
	// RetryableErrors is a function to determine if an error is retryable
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		RetryableErrors: func(err error) bool {
			return IsRetryable(err)
		},
	}
}

// RetryWithBackoff executes a function with exponential backoff retry logic
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		// Don't sleep after the last attempt
		if attempt == config.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, config.InitialBackoff, config.MaxBackoff, config.Multiplier)

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, lastErr)
}

// RetryWithBackoffAndJitter executes a function with exponential backoff and jitter
func RetryWithBackoffAndJitter(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt == config.MaxRetries {
			break
		}

		backoff := calculateBackoff(attempt, config.InitialBackoff, config.MaxBackoff, config.Multiplier)

		// Add jitter (up to 25% in either direction)
		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		backoff = backoff - backoff/4 + jitter

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, lastErr)
}

// calculateBackoff calculates the backoff duration for a given attempt
func calculateBackoff(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	backoff := float64(initial) * math.Pow(multiplier, float64(attempt))

	if backoff > float64(max) {
		backoff = float64(max)
	}

	return time.Duration(backoff)
}
