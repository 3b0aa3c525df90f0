package errors

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
		RetryableErrors: func(err error) bool {
			return IsRetryable(err)
		},
	}
}

func TestRetryWithBackoff_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return NewNetworkError("transient", nil)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(2), func() error {
		calls++
		return NewNetworkError("always failing", nil)
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 { // initial attempt plus 2 retries
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetryConfig(5), func() error {
		calls++
		return NewValidationError("bad request")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", calls)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := fastRetryConfig(10)
	cfg.InitialBackoff = time.Second

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- RetryWithBackoff(ctx, cfg, func() error {
			calls++
			return NewNetworkError("transient", nil)
		})
	}()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe context cancellation")
	}
}

func TestRetryWithBackoffAndJitter(t *testing.T) {
	calls := 0
	err := RetryWithBackoffAndJitter(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 2 {
			return NewNetworkError("transient", nil)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{10, 30 * time.Second}, // capped at max
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			got := calculateBackoff(tt.attempt, time.Second, 30*time.Second, 2.0)
			if got != tt.expected {
				t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}
