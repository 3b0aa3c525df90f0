package main

import (
	"testing"

	apperrors "github.com/helloworldxdwastaken/noxa-core/internal/errors"
)

func TestRetryPolicyUsesConfiguredCount(t *testing.T) {
	tests := []struct {
		maxRetries int
	}{
		{0},
		{1},
		{5},
	}

	for _, tt := range tests {
		got := retryPolicy(tt.maxRetries)
		if got.MaxRetries != tt.maxRetries {
			t.Errorf("retryPolicy(%d).MaxRetries = %d", tt.maxRetries, got.MaxRetries)
		}
		// Backoff parameters stay at the defaults.
		def := apperrors.DefaultRetryConfig()
		if got.InitialBackoff != def.InitialBackoff || got.MaxBackoff != def.MaxBackoff || got.Multiplier != def.Multiplier {
			t.Errorf("retryPolicy(%d) changed backoff parameters: %+v", tt.maxRetries, got)
		}
	}
}
