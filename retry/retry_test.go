package retry_test

import (
	"testing"
	"time"

	"goa.design/bridge/retry"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	cfg := retry.Config{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     1 * time.Second,
		Multiplier:     2.0,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		d, err := cfg.Backoff(attempt)
		if err != nil {
			t.Fatalf("Backoff(%d) returned error before exhaustion: %v", attempt, err)
		}
		if d < prev {
			t.Fatalf("Backoff(%d) = %v, want >= previous %v", attempt, d, prev)
		}
		if d > cfg.MaxBackoff {
			t.Fatalf("Backoff(%d) = %v exceeds MaxBackoff %v", attempt, d, cfg.MaxBackoff)
		}
		prev = d
	}
}

func TestBackoffExhausted(t *testing.T) {
	cfg := retry.Config{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}

	if _, err := cfg.Backoff(3); err == nil {
		t.Fatalf("expected ExhaustedError at attempt 3")
	} else if retry.IsRetryable(err) {
		t.Fatalf("ExhaustedError must not be retryable")
	}
}

func TestDefaultConfigIsUsable(t *testing.T) {
	cfg := retry.DefaultConfig()
	if _, err := cfg.Backoff(1); err != nil {
		t.Fatalf("Backoff(1) on default config returned error: %v", err)
	}
}
