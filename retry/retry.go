// Package retry provides the bounded-attempt exponential backoff policy
// shared by the plugin's reconnection logic, adapted from the teacher's
// runtime/a2a/retry package for the plugin's reconnect_* configuration
// fields.
package retry

import (
	"math/rand"
	"time"
)

// Config describes a bounded exponential backoff policy. Zero value is not
// usable directly; construct with DefaultConfig or set every field.
type Config struct {
	// MaxAttempts bounds the number of reconnection tries. Zero means
	// unlimited (never use zero for a policy meant to terminate).
	MaxAttempts int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay growth.
	MaxBackoff time.Duration
	// Multiplier scales the backoff after each failed attempt.
	Multiplier float64
	// Jitter adds up to this fraction of the computed backoff as random
	// noise, to avoid a thundering herd of reconnecting plugins.
	Jitter float64
}

// DefaultConfig matches the reconnection defaults named in spec.md's
// plugin configuration surface.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    10,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// ExhaustedError is returned by Backoff once the configured number of
// attempts has been exceeded.
type ExhaustedError struct {
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return "retry attempts exhausted"
}

// Backoff computes the delay before attempt number `attempt` (1-indexed).
// It returns an *ExhaustedError once attempt exceeds c.MaxAttempts (when
// MaxAttempts is positive).
func (c Config) Backoff(attempt int) (time.Duration, error) {
	if c.MaxAttempts > 0 && attempt > c.MaxAttempts {
		return 0, &ExhaustedError{Attempts: attempt - 1}
	}

	backoff := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= c.Multiplier
		if max := float64(c.MaxBackoff); backoff > max {
			backoff = max
			break
		}
	}

	if c.Jitter > 0 {
		backoff += backoff * c.Jitter * rand.Float64()
	}

	d := time.Duration(backoff)
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d, nil
}

// IsRetryable reports whether err represents attempts being exhausted
// (false) as opposed to a transient failure that should still be retried
// (true is the default for any other error, including nil meaning "try").
func IsRetryable(err error) bool {
	if err == nil {
		return true
	}
	_, exhausted := err.(*ExhaustedError)
	return !exhausted
}
