package schedule

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// RetryPolicy computes jittered exponential backoff:
// delay(attempt) = base x 2^(attempt-1), capped at max. Jitter is additive
// and bounded by half the raw delay, so the sequence of delays is
// non-decreasing until it pins at the cap.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NewRetryPolicy builds a policy with sane defaults for zero fields.
func NewRetryPolicy(base, max time.Duration) RetryPolicy {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if max <= 0 {
		max = 10 * time.Second
	}
	if max < base {
		max = base
	}
	return RetryPolicy{BaseDelay: base, MaxDelay: max}
}

// ShouldRetry decides whether another attempt is warranted after attempts
// executions, with maxRetries allowed beyond the first.
func (p RetryPolicy) ShouldRetry(err error, attempts, maxRetries int) bool {
	if err == nil {
		return false
	}
	if attempts > maxRetries {
		return false
	}
	if IsNonRetryable(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrRunCancelled) {
		return false
	}
	return true
}

// Backoff returns the wait duration before attempt+1. Attempt numbering
// starts at 1 for the first failed execution.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	raw := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if raw >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	delay := time.Duration(raw) + randomJitter(time.Duration(raw)/2)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
