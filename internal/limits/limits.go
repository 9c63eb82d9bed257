// Package limits provides the admission-control primitives the scheduler
// suspends on: a token bucket, a sliding window, and a concurrency gate.
package limits

import (
	"context"
	"errors"
)

// Limiter is the admission contract shared by the rate disciplines. Acquire
// suspends until admitted, returning ErrBudgetExceeded on timeout or
// ErrCancelled when the context ends first.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Limiter errors, returned inline so callers branch explicitly.
var (
	// ErrBudgetExceeded indicates acquisition timed out before admission.
	ErrBudgetExceeded = errors.New("rate budget exceeded")
	// ErrCancelled indicates the caller's context ended while waiting.
	ErrCancelled = errors.New("acquisition cancelled")
)
