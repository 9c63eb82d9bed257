package limits

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wrenlabs/quill/internal/metrics"
)

// TokenBucket admits callers at a fixed refill rate with a fixed burst
// capacity. Acquire suspends until a token is available, the configured
// timeout elapses, or the context ends.
type TokenBucket struct {
	lim     *rate.Limiter
	timeout time.Duration
}

// NewTokenBucket builds a bucket refilling at perSec tokens per second with
// the given capacity. A non-positive perSec disables limiting. timeout of
// zero waits indefinitely (bounded only by the caller's context).
func NewTokenBucket(perSec float64, capacity int, timeout time.Duration) *TokenBucket {
	r := rate.Limit(perSec)
	if perSec <= 0 {
		r = rate.Inf
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &TokenBucket{
		lim:     rate.NewLimiter(r, capacity),
		timeout: timeout,
	}
}

// Acquire blocks until a token is granted. It returns ErrBudgetExceeded when
// the timeout elapses first and ErrCancelled when ctx ends first.
func (b *TokenBucket) Acquire(ctx context.Context) error {
	waitCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	start := time.Now()
	err := b.lim.Wait(waitCtx)
	if err != nil && waitCtx.Err() == nil {
		// Wait fails fast when the next token lies beyond the deadline.
		// Callers are promised the full timeout (or cancellation), so hold
		// them here instead of reporting exhaustion instantly.
		<-waitCtx.Done()
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(waited)
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
	return fmt.Errorf("%w: no token within %s", ErrBudgetExceeded, b.timeout)
}

// Allow reports whether a token is immediately available, consuming it.
func (b *TokenBucket) Allow() bool {
	return b.lim.Allow()
}

// SetRate adjusts the refill rate in place. Used by the adjust-rate recovery
// action to slow down after anti-automation pushback.
func (b *TokenBucket) SetRate(perSec float64) {
	if perSec <= 0 {
		b.lim.SetLimit(rate.Inf)
		return
	}
	b.lim.SetLimit(rate.Limit(perSec))
}

// Rate reports the current refill rate in tokens per second.
func (b *TokenBucket) Rate() float64 {
	return float64(b.lim.Limit())
}
