package limits

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Concurrency bounds the number of in-flight tasks with a counting
// semaphore. Release is unconditional on completion, success or failure,
// so slots cannot leak.
type Concurrency struct {
	sem *semaphore.Weighted
	n   int
}

// NewConcurrency builds a gate admitting at most n concurrent holders.
func NewConcurrency(n int) *Concurrency {
	if n <= 0 {
		n = 1
	}
	return &Concurrency{sem: semaphore.NewWeighted(int64(n)), n: n}
}

// Acquire blocks until a slot frees or ctx ends.
func (c *Concurrency) Acquire(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return nil
}

// TryAcquire grabs a slot without blocking.
func (c *Concurrency) TryAcquire() bool {
	return c.sem.TryAcquire(1)
}

// Release returns a slot to the pool.
func (c *Concurrency) Release() {
	c.sem.Release(1)
}

// Limit reports the configured slot count.
func (c *Concurrency) Limit() int {
	return c.n
}
