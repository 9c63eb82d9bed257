package queue

import (
	"context"
	"fmt"
	"sync"
)

// FIFO is a bounded channel-backed queue preserving insertion order.
type FIFO struct {
	ch      chan Item
	closeMu sync.Mutex
	closed  bool
}

// NewFIFO constructs a FIFO queue with the provided capacity.
func NewFIFO(capacity int) *FIFO {
	if capacity <= 0 {
		capacity = 1024
	}
	return &FIFO{ch: make(chan Item, capacity)}
}

// Push appends an item or returns when the context ends.
func (q *FIFO) Push(ctx context.Context, item Item) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("push canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Pop removes the oldest item, respecting context cancellation.
func (q *FIFO) Pop(ctx context.Context) (Item, error) {
	select {
	case <-ctx.Done():
		return Item{}, fmt.Errorf("pop canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return Item{}, ErrClosed
		}
		return item, nil
	}
}

// Len reports the number of buffered items.
func (q *FIFO) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown.
func (q *FIFO) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
