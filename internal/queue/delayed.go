package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"
)

// Delayed keeps items invisible until their release time elapses; among
// released items the earliest release pops first, submission order breaking
// ties.
type Delayed struct {
	mu     sync.Mutex
	h      delayedHeap
	seq    uint64
	notify chan struct{}
	done   chan struct{}
	closed bool
	now    func() time.Time
}

// NewDelayed constructs an empty delayed queue.
func NewDelayed() *Delayed {
	return &Delayed{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Push inserts an item; a zero ReleaseAt releases immediately.
func (q *Delayed) Push(_ context.Context, item Item) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.seq++
	heap.Push(&q.h, &delayedEntry{item: item, seq: q.seq})
	q.mu.Unlock()
	q.signal()
	return nil
}

// Pop blocks until the earliest release time passes, then returns that item.
func (q *Delayed) Pop(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		var wait time.Duration
		if q.h.Len() > 0 {
			head := q.h[0]
			now := q.now()
			if !head.item.ReleaseAt.After(now) {
				entry := heap.Pop(&q.h).(*delayedEntry)
				remaining := q.h.Len()
				q.mu.Unlock()
				if remaining > 0 {
					q.signal()
				}
				return entry.item, nil
			}
			wait = head.item.ReleaseAt.Sub(now)
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Item{}, ErrClosed
		}

		if wait <= 0 {
			// Empty queue: block until a push or shutdown.
			select {
			case <-ctx.Done():
				return Item{}, fmt.Errorf("pop canceled: %w", ctx.Err())
			case <-q.done:
				return Item{}, ErrClosed
			case <-q.notify:
			}
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Item{}, fmt.Errorf("pop canceled: %w", ctx.Err())
		case <-q.done:
			timer.Stop()
			return Item{}, ErrClosed
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Len reports the number of queued items, released or not.
func (q *Delayed) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// Close wakes all waiters; queued items are discarded.
func (q *Delayed) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Delayed) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type delayedEntry struct {
	item Item
	seq  uint64
}

type delayedHeap []*delayedEntry

func (h delayedHeap) Len() int { return len(h) }

func (h delayedHeap) Less(i, j int) bool {
	if !h[i].item.ReleaseAt.Equal(h[j].item.ReleaseAt) {
		return h[i].item.ReleaseAt.Before(h[j].item.ReleaseAt)
	}
	return h[i].seq < h[j].seq
}

func (h delayedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *delayedHeap) Push(x any) { *h = append(*h, x.(*delayedEntry)) }

func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
