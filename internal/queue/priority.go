package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
)

// Priority dequeues the highest-priority item first; equal priorities leave
// in submission order (stable tie-break on a monotonic sequence).
type Priority struct {
	mu     sync.Mutex
	h      priorityHeap
	seq    uint64
	notify chan struct{}
	done   chan struct{}
	closed bool
}

// NewPriority constructs an empty priority queue.
func NewPriority() *Priority {
	return &Priority{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push inserts an item.
func (q *Priority) Push(_ context.Context, item Item) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.seq++
	heap.Push(&q.h, &priorityEntry{item: item, seq: q.seq})
	q.mu.Unlock()
	q.signal()
	return nil
}

// Pop removes the best item, blocking until one arrives or ctx ends.
func (q *Priority) Pop(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if q.h.Len() > 0 {
			entry := heap.Pop(&q.h).(*priorityEntry)
			remaining := q.h.Len()
			q.mu.Unlock()
			if remaining > 0 {
				// Re-signal for other waiters; pushes collapse into one token.
				q.signal()
			}
			return entry.item, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Item{}, ErrClosed
		}
		select {
		case <-ctx.Done():
			return Item{}, fmt.Errorf("pop canceled: %w", ctx.Err())
		case <-q.done:
			return Item{}, ErrClosed
		case <-q.notify:
		}
	}
}

// Len reports the number of queued items.
func (q *Priority) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// Close wakes all waiters; queued items are discarded.
func (q *Priority) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Priority) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

type priorityEntry struct {
	item Item
	seq  uint64
}

type priorityHeap []*priorityEntry

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].item.Priority != h[j].item.Priority {
		return h[i].item.Priority > h[j].item.Priority
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) { *h = append(*h, x.(*priorityEntry)) }

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
