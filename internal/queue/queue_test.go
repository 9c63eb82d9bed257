package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestFIFOOrder checks items leave in insertion order.
func TestFIFOOrder(t *testing.T) {
	t.Parallel()

	q := NewFIFO(8)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Push(ctx, Item{ID: fmt.Sprintf("t%d", i)}))
	}
	require.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		item, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("t%d", i), item.ID)
	}
}

// TestFIFOPopBlocksUntilPush checks Pop suspends on an empty queue.
func TestFIFOPopBlocksUntilPush(t *testing.T) {
	t.Parallel()

	q := NewFIFO(1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Push(context.Background(), Item{ID: "late"})
	}()
	item, err := q.Pop(context.Background())
	require.NoError(t, err)
	require.Equal(t, "late", item.ID)
}

// TestFIFOClosedDrainsThenErrClosed checks buffered items survive Close and
// subsequent Pops see ErrClosed.
func TestFIFOClosedDrainsThenErrClosed(t *testing.T) {
	t.Parallel()

	q := NewFIFO(2)
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, Item{ID: "a"}))
	q.Close()
	q.Close() // idempotent

	item, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", item.ID)

	_, err = q.Pop(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

// TestFIFOPopCancelled checks context cancellation unblocks Pop.
func TestFIFOPopCancelled(t *testing.T) {
	t.Parallel()

	q := NewFIFO(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestPriorityOrder checks higher priority pops first with stable ties.
func TestPriorityOrder(t *testing.T) {
	t.Parallel()

	q := NewPriority()
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, Item{ID: "low", Priority: 1}))
	require.NoError(t, q.Push(ctx, Item{ID: "high", Priority: 9}))
	require.NoError(t, q.Push(ctx, Item{ID: "mid-a", Priority: 5}))
	require.NoError(t, q.Push(ctx, Item{ID: "mid-b", Priority: 5}))

	var got []string
	for i := 0; i < 4; i++ {
		item, err := q.Pop(ctx)
		require.NoError(t, err)
		got = append(got, item.ID)
	}
	require.Equal(t, []string{"high", "mid-a", "mid-b", "low"}, got)
}

// TestPriorityPopBlocksUntilPush checks a waiter wakes on a late push.
func TestPriorityPopBlocksUntilPush(t *testing.T) {
	t.Parallel()

	q := NewPriority()
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Push(context.Background(), Item{ID: "late"})
	}()
	item, err := q.Pop(context.Background())
	require.NoError(t, err)
	require.Equal(t, "late", item.ID)
}

// TestPriorityConcurrentConsumers checks every item is delivered exactly once
// across competing waiters.
func TestPriorityConcurrentConsumers(t *testing.T) {
	t.Parallel()

	q := NewPriority()
	ctx := context.Background()
	const n = 20
	results := make(chan string, n)
	for i := 0; i < 4; i++ {
		go func() {
			for {
				item, err := q.Pop(ctx)
				if err != nil {
					return
				}
				results <- item.ID
			}
		}()
	}
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, q.Push(ctx, Item{ID: fmt.Sprintf("t%d", i), Priority: i % 3}))
	}
	for i := 0; i < n; i++ {
		select {
		case id := <-results:
			require.False(t, seen[id], "duplicate delivery of %s", id)
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d deliveries", i)
		}
	}
	q.Close()
}

// TestPriorityClose checks waiters and pushers observe ErrClosed.
func TestPriorityClose(t *testing.T) {
	t.Parallel()

	q := NewPriority()
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()

	require.ErrorIs(t, <-errCh, ErrClosed)
	require.ErrorIs(t, q.Push(context.Background(), Item{ID: "x"}), ErrClosed)
}

// TestDelayedHoldsUntilRelease checks an item stays invisible until its
// release time.
func TestDelayedHoldsUntilRelease(t *testing.T) {
	t.Parallel()

	q := NewDelayed()
	ctx := context.Background()
	release := time.Now().Add(40 * time.Millisecond)
	require.NoError(t, q.Push(ctx, Item{ID: "later", ReleaseAt: release}))

	start := time.Now()
	item, err := q.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "later", item.ID)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

// TestDelayedOrdersByReleaseTime checks the earliest release pops first
// regardless of push order.
func TestDelayedOrdersByReleaseTime(t *testing.T) {
	t.Parallel()

	q := NewDelayed()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, q.Push(ctx, Item{ID: "second", ReleaseAt: now.Add(30 * time.Millisecond)}))
	require.NoError(t, q.Push(ctx, Item{ID: "first", ReleaseAt: now.Add(10 * time.Millisecond)}))
	require.NoError(t, q.Push(ctx, Item{ID: "immediate"}))

	var got []string
	for i := 0; i < 3; i++ {
		item, err := q.Pop(ctx)
		require.NoError(t, err)
		got = append(got, item.ID)
	}
	require.Equal(t, []string{"immediate", "first", "second"}, got)
}

// TestDelayedPopCancelledWhileWaiting checks ctx cancellation interrupts the
// release wait.
func TestDelayedPopCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	q := NewDelayed()
	require.NoError(t, q.Push(context.Background(), Item{
		ID:        "far",
		ReleaseAt: time.Now().Add(time.Minute),
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestNewFactory checks discipline selection and the unknown-discipline error.
func TestNewFactory(t *testing.T) {
	t.Parallel()

	q, err := New(DisciplineFIFO, 4)
	require.NoError(t, err)
	require.IsType(t, &FIFO{}, q)

	q, err = New("", 4)
	require.NoError(t, err)
	require.IsType(t, &FIFO{}, q)

	q, err = New(DisciplinePriority, 0)
	require.NoError(t, err)
	require.IsType(t, &Priority{}, q)

	q, err = New(DisciplineDelayed, 0)
	require.NoError(t, err)
	require.IsType(t, &Delayed{}, q)

	_, err = New("lifo", 0)
	require.Error(t, err)
}
