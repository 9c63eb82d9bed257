package limits

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SlidingWindow admits at most max calls inside a rolling horizon. Expired
// timestamps are pruned on every check, so the structure stays bounded no
// matter how long the limiter lives.
type SlidingWindow struct {
	mu      sync.Mutex
	horizon time.Duration
	max     int
	stamps  []time.Time
	timeout time.Duration
	now     func() time.Time
}

// NewSlidingWindow builds a limiter allowing max admissions per horizon.
func NewSlidingWindow(max int, horizon time.Duration, timeout time.Duration) *SlidingWindow {
	if max <= 0 {
		max = 1
	}
	if horizon <= 0 {
		horizon = time.Second
	}
	return &SlidingWindow{
		horizon: horizon,
		max:     max,
		timeout: timeout,
		now:     time.Now,
	}
}

// Allow reports whether a call is admissible right now, recording it if so.
func (w *SlidingWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.prune(now)
	if len(w.stamps) >= w.max {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Acquire suspends until the window has room, the timeout elapses
// (ErrBudgetExceeded), or ctx ends (ErrCancelled).
func (w *SlidingWindow) Acquire(ctx context.Context) error {
	var deadline <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		wait, ok := w.tryAdmit()
		if ok {
			return nil
		}
		retry := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			retry.Stop()
			return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		case <-deadline:
			retry.Stop()
			return fmt.Errorf("%w: window full for %s", ErrBudgetExceeded, w.timeout)
		case <-retry.C:
		}
	}
}

// InWindow reports how many admissions currently count against the horizon.
func (w *SlidingWindow) InWindow() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.stamps)
}

// tryAdmit admits immediately when possible; otherwise it returns how long
// until the oldest admission leaves the horizon.
func (w *SlidingWindow) tryAdmit() (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.prune(now)
	if len(w.stamps) < w.max {
		w.stamps = append(w.stamps, now)
		return 0, true
	}
	wait := w.stamps[0].Add(w.horizon).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

func (w *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.horizon)
	idx := 0
	for idx < len(w.stamps) && !w.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[idx:]...)
	}
}
