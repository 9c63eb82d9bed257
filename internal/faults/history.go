package faults

import (
	"context"
	"sync"
)

// MemoryHistory is the in-process HistoryStore for single-node deployments
// and tests.
type MemoryHistory struct {
	mu    sync.RWMutex
	stats map[string]*actionStats
}

type actionStats struct {
	attempts  int
	successes int
}

// NewMemoryHistory constructs an empty history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{stats: make(map[string]*actionStats)}
}

// RecordOutcome accumulates one attempt.
func (h *MemoryHistory) RecordOutcome(_ context.Context, category Category, action Action, success bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := string(category) + "/" + string(action)
	st, ok := h.stats[key]
	if !ok {
		st = &actionStats{}
		h.stats[key] = st
	}
	st.attempts++
	if success {
		st.successes++
	}
	return nil
}

// SuccessRate reports the observed rate and sample count for an action.
func (h *MemoryHistory) SuccessRate(_ context.Context, category Category, action Action) (float64, int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.stats[string(category)+"/"+string(action)]
	if !ok || st.attempts == 0 {
		return 0, 0, nil
	}
	return float64(st.successes) / float64(st.attempts), st.attempts, nil
}
