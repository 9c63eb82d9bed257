package sinks

import (
	"context"
	"sync"

	"github.com/wrenlabs/quill/internal/progress"
)

// Snapshot is the latest known progress for one run.
type Snapshot struct {
	Completed int
	Total     int
	Stage     progress.Stage
}

// Store keeps the latest progress snapshot per run for the status API.
type Store struct {
	mu   sync.RWMutex
	runs map[string]Snapshot
}

// NewStore constructs an empty snapshot store.
func NewStore() *Store {
	return &Store{runs: make(map[string]Snapshot)}
}

// Consume folds events into per-run snapshots.
func (s *Store) Consume(_ context.Context, events []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		snap := s.runs[e.RunID]
		snap.Stage = e.Stage
		if e.Total > 0 {
			snap.Total = e.Total
		}
		if e.Completed >= snap.Completed {
			snap.Completed = e.Completed
		}
		s.runs[e.RunID] = snap
	}
	return nil
}

// Get returns the snapshot for a run, if any.
func (s *Store) Get(runID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.runs[runID]
	return snap, ok
}

// Forget drops a run's snapshot once it is no longer interesting.
func (s *Store) Forget(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, runID)
}
