// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wrenlabs/quill/internal/agent"
)

// RunStore keeps runs and task records in process memory.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]agent.Run
	tasks map[string][]agent.TaskRecord
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[string]agent.Run),
		tasks: make(map[string][]agent.TaskRecord),
	}
}

// CreateRun stores a new run in queued status.
func (s *RunStore) CreateRun(_ context.Context, run agent.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// UpdateRunStatus updates the status and counters for a run.
func (s *RunStore) UpdateRunStatus(
	_ context.Context,
	runID string,
	status agent.RunStatus,
	errText string,
	counters agent.RunCounters,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return errors.New("run not found")
	}
	run.Status = status
	run.ErrorText = errText
	run.Counters = counters
	now := time.Now().UTC()
	if status == agent.RunStatusRunning && run.Started == nil {
		run.Started = pointerTime(now)
	}
	if isTerminal(status) && run.Finished == nil {
		run.Finished = pointerTime(now)
	}
	s.runs[runID] = run
	return nil
}

// RecordTask appends a task row for a run.
func (s *RunStore) RecordTask(_ context.Context, rec agent.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[rec.RunID] = append(s.tasks[rec.RunID], rec)
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (agent.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return agent.Run{}, errors.New("run not found")
	}
	return run, nil
}

// ListTasks returns the task records for a run in completion order.
func (s *RunStore) ListTasks(_ context.Context, runID string) ([]agent.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]agent.TaskRecord(nil), s.tasks[runID]...), nil
}

func isTerminal(status agent.RunStatus) bool {
	switch status {
	case agent.RunStatusSucceeded, agent.RunStatusFailed, agent.RunStatusCanceled:
		return true
	default:
		return false
	}
}

func pointerTime(t time.Time) *time.Time {
	return &t
}
