package agent

import (
	"context"
	"time"
)

// RunStore persists run and task metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string, counters RunCounters) error
	RecordTask(ctx context.Context, rec TaskRecord) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListTasks(ctx context.Context, runID string) ([]TaskRecord, error)
}

// Publisher pushes run completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
