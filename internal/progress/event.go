// Package progress defines the event stream emitted while batch runs
// execute, and the hub fanning it out to registered sinks.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageTaskDone Stage = "TASK_DONE"
	StageRunDone  Stage = "RUN_DONE"
	StageRunError Stage = "RUN_ERROR"
)

// Event captures a single progress milestone for a run.
type Event struct {
	// RunID identifies the batch run.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Completed and Total carry the run's task counters at emission time.
	Completed int
	Total     int
	// TaskID optionally scopes TASK_DONE events.
	TaskID string
	// TaskStatus carries the terminal status for TASK_DONE events.
	TaskStatus string
	// Dur captures run duration for terminal events.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageTaskDone:
		if e.Total <= 0 {
			return errors.New("task done requires total")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}
