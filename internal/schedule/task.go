// Package schedule implements the concurrent batch scheduler: a bounded
// worker pool pulling tasks through rate and concurrency limiters with
// retry, backoff, and deterministic aggregate results.
package schedule

import (
	"context"
	"errors"
	"time"
)

// Scheduler errors surfaced on per-task results.
var (
	// ErrTaskTimeout indicates a single execution exceeded the task timeout.
	ErrTaskTimeout = errors.New("task timeout")
	// ErrRetriesExhausted wraps the last error once no retries remain.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrRunCancelled marks tasks that never reached a terminal state before
	// the run-level cancellation.
	ErrRunCancelled = errors.New("run cancelled")
	// ErrUnrecovered wraps the last error when the recovery hook reports the
	// fault cannot be remediated, ending the task early.
	ErrUnrecovered = errors.New("fault not recovered")
)

// TaskFunc is the executable unit. The context carries the per-task timeout;
// implementations are expected to honor it at their own I/O suspension
// points.
type TaskFunc func(ctx context.Context) error

// Task describes one unit of work. The scheduler owns the Task exclusively
// from submission until its result is recorded.
type Task struct {
	// ID must be unique within one run; empty IDs are assigned on submit.
	ID string
	// Fn is the executable body.
	Fn TaskFunc
	// Priority orders dequeue under the priority discipline (higher first).
	Priority int
	// Delay holds the task invisible for this long after submission.
	Delay time.Duration
	// Timeout bounds a single execution attempt; zero means no limit.
	Timeout time.Duration
	// MaxRetries bounds attempts beyond the first; zero falls back to the
	// run configuration.
	MaxRetries int
}

// TaskStatus is the per-task state machine position.
type TaskStatus string

// Task lifecycle states.
const (
	TaskPending   TaskStatus = "pending"
	TaskWaiting   TaskStatus = "waiting"
	TaskRunning   TaskStatus = "running"
	TaskRetrying  TaskStatus = "retrying"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// TaskResult records the terminal outcome of one task.
type TaskResult struct {
	TaskID   string
	Status   TaskStatus
	Attempts int
	Err      error
	// Duration is cumulative execution time across attempts, excluding
	// queue and backoff waits.
	Duration time.Duration
}

// Result aggregates one run. It is always complete: every submitted task
// appears exactly once with a terminal status.
type Result struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled bool
	Duration  time.Duration
	Tasks     []TaskResult
}

type nonRetryableError struct{ err error }

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable flags err so the scheduler fails the task immediately instead
// of consuming retry budget.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable reports whether err (or anything it wraps) was flagged
// through NonRetryable.
func IsNonRetryable(err error) bool {
	var target *nonRetryableError
	return errors.As(err, &target)
}
