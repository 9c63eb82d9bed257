// Package agent defines core types shared across subsystems.
package agent

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of a batch run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// TaskSpec describes one signed request submitted as part of a run.
type TaskSpec struct {
	ID         string            `json:"id,omitempty"`
	Method     string            `json:"method"`
	URL        string            `json:"url"`
	Params     map[string]string `json:"params,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Scheme     string            `json:"scheme,omitempty"`
	Priority   int               `json:"priority,omitempty"`
	DelayMs    int64             `json:"delay_ms,omitempty"`
	TimeoutMs  int64             `json:"timeout_ms,omitempty"`
	MaxRetries int               `json:"max_retries,omitempty"`
}

// RunParameters captures per-run configuration knobs requested by the
// client. RateWindowMs and WindowLimit switch admission to a sliding window
// of at most WindowLimit task starts per horizon.
type RunParameters struct {
	Tasks        []TaskSpec        `json:"tasks"`
	Concurrency  int               `json:"concurrency"`
	RatePerSec   float64           `json:"rate_per_sec"`
	Burst        int               `json:"burst"`
	RateWindowMs int64             `json:"rate_window_ms,omitempty"`
	WindowLimit  int               `json:"window_limit,omitempty"`
	Discipline   string            `json:"discipline"`
	MaxRetries   int               `json:"max_retries"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Run represents the metadata persisted for each submitted batch.
type Run struct {
	ID         string        `json:"id"`
	Status     RunStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters RunParameters `json:"parameters"`
	Counters   RunCounters   `json:"counters"`
}

// RunCounters tracks success/failure stats per run.
type RunCounters struct {
	TasksSucceeded int `json:"tasks_succeeded"`
	TasksFailed    int `json:"tasks_failed"`
	Retries        int `json:"retries"`
}

// TaskRecord is persisted for each task once it reaches a terminal state.
type TaskRecord struct {
	RunID      string    `json:"run_id"`
	TaskID     string    `json:"task_id"`
	URL        string    `json:"url"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	ErrorText  string    `json:"error_text,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
}

// RunResult is returned by the API result endpoint.
type RunResult struct {
	Run   Run
	Tasks []TaskRecord
}

// HTTPError carries response metadata for a failed request so the fault
// classifier can inspect structural signals.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
}
