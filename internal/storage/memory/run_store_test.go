package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wrenlabs/quill/internal/agent"
)

// TestRunLifecycle walks a run from queued through running to succeeded and
// checks the timestamp bookkeeping.
func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore()

	run := agent.Run{ID: "run-1", Status: agent.RunStatusQueued, Submitted: time.Now().UTC()}
	require.NoError(t, store.CreateRun(ctx, run))
	require.Error(t, store.CreateRun(ctx, run), "duplicate id must be rejected")

	got, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, agent.RunStatusQueued, got.Status)
	require.Nil(t, got.Started)
	require.Nil(t, got.Finished)

	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", agent.RunStatusRunning, "", agent.RunCounters{}))
	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, got.Started)
	require.Nil(t, got.Finished)

	counters := agent.RunCounters{TasksSucceeded: 3, TasksFailed: 1, Retries: 2}
	require.NoError(t, store.UpdateRunStatus(ctx, "run-1", agent.RunStatusSucceeded, "", counters))
	got, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, agent.RunStatusSucceeded, got.Status)
	require.Equal(t, counters, got.Counters)
	require.NotNil(t, got.Finished)
	require.False(t, got.Finished.Before(*got.Started))
}

// TestUpdateFailedSetsErrorText checks terminal failures carry the error
// text and a finish timestamp.
func TestUpdateFailedSetsErrorText(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore()
	require.NoError(t, store.CreateRun(ctx, agent.Run{ID: "run-2", Status: agent.RunStatusQueued}))

	require.NoError(t, store.UpdateRunStatus(ctx, "run-2", agent.RunStatusFailed, "2 of 5 tasks failed", agent.RunCounters{TasksSucceeded: 3, TasksFailed: 2}))
	got, err := store.GetRun(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, "2 of 5 tasks failed", got.ErrorText)
	require.NotNil(t, got.Finished)
}

// TestUnknownRunErrors checks lookups and updates against missing IDs fail.
func TestUnknownRunErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore()

	_, err := store.GetRun(ctx, "nope")
	require.Error(t, err)
	require.Error(t, store.UpdateRunStatus(ctx, "nope", agent.RunStatusRunning, "", agent.RunCounters{}))
}

// TestRecordAndListTasks checks task rows come back in completion order and
// the returned slice is a copy.
func TestRecordAndListTasks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore()
	require.NoError(t, store.CreateRun(ctx, agent.Run{ID: "run-3"}))

	recs := []agent.TaskRecord{
		{RunID: "run-3", TaskID: "run-3-task-0", Status: "succeeded", Attempts: 1},
		{RunID: "run-3", TaskID: "run-3-task-1", Status: "failed", Attempts: 3, ErrorText: "http 503 from https://x"},
	}
	for _, rec := range recs {
		require.NoError(t, store.RecordTask(ctx, rec))
	}

	tasks, err := store.ListTasks(ctx, "run-3")
	require.NoError(t, err)
	require.Equal(t, recs, tasks)

	tasks[0].Status = "mutated"
	again, err := store.ListTasks(ctx, "run-3")
	require.NoError(t, err)
	require.Equal(t, "succeeded", again[0].Status)

	empty, err := store.ListTasks(ctx, "run-missing")
	require.NoError(t, err)
	require.Empty(t, empty)
}
