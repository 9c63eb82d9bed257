// Package runner owns the lifecycle of batch runs: it accepts run
// parameters, drives the scheduler, persists outcomes, and emits progress
// and completion events.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/agent"
	"github.com/wrenlabs/quill/internal/httpexec"
	"github.com/wrenlabs/quill/internal/limits"
	"github.com/wrenlabs/quill/internal/metrics"
	"github.com/wrenlabs/quill/internal/progress"
	"github.com/wrenlabs/quill/internal/queue"
	"github.com/wrenlabs/quill/internal/schedule"
)

// Config controls Runner defaults applied when run parameters leave a knob
// unset.
type Config struct {
	Concurrency int
	RatePerSec  float64
	Burst       int
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	RateTimeout time.Duration
	// RateWindow and WindowLimit make the sliding window the default rate
	// discipline for runs that do not request their own.
	RateWindow  time.Duration
	WindowLimit int
	// Bucket, when set, is shared by every run that does not request its own
	// rate, so recovery actions that slow the bucket slow all of them.
	Bucket *limits.TokenBucket
	// Topic names the completion event topic for the publisher.
	Topic string
}

// Runner executes submitted runs asynchronously. One Runner serves all runs;
// each run gets its own scheduler state.
type Runner struct {
	cfg       Config
	store     agent.RunStore
	exec      *httpexec.Executor
	recoverer schedule.Recoverer
	hub       *progress.Hub
	publisher agent.Publisher
	idGen     agent.IDGenerator
	clock     agent.Clock
	logger    *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs a Runner. hub, publisher, and recoverer may be nil.
func New(
	cfg Config,
	store agent.RunStore,
	exec *httpexec.Executor,
	recoverer schedule.Recoverer,
	hub *progress.Hub,
	publisher agent.Publisher,
	idGen agent.IDGenerator,
	clock agent.Clock,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Topic == "" {
		cfg.Topic = "quill.runs"
	}
	return &Runner{
		cfg:       cfg,
		store:     store,
		exec:      exec,
		recoverer: recoverer,
		hub:       hub,
		publisher: publisher,
		idGen:     idGen,
		clock:     clock,
		logger:    logger,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit registers the run and starts executing it in the background,
// returning the run ID immediately.
func (r *Runner) Submit(ctx context.Context, params agent.RunParameters) (string, error) {
	if len(params.Tasks) == 0 {
		return "", fmt.Errorf("run has no tasks")
	}
	runID, err := r.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	for i := range params.Tasks {
		if params.Tasks[i].ID == "" {
			params.Tasks[i].ID = fmt.Sprintf("%s-task-%d", runID, i)
		}
	}

	run := agent.Run{
		ID:         runID,
		Status:     agent.RunStatusQueued,
		Submitted:  r.clock.Now().UTC(),
		Parameters: params,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[runID] = cancel
	r.mu.Unlock()

	go r.execute(runCtx, runID, params)
	return runID, nil
}

// Cancel requests cooperative cancellation of an in-flight run.
func (r *Runner) Cancel(runID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[runID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (r *Runner) execute(ctx context.Context, runID string, params agent.RunParameters) {
	defer func() {
		r.mu.Lock()
		delete(r.cancels, runID)
		r.mu.Unlock()
	}()

	total := len(params.Tasks)
	if err := r.store.UpdateRunStatus(ctx, runID, agent.RunStatusRunning, "", agent.RunCounters{}); err != nil {
		r.logger.Error("mark run running failed", zap.String("run_id", runID), zap.Error(err))
	}
	r.emit(progress.Event{
		RunID: runID,
		TS:    r.clock.Now().UTC(),
		Stage: progress.StageRunStart,
		Total: total,
	})

	sched, err := schedule.New(r.scheduleConfig(runID, params))
	if err != nil {
		r.finishWithError(runID, fmt.Errorf("build scheduler: %w", err))
		return
	}
	tasks := make([]*schedule.Task, 0, total)
	urls := make(map[string]string, total)
	for _, spec := range params.Tasks {
		tasks = append(tasks, r.exec.TaskFor(spec))
		urls[spec.ID] = spec.URL
	}

	started := r.clock.Now()
	res, err := sched.Run(ctx, tasks)
	if err != nil {
		r.finishWithError(runID, fmt.Errorf("run batch: %w", err))
		return
	}

	// The run context is cancelled once Cancel fires; terminal bookkeeping
	// must still land, so it persists on a detached context.
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPersist()

	counters := agent.RunCounters{
		TasksSucceeded: res.Succeeded,
		TasksFailed:    res.Failed,
	}
	for _, tr := range res.Tasks {
		if tr.Attempts > 1 {
			counters.Retries += tr.Attempts - 1
		}
		rec := agent.TaskRecord{
			RunID:      runID,
			TaskID:     tr.TaskID,
			URL:        urls[tr.TaskID],
			Status:     string(tr.Status),
			Attempts:   tr.Attempts,
			FinishedAt: r.clock.Now().UTC(),
			DurationMs: tr.Duration.Milliseconds(),
		}
		if tr.Err != nil {
			rec.ErrorText = tr.Err.Error()
		}
		if err := r.store.RecordTask(persistCtx, rec); err != nil {
			r.logger.Error("record task failed", zap.String("run_id", runID), zap.Error(err))
		}
	}

	status := agent.RunStatusSucceeded
	errText := ""
	switch {
	case res.Cancelled:
		status = agent.RunStatusCanceled
		errText = "run cancelled"
	case res.Failed > 0:
		status = agent.RunStatusFailed
		errText = fmt.Sprintf("%d of %d tasks failed", res.Failed, res.Total)
	}
	if err := r.store.UpdateRunStatus(persistCtx, runID, status, errText, counters); err != nil {
		r.logger.Error("mark run finished failed", zap.String("run_id", runID), zap.Error(err))
	}

	dur := r.clock.Now().Sub(started)
	metrics.RunFinished(string(status), dur)
	r.emit(progress.Event{
		RunID:     runID,
		TS:        r.clock.Now().UTC(),
		Stage:     progress.StageRunDone,
		Completed: res.Succeeded + res.Failed,
		Total:     res.Total,
		Dur:       dur,
		Note:      errText,
	})
	r.publish(runID, status, counters, dur)

	r.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.String("status", string(status)),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Int("retries", counters.Retries),
		zap.Duration("duration", dur),
	)
}

func (r *Runner) scheduleConfig(runID string, params agent.RunParameters) schedule.Config {
	cfg := schedule.Config{
		Concurrency: r.cfg.Concurrency,
		RatePerSec:  r.cfg.RatePerSec,
		Burst:       r.cfg.Burst,
		RateTimeout: r.cfg.RateTimeout,
		MaxRetries:  r.cfg.MaxRetries,
		BaseBackoff: r.cfg.BaseBackoff,
		MaxBackoff:  r.cfg.MaxBackoff,
		Recoverer:   r.recoverer,
		Logger:      r.logger,
	}
	if params.Concurrency > 0 {
		cfg.Concurrency = params.Concurrency
	}
	// A run that asks for its own rate discipline gets a private limiter;
	// everything else shares the process-wide bucket so recovery actions
	// that slow it slow every run.
	switch {
	case params.RateWindowMs > 0:
		cfg.RateWindow = time.Duration(params.RateWindowMs) * time.Millisecond
		cfg.WindowLimit = params.WindowLimit
	case params.RatePerSec > 0:
		cfg.RatePerSec = params.RatePerSec
	case r.cfg.RateWindow > 0:
		cfg.RateWindow = r.cfg.RateWindow
		cfg.WindowLimit = r.cfg.WindowLimit
	default:
		cfg.Bucket = r.cfg.Bucket
	}
	if params.Burst > 0 {
		cfg.Burst = params.Burst
	}
	if params.MaxRetries > 0 {
		cfg.MaxRetries = params.MaxRetries
	}
	if params.Discipline != "" {
		cfg.Discipline = queue.Discipline(params.Discipline)
	}
	total := len(params.Tasks)
	cfg.Progress = func(completed, _ int) {
		r.emit(progress.Event{
			RunID:     runID,
			TS:        r.clock.Now().UTC(),
			Stage:     progress.StageTaskDone,
			Completed: completed,
			Total:     total,
		})
	}
	return cfg
}

func (r *Runner) finishWithError(runID string, err error) {
	r.logger.Error("run failed to start", zap.String("run_id", runID), zap.Error(err))
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if uerr := r.store.UpdateRunStatus(persistCtx, runID, agent.RunStatusFailed, err.Error(), agent.RunCounters{}); uerr != nil {
		r.logger.Error("mark run failed failed", zap.String("run_id", runID), zap.Error(uerr))
	}
	r.emit(progress.Event{
		RunID: runID,
		TS:    r.clock.Now().UTC(),
		Stage: progress.StageRunError,
		Note:  err.Error(),
	})
	metrics.RunFinished(string(agent.RunStatusFailed), 0)
}

func (r *Runner) emit(e progress.Event) {
	if r.hub != nil {
		r.hub.Emit(e)
	}
}

func (r *Runner) publish(runID string, status agent.RunStatus, counters agent.RunCounters, dur time.Duration) {
	if r.publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":          runID,
		"status":          string(status),
		"tasks_succeeded": counters.TasksSucceeded,
		"tasks_failed":    counters.TasksFailed,
		"retries":         counters.Retries,
		"duration_ms":     dur.Milliseconds(),
	}
	pubCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.publisher.Publish(pubCtx, r.cfg.Topic, payload); err != nil {
		r.logger.Warn("publish run event failed", zap.String("run_id", runID), zap.Error(err))
	}
}
