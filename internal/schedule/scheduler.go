package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/limits"
	"github.com/wrenlabs/quill/internal/metrics"
	"github.com/wrenlabs/quill/internal/queue"
)

// ProgressFunc is invoked after every task reaches a terminal state with the
// number of completed tasks and the run total. It is called from scheduler
// goroutines and must be cheap or hand off internally.
type ProgressFunc func(completed, total int)

// Recoverer is consulted after a failed attempt once the retry policy has
// approved another try. A true return permits the retry; false means the
// fault could not be remediated and the task fails immediately.
type Recoverer interface {
	Recover(ctx context.Context, err error, fctx map[string]any) bool
}

// Config controls one scheduler instance.
type Config struct {
	// Concurrency bounds in-flight tasks and sizes the worker pool.
	Concurrency int
	// RatePerSec and Burst feed the run's token bucket; zero rate disables it.
	RatePerSec float64
	Burst      int
	// RateTimeout bounds how long a task may wait for admission before the
	// attempt fails with a budget error. Zero waits indefinitely.
	RateTimeout time.Duration
	// RateWindow and WindowLimit select the sliding-window discipline in
	// place of the token bucket: at most WindowLimit task starts per
	// RateWindow horizon. Zero RateWindow keeps the bucket.
	RateWindow  time.Duration
	WindowLimit int
	// Bucket optionally shares one token bucket across runs, letting the
	// adjust-rate recovery action slow every run at once. It takes
	// precedence over both per-run disciplines.
	Bucket *limits.TokenBucket
	// Discipline selects the queue feeding the workers.
	Discipline queue.Discipline
	// QueueDepth bounds the FIFO discipline's buffer.
	QueueDepth int
	// MaxRetries is the default retry budget for tasks that set none.
	MaxRetries int
	// BaseBackoff and MaxBackoff parameterize the retry policy.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Progress is the optional completion callback.
	Progress ProgressFunc
	// Recoverer is the optional fault-engine hook.
	Recoverer Recoverer
	Logger    *zap.Logger
}

// Scheduler drives batches of tasks to terminal states. A Scheduler is
// stateless across runs; each Run gets its own queue and limiters so one
// batch can never starve another.
type Scheduler struct {
	cfg    Config
	retry  RetryPolicy
	logger *zap.Logger
}

// New validates the config and constructs a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	switch cfg.Discipline {
	case "", queue.DisciplineFIFO, queue.DisciplinePriority, queue.DisciplineDelayed:
	default:
		return nil, fmt.Errorf("unknown queue discipline %q", cfg.Discipline)
	}
	if cfg.RateWindow > 0 && cfg.WindowLimit <= 0 {
		return nil, fmt.Errorf("window limit must be positive, got %d", cfg.WindowLimit)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:    cfg,
		retry:  NewRetryPolicy(cfg.BaseBackoff, cfg.MaxBackoff),
		logger: logger,
	}, nil
}

// admission picks the rate discipline for one run: the shared bucket when
// configured, a sliding window when a horizon is set, otherwise a fresh
// token bucket.
func (s *Scheduler) admission() limits.Limiter {
	if s.cfg.Bucket != nil {
		return s.cfg.Bucket
	}
	if s.cfg.RateWindow > 0 {
		return limits.NewSlidingWindow(s.cfg.WindowLimit, s.cfg.RateWindow, s.cfg.RateTimeout)
	}
	return limits.NewTokenBucket(s.cfg.RatePerSec, s.cfg.Burst, s.cfg.RateTimeout)
}

// taskState carries the scheduler-private bookkeeping for one task.
type taskState struct {
	task     *Task
	attempts int
	execDur  time.Duration
	status   TaskStatus
	lastErr  error
	terminal bool
}

type run struct {
	sched     *Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
	q         queue.Queue
	limiter   limits.Limiter
	slots     *limits.Concurrency
	mu        sync.Mutex
	states    []*taskState
	completed int
	total     int
	doneCh    chan struct{}
}

// Run executes tasks until every one reaches a terminal state, then returns
// the aggregate result. Cancellation of ctx is cooperative: no new dequeues,
// in-flight tasks finish or hit their own timeout, everything still queued
// is marked failed. The returned Result is always complete.
func (s *Scheduler) Run(ctx context.Context, tasks []*Task) (*Result, error) {
	if err := validateTasks(tasks); err != nil {
		return nil, err
	}
	started := time.Now()
	if len(tasks) == 0 {
		return &Result{}, nil
	}

	q, err := queue.New(s.cfg.Discipline, queueDepth(s.cfg, len(tasks)))
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		sched:   s,
		ctx:     runCtx,
		cancel:  cancel,
		q:       q,
		limiter: s.admission(),
		slots:   limits.NewConcurrency(s.cfg.Concurrency),
		total:   len(tasks),
		doneCh:  make(chan struct{}),
	}
	for _, t := range tasks {
		state := &taskState{task: t, status: TaskPending}
		r.states = append(r.states, state)
		r.push(state, t.Delay)
	}

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.workerLoop()
		}()
	}

	cancelled := false
	select {
	case <-r.doneCh:
	case <-ctx.Done():
		cancelled = true
	}
	cancel()
	wg.Wait()
	if cancelled {
		r.failRemaining()
	}

	return r.buildResult(started, cancelled), nil
}

func validateTasks(tasks []*Task) error {
	seen := make(map[string]struct{}, len(tasks))
	for i, t := range tasks {
		if t == nil || t.Fn == nil {
			return fmt.Errorf("task %d has no executable body", i)
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

func queueDepth(cfg Config, n int) int {
	if cfg.QueueDepth > n {
		return cfg.QueueDepth
	}
	// Room for every task plus its retries re-entering.
	return 2*n + 16
}

// push enqueues a task, honoring a visibility delay. Under the delayed
// discipline the queue itself holds the item; otherwise a timer re-enters it.
func (r *run) push(state *taskState, delay time.Duration) {
	item := queue.Item{
		ID:       state.task.ID,
		Priority: state.task.Priority,
		Value:    state,
	}
	if r.sched.cfg.Discipline == queue.DisciplineDelayed {
		if delay > 0 {
			item.ReleaseAt = time.Now().Add(delay)
		}
		r.setStatus(state, TaskWaiting)
		r.enqueue(item)
		return
	}
	if delay > 0 {
		time.AfterFunc(delay, func() {
			if r.ctx.Err() != nil {
				return
			}
			r.setStatus(state, TaskWaiting)
			r.enqueue(item)
		})
		return
	}
	r.setStatus(state, TaskWaiting)
	r.enqueue(item)
}

func (r *run) enqueue(item queue.Item) {
	if err := r.q.Push(r.ctx, item); err != nil {
		// Only possible when the run is shutting down; the drain pass
		// records the terminal state.
		r.sched.logger.Debug("enqueue skipped", zap.String("task", item.ID), zap.Error(err))
	}
}

func (r *run) workerLoop() {
	for {
		item, err := r.q.Pop(r.ctx)
		if err != nil {
			return
		}
		state := item.Value.(*taskState)
		if r.isTerminal(state) {
			continue
		}
		if err := r.limiter.Acquire(r.ctx); err != nil {
			if errors.Is(err, limits.ErrCancelled) {
				return
			}
			// Budget exhaustion consumes an attempt so the task cannot
			// spin forever on a starved limiter.
			r.countAttempt(state)
			r.afterAttempt(state, err, 0)
			continue
		}
		if err := r.slots.Acquire(r.ctx); err != nil {
			return
		}
		r.execute(state)
		r.slots.Release()
	}
}

func (r *run) countAttempt(state *taskState) {
	r.mu.Lock()
	state.attempts++
	r.mu.Unlock()
}

func (r *run) execute(state *taskState) {
	r.setStatus(state, TaskRunning)
	r.countAttempt(state)

	metrics.WorkerActive(1)
	defer metrics.WorkerActive(-1)

	// In-flight work survives run-level cancellation; only the per-task
	// timeout bounds it.
	taskCtx := context.Background()
	cancel := context.CancelFunc(func() {})
	if state.task.Timeout > 0 {
		taskCtx, cancel = context.WithTimeout(taskCtx, state.task.Timeout)
	}
	started := time.Now()
	err := runBody(taskCtx, state.task.Fn)
	cancel()
	elapsed := time.Since(started)

	if err != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %v", ErrTaskTimeout, state.task.Timeout, err)
	}
	r.afterAttempt(state, err, elapsed)
}

// runBody isolates panics from opaque task bodies into plain errors.
func runBody(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panic: %v", rec)
		}
	}()
	return fn(ctx)
}

func (r *run) afterAttempt(state *taskState, err error, elapsed time.Duration) {
	r.mu.Lock()
	state.execDur += elapsed
	if err != nil {
		state.lastErr = err
	}
	attempts := state.attempts
	r.mu.Unlock()

	if err == nil {
		r.finish(state, TaskSucceeded, nil)
		return
	}

	maxRetries := state.task.MaxRetries
	if maxRetries <= 0 {
		maxRetries = r.sched.cfg.MaxRetries
	}
	if !r.sched.retry.ShouldRetry(err, attempts, maxRetries) {
		if attempts > maxRetries && !IsNonRetryable(err) {
			err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
		}
		r.finish(state, TaskFailed, err)
		return
	}

	if rec := r.sched.cfg.Recoverer; rec != nil {
		fctx := map[string]any{
			"task_id": state.task.ID,
			"attempt": attempts,
			"latency": elapsed,
		}
		if !rec.Recover(r.ctx, err, fctx) {
			// Remediation could not clear the fault, so another attempt
			// would hit the same wall. Fail the task now instead of
			// burning the rest of its retry budget.
			r.sched.logger.Debug("recovery hook rejected retry",
				zap.String("task", state.task.ID),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			r.finish(state, TaskFailed, fmt.Errorf("%w: %w", ErrUnrecovered, err))
			return
		}
	}

	backoff := r.sched.retry.Backoff(attempts)
	metrics.TaskRetried()
	r.setStatus(state, TaskRetrying)
	r.sched.logger.Debug("task retrying",
		zap.String("task", state.task.ID),
		zap.Int("attempt", attempts),
		zap.Duration("backoff", backoff),
		zap.Error(err),
	)
	r.push(state, backoff)
}

func (r *run) finish(state *taskState, status TaskStatus, err error) {
	r.mu.Lock()
	if state.terminal {
		r.mu.Unlock()
		return
	}
	state.terminal = true
	state.status = status
	state.lastErr = err
	r.completed++
	completed := r.completed
	dur := state.execDur
	r.mu.Unlock()

	metrics.TaskFinished(string(status), dur)
	if cb := r.sched.cfg.Progress; cb != nil {
		cb(completed, r.total)
	}
	if completed == r.total {
		close(r.doneCh)
	}
}

// failRemaining marks every non-terminal task after a run-level cancel, so
// the aggregate result stays deterministic.
func (r *run) failRemaining() {
	for _, state := range r.states {
		r.finish(state, TaskFailed, ErrRunCancelled)
	}
}

func (r *run) setStatus(state *taskState, status TaskStatus) {
	r.mu.Lock()
	if !state.terminal {
		state.status = status
	}
	r.mu.Unlock()
}

func (r *run) isTerminal(state *taskState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return state.terminal
}

func (r *run) buildResult(started time.Time, cancelled bool) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := &Result{
		Total:     r.total,
		Cancelled: cancelled,
		Duration:  time.Since(started),
		Tasks:     make([]TaskResult, 0, r.total),
	}
	for _, state := range r.states {
		tr := TaskResult{
			TaskID:   state.task.ID,
			Status:   state.status,
			Attempts: state.attempts,
			Err:      state.lastErr,
			Duration: state.execDur,
		}
		res.Tasks = append(res.Tasks, tr)
		switch state.status {
		case TaskSucceeded:
			res.Succeeded++
		default:
			res.Failed++
		}
	}
	return res
}
