package faults

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/metrics"
)

// ErrNoHandler marks an action attempt for which no handler was wired.
var ErrNoHandler = errors.New("no handler registered for action")

// ActionHandler performs one remediation step. The concrete collaborators
// (identity rotator, challenge solver, rate adjuster) are injected by the
// surrounding agent.
type ActionHandler interface {
	Execute(ctx context.Context, d Diagnosis) error
}

// HandlerFunc adapts a function to ActionHandler.
type HandlerFunc func(ctx context.Context, d Diagnosis) error

// Execute runs the function.
func (f HandlerFunc) Execute(ctx context.Context, d Diagnosis) error { return f(ctx, d) }

// Executor attempts planned actions strictly in order, recording one Outcome
// per attempt and stopping at the first success.
type Executor struct {
	handlers map[Action]ActionHandler
	history  HistoryStore
	logger   *zap.Logger
}

// NewExecutor constructs an Executor; history may be nil.
func NewExecutor(history HistoryStore, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		handlers: make(map[Action]ActionHandler),
		history:  history,
		logger:   logger,
	}
}

// Handle wires a handler for an action, replacing any previous one.
func (e *Executor) Handle(action Action, h ActionHandler) {
	e.handlers[action] = h
}

// Execute walks the action list. It returns every recorded Outcome and
// whether any action succeeded; exhausting the list means unrecovered, and
// the retry decision stays with the scheduler.
func (e *Executor) Execute(ctx context.Context, d Diagnosis, actions []Action) ([]Outcome, bool) {
	outcomes := make([]Outcome, 0, len(actions))
	for _, action := range actions {
		if ctx.Err() != nil {
			break
		}
		started := time.Now()
		var err error
		if h, ok := e.handlers[action]; ok {
			err = h.Execute(ctx, d)
		} else {
			err = ErrNoHandler
		}
		outcome := Outcome{
			Action:  action,
			Success: err == nil,
			Elapsed: time.Since(started),
			Err:     err,
		}
		outcomes = append(outcomes, outcome)

		metrics.RecoveryAttempt(string(action), outcome.Success)
		if e.history != nil && !errors.Is(err, ErrNoHandler) {
			if herr := e.history.RecordOutcome(ctx, d.Category, action, outcome.Success); herr != nil {
				e.logger.Warn("history record failed", zap.Error(herr))
			}
		}
		e.logger.Debug("recovery action attempted",
			zap.String("action", string(action)),
			zap.Bool("success", outcome.Success),
			zap.Duration("elapsed", outcome.Elapsed),
		)
		if outcome.Success {
			return outcomes, true
		}
	}
	return outcomes, false
}
