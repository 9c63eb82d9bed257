package faults

import (
	"context"

	"go.uber.org/zap"
)

// Engine chains classifier, planner, and executor into the scheduler's
// recovery hook.
type Engine struct {
	classifier *Classifier
	planner    *Planner
	executor   *Executor
	logger     *zap.Logger
}

// NewEngine wires the three stages together. history may be nil; handlers
// are registered on the executor before the engine sees traffic.
func NewEngine(classifier *Classifier, planner *Planner, executor *Executor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		classifier: classifier,
		planner:    planner,
		executor:   executor,
		logger:     logger,
	}
}

// NewDefaultEngine builds an engine with default stages and optional history.
func NewDefaultEngine(history HistoryStore, logger *zap.Logger) *Engine {
	return NewEngine(
		NewClassifier(logger),
		NewPlanner(history, logger),
		NewExecutor(history, logger),
		logger,
	)
}

// Executor exposes the action registry for handler wiring.
func (e *Engine) Executor() *Executor { return e.executor }

// Diagnose classifies without acting.
func (e *Engine) Diagnose(err error, fctx map[string]any) Diagnosis {
	return e.classifier.Classify(err, fctx)
}

// Recover diagnoses the failure, plans, and executes remediation. The bool
// satisfies schedule.Recoverer: true when some action succeeded.
func (e *Engine) Recover(ctx context.Context, err error, fctx map[string]any) bool {
	d := e.classifier.Classify(err, fctx)
	actions := e.planner.Plan(ctx, d)
	outcomes, recovered := e.executor.Execute(ctx, d, actions)
	e.logger.Debug("recovery finished",
		zap.String("category", string(d.Category)),
		zap.Int("actions_attempted", len(outcomes)),
		zap.Bool("recovered", recovered),
	)
	return recovered
}
