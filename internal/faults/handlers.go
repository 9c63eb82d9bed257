package faults

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/limits"
)

// ChallengeSolver is the external recognizer capability. Visual challenge
// solving itself lives outside this core; whatever implements it plugs in
// here.
type ChallengeSolver interface {
	Solve(ctx context.Context, d Diagnosis) error
}

// NewRetryHandler succeeds immediately: the remediation is simply letting
// the scheduler re-execute after backoff.
func NewRetryHandler() HandlerFunc {
	return func(context.Context, Diagnosis) error { return nil }
}

// NewAdjustRateHandler halves the shared bucket's refill rate, bottoming out
// at floor so remediation can never shut traffic off entirely.
func NewAdjustRateHandler(bucket *limits.TokenBucket, floor float64) HandlerFunc {
	if floor <= 0 {
		floor = 0.1
	}
	return func(context.Context, Diagnosis) error {
		if bucket == nil {
			return errors.New("no shared rate bucket to adjust")
		}
		next := bucket.Rate() / 2
		if next < floor {
			next = floor
		}
		bucket.SetRate(next)
		return nil
	}
}

// NewSolveChallengeHandler adapts an injected solver; without one the action
// fails and the executor moves down the plan.
func NewSolveChallengeHandler(solver ChallengeSolver) HandlerFunc {
	return func(ctx context.Context, d Diagnosis) error {
		if solver == nil {
			return errors.New("no challenge solver configured")
		}
		return solver.Solve(ctx, d)
	}
}

// NewEscalateHandler hands the fault to an operator channel (here: a warn
// log). Success means the handoff happened, not that the fault is fixed.
func NewEscalateHandler(logger *zap.Logger) HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, d Diagnosis) error {
		logger.Warn("fault escalated to operator",
			zap.String("category", string(d.Category)),
			zap.String("rule", d.Rule),
			zap.String("severity", string(d.Severity)),
			zap.Float64("confidence", d.Confidence),
		)
		return nil
	}
}

// NewAbortHandler always fails, pushing the task toward a terminal state:
// abort is a decision, not a remediation.
func NewAbortHandler() HandlerFunc {
	return func(context.Context, Diagnosis) error {
		return errors.New("abort: fault not recoverable")
	}
}
