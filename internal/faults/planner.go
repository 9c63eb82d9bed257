package faults

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// defaultPlans is the static action catalog per category, ranked by expected
// success probability descending.
var defaultPlans = map[Category][]Action{
	CategoryNetwork:        {ActionRetry, ActionAdjustRate, ActionEscalate},
	CategoryProtocol:       {ActionRetry, ActionAdjustRate, ActionEscalate},
	CategoryAntiAutomation: {ActionRotateIdentity, ActionAdjustRate, ActionSolveChallenge, ActionEscalate},
	CategoryData:           {ActionRetry, ActionEscalate},
	CategoryExecution:      {ActionRetry, ActionAbort},
	CategoryLogic:          {ActionEscalate},
}

// planFor returns a copy of the static plan so callers can reorder freely.
func planFor(category Category) []Action {
	plan, ok := defaultPlans[category]
	if !ok {
		return []Action{ActionEscalate}
	}
	return append([]Action(nil), plan...)
}

// HistoryStore accumulates recovery outcomes so the planner can learn which
// actions actually work per category.
type HistoryStore interface {
	RecordOutcome(ctx context.Context, category Category, action Action, success bool) error
	SuccessRate(ctx context.Context, category Category, action Action) (rate float64, samples int, err error)
}

// Planner produces the ordered action list for a diagnosis, optionally
// re-ranked by historical success data.
type Planner struct {
	history HistoryStore
	// minSamples gates re-ranking: below this, history is noise.
	minSamples int
	logger     *zap.Logger
}

// NewPlanner constructs a Planner; history may be nil.
func NewPlanner(history HistoryStore, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{history: history, minSamples: 5, logger: logger}
}

// Plan returns the action list for the diagnosis. With enough history, the
// static ranking is adjusted by observed success rates; the sort is stable,
// so ties keep the catalog order.
func (p *Planner) Plan(ctx context.Context, d Diagnosis) []Action {
	actions := append([]Action(nil), d.Actions...)
	if len(actions) == 0 {
		actions = planFor(d.Category)
	}
	if p.history == nil {
		return actions
	}

	rates := make(map[Action]float64, len(actions))
	ranked := false
	for _, a := range actions {
		rate, samples, err := p.history.SuccessRate(ctx, d.Category, a)
		if err != nil {
			p.logger.Warn("history lookup failed", zap.String("action", string(a)), zap.Error(err))
			return actions
		}
		if samples >= p.minSamples {
			rates[a] = rate
			ranked = true
		} else {
			// Neutral prior: untried actions neither rise nor sink.
			rates[a] = 0.5
		}
	}
	if !ranked {
		return actions
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return rates[actions[i]] > rates[actions[j]]
	})
	return actions
}
