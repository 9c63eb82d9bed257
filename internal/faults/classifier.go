package faults

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wrenlabs/quill/internal/metrics"
)

// rule is one entry of the data-driven classification table. match returns
// whether the rule fires and how many corroborating signals it saw; more
// corroboration raises confidence.
type rule struct {
	name     string
	category Category
	severity Severity
	base     float64
	recovery time.Duration
	match    func(Signals) (bool, int)
}

// defaultRules are evaluated strictly in order; the first match wins. More
// specific shapes come before broader ones.
var defaultRules = []rule{
	{
		name:     "ip-block",
		category: CategoryAntiAutomation,
		severity: SeverityHigh,
		base:     0.6,
		recovery: 30 * time.Second,
		match: func(s Signals) (bool, int) {
			hits := containsAny(s.Body, blockMarkers)
			statusHit := s.StatusCode == 403 || s.StatusCode == 429
			if hits == 0 && !statusHit {
				return false, 0
			}
			if hits == 0 {
				// Bare 403/429 with no marker is still suspicious but on
				// its own reads as protocol, not a block.
				return false, 0
			}
			n := hits
			if statusHit {
				n++
			}
			return true, n
		},
	},
	{
		name:     "challenge",
		category: CategoryAntiAutomation,
		severity: SeverityHigh,
		base:     0.6,
		recovery: time.Minute,
		match: func(s Signals) (bool, int) {
			hits := containsAny(s.Body, challengeMarkers)
			if hits == 0 {
				return false, 0
			}
			n := hits
			if s.StatusCode == 403 || s.StatusCode == 503 {
				n++
			}
			return true, n
		},
	},
	{
		name:     "rate-pushback",
		category: CategoryAntiAutomation,
		severity: SeverityMedium,
		base:     0.5,
		recovery: 10 * time.Second,
		match: func(s Signals) (bool, int) {
			if s.StatusCode == 429 {
				return true, 1
			}
			return false, 0
		},
	},
	{
		name:     "network",
		category: CategoryNetwork,
		severity: SeverityMedium,
		base:     0.5,
		recovery: 5 * time.Second,
		match: func(s Signals) (bool, int) {
			n := 0
			if s.Timeout {
				n++
			}
			if s.ConnFailure {
				n++
			}
			if s.DNSFailure {
				n++
			}
			return n > 0, n
		},
	},
	{
		name:     "server-error",
		category: CategoryProtocol,
		severity: SeverityMedium,
		base:     0.5,
		recovery: 5 * time.Second,
		match: func(s Signals) (bool, int) {
			if s.StatusCode >= 500 {
				return true, 1
			}
			return false, 0
		},
	},
	{
		name:     "client-error",
		category: CategoryProtocol,
		severity: SeverityLow,
		base:     0.45,
		recovery: 0,
		match: func(s Signals) (bool, int) {
			if s.StatusCode >= 400 && s.StatusCode < 500 {
				return true, 1
			}
			return false, 0
		},
	},
	{
		name:     "malformed-data",
		category: CategoryData,
		severity: SeverityLow,
		base:     0.5,
		recovery: 0,
		match: func(s Signals) (bool, int) {
			hits := containsAny(s.Body, dataMarkers)
			if s.Err != nil {
				hits += containsAny(strings.ToLower(s.Err.Error()), dataMarkers)
			}
			return hits > 0, hits
		},
	},
	{
		name:     "execution",
		category: CategoryExecution,
		severity: SeverityMedium,
		base:     0.5,
		recovery: time.Second,
		match: func(s Signals) (bool, int) {
			n := 0
			if s.TaskTimeout {
				n++
			}
			if s.Panic {
				n++
			}
			if s.RateLimited {
				n++
			}
			return n > 0, n
		},
	},
}

const (
	confidencePerSignal = 0.1
	confidenceCap       = 0.95
	fallbackConfidence  = 0.2
)

// Classifier maps failure signals to a Diagnosis through the rule table.
type Classifier struct {
	rules  []rule
	logger *zap.Logger
}

// NewClassifier builds a classifier with the default rule table.
func NewClassifier(logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{rules: defaultRules, logger: logger}
}

// Classify never fails: unrecognized shapes fall back to a low-confidence
// logic diagnosis with escalation as the sole action, so every input has a
// defined outcome.
func (c *Classifier) Classify(err error, fctx map[string]any) Diagnosis {
	signals := Extract(err, fctx)
	for _, r := range c.rules {
		matched, corroborating := r.match(signals)
		if !matched {
			continue
		}
		confidence := r.base + confidencePerSignal*float64(corroborating-1)
		if confidence > confidenceCap {
			confidence = confidenceCap
		}
		d := Diagnosis{
			Category:          r.category,
			Actions:           planFor(r.category),
			Severity:          r.severity,
			Confidence:        confidence,
			EstimatedRecovery: r.recovery,
			Rule:              r.name,
		}
		metrics.Diagnosis(string(d.Category))
		c.logger.Debug("fault classified",
			zap.String("rule", r.name),
			zap.String("category", string(r.category)),
			zap.Float64("confidence", confidence),
			zap.Error(err),
		)
		return d
	}

	metrics.Diagnosis(string(CategoryLogic))
	return Diagnosis{
		Category:   CategoryLogic,
		Actions:    []Action{ActionEscalate},
		Severity:   SeverityLow,
		Confidence: fallbackConfidence,
		Rule:       "fallback",
	}
}
