// Package faults diagnoses heterogeneous failure signals into a coarse
// taxonomy and applies bounded remediation before the scheduler decides on
// a retry.
package faults

import "time"

// Category is the coarse classification of a failure's root domain.
type Category string

// Fault categories.
const (
	CategoryNetwork        Category = "network"
	CategoryProtocol       Category = "protocol"
	CategoryAntiAutomation Category = "anti_automation"
	CategoryData           Category = "data"
	CategoryExecution      Category = "execution"
	CategoryLogic          Category = "logic"
)

// Action is a discrete remediation step.
type Action string

// Recovery actions.
const (
	ActionRetry          Action = "retry"
	ActionRotateIdentity Action = "rotate_identity"
	ActionSolveChallenge Action = "solve_challenge"
	ActionAdjustRate     Action = "adjust_rate"
	ActionEscalate       Action = "escalate"
	ActionAbort          Action = "abort"
)

// Severity estimates blast radius.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Diagnosis is the classifier's decision: a category plus a non-empty action
// list ordered by expected success probability, descending.
type Diagnosis struct {
	Category   Category
	Actions    []Action
	Severity   Severity
	Confidence float64
	// EstimatedRecovery is a coarse hint for how long remediation takes.
	EstimatedRecovery time.Duration
	// Rule names the classification rule that fired, for observability.
	Rule string
}

// Outcome records one attempted recovery action.
type Outcome struct {
	Action  Action
	Success bool
	Elapsed time.Duration
	Err     error
}
