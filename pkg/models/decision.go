package models

import "time"

// Decision is the control signal produced after each iteration.
type Decision string

const (
	// DecisionContinue runs another iteration.
	DecisionContinue Decision = "continue"
	// DecisionComplete marks the task completed.
	DecisionComplete Decision = "complete"
	// DecisionAbort marks the task failed.
	DecisionAbort Decision = "abort"
	// DecisionEscalate hands the task to a human operator.
	DecisionEscalate Decision = "escalate"
)

// Valid returns true if the decision is one of the four known values.
func (d Decision) Valid() bool {
	switch d {
	case DecisionContinue, DecisionComplete, DecisionAbort, DecisionEscalate:
		return true
	default:
		return false
	}
}

// ContinuationDecision determines whether a task's iteration loop proceeds.
type ContinuationDecision struct {
	// Decision is the chosen action.
	Decision Decision `json:"decision"`
	// Confidence is in [0,1].
	Confidence float64 `json:"confidence"`
	// Reasoning is a human-readable explanation shown verbatim to users.
	Reasoning string `json:"reasoning"`
	// NextActions are suggested follow-ups carried from the latest evaluation.
	NextActions []string `json:"next_actions,omitempty"`
	// EstimatedRemaining is set on continue decisions when it can be estimated.
	EstimatedRemaining time.Duration `json:"estimated_remaining,omitempty"`
}

// Clone returns a deep copy of the decision.
func (d ContinuationDecision) Clone() ContinuationDecision {
	c := d
	c.NextActions = cloneStrings(d.NextActions)
	return c
}
