package models

import "time"

// StepType labels the kind of work a step performs.
type StepType string

const (
	StepTypeAnalysis       StepType = "analysis"
	StepTypeImplementation StepType = "implementation"
	StepTypeTesting        StepType = "testing"
	StepTypeDocumentation  StepType = "documentation"
)

// Valid returns true if the step type is a known value.
func (t StepType) Valid() bool {
	switch t {
	case StepTypeAnalysis, StepTypeImplementation, StepTypeTesting, StepTypeDocumentation:
		return true
	default:
		return false
	}
}

// StepStatus represents the state of a single execution step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// Valid returns true if the step status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusRunning, StepStatusCompleted, StepStatusFailed:
		return true
	default:
		return false
	}
}

// ExecutionStep is one unit of agent work within an iteration.
type ExecutionStep struct {
	// Index is the zero-based position of the step in its plan.
	Index int `json:"index"`
	// Type labels the step for logging and display.
	Type StepType `json:"type"`
	// Description is the instruction sent to the agent.
	Description string `json:"description"`
	// Status is the step's current state.
	Status StepStatus `json:"status"`
	// StartTime is when the agent call began.
	StartTime *time.Time `json:"start_time,omitempty"`
	// EndTime is when the agent call finished.
	EndTime *time.Time `json:"end_time,omitempty"`
	// Output is the agent's final text, or the error text on failure.
	Output string `json:"output,omitempty"`
	// Artifacts lists file paths produced or modified by the step.
	Artifacts []string `json:"artifacts,omitempty"`
}

// Clone returns a deep copy of the step.
func (s ExecutionStep) Clone() ExecutionStep {
	c := s
	c.StartTime = cloneTime(s.StartTime)
	c.EndTime = cloneTime(s.EndTime)
	c.Artifacts = cloneStrings(s.Artifacts)
	return c
}

// EvaluationResult is the structured output of a quality evaluation.
type EvaluationResult struct {
	// Timestamp is when the evaluation finished.
	Timestamp time.Time `json:"timestamp"`
	// OverallScore is the aggregate quality score (0-100).
	OverallScore float64 `json:"overall_score"`
	// SubScores holds per-category scores (0-100) keyed by category name.
	SubScores map[string]float64 `json:"sub_scores,omitempty"`
	// Issues lists problems found in the workspace.
	Issues []string `json:"issues,omitempty"`
	// Suggestions lists recommended follow-up work.
	Suggestions []string `json:"suggestions,omitempty"`
	// TestsPassed is the number of passing tests observed.
	TestsPassed int `json:"tests_passed,omitempty"`
	// TestsFailed is the number of failing tests observed.
	TestsFailed int `json:"tests_failed,omitempty"`
	// Coverage is the observed statement coverage percentage.
	Coverage float64 `json:"coverage,omitempty"`
}

// Clone returns a deep copy of the evaluation result.
func (e EvaluationResult) Clone() EvaluationResult {
	c := e
	if e.SubScores != nil {
		c.SubScores = make(map[string]float64, len(e.SubScores))
		for k, v := range e.SubScores {
			c.SubScores[k] = v
		}
	}
	c.Issues = cloneStrings(e.Issues)
	c.Suggestions = cloneStrings(e.Suggestions)
	return c
}

// TaskIteration is one plan, execute, evaluate, decide pass.
// Iterations are append-only and never mutated once recorded.
type TaskIteration struct {
	// ID uniquely identifies the iteration.
	ID string `json:"id"`
	// Number is the one-based append index of the iteration.
	Number int `json:"number"`
	// StartTime is when planning began.
	StartTime time.Time `json:"start_time"`
	// EndTime is when the decision was made.
	EndTime time.Time `json:"end_time"`
	// Plan is the raw plan text returned by the planner.
	Plan string `json:"plan"`
	// Steps are the executed steps in plan order.
	Steps []ExecutionStep `json:"steps"`
	// Evaluation is set only when the evaluation cadence triggered.
	Evaluation *EvaluationResult `json:"evaluation,omitempty"`
	// Decision is the continuation decision made for this iteration.
	Decision ContinuationDecision `json:"decision"`
}

// Duration returns the wall-clock time the iteration took.
func (it TaskIteration) Duration() time.Duration {
	if it.EndTime.Before(it.StartTime) {
		return 0
	}
	return it.EndTime.Sub(it.StartTime)
}

// StepCounts returns the number of failed steps and the total step count.
func (it TaskIteration) StepCounts() (failed, total int) {
	for _, s := range it.Steps {
		if s.Status == StepStatusFailed {
			failed++
		}
	}
	return failed, len(it.Steps)
}

// Clone returns a deep copy of the iteration.
func (it TaskIteration) Clone() TaskIteration {
	c := it
	if it.Steps != nil {
		c.Steps = make([]ExecutionStep, len(it.Steps))
		for i, s := range it.Steps {
			c.Steps[i] = s.Clone()
		}
	}
	if it.Evaluation != nil {
		e := it.Evaluation.Clone()
		c.Evaluation = &e
	}
	c.Decision = it.Decision.Clone()
	return c
}
