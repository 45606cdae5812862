package models

import "time"

// ErrorType classifies where a task error originated.
type ErrorType string

const (
	ErrorTypeExecution  ErrorType = "execution"
	ErrorTypeEvaluation ErrorType = "evaluation"
	ErrorTypeSystem     ErrorType = "system"
)

// Severity ranks how serious a task error is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error kinds recorded on TaskError.Kind.
const (
	ErrorKindTimeout               = "Timeout"
	ErrorKindProcessError          = "ProcessError"
	ErrorKindNotFound              = "NotFound"
	ErrorKindMaxIterationsExceeded = "MaxIterationsExceeded"
	ErrorKindDurationExceeded      = "DurationExceeded"
	ErrorKindAlreadyRunning        = "AlreadyRunning"
	ErrorKindEvaluationFailed      = "EvaluationFailed"
	ErrorKindPlanningFailed        = "PlanningFailed"
	ErrorKindDecisionFailed        = "DecisionFailed"
	ErrorKindUnclassified          = "Unclassified"
)

// TaskError is one entry in a task's append-only error log.
type TaskError struct {
	// Timestamp is when the error was recorded.
	Timestamp time.Time `json:"timestamp"`
	// Type is the error's origin.
	Type ErrorType `json:"type"`
	// Severity ranks the error.
	Severity Severity `json:"severity"`
	// Kind names the error class, e.g. "Timeout" or "DurationExceeded".
	Kind string `json:"kind"`
	// Message is shown verbatim to users.
	Message string `json:"message"`
	// Details carries optional diagnostic text.
	Details string `json:"details,omitempty"`
	// Recovery carries optional advice for recovering.
	Recovery string `json:"recovery,omitempty"`
	// Iteration is the one-based iteration number the error belongs to, or 0.
	Iteration int `json:"iteration,omitempty"`
}

// TaskMetrics aggregates counters across a task's iterations.
// Counters only ever grow.
type TaskMetrics struct {
	// Iterations is the number of recorded iterations.
	Iterations int `json:"iterations"`
	// QualityScore is the latest overall evaluation score, if any evaluation ran.
	QualityScore *float64 `json:"quality_score,omitempty"`
	// FilesChanged counts unique artifact paths produced by steps.
	FilesChanged int `json:"files_changed"`
	// TestsPassed is the highest passing-test count observed.
	TestsPassed int `json:"tests_passed"`
	// TestsFailed is the highest failing-test count observed.
	TestsFailed int `json:"tests_failed"`
	// Coverage is the highest coverage percentage observed.
	Coverage float64 `json:"coverage"`
	// AgentCalls counts agent invocations.
	AgentCalls int `json:"agent_calls"`
	// LLMCalls counts planning and criteria-check calls.
	LLMCalls int `json:"llm_calls"`
	// EstimatedCost is the total call count times the per-call cost.
	EstimatedCost float64 `json:"estimated_cost"`
}

// Clone returns a deep copy of the metrics.
func (m TaskMetrics) Clone() TaskMetrics {
	c := m
	if m.QualityScore != nil {
		q := *m.QualityScore
		c.QualityScore = &q
	}
	return c
}

// TaskContext is the mutable execution record for one task.
type TaskContext struct {
	// Task is the admitted task definition.
	Task Task `json:"task"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// StartTime is set when execution begins.
	StartTime *time.Time `json:"start_time,omitempty"`
	// EndTime is set exactly once, when a terminal status is reached.
	EndTime *time.Time `json:"end_time,omitempty"`
	// Progress is a percentage in [0,100] that never decreases.
	Progress float64 `json:"progress"`
	// Iterations is the ordered iteration history.
	Iterations []TaskIteration `json:"iterations"`
	// Evaluations is the ordered list of evaluation results.
	Evaluations []EvaluationResult `json:"evaluations"`
	// Errors is the ordered error log.
	Errors []TaskError `json:"errors"`
	// Metrics aggregates counters across iterations.
	Metrics TaskMetrics `json:"metrics"`
}

// NewTaskContext creates a pending context for the task.
func NewTaskContext(task Task) *TaskContext {
	return &TaskContext{
		Task:   task.Clone(),
		Status: TaskStatusPending,
	}
}

// LatestEvaluation returns the most recent evaluation result, or nil.
func (c *TaskContext) LatestEvaluation() *EvaluationResult {
	if len(c.Evaluations) == 0 {
		return nil
	}
	return &c.Evaluations[len(c.Evaluations)-1]
}

// LastIteration returns the most recent iteration, or nil.
func (c *TaskContext) LastIteration() *TaskIteration {
	if len(c.Iterations) == 0 {
		return nil
	}
	return &c.Iterations[len(c.Iterations)-1]
}

// Elapsed returns the time since StartTime, measured up to EndTime when set.
func (c *TaskContext) Elapsed(now time.Time) time.Duration {
	if c.StartTime == nil {
		return 0
	}
	if c.EndTime != nil {
		return c.EndTime.Sub(*c.StartTime)
	}
	return now.Sub(*c.StartTime)
}

// Clone returns a deep copy that shares no memory with c.
func (c *TaskContext) Clone() *TaskContext {
	if c == nil {
		return nil
	}
	out := &TaskContext{
		Task:      c.Task.Clone(),
		Status:    c.Status,
		StartTime: cloneTime(c.StartTime),
		EndTime:   cloneTime(c.EndTime),
		Progress:  c.Progress,
		Metrics:   c.Metrics.Clone(),
	}
	if c.Iterations != nil {
		out.Iterations = make([]TaskIteration, len(c.Iterations))
		for i, it := range c.Iterations {
			out.Iterations[i] = it.Clone()
		}
	}
	if c.Evaluations != nil {
		out.Evaluations = make([]EvaluationResult, len(c.Evaluations))
		for i, e := range c.Evaluations {
			out.Evaluations[i] = e.Clone()
		}
	}
	if c.Errors != nil {
		out.Errors = make([]TaskError, len(c.Errors))
		copy(out.Errors, c.Errors)
	}
	return out
}
