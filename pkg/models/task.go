package models

import "time"

// Priority ranks how urgent a task is.
type Priority string

const (
	// PriorityLow is for tasks that can wait.
	PriorityLow Priority = "low"
	// PriorityMedium is the default priority.
	PriorityMedium Priority = "medium"
	// PriorityHigh is for tasks that should run soon.
	PriorityHigh Priority = "high"
	// PriorityCritical is for tasks that block other work.
	PriorityCritical Priority = "critical"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// TaskStatus represents the lifecycle state of a task execution.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is queued and has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusPlanning indicates a plan is being generated.
	TaskStatusPlanning TaskStatus = "planning"
	// TaskStatusExecuting indicates plan steps are running against the agent.
	TaskStatusExecuting TaskStatus = "executing"
	// TaskStatusEvaluating indicates the iteration outcome is being assessed.
	TaskStatusEvaluating TaskStatus = "evaluating"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task was aborted or hit a hard limit.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled externally.
	TaskStatusCancelled TaskStatus = "cancelled"
	// TaskStatusEscalated indicates the task was handed to a human operator.
	TaskStatusEscalated TaskStatus = "escalated"
)

// validTransitions defines the allowed status changes.
// Cancellation is reachable from every non-terminal state.
var validTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusPlanning, TaskStatusCancelled},
	TaskStatusPlanning:   {TaskStatusExecuting, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusExecuting:  {TaskStatusEvaluating, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusEvaluating: {TaskStatusPlanning, TaskStatusCompleted, TaskStatusFailed, TaskStatusEscalated, TaskStatusCancelled},
	TaskStatusCompleted:  {},
	TaskStatusFailed:     {},
	TaskStatusCancelled:  {},
	TaskStatusEscalated:  {},
}

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are possible from s.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusEscalated:
		return true
	default:
		return false
	}
}

// IsActive reports whether s is one of the in-flight phases.
func (s TaskStatus) IsActive() bool {
	switch s {
	case TaskStatusPlanning, TaskStatusExecuting, TaskStatusEvaluating:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if moving from s to target is allowed.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Task represents a unit of requested work. A task is immutable once admitted.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Requirements lists what the implementation must include.
	Requirements []string `json:"requirements,omitempty"`
	// AcceptanceCriteria are free-text assertions that define completion.
	AcceptanceCriteria []string `json:"acceptance_criteria,omitempty"`
	// Priority ranks the task.
	Priority Priority `json:"priority"`
	// EstimatedDuration is the submitter's guess at how long the task takes.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	// Dependencies lists task IDs that must be completed before admission.
	Dependencies []string `json:"dependencies,omitempty"`
}

// Clone returns a copy of the task that shares no slices with t.
func (t Task) Clone() Task {
	c := t
	c.Requirements = cloneStrings(t.Requirements)
	c.AcceptanceCriteria = cloneStrings(t.AcceptanceCriteria)
	c.Dependencies = cloneStrings(t.Dependencies)
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
