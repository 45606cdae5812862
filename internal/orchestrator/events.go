package orchestrator

import (
	"time"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// EventType represents the type of lifecycle event.
type EventType string

const (
	// EventTaskQueued indicates a task was admitted to the queue.
	EventTaskQueued EventType = "taskQueued"
	// EventTaskStarted indicates a task began executing.
	EventTaskStarted EventType = "taskStarted"
	// EventStepOutput carries incremental agent output for a running step.
	EventStepOutput EventType = "stepOutput"
	// EventIterationCompleted indicates an iteration was recorded.
	EventIterationCompleted EventType = "iterationCompleted"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "taskCompleted"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "taskFailed"
	// EventTaskEscalated indicates a task was handed to a human operator.
	EventTaskEscalated EventType = "taskEscalated"
	// EventTaskCancelled indicates a task was cancelled.
	EventTaskCancelled EventType = "taskCancelled"
)

// IsTerminal reports whether the event marks a task reaching a terminal status.
func (t EventType) IsTerminal() bool {
	switch t {
	case EventTaskCompleted, EventTaskFailed, EventTaskEscalated, EventTaskCancelled:
		return true
	default:
		return false
	}
}

// Event is a typed lifecycle notification.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task.
	TaskID string
	// TaskTitle is the title of the related task.
	TaskTitle string
	// Status is the task status when the event was emitted.
	Status models.TaskStatus
	// Iteration is the one-based iteration number, when applicable.
	Iteration int
	// StepIndex is the zero-based step index for stepOutput events.
	StepIndex int
	// Decision is set on iterationCompleted and terminal events that follow a decision.
	Decision models.Decision
	// Confidence accompanies Decision.
	Confidence float64
	// Message is the decision reasoning, error message or step output.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Context is a snapshot of the task context, set on taskStarted and terminal events.
	Context *models.TaskContext
}

// statusEvent maps a terminal status to its event type.
func statusEvent(status models.TaskStatus) EventType {
	switch status {
	case models.TaskStatusCompleted:
		return EventTaskCompleted
	case models.TaskStatusEscalated:
		return EventTaskEscalated
	case models.TaskStatusCancelled:
		return EventTaskCancelled
	default:
		return EventTaskFailed
	}
}
