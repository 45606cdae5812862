package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDependencyUnmet is matched by DependencyUnmetError through errors.Is.
	ErrDependencyUnmet = errors.New("dependency unmet")
	// ErrMaxIterationsExceeded is recorded when the iteration cap stops a task.
	ErrMaxIterationsExceeded = errors.New("max iterations exceeded")
	// ErrDurationExceeded is recorded when a task runs past its duration cap.
	ErrDurationExceeded = errors.New("max duration exceeded")
	// ErrTaskNotFound is returned for an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDuplicateTask is returned when a task ID has already been submitted.
	ErrDuplicateTask = errors.New("task already submitted")
	// ErrInvalidTask is returned for a task that cannot be admitted.
	ErrInvalidTask = errors.New("invalid task")
	// ErrInvalidTransition is returned for a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrTerminal is returned when a terminal task is asked to change.
	ErrTerminal = errors.New("task is in a terminal state")
	// ErrNoPlan is returned when the planner produced no usable steps.
	ErrNoPlan = errors.New("no plan produced")
	// ErrSchedulerClosed is returned by Submit after Close.
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// DependencyUnmetError lists the dependencies of a task that are not completed.
type DependencyUnmetError struct {
	TaskID  string
	Missing []string
}

func (e *DependencyUnmetError) Error() string {
	return fmt.Sprintf("task %s: %s: %s", e.TaskID, ErrDependencyUnmet, strings.Join(e.Missing, ", "))
}

// Is reports whether target is ErrDependencyUnmet.
func (e *DependencyUnmetError) Is(target error) bool {
	return target == ErrDependencyUnmet
}
