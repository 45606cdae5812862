package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the agent produces no terminal result within the timeout.
	ErrTimeout = errors.New("agent invocation timed out")
	// ErrNotFound is returned when the agent executable cannot be located.
	ErrNotFound = errors.New("agent executable not found")
	// ErrAlreadyStarted is returned when a process is started twice.
	ErrAlreadyStarted = errors.New("process already started")
)

// ProcessError is returned when the agent process exits unsuccessfully.
type ProcessError struct {
	// ExitCode is the process exit status, or -1 when unknown.
	ExitCode int
	// Stderr holds captured standard error, or the agent's error result text.
	Stderr string
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("agent process exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("agent process exited with code %d: %s", e.ExitCode, e.Stderr)
}

// Kind classifies an invocation error by name, e.g. "Timeout".
// Unknown errors are "Unclassified".
func Kind(err error) string {
	var procErr *ProcessError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.As(err, &procErr):
		return "ProcessError"
	default:
		return "Unclassified"
	}
}
