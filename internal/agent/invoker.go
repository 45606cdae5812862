// Package agent wraps round-trips to the external AI coding agent.
//
// The Invoker interface is the boundary the orchestrator depends on. ClaudeInvoker
// is the production implementation that spawns the claude CLI and parses its
// stream-json output; tests use the scripted fake in internal/testutil.
package agent

import (
	"context"
	"time"
)

// Options controls a single invocation.
type Options struct {
	// MaxTurns bounds the agent's internal tool-use turns. Zero means the CLI default.
	MaxTurns int
	// AutoApprove skips the agent's permission prompts.
	AutoApprove bool
	// Timeout bounds the whole invocation. Zero means no timeout.
	Timeout time.Duration
	// SessionID continues or starts a named agent session when set.
	SessionID string
	// Resume is true when SessionID refers to an existing session.
	Resume bool
	// OnEvent, when set, receives every parsed stream event in order.
	OnEvent func(StreamEvent)
}

// Result is the terminal output of a successful invocation.
type Result struct {
	// Content is the agent's final text.
	Content string
	// Duration is the wall-clock time of the invocation.
	Duration time.Duration
	// Artifacts lists files the agent wrote or edited.
	Artifacts []string
}

// Invoker sends a prompt to the agent and waits for exactly one terminal
// result or a typed failure (ErrTimeout, ErrNotFound, *ProcessError).
type Invoker interface {
	Invoke(ctx context.Context, prompt string, opts Options) (*Result, error)
	// Cancel stops any in-flight invocation.
	Cancel()
}
