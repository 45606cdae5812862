package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/agent"
	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// StepOptions controls how each step invokes the agent.
type StepOptions struct {
	MaxTurns    int
	AutoApprove bool
	Timeout     time.Duration
}

// StepExecutor turns one planned step into one agent invocation.
type StepExecutor struct {
	invoker  agent.Invoker
	sessions *agent.SessionManager
	opts     StepOptions
	emitter  *EventEmitter
	clock    Clock
	logger   *logging.Logger
}

// NewStepExecutor creates a StepExecutor. sessions may be nil, in which case
// every step runs without a named agent session.
func NewStepExecutor(invoker agent.Invoker, sessions *agent.SessionManager, opts StepOptions) *StepExecutor {
	return &StepExecutor{
		invoker:  invoker,
		sessions: sessions,
		opts:     opts,
		clock:    realClock{},
	}
}

// Execute runs step for task and returns the finished step. On failure the
// step is marked failed with the error text as output, and the error is
// returned so the caller can record it.
func (x *StepExecutor) Execute(ctx context.Context, task models.Task, iteration int, step models.ExecutionStep) (models.ExecutionStep, error) {
	logger := x.logger.WithTask(task.ID).With("iteration", iteration, "step", step.Index)

	start := x.clock.Now()
	step.StartTime = &start
	step.Status = models.StepStatusRunning

	opts := agent.Options{
		MaxTurns:    x.opts.MaxTurns,
		AutoApprove: x.opts.AutoApprove,
		Timeout:     x.opts.Timeout,
		OnEvent:     x.streamTo(task, iteration, step.Index),
	}
	if x.sessions != nil {
		sess := x.sessions.Acquire(task.ID)
		defer x.sessions.Release(task.ID)
		opts.SessionID = sess.ID
		opts.Resume = sess.Started
	}

	logger.Debug("invoking agent", "type", step.Type, "resume", opts.Resume)
	result, err := x.invoker.Invoke(ctx, BuildStepPrompt(task, step), opts)

	end := x.clock.Now()
	step.EndTime = &end

	if err != nil {
		step.Status = models.StepStatusFailed
		step.Output = err.Error()
		logger.Warn("step failed", "kind", agent.Kind(err), "error", err)
		return step, err
	}

	if x.sessions != nil {
		x.sessions.MarkStarted(task.ID)
	}
	step.Status = models.StepStatusCompleted
	step.Output = result.Content
	step.Artifacts = append([]string(nil), result.Artifacts...)
	logger.Debug("step completed", "artifacts", len(step.Artifacts), "duration", result.Duration)
	return step, nil
}

// CloseSession ends the agent session held for taskID.
func (x *StepExecutor) CloseSession(taskID string) {
	if x.sessions != nil {
		x.sessions.Close(taskID)
	}
}

// streamTo forwards agent stream events to the emitter as stepOutput events.
func (x *StepExecutor) streamTo(task models.Task, iteration, stepIndex int) func(agent.StreamEvent) {
	if x.emitter == nil {
		return nil
	}
	return func(ev agent.StreamEvent) {
		msg := ev.ToolAction
		if msg == "" {
			msg = strings.TrimSpace(ev.Message)
		}
		if msg == "" && ev.Error != "" {
			msg = ev.Error
		}
		if msg == "" {
			return
		}
		x.emitter.Emit(Event{
			Type:      EventStepOutput,
			TaskID:    task.ID,
			TaskTitle: task.Title,
			Status:    models.TaskStatusExecuting,
			Iteration: iteration,
			StepIndex: stepIndex,
			Message:   msg,
		})
	}
}

// stepError converts a step failure into a TaskError.
func stepError(err error, iteration int, step models.ExecutionStep) models.TaskError {
	kind := agent.Kind(err)
	severity := models.SeverityMedium
	recovery := ""
	switch {
	case errors.Is(err, agent.ErrTimeout):
		recovery = "Increase agent.timeout or split the step"
	case errors.Is(err, agent.ErrNotFound):
		severity = models.SeverityHigh
		recovery = "Install the agent CLI or set agent.command"
	case kind == models.ErrorKindProcessError:
		severity = models.SeverityHigh
	}
	var procErr *agent.ProcessError
	details := ""
	if errors.As(err, &procErr) {
		details = procErr.Stderr
	}
	return models.TaskError{
		Type:      models.ErrorTypeExecution,
		Severity:  severity,
		Kind:      kind,
		Message:   fmt.Sprintf("step %d failed: %v", step.Index+1, err),
		Details:   details,
		Recovery:  recovery,
		Iteration: iteration,
	}
}
