package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/taskpilot/internal/agent"
	"github.com/ShayCichocki/taskpilot/internal/bus"
	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/llm"
	"github.com/ShayCichocki/taskpilot/internal/logging"
	"github.com/ShayCichocki/taskpilot/internal/orchestrator"
	"github.com/ShayCichocki/taskpilot/internal/quality"
	"github.com/ShayCichocki/taskpilot/internal/state"
)

// app holds the components of one `taskpilot run`.
type app struct {
	logger    *logging.Logger
	invoker   agent.Invoker
	tracker   *llm.TokenTracker
	emitter   *orchestrator.EventEmitter
	engine    *orchestrator.Engine
	scheduler *orchestrator.Scheduler

	db        *state.DB
	recorder  *state.Recorder
	bus       bus.Bus
	forwarder *bus.Forwarder

	closers []func() error
}

// llmConfig maps the llm config section to a provider config.
func llmConfig(c *config.Config) llm.Config {
	apiKey := c.LLM.APIKey
	if key, err := config.GetAPIKey(c); err == nil {
		apiKey = key
	}
	return llm.Config{
		Provider:     c.LLM.Provider,
		Model:        c.LLM.Model,
		APIKey:       apiKey,
		GeminiAPIKey: c.LLM.GeminiAPIKey,
		MaxTokens:    c.LLM.MaxTokens,
		UseBedrock:   c.LLM.Bedrock.Enabled,
		AWSRegion:    c.LLM.Bedrock.Region,
		AWSProfile:   c.LLM.Bedrock.Profile,
	}
}

// newEvaluator builds the gate evaluator, or nil when every gate is off.
func newEvaluator(c *config.Config, workDir string, logger *logging.Logger) quality.Evaluator {
	q := c.Quality
	if !q.Test && !q.Build && !q.Lint && !q.Typecheck {
		return nil
	}
	gates := quality.NewQualityGates(workDir)
	gates.EnableTest(q.Test)
	gates.EnableBuild(q.Build)
	gates.EnableLint(q.Lint)
	gates.EnableTypecheck(q.Typecheck)
	if q.GateTimeout > 0 {
		gates.SetTimeout(q.GateTimeout)
	}
	return quality.NewGateEvaluator(gates, logger.WithPhase("evaluate"))
}

// newApp wires the generator, agent, evaluator, engine and scheduler, then
// attaches the optional history store and event bus as subscribers.
func newApp(ctx context.Context, c *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{logger: logger}

	lc := llmConfig(c)
	if !lc.UseBedrock && (lc.Provider == "" || lc.Provider == config.ProviderAnthropic) {
		if err := config.ValidateAPIKey(lc.APIKey); err != nil && lc.APIKey != "" {
			logger.Warn("anthropic API key looks malformed", "key", config.MaskAPIKey(lc.APIKey), "error", err)
		}
	}

	gen, tracker, err := llm.New(ctx, lc)
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}
	a.tracker = tracker
	if closer, ok := gen.(interface{ Close() error }); ok {
		a.closers = append(a.closers, closer.Close)
	}

	workDir := c.Agent.WorkDir
	if workDir == "" {
		workDir = "."
	}
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}

	a.invoker = agent.NewClaudeInvoker(agent.ClaudeConfig{
		Command:      c.Agent.Command,
		WorkDir:      workDir,
		AllowedTools: c.Agent.AllowedTools,
		Logger:       logger.WithPhase("agent"),
	})
	sessions := agent.NewSessionManager(c.Agent.SessionIdleTimeout)
	sessions.SetOnExpire(func(taskID string) {
		logger.WithTask(taskID).Debug("agent session closed after idle timeout")
	})
	steps := orchestrator.NewStepExecutor(a.invoker, sessions, orchestrator.StepOptions{
		MaxTurns:    c.Agent.MaxTurns,
		AutoApprove: c.Agent.AutoApprove,
		Timeout:     c.Agent.Timeout,
	})

	a.emitter = orchestrator.NewEventEmitter(0, logger)
	a.engine = orchestrator.NewEngine(c.Engine, gen, steps, newEvaluator(c, workDir, logger),
		orchestrator.WithLogger(logger),
		orchestrator.WithEmitter(a.emitter),
	)

	if c.State.Enabled {
		if err := a.openHistory(c); err != nil {
			a.Close()
			return nil, err
		}
	}

	b, err := bus.New(c.Events)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect event bus: %w", err)
	}
	if b != nil {
		a.bus = b
		a.forwarder = bus.NewForwarder(b, c.Events.Subject, logger)
		a.emitter.Subscribe(a.forwarder.Handle)
	}

	a.scheduler = orchestrator.NewScheduler(a.engine, orchestrator.WithSchedulerLogger(logger.WithPhase("schedule")))
	return a, nil
}

// openHistory opens the history store, marks rows left by an interrupted
// run as cancelled, and subscribes a Recorder.
func (a *app) openHistory(c *config.Config) error {
	path := c.State.Path
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		path = state.DefaultPath(cwd)
	}

	db, err := state.Open(c.State.Driver, path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate history: %w", err)
	}
	interrupted, err := db.MarkInterrupted()
	if err != nil {
		db.Close()
		return fmt.Errorf("recover history: %w", err)
	}
	if len(interrupted) > 0 {
		a.logger.Warn("tasks from an interrupted run marked failed", "tasks", interrupted)
	}

	a.db = db
	a.recorder = state.NewRecorder(db, a.logger.WithPhase("history"))
	a.emitter.Subscribe(a.recorder.Handle)
	return nil
}

// Interrupt cancels every task that has not finished and kills the
// in-flight agent process.
func (a *app) Interrupt() {
	for _, tc := range a.scheduler.Tasks() {
		if tc.Status.IsTerminal() {
			continue
		}
		if err := a.scheduler.Cancel(tc.Task.ID); err != nil {
			a.logger.WithTask(tc.Task.ID).Debug("cancel on interrupt", "error", err)
		}
	}
	a.invoker.Cancel()
}

// Close stops the scheduler and releases every connection. Lifecycle
// events are flushed to the history store and bus before they close.
func (a *app) Close() {
	if a.scheduler != nil {
		a.scheduler.Close()
	}
	if a.emitter != nil {
		a.emitter.Close()
	}
	if a.forwarder != nil {
		a.forwarder.Close()
		if n := a.forwarder.Dropped(); n > 0 {
			a.logger.Warn("lifecycle events not published", "dropped", n)
		}
	}
	if a.bus != nil {
		a.bus.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	for _, closer := range a.closers {
		closer()
	}
}
