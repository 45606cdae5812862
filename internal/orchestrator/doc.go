// Package orchestrator drives development tasks through repeated
// plan, execute, evaluate and decide iterations.
//
// The package provides:
//   - Scheduler: FIFO admission with dependency gating and strictly serial execution
//   - Engine: the iteration loop, with iteration and duration caps
//   - MakeContinuationDecision: the pure continue/complete/abort/escalate policy
//   - Lifecycle and Registry: task state, owned by the engine and read through copies
//   - StepExecutor: one agent invocation per planned step
//   - BatchRunner: dependency-ordered submission of a whole task file
//
// Lifecycle events are published through an EventEmitter to subscribers
// such as the history recorder and the event bus publishers.
//
// Example usage:
//
//	steps := orchestrator.NewStepExecutor(invoker, agent.NewSessionManager(10*time.Minute), orchestrator.StepOptions{})
//	engine := orchestrator.NewEngine(cfg.Engine, generator, steps, evaluator)
//	sched := orchestrator.NewScheduler(engine)
//	defer sched.Close()
//	err := sched.Submit(task)
package orchestrator
