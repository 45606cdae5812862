package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/taskpilot/internal/graph"
	"github.com/ShayCichocki/taskpilot/internal/orchestrator"
	"github.com/ShayCichocki/taskpilot/internal/signals"
	"github.com/ShayCichocki/taskpilot/internal/taskfile"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	runDryRun    bool
	runVerbose   bool
	runNoHistory bool
)

var runCmd = &cobra.Command{
	Use:   "run <taskfile>",
	Short: "Run the tasks in a task file",
	Long: `Run every task in a YAML task file through the agent.

Tasks run one at a time. A task starts only after all of its dependencies
have completed; dependents of a task that fails, escalates or is cancelled
are reported as blocked and never run.

While a run is active, 'taskpilot signal' can cancel a task or pause and
resume the queue. Ctrl-C cancels the remaining tasks and exits after the
current agent call stops.

Examples:
  taskpilot run tasks.yaml
  taskpilot run tasks.yaml --dry-run   # validate and show the run order`,
	Args: cobra.ExactArgs(1),
	RunE: runTasks,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Validate the task file and print the run order")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print agent output as it streams")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Do not record tasks in the history database")
}

func runTasks(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	tasks, err := taskfile.Load(args[0])
	if err != nil {
		return err
	}
	if runDryRun {
		return printRunOrder(cmd, tasks)
	}

	if err := CheckAgentCLI(cfg.Agent.Command); err != nil {
		return err
	}

	logger, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	if runNoHistory {
		cfg.State.Enabled = false
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.emitter.Subscribe(newProgressPrinter(out, runVerbose).Handle)

	logger.Info("run started", "taskfile", args[0], "tasks", len(tasks))
	fmt.Fprintf(out, "Running %d task(s) from %s\n\n", len(tasks), args[0])

	g, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()

	if cfg.Signals.Enabled {
		w, err := signals.NewWatcher(cfg.Signals.Dir, a.scheduler, logger)
		if err != nil {
			a.Close()
			return err
		}
		g.Go(func() error { return w.Run(watchCtx) })
	}

	var result *orchestrator.BatchResult
	g.Go(func() error {
		defer stopWatch()
		r, err := orchestrator.NewBatchRunner(a.scheduler, logger.WithPhase("batch")).Run(gctx, tasks)
		result = r
		return err
	})

	runErr := g.Wait()
	interrupted := ctx.Err() != nil
	if interrupted {
		fmt.Fprintln(out, "\nReceived interrupt, cancelling remaining tasks...")
		a.Interrupt()
	}
	a.Close()

	var blocked []string
	if result != nil {
		blocked = result.Blocked
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderSummary(a.scheduler.Tasks(), blocked))
	usage := a.tracker.Snapshot()
	if usage.Calls > 0 {
		fmt.Fprintln(out, mutedStyle.Render("Planner: "+usage.String()))
	}
	logger.Info("run finished", "interrupted", interrupted, "planner_calls", usage.Calls, "planner_cost", usage.Cost)

	switch {
	case interrupted:
		return errors.New("run interrupted")
	case runErr != nil:
		return runErr
	case result != nil && !result.Succeeded():
		return fmt.Errorf("%d of %d task(s) did not complete", len(tasks)-len(result.Completed), len(tasks))
	}
	printStatus(out, "✓", "All tasks completed", color.FgGreen)
	return nil
}

// printRunOrder validates the dependency graph and prints the order tasks
// would run in.
func printRunOrder(cmd *cobra.Command, tasks []models.Task) error {
	out := cmd.OutOrStdout()

	g := graph.New()
	if err := g.Build(tasks); err != nil {
		return fmt.Errorf("invalid task graph: %w", err)
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return fmt.Errorf("invalid task graph: %w", err)
	}

	printStatus(out, "✓", fmt.Sprintf("%d task(s) are valid", len(tasks)), color.FgGreen)
	fmt.Fprintln(out)
	for i, id := range order {
		task, _ := g.GetTask(id)
		line := fmt.Sprintf("%2d. %s  %s", i+1, id, task.Title)
		if deps := g.GetDependencies(id); len(deps) > 0 {
			line += mutedStyle.Render(fmt.Sprintf("  (after %v)", deps))
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
