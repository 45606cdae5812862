package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/state"
	"github.com/ShayCichocki/taskpilot/pkg/models"
)

var (
	historyStatus string
	historyLimit  int
	historyPurge  time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show a recorded task",
	Long: `Show a task from the history database with its iterations and errors.

Tasks are recorded when they start and again when they finish, so a task
from a run that is still active shows its status at start.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded tasks",
	Long: `List tasks from the history database, newest first.

Examples:
  taskpilot history
  taskpilot history --status failed --limit 5
  taskpilot history --purge 720h   # delete records older than 30 days`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only show tasks with this status")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of tasks to show (0 for all)")
	historyCmd.Flags().DurationVar(&historyPurge, "purge", 0, "Delete records older than this before listing")
}

// errNoHistory is returned when the history database has not been created.
var errNoHistory = errors.New("no history recorded yet; run 'taskpilot run <taskfile>' first")

// historyPath resolves the configured history database path.
func historyPath(c *config.Config) (string, error) {
	if c.State.Path != "" {
		return c.State.Path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return state.DefaultPath(cwd), nil
}

// openHistory opens an existing history database for reading.
func openHistory(c *config.Config) (*state.DB, error) {
	path, err := historyPath(c)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errNoHistory
	}

	db, err := state.Open(c.State.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return db, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := db.GetTask(args[0])
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return fmt.Errorf("task %s is not in the history", args[0])
		}
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTaskDetail(rec.Context))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	status := models.TaskStatus(historyStatus)
	if historyStatus != "" && !status.Valid() {
		return fmt.Errorf("unknown status %q", historyStatus)
	}

	db, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if historyPurge > 0 {
		n, err := db.PurgeOlderThan(historyPurge)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Purged %d task(s) older than %s\n\n", n, historyPurge)
	}

	records, err := db.ListTasks(state.ListOptions{Status: status, Limit: historyLimit})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No tasks recorded.")
		return nil
	}

	rows := make([]summaryRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, summaryRow{
			ID:         r.ID,
			Title:      r.Title,
			Status:     r.Status,
			Iterations: r.Iterations,
			Score:      r.QualityScore,
			Cost:       r.EstimatedCost,
			Duration:   elapsed(r.StartedAt, r.EndedAt),
		})
	}
	fmt.Fprint(out, renderTable(rows))
	return nil
}
