package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/signals"
)

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Control a running taskpilot process",
	Long: `Send a control signal to a 'taskpilot run' in this project.

Signals are files in the signals directory (signals.dir), picked up by the
running process and removed once handled.`,
}

var signalCancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a queued or running task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := signals.Cancel(cfg.Signals.Dir, args[0]); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", fmt.Sprintf("Cancel requested for %s", args[0]), color.FgGreen)
		return nil
	},
}

var signalPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Stop starting new tasks after the current one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := signals.Pause(cfg.Signals.Dir); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", "Pause requested", color.FgGreen)
		return nil
	},
}

var signalResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue starting queued tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := signals.Resume(cfg.Signals.Dir); err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓", "Resume requested", color.FgGreen)
		return nil
	},
}

func init() {
	signalCmd.AddCommand(signalCancelCmd)
	signalCmd.AddCommand(signalPauseCmd)
	signalCmd.AddCommand(signalResumeCmd)
}
