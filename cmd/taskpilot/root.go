package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/logging"
)

var (
	configPath string
	logLevel   string

	// cfg is resolved once per invocation in PersistentPreRunE.
	cfg *config.Config
)

// CheckAgentCLI verifies that the agent executable is available in PATH.
// Returns an error with installation instructions if not found.
func CheckAgentCLI(command string) error {
	if command == "" {
		command = "claude"
	}
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"taskpilot drives the Claude Code CLI to work on tasks.\n\n"+
			"Install it with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"or point agent.command at another executable", command)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "taskpilot",
	Short: "Iterative task runner for AI coding agents",
	Long: `taskpilot runs development tasks through an AI coding agent.

Each task is planned, executed step by step, scored by quality gates and
checked against its acceptance criteria. After every iteration taskpilot
decides whether to continue, complete, abort, or escalate to a human.

Tasks come from a YAML task file (see 'taskpilot init') and run one at a
time in dependency order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		var err error
		if configPath != "" {
			cfg, err = config.LoadFromPath(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openLogger opens the file logger configured in cfg.
func openLogger(c *config.Config) (*logging.Logger, error) {
	logger, err := logging.New(c.Logging.Dir, c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return logger, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config plus .taskpilot.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(signalCmd)
	rootCmd.AddCommand(versionCmd)
}
