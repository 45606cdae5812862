package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/config"
	"github.com/ShayCichocki/taskpilot/internal/taskfile"
)

var (
	initForce          bool
	initSkipAgentCheck bool
	initTaskFileName   string
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a taskpilot project",
	Long: `Initialize a directory for use with taskpilot.

This command sets up everything needed to run taskpilot:
  - Verifies the agent CLI is installed
  - Creates the .taskpilot directory
  - Writes a .taskpilot.yaml project config with the defaults
  - Writes an example task file

The directory argument is optional and defaults to the current directory.

Examples:
  taskpilot init              # Initialize current directory
  taskpilot init ./myproject  # Initialize specific directory
  taskpilot init --force      # Overwrite existing config and task file`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetDir := "."
		if len(args) > 0 {
			targetDir = args[0]
		}
		return initProject(cmd.OutOrStdout(), targetDir)
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	initCmd.Flags().BoolVar(&initSkipAgentCheck, "skip-agent-check", false, "Skip the agent CLI availability check")
	initCmd.Flags().StringVar(&initTaskFileName, "tasks", "tasks.yaml", "Name of the example task file")
}

// initProject creates the project layout under dir.
func initProject(w io.Writer, dir string) error {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Fprintf(w, "Initializing taskpilot in %s...\n\n", absPath)

	agentCommand := "claude"
	if cfg != nil && cfg.Agent.Command != "" {
		agentCommand = cfg.Agent.Command
	}
	if !initSkipAgentCheck {
		if err := CheckAgentCLI(agentCommand); err != nil {
			printStatus(w, "✗", agentCommand+" CLI not found", color.FgRed)
			return err
		}
		printStatus(w, "✓", agentCommand+" CLI found", color.FgGreen)
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		printStatus(w, "⚠", "No LLM API key in the environment (you can set it later)", color.FgYellow)
	} else {
		printStatus(w, "✓", "LLM API key is set", color.FgGreen)
	}

	stateDir := filepath.Join(absPath, ".taskpilot")
	for _, d := range []string{stateDir, filepath.Join(stateDir, "logs"), filepath.Join(stateDir, "signals")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", d, err)
		}
	}
	printStatus(w, "✓", "Created .taskpilot directory", color.FgGreen)

	configFile := filepath.Join(absPath, config.ProjectConfigName)
	written, err := writeIfAbsent(configFile, func(path string) error {
		return config.SaveTo(config.Default(), path)
	})
	if err != nil {
		return err
	}
	reportWrite(w, config.ProjectConfigName, written)

	taskFile := filepath.Join(absPath, initTaskFileName)
	written, err = writeIfAbsent(taskFile, func(path string) error {
		data, err := taskfile.Marshal(taskfile.Sample())
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0644)
	})
	if err != nil {
		return err
	}
	reportWrite(w, initTaskFileName, written)

	if err := updateGitignore(absPath); err != nil {
		printStatus(w, "⚠", fmt.Sprintf("Could not update .gitignore: %v", err), color.FgYellow)
	} else {
		printStatus(w, "✓", "Updated .gitignore", color.FgGreen)
	}

	fmt.Fprintf(w, "\n%s taskpilot initialization complete!\n\n", color.GreenString("✓"))
	fmt.Fprintf(w, "Next: edit %s, then run 'taskpilot run %s'\n", initTaskFileName, initTaskFileName)
	return nil
}

// writeIfAbsent calls write unless path exists and --force is not set.
func writeIfAbsent(path string, write func(path string) error) (bool, error) {
	if _, err := os.Stat(path); err == nil && !initForce {
		return false, nil
	}
	if err := write(path); err != nil {
		return false, fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func reportWrite(w io.Writer, name string, written bool) {
	if written {
		printStatus(w, "✓", "Created "+name, color.FgGreen)
		return
	}
	printStatus(w, "·", name+" already exists (use --force to overwrite)", color.FgHiBlack)
}

// updateGitignore adds taskpilot entries to .gitignore if not present
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	entries := []string{
		".taskpilot/history.db*",
		".taskpilot/logs/",
		".taskpilot/signals/",
		".env",
	}

	var missing []string
	for _, entry := range entries {
		if !strings.Contains(existingContent, entry) {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)
	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}
	newContent.WriteString("\n# taskpilot\n")
	for _, entry := range missing {
		newContent.WriteString(entry + "\n")
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}
