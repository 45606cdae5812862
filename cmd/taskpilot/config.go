package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/taskpilot/internal/config"
)

var configProject bool

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify taskpilot configuration.

Without arguments, displays the effective configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value and saves it.

Configuration is stored at ~/.config/taskpilot/config.yaml.
Project-specific overrides can be placed in .taskpilot.yaml (use --project).
API keys are read from the environment or the config file but never saved.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			displayAllConfig(out, cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			return setConfigKey(out, cfg, args[0], args[1])
		}
	},
}

func init() {
	configCmd.Flags().BoolVar(&configProject, "project", false, "Save to .taskpilot.yaml in the current directory")
}

// configKey binds a dot-notation key to a config field.
type configKey struct {
	name string
	get  func(c *config.Config) string
	set  func(c *config.Config, value string) error
}

func intKey(name string, field func(c *config.Config) *int) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *config.Config, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid integer for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatKey(name string, field func(c *config.Config) *float64) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return strconv.FormatFloat(*field(c), 'f', -1, 64) },
		set: func(c *config.Config, value string) error {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("invalid number for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

func boolKey(name string, field func(c *config.Config) *bool) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *config.Config, value string) error {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid boolean for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func durationKey(name string, field func(c *config.Config) *time.Duration) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return field(c).String() },
		set: func(c *config.Config, value string) error {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration for %s: %w", name, err)
			}
			*field(c) = d
			return nil
		},
	}
}

func stringKey(name string, field func(c *config.Config) *string) configKey {
	return configKey{
		name: name,
		get:  func(c *config.Config) string { return *field(c) },
		set: func(c *config.Config, value string) error {
			*field(c) = value
			return nil
		},
	}
}

var configKeys = []configKey{
	intKey("engine.max_iterations", func(c *config.Config) *int { return &c.Engine.MaxIterations }),
	durationKey("engine.max_duration", func(c *config.Config) *time.Duration { return &c.Engine.MaxDuration }),
	floatKey("engine.quality_threshold", func(c *config.Config) *float64 { return &c.Engine.QualityThreshold }),
	intKey("engine.soft_iteration_budget", func(c *config.Config) *int { return &c.Engine.SoftIterationBudget }),
	intKey("engine.stagnation_window", func(c *config.Config) *int { return &c.Engine.StagnationWindow }),
	floatKey("engine.stagnation_spread", func(c *config.Config) *float64 { return &c.Engine.StagnationSpread }),
	floatKey("engine.error_rate_threshold", func(c *config.Config) *float64 { return &c.Engine.ErrorRateThreshold }),
	intKey("engine.evaluation_interval", func(c *config.Config) *int { return &c.Engine.EvaluationInterval }),
	floatKey("engine.evaluation_progress", func(c *config.Config) *float64 { return &c.Engine.EvaluationProgress }),
	intKey("engine.max_steps_per_iteration", func(c *config.Config) *int { return &c.Engine.MaxStepsPerIteration }),
	floatKey("engine.cost_per_call", func(c *config.Config) *float64 { return &c.Engine.CostPerCall }),
	stringKey("agent.command", func(c *config.Config) *string { return &c.Agent.Command }),
	intKey("agent.max_turns", func(c *config.Config) *int { return &c.Agent.MaxTurns }),
	boolKey("agent.auto_approve", func(c *config.Config) *bool { return &c.Agent.AutoApprove }),
	durationKey("agent.timeout", func(c *config.Config) *time.Duration { return &c.Agent.Timeout }),
	stringKey("agent.work_dir", func(c *config.Config) *string { return &c.Agent.WorkDir }),
	durationKey("agent.session_idle_timeout", func(c *config.Config) *time.Duration { return &c.Agent.SessionIdleTimeout }),
	stringKey("llm.provider", func(c *config.Config) *string { return &c.LLM.Provider }),
	stringKey("llm.model", func(c *config.Config) *string { return &c.LLM.Model }),
	intKey("llm.max_tokens", func(c *config.Config) *int { return &c.LLM.MaxTokens }),
	boolKey("llm.bedrock.enabled", func(c *config.Config) *bool { return &c.LLM.Bedrock.Enabled }),
	stringKey("llm.bedrock.region", func(c *config.Config) *string { return &c.LLM.Bedrock.Region }),
	stringKey("llm.bedrock.profile", func(c *config.Config) *string { return &c.LLM.Bedrock.Profile }),
	boolKey("quality.test", func(c *config.Config) *bool { return &c.Quality.Test }),
	boolKey("quality.build", func(c *config.Config) *bool { return &c.Quality.Build }),
	boolKey("quality.lint", func(c *config.Config) *bool { return &c.Quality.Lint }),
	boolKey("quality.typecheck", func(c *config.Config) *bool { return &c.Quality.Typecheck }),
	durationKey("quality.gate_timeout", func(c *config.Config) *time.Duration { return &c.Quality.GateTimeout }),
	boolKey("state.enabled", func(c *config.Config) *bool { return &c.State.Enabled }),
	stringKey("state.driver", func(c *config.Config) *string { return &c.State.Driver }),
	stringKey("state.path", func(c *config.Config) *string { return &c.State.Path }),
	stringKey("events.bus", func(c *config.Config) *string { return &c.Events.Bus }),
	stringKey("events.address", func(c *config.Config) *string { return &c.Events.Address }),
	stringKey("events.subject", func(c *config.Config) *string { return &c.Events.Subject }),
	boolKey("signals.enabled", func(c *config.Config) *bool { return &c.Signals.Enabled }),
	stringKey("signals.dir", func(c *config.Config) *string { return &c.Signals.Dir }),
	stringKey("logging.level", func(c *config.Config) *string { return &c.Logging.Level }),
	stringKey("logging.dir", func(c *config.Config) *string { return &c.Logging.Dir }),
}

func lookupConfigKey(key string) (configKey, bool) {
	key = strings.ToLower(key)
	for _, k := range configKeys {
		if k.name == key {
			return k, true
		}
	}
	return configKey{}, false
}

// displayAllConfig prints all configuration values.
func displayAllConfig(w io.Writer, c *config.Config) {
	key, _ := config.GetAPIKey(c)
	fmt.Fprintf(w, "llm.api_key: %s (%s)\n", config.MaskAPIKey(key), config.GetAPIKeySource(c))
	for _, k := range configKeys {
		fmt.Fprintf(w, "%s: %s\n", k.name, k.get(c))
	}
	if len(c.Agent.AllowedTools) > 0 {
		fmt.Fprintf(w, "agent.allowed_tools: %s\n", strings.Join(c.Agent.AllowedTools, ","))
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(c *config.Config, key string) (string, error) {
	if strings.EqualFold(key, "llm.api_key") {
		k, _ := config.GetAPIKey(c)
		return config.MaskAPIKey(k), nil
	}
	k, ok := lookupConfigKey(key)
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return k.get(c), nil
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(c *config.Config, key, value string) error {
	k, ok := lookupConfigKey(key)
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return k.set(c, value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(w io.Writer, c *config.Config, key, value string) error {
	if err := setConfigValue(c, key, value); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	var err error
	if configProject {
		err = config.SaveTo(c, config.ProjectConfigName)
	} else {
		err = config.Save(c)
	}
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintf(w, "Set %s = %s\n", key, value)
	return nil
}
