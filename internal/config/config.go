// Package config handles configuration loading and management for taskpilot.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when a loaded config fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// ProjectConfigName is the file searched for in the working directory and its parents.
const ProjectConfigName = ".taskpilot.yaml"

// Config holds all configuration for taskpilot.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Agent   AgentConfig   `mapstructure:"agent"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Quality QualityConfig `mapstructure:"quality"`
	State   StateConfig   `mapstructure:"state"`
	Events  EventsConfig  `mapstructure:"events"`
	Signals SignalsConfig `mapstructure:"signals"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// EngineConfig holds the iteration engine and continuation policy settings.
type EngineConfig struct {
	MaxIterations        int           `mapstructure:"max_iterations"`
	MaxDuration          time.Duration `mapstructure:"max_duration"`
	QualityThreshold     float64       `mapstructure:"quality_threshold"`
	SoftIterationBudget  int           `mapstructure:"soft_iteration_budget"`
	StagnationWindow     int           `mapstructure:"stagnation_window"`
	StagnationSpread     float64       `mapstructure:"stagnation_spread"`
	ErrorRateThreshold   float64       `mapstructure:"error_rate_threshold"`
	EvaluationInterval   int           `mapstructure:"evaluation_interval"`
	EvaluationProgress   float64       `mapstructure:"evaluation_progress"`
	MaxStepsPerIteration int           `mapstructure:"max_steps_per_iteration"`
	CostPerCall          float64       `mapstructure:"cost_per_call"`
}

// AgentConfig holds settings for the external coding agent.
type AgentConfig struct {
	Command            string        `mapstructure:"command"`
	MaxTurns           int           `mapstructure:"max_turns"`
	AutoApprove        bool          `mapstructure:"auto_approve"`
	Timeout            time.Duration `mapstructure:"timeout"`
	WorkDir            string        `mapstructure:"work_dir"`
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout"`
	AllowedTools       []string      `mapstructure:"allowed_tools"`
}

// LLMConfig holds settings for the planning and criteria-check model.
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"`
	Model        string        `mapstructure:"model"`
	APIKey       string        `mapstructure:"api_key"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Bedrock      BedrockConfig `mapstructure:"bedrock"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
}

// BedrockConfig holds AWS Bedrock settings for the Anthropic provider.
type BedrockConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
}

// QualityConfig holds quality gate toggles.
type QualityConfig struct {
	Test        bool          `mapstructure:"test"`
	Build       bool          `mapstructure:"build"`
	Lint        bool          `mapstructure:"lint"`
	Typecheck   bool          `mapstructure:"typecheck"`
	GateTimeout time.Duration `mapstructure:"gate_timeout"`
}

// StateConfig holds history store settings.
type StateConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	Path    string `mapstructure:"path"`
}

// EventsConfig holds lifecycle event bus settings.
type EventsConfig struct {
	Bus     string `mapstructure:"bus"`
	Address string `mapstructure:"address"`
	Subject string `mapstructure:"subject"`
}

// SignalsConfig holds the file-based signal channel settings.
type SignalsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	Dir   string `mapstructure:"dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (TASKPILOT_*, ANTHROPIC_API_KEY, GOOGLE_API_KEY)
// 2. Project config (.taskpilot.yaml in current directory or parent)
// 3. User config (~/.config/taskpilot/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	cfg.LLM.GeminiAPIKey = expandEnv(cfg.LLM.GeminiAPIKey)
	cfg.Events.Address = expandEnv(cfg.Events.Address)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.MaxIterations < 1 {
		return fmt.Errorf("%w: engine.max_iterations must be at least 1, got %d",
			ErrInvalidConfig, c.Engine.MaxIterations)
	}
	return nil
}

// bindEnv maps TASKPILOT_SECTION_KEY variables onto section.key and binds
// the provider-conventional API key variables.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("TASKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("llm.api_key", "TASKPILOT_LLM_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.gemini_api_key", "TASKPILOT_LLM_GEMINI_API_KEY", "GOOGLE_API_KEY")
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(cfg, filepath.Join(userConfigDir, "config.yaml"))
}

// SaveTo writes the configuration to path as YAML. API keys are never written.
func SaveTo(cfg *Config, path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("engine.max_iterations", cfg.Engine.MaxIterations)
	v.Set("engine.max_duration", cfg.Engine.MaxDuration.String())
	v.Set("engine.quality_threshold", cfg.Engine.QualityThreshold)
	v.Set("engine.soft_iteration_budget", cfg.Engine.SoftIterationBudget)
	v.Set("engine.stagnation_window", cfg.Engine.StagnationWindow)
	v.Set("engine.stagnation_spread", cfg.Engine.StagnationSpread)
	v.Set("engine.error_rate_threshold", cfg.Engine.ErrorRateThreshold)
	v.Set("engine.evaluation_interval", cfg.Engine.EvaluationInterval)
	v.Set("engine.evaluation_progress", cfg.Engine.EvaluationProgress)
	v.Set("engine.max_steps_per_iteration", cfg.Engine.MaxStepsPerIteration)
	v.Set("engine.cost_per_call", cfg.Engine.CostPerCall)
	v.Set("agent.command", cfg.Agent.Command)
	v.Set("agent.max_turns", cfg.Agent.MaxTurns)
	v.Set("agent.auto_approve", cfg.Agent.AutoApprove)
	v.Set("agent.timeout", cfg.Agent.Timeout.String())
	v.Set("agent.work_dir", cfg.Agent.WorkDir)
	v.Set("agent.session_idle_timeout", cfg.Agent.SessionIdleTimeout.String())
	v.Set("agent.allowed_tools", cfg.Agent.AllowedTools)
	v.Set("llm.provider", cfg.LLM.Provider)
	v.Set("llm.model", cfg.LLM.Model)
	v.Set("llm.max_tokens", cfg.LLM.MaxTokens)
	v.Set("llm.bedrock.enabled", cfg.LLM.Bedrock.Enabled)
	v.Set("llm.bedrock.region", cfg.LLM.Bedrock.Region)
	v.Set("llm.bedrock.profile", cfg.LLM.Bedrock.Profile)
	v.Set("quality.test", cfg.Quality.Test)
	v.Set("quality.build", cfg.Quality.Build)
	v.Set("quality.lint", cfg.Quality.Lint)
	v.Set("quality.typecheck", cfg.Quality.Typecheck)
	v.Set("quality.gate_timeout", cfg.Quality.GateTimeout.String())
	v.Set("state.enabled", cfg.State.Enabled)
	v.Set("state.driver", cfg.State.Driver)
	v.Set("state.path", cfg.State.Path)
	v.Set("events.bus", cfg.Events.Bus)
	v.Set("events.address", cfg.Events.Address)
	v.Set("events.subject", cfg.Events.Subject)
	v.Set("signals.enabled", cfg.Signals.Enabled)
	v.Set("signals.dir", cfg.Signals.Dir)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.dir", cfg.Logging.Dir)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("engine.max_iterations", d.Engine.MaxIterations)
	v.SetDefault("engine.max_duration", d.Engine.MaxDuration.String())
	v.SetDefault("engine.quality_threshold", d.Engine.QualityThreshold)
	v.SetDefault("engine.soft_iteration_budget", d.Engine.SoftIterationBudget)
	v.SetDefault("engine.stagnation_window", d.Engine.StagnationWindow)
	v.SetDefault("engine.stagnation_spread", d.Engine.StagnationSpread)
	v.SetDefault("engine.error_rate_threshold", d.Engine.ErrorRateThreshold)
	v.SetDefault("engine.evaluation_interval", d.Engine.EvaluationInterval)
	v.SetDefault("engine.evaluation_progress", d.Engine.EvaluationProgress)
	v.SetDefault("engine.max_steps_per_iteration", d.Engine.MaxStepsPerIteration)
	v.SetDefault("engine.cost_per_call", d.Engine.CostPerCall)

	v.SetDefault("agent.command", d.Agent.Command)
	v.SetDefault("agent.max_turns", d.Agent.MaxTurns)
	v.SetDefault("agent.auto_approve", d.Agent.AutoApprove)
	v.SetDefault("agent.timeout", d.Agent.Timeout.String())
	v.SetDefault("agent.work_dir", d.Agent.WorkDir)
	v.SetDefault("agent.session_idle_timeout", d.Agent.SessionIdleTimeout.String())
	v.SetDefault("agent.allowed_tools", d.Agent.AllowedTools)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.bedrock.enabled", d.LLM.Bedrock.Enabled)
	v.SetDefault("llm.bedrock.region", d.LLM.Bedrock.Region)
	v.SetDefault("llm.bedrock.profile", "")
	v.SetDefault("llm.gemini_api_key", "")

	v.SetDefault("quality.test", true)
	v.SetDefault("quality.build", true)
	v.SetDefault("quality.lint", true)
	v.SetDefault("quality.typecheck", true)
	v.SetDefault("quality.gate_timeout", d.Quality.GateTimeout.String())

	v.SetDefault("state.enabled", d.State.Enabled)
	v.SetDefault("state.driver", d.State.Driver)
	v.SetDefault("state.path", d.State.Path)

	v.SetDefault("events.bus", d.Events.Bus)
	v.SetDefault("events.address", "")
	v.SetDefault("events.subject", d.Events.Subject)

	v.SetDefault("signals.enabled", d.Signals.Enabled)
	v.SetDefault("signals.dir", d.Signals.Dir)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.Dir)
}

// getUserConfigDir returns the XDG config directory for taskpilot.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskpilot")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskpilot")
	}
	return filepath.Join(home, ".config", "taskpilot")
}

// findProjectConfig searches for .taskpilot.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxIterations:        10,
			MaxDuration:          30 * time.Minute,
			QualityThreshold:     85,
			SoftIterationBudget:  5,
			StagnationWindow:     3,
			StagnationSpread:     5,
			ErrorRateThreshold:   0.5,
			EvaluationInterval:   2,
			EvaluationProgress:   80,
			MaxStepsPerIteration: 8,
			CostPerCall:          0.05,
		},
		Agent: AgentConfig{
			Command:            "claude",
			MaxTurns:           10,
			AutoApprove:        false,
			Timeout:            60 * time.Second,
			WorkDir:            ".",
			SessionIdleTimeout: 10 * time.Minute,
			AllowedTools:       []string{"Read", "Write", "Edit", "Bash", "Glob", "Grep"},
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Bedrock: BedrockConfig{
				Region: "us-east-1",
			},
		},
		Quality: QualityConfig{
			Test:        true,
			Build:       true,
			Lint:        true,
			Typecheck:   true,
			GateTimeout: 5 * time.Minute,
		},
		State: StateConfig{
			Enabled: true,
			Driver:  "sqlite",
			Path:    filepath.Join(".taskpilot", "history.db"),
		},
		Events: EventsConfig{
			Bus:     "none",
			Subject: "taskpilot.events",
		},
		Signals: SignalsConfig{
			Enabled: true,
			Dir:     filepath.Join(".taskpilot", "signals"),
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(".taskpilot", "logs"),
		},
	}
}
