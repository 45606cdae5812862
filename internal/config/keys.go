package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured for the selected provider.
var ErrNoAPIKey = errors.New("no API key configured")

// Provider names accepted by llm.provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// envVarFor returns the conventional environment variable for a provider.
func envVarFor(provider string) string {
	if provider == ProviderGemini {
		return "GOOGLE_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// configuredKey returns the key set in the config file for the selected provider.
func configuredKey(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	raw := cfg.LLM.APIKey
	if cfg.LLM.Provider == ProviderGemini {
		raw = cfg.LLM.GeminiAPIKey
	}
	key := os.ExpandEnv(raw)
	if key == "" || strings.HasPrefix(key, "${") {
		return ""
	}
	return key
}

func provider(cfg *Config) string {
	if cfg == nil || cfg.LLM.Provider == "" {
		return ProviderAnthropic
	}
	return cfg.LLM.Provider
}

// GetAPIKey returns the API key for the configured provider.
// It checks in order: environment variable, config file.
func GetAPIKey(cfg *Config) (string, error) {
	if key := os.Getenv(envVarFor(provider(cfg))); key != "" {
		return key, nil
	}

	if key := configuredKey(cfg); key != "" {
		return key, nil
	}

	return "", ErrNoAPIKey
}

// ValidateAPIKey performs basic format validation on an Anthropic API key.
// It does not verify the key with the provider.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}

	if !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}

	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}

	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// GetAPIKeySource returns where the API key was sourced from.
func GetAPIKeySource(cfg *Config) KeySource {
	if os.Getenv(envVarFor(provider(cfg))) != "" {
		return KeySourceEnv
	}

	if configuredKey(cfg) != "" {
		return KeySourceConfig
	}

	return KeySourceNone
}
