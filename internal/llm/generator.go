// Package llm provides the text-generation collaborator used for planning
// and acceptance-criteria checks. Responses are opaque text; callers parse them.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKey is returned when the selected provider has no credentials.
	ErrNoAPIKey = errors.New("no API key configured for LLM provider")
	// ErrUnknownProvider is returned for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown LLM provider")
)

// Generator produces text for a system instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	// Provider is "anthropic" or "gemini".
	Provider string
	// Model overrides the provider default model.
	Model string
	// APIKey is the Anthropic API key.
	APIKey string
	// GeminiAPIKey is the Google AI API key.
	GeminiAPIKey string
	// MaxTokens bounds each response.
	MaxTokens int
	// UseBedrock routes Anthropic calls through AWS Bedrock.
	UseBedrock bool
	// AWSRegion and AWSProfile configure Bedrock credentials.
	AWSRegion  string
	AWSProfile string
}

// New returns the Generator for cfg.Provider along with its token tracker.
func New(ctx context.Context, cfg Config) (Generator, *TokenTracker, error) {
	switch cfg.Provider {
	case "", "anthropic":
		g, err := NewAnthropicGenerator(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Tracker(), nil
	case "gemini":
		g, err := NewGeminiGenerator(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Tracker(), nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
