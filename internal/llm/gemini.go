package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiGenerator calls Google's Gemini models.
type GeminiGenerator struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	tracker *TokenTracker
}

var _ Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a generator from cfg.
func NewGeminiGenerator(ctx context.Context, cfg Config) (*GeminiGenerator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, ErrNoAPIKey
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	name := cfg.Model
	if name == "" || strings.HasPrefix(name, "claude") {
		name = defaultGeminiModel
	}
	model := client.GenerativeModel(name)
	if cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}

	return &GeminiGenerator{
		client:  client,
		model:   model,
		tracker: NewTokenTracker(GeminiPricing),
	}, nil
}

// Tracker returns the token tracker for this generator.
func (g *GeminiGenerator) Tracker() *TokenTracker {
	return g.tracker
}

// Generate returns the text of the first candidate.
func (g *GeminiGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if system != "" {
		g.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if resp.UsageMetadata != nil {
		g.tracker.Add(int64(resp.UsageMetadata.PromptTokenCount), int64(resp.UsageMetadata.CandidatesTokenCount))
	} else {
		g.tracker.Add(0, 0)
	}
	return firstText(resp), nil
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

func firstText(r *genai.GenerateContentResponse) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Candidates {
		if c.Content == nil {
			continue
		}
		var parts []string
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				parts = append(parts, string(t))
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "")
		}
	}
	return ""
}
