package llm

import (
	"fmt"
	"sync"
)

// Pricing is the USD price per million tokens for a provider.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// Approximate list prices for the default models.
var (
	AnthropicPricing = Pricing{InputPerMillion: 3, OutputPerMillion: 15}
	GeminiPricing    = Pricing{InputPerMillion: 1.25, OutputPerMillion: 5}
)

// Usage is a point-in-time view of a TokenTracker.
type Usage struct {
	Calls        int
	InputTokens  int64
	OutputTokens int64
	Cost         float64
}

func (u Usage) String() string {
	return fmt.Sprintf("%d planner calls, %d input / %d output tokens, about $%.2f",
		u.Calls, u.InputTokens, u.OutputTokens, u.Cost)
}

// TokenTracker accumulates token usage across generation calls. It is safe
// for concurrent use.
type TokenTracker struct {
	pricing Pricing

	mu    sync.Mutex
	usage Usage
}

// NewTokenTracker creates a tracker that prices usage with p.
func NewTokenTracker(p Pricing) *TokenTracker {
	return &TokenTracker{pricing: p}
}

// Add records token usage from one call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.Calls++
	t.usage.InputTokens += input
	t.usage.OutputTokens += output
	t.usage.Cost = float64(t.usage.InputTokens)/1e6*t.pricing.InputPerMillion +
		float64(t.usage.OutputTokens)/1e6*t.pricing.OutputPerMillion
}

// Snapshot returns the usage recorded so far.
func (t *TokenTracker) Snapshot() Usage {
	if t == nil {
		return Usage{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}
