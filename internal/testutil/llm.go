package testutil

import (
	"context"
	"sync"

	"github.com/ShayCichocki/taskpilot/internal/llm"
)

// GenerateCall records one Generate call.
type GenerateCall struct {
	System string
	Prompt string
}

// FakeGenerator answers Generate calls with Handler when set, otherwise from a
// queue of replies, otherwise with Default.
type FakeGenerator struct {
	mu      sync.Mutex
	replies []Reply
	calls   []GenerateCall

	// Handler, when set, answers every call.
	Handler func(system, prompt string) (string, error)
	// Default is returned when no handler is set and the queue is empty.
	Default string
}

// Reply is one queued generator answer.
type Reply struct {
	Text string
	Err  error
}

var _ llm.Generator = (*FakeGenerator)(nil)

// NewFakeGenerator creates a FakeGenerator with queued replies.
func NewFakeGenerator(replies ...Reply) *FakeGenerator {
	return &FakeGenerator{replies: replies}
}

// Generate returns the next answer.
func (f *FakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.calls = append(f.calls, GenerateCall{System: system, Prompt: prompt})
	handler := f.Handler
	reply := Reply{Text: f.Default}
	if handler == nil && len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	if handler != nil {
		return handler(system, prompt)
	}
	return reply.Text, reply.Err
}

// Calls returns a copy of the recorded calls.
func (f *FakeGenerator) Calls() []GenerateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GenerateCall(nil), f.calls...)
}

// CallCount returns the number of Generate calls.
func (f *FakeGenerator) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
