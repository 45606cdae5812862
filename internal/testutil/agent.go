// Package testutil provides deterministic in-memory collaborators for tests:
// a scripted agent Invoker, a scripted text Generator and a scripted quality Evaluator.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/agent"
)

// Response is one scripted agent reply.
type Response struct {
	// Content is returned as Result.Content when Err is nil.
	Content string
	// Artifacts is returned as Result.Artifacts when Err is nil.
	Artifacts []string
	// Err fails the invocation when set.
	Err error
	// Events are delivered to Options.OnEvent before the reply.
	Events []agent.StreamEvent
	// Block, when set, holds the reply until the channel is closed or the
	// context is done.
	Block <-chan struct{}
}

// InvokeCall records one Invoke call.
type InvokeCall struct {
	Prompt  string
	Options agent.Options
}

// FakeInvoker replays scripted responses in order. Once the script is
// exhausted it keeps returning Default.
type FakeInvoker struct {
	mu        sync.Mutex
	responses []Response
	calls     []InvokeCall
	cancels   int

	// Default is returned when no scripted responses remain.
	Default Response
	// Started, when set, receives the prompt of each call as it starts.
	Started chan string
}

var _ agent.Invoker = (*FakeInvoker)(nil)

// NewFakeInvoker creates a FakeInvoker that replays responses.
func NewFakeInvoker(responses ...Response) *FakeInvoker {
	return &FakeInvoker{
		responses: responses,
		Default:   Response{Content: "done"},
	}
}

// Push appends responses to the script.
func (f *FakeInvoker) Push(responses ...Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, responses...)
}

// Invoke returns the next scripted response.
func (f *FakeInvoker) Invoke(ctx context.Context, prompt string, opts agent.Options) (*agent.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, InvokeCall{Prompt: prompt, Options: opts})
	resp := f.Default
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	started := f.Started
	f.mu.Unlock()

	if started != nil {
		started <- prompt
	}

	start := time.Now()
	if resp.Block != nil {
		select {
		case <-resp.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if opts.OnEvent != nil {
		for _, ev := range resp.Events {
			opts.OnEvent(ev)
		}
	}

	if resp.Err != nil {
		return nil, resp.Err
	}
	return &agent.Result{
		Content:   resp.Content,
		Duration:  time.Since(start),
		Artifacts: append([]string(nil), resp.Artifacts...),
	}, nil
}

// Cancel counts cancellation requests.
func (f *FakeInvoker) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

// Calls returns a copy of the recorded calls.
func (f *FakeInvoker) Calls() []InvokeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]InvokeCall(nil), f.calls...)
}

// CallCount returns the number of Invoke calls.
func (f *FakeInvoker) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Cancels returns the number of Cancel calls.
func (f *FakeInvoker) Cancels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancels
}
