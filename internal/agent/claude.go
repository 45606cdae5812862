package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/logging"
)

// ClaudeProcess manages one claude CLI subprocess.
type ClaudeProcess struct {
	command string
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  io.ReadCloser

	ctx        context.Context
	cancel     context.CancelFunc
	outputCh   chan StreamEvent
	stderrBuf  []byte
	once       sync.Once
	mu         sync.Mutex
	started    bool
	done       chan struct{}
	stderrDone chan struct{}
}

// NewClaudeProcess creates a ClaudeProcess that runs command.
// The context bounds the process lifetime.
func NewClaudeProcess(ctx context.Context, command string) *ClaudeProcess {
	if command == "" {
		command = "claude"
	}
	ctx, cancel := context.WithCancel(ctx)
	return &ClaudeProcess{
		command:    command,
		ctx:        ctx,
		cancel:     cancel,
		outputCh:   make(chan StreamEvent, 100),
		done:       make(chan struct{}),
		stderrDone: make(chan struct{}),
	}
}

// StartOptions contains the CLI flags for a single run.
type StartOptions struct {
	// Model is the model to use. If empty, uses the CLI's default model.
	Model string
	// MaxTurns is passed as --max-turns when positive.
	MaxTurns int
	// AutoApprove passes --dangerously-skip-permissions instead of --allowedTools.
	AutoApprove bool
	// AllowedTools are the tools allowed without prompting.
	AllowedTools []string
	// SessionID names the session; Resume selects --resume over --session-id.
	SessionID string
	Resume    bool
}

// buildArgs returns the CLI arguments for prompt.
func buildArgs(prompt string, opts *StartOptions) []string {
	args := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	}
	if opts == nil {
		opts = &StartOptions{}
	}

	if opts.AutoApprove {
		args = append(args, "--dangerously-skip-permissions")
	} else if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.SessionID != "" {
		if opts.Resume {
			args = append(args, "--resume", opts.SessionID)
		} else {
			args = append(args, "--session-id", opts.SessionID)
		}
	}

	// Prompt goes last
	return append(args, "-p", prompt)
}

// Start launches the subprocess with the given prompt in workDir.
func (p *ClaudeProcess) Start(prompt, workDir string, opts *StartOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	path, err := exec.LookPath(p.command)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, p.command)
	}

	p.cmd = exec.CommandContext(p.ctx, path, buildArgs(prompt, opts)...)
	if workDir != "" {
		p.cmd.Dir = workDir
	}

	p.stdout, err = p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	p.stderr, err = p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return fmt.Errorf("start process: %w", err)
	}

	p.started = true

	go p.readOutput()
	go p.readStderr()

	return nil
}

// readOutput reads and parses JSON events from stdout.
func (p *ClaudeProcess) readOutput() {
	defer close(p.done)
	defer close(p.outputCh)

	scanner := bufio.NewScanner(p.stdout)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		event, err := parseStreamEvent(append([]byte(nil), line...))
		if err != nil {
			event = StreamEvent{
				Type:  StreamEventError,
				Error: fmt.Sprintf("parse error: %v", err),
				Raw:   append([]byte(nil), line...),
			}
		}

		select {
		case p.outputCh <- event:
		case <-p.ctx.Done():
			return
		}
	}

	if err := scanner.Err(); err != nil && p.ctx.Err() == nil {
		select {
		case p.outputCh <- StreamEvent{Type: StreamEventError, Error: fmt.Sprintf("read error: %v", err)}:
		case <-p.ctx.Done():
		}
	}
}

// readStderr captures stderr so it can be attached to a ProcessError.
func (p *ClaudeProcess) readStderr() {
	defer close(p.stderrDone)

	scanner := bufio.NewScanner(p.stderr)
	buf := make([]byte, 16*1024)
	scanner.Buffer(buf, 256*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		p.mu.Lock()
		p.stderrBuf = append(p.stderrBuf, line...)
		p.stderrBuf = append(p.stderrBuf, '\n')
		p.mu.Unlock()
	}
}

// Output returns a channel that receives stream events from the process.
// The channel is closed when stdout is exhausted or the process is killed.
func (p *ClaudeProcess) Output() <-chan StreamEvent {
	return p.outputCh
}

// Wait waits for the process to exit. A non-zero exit is returned as *ProcessError.
func (p *ClaudeProcess) Wait() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return fmt.Errorf("process not started")
	}
	p.mu.Unlock()

	<-p.done
	<-p.stderrDone

	err := p.cmd.Wait()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ProcessError{ExitCode: exitErr.ExitCode(), Stderr: strings.TrimSpace(p.Stderr())}
	}
	return fmt.Errorf("wait for process: %w", err)
}

// Kill terminates the process immediately.
func (p *ClaudeProcess) Kill() error {
	p.once.Do(func() {
		p.cancel()
	})

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.cmd.Process == nil {
		return nil
	}

	return p.cmd.Process.Kill()
}

// Stderr returns any stderr output captured from the process.
func (p *ClaudeProcess) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.stderrBuf)
}

// PID returns the process ID of the subprocess, or 0 if not started.
func (p *ClaudeProcess) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// ClaudeConfig configures a ClaudeInvoker.
type ClaudeConfig struct {
	// Command is the executable name or path. Defaults to "claude".
	Command string
	// WorkDir is the directory the agent runs in.
	WorkDir string
	// Model overrides the CLI default model.
	Model string
	// AllowedTools are passed via --allowedTools unless auto-approve is set.
	AllowedTools []string
	// Logger receives invocation diagnostics. May be nil.
	Logger *logging.Logger
}

// ClaudeInvoker implements Invoker by spawning the claude CLI once per call.
type ClaudeInvoker struct {
	cfg ClaudeConfig

	mu      sync.Mutex
	current *ClaudeProcess
}

var _ Invoker = (*ClaudeInvoker)(nil)

// NewClaudeInvoker creates an invoker for the claude CLI.
func NewClaudeInvoker(cfg ClaudeConfig) *ClaudeInvoker {
	if cfg.Command == "" {
		cfg.Command = "claude"
	}
	return &ClaudeInvoker{cfg: cfg}
}

// Invoke runs the agent with prompt and returns its final result.
func (c *ClaudeInvoker) Invoke(ctx context.Context, prompt string, opts Options) (*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	proc := NewClaudeProcess(ctx, c.cfg.Command)
	err := proc.Start(prompt, c.cfg.WorkDir, &StartOptions{
		Model:        c.cfg.Model,
		MaxTurns:     opts.MaxTurns,
		AutoApprove:  opts.AutoApprove,
		AllowedTools: c.cfg.AllowedTools,
		SessionID:    opts.SessionID,
		Resume:       opts.Resume,
	})
	if err != nil {
		return nil, err
	}
	c.setCurrent(proc)
	defer c.setCurrent(nil)

	c.cfg.Logger.Debug("agent started", "pid", proc.PID(), "session_id", opts.SessionID, "resume", opts.Resume)

	var (
		final     string
		gotResult bool
		resultErr bool
		assistant []string
		artifacts []string
	)
	seen := make(map[string]bool)
	for event := range proc.Output() {
		if opts.OnEvent != nil {
			opts.OnEvent(event)
		}
		switch event.Type {
		case StreamEventResult:
			final = event.Message
			gotResult = true
			resultErr = event.IsError
		case StreamEventAssistant:
			if event.Message != "" {
				assistant = append(assistant, event.Message)
			}
			if event.Artifact != "" && !seen[event.Artifact] {
				seen[event.Artifact] = true
				artifacts = append(artifacts, event.Artifact)
			}
		}
	}

	waitErr := proc.Wait()
	duration := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %v", ErrTimeout, opts.Timeout)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if waitErr != nil {
		return nil, waitErr
	}
	if resultErr {
		return nil, &ProcessError{ExitCode: 0, Stderr: final}
	}
	if !gotResult {
		final = strings.Join(assistant, "\n")
	}

	c.cfg.Logger.Debug("agent finished", "duration", duration.String(), "artifacts", len(artifacts))

	return &Result{
		Content:   final,
		Duration:  duration,
		Artifacts: artifacts,
	}, nil
}

// Cancel kills the in-flight process, if any.
func (c *ClaudeInvoker) Cancel() {
	c.mu.Lock()
	proc := c.current
	c.mu.Unlock()
	if proc != nil {
		_ = proc.Kill()
	}
}

func (c *ClaudeInvoker) setCurrent(p *ClaudeProcess) {
	c.mu.Lock()
	c.current = p
	c.mu.Unlock()
}
