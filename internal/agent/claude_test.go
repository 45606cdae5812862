package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// writeScript writes an executable shell script standing in for the claude CLI.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		opts *StartOptions
		want []string
	}{
		{
			name: "defaults",
			opts: nil,
			want: []string{"--output-format", "stream-json", "--print", "--verbose", "-p", "do it"},
		},
		{
			name: "allowed tools and turns",
			opts: &StartOptions{AllowedTools: []string{"Read", "Edit"}, MaxTurns: 4},
			want: []string{"--output-format", "stream-json", "--print", "--verbose",
				"--allowedTools", "Read,Edit", "--max-turns", "4", "-p", "do it"},
		},
		{
			name: "auto approve replaces allowed tools",
			opts: &StartOptions{AutoApprove: true, AllowedTools: []string{"Read"}},
			want: []string{"--output-format", "stream-json", "--print", "--verbose",
				"--dangerously-skip-permissions", "-p", "do it"},
		},
		{
			name: "new session",
			opts: &StartOptions{SessionID: "abc"},
			want: []string{"--output-format", "stream-json", "--print", "--verbose",
				"--session-id", "abc", "-p", "do it"},
		},
		{
			name: "resumed session with model",
			opts: &StartOptions{SessionID: "abc", Resume: true, Model: "sonnet"},
			want: []string{"--output-format", "stream-json", "--print", "--verbose",
				"--model", "sonnet", "--resume", "abc", "-p", "do it"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildArgs("do it", tt.opts)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClaudeProcess_WaitWithoutStart(t *testing.T) {
	proc := NewClaudeProcess(context.Background(), "")
	if err := proc.Wait(); err == nil || err.Error() != "process not started" {
		t.Errorf("Wait() error = %v, want 'process not started'", err)
	}
	if err := proc.Kill(); err != nil {
		t.Errorf("Kill without start should not error, got: %v", err)
	}
	if proc.PID() != 0 {
		t.Errorf("PID() = %d, want 0", proc.PID())
	}
}

func TestClaudeProcess_StartTwice(t *testing.T) {
	script := writeScript(t, `echo '{"type":"result","result":"ok"}'`)
	proc := NewClaudeProcess(context.Background(), script)

	if err := proc.Start("p", "", nil); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := proc.Start("p", "", nil); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start error = %v, want ErrAlreadyStarted", err)
	}
	for range proc.Output() {
	}
	if err := proc.Wait(); err != nil {
		t.Errorf("Wait failed: %v", err)
	}
}

func TestClaudeInvoker_Success(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"system","message":"init"}'
echo '{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Write","input":{"file_path":"a.go"}}]}}'
echo '{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"a.go"}}]}}'
echo '{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"b.go"}}]}}'
echo '{"type":"result","is_error":false,"result":"implemented"}'`)

	inv := NewClaudeInvoker(ClaudeConfig{Command: script, WorkDir: t.TempDir()})

	var events []StreamEvent
	res, err := inv.Invoke(context.Background(), "write a.go", Options{
		Timeout: 10 * time.Second,
		OnEvent: func(e StreamEvent) { events = append(events, e) },
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Content != "implemented" {
		t.Errorf("Content = %q, want %q", res.Content, "implemented")
	}
	if !reflect.DeepEqual(res.Artifacts, []string{"a.go", "b.go"}) {
		t.Errorf("Artifacts = %v, want [a.go b.go]", res.Artifacts)
	}
	if len(events) != 5 {
		t.Errorf("received %d events, want 5", len(events))
	}
	if res.Duration <= 0 {
		t.Error("expected positive duration")
	}
}

func TestClaudeInvoker_FallsBackToAssistantText(t *testing.T) {
	script := writeScript(t, `echo '{"type":"assistant","message":{"content":[{"type":"text","text":"partial answer"}]}}'`)
	inv := NewClaudeInvoker(ClaudeConfig{Command: script})

	res, err := inv.Invoke(context.Background(), "p", Options{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res.Content != "partial answer" {
		t.Errorf("Content = %q", res.Content)
	}
}

func TestClaudeInvoker_ProcessError(t *testing.T) {
	script := writeScript(t, `echo "boom" >&2; exit 3`)
	inv := NewClaudeInvoker(ClaudeConfig{Command: script})

	_, err := inv.Invoke(context.Background(), "p", Options{Timeout: 10 * time.Second})
	var procErr *ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("error = %v, want *ProcessError", err)
	}
	if procErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", procErr.ExitCode)
	}
	if !strings.Contains(procErr.Stderr, "boom") {
		t.Errorf("Stderr = %q, want it to contain boom", procErr.Stderr)
	}
	if Kind(err) != "ProcessError" {
		t.Errorf("Kind = %q", Kind(err))
	}
}

func TestClaudeInvoker_ErrorResult(t *testing.T) {
	script := writeScript(t, `echo '{"type":"result","is_error":true,"result":"max turns"}'`)
	inv := NewClaudeInvoker(ClaudeConfig{Command: script})

	_, err := inv.Invoke(context.Background(), "p", Options{})
	var procErr *ProcessError
	if !errors.As(err, &procErr) || procErr.Stderr != "max turns" {
		t.Errorf("error = %v, want ProcessError with result text", err)
	}
}

func TestClaudeInvoker_Timeout(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)
	inv := NewClaudeInvoker(ClaudeConfig{Command: script})

	start := time.Now()
	_, err := inv.Invoke(context.Background(), "p", Options{Timeout: 100 * time.Millisecond})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Error("timeout was not enforced promptly")
	}
	if Kind(err) != "Timeout" {
		t.Errorf("Kind = %q", Kind(err))
	}
}

func TestClaudeInvoker_NotFound(t *testing.T) {
	inv := NewClaudeInvoker(ClaudeConfig{Command: filepath.Join(t.TempDir(), "no-such-agent")})

	_, err := inv.Invoke(context.Background(), "p", Options{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if Kind(err) != "NotFound" {
		t.Errorf("Kind = %q", Kind(err))
	}
}

func TestClaudeInvoker_Cancel(t *testing.T) {
	script := writeScript(t, `exec sleep 5`)
	inv := NewClaudeInvoker(ClaudeConfig{Command: script})

	errCh := make(chan error, 1)
	go func() {
		_, err := inv.Invoke(context.Background(), "p", Options{})
		errCh <- err
	}()

	deadline := time.After(3 * time.Second)
	for {
		inv.mu.Lock()
		running := inv.current != nil
		inv.mu.Unlock()
		if running {
			break
		}
		select {
		case <-deadline:
			t.Fatal("invocation never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	inv.Cancel()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected error after Cancel")
		}
	case <-time.After(4 * time.Second):
		t.Fatal("Invoke did not return after Cancel")
	}
}

func TestKind(t *testing.T) {
	if Kind(nil) != "" {
		t.Error("Kind(nil) should be empty")
	}
	if Kind(errors.New("other")) != "Unclassified" {
		t.Error("unknown errors should be Unclassified")
	}
}
