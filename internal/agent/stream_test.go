package agent

import (
	"testing"
)

func TestParseStreamEvent_AssistantText(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[{"type":"text","text":"Looking at the code"},{"type":"text","text":"Done"}]}}`
	event, err := parseStreamEvent([]byte(line))
	if err != nil {
		t.Fatalf("parseStreamEvent failed: %v", err)
	}
	if event.Type != StreamEventAssistant {
		t.Errorf("Type = %q, want %q", event.Type, StreamEventAssistant)
	}
	if event.Message != "Looking at the code\nDone" {
		t.Errorf("Message = %q", event.Message)
	}
	if event.ToolAction != "" || event.Artifact != "" {
		t.Errorf("unexpected tool fields: %+v", event)
	}
}

func TestParseStreamEvent_ToolUse(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantAction   string
		wantArtifact string
	}{
		{
			name:         "write produces artifact",
			line:         `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Write","input":{"file_path":"/repo/internal/api/handler.go"}}]}}`,
			wantAction:   "Writing handler.go",
			wantArtifact: "/repo/internal/api/handler.go",
		},
		{
			name:         "edit produces artifact",
			line:         `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Edit","input":{"file_path":"main.go"}}]}}`,
			wantAction:   "Editing main.go",
			wantArtifact: "main.go",
		},
		{
			name:       "read has no artifact",
			line:       `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"file_path":"main.go"}}]}}`,
			wantAction: "Reading main.go",
		},
		{
			name:       "bash shows first word",
			line:       `{"type":"assistant","content":[{"type":"tool_use","name":"Bash","input":{"command":"go test ./..."}}]}`,
			wantAction: "Running go",
		},
		{
			name:       "grep truncates long patterns",
			line:       `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Grep","input":{"pattern":"a_long_search_pattern"}}]}}`,
			wantAction: "Grep a_long_searc...",
		},
		{
			name:         "notebook edit uses notebook path",
			line:         `{"type":"assistant","message":{"content":[{"type":"tool_use","name":"NotebookEdit","input":{"notebook_path":"nb/analysis.ipynb"}}]}}`,
			wantAction:   "NotebookEdit",
			wantArtifact: "nb/analysis.ipynb",
		},
		{
			name:       "unknown tool uses name",
			line:       `{"type":"assistant","tool_use":{"name":"WebSearch","input":{}}}`,
			wantAction: "WebSearch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := parseStreamEvent([]byte(tt.line))
			if err != nil {
				t.Fatalf("parseStreamEvent failed: %v", err)
			}
			if event.ToolAction != tt.wantAction {
				t.Errorf("ToolAction = %q, want %q", event.ToolAction, tt.wantAction)
			}
			if event.Artifact != tt.wantArtifact {
				t.Errorf("Artifact = %q, want %q", event.Artifact, tt.wantArtifact)
			}
		})
	}
}

func TestParseStreamEvent_Result(t *testing.T) {
	event, err := parseStreamEvent([]byte(`{"type":"result","subtype":"success","is_error":false,"result":"All done"}`))
	if err != nil {
		t.Fatalf("parseStreamEvent failed: %v", err)
	}
	if event.Type != StreamEventResult || event.Message != "All done" || event.IsError {
		t.Errorf("unexpected event: %+v", event)
	}

	event, err = parseStreamEvent([]byte(`{"type":"result","is_error":true,"result":"max turns reached"}`))
	if err != nil {
		t.Fatalf("parseStreamEvent failed: %v", err)
	}
	if !event.IsError {
		t.Error("expected IsError for failed result")
	}
}

func TestParseStreamEvent_Error(t *testing.T) {
	event, err := parseStreamEvent([]byte(`{"type":"error","message":"rate limited"}`))
	if err != nil {
		t.Fatalf("parseStreamEvent failed: %v", err)
	}
	if event.Error != "rate limited" {
		t.Errorf("Error = %q, want %q", event.Error, "rate limited")
	}
}

func TestParseStreamEvent_InvalidJSON(t *testing.T) {
	if _, err := parseStreamEvent([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseStreamEvent_PreservesRaw(t *testing.T) {
	line := []byte(`{"type":"system","message":"init"}`)
	event, err := parseStreamEvent(line)
	if err != nil {
		t.Fatalf("parseStreamEvent failed: %v", err)
	}
	if string(event.Raw) != string(line) {
		t.Errorf("Raw = %s, want %s", event.Raw, line)
	}
	if event.Message != "init" {
		t.Errorf("Message = %q, want %q", event.Message, "init")
	}
}

func TestTruncateFilename(t *testing.T) {
	if got := truncateFilename("/a/b/short.go"); got != "short.go" {
		t.Errorf("truncateFilename = %q", got)
	}
	if got := truncateFilename("a_really_long_file_name_here.go"); got != "a_really_long_fil..." {
		t.Errorf("truncateFilename = %q", got)
	}
}
