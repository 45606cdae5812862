package agent

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// StreamEventType is the "type" field of a stream-json line.
type StreamEventType string

const (
	StreamEventSystem    StreamEventType = "system"
	StreamEventAssistant StreamEventType = "assistant"
	// StreamEventUser usually carries a tool result.
	StreamEventUser   StreamEventType = "user"
	StreamEventResult StreamEventType = "result"
	StreamEventError  StreamEventType = "error"
)

// StreamEvent is one decoded line of agent output.
type StreamEvent struct {
	Type StreamEventType `json:"type"`
	// Message is the event text: assistant prose, system notes or the final result.
	Message string `json:"message,omitempty"`
	// Error is set on StreamEventError.
	Error string `json:"error,omitempty"`
	// IsError is set on result events the agent reports as failed.
	IsError bool `json:"is_error,omitempty"`
	// ToolAction is a short description of a tool use, e.g. "Reading auth.go".
	ToolAction string `json:"tool_action,omitempty"`
	// Artifact is the file path touched by a write-type tool use.
	Artifact string          `json:"artifact,omitempty"`
	Raw      json.RawMessage `json:"-"`
}

// wireEvent mirrors the stream-json line shape. message and content are
// either plain strings or structured content blocks.
type wireEvent struct {
	Type    StreamEventType `json:"type"`
	Message json.RawMessage `json:"message"`
	Content json.RawMessage `json:"content"`
	Result  *string         `json:"result"`
	IsError bool            `json:"is_error"`
	Error   json.RawMessage `json:"error"`
	ToolUse *contentBlock   `json:"tool_use"`
}

type contentBlock struct {
	Type  string    `json:"type"`
	Text  string    `json:"text"`
	Name  string    `json:"name"`
	Input toolInput `json:"input"`
}

type toolInput struct {
	FilePath     string `json:"file_path"`
	NotebookPath string `json:"notebook_path"`
	Command      string `json:"command"`
	Pattern      string `json:"pattern"`
}

// writeTools are the tool names whose target file counts as an artifact.
var writeTools = map[string]bool{"Write": true, "Edit": true, "MultiEdit": true, "NotebookEdit": true}

// parseStreamEvent decodes one stream-json line.
func parseStreamEvent(data []byte) (StreamEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return StreamEvent{}, fmt.Errorf("unmarshal json: %w", err)
	}

	event := StreamEvent{Type: w.Type, Raw: data}
	msgText, msgBlocks := decodeBody(w.Message)
	contentText, contentBlocks := decodeBody(w.Content)

	switch w.Type {
	case StreamEventSystem, StreamEventAssistant, StreamEventUser:
		blocks := msgBlocks
		if blocks == nil {
			blocks = contentBlocks
		}
		event.Message = firstNonEmpty(msgText, contentText, joinText(blocks))
		if w.Type == StreamEventAssistant {
			if tool := findToolUse(blocks, w.ToolUse); tool != nil {
				event.ToolAction = describeTool(tool)
				if writeTools[tool.Name] {
					event.Artifact = firstNonEmpty(tool.Input.FilePath, tool.Input.NotebookPath)
				}
			}
		}
	case StreamEventResult:
		if w.Result != nil {
			event.Message = *w.Result
		} else {
			event.Message = contentText
		}
		event.IsError = w.IsError
	case StreamEventError:
		errText, _ := decodeBody(w.Error)
		event.Error = firstNonEmpty(errText, msgText)
	}

	return event, nil
}

// decodeBody interprets a field that is either a string, a list of content
// blocks, or an object holding a content list.
func decodeBody(raw json.RawMessage) (string, []contentBlock) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, nil
	}
	var blocks []contentBlock
	if json.Unmarshal(raw, &blocks) == nil {
		return "", blocks
	}
	var nested struct {
		Content []contentBlock `json:"content"`
	}
	if json.Unmarshal(raw, &nested) == nil {
		return "", nested.Content
	}
	return "", nil
}

func joinText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func findToolUse(blocks []contentBlock, fallback *contentBlock) *contentBlock {
	for i := range blocks {
		if blocks[i].Type == "tool_use" {
			return &blocks[i]
		}
	}
	return fallback
}

// describeTool renders a tool use for progress output.
func describeTool(tool *contentBlock) string {
	in := tool.Input
	withArg := func(verb, arg, fallback string) string {
		if arg == "" {
			return fallback
		}
		return verb + " " + arg
	}

	switch tool.Name {
	case "":
		return ""
	case "Read":
		return withArg("Reading", truncateFilename(in.FilePath), "Reading file")
	case "Edit", "MultiEdit":
		return withArg("Editing", truncateFilename(in.FilePath), "Editing file")
	case "Write":
		return withArg("Writing", truncateFilename(in.FilePath), "Writing file")
	case "Bash":
		return withArg("Running", truncateCommand(in.Command), "Running command")
	case "Glob":
		return withArg("Searching", in.Pattern, "Searching files")
	case "Grep":
		return withArg("Grep", truncate(in.Pattern, 15), "Searching code")
	default:
		return tool.Name
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truncate shortens s to max bytes, ending in "...".
func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// truncateFilename keeps the base name of path.
func truncateFilename(p string) string {
	if p == "" {
		return ""
	}
	return truncate(path.Base(p), 20)
}

// truncateCommand keeps the first word of a command.
func truncateCommand(cmd string) string {
	if i := strings.IndexAny(cmd, " \n"); i >= 0 {
		cmd = cmd[:i]
	}
	return truncate(cmd, 20)
}
