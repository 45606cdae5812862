package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/taskpilot/internal/orchestrator"
)

// Envelope is the JSON form of a lifecycle event on the wire.
type Envelope struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Decision  string    `json:"decision,omitempty"`
	Iteration int       `json:"iteration,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FromEvent converts an orchestrator event to its wire envelope.
func FromEvent(ev orchestrator.Event) Envelope {
	return Envelope{
		Type:      string(ev.Type),
		TaskID:    ev.TaskID,
		Status:    string(ev.Status),
		Decision:  string(ev.Decision),
		Iteration: ev.Iteration,
		Message:   ev.Message,
		Timestamp: ev.Timestamp.UTC(),
	}
}

// ParseEnvelope decodes an envelope and checks that it names an event type.
func ParseEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("missing event type")
	}
	return env, nil
}
