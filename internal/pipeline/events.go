package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of run event
type EventType string

const (
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"
	EventSetStored    EventType = "set.stored"
)

// RunEvent represents an event emitted around a pipeline run
type RunEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id"`
	SetID     string                 `json:"set_id,omitempty"`
	Result    *Result                `json:"result,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// NewRunEvent creates a new event for a finished run
func NewRunEvent(eventType EventType, result *Result) *RunEvent {
	event := &RunEvent{
		ID:        GenerateEventID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Result:    result,
		Metadata:  make(map[string]interface{}),
	}
	if result != nil {
		event.RunID = result.RunID
		event.Metadata["stage"] = string(result.Stage)
		event.Metadata["source"] = result.Source
		if !result.Success && len(result.Diagnostics) > 0 {
			event.Error = result.Diagnostics[len(result.Diagnostics)-1]
		}
	}
	return event
}

// NewStoredEvent creates a set.stored event
func NewStoredEvent(result *Result, setID string) *RunEvent {
	event := NewRunEvent(EventSetStored, result)
	event.SetID = setID
	return event
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return "evt_" + uuid.NewString()
}
