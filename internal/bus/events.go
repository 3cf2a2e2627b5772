// Package bus provides the typed lifecycle event channel between the dispatch
// engine and its consumers (UI layer, logging). Publishing never blocks on a
// subscriber: slow consumers miss events rather than stalling the engine.
package bus

import (
	"encoding/json"
	"time"
)

// EventType represents the type of a lifecycle event.
type EventType string

const (
	EventTaskSubmitted   EventType = "task_submitted"   // Task accepted into the queue
	EventTaskStarted     EventType = "task_started"     // Task began executing
	EventTaskCompleted   EventType = "task_completed"   // Task finished successfully
	EventTaskFailed      EventType = "task_failed"      // Task finished with an error
	EventTaskCancelled   EventType = "task_cancelled"   // Task removed before or during execution
	EventTaskPaused      EventType = "task_paused"      // Running task evicted for manual retry
	EventAgentDisabled   EventType = "agent_disabled"   // Circuit breaker tripped for an agent
	EventBatchDispatched EventType = "batch_dispatched" // Debounced transcript batch handed to the pool
	EventCardsCreated    EventType = "cards_created"    // Deduplicated outputs persisted as cards
)

// Event is a single lifecycle event emitted by the engine.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	AgentID   string         `json:"agent_id,omitempty"`
	Error     string         `json:"error,omitempty"`
	Cards     int            `json:"cards,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ToJSON serializes the Event to JSON bytes.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes the Event from JSON bytes.
func (e *Event) FromJSON(data []byte) error {
	return json.Unmarshal(data, e)
}

// NewEvent creates an Event of the given type with the current timestamp.
func NewEvent(t EventType) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
	}
}
