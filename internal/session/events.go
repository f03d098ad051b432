package session

import "github.com/plantops/inspectd/pkg/models"

// EventType classifies session lifecycle events for live observers.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventItemRecorded     EventType = "item_recorded"
	EventSessionCompleted EventType = "session_completed"
	EventSessionCancelled EventType = "session_cancelled"
)

// Event is a live notification about session progress. Events are emitted
// inside the owning operator's transaction, so per-operator order matches
// processing order.
type Event struct {
	Type       EventType      `json:"type"`
	OperatorID string         `json:"operator_id"`
	Operator   string         `json:"operator"`
	Asset      string         `json:"asset"`
	Item       string         `json:"item,omitempty"`
	Outcome    models.Outcome `json:"outcome,omitempty"`
	Verdict    models.Verdict `json:"verdict,omitempty"`
	Index      int            `json:"index,omitempty"`
	Total      int            `json:"total,omitempty"`
}
