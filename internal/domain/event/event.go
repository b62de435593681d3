// Package event defines the notifications published after an approval or
// stock transaction commits.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is one committed change to an approval or to stock
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	ApprovalID int64                  `json:"approval_id,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewEvent stamps a fresh id and the current time
func NewEvent(eventType Type, approvalID int64, requestID string, payload map[string]interface{}) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ApprovalID: approvalID,
		RequestID:  requestID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// GetPayloadString returns the string at key, or "" when missing or not a string
func (e *Event) GetPayloadString(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// GetPayloadInt returns the integer at key. Quantities decoded from JSON
// arrive as float64 and are truncated.
func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
