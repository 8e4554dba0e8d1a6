package database

import (
	"encoding/json"
	"time"
)

// Session status constants
const (
	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
)

// SessionRecord is one journaled conversation.
type SessionRecord struct {
	ID          string     `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Mode        string     `json:"mode" db:"mode"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
}

// EventRecord is one journaled pipeline event.
type EventRecord struct {
	ID        int64           `json:"id" db:"id"`
	SessionID string          `json:"session_id" db:"session_id"`
	EventType string          `json:"event_type" db:"event_type"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	EventData json.RawMessage `json:"event_data" db:"event_data"`
}
