package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
)

// Event is the stored form of an emitted orchestrator event, keyed by the
// session that produced it.
type Event struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Data      *events.AgentEvent `json:"data,omitempty"`
	Error     string             `json:"error,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
}

// MarshalJSON flattens the event structure for the polling API.
func (e Event) MarshalJSON() ([]byte, error) {
	result := map[string]interface{}{
		"id":         e.ID,
		"type":       e.Type,
		"timestamp":  e.Timestamp,
		"session_id": e.SessionID,
	}

	if e.Error != "" {
		result["error"] = e.Error
	}
	if e.Data != nil {
		result["data"] = e.Data
	}

	return json.Marshal(result)
}

// EventStore keeps per-session event histories in memory for incremental
// polling by the UI.
type EventStore struct {
	events        map[string][]Event // sessionID -> events
	eventCounters map[string]int     // sessionID -> running event index
	mu            sync.RWMutex
	maxEvents     int
	cleanupTicker *time.Ticker
	stopCh        chan struct{}
}

// NewEventStore creates a store bounding each session to maxEvents entries.
func NewEventStore(maxEvents int) *EventStore {
	store := &EventStore{
		events:        make(map[string][]Event),
		eventCounters: make(map[string]int),
		maxEvents:     maxEvents,
		cleanupTicker: time.NewTicker(5 * time.Minute),
		stopCh:        make(chan struct{}),
	}

	go store.cleanupRoutine()

	return store
}

// AddEvent appends an event to a session's history.
func (es *EventStore) AddEvent(sessionID string, event Event) {
	es.mu.Lock()
	defer es.mu.Unlock()

	if _, exists := es.events[sessionID]; !exists {
		es.events[sessionID] = make([]Event, 0)
	}

	es.events[sessionID] = append(es.events[sessionID], event)

	if len(es.events[sessionID]) > es.maxEvents {
		es.events[sessionID] = es.events[sessionID][len(es.events[sessionID])-es.maxEvents:]
	}
}

// InitializeSession creates an empty event list for a session.
func (es *EventStore) InitializeSession(sessionID string) {
	es.mu.Lock()
	defer es.mu.Unlock()

	if _, exists := es.events[sessionID]; !exists {
		es.events[sessionID] = make([]Event, 0)
		es.eventCounters[sessionID] = 0
	}
}

// NextEventIndex increments and returns the session's event counter.
func (es *EventStore) NextEventIndex(sessionID string) int {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.eventCounters[sessionID]++
	return es.eventCounters[sessionID]
}

// GetEvents returns events after sinceIndex plus the latest index. The
// returned index is the last stored position, so pollers never loop on a
// stale cursor.
func (es *EventStore) GetEvents(sessionID string, sinceIndex int) ([]Event, int, bool) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	stored, exists := es.events[sessionID]
	if !exists {
		return []Event{}, 0, false
	}

	lastIndex := len(stored) - 1
	if lastIndex < 0 {
		lastIndex = 0
	}

	if sinceIndex >= len(stored) {
		return []Event{}, lastIndex, true
	}

	nextIndex := sinceIndex + 1
	var newEvents []Event
	if nextIndex >= len(stored) {
		newEvents = []Event{}
	} else {
		newEvents = stored[nextIndex:]
	}

	return newEvents, lastIndex, true
}

// SessionStatus returns the stored event count for a session.
func (es *EventStore) SessionStatus(sessionID string) (int, bool) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	stored, exists := es.events[sessionID]
	if !exists {
		return 0, false
	}

	return len(stored), true
}

// RemoveSession drops a session's history and counter.
func (es *EventStore) RemoveSession(sessionID string) {
	es.mu.Lock()
	defer es.mu.Unlock()

	delete(es.events, sessionID)
	delete(es.eventCounters, sessionID)
}

// ActiveSessions returns the ids of all sessions with stored history.
func (es *EventStore) ActiveSessions() []string {
	es.mu.RLock()
	defer es.mu.RUnlock()

	sessions := make([]string, 0, len(es.events))
	for sessionID := range es.events {
		sessions = append(sessions, sessionID)
	}

	return sessions
}

func (es *EventStore) cleanupRoutine() {
	for {
		select {
		case <-es.cleanupTicker.C:
			es.cleanupEmptySessions()
		case <-es.stopCh:
			es.cleanupTicker.Stop()
			return
		}
	}
}

func (es *EventStore) cleanupEmptySessions() {
	es.mu.Lock()
	defer es.mu.Unlock()

	for sessionID, stored := range es.events {
		if len(stored) == 0 {
			delete(es.events, sessionID)
			delete(es.eventCounters, sessionID)
		}
	}
}

// Stop terminates the background cleanup routine.
func (es *EventStore) Stop() {
	close(es.stopCh)
}

// Stats returns aggregate store statistics.
func (es *EventStore) Stats() map[string]interface{} {
	es.mu.RLock()
	defer es.mu.RUnlock()

	totalEvents := 0
	for _, stored := range es.events {
		totalEvents += len(stored)
	}

	return map[string]interface{}{
		"total_sessions": len(es.events),
		"total_events":   totalEvents,
		"max_events":     es.maxEvents,
	}
}
