package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
)

// SessionRecorder turns orchestrator event payloads into stored events for
// one session. Its Emit method satisfies the events.Emitter signature so it
// can be handed straight to the orchestrator.
type SessionRecorder struct {
	store     *EventStore
	sessionID string
	logger    utils.ExtendedLogger
}

// NewSessionRecorder registers the session in the store and returns its
// recorder.
func NewSessionRecorder(store *EventStore, sessionID string, logger utils.ExtendedLogger) *SessionRecorder {
	store.InitializeSession(sessionID)
	return &SessionRecorder{
		store:     store,
		sessionID: sessionID,
		logger:    logger,
	}
}

// Emit wraps the payload in an AgentEvent envelope and stores it.
func (r *SessionRecorder) Emit(ctx context.Context, data events.EventData) {
	envelope := events.NewAgentEvent(data)
	envelope.SessionID = r.sessionID
	envelope.EventIndex = r.store.NextEventIndex(r.sessionID)

	stored := Event{
		ID:        fmt.Sprintf("%s-%d-%s", r.sessionID, envelope.EventIndex, uuid.NewString()[:8]),
		Type:      string(envelope.Type),
		Timestamp: time.Now(),
		Data:      envelope,
		SessionID: r.sessionID,
	}

	r.store.AddEvent(r.sessionID, stored)

	if r.logger != nil {
		r.logger.Debugf("📡 Recorded event %s for session %s (index %d)", envelope.Type, r.sessionID, envelope.EventIndex)
	}
}
