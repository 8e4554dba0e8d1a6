package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	ievents "github.com/olegkizyma008-rgb/Atlas-sub002/internal/events"
)

// PollingAPI serves incremental event reads for the UI. Clients poll
// with their last seen index and receive only what arrived since.
type PollingAPI struct {
	store *ievents.EventStore
}

// NewPollingAPI wraps the event store.
func NewPollingAPI(store *ievents.EventStore) *PollingAPI {
	return &PollingAPI{store: store}
}

// eventsResponse is the incremental poll answer.
type eventsResponse struct {
	Events         []ievents.Event `json:"events"`
	LastEventIndex int             `json:"last_event_index"`
	SessionExists  bool            `json:"session_exists"`
}

// statusResponse reports one session's stream state.
type statusResponse struct {
	SessionID  string `json:"session_id"`
	EventCount int    `json:"event_count"`
	Exists     bool   `json:"exists"`
}

// Router builds the mux router for the /poll/ prefix.
func (api *PollingAPI) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/poll/sessions", api.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/poll/events/{session_id}", api.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/poll/status/{session_id}", api.handleStatus).Methods(http.MethodGet)
	return r
}

func (api *PollingAPI) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := api.store.ActiveSessions()
	sort.Strings(sessions)
	writeJSON(w, map[string]interface{}{"sessions": sessions})
}

// handleEvents returns events after the "since" index. A missing or
// malformed index means "from the beginning".
func (api *PollingAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]

	since := -1
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid since index", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	stored, lastIndex, exists := api.store.GetEvents(sessionID, since)
	writeJSON(w, eventsResponse{
		Events:         stored,
		LastEventIndex: lastIndex,
		SessionExists:  exists,
	})
}

func (api *PollingAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	count, exists := api.store.SessionStatus(sessionID)
	writeJSON(w, statusResponse{
		SessionID:  sessionID,
		EventCount: count,
		Exists:     exists,
	})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
