package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

// maxStoredMessages bounds the chat thread kept per session. Analysis reads
// the last 10, prompts less, so the tail is all that matters.
const maxStoredMessages = 50

// Session is the in-memory state of one conversation. The pipeline mutates
// a session sequentially; listing endpoints read it concurrently.
type Session struct {
	ID        string
	CreatedAt time.Time

	// runMu serializes pipeline runs on this session. A dev intervention
	// holds it until its plan completes, so task requests queue behind it.
	runMu sync.Mutex

	mu           sync.RWMutex
	updatedAt    time.Time
	userLanguage string
	lastMode     types.Mode
	messages     []types.ChatMessage
	tree         *types.TodoTree
	problems     []types.Problem
	analysisCtx  *types.AnalysisContext
	intervention bool
}

// NewSession creates a session with the given id, generating one when empty.
func NewSession(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		updatedAt: now,
	}
}

// BeginRun blocks until this session's pipeline slot is free.
func (s *Session) BeginRun() {
	s.runMu.Lock()
}

// EndRun releases the pipeline slot.
func (s *Session) EndRun() {
	s.runMu.Unlock()
}

// AppendMessage records one chat turn, trimming the thread to the retained
// tail.
func (s *Session) AppendMessage(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, types.ChatMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(s.messages) > maxStoredMessages {
		s.messages = s.messages[len(s.messages)-maxStoredMessages:]
	}
	s.updatedAt = time.Now()
}

// RecentMessages returns a copy of the last n chat messages, oldest first.
func (s *Session) RecentMessages(n int) []types.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || len(s.messages) == 0 {
		return nil
	}
	start := len(s.messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]types.ChatMessage, len(s.messages)-start)
	copy(out, s.messages[start:])
	return out
}

// MessageCount returns the number of retained messages.
func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// SetTree stores the active todo tree.
func (s *Session) SetTree(tree *types.TodoTree) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = tree
	s.updatedAt = time.Now()
}

// Tree returns the active todo tree, nil when no plan has run.
func (s *Session) Tree() *types.TodoTree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

// SetLastMode records the mode the last request resolved to.
func (s *Session) SetLastMode(mode types.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMode = mode
	s.updatedAt = time.Now()
}

// LastMode returns the most recent resolved mode.
func (s *Session) LastMode() types.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMode
}

// SetLanguage overrides the session's reply language.
func (s *Session) SetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userLanguage = lang
}

// Language returns the session language, or the given default when unset.
func (s *Session) Language(def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userLanguage != "" {
		return s.userLanguage
	}
	return def
}

// PushProblem queues a problem for deeper analysis.
func (s *Session) PushProblem(p types.Problem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems = append(s.problems, p)
	s.updatedAt = time.Now()
}

// Problems returns a copy of the queued problems.
func (s *Session) Problems() []types.Problem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Problem, len(s.problems))
	copy(out, s.problems)
	return out
}

// ClearProblems empties the problem queue.
func (s *Session) ClearProblems() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems = nil
}

// SetAnalysisContext stores the last gathered analysis context.
func (s *Session) SetAnalysisContext(ctx *types.AnalysisContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysisCtx = ctx
	s.updatedAt = time.Now()
}

// AnalysisContext returns the last gathered analysis context.
func (s *Session) AnalysisContext() *types.AnalysisContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analysisCtx
}

// SetIntervention flags that a dev intervention currently owns the session.
func (s *Session) SetIntervention(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervention = active
	s.updatedAt = time.Now()
}

// InterventionActive reports whether a dev intervention owns the session.
func (s *Session) InterventionActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.intervention
}

// Info is a read-only snapshot for listing endpoints.
type Info struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	MessageCount int        `json:"message_count"`
	LastMode     types.Mode `json:"last_mode,omitempty"`
	Intervention bool       `json:"intervention_active"`
}

// Snapshot captures the session's listing view.
func (s *Session) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.updatedAt,
		MessageCount: len(s.messages),
		LastMode:     s.lastMode,
		Intervention: s.intervention,
	}
}

// Store holds every live session keyed by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session with the given id, creating it on first
// use. An empty id creates a fresh session with a generated id.
func (st *Store) GetOrCreate(id string) *Session {
	if id != "" {
		st.mu.RLock()
		s, ok := st.sessions[id]
		st.mu.RUnlock()
		if ok {
			return s
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if id != "" {
		if s, ok := st.sessions[id]; ok {
			return s
		}
	}
	s := NewSession(id)
	st.sessions[s.ID] = s
	return s
}

// Get returns an existing session.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// List returns snapshots of every session, most recently updated first.
func (st *Store) List() []Info {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Snapshot())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].UpdatedAt.After(infos[j].UpdatedAt) })
	return infos
}

// Delete removes a session.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Count returns the number of live sessions.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
