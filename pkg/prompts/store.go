package prompts

import (
	"sort"
	"strings"
	"sync"
)

// Spec is one prompt entry: the system text, a user template with
// {{placeholder}} slots and an optional JSON schema hint the stage
// runner appends to the request.
type Spec struct {
	ID     string
	System string
	User   string
	Schema string
}

// Store is a read-only prompt lookup once construction is done.
// Register exists so callers can overlay custom prompts before the
// pipeline starts.
type Store struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{specs: make(map[string]*Spec)}
}

// Register adds or replaces a prompt spec.
func (s *Store) Register(spec *Spec) {
	if spec == nil || spec.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.ID] = spec
}

// Lookup returns the spec for id.
func (s *Store) Lookup(id string) (*Spec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.specs[id]
	return spec, ok
}

// LookupWithFallback returns the spec for id, falling back to
// fallbackID when id is not registered.
func (s *Store) LookupWithFallback(id, fallbackID string) (*Spec, bool) {
	if spec, ok := s.Lookup(id); ok {
		return spec, true
	}
	return s.Lookup(fallbackID)
}

// IDs lists registered prompt ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.specs))
	for id := range s.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Render substitutes {{key}} slots in template. Slots without a value
// stay in place so a missing variable is visible in logs.
func Render(template string, vars map[string]string) string {
	rendered := template
	for key, value := range vars {
		rendered = strings.ReplaceAll(rendered, "{{"+key+"}}", value)
	}
	return rendered
}

// ToolPlanPromptID maps a server name onto its per-server tool
// planning prompt id, e.g. "web-search" becomes TOOL_PLAN_WEB_SEARCH.
func ToolPlanPromptID(server string) string {
	normalized := strings.ToUpper(server)
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	return "TOOL_PLAN_" + normalized
}
