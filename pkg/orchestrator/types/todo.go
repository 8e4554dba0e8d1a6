package types

import (
	"fmt"
	"sort"
	"strings"
)

// TodoStatus tracks a todo item through its lifecycle.
type TodoStatus string

const (
	TodoPending     TodoStatus = "pending"
	TodoInProgress  TodoStatus = "in_progress"
	TodoCompleted   TodoStatus = "completed"
	TodoNeedsReview TodoStatus = "needs_review"
	TodoAbandoned   TodoStatus = "abandoned"
)

// TodoItem is one actionable unit of a task plan. Items form a tree
// through ParentID and ChildIDs but live flat in the TodoTree arena,
// so replanning can splice sub-items without rebuilding the plan.
type TodoItem struct {
	ID               string                 `json:"id"`
	Action           string                 `json:"action"`
	SuccessCriteria  string                 `json:"success_criteria"`
	SuggestedServers []string               `json:"suggested_servers,omitempty"`
	MCPServers       []string               `json:"mcp_servers,omitempty"`
	Parameters       map[string]interface{} `json:"parameters,omitempty"`
	MaxAttempts      int                    `json:"max_attempts"`
	Attempt          int                    `json:"attempt"`
	Dependencies     []string               `json:"dependencies,omitempty"`
	Status           TodoStatus             `json:"status"`
	ParentID         string                 `json:"parent_id,omitempty"`
	ChildIDs         []string               `json:"child_ids,omitempty"`
	ExecutionResults []*ExecutionReport     `json:"execution_results,omitempty"`
	Verification     *Verification          `json:"verification,omitempty"`
}

// IsLeaf reports whether the item has no sub-items.
func (t *TodoItem) IsLeaf() bool {
	return len(t.ChildIDs) == 0
}

// LastExecution returns the most recent execution report, or nil.
func (t *TodoItem) LastExecution() *ExecutionReport {
	if len(t.ExecutionResults) == 0 {
		return nil
	}
	return t.ExecutionResults[len(t.ExecutionResults)-1]
}

// TodoTree is an arena of todo items keyed by dotted position ids
// ("2", "2.1", "2.1.3"). Child ids extend the parent id, so document
// order falls out of the ids themselves.
type TodoTree struct {
	Items   map[string]*TodoItem `json:"items"`
	RootIDs []string             `json:"root_ids"`
}

// NewTodoTree returns an empty tree.
func NewTodoTree() *TodoTree {
	return &TodoTree{Items: make(map[string]*TodoItem)}
}

// AddRoot appends item as a new top-level entry and assigns its id.
func (tr *TodoTree) AddRoot(item *TodoItem) string {
	id := fmt.Sprintf("%d", len(tr.RootIDs)+1)
	item.ID = id
	if item.Status == "" {
		item.Status = TodoPending
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = 3
	}
	tr.Items[id] = item
	tr.RootIDs = append(tr.RootIDs, id)
	return id
}

// AddChild appends item under parentID and assigns the next dotted id.
// Returns an error when the parent does not exist.
func (tr *TodoTree) AddChild(parentID string, item *TodoItem) (string, error) {
	parent, ok := tr.Items[parentID]
	if !ok {
		return "", fmt.Errorf("parent item %s not found", parentID)
	}
	id := fmt.Sprintf("%s.%d", parentID, len(parent.ChildIDs)+1)
	item.ID = id
	item.ParentID = parentID
	if item.Status == "" {
		item.Status = TodoPending
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = parent.MaxAttempts
	}
	tr.Items[id] = item
	parent.ChildIDs = append(parent.ChildIDs, id)
	return id, nil
}

// Get returns the item for id, or nil when absent.
func (tr *TodoTree) Get(id string) *TodoItem {
	return tr.Items[id]
}

// Walk visits every item in document order (parents before children).
// Returning false from fn stops the walk.
func (tr *TodoTree) Walk(fn func(item *TodoItem) bool) {
	var visit func(id string) bool
	visit = func(id string) bool {
		item, ok := tr.Items[id]
		if !ok {
			return true
		}
		if !fn(item) {
			return false
		}
		for _, childID := range item.ChildIDs {
			if !visit(childID) {
				return false
			}
		}
		return true
	}
	for _, rootID := range tr.RootIDs {
		if !visit(rootID) {
			return
		}
	}
}

// Flatten returns every item in document order.
func (tr *TodoTree) Flatten() []*TodoItem {
	var out []*TodoItem
	tr.Walk(func(item *TodoItem) bool {
		out = append(out, item)
		return true
	})
	return out
}

// NextActionable returns the first leaf item in document order that is
// pending and whose dependencies are all completed. Items whose
// dependencies were abandoned are skipped so the run can surface a
// partial result instead of blocking forever.
func (tr *TodoTree) NextActionable() *TodoItem {
	var next *TodoItem
	tr.Walk(func(item *TodoItem) bool {
		if !item.IsLeaf() || item.Status != TodoPending {
			return true
		}
		for _, depID := range item.Dependencies {
			dep := tr.Items[depID]
			if dep == nil || dep.Status != TodoCompleted {
				return true
			}
		}
		next = item
		return false
	})
	return next
}

// Decompose replaces the work of item id with sub-items produced by a
// replan. The parent becomes a container that completes when all of
// its children complete.
func (tr *TodoTree) Decompose(id string, subItems []*TodoItem) ([]string, error) {
	parent, ok := tr.Items[id]
	if !ok {
		return nil, fmt.Errorf("item %s not found", id)
	}
	ids := make([]string, 0, len(subItems))
	for _, sub := range subItems {
		childID, err := tr.AddChild(id, sub)
		if err != nil {
			return nil, err
		}
		ids = append(ids, childID)
	}
	parent.Status = TodoInProgress
	return ids, nil
}

// PropagateCompletion walks containers bottom-up and completes every
// parent whose children are all completed. Containers with an
// abandoned child are marked abandoned.
func (tr *TodoTree) PropagateCompletion() {
	ids := make([]string, 0, len(tr.Items))
	for id := range tr.Items {
		ids = append(ids, id)
	}
	// Deeper ids sort after their parents, so walk them in reverse.
	sort.Slice(ids, func(i, j int) bool {
		di, dj := strings.Count(ids[i], "."), strings.Count(ids[j], ".")
		if di != dj {
			return di > dj
		}
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		item := tr.Items[id]
		if item.IsLeaf() {
			continue
		}
		completed, abandoned := 0, 0
		for _, childID := range item.ChildIDs {
			switch tr.Items[childID].Status {
			case TodoCompleted:
				completed++
			case TodoAbandoned:
				abandoned++
			}
		}
		if abandoned > 0 {
			item.Status = TodoAbandoned
		} else if completed == len(item.ChildIDs) {
			item.Status = TodoCompleted
		}
	}
}

// Counts tallies items by status.
func (tr *TodoTree) Counts() map[TodoStatus]int {
	counts := make(map[TodoStatus]int)
	tr.Walk(func(item *TodoItem) bool {
		counts[item.Status]++
		return true
	})
	return counts
}

// AllDone reports whether no leaf item remains pending or in progress.
func (tr *TodoTree) AllDone() bool {
	done := true
	tr.Walk(func(item *TodoItem) bool {
		if item.IsLeaf() && (item.Status == TodoPending || item.Status == TodoInProgress) {
			done = false
			return false
		}
		return true
	})
	return done
}

// HasAbandoned reports whether any item was given up on.
func (tr *TodoTree) HasAbandoned() bool {
	abandoned := false
	tr.Walk(func(item *TodoItem) bool {
		if item.Status == TodoAbandoned {
			abandoned = true
			return false
		}
		return true
	})
	return abandoned
}
