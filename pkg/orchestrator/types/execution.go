package types

import (
	"regexp"
	"strings"
	"time"
)

// MaxServersPerItem caps how many MCP servers a single todo item may
// draw tools from. Plans that need more must be split first.
const MaxServersPerItem = 2

// qualifiedToolPattern validates the canonical server__tool form.
var qualifiedToolPattern = regexp.MustCompile(`^[a-z_]+__[a-z0-9_]+$`)

// IsQualifiedTool reports whether name matches the server__tool grammar.
func IsQualifiedTool(name string) bool {
	return qualifiedToolPattern.MatchString(name)
}

// SplitQualifiedTool breaks server__tool into its parts. The server
// half may itself contain underscores, so the split happens at the
// last double underscore.
func SplitQualifiedTool(name string) (server, tool string, ok bool) {
	if !IsQualifiedTool(name) {
		return "", "", false
	}
	idx := strings.LastIndex(name, "__")
	return name[:idx], name[idx+2:], true
}

// QualifyTool joins a server and bare tool name into canonical form.
func QualifyTool(server, tool string) string {
	return server + "__" + tool
}

// ServerSelection is the server selector output for one todo item.
type ServerSelection struct {
	SelectedServers []string   `json:"selected_servers"`
	SelectedPrompts []string   `json:"selected_prompts,omitempty"`
	Reasoning       string     `json:"reasoning,omitempty"`
	Confidence      float64    `json:"confidence"`
	NeedsSplit      bool       `json:"needs_split,omitempty"`
	SuggestedSplit  [][]string `json:"suggested_split,omitempty"`
}

// ToolCall is a single planned MCP invocation. Tool is always the
// qualified server__tool name.
type ToolCall struct {
	Server        string                 `json:"server"`
	Tool          string                 `json:"tool"`
	Parameters    map[string]interface{} `json:"parameters,omitempty"`
	IsLongRunning bool                   `json:"is_long_running,omitempty"`
}

// ToolPlan is the ordered list of calls for one todo item.
type ToolPlan struct {
	ItemID    string      `json:"item_id,omitempty"`
	Calls     []*ToolCall `json:"tool_calls"`
	Reasoning string      `json:"reasoning,omitempty"`
}

// DispatchMode selects how a tool plan is driven.
type DispatchMode string

const (
	DispatchParallel   DispatchMode = "parallel"
	DispatchSequential DispatchMode = "sequential"
	DispatchStepByStep DispatchMode = "step_by_step"
)

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	Tool      string                 `json:"tool"`
	Server    string                 `json:"server"`
	Success   bool                   `json:"success"`
	Data      interface{}            `json:"data,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ExecutionReport aggregates the results of driving one tool plan.
// StoppedAtIndex is set when a sequential or step-by-step run halted
// at the first failure; calls after that index never ran.
type ExecutionReport struct {
	AllSuccessful   bool          `json:"all_successful"`
	SuccessfulCount int           `json:"successful_count"`
	FailedCount     int           `json:"failed_count"`
	Results         []*ToolResult `json:"results"`
	ExecutionTimeMS int64         `json:"execution_time_ms"`
	Mode            DispatchMode  `json:"mode"`
	StoppedAtIndex  *int          `json:"stopped_at_index,omitempty"`
	StoppedReason   string        `json:"stopped_reason,omitempty"`
}

// FirstFailure returns the first failed result, or nil when the run
// was fully successful.
func (r *ExecutionReport) FirstFailure() *ToolResult {
	for _, res := range r.Results {
		if !res.Success {
			return res
		}
	}
	return nil
}
