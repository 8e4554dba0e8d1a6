package types

import "time"

// ChatMessage is one turn of session history.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// LogBundle holds the recent tail of each monitored log stream.
type LogBundle struct {
	Error        []string `json:"error,omitempty"`
	Orchestrator []string `json:"orchestrator,omitempty"`
	Frontend     []string `json:"frontend,omitempty"`
}

// AnalysisContext is the system snapshot self-analysis reasons over.
// Fallback marks a degraded snapshot where log gathering failed and
// the analysis ran on whatever was available.
type AnalysisContext struct {
	Logs        LogBundle              `json:"logs"`
	MemoryUsage map[string]interface{} `json:"memory_usage,omitempty"`
	UptimeSec   float64                `json:"uptime_seconds"`
	Timestamp   time.Time              `json:"timestamp"`
	RecentChat  []ChatMessage          `json:"recent_chat,omitempty"`
	Fallback    bool                   `json:"fallback,omitempty"`
}

// Problem is one issue surfaced by self-analysis. Signature is a
// stable key used to detect that deeper passes keep circling the same
// problem.
type Problem struct {
	Signature  string   `json:"signature"`
	Component  string   `json:"component,omitempty"`
	Severity   string   `json:"severity,omitempty"`
	Evidence   []string `json:"evidence,omitempty"`
	Hypothesis string   `json:"hypothesis,omitempty"`
}

// AnalysisReport is the self-analysis result at some depth.
type AnalysisReport struct {
	Summary         string     `json:"summary"`
	Problems        []*Problem `json:"problems,omitempty"`
	Depth           int        `json:"depth"`
	NeedsDeeperLook bool       `json:"needs_deeper_look,omitempty"`
	Insights        []string   `json:"insights,omitempty"`
	Fallback        bool       `json:"fallback,omitempty"`
}

// InterventionStep is one step of a self-repair plan. The final step
// is always a restart that depends on every prior step.
type InterventionStep struct {
	Index     int       `json:"index"`
	Call      *ToolCall `json:"call,omitempty"`
	Rationale string    `json:"rationale,omitempty"`
	DependsOn []int     `json:"depends_on,omitempty"`
	IsRestart bool      `json:"is_restart,omitempty"`
}

// InterventionPlan is the ordered self-repair plan produced in dev
// mode after password authorization.
type InterventionPlan struct {
	Steps     []*InterventionStep `json:"steps"`
	Reasoning string              `json:"reasoning,omitempty"`
}

// DevRequest is a dev-mode invocation handed to the self-analyzer.
type DevRequest struct {
	UserMessage string        `json:"user_message"`
	Password    string        `json:"-"`
	History     []ChatMessage `json:"history,omitempty"`
}

// DevResult is everything a dev-mode run produced. AuthRequired is set
// when intervention wording was present but the password did not match;
// the analysis itself still runs. Plan is non-nil only after a
// successful password check plus explicit intervention wording.
type DevResult struct {
	Report       *AnalysisReport   `json:"analysis"`
	Context      *AnalysisContext  `json:"context,omitempty"`
	Todo         *TodoTree         `json:"todo,omitempty"`
	Plan         *InterventionPlan `json:"plan,omitempty"`
	AuthRequired bool              `json:"auth_required,omitempty"`
	Message      string            `json:"message,omitempty"`
}
