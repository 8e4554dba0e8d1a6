package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AgentEvent is the envelope every emitted event travels in.
type AgentEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	EventIndex    int       `json:"event_index"`
	TraceID       string    `json:"trace_id,omitempty"`
	SpanID        string    `json:"span_id,omitempty"`
	ParentID      string    `json:"parent_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"` // Links start/end event pairs
	Data          EventData `json:"data"`

	// Hierarchy fields for the frontend tree structure
	HierarchyLevel int    `json:"hierarchy_level"`
	SessionID      string `json:"session_id,omitempty"`
	Component      string `json:"component,omitempty"`
}

// Getter methods implementing the observability.AgentEvent interface.

func (e *AgentEvent) GetType() string {
	return string(e.Type)
}

func (e *AgentEvent) GetCorrelationID() string {
	return e.CorrelationID
}

func (e *AgentEvent) GetTimestamp() time.Time {
	return e.Timestamp
}

func (e *AgentEvent) GetData() interface{} {
	return e.Data
}

func (e *AgentEvent) GetTraceID() string {
	return e.TraceID
}

func (e *AgentEvent) GetParentID() string {
	return e.ParentID
}

// NewAgentEvent wraps a typed payload into an envelope.
func NewAgentEvent(eventData EventData) *AgentEvent {
	evt := &AgentEvent{
		Type:      eventData.GetEventType(),
		Timestamp: time.Now(),
		Data:      eventData,
	}
	if base, ok := eventData.(interface{ GetBaseEventData() *BaseEventData }); ok {
		bd := base.GetBaseEventData()
		evt.TraceID = bd.TraceID
		evt.SpanID = bd.SpanID
		evt.ParentID = bd.ParentID
		evt.CorrelationID = bd.CorrelationID
		evt.HierarchyLevel = bd.HierarchyLevel
		evt.SessionID = bd.SessionID
		evt.Component = bd.Component
	}
	if evt.Component == "" {
		evt.Component = GetComponentFromEventType(evt.Type)
	}
	if evt.CorrelationID == "" {
		evt.CorrelationID = uuid.NewString()
	}
	return evt
}

// Emitter is the function signature orchestrator components use to emit
// events without holding a listener reference.
type Emitter func(ctx context.Context, data EventData)

// NopEmitter drops events; used when no listener is attached.
func NopEmitter(ctx context.Context, data EventData) {}

// --- Orchestrator lifecycle ---

// OrchestratorStartEvent marks the beginning of an Execute call.
type OrchestratorStartEvent struct {
	BaseEventData
	UserMessage string `json:"user_message"`
	Mode        string `json:"mode,omitempty"`
}

func (e *OrchestratorStartEvent) GetEventType() EventType { return OrchestratorStart }

// OrchestratorEndEvent marks the completion of an Execute call.
type OrchestratorEndEvent struct {
	BaseEventData
	Mode     string        `json:"mode"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Summary  string        `json:"summary,omitempty"`
}

func (e *OrchestratorEndEvent) GetEventType() EventType { return OrchestratorEnd }

// OrchestratorErrorEvent reports an unrecoverable pipeline error.
type OrchestratorErrorEvent struct {
	BaseEventData
	Mode  string `json:"mode,omitempty"`
	Error string `json:"error"`
}

func (e *OrchestratorErrorEvent) GetEventType() EventType { return OrchestratorError }

// --- Stage events ---

// StageStartEvent marks the start of one pipeline stage.
type StageStartEvent struct {
	BaseEventData
	StageID  string `json:"stage_id"`
	PromptID string `json:"prompt_id,omitempty"`
	Model    string `json:"model,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
}

func (e *StageStartEvent) GetEventType() EventType { return StageStart }

// StageEndEvent carries the outcome of one pipeline stage.
type StageEndEvent struct {
	BaseEventData
	StageID    string        `json:"stage_id"`
	ItemID     string        `json:"item_id,omitempty"`
	Status     string        `json:"status"` // ok, fallback, fail
	Duration   time.Duration `json:"duration"`
	ModelUsed  string        `json:"model_used,omitempty"`
	ParseLevel int           `json:"parse_level,omitempty"`
}

func (e *StageEndEvent) GetEventType() EventType { return StageEnd }

// StageErrorEvent reports a failed stage together with its error kind.
type StageErrorEvent struct {
	BaseEventData
	StageID string `json:"stage_id"`
	ItemID  string `json:"item_id,omitempty"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

func (e *StageErrorEvent) GetEventType() EventType { return StageError }

// StageFallbackEvent reports that a stage answered from its fallback path.
type StageFallbackEvent struct {
	BaseEventData
	StageID string `json:"stage_id"`
	Reason  string `json:"reason"`
}

func (e *StageFallbackEvent) GetEventType() EventType { return StageFallback }

// --- LLM events ---

// LLMGenerationStartEvent marks one gateway call attempt.
type LLMGenerationStartEvent struct {
	BaseEventData
	Model    string `json:"model"`
	Provider string `json:"provider,omitempty"`
	JSONMode bool   `json:"json_mode"`
	Attempt  int    `json:"attempt"`
}

func (e *LLMGenerationStartEvent) GetEventType() EventType { return LLMGenerationStart }

// LLMGenerationEndEvent carries the result of one gateway call.
type LLMGenerationEndEvent struct {
	BaseEventData
	Model        string        `json:"model"`
	Duration     time.Duration `json:"duration"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
}

func (e *LLMGenerationEndEvent) GetEventType() EventType { return LLMGenerationEnd }

// LLMGenerationErrorEvent reports a failed gateway attempt.
type LLMGenerationErrorEvent struct {
	BaseEventData
	Model   string `json:"model"`
	Attempt int    `json:"attempt"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

func (e *LLMGenerationErrorEvent) GetEventType() EventType { return LLMGenerationError }

// FallbackModelUsedEvent reports a switch from the primary model.
type FallbackModelUsedEvent struct {
	BaseEventData
	FromModel string `json:"from_model"`
	ToModel   string `json:"to_model"`
	Reason    string `json:"reason"`
}

func (e *FallbackModelUsedEvent) GetEventType() EventType { return FallbackModelUsed }

// ThrottlingDetectedEvent reports a rate-limit response and the applied delay.
type ThrottlingDetectedEvent struct {
	BaseEventData
	Model      string        `json:"model"`
	Attempt    int           `json:"attempt"`
	RetryDelay time.Duration `json:"retry_delay"`
}

func (e *ThrottlingDetectedEvent) GetEventType() EventType { return ThrottlingDetected }

// ContextCancelledEvent reports cooperative cancellation.
type ContextCancelledEvent struct {
	BaseEventData
	Where string `json:"where"`
}

func (e *ContextCancelledEvent) GetEventType() EventType { return ContextCancelled }

// --- Tool events ---

// ToolCallStartEvent marks one MCP tool invocation.
type ToolCallStartEvent struct {
	BaseEventData
	Server    string `json:"server"`
	Tool      string `json:"tool"`
	PlanIndex int    `json:"plan_index"`
	ItemID    string `json:"item_id,omitempty"`
}

func (e *ToolCallStartEvent) GetEventType() EventType { return ToolCallStart }

// ToolCallEndEvent carries the result of one MCP tool invocation.
type ToolCallEndEvent struct {
	BaseEventData
	Server    string        `json:"server"`
	Tool      string        `json:"tool"`
	PlanIndex int           `json:"plan_index"`
	ItemID    string        `json:"item_id,omitempty"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
}

func (e *ToolCallEndEvent) GetEventType() EventType { return ToolCallEnd }

// ToolCallErrorEvent reports a transport-level tool failure.
type ToolCallErrorEvent struct {
	BaseEventData
	Server    string `json:"server"`
	Tool      string `json:"tool"`
	PlanIndex int    `json:"plan_index"`
	Error     string `json:"error"`
}

func (e *ToolCallErrorEvent) GetEventType() EventType { return ToolCallError }

// MCPServerConnectionEvent reports server connect lifecycle.
type MCPServerConnectionEvent struct {
	BaseEventData
	Server string    `json:"server"`
	Phase  EventType `json:"-"`
	Error  string    `json:"error,omitempty"`
}

func (e *MCPServerConnectionEvent) GetEventType() EventType {
	if e.Phase == "" {
		return MCPServerConnectionStart
	}
	return e.Phase
}

// MCPServerDiscoveryEvent reports tool discovery results per server.
type MCPServerDiscoveryEvent struct {
	BaseEventData
	Server    string `json:"server"`
	ToolCount int    `json:"tool_count"`
	FromCache bool   `json:"from_cache"`
}

func (e *MCPServerDiscoveryEvent) GetEventType() EventType { return MCPServerDiscovery }

// --- Todo item events ---

// TodoItemEvent covers item lifecycle transitions.
type TodoItemEvent struct {
	BaseEventData
	Phase   EventType `json:"-"`
	ItemID  string    `json:"item_id"`
	Action  string    `json:"action,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Status  string    `json:"status,omitempty"`
}

func (e *TodoItemEvent) GetEventType() EventType {
	if e.Phase == "" {
		return TodoItemStart
	}
	return e.Phase
}

// TodoReplannedEvent reports replacement items generated by the replanner.
type TodoReplannedEvent struct {
	BaseEventData
	ItemID         string   `json:"item_id"`
	Strategy       string   `json:"strategy"`
	ReplacementIDs []string `json:"replacement_ids"`
}

func (e *TodoReplannedEvent) GetEventType() EventType { return TodoReplanned }

// --- Verification events ---

// VerificationAttemptEvent covers one visual or data verification attempt.
type VerificationAttemptEvent struct {
	BaseEventData
	Phase       EventType `json:"-"`
	ItemID      string    `json:"item_id"`
	State       string    `json:"state"` // visual_1, visual_2, visual_3, mcp_fallback
	VisionModel string    `json:"vision_model,omitempty"`
	CaptureMode string    `json:"capture_mode,omitempty"`
	Accepted    bool      `json:"accepted,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

func (e *VerificationAttemptEvent) GetEventType() EventType {
	if e.Phase == "" {
		return VerificationAttemptStart
	}
	return e.Phase
}

// VerificationDecidedEvent carries the final per-item verdict.
type VerificationDecidedEvent struct {
	BaseEventData
	ItemID     string  `json:"item_id"`
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	NextAction string  `json:"next_action"`
	RootCause  string  `json:"root_cause,omitempty"`
}

func (e *VerificationDecidedEvent) GetEventType() EventType { return VerificationDecided }

// SecurityRejectionEvent reports an unstructured vision response rejected
// by the first acceptance rule.
type SecurityRejectionEvent struct {
	BaseEventData
	ItemID string `json:"item_id"`
	State  string `json:"state"`
	Detail string `json:"detail"`
}

func (e *SecurityRejectionEvent) GetEventType() EventType { return SecurityRejection }

// --- Structured output events ---

// StructuredOutputEvent covers structured generation lifecycle.
type StructuredOutputEvent struct {
	BaseEventData
	Phase      EventType `json:"-"`
	StageID    string    `json:"stage_id,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	ParseLevel int       `json:"parse_level,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (e *StructuredOutputEvent) GetEventType() EventType {
	if e.Phase == "" {
		return StructuredOutputStart
	}
	return e.Phase
}

// --- Self-analysis events ---

// AnalysisEvent covers the dev-mode analysis lifecycle.
type AnalysisEvent struct {
	BaseEventData
	Phase        EventType `json:"-"`
	Depth        int       `json:"depth,omitempty"`
	ProblemCount int       `json:"problem_count,omitempty"`
	Fallback     bool      `json:"fallback,omitempty"`
}

func (e *AnalysisEvent) GetEventType() EventType {
	if e.Phase == "" {
		return AnalysisStart
	}
	return e.Phase
}

// InterventionEvent reports the password-gated intervention path. The
// attempted password never travels in events; only its length does.
type InterventionEvent struct {
	BaseEventData
	Phase         EventType `json:"-"`
	PlanItems     int       `json:"plan_items,omitempty"`
	AttemptLength int       `json:"attempt_length,omitempty"`
}

func (e *InterventionEvent) GetEventType() EventType {
	if e.Phase == "" {
		return InterventionQueued
	}
	return e.Phase
}

// MemoryEntityWrittenEvent reports a successful write to the memory MCP server.
type MemoryEntityWrittenEvent struct {
	BaseEventData
	EntityName string `json:"entity_name"`
	EntityType string `json:"entity_type"`
}

func (e *MemoryEntityWrittenEvent) GetEventType() EventType { return MemoryEntityWritten }
