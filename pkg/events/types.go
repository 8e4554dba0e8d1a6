package events

import (
	"time"
)

// EventType identifies every event the orchestrator can emit.
type EventType string

// Pipeline lifecycle events
const (
	OrchestratorStart EventType = "orchestrator_start"
	OrchestratorEnd   EventType = "orchestrator_end"
	OrchestratorError EventType = "orchestrator_error"

	// Stage events
	StageStart    EventType = "stage_start"
	StageEnd      EventType = "stage_end"
	StageError    EventType = "stage_error"
	StageFallback EventType = "stage_fallback"

	// LLM events
	LLMGenerationStart EventType = "llm_generation_start"
	LLMGenerationEnd   EventType = "llm_generation_end"
	LLMGenerationError EventType = "llm_generation_error"

	// Fallback events
	FallbackModelUsed  EventType = "fallback_model_used"
	ThrottlingDetected EventType = "throttling_detected"
	ContextCancelled   EventType = "context_cancelled"

	// Tool events
	ToolCallStart EventType = "tool_call_start"
	ToolCallEnd   EventType = "tool_call_end"
	ToolCallError EventType = "tool_call_error"

	// MCP server events
	MCPServerConnectionStart EventType = "mcp_server_connection_start"
	MCPServerConnectionEnd   EventType = "mcp_server_connection_end"
	MCPServerConnectionError EventType = "mcp_server_connection_error"
	MCPServerDiscovery       EventType = "mcp_server_discovery"

	// Todo item events
	TodoItemStart     EventType = "todo_item_start"
	TodoItemCompleted EventType = "todo_item_completed"
	TodoItemRetry     EventType = "todo_item_retry"
	TodoItemAbandoned EventType = "todo_item_abandoned"
	TodoReplanned     EventType = "todo_replanned"

	// Verification events
	VerificationAttemptStart EventType = "verification_attempt_start"
	VerificationAttemptEnd   EventType = "verification_attempt_end"
	VerificationEscalated    EventType = "verification_escalated"
	VerificationDecided      EventType = "verification_decided"
	SecurityRejection        EventType = "security_rejection"

	// Structured output events
	StructuredOutputStart EventType = "structured_output_start"
	StructuredOutputEnd   EventType = "structured_output_end"
	StructuredOutputError EventType = "structured_output_error"

	// Self-analysis events
	AnalysisStart       EventType = "analysis_start"
	AnalysisEnd         EventType = "analysis_end"
	AnalysisDeepened    EventType = "analysis_deepened"
	InterventionQueued  EventType = "intervention_queued"
	InterventionDenied  EventType = "intervention_denied"
	MemoryEntityWritten EventType = "memory_entity_written"
)

// EventData is implemented by every typed event payload.
type EventData interface {
	GetEventType() EventType
}

// BaseEventData carries the fields shared by all event payloads.
type BaseEventData struct {
	Timestamp      time.Time              `json:"timestamp"`
	TraceID        string                 `json:"trace_id,omitempty"`
	SpanID         string                 `json:"span_id,omitempty"`
	EventID        string                 `json:"event_id,omitempty"`
	ParentID       string                 `json:"parent_id,omitempty"`
	CorrelationID  string                 `json:"correlation_id,omitempty"` // Links start/end event pairs
	HierarchyLevel int                    `json:"hierarchy_level"`          // 0=root, 1=child
	SessionID      string                 `json:"session_id,omitempty"`
	Component      string                 `json:"component,omitempty"` // orchestrator, stage, llm, tool, verifier
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// SetHierarchyFields sets the hierarchy-related fields on BaseEventData.
func (b *BaseEventData) SetHierarchyFields(parentID string, level int, sessionID string, component string) {
	b.ParentID = parentID
	b.HierarchyLevel = level
	b.SessionID = sessionID
	b.Component = component
}

// GetBaseEventData returns a pointer for hierarchy field setting.
func (b *BaseEventData) GetBaseEventData() *BaseEventData {
	return b
}

// GetComponentFromEventType maps an event type to its emitting component.
func GetComponentFromEventType(eventType EventType) string {
	switch {
	case eventType == OrchestratorStart || eventType == OrchestratorEnd || eventType == OrchestratorError:
		return "orchestrator"
	case eventType == StageStart || eventType == StageEnd || eventType == StageError || eventType == StageFallback ||
		eventType == StructuredOutputStart || eventType == StructuredOutputEnd || eventType == StructuredOutputError:
		return "stage"
	case eventType == LLMGenerationStart || eventType == LLMGenerationEnd || eventType == LLMGenerationError ||
		eventType == FallbackModelUsed || eventType == ThrottlingDetected:
		return "llm"
	case eventType == ToolCallStart || eventType == ToolCallEnd || eventType == ToolCallError ||
		eventType == MCPServerConnectionStart || eventType == MCPServerConnectionEnd ||
		eventType == MCPServerConnectionError || eventType == MCPServerDiscovery:
		return "tool"
	case eventType == VerificationAttemptStart || eventType == VerificationAttemptEnd ||
		eventType == VerificationEscalated || eventType == VerificationDecided || eventType == SecurityRejection:
		return "verifier"
	case eventType == AnalysisStart || eventType == AnalysisEnd || eventType == AnalysisDeepened ||
		eventType == InterventionQueued || eventType == InterventionDenied || eventType == MemoryEntityWritten:
		return "selfanalysis"
	default:
		return "orchestrator"
	}
}
