// Command schema-gen emits JSON Schemas for the event stream and the
// stage payloads, so the frontend and the prompt templates stay aligned
// with the Go types.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

// EventUnion gathers every event payload the polling API can deliver.
type EventUnion struct {
	OrchestratorStart   events.OrchestratorStartEvent   `json:"orchestrator_start"`
	OrchestratorEnd     events.OrchestratorEndEvent     `json:"orchestrator_end"`
	OrchestratorError   events.OrchestratorErrorEvent   `json:"orchestrator_error"`
	StageStart          events.StageStartEvent          `json:"stage_start"`
	StageEnd            events.StageEndEvent            `json:"stage_end"`
	StageError          events.StageErrorEvent          `json:"stage_error"`
	StageFallback       events.StageFallbackEvent       `json:"stage_fallback"`
	LLMGenerationStart  events.LLMGenerationStartEvent  `json:"llm_generation_start"`
	LLMGenerationEnd    events.LLMGenerationEndEvent    `json:"llm_generation_end"`
	LLMGenerationError  events.LLMGenerationErrorEvent  `json:"llm_generation_error"`
	FallbackModelUsed   events.FallbackModelUsedEvent   `json:"fallback_model_used"`
	ThrottlingDetected  events.ThrottlingDetectedEvent  `json:"throttling_detected"`
	ContextCancelled    events.ContextCancelledEvent    `json:"context_cancelled"`
	ToolCallStart       events.ToolCallStartEvent       `json:"tool_call_start"`
	ToolCallEnd         events.ToolCallEndEvent         `json:"tool_call_end"`
	ToolCallError       events.ToolCallErrorEvent       `json:"tool_call_error"`
	MCPServerConnection events.MCPServerConnectionEvent `json:"mcp_server_connection"`
	MCPServerDiscovery  events.MCPServerDiscoveryEvent  `json:"mcp_server_discovery"`
	TodoItem            events.TodoItemEvent            `json:"todo_item"`
	TodoReplanned       events.TodoReplannedEvent       `json:"todo_replanned"`
	VerificationAttempt events.VerificationAttemptEvent `json:"verification_attempt"`
	VerificationDecided events.VerificationDecidedEvent `json:"verification_decided"`
	SecurityRejection   events.SecurityRejectionEvent   `json:"security_rejection"`
	StructuredOutput    events.StructuredOutputEvent    `json:"structured_output"`
	Analysis            events.AnalysisEvent            `json:"analysis"`
	Intervention        events.InterventionEvent        `json:"intervention"`
	MemoryEntityWritten events.MemoryEntityWrittenEvent `json:"memory_entity_written"`
}

// StageUnion gathers the structured answers each pipeline stage decodes.
type StageUnion struct {
	ModeDecision     types.ModeDecision     `json:"mode_decision"`
	EnrichedRequest  types.EnrichedRequest  `json:"enriched_request"`
	TodoTree         types.TodoTree         `json:"todo_tree"`
	ServerSelection  types.ServerSelection  `json:"server_selection"`
	ToolPlan         types.ToolPlan         `json:"tool_plan"`
	ExecutionReport  types.ExecutionReport  `json:"execution_report"`
	Verification     types.Verification     `json:"verification"`
	AnalysisReport   types.AnalysisReport   `json:"analysis_report"`
	InterventionPlan types.InterventionPlan `json:"intervention_plan"`
	FinalSummary     types.FinalSummary     `json:"final_summary"`
}

func main() {
	outDir := "schemas"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", outDir, err)
		os.Exit(1)
	}

	reflector := &jsonschema.Reflector{
		DoNotReference: false,
		ExpandedStruct: true,
	}

	targets := map[string]interface{}{
		"events.json": &EventUnion{},
		"stages.json": &StageUnion{},
	}

	for name, target := range targets {
		schema := reflector.Reflect(target)
		raw, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to marshal %s: %v\n", name, err)
			os.Exit(1)
		}
		path := filepath.Join(outDir, name)
		if err := os.WriteFile(path, raw, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", path)
	}
}
