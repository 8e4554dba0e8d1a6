package orchestrator

import (
	"context"
	"fmt"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// ContextEnricher expands a raw task request into what the planner
// needs: implicit requirements, prerequisites and a complexity score.
// It never blocks the pipeline; on any failure it degrades to the
// original message flagged as unenriched.
type ContextEnricher struct {
	runner *StageRunner
}

// NewContextEnricher builds the stage on a shared runner.
func NewContextEnricher(runner *StageRunner) *ContextEnricher {
	return &ContextEnricher{runner: runner}
}

// Enrich returns the enriched request for a user message.
func (e *ContextEnricher) Enrich(ctx context.Context, userMessage string) types.Outcome[*types.EnrichedRequest] {
	call := StageCall{
		StageID:  models.StageContextEnrich,
		PromptID: prompts.PromptContextEnrich,
		Vars:     map[string]string{"user_message": userMessage},
	}

	result, meta, stageErr := e.runner.Object(ctx, call)
	if stageErr != nil {
		return e.degrade(ctx, userMessage, meta, fmt.Sprintf("enrichment model unavailable (%s)", stageErr.Kind))
	}
	if result.Fallback {
		return e.degrade(ctx, userMessage, meta, "unparseable enrichment response")
	}

	enriched, err := DecodeStage[types.EnrichedRequest](result)
	if err != nil {
		return e.degrade(ctx, userMessage, meta, fmt.Sprintf("malformed enrichment payload: %v", err))
	}
	if !validComplexity(result.Object["estimated_complexity"]) {
		return e.degrade(ctx, userMessage, meta, fmt.Sprintf("complexity %v outside 1..10", result.Object["estimated_complexity"]))
	}
	if enriched.Enriched == "" {
		enriched.Enriched = userMessage
	}
	enriched.Original = userMessage

	outcome := types.Ok(&enriched)
	outcome.Meta = meta
	return outcome
}

// degrade emits the original message unchanged, flagged so downstream
// stages know enrichment never happened.
func (e *ContextEnricher) degrade(ctx context.Context, userMessage string, meta types.StageMeta, reason string) types.Outcome[*types.EnrichedRequest] {
	e.runner.fallbackStage(ctx, models.StageContextEnrich, reason)
	fallback := &types.EnrichedRequest{
		Original:            userMessage,
		Enriched:            userMessage,
		EstimatedComplexity: 5,
		Fallback:            true,
	}
	outcome := types.FallbackOutcome(fallback, reason)
	outcome.Meta = meta
	return outcome
}

// validComplexity accepts only a JSON number that is an integer in
// 1..10. Strings and fractions reject the whole enrichment.
func validComplexity(raw interface{}) bool {
	value, ok := raw.(float64)
	if !ok {
		return false
	}
	if value != float64(int(value)) {
		return false
	}
	return value >= 1 && value <= 10
}
