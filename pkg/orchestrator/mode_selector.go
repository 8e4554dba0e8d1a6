package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/keywords"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// ModeSelector classifies an utterance into chat, task or dev. A model
// answer is preferred; when the model fails or returns something the
// synonym table cannot place, a keyword probe over the message decides
// instead, so routing always produces a mode.
type ModeSelector struct {
	runner *StageRunner
}

// NewModeSelector builds the stage on a shared runner.
func NewModeSelector(runner *StageRunner) *ModeSelector {
	return &ModeSelector{runner: runner}
}

// Select returns the mode decision for one user message.
func (s *ModeSelector) Select(ctx context.Context, userMessage string, history []types.ChatMessage) types.Outcome[*types.ModeDecision] {
	call := StageCall{
		StageID:  models.StageModeSelect,
		PromptID: prompts.PromptModeSelect,
		Vars: map[string]string{
			"user_message": userMessage,
			"history":      renderHistory(history),
		},
	}

	result, meta, stageErr := s.runner.Object(ctx, call)
	if stageErr != nil {
		decision := keywordModeDecision(userMessage)
		reason := fmt.Sprintf("model unavailable (%s), keyword probe chose %s", stageErr.Kind, decision.Mode)
		s.runner.fallbackStage(ctx, call.StageID, reason)
		outcome := types.FallbackOutcome(decision, reason)
		outcome.Meta = meta
		return outcome
	}
	if result.Fallback {
		decision := keywordModeDecision(userMessage)
		reason := fmt.Sprintf("unparseable classification, keyword probe chose %s", decision.Mode)
		s.runner.fallbackStage(ctx, call.StageID, reason)
		outcome := types.FallbackOutcome(decision, reason)
		outcome.Meta = meta
		return outcome
	}

	decision, ok := decodeModeDecision(result.Object)
	if !ok {
		decision = keywordModeDecision(userMessage)
		reason := fmt.Sprintf("unrecognized mode in classification, keyword probe chose %s", decision.Mode)
		s.runner.fallbackStage(ctx, call.StageID, reason)
		outcome := types.FallbackOutcome(decision, reason)
		outcome.Meta = meta
		return outcome
	}

	outcome := types.Ok(decision)
	outcome.Meta = meta
	return outcome
}

// decodeModeDecision validates the parsed object: mode must normalize
// onto a canonical value and confidence must be numeric.
func decodeModeDecision(obj map[string]interface{}) (*types.ModeDecision, bool) {
	rawMode, _ := obj["mode"].(string)
	mode := types.NormalizeMode(strings.ToLower(strings.TrimSpace(rawMode)))
	if mode == "" {
		return nil, false
	}
	confidence, ok := obj["confidence"].(float64)
	if !ok {
		return nil, false
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	reasoning, _ := obj["reasoning"].(string)
	return &types.ModeDecision{Mode: mode, Confidence: confidence, Reasoning: reasoning}, true
}

// keywordModeDecision is the deterministic probe used when the model
// path yields nothing usable. Dev markers outrank action verbs; plain
// conversation is the default.
func keywordModeDecision(message string) *types.ModeDecision {
	switch {
	case keywords.IsDevRequest(message):
		return &types.ModeDecision{Mode: types.ModeDev, Confidence: 0.9, Reasoning: "developer self-analysis wording detected"}
	case keywords.IsActionRequest(message):
		return &types.ModeDecision{Mode: types.ModeTask, Confidence: 0.75, Reasoning: "imperative action wording detected"}
	default:
		return &types.ModeDecision{Mode: types.ModeChat, Confidence: 0.5, Reasoning: "no task or dev wording detected"}
	}
}

// renderHistory flattens recent turns into prompt text, oldest first.
func renderHistory(history []types.ChatMessage) string {
	if len(history) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, msg := range history {
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
