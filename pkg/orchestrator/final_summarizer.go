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

// FinalSummarizer narrates a finished task run for the user: what was
// done, what failed, and one short phrase for text-to-speech. The model
// writes in the session language; the deterministic fallback counts
// item statuses instead.
type FinalSummarizer struct {
	runner *StageRunner
}

// NewFinalSummarizer builds the stage on a shared runner.
func NewFinalSummarizer(runner *StageRunner) *FinalSummarizer {
	return &FinalSummarizer{runner: runner}
}

// summaryPayload is the model's answer shape.
type summaryPayload struct {
	Summary   string `json:"summary"`
	TTSPhrase string `json:"tts_phrase"`
}

// Summarize produces the final summary for one run. It always returns
// a usable value; a model failure degrades to the status-count text.
func (s *FinalSummarizer) Summarize(ctx context.Context, userMessage, language string, tree *types.TodoTree) types.Outcome[*types.FinalSummary] {
	call := StageCall{
		StageID:  models.StageFinalSummary,
		PromptID: prompts.PromptFinalSummary,
		Vars: map[string]string{
			"user_message":  userMessage,
			"user_language": language,
			"plan_report":   PlanReport(tree),
		},
	}

	result, meta, stageErr := s.runner.Object(ctx, call)
	if stageErr != nil {
		return s.degrade(ctx, language, tree, meta, "summary model call failed: "+stageErr.Error())
	}
	if result.Fallback {
		return s.degrade(ctx, language, tree, meta, "summary response is not structured")
	}

	decoded, err := DecodeStage[summaryPayload](result)
	if err != nil || strings.TrimSpace(decoded.Summary) == "" {
		return s.degrade(ctx, language, tree, meta, "summary response did not decode")
	}

	summary := &types.FinalSummary{
		Summary:   strings.TrimSpace(decoded.Summary),
		TTSPhrase: strings.TrimSpace(decoded.TTSPhrase),
	}
	if summary.TTSPhrase == "" {
		summary.TTSPhrase = fallbackPhrase(language, tree)
	}

	outcome := types.Ok(summary)
	outcome.Meta = meta
	return outcome
}

// degrade builds the deterministic summary from the tree itself.
func (s *FinalSummarizer) degrade(ctx context.Context, language string, tree *types.TodoTree, meta types.StageMeta, reason string) types.Outcome[*types.FinalSummary] {
	s.runner.fallbackStage(ctx, models.StageFinalSummary, reason)

	counts := map[types.TodoStatus]int{}
	if tree != nil {
		counts = tree.Counts()
	}
	text := fmt.Sprintf("Completed %d item(s), %d abandoned, %d pending.",
		counts[types.TodoCompleted], counts[types.TodoAbandoned], counts[types.TodoPending])

	outcome := types.FallbackOutcome(&types.FinalSummary{
		Summary:   text,
		TTSPhrase: fallbackPhrase(language, tree),
		Fallback:  true,
	}, reason)
	outcome.Meta = meta
	return outcome
}

// fallbackPhrase picks the canned spoken phrase matching the run state.
func fallbackPhrase(language string, tree *types.TodoTree) string {
	if tree == nil {
		return keywords.TTSTaskFailed(language)
	}
	counts := tree.Counts()
	switch {
	case counts[types.TodoCompleted] > 0 && counts[types.TodoAbandoned] == 0 && counts[types.TodoPending] == 0:
		return keywords.TTSTaskDone(language)
	case counts[types.TodoCompleted] > 0:
		return keywords.TTSTaskPartial(language)
	default:
		return keywords.TTSTaskFailed(language)
	}
}

// PlanReport renders the tree as indented status lines for the summary
// prompt and the CLI report.
func PlanReport(tree *types.TodoTree) string {
	if tree == nil {
		return "(no plan)"
	}
	var b strings.Builder
	tree.Walk(func(item *types.TodoItem) bool {
		indent := strings.Repeat("  ", strings.Count(item.ID, "."))
		fmt.Fprintf(&b, "%s%s. [%s] %s", indent, item.ID, item.Status, item.Action)
		if item.Verification != nil {
			fmt.Fprintf(&b, " (verified=%t, confidence=%.0f)", item.Verification.Verified, item.Verification.Confidence)
		}
		b.WriteString("\n")
		return true
	})
	report := strings.TrimRight(b.String(), "\n")
	if report == "" {
		return "(empty plan)"
	}
	return report
}
