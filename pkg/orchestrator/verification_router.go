package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/keywords"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// Router confidences run on the 0..100 scale the verifier thresholds
// use. A heuristic this strong only yields to a clearly stronger LLM
// recommendation.
const (
	heuristicKeepThreshold = 80
	llmOverrideMargin      = 20
)

// VerificationRouter decides how a finished item gets verified: by
// looking at the screen, by querying data through MCP tools, or both.
// A rule-based strategy always exists; the LLM is advisory and can
// only override it by a clear margin.
type VerificationRouter struct {
	runner  *StageRunner
	catalog ToolCatalog
	output  *utils.ToolOutputHandler
}

// NewVerificationRouter builds the stage on a shared runner and registry.
func NewVerificationRouter(runner *StageRunner, catalog ToolCatalog) *VerificationRouter {
	return &VerificationRouter{
		runner:  runner,
		catalog: catalog,
		output:  utils.NewToolOutputHandler(runner.Logger()),
	}
}

// Route produces the verification plan for one executed item. It
// cannot fail: when the advisory model is unreachable the heuristic
// strategy stands alone.
func (r *VerificationRouter) Route(ctx context.Context, item *types.TodoItem, selection *types.ServerSelection, report *types.ExecutionReport) *types.VerificationDecision {
	heurPath, heurConfidence, heurReason := r.heuristic(item)

	decision := &types.VerificationDecision{
		VisualPossible:      heurPath != types.VerifyPathData,
		Confidence:          heurConfidence,
		Reason:              heurReason,
		RecommendedPath:     heurPath,
		AllowVisualFallback: true,
	}

	if llmDecision, ok := r.advisory(ctx, item, selection, report); ok {
		keepHeuristic := heurConfidence >= heuristicKeepThreshold &&
			llmDecision.Confidence <= heurConfidence+llmOverrideMargin
		if !keepHeuristic {
			decision.RecommendedPath = llmDecision.RecommendedPath
			decision.Confidence = llmDecision.Confidence
			decision.Reason = llmDecision.Reason
			decision.VisualPossible = llmDecision.VisualPossible
			decision.AllowVisualFallback = llmDecision.AllowVisualFallback
			r.runner.debugf("🔀 Advisory model overrode heuristic for item %s: %s (%.0f) over %s (%.0f)",
				item.ID, llmDecision.RecommendedPath, llmDecision.Confidence, heurPath, heurConfidence)
		}
		decision.AdditionalChecks = r.validateChecks(llmDecision.AdditionalChecks)
	}

	decision.VerificationAction = keywords.VerificationAction(item.Action)
	decision.AdditionalChecks = mergeChecks(decision.AdditionalChecks, r.heuristicChecks(item, selection))

	r.runner.debugf("🔍 Verification route for item %s: path=%s, confidence=%.0f, checks=%d",
		item.ID, decision.RecommendedPath, decision.Confidence, len(decision.AdditionalChecks))
	return decision
}

// heuristic is the rule-based strategy: file and system work verifies
// through data, screen-bound work through vision.
func (r *VerificationRouter) heuristic(item *types.TodoItem) (types.VerifyPath, float64, string) {
	action := item.Action
	switch {
	case keywords.IsFileAction(action):
		return types.VerifyPathData, 90, "file state is directly checkable through the filesystem server"
	case keywords.IsSystemAction(action):
		return types.VerifyPathData, 85, "process and shell state is directly queryable"
	case keywords.IsAppAction(action):
		return types.VerifyPathVisual, 85, "application state shows on screen"
	case keywords.IsArithmeticAction(action):
		return types.VerifyPathVisual, 75, "numeric result should be visible on screen"
	case keywords.IsWebAction(action) || keywords.IsNavigateAction(action):
		return types.VerifyPathVisual, 70, "page state shows on screen"
	default:
		return types.VerifyPathVisual, 60, "no strong signal, defaulting to a screen check"
	}
}

// advisory asks the routing model for a second opinion. Failures and
// unparseable answers just drop the advice.
func (r *VerificationRouter) advisory(ctx context.Context, item *types.TodoItem, selection *types.ServerSelection, report *types.ExecutionReport) (*types.VerificationDecision, bool) {
	servers := "(none)"
	if selection != nil && len(selection.SelectedServers) > 0 {
		servers = strings.Join(selection.SelectedServers, ", ")
	}
	modelID := r.runner.Models().StageModel(models.StageVerifyRoute).Model

	call := StageCall{
		StageID:  models.StageVerifyRoute,
		PromptID: prompts.PromptVerifyRoute,
		ItemID:   item.ID,
		Vars: map[string]string{
			"action":            item.Action,
			"success_criteria":  item.SuccessCriteria,
			"execution_summary": executionSummary(report, r.output, modelID),
			"servers":           servers,
		},
	}

	result, _, stageErr := r.runner.Object(ctx, call)
	if stageErr != nil || result.Fallback {
		r.runner.debugf("🔍 Routing advisory unavailable for item %s, heuristic stands alone", item.ID)
		return nil, false
	}

	decision, err := DecodeStage[types.VerificationDecision](result)
	if err != nil {
		return nil, false
	}
	switch decision.RecommendedPath {
	case types.VerifyPathVisual, types.VerifyPathData, types.VerifyPathHybrid:
	default:
		return nil, false
	}
	decision.Confidence = normalizeConfidence(decision.Confidence)
	return &decision, true
}

// validateChecks keeps only advisory probes that target real tools.
func (r *VerificationRouter) validateChecks(checks []*types.AdditionalCheck) []*types.AdditionalCheck {
	var valid []*types.AdditionalCheck
	for _, check := range checks {
		if check == nil || check.Server == "" || check.Tool == "" {
			continue
		}
		if _, bare, ok := types.SplitQualifiedTool(check.Tool); ok {
			check.Tool = bare
		}
		if !r.catalog.HasTool(check.Server, check.Tool) {
			r.runner.warnf("⚠️ Dropping advisory check %s__%s: unknown tool", check.Server, check.Tool)
			continue
		}
		valid = append(valid, check)
	}
	return valid
}

// Probe tool candidates per action vocabulary, tried in order against
// the catalog.
var (
	filesystemProbeTools = []string{"get_file_info", "stat", "list_directory", "read_file", "read_text_file"}
	pageProbeTools       = []string{"browser_snapshot", "browser_screenshot", "page_snapshot", "get_page_content"}
	scriptingProbeTools  = []string{"run_applescript", "applescript_run", "execute_script", "run_script"}
	shellProbeTools      = []string{"execute_command", "run_command", "exec"}
)

// heuristicChecks derives data probes from the item's action
// vocabulary: file cues get a filesystem probe, browser cues a
// page-state probe, app cues a scripting probe, system cues a shell
// probe.
func (r *VerificationRouter) heuristicChecks(item *types.TodoItem, selection *types.ServerSelection) []*types.AdditionalCheck {
	var preferred []string
	if selection != nil {
		preferred = selection.SelectedServers
	}

	var checks []*types.AdditionalCheck
	if keywords.IsFileAction(item.Action) {
		if check := r.findProbe(preferred, filesystemProbeTools); check != nil {
			if path := extractPath(item); path != "" {
				check.Parameters = map[string]interface{}{"path": path}
			}
			check.ExpectedEvidence = item.SuccessCriteria
			checks = append(checks, check)
		}
	}
	if keywords.IsWebAction(item.Action) || keywords.IsNavigateAction(item.Action) {
		if check := r.findProbe(preferred, pageProbeTools); check != nil {
			check.ExpectedEvidence = item.SuccessCriteria
			checks = append(checks, check)
		}
	}
	if keywords.IsAppAction(item.Action) {
		if check := r.findProbe(preferred, scriptingProbeTools); check != nil {
			check.ExpectedEvidence = item.SuccessCriteria
			checks = append(checks, check)
		}
	}
	if keywords.IsSystemAction(item.Action) {
		if check := r.findProbe(preferred, shellProbeTools); check != nil {
			check.ExpectedEvidence = item.SuccessCriteria
			checks = append(checks, check)
		}
	}
	return checks
}

// findProbe locates the first candidate tool, scanning the item's own
// servers before the rest of the registry.
func (r *VerificationRouter) findProbe(preferred []string, candidates []string) *types.AdditionalCheck {
	seen := make(map[string]bool, len(preferred))
	ordered := make([]string, 0, len(preferred)+4)
	for _, server := range preferred {
		ordered = append(ordered, server)
		seen[server] = true
	}
	for _, server := range r.catalog.ServerNames() {
		if !seen[server] {
			ordered = append(ordered, server)
		}
	}

	for _, server := range ordered {
		for _, tool := range candidates {
			if r.catalog.HasTool(server, tool) {
				return &types.AdditionalCheck{Server: server, Tool: tool}
			}
		}
	}
	return nil
}

// mergeChecks appends derived probes that the advisory set does not
// already cover.
func mergeChecks(advisory, derived []*types.AdditionalCheck) []*types.AdditionalCheck {
	seen := make(map[string]bool, len(advisory))
	for _, check := range advisory {
		seen[check.Server+"__"+check.Tool] = true
	}
	merged := advisory
	for _, check := range derived {
		key := check.Server + "__" + check.Tool
		if !seen[key] {
			seen[key] = true
			merged = append(merged, check)
		}
	}
	return merged
}

var pathTokenPattern = regexp.MustCompile(`(?:^|\s)((?:/|~/)[^\s"']+)`)

// extractPath pulls a filesystem path from the item, preferring an
// explicit parameter over a token in the action text.
func extractPath(item *types.TodoItem) string {
	if p, ok := item.Parameters["path"].(string); ok && p != "" {
		return p
	}
	if m := pathTokenPattern.FindStringSubmatch(item.Action); m != nil {
		return strings.TrimRight(m[1], ".,;:!?")
	}
	if m := pathTokenPattern.FindStringSubmatch(item.SuccessCriteria); m != nil {
		return strings.TrimRight(m[1], ".,;:!?")
	}
	return ""
}

// normalizeConfidence folds a 0..1 answer onto the 0..100 scale the
// verifier thresholds use.
func normalizeConfidence(confidence float64) float64 {
	if confidence > 0 && confidence <= 1 {
		return confidence * 100
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}

// executionSummary renders a report for verification prompts, token
// truncating each tool output so one noisy call cannot crowd out the
// rest.
func executionSummary(report *types.ExecutionReport, handler *utils.ToolOutputHandler, modelID string) string {
	if report == nil || len(report.Results) == 0 {
		return "(no tool calls were executed)"
	}
	var b strings.Builder
	for i, res := range report.Results {
		status := "ok"
		if !res.Success {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "%d. %s [%s]", i+1, res.Tool, status)
		if res.Error != "" {
			fmt.Fprintf(&b, " error: %s", handler.TruncateForPrompt(res.Error, modelID, 200))
		}
		if data, ok := res.Data.(string); ok && data != "" && res.Error == "" {
			fmt.Fprintf(&b, " output: %s", handler.TruncateForPrompt(data, modelID, 400))
		}
		b.WriteString("\n")
	}
	if report.StoppedAtIndex != nil {
		fmt.Fprintf(&b, "Execution stopped at call %d (%s); later calls never ran.\n", *report.StoppedAtIndex+1, report.StoppedReason)
	}
	return strings.TrimRight(b.String(), "\n")
}
