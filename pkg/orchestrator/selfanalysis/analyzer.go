// Package selfanalysis is the dev-mode pipeline: the assistant reads
// its own logs through the MCP filesystem server, names what is wrong,
// and, behind a password gate, turns the findings into a repair plan
// the task pipeline can run.
package selfanalysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/conditional"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/keywords"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// maxAnalysisDepth is the hard ceiling on recursive deepening; the
// configured value never raises it.
const maxAnalysisDepth = 5

// Analyzer implements orchestrator.DevHandler.
type Analyzer struct {
	runner    *orchestrator.StageRunner
	catalog   orchestrator.ToolCatalog
	decider   *conditional.Decider
	settings  models.AnalysisSettings
	secret    string
	threshold models.Thresholds
	startedAt time.Time
}

// New builds the analyzer. decider may be nil; ambiguous deepening
// decisions then stay shallow.
func New(runner *orchestrator.StageRunner, catalog orchestrator.ToolCatalog, decider *conditional.Decider, settings *models.Settings) *Analyzer {
	if settings == nil {
		settings = models.DefaultSettings()
	}
	return &Analyzer{
		runner:    runner,
		catalog:   catalog,
		decider:   decider,
		settings:  settings.Analysis,
		secret:    settings.Intervention.Password,
		threshold: settings.Thresholds,
		startedAt: time.Now(),
	}
}

// Handle runs the dev-mode pipeline for one request. Analysis always
// runs; the intervention plan additionally requires the password and
// explicit repair wording.
func (a *Analyzer) Handle(ctx context.Context, req *types.DevRequest) *types.DevResult {
	a.runner.Emitter()(ctx, &events.AnalysisEvent{Phase: events.AnalysisStart})
	a.infof("🔍 Starting self-analysis")

	snapshot := a.GatherContext(ctx, req.History)
	report := a.analyze(ctx, req, snapshot)

	result := &types.DevResult{
		Report:  report,
		Context: snapshot,
		Todo:    BuildTodo(report),
		Message: report.Summary,
	}

	a.runner.Emitter()(ctx, &events.AnalysisEvent{
		Phase:        events.AnalysisEnd,
		Depth:        report.Depth,
		ProblemCount: len(report.Problems),
		Fallback:     report.Fallback,
	})
	a.persistAnalysis(ctx, report)

	if !keywords.IsInterventionRequest(req.UserMessage) {
		return result
	}

	if !a.VerifyPassword(req.Password) {
		a.warnf("🔒 Intervention denied: password mismatch (attempt length %d)", len(req.Password))
		a.runner.Emitter()(ctx, &events.InterventionEvent{
			Phase:         events.InterventionDenied,
			AttemptLength: len(req.Password),
		})
		result.AuthRequired = true
		result.Message = "Code intervention requires authorization."
		return result
	}

	plan := a.BuildPlan(ctx, report)
	if plan == nil || len(plan.Steps) == 0 {
		result.Message = report.Summary + " No actionable repair plan could be built."
		return result
	}

	result.Plan = plan
	a.persistInterventionContext(ctx, plan)
	a.runner.Emitter()(ctx, &events.InterventionEvent{
		Phase:     events.InterventionQueued,
		PlanItems: len(plan.Steps),
	})
	a.infof("🔧 Intervention plan queued with %d step(s)", len(plan.Steps))
	return result
}

// analysisPayload mirrors the DEV_ANALYZE answer shape.
type analysisPayload struct {
	Summary         string           `json:"summary"`
	Problems        []*types.Problem `json:"problems"`
	NeedsDeeperLook bool             `json:"needs_deeper_look"`
	Insights        []string         `json:"insights"`
}

// analyze runs the first pass plus the depth-limited deepening loop.
// The visited set keys on normalized problem signatures so mutually
// triggering problems cannot loop.
func (a *Analyzer) analyze(ctx context.Context, req *types.DevRequest, snapshot *types.AnalysisContext) *types.AnalysisReport {
	report := a.analyzeOnce(ctx, req, snapshot, nil)
	if report == nil {
		return &types.AnalysisReport{
			Summary:  "Self-analysis could not reach the model; only the raw snapshot is available.",
			Fallback: true,
		}
	}

	// A hot error log forces a deeper pass even when the model was
	// content with the surface reading.
	if !report.NeedsDeeperLook && a.errorPressure(snapshot) > a.threshold.ErrorRate {
		report.NeedsDeeperLook = true
	}

	depthLimit := a.settings.MaxDepth
	if depthLimit <= 0 || depthLimit > maxAnalysisDepth {
		depthLimit = maxAnalysisDepth
	}

	visited := make(map[string]bool)
	for depth := 1; depth < depthLimit; depth++ {
		target := a.nextDeepTarget(ctx, report, visited)
		if target == nil {
			break
		}
		visited[keywords.Normalize(target.Signature)] = true

		deeper := a.analyzeOnce(ctx, req, snapshot, target)
		if deeper == nil {
			break
		}
		report.Depth = depth
		mergeFindings(report, deeper)
		a.runner.Emitter()(ctx, &events.AnalysisEvent{
			Phase:        events.AnalysisDeepened,
			Depth:        depth,
			ProblemCount: len(report.Problems),
		})
		a.infof("🔍 Deepened analysis to depth %d on %q (%d problem(s) total)",
			depth, target.Signature, len(report.Problems))

		if !deeper.NeedsDeeperLook {
			break
		}
	}
	return report
}

// analyzeOnce is one DEV_ANALYZE stage call, optionally focused on a
// single problem.
func (a *Analyzer) analyzeOnce(ctx context.Context, req *types.DevRequest, snapshot *types.AnalysisContext, focus *types.Problem) *types.AnalysisReport {
	note := req.UserMessage
	if focus != nil {
		note = fmt.Sprintf("%s\nFocus on this problem only: %s (%s)", req.UserMessage, focus.Signature, focus.Hypothesis)
	}

	result, _, stageErr := a.runner.Object(ctx, orchestrator.StageCall{
		StageID:  models.StageDevAnalyze,
		PromptID: prompts.PromptDevAnalyze,
		Vars: map[string]string{
			"analysis_context": renderSnapshot(snapshot),
			"history":          renderHistory(req.History),
			"user_message":     note,
		},
	})
	if stageErr != nil {
		a.warnf("⚠️ Analysis stage failed: %v", stageErr)
		return nil
	}
	if result.Fallback {
		return &types.AnalysisReport{
			Summary:  "The analysis answer was unstructured; treat the findings as unverified.",
			Fallback: true,
		}
	}

	decoded, err := orchestrator.DecodeStage[analysisPayload](result)
	if err != nil {
		a.warnf("⚠️ Analysis answer did not decode: %v", err)
		return nil
	}

	problems := decoded.Problems[:0]
	for _, p := range decoded.Problems {
		if p != nil && strings.TrimSpace(p.Signature) != "" {
			problems = append(problems, p)
		}
	}
	return &types.AnalysisReport{
		Summary:         strings.TrimSpace(decoded.Summary),
		Problems:        problems,
		NeedsDeeperLook: decoded.NeedsDeeperLook,
		Insights:        decoded.Insights,
	}
}

// errorPressure is the fraction of the error-log tail that is filled.
func (a *Analyzer) errorPressure(snapshot *types.AnalysisContext) float64 {
	if snapshot == nil || len(snapshot.Logs.Error) == 0 {
		return 0
	}
	tail := a.settings.TailLines
	if tail <= 0 {
		tail = 50
	}
	return float64(len(snapshot.Logs.Error)) / float64(tail)
}

// nextDeepTarget picks the next unvisited problem worth another pass:
// severe ones and threshold breaches deepen unconditionally, ambiguous
// ones ask the conditional decider.
func (a *Analyzer) nextDeepTarget(ctx context.Context, report *types.AnalysisReport, visited map[string]bool) *types.Problem {
	for _, problem := range report.Problems {
		if visited[keywords.Normalize(problem.Signature)] {
			continue
		}
		severity := strings.ToLower(problem.Severity)
		if severity == "critical" || severity == "high" {
			return problem
		}
		if report.NeedsDeeperLook {
			return problem
		}
		if a.decider == nil {
			continue
		}
		question := "Does this problem warrant a deeper analysis pass?"
		decision, err := a.decider.Decide(ctx, question, problemText(problem))
		if err == nil && decision.Result {
			return problem
		}
	}
	return nil
}

// mergeFindings folds a focused report into the main one, keeping
// signatures unique.
func mergeFindings(main, sub *types.AnalysisReport) {
	seen := make(map[string]bool, len(main.Problems))
	for _, p := range main.Problems {
		seen[keywords.Normalize(p.Signature)] = true
	}
	for _, p := range sub.Problems {
		key := keywords.Normalize(p.Signature)
		if seen[key] {
			continue
		}
		seen[key] = true
		main.Problems = append(main.Problems, p)
	}
	main.Insights = append(main.Insights, sub.Insights...)
	main.NeedsDeeperLook = sub.NeedsDeeperLook
}

// BuildTodo lays the findings out as a hierarchical todo: one root per
// problem with investigate and remediate sub-items. The tree is
// informational until an intervention turns it into real work.
func BuildTodo(report *types.AnalysisReport) *types.TodoTree {
	tree := types.NewTodoTree()
	if report == nil {
		return tree
	}
	for _, problem := range report.Problems {
		component := problem.Component
		if component == "" {
			component = "system"
		}
		root := &types.TodoItem{
			Action:          fmt.Sprintf("Resolve %s issue in %s", problem.Severity, component),
			SuccessCriteria: fmt.Sprintf("Problem %q no longer appears in the logs", problem.Signature),
		}
		rootID := tree.AddRoot(root)
		investigate := &types.TodoItem{
			Action:          "Confirm the evidence: " + strings.Join(problem.Evidence, "; "),
			SuccessCriteria: "Evidence reproduced or ruled out",
		}
		investigateID, _ := tree.AddChild(rootID, investigate)
		remediate := &types.TodoItem{
			Action:          "Apply the fix: " + problem.Hypothesis,
			SuccessCriteria: root.SuccessCriteria,
			Dependencies:    []string{investigateID},
		}
		tree.AddChild(rootID, remediate)
	}
	return tree
}

// renderSnapshot flattens the analysis context for the prompt.
func renderSnapshot(snapshot *types.AnalysisContext) string {
	if snapshot == nil {
		return "(no snapshot)"
	}
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "(snapshot unavailable)"
	}
	return string(raw)
}

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

func problemText(problem *types.Problem) string {
	raw, err := json.Marshal(problem)
	if err != nil {
		return problem.Signature
	}
	return string(raw)
}

func (a *Analyzer) infof(format string, args ...interface{}) {
	if logger := a.runner.Logger(); logger != nil {
		logger.Infof(format, args...)
	}
}

func (a *Analyzer) warnf(format string, args ...interface{}) {
	if logger := a.runner.Logger(); logger != nil {
		logger.Warnf(format, args...)
	}
}

func (a *Analyzer) debugf(format string, args ...interface{}) {
	if logger := a.runner.Logger(); logger != nil {
		logger.Debugf(format, args...)
	}
}
