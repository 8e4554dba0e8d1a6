package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/capture"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/keywords"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// Visual acceptance thresholds on the 0..100 confidence scale.
// Arithmetic results need a higher bar because a misread digit still
// produces a fluent, confident-sounding answer.
const (
	confidenceAlwaysAccept  = 80
	confidenceArithmetic    = 60
	confidenceFileOp        = 50
	confidenceUI            = 50
	confidenceExplicitFloor = 50
	confidenceAdjustCutoff  = 50
)

// Data-path checks are binary, so their verdicts carry fixed confidences.
const (
	dataCheckPassConfidence = 85
	dataCheckFailConfidence = 30
)

// Verification method names recorded on the verdict.
const (
	methodVisual = "visual"
	methodMCP    = "mcp"
	methodNone   = "none"
)

// Verifier runs the per-item verification state machine: up to three
// visual attempts on an escalating model/capture ladder, then MCP data
// checks, then a verdict with a follow-up action for the orchestrator.
type Verifier struct {
	runner  *StageRunner
	catalog ToolCatalog
	screens capture.Service
	output  *utils.ToolOutputHandler

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewVerifier builds a verifier around the shared stage runner. The
// capture service may be nil when the host has no screen; visual states
// then fail over to data checks.
func NewVerifier(runner *StageRunner, catalog ToolCatalog, screens capture.Service) *Verifier {
	return &Verifier{
		runner:  runner,
		catalog: catalog,
		screens: screens,
		output:  utils.NewToolOutputHandler(runner.Logger()),
		locks:   make(map[string]*sync.Mutex),
	}
}

// visualRung is one step of the escalation ladder.
type visualRung struct {
	state types.VerifyState
	model string
	mode  types.CaptureMode
}

func (v *Verifier) ladder() []visualRung {
	vision := v.runner.Models().Vision()
	return []visualRung{
		{state: types.VerifyVisual1, model: vision.Fast, mode: types.CaptureActiveWindow},
		{state: types.VerifyVisual2, model: vision.Primary, mode: types.CaptureFullScreen},
		{state: types.VerifyVisual3, model: vision.Top, mode: types.CaptureDesktopOnly},
	}
}

// visualVerdict is the structured answer of the vision stage.
type visualVerdict struct {
	Observed        string  `json:"observed"`
	MatchesCriteria bool    `json:"matches_criteria"`
	Confidence      float64 `json:"confidence"`
	Details         string  `json:"details"`
}

// Verify runs the state machine for one executed item and decides what
// the orchestrator should do with it next. It never returns nil.
func (v *Verifier) Verify(ctx context.Context, item *types.TodoItem, decision *types.VerificationDecision, report *types.ExecutionReport) *types.VerificationOutcome {
	if decision == nil {
		decision = &types.VerificationDecision{
			RecommendedPath:     types.VerifyPathVisual,
			VisualPossible:      true,
			AllowVisualFallback: true,
		}
	}

	verdict := v.gatherEvidence(ctx, item, decision, report)
	outcome := v.decide(ctx, item, verdict, report)

	v.runner.emit(ctx, &events.VerificationDecidedEvent{
		ItemID:     item.ID,
		Verified:   verdict.Verified,
		Confidence: verdict.Confidence,
		Method:     verdict.Method,
		NextAction: string(outcome.NextAction),
		RootCause:  string(outcome.RootCause),
	})
	v.runner.infof("🎯 Verification for item %s: verified=%t confidence=%.0f method=%s next=%s",
		item.ID, verdict.Verified, verdict.Confidence, verdict.Method, outcome.NextAction)
	return outcome
}

// gatherEvidence walks the evidence states in order. Visual attempts
// for one item are serialized; concurrent sessions verifying different
// items do not block each other.
func (v *Verifier) gatherEvidence(ctx context.Context, item *types.TodoItem, decision *types.VerificationDecision, report *types.ExecutionReport) *types.Verification {
	lock := v.itemLock(item.ID)
	lock.Lock()
	defer lock.Unlock()

	visualLed := v.canSee(decision) && decision.RecommendedPath != types.VerifyPathData

	var visual *types.Verification
	if visualLed {
		verdict, accepted := v.visualLadder(ctx, item, decision)
		if accepted {
			return verdict
		}
		visual = verdict
	}

	data, ran := v.dataChecks(ctx, item, decision)

	// A data-led route with nothing to probe may still look at the
	// screen when the router allowed it.
	if !visualLed && !ran && decision.AllowVisualFallback && v.canSee(decision) {
		verdict, accepted := v.visualLadder(ctx, item, decision)
		if accepted {
			return verdict
		}
		visual = verdict
	}

	return combineEvidence(visual, data)
}

func (v *Verifier) canSee(decision *types.VerificationDecision) bool {
	return decision.VisualPossible && v.screens != nil
}

// visualLadder climbs the three visual states until one accepts.
func (v *Verifier) visualLadder(ctx context.Context, item *types.TodoItem, decision *types.VerificationDecision) (*types.Verification, bool) {
	rungs := v.ladder()
	var last *types.Verification
	for i, rung := range rungs {
		if ctx.Err() != nil {
			return cancelledVerdict(last), false
		}
		verdict, accepted := v.visualAttempt(ctx, item, decision, rung)
		last = verdict
		if accepted {
			return verdict, true
		}
		if i+1 < len(rungs) {
			next := rungs[i+1]
			v.runner.debugf("🔄 Escalating verification of item %s to %s (%s, %s)",
				item.ID, next.state, next.model, next.mode)
			v.runner.emit(ctx, &events.VerificationAttemptEvent{
				Phase:       events.VerificationEscalated,
				ItemID:      item.ID,
				State:       string(next.state),
				VisionModel: next.model,
				CaptureMode: string(next.mode),
				Reason:      verdict.Reason,
			})
		}
	}
	return last, false
}

// visualAttempt captures the screen, asks the rung's vision model, and
// applies the acceptance rules to its answer.
func (v *Verifier) visualAttempt(ctx context.Context, item *types.TodoItem, decision *types.VerificationDecision, rung visualRung) (*types.Verification, bool) {
	v.runner.emit(ctx, &events.VerificationAttemptEvent{
		ItemID:      item.ID,
		State:       string(rung.state),
		VisionModel: rung.model,
		CaptureMode: string(rung.mode),
	})
	v.runner.debugf("📸 Visual check %s for item %s: model=%s capture=%s",
		rung.state, item.ID, rung.model, rung.mode)

	verdict := &types.Verification{Method: methodVisual, VisionModel: rung.model}

	shot, err := v.screens.Capture(ctx, rung.mode)
	if err != nil {
		verdict.Reason = fmt.Sprintf("screen capture failed: %v", err)
		v.runner.warnf("⚠️ %s", verdict.Reason)
		return v.finishAttempt(ctx, item, rung, verdict, false)
	}
	verdict.ScreenshotPath = shot.Path

	result, _, stageErr := v.runner.Object(ctx, StageCall{
		StageID:  models.StageVerifyVisual,
		PromptID: prompts.PromptVerifyVisual,
		Vars: map[string]string{
			"verification_action": verificationActionFor(item, decision),
			"success_criteria":    item.SuccessCriteria,
		},
		Images: []string{shot.DataURL()},
		Model:  rung.model,
		ItemID: item.ID,
	})
	if stageErr != nil {
		verdict.Reason = fmt.Sprintf("vision model call failed: %s", stageErr.Error())
		return v.finishAttempt(ctx, item, rung, verdict, false)
	}

	// Rule 1: only structured JSON counts as evidence. A free-text
	// answer salvaged by the tolerant parser could carry injected
	// instructions from whatever the screenshot happened to contain.
	evidence, decodeErr := DecodeStage[visualVerdict](result)
	if result.Fallback || decodeErr != nil {
		detail := "vision response was not structured JSON"
		if decodeErr != nil {
			detail = fmt.Sprintf("vision response did not decode: %v", decodeErr)
		}
		verdict.FallbackDetected = true
		verdict.Reason = detail
		v.runner.warnf("⚠️ Security rejection for item %s at %s: %s", item.ID, rung.state, detail)
		v.runner.emit(ctx, &events.SecurityRejectionEvent{
			ItemID: item.ID,
			State:  string(rung.state),
			Detail: detail,
		})
		return v.finishAttempt(ctx, item, rung, verdict, false)
	}

	verdict.SecurityChecksPassed = true
	verdict.VisualEvidence = &types.VisualEvidence{
		Observed:        evidence.Observed,
		MatchesCriteria: evidence.MatchesCriteria,
		Details:         evidence.Details,
	}

	accepted, confidence, reason := acceptVisual(item, evidence)
	verdict.Verified = accepted
	verdict.Confidence = confidence
	verdict.Reason = reason
	return v.finishAttempt(ctx, item, rung, verdict, accepted)
}

func (v *Verifier) finishAttempt(ctx context.Context, item *types.TodoItem, rung visualRung, verdict *types.Verification, accepted bool) (*types.Verification, bool) {
	v.runner.emit(ctx, &events.VerificationAttemptEvent{
		Phase:       events.VerificationAttemptEnd,
		ItemID:      item.ID,
		State:       string(rung.state),
		VisionModel: rung.model,
		CaptureMode: string(rung.mode),
		Accepted:    accepted,
		Reason:      verdict.Reason,
	})
	if accepted {
		v.runner.infof("✅ Visual check accepted for item %s at %s: confidence %.0f",
			item.ID, rung.state, verdict.Confidence)
	} else {
		v.runner.debugf("❌ Visual check rejected for item %s at %s: %s",
			item.ID, rung.state, verdict.Reason)
	}
	return verdict, accepted
}

// acceptVisual applies the acceptance rules to a structured vision
// answer. Explicit success wording accepts at the model's confidence
// with a floor of 50; otherwise matches_criteria plus the task-type
// threshold decides. A detected contradiction vetoes both routes.
func acceptVisual(item *types.TodoItem, evidence visualVerdict) (bool, float64, string) {
	confidence := normalizeConfidence(evidence.Confidence)
	text := strings.TrimSpace(evidence.Observed + " " + evidence.Details)
	contradicted, why := contradictionIn(text)

	if keywords.HasSuccessMarker(text) && !keywords.HasNegationMarker(text) && !contradicted {
		if confidence < confidenceExplicitFloor {
			confidence = confidenceExplicitFloor
		}
		return true, confidence, "model states success: " + snippet(text)
	}
	if contradicted {
		return false, confidence, "contradiction: " + why
	}
	if evidence.MatchesCriteria {
		threshold := acceptanceThreshold(item.Action)
		if confidence >= confidenceAlwaysAccept || confidence >= threshold {
			return true, confidence, fmt.Sprintf("criteria matched at confidence %.0f", confidence)
		}
		return false, confidence, fmt.Sprintf("confidence %.0f below threshold %.0f: %s", confidence, threshold, snippet(text))
	}
	return false, confidence, "criteria not met: " + snippet(text)
}

func acceptanceThreshold(action string) float64 {
	switch {
	case keywords.IsArithmeticAction(action):
		return confidenceArithmetic
	case keywords.IsFileAction(action):
		return confidenceFileOp
	default:
		return confidenceUI
	}
}

// contradictionClaims are explicit does-not-match assertions. They are
// matched against normalized text, so entries stay lowercase.
var contradictionClaims = []string{
	"does not match", "does not equal", "do not match", "doesn't match",
	"doesn't equal", "not equal to",
	"не збігається", "не дорівнює", "не відповідає",
}

var (
	displayedValuePattern = regexp.MustCompile(`(?:displays?|displayed|shows?|shown|showing|відображає|показує|показано)\s*:?\s*"?([0-9a-zа-яєіїґ'._/-]+)"?`)
	expectedValuePattern  = regexp.MustCompile(`(?:expected|should be|should show|очікуван[а-яєії]*|має бути)\s*:?\s*"?([0-9a-zа-яєіїґ'._/-]+)"?`)
)

// contradictionIn detects a vision answer at war with itself: an
// explicit does-not-match assertion, or a displayed value differing
// from the expected one while the text still claims success.
func contradictionIn(text string) (bool, string) {
	normalized := keywords.Normalize(text)
	for _, claim := range contradictionClaims {
		if strings.Contains(normalized, claim) {
			return true, fmt.Sprintf("response asserts %q", claim)
		}
	}
	shown := firstSubmatch(displayedValuePattern, normalized)
	expected := firstSubmatch(expectedValuePattern, normalized)
	if shown != "" && expected != "" && shown != expected && keywords.HasSuccessMarker(text) {
		return true, fmt.Sprintf("displayed %q but expected %q while claiming a match", shown, expected)
	}
	return false, ""
}

func firstSubmatch(pattern *regexp.Regexp, text string) string {
	if m := pattern.FindStringSubmatch(text); m != nil {
		return strings.Trim(m[1], ".,:;")
	}
	return ""
}

// dataChecks runs the router's MCP probes. The bool reports whether
// any probe actually ran; with no checks the state is skipped and the
// caller may fall back to the screen.
func (v *Verifier) dataChecks(ctx context.Context, item *types.TodoItem, decision *types.VerificationDecision) (*types.Verification, bool) {
	checks := orderChecks(decision.AdditionalChecks)
	if len(checks) == 0 {
		return nil, false
	}

	v.runner.emit(ctx, &events.VerificationAttemptEvent{
		ItemID: item.ID,
		State:  string(types.VerifyMCPFallback),
	})
	v.runner.debugf("🔌 Running %d data check(s) for item %s", len(checks), item.ID)

	verdict := &types.Verification{Method: methodMCP, SecurityChecksPassed: true}
	passed := 0
	firstFailure := ""
	for _, check := range checks {
		if ctx.Err() != nil {
			break
		}
		output, isError, err := v.catalog.CallTool(ctx, check.Server, check.Tool, check.Parameters)
		result := &types.ToolResult{
			Tool:      types.QualifyTool(check.Server, check.Tool),
			Server:    check.Server,
			Success:   err == nil && !isError,
			Timestamp: time.Now(),
		}
		switch {
		case err != nil:
			result.Error = err.Error()
		case isError:
			result.Error = firstLine(output)
			result.Data = output
		default:
			result.Data = output
		}
		if check.ExpectedEvidence != "" {
			result.Metadata = map[string]interface{}{"expected_evidence": check.ExpectedEvidence}
		}
		verdict.MCPResults = append(verdict.MCPResults, result)
		if result.Success {
			passed++
		} else if firstFailure == "" {
			firstFailure = result.Error
		}
	}

	total := len(verdict.MCPResults)
	if total == 0 {
		return nil, false
	}
	if passed == total {
		verdict.Verified = true
		verdict.Confidence = dataCheckPassConfidence
		verdict.Reason = fmt.Sprintf("all %d data check(s) passed", total)
	} else {
		verdict.Confidence = dataCheckFailConfidence
		verdict.Reason = fmt.Sprintf("%d of %d data check(s) failed: %s", total-passed, total, firstFailure)
	}

	v.runner.emit(ctx, &events.VerificationAttemptEvent{
		Phase:    events.VerificationAttemptEnd,
		ItemID:   item.ID,
		State:    string(types.VerifyMCPFallback),
		Accepted: verdict.Verified,
		Reason:   verdict.Reason,
	})
	v.runner.infof("🔌 Data verification for item %s: %d/%d checks passed", item.ID, passed, total)
	return verdict, true
}

// orderChecks puts filesystem probes first: file state is the cheapest
// and least ambiguous evidence.
func orderChecks(checks []*types.AdditionalCheck) []*types.AdditionalCheck {
	ordered := make([]*types.AdditionalCheck, len(checks))
	copy(ordered, checks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return checkRank(ordered[i]) < checkRank(ordered[j])
	})
	return ordered
}

func checkRank(check *types.AdditionalCheck) int {
	if strings.Contains(check.Server, "file") {
		return 0
	}
	return 1
}

// combineEvidence builds the final verdict when nothing accepted. The
// data verdict decided last, so it leads; the visual trail rides along
// for the record.
func combineEvidence(visual, data *types.Verification) *types.Verification {
	switch {
	case visual == nil && data == nil:
		return &types.Verification{Method: methodNone, Reason: "no verification evidence available"}
	case data == nil:
		return visual
	case visual == nil:
		return data
	}
	data.VisualEvidence = visual.VisualEvidence
	data.ScreenshotPath = visual.ScreenshotPath
	data.VisionModel = visual.VisionModel
	data.FallbackDetected = data.FallbackDetected || visual.FallbackDetected
	return data
}

func cancelledVerdict(last *types.Verification) *types.Verification {
	if last != nil {
		return last
	}
	return &types.Verification{Method: methodNone, Reason: "verification cancelled"}
}

// decide turns the verdict into a follow-up action with a classified
// root cause. Unverified items additionally consult the analysis stage,
// which may refine the root cause and guidance and, on the safe-default
// leg only, downgrade an adjust to a retry.
func (v *Verifier) decide(ctx context.Context, item *types.TodoItem, verdict *types.Verification, report *types.ExecutionReport) *types.VerificationOutcome {
	outcome := &types.VerificationOutcome{Verification: verdict}
	if verdict.Verified {
		outcome.NextAction = types.NextContinue
		return outcome
	}

	next, defaultLeg := nextActionFor(item, verdict)
	cause := classifyRootCause(item, verdict, report)
	guidance := ""

	if refined, ok := v.analyze(ctx, item, verdict, report); ok {
		if knownRootCauses[types.RootCause(refined.RootCause)] {
			cause = types.RootCause(refined.RootCause)
		}
		guidance = strings.TrimSpace(refined.Guidance)
		if defaultLeg && refined.NextAction == string(types.NextRetry) {
			next = types.NextRetry
		}
	}
	if guidance == "" {
		guidance = strategyFor(cause)
	}

	outcome.NextAction = next
	outcome.RootCause = cause
	outcome.Guidance = guidance
	return outcome
}

// nextActionFor walks the decision chain in order. The bool reports
// whether the answer came from the safe default rather than an
// explicit signal.
func nextActionFor(item *types.TodoItem, verdict *types.Verification) (types.NextAction, bool) {
	text := failureText(verdict)
	switch {
	case item.Attempt >= item.MaxAttempts:
		return types.NextAdjust, false
	case keywords.IsTransientFailure(text):
		return types.NextRetry, false
	case keywords.IsStructuralFailure(text):
		return types.NextAdjust, false
	case verdict.Confidence < confidenceAdjustCutoff:
		return types.NextAdjust, false
	default:
		return types.NextAdjust, true
	}
}

// failureText is the searchable story of a failed verification: the
// verdict reason, what the vision model saw, and the first failing
// probe.
func failureText(verdict *types.Verification) string {
	parts := []string{verdict.Reason}
	if verdict.VisualEvidence != nil {
		parts = append(parts, verdict.VisualEvidence.Observed, verdict.VisualEvidence.Details)
	}
	for _, res := range verdict.MCPResults {
		if !res.Success && res.Error != "" {
			parts = append(parts, res.Error)
			break
		}
	}
	return strings.Join(parts, " ")
}

var knownRootCauses = map[types.RootCause]bool{
	types.CauseMissingPrerequisite:       true,
	types.CausePermissionIssue:           true,
	types.CauseWrongParameters:           true,
	types.CauseToolExecutionFailed:       true,
	types.CauseTimingIssue:               true,
	types.CauseWrongApproach:             true,
	types.CauseUnrealisticCriteria:       true,
	types.CauseUnclearState:              true,
	types.CauseVisionModelFailure:        true,
	types.CauseExecutionErrorVisible:     true,
	types.CauseToolsSucceededWrongResult: true,
}

var visibleErrorTokens = []string{"error", "exception", "crash", "помилк", "збій"}

// classifyRootCause maps the failure evidence onto a cause. Execution
// failures take priority over what the screen showed; when every tool
// succeeded the verification evidence itself is read.
func classifyRootCause(item *types.TodoItem, verdict *types.Verification, report *types.ExecutionReport) types.RootCause {
	text := keywords.Normalize(failureText(verdict))

	if verdict.FallbackDetected ||
		strings.Contains(text, "vision model call failed") ||
		strings.Contains(text, "screen capture failed") {
		return types.CauseVisionModelFailure
	}

	if report != nil && report.FailedCount > 0 {
		failure := report.FirstFailure()
		errText := ""
		if failure != nil {
			errText = keywords.Normalize(failure.Error)
		}
		switch {
		case strings.Contains(errText, "permission") || strings.Contains(errText, "access denied") ||
			strings.Contains(errText, "немає доступу"):
			return types.CausePermissionIssue
		case strings.Contains(errText, "not found") || strings.Contains(errText, "no such") ||
			strings.Contains(errText, "does not exist") || strings.Contains(errText, "не знайдено") ||
			strings.Contains(errText, "не існує"):
			return types.CauseMissingPrerequisite
		case strings.Contains(errText, "invalid") || strings.Contains(errText, "argument") ||
			strings.Contains(errText, "parameter") || strings.Contains(errText, "некоректн"):
			return types.CauseWrongParameters
		default:
			return types.CauseToolExecutionFailed
		}
	}

	// Error wording only counts as "visible" when it came off the
	// screen; probe error strings always mention errors.
	visualText := ""
	if verdict.VisualEvidence != nil {
		visualText = keywords.Normalize(verdict.VisualEvidence.Observed + " " + verdict.VisualEvidence.Details)
	}

	switch {
	case strings.Contains(text, "contradiction") || strings.Contains(text, "wrong value") ||
		strings.Contains(text, "differs"):
		return types.CauseToolsSucceededWrongResult
	case containsAnyToken(visualText, visibleErrorTokens):
		return types.CauseExecutionErrorVisible
	case keywords.IsTransientFailure(text):
		return types.CauseTimingIssue
	case keywords.IsStructuralFailure(text):
		return types.CauseMissingPrerequisite
	case item.Attempt >= item.MaxAttempts:
		return types.CauseUnrealisticCriteria
	case verdict.Confidence < confidenceAdjustCutoff:
		return types.CauseUnclearState
	default:
		return types.CauseWrongApproach
	}
}

func containsAnyToken(text string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

// strategyFor is the replanner hint attached when the analysis stage
// offered none.
func strategyFor(cause types.RootCause) string {
	switch cause {
	case types.CauseMissingPrerequisite:
		return "insert a prerequisite step that creates the missing object first"
	case types.CausePermissionIssue:
		return "switch to a location or method the agent has permission for"
	case types.CauseWrongParameters:
		return "correct the tool parameters and keep the same approach"
	case types.CauseToolExecutionFailed:
		return "swap the failing tool for an equivalent one"
	case types.CauseTimingIssue:
		return "add a wait or re-check step before verifying"
	case types.CauseUnrealisticCriteria:
		return "relax the success criteria to something observable"
	case types.CauseUnclearState:
		return "split the item into smaller, individually verifiable steps"
	case types.CauseVisionModelFailure:
		return "verify through data checks instead of the screen"
	case types.CauseExecutionErrorVisible:
		return "clear the visible error before retrying the action"
	case types.CauseToolsSucceededWrongResult:
		return "adjust parameters so the produced result matches the criteria"
	default:
		return "replace the item with a different approach to the same goal"
	}
}

// analyzeVerdict is the structured answer of the failure analysis stage.
type analyzeVerdict struct {
	RootCause  string `json:"root_cause"`
	NextAction string `json:"next_action"`
	Guidance   string `json:"guidance"`
}

func (v *Verifier) analyze(ctx context.Context, item *types.TodoItem, verdict *types.Verification, report *types.ExecutionReport) (*analyzeVerdict, bool) {
	encoded, err := json.Marshal(verdict)
	if err != nil {
		return nil, false
	}
	model := v.runner.Models().StageModel(models.StageVerifyAnalyze).Model
	result, _, stageErr := v.runner.Object(ctx, StageCall{
		StageID:  models.StageVerifyAnalyze,
		PromptID: prompts.PromptVerifyAnalyze,
		Vars: map[string]string{
			"action":            item.Action,
			"success_criteria":  item.SuccessCriteria,
			"attempt":           strconv.Itoa(item.Attempt),
			"max_attempts":      strconv.Itoa(item.MaxAttempts),
			"verification":      string(encoded),
			"execution_summary": executionSummary(report, v.output, model),
		},
		ItemID: item.ID,
	})
	if stageErr != nil || result.Fallback {
		v.runner.debugf("🔍 Failure analysis unavailable for item %s, heuristic classification stands", item.ID)
		return nil, false
	}
	decoded, err := DecodeStage[analyzeVerdict](result)
	if err != nil {
		return nil, false
	}
	return &decoded, true
}

func verificationActionFor(item *types.TodoItem, decision *types.VerificationDecision) string {
	if decision != nil && decision.VerificationAction != "" {
		return decision.VerificationAction
	}
	return keywords.VerificationAction(item.Action)
}

func (v *Verifier) itemLock(itemID string) *sync.Mutex {
	v.mu.Lock()
	defer v.mu.Unlock()
	lock, ok := v.locks[itemID]
	if !ok {
		lock = &sync.Mutex{}
		v.locks[itemID] = lock
	}
	return lock
}

func snippet(text string) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) > 160 {
		return string(runes[:160]) + "..."
	}
	return string(runes)
}
