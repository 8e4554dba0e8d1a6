package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/capture"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/session"
)

// historyTurns is how many recent chat turns the prompts see.
const historyTurns = 8

// DevHandler runs the dev-mode self-analysis. The orchestrator only
// knows this interface; pkg/orchestrator/selfanalysis implements it.
type DevHandler interface {
	Handle(ctx context.Context, req *types.DevRequest) *types.DevResult
}

// Request is one user utterance entering the pipeline.
type Request struct {
	UserMessage string             `json:"user_message"`
	Session     *session.Session   `json:"-"`
	Password    string             `json:"-"`
	TTS         *types.TTSSettings `json:"tts_settings,omitempty"`
}

// Result is the orchestrator's answer envelope. Dev failures still
// return Success=true with whatever partial analysis exists, so the UI
// can narrate the outcome; task failures set Success=false plus a
// human-readable summary.
type Result struct {
	Success   bool                   `json:"success"`
	Mode      types.Mode             `json:"mode"`
	Reply     string                 `json:"reply,omitempty"`
	Summary   string                 `json:"summary,omitempty"`
	TTSPhrase string                 `json:"tts_phrase,omitempty"`
	Plan      *types.TodoTree        `json:"plan,omitempty"`
	Analysis  *types.DevResult       `json:"analysis,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TTS       *types.TTSSettings     `json:"tts_settings,omitempty"`
}

// Orchestrator drives the staged pipeline: mode selection, enrichment,
// planning, per-item execution with verification and replanning, and
// the final summary. One orchestrator serves every session; per-session
// runs are serialized by the session itself.
type Orchestrator struct {
	runner      *StageRunner
	catalog     ToolCatalog
	modes       *ModeSelector
	enricher    *ContextEnricher
	planner     *TodoPlanner
	selector    *ServerSelector
	toolPlanner *ToolPlanner
	executor    *ToolExecutor
	router      *VerificationRouter
	verifier    *Verifier
	replanner   *Replanner
	summarizer  *FinalSummarizer
	dev         DevHandler
	language    string
}

// New wires the full pipeline around a shared stage runner, the MCP
// registry view, and the screenshot service. screens may be nil; the
// verifier then goes straight to data checks.
func New(runner *StageRunner, catalog ToolCatalog, screens capture.Service, settings *models.Settings) *Orchestrator {
	if settings == nil {
		settings = models.DefaultSettings()
	}
	maxAttempts := settings.Retry.ItemExecution.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Orchestrator{
		runner:      runner,
		catalog:     catalog,
		modes:       NewModeSelector(runner),
		enricher:    NewContextEnricher(runner),
		planner:     NewTodoPlanner(runner, maxAttempts),
		selector:    NewServerSelector(runner, catalog),
		toolPlanner: NewToolPlanner(runner, catalog),
		executor:    NewToolExecutor(catalog, runner.Logger(), runner.Emitter()),
		router:      NewVerificationRouter(runner, catalog),
		verifier:    NewVerifier(runner, catalog, screens),
		replanner:   NewReplanner(runner, catalog),
		summarizer:  NewFinalSummarizer(runner),
		language:    settings.UserLanguage,
	}
}

// SetDevHandler installs the self-analysis handler. Without one, dev
// requests answer with a notice instead of an analysis.
func (o *Orchestrator) SetDevHandler(dev DevHandler) {
	o.dev = dev
}

// Execute runs one utterance through the pipeline and returns the
// answer envelope. It never returns nil.
func (o *Orchestrator) Execute(ctx context.Context, req Request) *Result {
	started := time.Now()

	sess := req.Session
	if sess == nil {
		sess = session.NewSession("")
	}
	sess.BeginRun()
	defer sess.EndRun()

	history := sess.RecentMessages(historyTurns)
	sess.AppendMessage("user", req.UserMessage)

	o.runner.emit(ctx, &events.OrchestratorStartEvent{UserMessage: snippet(req.UserMessage)})
	o.runner.infof("🚀 Executing request for session %s", sess.ID)

	modeOutcome := o.modes.Select(ctx, req.UserMessage, history)
	decision := modeOutcome.Value
	sess.SetLastMode(decision.Mode)

	var result *Result
	switch decision.Mode {
	case types.ModeDev:
		result = o.runDev(ctx, sess, req, history)
	case types.ModeTask:
		result = o.runTask(ctx, sess, req.UserMessage)
	default:
		result = o.runChat(ctx, sess, req.UserMessage, history)
	}

	result.Mode = decision.Mode
	result.TTS = req.TTS
	if result.Metadata == nil {
		result.Metadata = make(map[string]interface{})
	}
	result.Metadata["mode_confidence"] = decision.Confidence
	result.Metadata["duration_ms"] = time.Since(started).Milliseconds()
	if modeOutcome.Status == types.OutcomeFallback {
		result.Metadata["mode_fallback"] = modeOutcome.Reason
	}

	o.runner.emit(ctx, &events.OrchestratorEndEvent{
		Mode:     string(result.Mode),
		Success:  result.Success,
		Duration: time.Since(started),
		Summary:  snippet(result.Summary),
	})
	return result
}

// runChat answers a conversational message with a single model reply.
func (o *Orchestrator) runChat(ctx context.Context, sess *session.Session, userMessage string, history []types.ChatMessage) *Result {
	language := sess.Language(o.language)
	reply, _, stageErr := o.runner.Text(ctx, StageCall{
		StageID:  models.StageChatReply,
		PromptID: prompts.PromptChatReply,
		Vars: map[string]string{
			"user_message":  userMessage,
			"user_language": language,
		},
		History: history,
	})
	if stageErr != nil || strings.TrimSpace(reply) == "" {
		o.runner.fallbackStage(ctx, models.StageChatReply, "chat model unavailable, using canned reply")
		reply = cannedChatReply(language)
	}

	sess.AppendMessage("assistant", reply)
	return &Result{
		Success:   true,
		Reply:     reply,
		TTSPhrase: reply,
	}
}

// runTask is the staged task pipeline: enrich, plan, execute the tree,
// summarize.
func (o *Orchestrator) runTask(ctx context.Context, sess *session.Session, userMessage string) *Result {
	language := sess.Language(o.language)

	enrichOutcome := o.enricher.Enrich(ctx, userMessage)
	enriched := enrichOutcome.Value

	planOutcome := o.planner.Plan(ctx, enriched, o.catalog.CatalogText())
	if !planOutcome.Usable() {
		summary := "The request could not be broken into actionable steps: " + planOutcome.Err.Error()
		o.runner.emit(ctx, &events.OrchestratorErrorEvent{Mode: string(types.ModeTask), Error: planOutcome.Err.Error()})
		sess.AppendMessage("assistant", summary)
		return &Result{
			Success:   false,
			Summary:   summary,
			TTSPhrase: fallbackPhrase(language, nil),
		}
	}

	tree := planOutcome.Value
	sess.SetTree(tree)
	o.runTree(ctx, tree)

	summaryOutcome := o.summarizer.Summarize(ctx, userMessage, language, tree)
	summary := summaryOutcome.Value

	sess.AppendMessage("assistant", summary.Summary)
	return &Result{
		Success:   tree.AllDone() && !tree.HasAbandoned(),
		Summary:   summary.Summary,
		TTSPhrase: summary.TTSPhrase,
		Plan:      tree,
		Metadata: map[string]interface{}{
			"item_counts": tree.Counts(),
			"complexity":  enriched.EstimatedComplexity,
		},
	}
}

// runDev routes to the self-analysis handler and, when an intervention
// plan comes back authorized, hands it to the task pipeline. The
// session stays owned by the intervention until that plan finishes.
func (o *Orchestrator) runDev(ctx context.Context, sess *session.Session, req Request, history []types.ChatMessage) *Result {
	if o.dev == nil {
		notice := "Self-analysis is not configured on this deployment."
		sess.AppendMessage("assistant", notice)
		return &Result{Success: true, Summary: notice}
	}

	devRes := o.dev.Handle(ctx, &types.DevRequest{
		UserMessage: req.UserMessage,
		Password:    req.Password,
		History:     history,
	})

	if devRes.Context != nil {
		sess.SetAnalysisContext(devRes.Context)
	}
	if devRes.Report != nil {
		for _, problem := range devRes.Report.Problems {
			sess.PushProblem(*problem)
		}
	}

	result := &Result{
		Success:  true,
		Analysis: devRes,
		Summary:  devRes.Message,
	}
	if devRes.Report != nil && result.Summary == "" {
		result.Summary = devRes.Report.Summary
	}

	if devRes.Plan == nil {
		sess.AppendMessage("assistant", result.Summary)
		return result
	}

	// Authorized intervention: the plan becomes a task-mode tree and
	// runs to completion before the session takes anything else.
	tree := interventionTree(devRes.Plan)
	sess.SetIntervention(true)
	defer sess.SetIntervention(false)
	sess.SetTree(tree)

	o.runner.infof("🔧 Running intervention plan with %d step(s)", len(devRes.Plan.Steps))
	o.runTree(ctx, tree)

	language := sess.Language(o.language)
	summaryOutcome := o.summarizer.Summarize(ctx, req.UserMessage, language, tree)
	result.Summary = summaryOutcome.Value.Summary
	result.TTSPhrase = summaryOutcome.Value.TTSPhrase
	result.Plan = tree
	result.Success = tree.AllDone() && !tree.HasAbandoned()

	sess.AppendMessage("assistant", result.Summary)
	return result
}

// runTree drains the todo tree in dependency order. The step guard
// bounds the loop against replan growth; every iteration either
// finishes an item or abandons it, so the guard only trips on a bug.
func (o *Orchestrator) runTree(ctx context.Context, tree *types.TodoTree) {
	for steps := 0; ; steps++ {
		if ctx.Err() != nil {
			return
		}
		if steps > len(tree.Items)*4+8 {
			o.runner.warnf("❌ Todo loop guard tripped after %d steps, stopping run", steps)
			return
		}

		item := tree.NextActionable()
		if item == nil {
			return
		}
		o.runItem(ctx, tree, item)
		tree.PropagateCompletion()
	}
}

// runItem drives one leaf item through stages 2.0-2.3 with its retry
// budget, ending in completed, abandoned, decomposed, or needs_review
// on cancellation.
func (o *Orchestrator) runItem(ctx context.Context, tree *types.TodoTree, item *types.TodoItem) {
	item.Status = types.TodoInProgress
	o.runner.emit(ctx, &events.TodoItemEvent{
		Phase:   events.TodoItemStart,
		ItemID:  item.ID,
		Action:  item.Action,
		Attempt: item.Attempt + 1,
		Status:  string(item.Status),
	})

	for {
		if ctx.Err() != nil {
			item.Status = types.TodoNeedsReview
			return
		}
		if item.Attempt >= item.MaxAttempts {
			o.replanner.Adjust(ctx, tree, item, nil)
			return
		}
		item.Attempt++
		o.runner.infof("▶️ Item %s attempt %d/%d: %s", item.ID, item.Attempt, item.MaxAttempts, snippet(item.Action))

		// Stage 2.0: server selection.
		selectionOutcome := o.selector.SelectServers(ctx, item)
		if !selectionOutcome.Usable() {
			o.runner.warnf("⚠️ Server selection failed for item %s: %v", item.ID, selectionOutcome.Err)
			o.replanner.Adjust(ctx, tree, item, nil)
			return
		}
		selection := selectionOutcome.Value
		if selection.NeedsSplit {
			o.replanner.Split(ctx, tree, item, selection)
			return
		}
		item.MCPServers = selection.SelectedServers

		// Stage 2.1: tool planning.
		planOutcome := o.toolPlanner.PlanTools(ctx, item, selection)
		if !planOutcome.Usable() {
			o.runner.warnf("⚠️ Tool planning failed for item %s: %v", item.ID, planOutcome.Err)
			if item.Attempt < item.MaxAttempts && planOutcome.Err.Kind.Retryable() {
				continue
			}
			o.replanner.Adjust(ctx, tree, item, nil)
			return
		}

		// Stage 2.2: execution.
		report := o.executor.Execute(ctx, item, planOutcome.Value)
		item.ExecutionResults = append(item.ExecutionResults, report)
		if report.StoppedReason == StoppedReasonCancelled {
			item.Status = types.TodoNeedsReview
			return
		}

		// Stage 2.3: verification routing and verdict.
		decision := o.router.Route(ctx, item, selection, report)
		outcome := o.verifier.Verify(ctx, item, decision, report)
		item.Verification = outcome.Verification

		switch outcome.NextAction {
		case types.NextContinue:
			item.Status = types.TodoCompleted
			o.runner.emit(ctx, &events.TodoItemEvent{
				Phase:   events.TodoItemCompleted,
				ItemID:  item.ID,
				Action:  item.Action,
				Attempt: item.Attempt,
				Status:  string(item.Status),
			})
			return
		case types.NextRetry:
			if item.Attempt >= item.MaxAttempts {
				o.replanner.Adjust(ctx, tree, item, outcome)
				return
			}
			o.runner.emit(ctx, &events.TodoItemEvent{
				Phase:   events.TodoItemRetry,
				ItemID:  item.ID,
				Action:  item.Action,
				Attempt: item.Attempt,
				Status:  string(item.Status),
			})
		default:
			o.replanner.Adjust(ctx, tree, item, outcome)
			return
		}
	}
}

// interventionTree converts an authorized repair plan into a todo tree.
// Steps chain on their declared dependencies; the restart step depends
// on everything before it.
func interventionTree(plan *types.InterventionPlan) *types.TodoTree {
	tree := types.NewTodoTree()
	ids := make([]string, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		if step.Call == nil {
			continue
		}
		action := step.Rationale
		if action == "" {
			action = "Run " + step.Call.Tool
		}
		item := &types.TodoItem{
			Action:           action,
			SuccessCriteria:  "Tool call " + step.Call.Tool + " reports success",
			SuggestedServers: []string{step.Call.Server},
			Parameters:       step.Call.Parameters,
		}
		id := tree.AddRoot(item)
		for _, depIdx := range step.DependsOn {
			if depIdx >= 0 && depIdx < len(ids) {
				item.Dependencies = append(item.Dependencies, ids[depIdx])
			}
		}
		if step.IsRestart {
			item.Dependencies = append([]string{}, ids...)
		}
		ids = append(ids, id)
	}
	return tree
}

// cannedChatReply is the no-model chat answer.
func cannedChatReply(language string) string {
	if language == "uk" {
		return "Вибачте, зараз я не можу відповісти. Спробуйте ще раз трохи пізніше."
	}
	return "Sorry, I cannot answer right now. Please try again in a moment."
}
