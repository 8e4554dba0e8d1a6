package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/keywords"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

// Inter-call delays by call kind, applied between successful calls on
// the step-by-step path.
const (
	delayLongRunning = 5000 * time.Millisecond
	delayAppLaunch   = 2000 * time.Millisecond
	delayWebNavigate = 1500 * time.Millisecond
	delayWebOther    = 800 * time.Millisecond
	delayFileSystem  = 200 * time.Millisecond
	delayDefault     = 500 * time.Millisecond
)

// stepByStepWebCallLimit is the web-automation call count above which
// a plan is driven one call at a time.
const stepByStepWebCallLimit = 3

// StoppedReasonFailure and StoppedReasonCancelled explain a truncated
// execution report.
const (
	StoppedReasonFailure   = "first_failure"
	StoppedReasonCancelled = "cancelled"
)

// ToolExecutor drives one tool plan against the MCP registry. It picks
// the dispatch mode from the plan's shape, applies pacing between
// stateful calls and aggregates everything into an ExecutionReport.
// Tool failures land in the report; they never abort the session.
type ToolExecutor struct {
	catalog ToolCatalog
	logger  utils.ExtendedLogger
	emitter events.Emitter
}

// NewToolExecutor builds the executor. The emitter may be nil.
func NewToolExecutor(catalog ToolCatalog, logger utils.ExtendedLogger, emitter events.Emitter) *ToolExecutor {
	if emitter == nil {
		emitter = events.NopEmitter
	}
	return &ToolExecutor{catalog: catalog, logger: logger, emitter: emitter}
}

// Execute runs the plan for one item and returns the aggregated
// report. The error is non-nil only for an empty plan; per-call
// failures are inside the report.
func (e *ToolExecutor) Execute(ctx context.Context, item *types.TodoItem, plan *types.ToolPlan) *types.ExecutionReport {
	mode := e.chooseMode(item, plan)
	e.infof("🚀 Executing %d tool call(s) for item %s in %s mode", len(plan.Calls), item.ID, mode)

	started := time.Now()
	var report *types.ExecutionReport
	switch mode {
	case types.DispatchParallel:
		report = e.runParallel(ctx, item, plan)
	case types.DispatchStepByStep:
		report = e.runSerial(ctx, item, plan, true)
	default:
		report = e.runSerial(ctx, item, plan, false)
	}

	report.Mode = mode
	report.ExecutionTimeMS = time.Since(started).Milliseconds()
	e.summarize(item, report)
	return report
}

// chooseMode applies the dispatch rules. Step-by-step triggers win
// over parallel eligibility; a plan that qualifies for neither runs as
// a sequential batch.
func (e *ToolExecutor) chooseMode(item *types.TodoItem, plan *types.ToolPlan) types.DispatchMode {
	if e.needsStepByStep(item, plan) {
		return types.DispatchStepByStep
	}
	if e.parallelSafe(plan) {
		return types.DispatchParallel
	}
	return types.DispatchSequential
}

// needsStepByStep checks the caution triggers: heavy web automation,
// search or scrape work, a retry attempt, or a plan spanning more than
// two servers.
func (e *ToolExecutor) needsStepByStep(item *types.TodoItem, plan *types.ToolPlan) bool {
	if item.Attempt > 1 {
		e.debugf("🔄 Item %s is on attempt %d, using step-by-step dispatch", item.ID, item.Attempt)
		return true
	}
	if keywords.IsSearchAction(item.Action) {
		return true
	}

	webCalls := 0
	servers := make(map[string]bool)
	for _, call := range plan.Calls {
		servers[call.Server] = true
		if keywords.IsWebAction(call.Tool) {
			webCalls++
		}
		if keywords.IsSearchAction(call.Tool) {
			return true
		}
	}
	return webCalls > stepByStepWebCallLimit || len(servers) > types.MaxServersPerItem
}

// parallelSafe reports whether every call may run concurrently: no
// call writes a path a later call reads, and nothing mutates browser
// or working-directory state.
func (e *ToolExecutor) parallelSafe(plan *types.ToolPlan) bool {
	written := make(map[string]int)
	for i, call := range plan.Calls {
		if isStatefulCall(call) {
			return false
		}
		paths := pathParams(call.Parameters)
		if isWriteTool(call.Tool) {
			for _, p := range paths {
				if _, dup := written[p]; !dup {
					written[p] = i
				}
			}
			continue
		}
		for _, p := range paths {
			if wIdx, ok := written[p]; ok && wIdx < i {
				return false
			}
		}
	}
	return true
}

// runParallel dispatches every call at once. Results keep their plan
// index, so the report reads in plan order regardless of completion
// order.
func (e *ToolExecutor) runParallel(ctx context.Context, item *types.TodoItem, plan *types.ToolPlan) *types.ExecutionReport {
	results := make([]*types.ToolResult, len(plan.Calls))
	var wg sync.WaitGroup
	for i, call := range plan.Calls {
		wg.Add(1)
		go func(idx int, call *types.ToolCall) {
			defer wg.Done()
			results[idx] = e.runOne(ctx, item, idx, call)
		}(i, call)
	}
	wg.Wait()

	report := &types.ExecutionReport{Results: results}
	for _, res := range results {
		if res.Success {
			report.SuccessfulCount++
		} else {
			report.FailedCount++
		}
	}
	report.AllSuccessful = report.FailedCount == 0
	if ctx.Err() != nil {
		report.StoppedReason = StoppedReasonCancelled
	}
	return report
}

// runSerial executes in plan order and stops at the first failure.
// When paced is true the step-by-step delays apply between successful
// calls.
func (e *ToolExecutor) runSerial(ctx context.Context, item *types.TodoItem, plan *types.ToolPlan, paced bool) *types.ExecutionReport {
	report := &types.ExecutionReport{}
	for i, call := range plan.Calls {
		if ctx.Err() != nil {
			idx := i
			report.StoppedAtIndex = &idx
			report.StoppedReason = StoppedReasonCancelled
			break
		}

		res := e.runOne(ctx, item, i, call)
		report.Results = append(report.Results, res)
		if !res.Success {
			idx := i
			report.StoppedAtIndex = &idx
			if ctx.Err() != nil {
				report.StoppedReason = StoppedReasonCancelled
			} else {
				report.StoppedReason = StoppedReasonFailure
			}
			report.FailedCount++
			break
		}
		report.SuccessfulCount++

		if paced && i < len(plan.Calls)-1 {
			delay := callDelay(call)
			e.debugf("⏳ Pacing %s before next call", delay)
			if !sleepCtx(ctx, delay) {
				idx := i + 1
				report.StoppedAtIndex = &idx
				report.StoppedReason = StoppedReasonCancelled
				break
			}
		}
	}
	report.AllSuccessful = report.FailedCount == 0 && report.StoppedReason == "" && report.SuccessfulCount == len(plan.Calls)
	return report
}

// runOne invokes a single call through the registry and wraps the
// outcome. Transport errors and tool-reported errors land in the same
// ToolResult shape.
func (e *ToolExecutor) runOne(ctx context.Context, item *types.TodoItem, idx int, call *types.ToolCall) *types.ToolResult {
	_, bare, _ := types.SplitQualifiedTool(call.Tool)
	if bare == "" {
		bare = call.Tool
	}

	e.emit(ctx, &events.ToolCallStartEvent{Server: call.Server, Tool: call.Tool, PlanIndex: idx, ItemID: item.ID})
	started := time.Now()

	output, isError, err := e.catalog.CallTool(ctx, call.Server, bare, call.Parameters)
	duration := time.Since(started)

	result := &types.ToolResult{
		Tool:      call.Tool,
		Server:    call.Server,
		Timestamp: time.Now(),
		Metadata:  map[string]interface{}{"plan_index": idx, "duration_ms": duration.Milliseconds()},
	}

	switch {
	case err != nil:
		result.Error = err.Error()
		e.warnf("❌ Tool %s failed (transport): %v", call.Tool, err)
		e.emit(ctx, &events.ToolCallErrorEvent{Server: call.Server, Tool: call.Tool, PlanIndex: idx, Error: err.Error()})
	case isError:
		result.Error = output
		result.Data = output
		e.warnf("❌ Tool %s reported an error: %s", call.Tool, firstLine(output))
	default:
		result.Success = true
		result.Data = output
		e.debugf("✅ Tool %s completed in %s", call.Tool, duration.Round(time.Millisecond))
	}

	e.emit(ctx, &events.ToolCallEndEvent{
		Server: call.Server, Tool: call.Tool, PlanIndex: idx, ItemID: item.ID,
		Success: result.Success, Duration: duration,
	})
	return result
}

func (e *ToolExecutor) summarize(item *types.TodoItem, report *types.ExecutionReport) {
	if report.AllSuccessful {
		e.infof("✅ Item %s: all %d call(s) succeeded in %dms", item.ID, report.SuccessfulCount, report.ExecutionTimeMS)
		return
	}
	if report.StoppedAtIndex != nil {
		e.warnf("⚠️ Item %s: stopped at call %d (%s), %d ok / %d failed",
			item.ID, *report.StoppedAtIndex, report.StoppedReason, report.SuccessfulCount, report.FailedCount)
		return
	}
	e.warnf("⚠️ Item %s: %d ok / %d failed", item.ID, report.SuccessfulCount, report.FailedCount)
}

// callDelay maps a finished call onto the pause inserted before the
// next one.
func callDelay(call *types.ToolCall) time.Duration {
	name := call.Tool
	switch {
	case call.IsLongRunning || isLongRunningTool(name):
		return delayLongRunning
	case keywords.IsAppAction(name):
		return delayAppLaunch
	case keywords.IsNavigateAction(name):
		return delayWebNavigate
	case keywords.IsWebAction(name):
		return delayWebOther
	case keywords.IsFileAction(name) || keywords.IsSystemAction(name):
		return delayFileSystem
	default:
		return delayDefault
	}
}

var longRunningTokens = []string{"compile", "build", "encode", "transcode", "render", "generate_large", "install"}

func isLongRunningTool(name string) bool {
	lower := strings.ToLower(name)
	for _, token := range longRunningTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// isStatefulCall flags browser navigation and working-directory
// mutation, which serialize the whole plan.
func isStatefulCall(call *types.ToolCall) bool {
	if keywords.IsNavigateAction(call.Tool) {
		return true
	}
	lower := strings.ToLower(call.Tool)
	if strings.Contains(lower, "chdir") || strings.Contains(lower, "set_cwd") {
		return true
	}
	if _, ok := call.Parameters["cwd"]; ok {
		return true
	}
	return false
}

var writeTokens = []string{"write", "create", "delete", "remove", "move", "copy", "save", "mkdir", "rename", "upload", "append", "edit", "put"}

// isWriteTool classifies a tool as mutating by its verb.
func isWriteTool(name string) bool {
	lower := strings.ToLower(name)
	for _, token := range writeTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

var pathParamKeys = []string{"path", "file", "filepath", "file_path", "directory", "dir", "source", "src", "destination", "dest", "target", "output"}

// pathParams collects parameter values that name filesystem paths.
func pathParams(params map[string]interface{}) []string {
	var out []string
	for _, key := range pathParamKeys {
		if value, ok := params[key].(string); ok && value != "" {
			out = append(out, value)
		}
	}
	return out
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *ToolExecutor) emit(ctx context.Context, data events.EventData) {
	if e.emitter != nil {
		e.emitter(ctx, data)
	}
}

func (e *ToolExecutor) infof(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Infof(format, args...)
	}
}

func (e *ToolExecutor) debugf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debugf(format, args...)
	}
}

func (e *ToolExecutor) warnf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Warnf(format, args...)
	}
}
