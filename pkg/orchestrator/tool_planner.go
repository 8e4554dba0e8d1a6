package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// ToolPlanner expands one todo item into concrete MCP calls against
// its selected servers. Single-server items use that server's
// specialized prompt when one is registered; the generic prompt covers
// everything else.
type ToolPlanner struct {
	runner  *StageRunner
	catalog ToolCatalog
}

// NewToolPlanner builds the stage on a shared runner and registry.
func NewToolPlanner(runner *StageRunner, catalog ToolCatalog) *ToolPlanner {
	return &ToolPlanner{runner: runner, catalog: catalog}
}

// PlanTools produces the tool plan for one item given its selection.
func (p *ToolPlanner) PlanTools(ctx context.Context, item *types.TodoItem, selection *types.ServerSelection) types.Outcome[*types.ToolPlan] {
	servers := selection.SelectedServers

	promptID := prompts.PromptToolPlan
	fallbackID := ""
	if len(servers) == 1 {
		promptID = prompts.ToolPlanPromptID(servers[0])
		fallbackID = prompts.PromptToolPlan
	}

	call := StageCall{
		StageID:          models.StageToolPlan,
		PromptID:         promptID,
		FallbackPromptID: fallbackID,
		ItemID:           item.ID,
		Vars: map[string]string{
			"action":           item.Action,
			"success_criteria": item.SuccessCriteria,
			"servers":          strings.Join(servers, ", "),
			"tool_catalog":     p.catalog.CatalogText(servers...),
		},
	}

	result, meta, stageErr := p.runner.Object(ctx, call)
	if stageErr != nil {
		outcome := types.Fail[*types.ToolPlan](stageErr)
		outcome.Meta = meta
		return outcome
	}
	if result.Fallback {
		outcome := types.Fail[*types.ToolPlan](types.NewStageError(
			models.StageToolPlan, types.KindParseFailure,
			fmt.Sprintf("tool plan for item %s is not structured", item.ID), nil))
		outcome.Meta = meta
		return outcome
	}

	plan, err := DecodeStage[types.ToolPlan](result)
	if err != nil {
		outcome := types.Fail[*types.ToolPlan](types.NewStageError(
			models.StageToolPlan, types.KindSchemaValidation, fmt.Sprintf("malformed tool plan: %v", err), nil))
		outcome.Meta = meta
		return outcome
	}
	if len(plan.Calls) == 0 {
		outcome := types.Fail[*types.ToolPlan](types.NewStageError(
			models.StageToolPlan, types.KindEmptyPlan,
			fmt.Sprintf("tool plan for item %s has no calls", item.ID), nil))
		outcome.Meta = meta
		return outcome
	}

	plan.ItemID = item.ID
	for _, toolCall := range plan.Calls {
		if stageErr := p.normalizeCall(toolCall, servers); stageErr != nil {
			outcome := types.Fail[*types.ToolPlan](stageErr)
			outcome.Meta = meta
			return outcome
		}
	}

	outcome := types.Ok(&plan)
	outcome.Meta = meta
	return outcome
}

// normalizeCall canonicalizes one planned call: the Tool field becomes
// the qualified server__tool name, the Server field the bare server. A
// qualified name in the response wins over a conflicting server field.
// Bare tool names are attributed through the catalog when exactly one
// selected server owns the tool.
func (p *ToolPlanner) normalizeCall(call *types.ToolCall, selected []string) *types.StageError {
	tool := strings.TrimSpace(call.Tool)
	server := strings.TrimSpace(call.Server)

	if embeddedServer, bare, ok := types.SplitQualifiedTool(tool); ok {
		server = embeddedServer
		tool = bare
	} else if strings.Contains(tool, "__") {
		return types.NewStageError(models.StageToolPlan, types.KindSchemaValidation,
			fmt.Sprintf("tool name %q does not match the server__tool grammar", call.Tool), nil)
	}

	if server == "" {
		owners := intersect(p.catalog.ServersForTool(tool), selected)
		if len(owners) != 1 {
			return types.NewStageError(models.StageToolPlan, types.KindUnknownTool,
				fmt.Sprintf("cannot attribute tool %q to a selected server (candidates: %v)", tool, owners), nil)
		}
		server = owners[0]
		p.runner.debugf("🔧 Auto-qualified bare tool %q as %s", tool, types.QualifyTool(server, tool))
	}

	if !containsString(selected, server) {
		return types.NewStageError(models.StageToolPlan, types.KindUnknownServer,
			fmt.Sprintf("planned call targets %q outside the selected servers %v", server, selected), nil)
	}
	if !p.catalog.HasTool(server, tool) {
		return types.NewStageError(models.StageToolPlan, types.KindUnknownTool,
			fmt.Sprintf("server %q has no tool %q", server, tool), nil)
	}

	qualified := types.QualifyTool(server, tool)
	if !types.IsQualifiedTool(qualified) {
		return types.NewStageError(models.StageToolPlan, types.KindSchemaValidation,
			fmt.Sprintf("call %q does not form a valid qualified name", qualified), nil)
	}

	call.Server = server
	call.Tool = qualified
	if call.Parameters == nil {
		call.Parameters = map[string]interface{}{}
	}
	return nil
}

func intersect(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	var out []string
	for _, s := range a {
		if inB[s] {
			out = append(out, s)
		}
	}
	return out
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
