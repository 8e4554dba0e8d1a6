package orchestrator

import (
	"context"
	"fmt"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// TodoPlanner turns an enriched request into an ordered todo tree.
// Unlike the soft stages before it, planning has no degraded answer: a
// task pipeline without a plan cannot continue, so failures surface.
type TodoPlanner struct {
	runner      *StageRunner
	maxAttempts int
}

// NewTodoPlanner builds the stage. maxAttempts is the per-item retry
// budget written into every planned item.
func NewTodoPlanner(runner *StageRunner, maxAttempts int) *TodoPlanner {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &TodoPlanner{runner: runner, maxAttempts: maxAttempts}
}

// plannedItem is the per-item shape the planner model answers with.
// Both suggested_servers and mcp_servers are accepted; models drift
// between the two names.
type plannedItem struct {
	Action           string                 `json:"action"`
	SuccessCriteria  string                 `json:"success_criteria"`
	SuggestedServers []string               `json:"suggested_servers"`
	MCPServers       []string               `json:"mcp_servers"`
	Parameters       map[string]interface{} `json:"parameters"`
	Dependencies     []string               `json:"dependencies"`
}

type plannedList struct {
	Items []plannedItem `json:"items"`
}

// Plan produces the todo tree for an enriched request.
func (p *TodoPlanner) Plan(ctx context.Context, enriched *types.EnrichedRequest, serverCatalog string) types.Outcome[*types.TodoTree] {
	call := StageCall{
		StageID:  models.StageTodoPlan,
		PromptID: prompts.PromptTodoPlan,
		Vars: map[string]string{
			"enriched_request": enriched.Enriched,
			"server_catalog":   serverCatalog,
		},
	}

	result, meta, stageErr := p.runner.Object(ctx, call)
	if stageErr != nil {
		outcome := types.Fail[*types.TodoTree](stageErr)
		outcome.Meta = meta
		return outcome
	}
	if result.Fallback {
		outcome := types.Fail[*types.TodoTree](types.NewStageError(
			models.StageTodoPlan, types.KindParseFailure, "planner response is not a structured plan", nil))
		outcome.Meta = meta
		return outcome
	}

	plan, err := DecodeStage[plannedList](result)
	if err != nil {
		outcome := types.Fail[*types.TodoTree](types.NewStageError(
			models.StageTodoPlan, types.KindSchemaValidation, fmt.Sprintf("malformed plan: %v", err), nil))
		outcome.Meta = meta
		return outcome
	}
	if len(plan.Items) == 0 {
		outcome := types.Fail[*types.TodoTree](types.NewStageError(
			models.StageTodoPlan, types.KindBadResponse, "plan has no items", nil))
		outcome.Meta = meta
		return outcome
	}

	tree := p.buildTree(plan.Items)
	outcome := types.Ok(tree)
	outcome.Meta = meta
	return outcome
}

// buildTree assigns sequential ids in plan order and resolves
// dependencies. A dependency may only point at an earlier item;
// anything else is dropped so the tree stays a DAG.
func (p *TodoPlanner) buildTree(items []plannedItem) *types.TodoTree {
	tree := types.NewTodoTree()
	known := make(map[string]bool, len(items))

	for _, planned := range items {
		// Oversized suggestions are kept intact; the selector turns
		// them into a split request instead of trimming them here.
		servers := planned.SuggestedServers
		if len(servers) == 0 {
			servers = planned.MCPServers
		}

		item := &types.TodoItem{
			Action:           planned.Action,
			SuccessCriteria:  planned.SuccessCriteria,
			SuggestedServers: servers,
			Parameters:       planned.Parameters,
			MaxAttempts:      p.maxAttempts,
		}
		id := tree.AddRoot(item)

		deps := make([]string, 0, len(planned.Dependencies))
		for _, dep := range planned.Dependencies {
			if known[dep] {
				deps = append(deps, dep)
				continue
			}
			p.runner.warnf("⚠️ Dropping plan dependency %q of item %s: not an earlier item", dep, id)
		}
		item.Dependencies = deps
		known[id] = true
	}
	return tree
}
