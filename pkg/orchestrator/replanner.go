package orchestrator

import (
	"context"
	"strings"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// maxReplacementItems caps one replan; the prompt asks for one to
// three smaller items.
const maxReplacementItems = 3

// maxDecomposeDepth bounds the dotted-id depth so a stubborn item
// cannot decompose forever.
const maxDecomposeDepth = 3

// StrategyAbandon and StrategyServerSplit are the two replan outcomes
// produced without a model call.
const (
	StrategyAbandon     = "abandon"
	StrategyServerSplit = "server_split"
)

// ReplanResult reports how a failing item was reshaped. Abandoned is
// set when no viable replacement came back and the item was given up.
type ReplanResult struct {
	ReplacementIDs []string
	Strategy       string
	Abandoned      bool
}

// Replanner replaces a failing todo item with smaller sub-items that
// re-enter the pipeline at server selection. It also resolves
// explicit split requests from the server selector.
type Replanner struct {
	runner  *StageRunner
	catalog ToolCatalog
}

// NewReplanner builds the replanner around the shared stage runner.
func NewReplanner(runner *StageRunner, catalog ToolCatalog) *Replanner {
	return &Replanner{runner: runner, catalog: catalog}
}

// replanItem is one replacement entry in the model's answer.
type replanItem struct {
	Action           string   `json:"action"`
	SuccessCriteria  string   `json:"success_criteria"`
	SuggestedServers []string `json:"suggested_servers"`
}

type replanList struct {
	Items    []replanItem `json:"items"`
	Strategy string       `json:"strategy"`
}

// Adjust asks the model for replacement items and splices them under
// the failing item. Every failure path abandons the item instead of
// erroring, so the run can finish with a partial result.
func (rp *Replanner) Adjust(ctx context.Context, tree *types.TodoTree, item *types.TodoItem, verdict *types.VerificationOutcome) *ReplanResult {
	if strings.Count(item.ID, ".") >= maxDecomposeDepth {
		return rp.abandon(ctx, item, "decomposition depth exhausted")
	}

	rootCause := ""
	guidance := ""
	if verdict != nil {
		rootCause = string(verdict.RootCause)
		guidance = verdict.Guidance
	}

	result, _, stageErr := rp.runner.Object(ctx, StageCall{
		StageID:  models.StageReplan,
		PromptID: prompts.PromptReplan,
		Vars: map[string]string{
			"action":           item.Action,
			"success_criteria": item.SuccessCriteria,
			"root_cause":       rootCause,
			"guidance":         guidance,
			"server_catalog":   rp.catalog.CatalogText(),
		},
		ItemID: item.ID,
	})
	if stageErr != nil {
		return rp.abandon(ctx, item, "replan model call failed: "+stageErr.Error())
	}
	if result.Fallback {
		return rp.abandon(ctx, item, "replan response is not a structured plan")
	}
	decoded, err := DecodeStage[replanList](result)
	if err != nil {
		return rp.abandon(ctx, item, "replan response did not decode: "+err.Error())
	}

	subs := rp.buildReplacements(item, decoded.Items)
	if len(subs) == 0 {
		return rp.abandon(ctx, item, "replan produced no usable items")
	}

	strategy := strings.TrimSpace(decoded.Strategy)
	if strategy == "" {
		strategy = rootCause
	}
	return rp.splice(ctx, tree, item, subs, strategy)
}

// Split resolves an explicit split request from the server selector:
// the item becomes one sub-item per server group, run in order.
func (rp *Replanner) Split(ctx context.Context, tree *types.TodoTree, item *types.TodoItem, selection *types.ServerSelection) *ReplanResult {
	if strings.Count(item.ID, ".") >= maxDecomposeDepth {
		return rp.abandon(ctx, item, "decomposition depth exhausted")
	}

	groups := selection.SuggestedSplit
	if len(groups) < 2 {
		groups = binaryPartition(selection.SelectedServers)
	}

	subs := make([]*types.TodoItem, 0, len(groups))
	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		subs = append(subs, &types.TodoItem{
			Action:           item.Action,
			SuccessCriteria:  item.SuccessCriteria,
			SuggestedServers: capServers(group),
			Parameters:       item.Parameters,
		})
	}
	if len(subs) < 2 {
		return rp.abandon(ctx, item, "split request without a usable partition")
	}

	rp.runner.infof("🔀 Splitting item %s across %d server groups", item.ID, len(subs))
	return rp.splice(ctx, tree, item, subs, StrategyServerSplit)
}

// buildReplacements validates the model's items: empty actions drop,
// unknown servers drop from the suggestion, and the count is capped.
func (rp *Replanner) buildReplacements(item *types.TodoItem, raw []replanItem) []*types.TodoItem {
	subs := make([]*types.TodoItem, 0, len(raw))
	for _, entry := range raw {
		action := strings.TrimSpace(entry.Action)
		if action == "" {
			continue
		}
		criteria := strings.TrimSpace(entry.SuccessCriteria)
		if criteria == "" {
			criteria = item.SuccessCriteria
		}
		var servers []string
		for _, server := range entry.SuggestedServers {
			server = strings.TrimSpace(server)
			if server == "" {
				continue
			}
			if !rp.catalog.HasServer(server) {
				rp.runner.warnf("⚠️ Dropping unknown server %q from replacement of item %s", server, item.ID)
				continue
			}
			servers = append(servers, server)
		}
		subs = append(subs, &types.TodoItem{
			Action:           action,
			SuccessCriteria:  criteria,
			SuggestedServers: capServers(servers),
		})
		if len(subs) == maxReplacementItems {
			break
		}
	}
	return subs
}

// splice decomposes the item and chains the new siblings so they run
// in order.
func (rp *Replanner) splice(ctx context.Context, tree *types.TodoTree, item *types.TodoItem, subs []*types.TodoItem, strategy string) *ReplanResult {
	ids, err := tree.Decompose(item.ID, subs)
	if err != nil {
		return rp.abandon(ctx, item, "decompose failed: "+err.Error())
	}
	for i := 1; i < len(ids); i++ {
		tree.Get(ids[i]).Dependencies = []string{ids[i-1]}
	}

	rp.runner.infof("🔄 Replanned item %s into %d sub-item(s): strategy=%s", item.ID, len(ids), strategy)
	rp.runner.emit(ctx, &events.TodoReplannedEvent{
		ItemID:         item.ID,
		Strategy:       strategy,
		ReplacementIDs: ids,
	})
	return &ReplanResult{ReplacementIDs: ids, Strategy: strategy}
}

func (rp *Replanner) abandon(ctx context.Context, item *types.TodoItem, reason string) *ReplanResult {
	item.Status = types.TodoAbandoned
	rp.runner.warnf("⚠️ Abandoning item %s: %s", item.ID, reason)
	rp.runner.emit(ctx, &events.TodoItemEvent{
		Phase:   events.TodoItemAbandoned,
		ItemID:  item.ID,
		Action:  item.Action,
		Attempt: item.Attempt,
		Status:  string(types.TodoAbandoned),
	})
	return &ReplanResult{Strategy: StrategyAbandon, Abandoned: true}
}

func capServers(servers []string) []string {
	if len(servers) > types.MaxServersPerItem {
		return servers[:types.MaxServersPerItem]
	}
	return servers
}
