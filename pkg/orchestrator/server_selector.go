package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// ToolCatalog is the registry view the pipeline stages depend on.
// *mcpregistry.Registry implements it; tests substitute a fixture.
type ToolCatalog interface {
	ServerNames() []string
	HasServer(name string) bool
	HasTool(server, tool string) bool
	ServersForTool(tool string) []string
	CatalogText(servers ...string) string
	CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (string, bool, error)
}

// ServerSelector picks at most two MCP servers for one todo item. A
// valid planner preselection wins without a model call; oversized
// selections surface as an explicit split request, never as a silent
// trim.
type ServerSelector struct {
	runner  *StageRunner
	catalog ToolCatalog
}

// NewServerSelector builds the stage on a shared runner and registry.
func NewServerSelector(runner *StageRunner, catalog ToolCatalog) *ServerSelector {
	return &ServerSelector{runner: runner, catalog: catalog}
}

// SelectServers resolves the servers for one item.
func (s *ServerSelector) SelectServers(ctx context.Context, item *types.TodoItem) types.Outcome[*types.ServerSelection] {
	if selection, ok := s.adoptPlannerSelection(item); ok {
		if !selection.NeedsSplit {
			s.runner.debugf("🎯 Adopting planner server selection for item %s: %v", item.ID, selection.SelectedServers)
		}
		return types.Ok(selection)
	}

	call := StageCall{
		StageID:  models.StageServerSelect,
		PromptID: prompts.PromptServerSelect,
		ItemID:   item.ID,
		Vars: map[string]string{
			"action":           item.Action,
			"success_criteria": item.SuccessCriteria,
			"server_catalog":   s.catalog.CatalogText(),
		},
	}

	result, meta, stageErr := s.runner.Object(ctx, call)
	if stageErr != nil {
		outcome := types.Fail[*types.ServerSelection](stageErr)
		outcome.Meta = meta
		return outcome
	}
	if result.Fallback {
		return s.salvageSelection(ctx, item, result.Object, meta)
	}

	selection, err := DecodeStage[types.ServerSelection](result)
	if err != nil {
		outcome := types.Fail[*types.ServerSelection](types.NewStageError(
			models.StageServerSelect, types.KindSchemaValidation, fmt.Sprintf("malformed selection: %v", err), nil))
		outcome.Meta = meta
		return outcome
	}

	outcome := s.validate(&selection, item)
	outcome.Meta = meta
	return outcome
}

// adoptPlannerSelection applies the trust rule: a non-empty planner
// selection of registry-known servers skips the model call. At most two
// servers are adopted verbatim; more become an explicit split request,
// never a silent trim.
func (s *ServerSelector) adoptPlannerSelection(item *types.TodoItem) (*types.ServerSelection, bool) {
	servers := item.SuggestedServers
	if len(servers) == 0 {
		return nil, false
	}
	for _, name := range servers {
		if !s.catalog.HasServer(name) {
			return nil, false
		}
	}
	if len(servers) > types.MaxServersPerItem {
		selection := &types.ServerSelection{
			SelectedServers: servers,
			NeedsSplit:      true,
			SuggestedSplit:  binaryPartition(servers),
			Reasoning:       "planner suggested more servers than one item may carry",
		}
		s.runner.warnf("⚠️ Item %s carries %d suggested servers, requesting split: %v", item.ID, len(servers), selection.SuggestedSplit)
		return selection, true
	}
	return &types.ServerSelection{
		SelectedServers: servers,
		SelectedPrompts: promptIDsFor(servers),
		Confidence:      0.95,
		Reasoning:       "planner preselected these servers",
	}, true
}

// validate enforces the 1..2 rule. More than two known servers becomes
// an explicit split request with a binary partition; unknown names
// fail the stage so the planner regenerates.
func (s *ServerSelector) validate(selection *types.ServerSelection, item *types.TodoItem) types.Outcome[*types.ServerSelection] {
	if len(selection.SelectedServers) == 0 {
		return types.Fail[*types.ServerSelection](types.NewStageError(
			models.StageServerSelect, types.KindBadResponse, fmt.Sprintf("no server selected for item %s", item.ID), nil))
	}

	var unknown []string
	for _, name := range selection.SelectedServers {
		if !s.catalog.HasServer(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return types.Fail[*types.ServerSelection](types.NewStageError(
			models.StageServerSelect, types.KindUnknownServer,
			fmt.Sprintf("selection names unknown servers: %s", strings.Join(unknown, ", ")), nil))
	}

	if len(selection.SelectedServers) > types.MaxServersPerItem {
		selection.NeedsSplit = true
		if !validPartition(selection.SuggestedSplit, selection.SelectedServers) {
			selection.SuggestedSplit = binaryPartition(selection.SelectedServers)
		}
		selection.SelectedPrompts = nil
		s.runner.warnf("⚠️ Item %s needs %d servers, requesting split: %v", item.ID, len(selection.SelectedServers), selection.SuggestedSplit)
		return types.Ok(selection)
	}

	if selection.Confidence <= 0 {
		selection.Confidence = 0.5
	}
	selection.SelectedPrompts = promptIDsFor(selection.SelectedServers)
	return types.Ok(selection)
}

// salvageSelection is the keyword fallback: server names the salvage
// pass recognized in otherwise unparseable text.
func (s *ServerSelector) salvageSelection(ctx context.Context, item *types.TodoItem, obj map[string]interface{}, meta types.StageMeta) types.Outcome[*types.ServerSelection] {
	names := stringSlice(obj["selected_servers"])
	known := names[:0]
	for _, name := range names {
		if s.catalog.HasServer(name) {
			known = append(known, name)
		}
	}

	if len(known) == 0 {
		outcome := types.Fail[*types.ServerSelection](types.NewStageError(
			models.StageServerSelect, types.KindParseFailure,
			fmt.Sprintf("unparseable selection for item %s with no recognizable server names", item.ID), nil))
		outcome.Meta = meta
		return outcome
	}

	selection := &types.ServerSelection{
		SelectedServers: known,
		Confidence:      0.3,
		Reasoning:       "server names recovered from unparseable response",
	}
	if len(known) > types.MaxServersPerItem {
		selection.NeedsSplit = true
		selection.SuggestedSplit = binaryPartition(known)
	} else {
		selection.SelectedPrompts = promptIDsFor(known)
	}

	reason := fmt.Sprintf("recovered %d server name(s) from unparseable selection", len(known))
	s.runner.fallbackStage(ctx, models.StageServerSelect, reason)
	outcome := types.FallbackOutcome(selection, reason)
	outcome.Meta = meta
	return outcome
}

// promptIDsFor maps servers onto their per-server tool plan prompts.
func promptIDsFor(servers []string) []string {
	ids := make([]string, len(servers))
	for i, server := range servers {
		ids[i] = prompts.ToolPlanPromptID(server)
	}
	return ids
}

// binaryPartition halves a server list into two groups, first half
// larger on odd counts.
func binaryPartition(servers []string) [][]string {
	mid := (len(servers) + 1) / 2
	return [][]string{servers[:mid], servers[mid:]}
}

// validPartition checks a model-provided split: exactly two non-empty
// groups that together cover the selection.
func validPartition(split [][]string, servers []string) bool {
	if len(split) != 2 || len(split[0]) == 0 || len(split[1]) == 0 {
		return false
	}
	covered := make(map[string]bool)
	for _, group := range split {
		for _, name := range group {
			covered[name] = true
		}
	}
	for _, name := range servers {
		if !covered[name] {
			return false
		}
	}
	return true
}

// stringSlice coerces a decoded JSON array into strings, dropping
// anything else.
func stringSlice(raw interface{}) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
