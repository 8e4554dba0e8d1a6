package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

func threeServerCatalog() *fakeCatalog {
	return newFakeCatalog().
		addServer("filesystem", "read_file", "create_directory").
		addServer("shell", "run_command").
		addServer("browser", "browser_navigate")
}

func TestSelectServersAdoptsPlannerPreselection(t *testing.T) {
	model := &scriptedModel{}
	selector := NewServerSelector(newTestRunner(t, model, nil), threeServerCatalog())

	item := testItem("1", "Створи папку /tmp/demo", "Папка demo існує в /tmp")
	item.SuggestedServers = []string{"filesystem"}

	outcome := selector.SelectServers(context.Background(), item)
	require.Equal(t, types.OutcomeOK, outcome.Status)
	assert.Equal(t, []string{"filesystem"}, outcome.Value.SelectedServers)
	assert.InDelta(t, 0.95, outcome.Value.Confidence, 0.001)
	assert.False(t, outcome.Value.NeedsSplit)
	assert.Empty(t, model.recorded())
}

func TestSelectServersSplitsOversizedPlannerSuggestion(t *testing.T) {
	model := &scriptedModel{}
	selector := NewServerSelector(newTestRunner(t, model, nil), threeServerCatalog())

	item := testItem("1", "Download the report, save it and open it", "Report saved and visible")
	item.SuggestedServers = []string{"filesystem", "shell", "browser"}

	outcome := selector.SelectServers(context.Background(), item)
	require.Equal(t, types.OutcomeOK, outcome.Status)

	selection := outcome.Value
	assert.True(t, selection.NeedsSplit)
	assert.Equal(t, []string{"filesystem", "shell", "browser"}, selection.SelectedServers)
	assert.Equal(t, [][]string{{"filesystem", "shell"}, {"browser"}}, selection.SuggestedSplit)
	assert.Empty(t, selection.SelectedPrompts)
	assert.Zero(t, selection.Confidence)

	// The split verdict came from the suggestion alone, without a
	// model call and without trimming the server list.
	assert.Empty(t, model.recorded())
}

func TestPlanKeepsOversizedServerSuggestion(t *testing.T) {
	model := &scriptedModel{script: []scriptStep{
		reply(`{"items":[{"action":"Download the report, save it and open it","success_criteria":"Report saved and visible","suggested_servers":["filesystem","shell","browser"]}]}`),
	}}
	planner := NewTodoPlanner(newTestRunner(t, model, nil), 3)

	enriched := &types.EnrichedRequest{Enriched: "download the report, save it and open it"}
	outcome := planner.Plan(context.Background(), enriched, "filesystem, shell, browser")
	require.Equal(t, types.OutcomeOK, outcome.Status)

	item := outcome.Value.Get("1")
	require.NotNil(t, item)
	assert.Equal(t, []string{"filesystem", "shell", "browser"}, item.SuggestedServers)
}

func TestRunItemSplitsOversizedPlannerSuggestion(t *testing.T) {
	model := &scriptedModel{}
	sink := &eventSink{}
	orch := New(newTestRunner(t, model, sink), threeServerCatalog(), nil, testSettings())

	tree := types.NewTodoTree()
	item := &types.TodoItem{
		Action:           "Download the report, save it and open it",
		SuccessCriteria:  "Report saved and visible",
		SuggestedServers: []string{"filesystem", "shell", "browser"},
	}
	tree.AddRoot(item)

	orch.runItem(context.Background(), tree, item)

	first := tree.Get("1.1")
	second := tree.Get("1.2")
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, []string{"filesystem", "shell"}, first.SuggestedServers)
	assert.Equal(t, []string{"browser"}, second.SuggestedServers)
	assert.Equal(t, []string{"1.1"}, second.Dependencies)
	assert.Equal(t, types.TodoInProgress, item.Status)

	replans := sink.ofType(events.TodoReplanned)
	require.Len(t, replans, 1)
	assert.Equal(t, StrategyServerSplit, replans[0].(*events.TodoReplannedEvent).Strategy)
	assert.Empty(t, model.recorded())
}
