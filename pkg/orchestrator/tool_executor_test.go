package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

func qualifiedCall(server, tool string, params map[string]interface{}) *types.ToolCall {
	return &types.ToolCall{Server: server, Tool: types.QualifyTool(server, tool), Parameters: params}
}

func TestExecuteStopsAtFirstFailingCall(t *testing.T) {
	catalog := newFakeCatalog().
		addServer("filesystem", "write_file", "read_file").
		scriptToolError("filesystem__read_file", "ENOENT: /tmp/report.txt does not exist")
	executor := NewToolExecutor(catalog, nil, nil)

	item := testItem("1", "Save the report and read it back", "Report content visible")
	plan := &types.ToolPlan{ItemID: "1", Calls: []*types.ToolCall{
		qualifiedCall("filesystem", "write_file", map[string]interface{}{"path": "/tmp/report.txt"}),
		qualifiedCall("filesystem", "read_file", map[string]interface{}{"path": "/tmp/report.txt"}),
		qualifiedCall("filesystem", "write_file", map[string]interface{}{"path": "/tmp/summary.txt"}),
	}}

	report := executor.Execute(context.Background(), item, plan)

	assert.Equal(t, types.DispatchSequential, report.Mode)
	require.NotNil(t, report.StoppedAtIndex)
	assert.Equal(t, 1, *report.StoppedAtIndex)
	assert.Equal(t, StoppedReasonFailure, report.StoppedReason)
	assert.False(t, report.AllSuccessful)
	assert.Equal(t, 1, report.SuccessfulCount)
	assert.Equal(t, 1, report.FailedCount)
	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].Success)
	assert.Contains(t, report.Results[1].Error, "ENOENT")

	// The call after the failure never reached the registry.
	calls := catalog.recordedCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "read_file", calls[1].Tool)
}

func TestExecutePreservesPlanOrderInParallel(t *testing.T) {
	catalog := newFakeCatalog().
		addServer("filesystem", "read_file", "get_file_info").
		addServer("memory", "recall").
		scriptReply("filesystem__read_file", "alpha").
		scriptReply("filesystem__get_file_info", "beta").
		scriptReply("memory__recall", "gamma")
	executor := NewToolExecutor(catalog, nil, nil)

	item := testItem("1", "Collect the report inputs", "All inputs gathered")
	plan := &types.ToolPlan{ItemID: "1", Calls: []*types.ToolCall{
		qualifiedCall("filesystem", "read_file", map[string]interface{}{"path": "/tmp/a.txt"}),
		qualifiedCall("filesystem", "get_file_info", map[string]interface{}{"path": "/tmp/b.txt"}),
		qualifiedCall("memory", "recall", map[string]interface{}{"key": "report"}),
	}}

	report := executor.Execute(context.Background(), item, plan)

	assert.Equal(t, types.DispatchParallel, report.Mode)
	assert.True(t, report.AllSuccessful)
	assert.Equal(t, 3, report.SuccessfulCount)
	assert.Nil(t, report.StoppedAtIndex)
	require.Len(t, report.Results, 3)

	// Each result sits at its plan index regardless of completion
	// order.
	for i, call := range plan.Calls {
		assert.Equal(t, call.Tool, report.Results[i].Tool)
		assert.Equal(t, call.Server, report.Results[i].Server)
	}
	assert.Equal(t, "alpha", report.Results[0].Data)
	assert.Equal(t, "beta", report.Results[1].Data)
	assert.Equal(t, "gamma", report.Results[2].Data)
}

func TestChooseModeCautionTriggers(t *testing.T) {
	executor := NewToolExecutor(newFakeCatalog(), nil, nil)
	readCall := qualifiedCall("filesystem", "read_file", map[string]interface{}{"path": "/tmp/a.txt"})

	t.Run("retry attempt runs step by step", func(t *testing.T) {
		item := testItem("1", "Create the folder", "Folder exists")
		item.Attempt = 2
		plan := &types.ToolPlan{Calls: []*types.ToolCall{readCall}}
		assert.Equal(t, types.DispatchStepByStep, executor.chooseMode(item, plan))
	})

	t.Run("plan spanning three servers runs step by step", func(t *testing.T) {
		item := testItem("1", "Gather state from every surface", "State collected")
		plan := &types.ToolPlan{Calls: []*types.ToolCall{
			qualifiedCall("filesystem", "read_file", nil),
			qualifiedCall("shell", "run_command", nil),
			qualifiedCall("memory", "recall", nil),
		}}
		assert.Equal(t, types.DispatchStepByStep, executor.chooseMode(item, plan))
	})

	t.Run("search wording runs step by step", func(t *testing.T) {
		item := testItem("1", "Search the release notes for the fix", "Notes found")
		plan := &types.ToolPlan{Calls: []*types.ToolCall{readCall}}
		assert.Equal(t, types.DispatchStepByStep, executor.chooseMode(item, plan))
	})

	t.Run("browser navigation serializes the batch", func(t *testing.T) {
		item := testItem("1", "Check the status dashboard", "Status visible")
		plan := &types.ToolPlan{Calls: []*types.ToolCall{
			qualifiedCall("browser", "browser_navigate", map[string]interface{}{"url": "https://example.com"}),
			readCall,
		}}
		assert.Equal(t, types.DispatchSequential, executor.chooseMode(item, plan))
	})

	t.Run("independent reads run in parallel", func(t *testing.T) {
		item := testItem("1", "Collect the inputs", "Inputs gathered")
		plan := &types.ToolPlan{Calls: []*types.ToolCall{
			readCall,
			qualifiedCall("filesystem", "get_file_info", map[string]interface{}{"path": "/tmp/b.txt"}),
		}}
		assert.Equal(t, types.DispatchParallel, executor.chooseMode(item, plan))
	})

	t.Run("read after write of the same path serializes", func(t *testing.T) {
		item := testItem("1", "Write the file, then verify it", "File content matches")
		plan := &types.ToolPlan{Calls: []*types.ToolCall{
			qualifiedCall("filesystem", "write_file", map[string]interface{}{"path": "/tmp/a.txt"}),
			readCall,
		}}
		assert.Equal(t, types.DispatchSequential, executor.chooseMode(item, plan))
	})
}
