package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStoreHasAllStagePrompts(t *testing.T) {
	store := NewDefaultStore()
	ids := []string{
		PromptModeSelect, PromptChatReply, PromptContextEnrich,
		PromptTodoPlan, PromptServerSelect, PromptToolPlan,
		PromptVerifyRoute, PromptVerifyVisual, PromptVerifyAnalyze,
		PromptReplan, PromptFinalSummary, PromptDevAnalyze, PromptDevIntervention,
	}
	for _, id := range ids {
		spec, ok := store.Lookup(id)
		require.True(t, ok, "missing prompt %s", id)
		assert.NotEmpty(t, spec.System, "prompt %s has no system text", id)
	}
}

func TestRegisterOverridesDefault(t *testing.T) {
	store := NewDefaultStore()
	store.Register(&Spec{ID: PromptChatReply, System: "custom", User: "{{user_message}}"})

	spec, ok := store.Lookup(PromptChatReply)
	require.True(t, ok)
	assert.Equal(t, "custom", spec.System)
}

func TestLookupWithFallback(t *testing.T) {
	store := NewDefaultStore()

	spec, ok := store.LookupWithFallback("TOOL_PLAN_FILESYSTEM", PromptToolPlan)
	require.True(t, ok)
	assert.Equal(t, PromptToolPlan, spec.ID)

	store.Register(&Spec{ID: "TOOL_PLAN_FILESYSTEM", System: "filesystem planner"})
	spec, ok = store.LookupWithFallback("TOOL_PLAN_FILESYSTEM", PromptToolPlan)
	require.True(t, ok)
	assert.Equal(t, "TOOL_PLAN_FILESYSTEM", spec.ID)
}

func TestRenderReplacesPlaceholders(t *testing.T) {
	rendered := Render("Item: {{action}} on {{servers}}", map[string]string{
		"action":  "create folder",
		"servers": "filesystem",
	})
	assert.Equal(t, "Item: create folder on filesystem", rendered)
}

func TestRenderLeavesUnknownSlots(t *testing.T) {
	rendered := Render("Item: {{action}}", map[string]string{"other": "x"})
	assert.Equal(t, "Item: {{action}}", rendered)
}

func TestToolPlanPromptID(t *testing.T) {
	assert.Equal(t, "TOOL_PLAN_FILESYSTEM", ToolPlanPromptID("filesystem"))
	assert.Equal(t, "TOOL_PLAN_WEB_SEARCH", ToolPlanPromptID("web-search"))
	assert.Equal(t, "TOOL_PLAN_GUI_APPS", ToolPlanPromptID("gui apps"))
}
