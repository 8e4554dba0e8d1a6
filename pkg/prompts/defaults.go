package prompts

// Stage prompt ids. Per-server tool planning prompts follow the
// TOOL_PLAN_<SERVER> convention on top of the generic TOOL_PLAN.
const (
	PromptModeSelect      = "MODE_SELECT"
	PromptChatReply       = "CHAT_REPLY"
	PromptContextEnrich   = "CONTEXT_ENRICH"
	PromptTodoPlan        = "TODO_PLAN"
	PromptServerSelect    = "SERVER_SELECT"
	PromptToolPlan        = "TOOL_PLAN"
	PromptVerifyRoute     = "VERIFY_ROUTE"
	PromptVerifyVisual    = "VERIFY_VISUAL"
	PromptVerifyAnalyze   = "VERIFY_ANALYZE"
	PromptReplan          = "REPLAN"
	PromptFinalSummary    = "FINAL_SUMMARY"
	PromptDevAnalyze      = "DEV_ANALYZE"
	PromptDevIntervention = "DEV_INTERVENTION"
)

// NewDefaultStore returns a store preloaded with the built-in stage
// prompts. Deployments overlay their own texts via Register.
func NewDefaultStore() *Store {
	store := NewStore()
	for _, spec := range defaultSpecs {
		store.Register(spec)
	}
	return store
}

var defaultSpecs = []*Spec{
	{
		ID:     PromptModeSelect,
		System: "You classify a user message for an automation assistant. Decide whether it is casual conversation, a task that needs tools, or a developer self-analysis request.",
		User:   "Message: {{user_message}}\n\nRecent turns:\n{{history}}",
		Schema: `{"type":"object","properties":{"mode":{"type":"string","enum":["chat","task","dev"]},"confidence":{"type":"number"},"reasoning":{"type":"string"}},"required":["mode","confidence"]}`,
	},
	{
		ID:     PromptChatReply,
		System: "You are a friendly desktop assistant. Reply briefly and helpfully in the user's language ({{user_language}}).",
		User:   "{{user_message}}",
	},
	{
		ID:     PromptContextEnrich,
		System: "You expand a user request into the details an automation planner needs: what the user implicitly requires, what must exist first, and how complex the task is on a 1-10 scale.",
		User:   "Request: {{user_message}}",
		Schema: `{"type":"object","properties":{"original_request":{"type":"string"},"enriched_understanding":{"type":"string"},"implicit_requirements":{"type":"array","items":{"type":"string"}},"prerequisites":{"type":"array","items":{"type":"string"}},"technical_specifications":{"type":"object"},"estimated_complexity":{"type":"integer","minimum":1,"maximum":10}},"required":["enriched_understanding","estimated_complexity"]}`,
	},
	{
		ID:     PromptTodoPlan,
		System: "You break a request into an ordered to-do list for an automation agent. Each item gets an action, a verifiable success criterion, up to two suggested MCP servers from the available list, and dependencies on earlier items by id.",
		User:   "Request: {{enriched_request}}\n\nAvailable servers and tools:\n{{server_catalog}}",
		Schema: `{"type":"object","properties":{"items":{"type":"array","items":{"type":"object","properties":{"action":{"type":"string"},"success_criteria":{"type":"string"},"suggested_servers":{"type":"array","items":{"type":"string"},"maxItems":2},"dependencies":{"type":"array","items":{"type":"string"}}},"required":["action","success_criteria"]}}},"required":["items"]}`,
	},
	{
		ID:     PromptServerSelect,
		System: "You pick the MCP servers needed for one to-do item. Choose at most two. If the item genuinely needs more than two servers, say so and propose how to split it into two parts.",
		User:   "Item: {{action}}\nSuccess criteria: {{success_criteria}}\n\nAvailable servers:\n{{server_catalog}}",
		Schema: `{"type":"object","properties":{"selected_servers":{"type":"array","items":{"type":"string"}},"reasoning":{"type":"string"},"confidence":{"type":"number"},"needs_split":{"type":"boolean"},"suggested_split":{"type":"array","items":{"type":"array","items":{"type":"string"}}}},"required":["selected_servers","confidence"]}`,
	},
	{
		ID:     PromptToolPlan,
		System: "You plan the exact MCP tool calls for one to-do item. Use only tools from the selected servers, in server__tool form, with concrete parameters. Mark long-running calls.",
		User:   "Item: {{action}}\nSuccess criteria: {{success_criteria}}\nSelected servers: {{servers}}\n\nTools:\n{{tool_catalog}}",
		Schema: `{"type":"object","properties":{"tool_calls":{"type":"array","items":{"type":"object","properties":{"server":{"type":"string"},"tool":{"type":"string"},"parameters":{"type":"object"},"is_long_running":{"type":"boolean"}},"required":["server","tool"]}},"reasoning":{"type":"string"}},"required":["tool_calls"]}`,
	},
	{
		ID:     PromptVerifyRoute,
		System: "You decide how to verify that a completed action really succeeded: by looking at the screen, by querying data through MCP tools, or both. Rewrite the action as an idempotent check and list concrete data probes when useful.",
		User:   "Action: {{action}}\nSuccess criteria: {{success_criteria}}\nExecution summary: {{execution_summary}}\nAvailable servers: {{servers}}",
		Schema: `{"type":"object","properties":{"visual_possible":{"type":"boolean"},"confidence":{"type":"number"},"reason":{"type":"string"},"recommended_path":{"type":"string","enum":["visual","data","hybrid"]},"additional_checks":{"type":"array","items":{"type":"object","properties":{"server":{"type":"string"},"tool":{"type":"string"},"parameters":{"type":"object"},"expected_evidence":{"type":"string"}},"required":["server","tool"]}},"allow_visual_fallback":{"type":"boolean"},"verification_action":{"type":"string"}},"required":["visual_possible","recommended_path"]}`,
	},
	{
		ID:     PromptVerifyVisual,
		System: "You inspect a screenshot and judge whether it shows that a check passed. Describe exactly what you observe, then state whether it matches the criteria and how confident you are from 0 to 100.",
		User:   "Check: {{verification_action}}\nCriteria: {{success_criteria}}",
		Schema: `{"type":"object","properties":{"observed":{"type":"string"},"matches_criteria":{"type":"boolean"},"confidence":{"type":"number"},"details":{"type":"string"}},"required":["observed","matches_criteria","confidence"]}`,
	},
	{
		ID:     PromptVerifyAnalyze,
		System: "A to-do item failed verification. Classify the root cause and recommend what to do next: retry as-is, or adjust the plan.",
		User:   "Action: {{action}}\nCriteria: {{success_criteria}}\nAttempt: {{attempt}} of {{max_attempts}}\nVerification: {{verification}}\nExecution: {{execution_summary}}",
		Schema: `{"type":"object","properties":{"root_cause":{"type":"string"},"next_action":{"type":"string","enum":["retry","adjust"]},"guidance":{"type":"string"}},"required":["root_cause","next_action"]}`,
	},
	{
		ID:     PromptReplan,
		System: "A to-do item cannot be completed as written. Replace it with one to three smaller items that reach the same goal, each with its own success criterion and suggested servers.",
		User:   "Failed item: {{action}}\nCriteria: {{success_criteria}}\nRoot cause: {{root_cause}}\nGuidance: {{guidance}}\n\nAvailable servers:\n{{server_catalog}}",
		Schema: `{"type":"object","properties":{"items":{"type":"array","items":{"type":"object","properties":{"action":{"type":"string"},"success_criteria":{"type":"string"},"suggested_servers":{"type":"array","items":{"type":"string"},"maxItems":2}},"required":["action","success_criteria"]}},"strategy":{"type":"string"}},"required":["items"]}`,
	},
	{
		ID:     PromptFinalSummary,
		System: "Summarize the run for the user in their language ({{user_language}}): what was done, what failed, and one short spoken phrase for text-to-speech.",
		User:   "Request: {{user_message}}\nPlan results:\n{{plan_report}}",
		Schema: `{"type":"object","properties":{"summary":{"type":"string"},"tts_phrase":{"type":"string"}},"required":["summary"]}`,
	},
	{
		ID:     PromptDevAnalyze,
		System: "You analyze an automation agent's own logs and state to find what is wrong with it. Name each distinct problem with evidence, say how severe it is, and whether a deeper look is needed.",
		User:   "System snapshot:\n{{analysis_context}}\n\nRecent conversation:\n{{history}}\nOperator note: {{user_message}}",
		Schema: `{"type":"object","properties":{"summary":{"type":"string"},"problems":{"type":"array","items":{"type":"object","properties":{"signature":{"type":"string"},"component":{"type":"string"},"severity":{"type":"string"},"evidence":{"type":"array","items":{"type":"string"}},"hypothesis":{"type":"string"}},"required":["signature"]}},"needs_deeper_look":{"type":"boolean"},"insights":{"type":"array","items":{"type":"string"}}},"required":["summary","problems"]}`,
	},
	{
		ID:     PromptDevIntervention,
		System: "You turn a self-analysis into a repair plan of concrete MCP tool calls. The final step must restart the affected service and depend on every previous step.",
		User:   "Analysis:\n{{analysis_report}}\n\nAvailable servers and tools:\n{{tool_catalog}}",
		Schema: `{"type":"object","properties":{"steps":{"type":"array","items":{"type":"object","properties":{"server":{"type":"string"},"tool":{"type":"string"},"parameters":{"type":"object"},"rationale":{"type":"string"},"is_restart":{"type":"boolean"}},"required":["server","tool"]}},"reasoning":{"type":"string"}},"required":["steps"]}`,
	},
}
