package types

// Mode is the top-level routing decision for an incoming user message.
type Mode string

const (
	ModeChat Mode = "chat"
	ModeTask Mode = "task"
	ModeDev  Mode = "dev"
)

// ValidModes lists every mode the selector may return.
var ValidModes = []Mode{ModeChat, ModeTask, ModeDev}

// NormalizeMode folds common synonyms onto the canonical mode names.
// Unknown values return empty so the caller can fall back to keyword
// heuristics instead of trusting a malformed answer.
func NormalizeMode(raw string) Mode {
	switch raw {
	case "chat", "conversation", "talk", "dialog", "dialogue", "greeting", "question", "casual":
		return ModeChat
	case "task", "action", "command", "execute", "automation", "agent":
		return ModeTask
	case "dev", "development", "debug", "self-analysis", "self_analysis", "self_repair", "intervention":
		return ModeDev
	}
	return ""
}

// ModeDecision is the mode selector output.
type ModeDecision struct {
	Mode       Mode    `json:"mode"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// EnrichedRequest expands a raw user message with the implicit
// requirements and prerequisites the planner needs.
type EnrichedRequest struct {
	Original                string                 `json:"original_request"`
	Enriched                string                 `json:"enriched_understanding"`
	ImplicitRequirements    []string               `json:"implicit_requirements,omitempty"`
	Prerequisites           []string               `json:"prerequisites,omitempty"`
	TechnicalSpecifications map[string]interface{} `json:"technical_specifications,omitempty"`
	EstimatedComplexity     int                    `json:"estimated_complexity"`
	Fallback                bool                   `json:"fallback,omitempty"`
}

// TTSSettings carries caller speech preferences through the pipeline
// untouched so responses can be voiced on the client.
type TTSSettings struct {
	Enabled  bool    `json:"enabled,omitempty"`
	Voice    string  `json:"voice,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	Language string  `json:"language,omitempty"`
}

// FinalSummary is the user-facing wrap-up of a task run: a narrated
// summary plus one short phrase suitable for text-to-speech.
type FinalSummary struct {
	Summary   string `json:"summary"`
	TTSPhrase string `json:"tts_phrase,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
}
