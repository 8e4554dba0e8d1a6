package utils

import (
	"encoding/json"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultLargeToolOutputThreshold is the token count above which a tool
// output is considered too large to feed into a follow-up prompt verbatim.
const DefaultLargeToolOutputThreshold = 20000

// fallbackEncoding is used when the model id is unknown to tiktoken.
const fallbackEncoding = "cl100k_base"

// ToolOutputHandler measures tool outputs in model tokens and produces
// bounded excerpts for verification and analysis prompts.
type ToolOutputHandler struct {
	Threshold int
	Enabled   bool

	logger ExtendedLogger
}

// NewToolOutputHandler creates a handler with the default threshold.
func NewToolOutputHandler(logger ExtendedLogger) *ToolOutputHandler {
	return &ToolOutputHandler{
		Threshold: DefaultLargeToolOutputThreshold,
		Enabled:   true,
		logger:    logger,
	}
}

// NewToolOutputHandlerWithConfig creates a handler with an explicit threshold.
func NewToolOutputHandlerWithConfig(threshold int, enabled bool, logger ExtendedLogger) *ToolOutputHandler {
	if threshold <= 0 {
		threshold = DefaultLargeToolOutputThreshold
	}
	return &ToolOutputHandler{
		Threshold: threshold,
		Enabled:   enabled,
		logger:    logger,
	}
}

// CountTokensForModel counts tokens using the model's encoding, falling
// back to cl100k_base and finally to a chars/4 estimate.
func (h *ToolOutputHandler) CountTokensForModel(text, modelID string) int {
	enc, err := tiktoken.EncodingForModel(modelID)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		// Offline or unknown encoding: estimate
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// IsLargeToolOutput reports whether the output exceeds the threshold for
// the given model.
func (h *ToolOutputHandler) IsLargeToolOutput(text, modelID string) bool {
	if !h.Enabled {
		return false
	}
	return h.CountTokensForModel(text, modelID) > h.Threshold
}

// TruncateForPrompt returns the output bounded to roughly maxTokens by
// keeping the head and tail, with an elision marker in between. Tool
// results often carry the signal at both ends (status first, totals last).
func (h *ToolOutputHandler) TruncateForPrompt(text, modelID string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = h.Threshold
	}
	if h.CountTokensForModel(text, modelID) <= maxTokens {
		return text
	}

	// Token budgets translate to character budgets through the same
	// 4 chars/token approximation used for the offline estimate.
	headChars := maxTokens * 2
	tailChars := maxTokens
	if headChars+tailChars >= len(text) {
		return text
	}
	head := text[:headChars]
	tail := text[len(text)-tailChars:]
	omitted := len(text) - headChars - tailChars
	if h.logger != nil {
		h.logger.Warnf("⚠️ Tool output truncated for prompt: %d chars omitted", omitted)
	}
	return head + "\n... [output truncated] ...\n" + tail
}

// mcpTextEnvelope matches the MCP text content wrapper
// {"type":"text","text":"..."}.
type mcpTextEnvelope struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ExtractActualContent unwraps MCP text envelopes and legacy
// "TOOL RESULT for <name>:" prefixes, returning the inner payload.
func ExtractActualContent(raw string) string {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		var env mcpTextEnvelope
		if err := json.Unmarshal([]byte(trimmed), &env); err == nil && env.Type == "text" && env.Text != "" {
			return env.Text
		}
	}

	if strings.HasPrefix(trimmed, "TOOL RESULT for ") {
		if idx := strings.Index(trimmed, ": "); idx != -1 {
			return trimmed[idx+2:]
		}
	}

	return trimmed
}
