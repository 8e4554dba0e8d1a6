// Package conditional answers yes/no questions through the LLM
// gateway. The self-analyzer uses it to decide whether a problem
// deserves a deeper pass when the thresholds alone are inconclusive.
package conditional

import (
	"context"
	"fmt"
	"strings"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/llm"
	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/parser"
)

// Decision is one true/false verdict with its reasoning.
type Decision struct {
	Result     bool    `json:"result"`
	Confidence float64 `json:"confidence,omitempty"`
	Reason     string  `json:"reason"`
}

// Decider asks the gateway a single true/false question.
type Decider struct {
	gateway *llm.Gateway
	parser  *parser.Parser
	model   string
	logger  utils.ExtendedLogger
}

// New builds a decider. model may be empty to use the gateway default.
func New(gateway *llm.Gateway, p *parser.Parser, model string, logger utils.ExtendedLogger) *Decider {
	if p == nil {
		p = parser.New(nil)
	}
	return &Decider{gateway: gateway, parser: p, model: model, logger: logger}
}

// prompt renders the decision request. Kept as plain concatenation so
// the context text stays inert.
func prompt(contextText, question string) string {
	return "Context:\n" + contextText + "\n\nQuestion: " + question + "\n\n" +
		`Answer the question with a JSON object only: {"result": true/false, "confidence": 0-100, "reason": "why"}`
}

// Decide returns the verdict for one question over the given context.
// An unparseable answer falls back to a token scan of the raw text; a
// gateway failure is the only error.
func (d *Decider) Decide(ctx context.Context, question, contextText string) (*Decision, error) {
	resp, err := d.gateway.Call(ctx, llm.Request{
		System:     "You are a decision assistant. Analyze the context and answer the question with a strict true/false JSON verdict.",
		User:       prompt(contextText, question),
		Model:      d.model,
		JSONObject: true,
		MaxTokens:  300,
		StageID:    "conditional",
	})
	if err != nil {
		return nil, fmt.Errorf("conditional decision failed: %w", err)
	}

	result := d.parser.Parse(resp.Text)
	if !result.Fallback {
		var decision Decision
		if decodeErr := result.Decode(&decision); decodeErr == nil {
			if d.logger != nil {
				d.logger.Debugf("🤔 Decision %t (confidence=%.0f): %s", decision.Result, decision.Confidence, decision.Reason)
			}
			return &decision, nil
		}
	}

	// Token scan over the raw answer when JSON never materialized.
	lower := strings.ToLower(resp.Text)
	decision := &Decision{
		Result: strings.Contains(lower, "true") && !strings.Contains(lower, "false"),
		Reason: "recovered from unstructured answer",
	}
	if d.logger != nil {
		d.logger.Warnf("⚠️ Conditional answer was unstructured, token scan chose %t", decision.Result)
	}
	return decision, nil
}
