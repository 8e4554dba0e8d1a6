package selfanalysis

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strings"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// restartTools are tried in order when the model forgot the mandatory
// final restart step.
var restartTools = []string{"restart_service", "restart", "run_command", "execute_command"}

// VerifyPassword checks the intervention secret. Both sides go through
// the same normalization (trim, strip one pair of surrounding quotes,
// lowercase) so voice-transcribed attempts with quoting artifacts still
// match. An empty configured secret never authorizes.
func (a *Analyzer) VerifyPassword(attempt string) bool {
	secret := normalizePassword(a.secret)
	if secret == "" {
		return false
	}
	given := normalizePassword(attempt)
	return subtle.ConstantTimeCompare([]byte(given), []byte(secret)) == 1
}

func normalizePassword(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// interventionPayload mirrors the DEV_INTERVENTION answer shape.
type interventionPayload struct {
	Steps []struct {
		Server     string                 `json:"server"`
		Tool       string                 `json:"tool"`
		Parameters map[string]interface{} `json:"parameters"`
		Rationale  string                 `json:"rationale"`
		IsRestart  bool                   `json:"is_restart"`
	} `json:"steps"`
	Reasoning string `json:"reasoning"`
}

// BuildPlan turns the analysis into an ordered repair plan. Steps with
// unknown servers or tools are dropped, restart steps sink to the end,
// and the final restart depends on every surviving step. Returns nil
// when no valid step remains.
func (a *Analyzer) BuildPlan(ctx context.Context, report *types.AnalysisReport) *types.InterventionPlan {
	result, _, stageErr := a.runner.Object(ctx, orchestrator.StageCall{
		StageID:  models.StageDevIntervention,
		PromptID: prompts.PromptDevIntervention,
		Vars: map[string]string{
			"analysis_report": renderReport(report),
			"tool_catalog":    a.catalogText(),
		},
	})
	if stageErr != nil {
		a.warnf("⚠️ Intervention planning failed: %v", stageErr)
		return nil
	}
	if result.Fallback {
		a.warnf("⚠️ Intervention answer was unstructured, refusing to guess repair steps")
		return nil
	}

	decoded, err := orchestrator.DecodeStage[interventionPayload](result)
	if err != nil {
		a.warnf("⚠️ Intervention answer did not decode: %v", err)
		return nil
	}

	var regular, restarts []*types.InterventionStep
	for _, raw := range decoded.Steps {
		if raw.Server == "" || raw.Tool == "" {
			continue
		}
		if a.catalog != nil && (!a.catalog.HasServer(raw.Server) || !a.catalog.HasTool(raw.Server, raw.Tool)) {
			a.warnf("⚠️ Dropping intervention step %s/%s: not in the catalog", raw.Server, raw.Tool)
			continue
		}
		step := &types.InterventionStep{
			Call: &types.ToolCall{
				Server:     raw.Server,
				Tool:       raw.Tool,
				Parameters: raw.Parameters,
			},
			Rationale: raw.Rationale,
			IsRestart: raw.IsRestart,
		}
		if raw.IsRestart {
			restarts = append(restarts, step)
		} else {
			regular = append(regular, step)
		}
	}

	if len(restarts) == 0 {
		if restart := a.defaultRestartStep(); restart != nil {
			restarts = append(restarts, restart)
		} else {
			a.warnf("⚠️ No restart tool available, plan ends without a restart")
		}
	}

	steps := append(regular, restarts...)
	if len(steps) == 0 {
		return nil
	}
	for i, step := range steps {
		step.Index = i
		if step.IsRestart {
			step.DependsOn = indicesBefore(i)
		} else if i > 0 {
			step.DependsOn = []int{i - 1}
		}
	}
	return &types.InterventionPlan{Steps: steps, Reasoning: decoded.Reasoning}
}

// defaultRestartStep finds any catalog tool that can restart the agent
// process.
func (a *Analyzer) defaultRestartStep() *types.InterventionStep {
	if a.catalog == nil {
		return nil
	}
	for _, server := range a.catalog.ServerNames() {
		for _, tool := range restartTools {
			if !a.catalog.HasTool(server, tool) {
				continue
			}
			params := map[string]interface{}{}
			if tool == "run_command" || tool == "execute_command" {
				params["command"] = "systemctl restart atlas"
			}
			return &types.InterventionStep{
				Call:      &types.ToolCall{Server: server, Tool: tool, Parameters: params},
				Rationale: "Restart so the applied changes take effect",
				IsRestart: true,
			}
		}
	}
	return nil
}

func indicesBefore(n int) []int {
	if n == 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func (a *Analyzer) catalogText() string {
	if a.catalog == nil {
		return "(no servers)"
	}
	return a.catalog.CatalogText()
}

func renderReport(report *types.AnalysisReport) string {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return report.Summary
	}
	return string(raw)
}
