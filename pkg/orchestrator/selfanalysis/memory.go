package selfanalysis

import (
	"context"
	"fmt"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

// persistAnalysis records the findings on the memory MCP server so the
// next analysis can see what was already diagnosed. Failures only log;
// memory is an aid, not a dependency.
func (a *Analyzer) persistAnalysis(ctx context.Context, report *types.AnalysisReport) {
	if report == nil {
		return
	}
	observations := []string{report.Summary}
	for _, problem := range report.Problems {
		observations = append(observations, fmt.Sprintf("%s [%s]: %s", problem.Signature, problem.Severity, problem.Hypothesis))
	}
	a.writeEntity(ctx, "dev_analysis", observations)
}

// persistInterventionContext records the queued plan before it runs, so
// a post-restart analysis can tell what was attempted.
func (a *Analyzer) persistInterventionContext(ctx context.Context, plan *types.InterventionPlan) {
	if plan == nil {
		return
	}
	observations := []string{plan.Reasoning}
	for _, step := range plan.Steps {
		if step.Call == nil {
			continue
		}
		observations = append(observations, fmt.Sprintf("step %d: %s/%s (%s)", step.Index, step.Call.Server, step.Call.Tool, step.Rationale))
	}
	a.writeEntity(ctx, "dev_intervention_context", observations)
}

func (a *Analyzer) writeEntity(ctx context.Context, entityType string, observations []string) {
	server := a.settings.MemoryServer
	if server == "" || a.catalog == nil || !a.catalog.HasServer(server) {
		a.debugf("Memory server %q unavailable, skipping %s write", server, entityType)
		return
	}

	name := fmt.Sprintf("%s_%s", entityType, time.Now().Format("20060102T150405"))
	entity := map[string]interface{}{
		"name":         name,
		"entityType":   entityType,
		"observations": observations,
	}
	args := map[string]interface{}{"entities": []interface{}{entity}}
	_, isErr, err := a.catalog.CallTool(ctx, server, "create_entities", args)
	if err != nil || isErr {
		a.warnf("⚠️ Memory write for %s failed: isErr=%t err=%v", entityType, isErr, err)
		return
	}
	a.runner.Emitter()(ctx, &events.MemoryEntityWrittenEvent{EntityName: name, EntityType: entityType})
	a.debugf("Memory entity %s written", name)
}
