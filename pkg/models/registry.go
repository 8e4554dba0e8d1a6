package models

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
)

// Stage ids recognized by the per-stage model lookup.
const (
	StageModeSelect      = "mode_select"
	StageChatReply       = "chat_reply"
	StageContextEnrich   = "context_enrich"
	StageTodoPlan        = "todo_plan"
	StageServerSelect    = "server_select"
	StageToolPlan        = "tool_plan"
	StageVerifyRoute     = "verify_route"
	StageVerifyVisual    = "verify_visual"
	StageVerifyAnalyze   = "verify_analyze"
	StageReplan          = "replan"
	StageFinalSummary    = "final_summary"
	StageDevAnalyze      = "dev_analyze"
	StageDevIntervention = "dev_intervention"
)

// ProbeFunc checks that one model answers. Implementations issue a
// minimal generation through the gateway.
type ProbeFunc func(ctx context.Context, model string) error

// Registry resolves per-stage model configuration and tracks which
// models answered the last availability probe. Safe for concurrent
// use across sessions.
type Registry struct {
	mu          sync.RWMutex
	settings    *Settings
	logger      utils.ExtendedLogger
	unavailable map[string]bool
}

// NewRegistry wraps settings in a registry. The logger may be nil.
func NewRegistry(settings *Settings, logger utils.ExtendedLogger) *Registry {
	if settings == nil {
		settings = DefaultSettings()
	}
	return &Registry{settings: settings, logger: logger, unavailable: make(map[string]bool)}
}

// Settings exposes the underlying configuration.
func (r *Registry) Settings() *Settings {
	return r.settings
}

// StageModel returns the descriptor for a stage, falling back to the
// default model where the stage has no override.
func (r *Registry) StageModel(stageID string) StageModel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	base := r.settings.DefaultModel
	override, ok := r.settings.Stages[stageID]
	if !ok {
		return base
	}
	if override.Model == "" {
		override.Model = base.Model
	}
	if override.Temperature == 0 {
		override.Temperature = base.Temperature
	}
	if override.MaxTokens == 0 {
		override.MaxTokens = base.MaxTokens
	}
	if override.Fallback == "" {
		override.Fallback = base.Fallback
	}
	return override
}

// FallbackChain returns the try order for a stage: its model, its
// configured fallback, then the default fallback.
func (r *Registry) FallbackChain(stageID string) []string {
	stage := r.StageModel(stageID)
	chain := make([]string, 0, 3)
	seen := make(map[string]bool)
	for _, model := range []string{stage.Model, stage.Fallback, r.settings.DefaultModel.Fallback} {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		chain = append(chain, model)
	}
	return chain
}

// Vision returns the visual verification model ladder.
func (r *Registry) Vision() VisionModels {
	return r.settings.Vision
}

// KnownModels lists every distinct model the configuration mentions.
func (r *Registry) KnownModels() []string {
	seen := make(map[string]bool)
	add := func(model string) {
		if model != "" {
			seen[model] = true
		}
	}
	add(r.settings.DefaultModel.Model)
	add(r.settings.DefaultModel.Fallback)
	for _, stage := range r.settings.Stages {
		add(stage.Model)
		add(stage.Fallback)
	}
	add(r.settings.Vision.Fast)
	add(r.settings.Vision.Primary)
	add(r.settings.Vision.Top)

	models := make([]string, 0, len(seen))
	for model := range seen {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// ProbeAvailability checks every known model with probe and records
// which ones failed. Probe failures are advisory; lookups still return
// the configured model, and IsAvailable reports the last known state.
func (r *Registry) ProbeAvailability(ctx context.Context, probe ProbeFunc) map[string]bool {
	results := make(map[string]bool)
	for _, model := range r.KnownModels() {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := probe(probeCtx, model)
		cancel()
		available := err == nil
		results[model] = available
		if available {
			r.logf("✅ Model available: %s", model)
		} else {
			r.warnf("⚠️ Model unavailable: %s (%v)", model, err)
		}
	}
	r.mu.Lock()
	r.unavailable = make(map[string]bool)
	for model, available := range results {
		if !available {
			r.unavailable[model] = true
		}
	}
	r.mu.Unlock()
	return results
}

// IsAvailable reports the last probe verdict; unprobed models count
// as available.
func (r *Registry) IsAvailable(model string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.unavailable[model]
}

func (r *Registry) logf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Infof(format, args...)
	}
}

func (r *Registry) warnf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warnf(format, args...)
	}
}
