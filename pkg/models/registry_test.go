package models

import (
	"context"
	"fmt"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() *Settings {
	return &Settings{
		DefaultModel: StageModel{Model: "base-model", Temperature: 0.2, MaxTokens: 4000, Fallback: "base-fallback"},
		Stages: map[string]StageModel{
			StageModeSelect:   {Model: "fast-model", Temperature: 0.1},
			StageVerifyVisual: {MaxTokens: 800},
		},
		Vision: VisionModels{Fast: "vision-fast", Primary: "vision-primary", Top: "vision-top"},
	}
}

func TestStageModelFallsBackToDefault(t *testing.T) {
	registry := NewRegistry(testSettings(), nil)

	unconfigured := registry.StageModel(StageTodoPlan)
	assert.Equal(t, "base-model", unconfigured.Model)
	assert.Equal(t, 4000, unconfigured.MaxTokens)
}

func TestStageModelMergesOverride(t *testing.T) {
	registry := NewRegistry(testSettings(), nil)

	mode := registry.StageModel(StageModeSelect)
	assert.Equal(t, "fast-model", mode.Model)
	assert.InDelta(t, 0.1, mode.Temperature, 0.001)
	assert.Equal(t, 4000, mode.MaxTokens, "missing fields inherit the default")
	assert.Equal(t, "base-fallback", mode.Fallback)

	visual := registry.StageModel(StageVerifyVisual)
	assert.Equal(t, "base-model", visual.Model)
	assert.Equal(t, 800, visual.MaxTokens)
}

func TestFallbackChainDeduplicates(t *testing.T) {
	settings := testSettings()
	settings.Stages[StageTodoPlan] = StageModel{Model: "base-model", Fallback: "base-fallback"}
	registry := NewRegistry(settings, nil)

	chain := registry.FallbackChain(StageTodoPlan)
	assert.Equal(t, []string{"base-model", "base-fallback"}, chain)
}

func TestKnownModelsCoversVisionLadder(t *testing.T) {
	registry := NewRegistry(testSettings(), nil)
	known := registry.KnownModels()

	assert.Contains(t, known, "vision-fast")
	assert.Contains(t, known, "vision-primary")
	assert.Contains(t, known, "vision-top")
	assert.Contains(t, known, "base-model")
	assert.Contains(t, known, "fast-model")
}

func TestProbeAvailabilityRecordsFailures(t *testing.T) {
	registry := NewRegistry(testSettings(), nil)

	results := registry.ProbeAvailability(context.Background(), func(ctx context.Context, model string) error {
		if model == "vision-top" {
			return fmt.Errorf("model not found")
		}
		return nil
	})

	assert.False(t, results["vision-top"])
	assert.True(t, results["base-model"])
	assert.False(t, registry.IsAvailable("vision-top"))
	assert.True(t, registry.IsAvailable("base-model"))
	assert.True(t, registry.IsAvailable("never-probed"))
}

func TestLoadSettingsDefaults(t *testing.T) {
	settings, err := LoadSettings(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 60000, settings.APITimeoutMS)
	assert.Equal(t, 3, settings.Retry.ItemExecution.MaxAttempts)
	assert.Equal(t, 10, settings.Capture.MaxStored)
	assert.Equal(t, "uk", settings.UserLanguage)
	assert.Equal(t, "captures", settings.Capture.Directory)
	assert.InDelta(t, 0.1, settings.Thresholds.ErrorRate, 0.001)
}

func TestLoadSettingsOverride(t *testing.T) {
	v := viper.New()
	v.Set("retry.itemExecution.maxAttempts", 5)
	v.Set("user_language", "en")
	v.Set("api_endpoint.primary", "http://localhost:3010/v1")
	v.Set("api_endpoint.useFallback", true)

	settings, err := LoadSettings(v)
	require.NoError(t, err)
	assert.Equal(t, 5, settings.Retry.ItemExecution.MaxAttempts)
	assert.Equal(t, "en", settings.UserLanguage)
	assert.Equal(t, "http://localhost:3010/v1", settings.APIEndpoint.Primary)
	assert.True(t, settings.APIEndpoint.UseFallback)
}
