package models

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// StageModel is the per-stage model descriptor.
type StageModel struct {
	Model       string  `mapstructure:"model" json:"model"`
	Temperature float64 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`
	Fallback    string  `mapstructure:"fallback" json:"fallback,omitempty"`
}

// VisionModels is the escalation ladder for visual verification.
type VisionModels struct {
	Fast    string `mapstructure:"fast" json:"fast"`
	Primary string `mapstructure:"primary" json:"primary"`
	Top     string `mapstructure:"top" json:"top"`
}

// APIEndpoint selects the primary and fallback LLM endpoints.
type APIEndpoint struct {
	Primary     string `mapstructure:"primary" json:"primary"`
	Fallback    string `mapstructure:"fallback" json:"fallback"`
	UseFallback bool   `mapstructure:"useFallback" json:"use_fallback"`
}

// RetrySettings groups the retry budgets.
type RetrySettings struct {
	ItemExecution ItemRetry `mapstructure:"itemExecution" json:"item_execution"`
}

// ItemRetry bounds attempts per todo item.
type ItemRetry struct {
	MaxAttempts int `mapstructure:"maxAttempts" json:"max_attempts"`
}

// Thresholds drive self-analysis deepening decisions.
type Thresholds struct {
	CodeComplexity  float64 `mapstructure:"codeComplexity" json:"code_complexity"`
	ErrorRate       float64 `mapstructure:"errorRate" json:"error_rate"`
	ResponseTime    float64 `mapstructure:"responseTime" json:"response_time"`
	Coverage        float64 `mapstructure:"coverage" json:"coverage"`
	MemoryStability float64 `mapstructure:"memoryStability" json:"memory_stability"`
}

// CaptureSettings configure the screenshot service. Command is the
// external capture invocation with {{output}} and {{mode}} slots.
type CaptureSettings struct {
	IntervalMS int    `mapstructure:"interval_ms" json:"interval_ms"`
	Directory  string `mapstructure:"directory" json:"directory"`
	MaxStored  int    `mapstructure:"maxStored" json:"max_stored"`
	Command    string `mapstructure:"command" json:"command,omitempty"`
}

// InterventionSettings hold the dev-mode authorization secret.
type InterventionSettings struct {
	Password string `mapstructure:"password" json:"-"`
}

// AnalysisSettings configure dev-mode self-analysis: where the log
// tails come from, which MCP servers serve them, and how deep the
// recursive pass may go.
type AnalysisSettings struct {
	LogDir           string `mapstructure:"log_dir" json:"log_dir"`
	TailLines        int    `mapstructure:"tailLines" json:"tail_lines"`
	MaxDepth         int    `mapstructure:"maxDepth" json:"max_depth"`
	FilesystemServer string `mapstructure:"filesystemServer" json:"filesystem_server"`
	MemoryServer     string `mapstructure:"memoryServer" json:"memory_server"`
}

// Settings is the full recognized configuration surface.
type Settings struct {
	Provider     string                `mapstructure:"provider" json:"provider"`
	APIEndpoint  APIEndpoint           `mapstructure:"api_endpoint" json:"api_endpoint"`
	APITimeoutMS int                   `mapstructure:"api_timeout_ms" json:"api_timeout_ms"`
	DefaultModel StageModel            `mapstructure:"default_model" json:"default_model"`
	Stages       map[string]StageModel `mapstructure:"stages" json:"stages,omitempty"`
	Vision       VisionModels          `mapstructure:"vision" json:"vision"`
	Retry        RetrySettings         `mapstructure:"retry" json:"retry"`
	Thresholds   Thresholds            `mapstructure:"thresholds" json:"thresholds"`
	Capture      CaptureSettings       `mapstructure:"capture" json:"capture"`
	Intervention InterventionSettings  `mapstructure:"intervention" json:"intervention"`
	Analysis     AnalysisSettings      `mapstructure:"analysis" json:"analysis"`
	UserLanguage string                `mapstructure:"user_language" json:"user_language"`
}

// APITimeout returns the configured LLM deadline as a duration.
func (s *Settings) APITimeout() time.Duration {
	if s.APITimeoutMS <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.APITimeoutMS) * time.Millisecond
}

// SetDefaults registers every recognized option with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "openai")
	v.SetDefault("api_endpoint.primary", "")
	v.SetDefault("api_endpoint.fallback", "")
	v.SetDefault("api_endpoint.useFallback", false)
	v.SetDefault("api_timeout_ms", 60000)
	v.SetDefault("default_model.model", "")
	v.SetDefault("default_model.temperature", 0.2)
	v.SetDefault("default_model.max_tokens", 4000)
	v.SetDefault("vision.fast", "gpt-4o-mini")
	v.SetDefault("vision.primary", "gpt-4o")
	v.SetDefault("vision.top", "gpt-4o")
	v.SetDefault("retry.itemExecution.maxAttempts", 3)
	v.SetDefault("thresholds.codeComplexity", 10.0)
	v.SetDefault("thresholds.errorRate", 0.1)
	v.SetDefault("thresholds.responseTime", 2000.0)
	v.SetDefault("thresholds.coverage", 0.6)
	v.SetDefault("thresholds.memoryStability", 0.8)
	v.SetDefault("capture.interval_ms", 1000)
	v.SetDefault("capture.directory", "captures")
	v.SetDefault("capture.maxStored", 10)
	v.SetDefault("capture.command", "screencapture -x {{output}}")
	v.SetDefault("intervention.password", "")
	v.SetDefault("analysis.log_dir", "logs")
	v.SetDefault("analysis.tailLines", 50)
	v.SetDefault("analysis.maxDepth", 5)
	v.SetDefault("analysis.filesystemServer", "filesystem")
	v.SetDefault("analysis.memoryServer", "memory")
	v.SetDefault("user_language", "uk")
}

// LoadSettings applies defaults and unmarshals the viper tree.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)
	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &settings, nil
}

// DefaultSettings returns the settings with no overrides applied.
func DefaultSettings() *Settings {
	settings, err := LoadSettings(viper.New())
	if err != nil {
		// Defaults always unmarshal; reaching here means a programming error.
		panic(err)
	}
	return settings
}
