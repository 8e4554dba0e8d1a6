package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/observability"
	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderOpenRouter Provider = "openrouter"
	ProviderAnthropic  Provider = "anthropic"
	ProviderBedrock    Provider = "bedrock"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Config selects the provider, models and retry behavior for a gateway.
type Config struct {
	Provider       Provider
	ModelID        string
	APIKey         string
	BaseURL        string
	Temperature    float64
	FallbackModels []string
	MaxAttempts    int
	Timeout        time.Duration
	Logger         utils.ExtendedLogger
	Tracer         observability.Tracer
	Emitter        events.Emitter
	Context        context.Context
}

func (c *Config) context() context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}

// InitializeLLM creates the langchaingo client for the configured
// provider. The model passed per call overrides the client default, so
// one client serves primary and fallback models alike.
func InitializeLLM(config Config) (llms.Model, error) {
	if config.ModelID == "" {
		config.ModelID = GetDefaultModel(config.Provider)
	}

	switch config.Provider {
	case ProviderBedrock:
		return initializeBedrockWithFallback(config)
	case ProviderOpenAI:
		return initializeOpenAIWithFallback(config)
	case ProviderOpenRouter:
		return initializeOpenRouterWithFallback(config)
	case ProviderAnthropic:
		return initializeAnthropicWithFallback(config)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

func initializeBedrockWithFallback(config Config) (llms.Model, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(config.context())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)

	model, err := bedrock.New(bedrock.WithClient(client), bedrock.WithModel(config.ModelID))
	if err == nil {
		return model, nil
	}

	if config.Logger != nil {
		config.Logger.Warnf("⚠️ Primary Bedrock model failed, trying fallback models: %v", err)
	}
	for _, fallbackModel := range config.FallbackModels {
		model, fbErr := bedrock.New(bedrock.WithClient(client), bedrock.WithModel(fallbackModel))
		if fbErr == nil {
			if config.Logger != nil {
				config.Logger.Infof("✅ Successfully initialized fallback Bedrock model: %s", fallbackModel)
			}
			return model, nil
		}
	}
	return nil, fmt.Errorf("failed to initialize Bedrock model %s: %w", config.ModelID, err)
}

func initializeOpenAIWithFallback(config Config) (llms.Model, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(config.ModelID)}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	model, err := openai.New(opts...)
	if err == nil {
		return model, nil
	}

	if config.Logger != nil {
		config.Logger.Warnf("⚠️ Primary OpenAI model failed, trying fallback models: %v", err)
	}
	for _, fallbackModel := range config.FallbackModels {
		fbOpts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(fallbackModel)}
		if config.BaseURL != "" {
			fbOpts = append(fbOpts, openai.WithBaseURL(config.BaseURL))
		}
		model, fbErr := openai.New(fbOpts...)
		if fbErr == nil {
			if config.Logger != nil {
				config.Logger.Infof("✅ Successfully initialized fallback OpenAI model: %s", fallbackModel)
			}
			return model, nil
		}
	}
	return nil, fmt.Errorf("failed to initialize OpenAI model %s: %w", config.ModelID, err)
}

func initializeOpenRouterWithFallback(config Config) (llms.Model, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}

	model, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(config.ModelID),
		openai.WithBaseURL(baseURL),
	)
	if err == nil {
		return model, nil
	}

	if config.Logger != nil {
		config.Logger.Warnf("⚠️ Primary OpenRouter model failed, trying fallback models: %v", err)
	}
	for _, fallbackModel := range config.FallbackModels {
		model, fbErr := openai.New(
			openai.WithToken(apiKey),
			openai.WithModel(fallbackModel),
			openai.WithBaseURL(baseURL),
		)
		if fbErr == nil {
			if config.Logger != nil {
				config.Logger.Infof("✅ Successfully initialized fallback OpenRouter model: %s", fallbackModel)
			}
			return model, nil
		}
	}
	return nil, fmt.Errorf("failed to initialize OpenRouter model %s: %w", config.ModelID, err)
}

func initializeAnthropicWithFallback(config Config) (llms.Model, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	opts := []anthropic.Option{anthropic.WithToken(apiKey), anthropic.WithModel(config.ModelID)}
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
	}

	model, err := anthropic.New(opts...)
	if err == nil {
		return model, nil
	}

	if config.Logger != nil {
		config.Logger.Warnf("⚠️ Primary Anthropic model failed, trying fallback models: %v", err)
	}
	for _, fallbackModel := range config.FallbackModels {
		fbOpts := []anthropic.Option{anthropic.WithToken(apiKey), anthropic.WithModel(fallbackModel)}
		if config.BaseURL != "" {
			fbOpts = append(fbOpts, anthropic.WithBaseURL(config.BaseURL))
		}
		model, fbErr := anthropic.New(fbOpts...)
		if fbErr == nil {
			if config.Logger != nil {
				config.Logger.Infof("✅ Successfully initialized fallback Anthropic model: %s", fallbackModel)
			}
			return model, nil
		}
	}
	return nil, fmt.Errorf("failed to initialize Anthropic model %s: %w", config.ModelID, err)
}

// GetDefaultModel returns the default primary model for a provider.
func GetDefaultModel(provider Provider) string {
	switch provider {
	case ProviderBedrock:
		return "us.anthropic.claude-3-5-sonnet-20241022-v2:0"
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderOpenRouter:
		return "anthropic/claude-3.5-sonnet"
	case ProviderAnthropic:
		return "claude-3-5-sonnet-20241022"
	default:
		return ""
	}
}

// GetDefaultFallbackModels returns the default fallback ladder for a
// provider, cheapest-capable first.
func GetDefaultFallbackModels(provider Provider) []string {
	switch provider {
	case ProviderBedrock:
		return []string{"us.anthropic.claude-3-5-haiku-20241022-v1:0"}
	case ProviderOpenAI:
		return []string{"gpt-4o-mini"}
	case ProviderOpenRouter:
		return []string{"openai/gpt-4o-mini", "meta-llama/llama-3.1-70b-instruct"}
	case ProviderAnthropic:
		return []string{"claude-3-5-haiku-20241022"}
	default:
		return nil
	}
}

// ValidateProvider checks that the provider name is supported.
func ValidateProvider(provider Provider) error {
	switch provider {
	case ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic, ProviderBedrock:
		return nil
	default:
		return fmt.Errorf("unsupported provider: %s (supported: openai, openrouter, anthropic, bedrock)", provider)
	}
}

// ValidateAPIKey checks that credentials for the provider are present.
// Bedrock relies on the ambient AWS credential chain instead of a key.
func ValidateAPIKey(provider Provider, apiKey string) error {
	if apiKey != "" {
		return nil
	}
	switch provider {
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("OPENAI_API_KEY is not set")
		}
	case ProviderOpenRouter:
		if os.Getenv("OPENROUTER_API_KEY") == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is not set")
		}
	case ProviderAnthropic:
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
	case ProviderBedrock:
		return nil
	}
	return nil
}
