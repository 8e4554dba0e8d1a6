package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

const (
	// DefaultTimeout bounds a single generation attempt.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxAttempts is the total model attempt budget per call,
	// counted across the primary and fallback models together.
	DefaultMaxAttempts = 3

	initialRateLimitBackoff = 10 * time.Second
	maxRateLimitBackoff     = 60 * time.Second

	// perModelRetryLimit caps timeout/transport retries on one model
	// before the gateway moves down the fallback ladder.
	perModelRetryLimit = 2
)

// Request is one generation call. Model overrides the configured
// primary; Images attach as image-url parts for vision calls.
type Request struct {
	System      string
	User        string
	History     []types.ChatMessage
	Images      []string
	Model       string
	Temperature float64
	MaxTokens   int
	JSONObject  bool
	StageID     string
}

// Response is the raw generation result before any parsing.
type Response struct {
	Text         string
	ModelUsed    string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// Gateway is the single entry point for model calls. It owns retry,
// backoff, per-model cooldowns and primary-to-fallback switching, so
// callers see one call with one classified error.
type Gateway struct {
	client    llms.Model
	cfg       Config
	cooldowns *cooldownTable
}

// NewGateway initializes the provider client and wraps it.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if err := ValidateProvider(cfg.Provider); err != nil {
		return nil, err
	}
	if cfg.ModelID == "" {
		cfg.ModelID = GetDefaultModel(cfg.Provider)
	}
	if len(cfg.FallbackModels) == 0 {
		cfg.FallbackModels = GetDefaultFallbackModels(cfg.Provider)
	}
	client, err := InitializeLLM(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return NewGatewayWithClient(client, cfg), nil
}

// NewGatewayWithClient wraps an existing client. Used by tests and by
// callers that manage provider construction themselves.
func NewGatewayWithClient(client llms.Model, cfg Config) *Gateway {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.NopEmitter
	}
	return &Gateway{client: client, cfg: cfg, cooldowns: newCooldownTable()}
}

// PrimaryModel returns the configured primary model id.
func (g *Gateway) PrimaryModel() string {
	return g.cfg.ModelID
}

// Call runs one generation with the full retry policy. Rate limits
// cool the model down and re-route to a free fallback; timeouts and
// transport errors retry once on the same model before switching;
// unavailable models and malformed responses switch immediately.
func (g *Gateway) Call(ctx context.Context, req Request) (*Response, error) {
	candidates := g.candidateModels(req.Model)
	backoff := initialRateLimitBackoff
	startIdx := 0
	perModel := make(map[string]int)
	prevModel := ""

	var lastErr error
	var lastKind types.ErrorKind

	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		model, idx := g.pickAvailable(candidates, startIdx)
		if model == "" {
			wait := g.cooldowns.EarliestRelease(candidates[startIdx:])
			if wait <= 0 {
				break
			}
			g.warnf("⏳ All candidate models cooling down, waiting %s", wait.Round(time.Millisecond))
			if !sleepCtx(ctx, wait) {
				g.emit(ctx, &events.ContextCancelledEvent{Where: "llm_gateway_cooldown_wait"})
				return nil, types.NewStageError("llm_gateway", types.KindCancelled, "cancelled while waiting out cooldown", ctx.Err())
			}
			model, idx = g.pickAvailable(candidates, startIdx)
			if model == "" {
				break
			}
		}
		if prevModel != "" && model != prevModel {
			g.infof("🔄 Switching to fallback model: %s (previous %s failed with %s)", model, prevModel, lastKind)
			g.emit(ctx, &events.FallbackModelUsedEvent{FromModel: prevModel, ToModel: model, Reason: string(lastKind)})
		}
		prevModel = model
		perModel[model]++

		resp, err := g.generateOnce(ctx, model, req, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		lastKind = ClassifyError(err)
		g.emit(ctx, &events.LLMGenerationErrorEvent{Model: model, Attempt: attempt, Kind: string(lastKind), Error: err.Error()})

		switch lastKind {
		case types.KindCancelled:
			g.emit(ctx, &events.ContextCancelledEvent{Where: "llm_gateway_generate"})
			return nil, types.NewStageError("llm_gateway", types.KindCancelled, "generation cancelled", err)
		case types.KindRateLimited:
			delay := backoff
			if hint, ok := RetryAfterHint(err); ok {
				delay = hint
			}
			if delay > maxRateLimitBackoff {
				delay = maxRateLimitBackoff
			}
			g.cooldowns.Set(model, delay)
			g.warnf("🚦 Rate limited on %s, cooling down for %s", model, delay.Round(time.Millisecond))
			g.emit(ctx, &events.ThrottlingDetectedEvent{Model: model, Attempt: attempt, RetryDelay: delay})
			backoff *= 2
			if backoff > maxRateLimitBackoff {
				backoff = maxRateLimitBackoff
			}
		case types.KindTimeout, types.KindTransport:
			g.warnf("🔄 %s on %s (attempt %d), will trigger fallback mechanism", lastKind, model, attempt)
			if perModel[model] >= perModelRetryLimit {
				startIdx = idx + 1
			}
		case types.KindModelUnavailable, types.KindBadResponse:
			g.warnf("⚠️ %s on %s, advancing to next model", lastKind, model)
			startIdx = idx + 1
		default:
			return nil, types.NewStageError("llm_gateway", lastKind, "generation failed", err)
		}
	}

	if lastKind == "" {
		lastKind = types.KindModelUnavailable
	}
	return nil, types.NewStageError("llm_gateway", lastKind,
		fmt.Sprintf("no model produced a response within %d attempts", g.cfg.MaxAttempts), lastErr)
}

// candidateModels builds the try order: explicit request model or the
// configured primary, then the fallback ladder with duplicates removed.
func (g *Gateway) candidateModels(requested string) []string {
	primary := requested
	if primary == "" {
		primary = g.cfg.ModelID
	}
	candidates := []string{primary}
	seen := map[string]bool{primary: true}
	for _, fallback := range g.cfg.FallbackModels {
		if fallback == "" || seen[fallback] {
			continue
		}
		seen[fallback] = true
		candidates = append(candidates, fallback)
	}
	return candidates
}

func (g *Gateway) pickAvailable(candidates []string, startIdx int) (string, int) {
	for i := startIdx; i < len(candidates); i++ {
		if g.cooldowns.Remaining(candidates[i]) <= 0 {
			return candidates[i], i
		}
	}
	return "", -1
}

func (g *Gateway) generateOnce(ctx context.Context, model string, req Request, attempt int) (*Response, error) {
	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	messages := buildMessages(req)
	opts := []llms.CallOption{llms.WithModel(model)}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = g.cfg.Temperature
	}
	if temperature > 0 {
		opts = append(opts, llms.WithTemperature(temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONObject {
		opts = append(opts, llms.WithJSONMode())
	}

	g.debugf("🚀 LLM generation: model=%s attempt=%d messages=%d images=%d json=%v",
		model, attempt, len(messages), len(req.Images), req.JSONObject)
	g.emit(ctx, &events.LLMGenerationStartEvent{Model: model, Provider: string(g.cfg.Provider), JSONMode: req.JSONObject, Attempt: attempt})

	start := time.Now()
	resp, err := g.client.GenerateContent(callCtx, messages, opts...)
	duration := time.Since(start)
	if err != nil {
		g.errorf("❌ LLM generation failed after %.2fs: %v", duration.Seconds(), err)
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("LLM response is nil")
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM response has no choices")
	}
	choice := resp.Choices[0]
	if choice == nil {
		return nil, fmt.Errorf("LLM response first choice is nil")
	}
	if strings.TrimSpace(choice.Content) == "" {
		return nil, fmt.Errorf("LLM response content is empty")
	}

	inputTokens, outputTokens := extractUsage(choice.GenerationInfo, messages, choice.Content)
	g.debugf("✅ LLM generation completed in %.2fs: model=%s chars=%d tokens=%d/%d",
		duration.Seconds(), model, len(choice.Content), inputTokens, outputTokens)
	g.emit(ctx, &events.LLMGenerationEndEvent{Model: model, Duration: duration, InputTokens: inputTokens, OutputTokens: outputTokens})

	return &Response{
		Text:         choice.Content,
		ModelUsed:    model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Duration:     duration,
	}, nil
}

// buildMessages lays out system prompt, prior turns and the current
// human message. Images ride on the final human message as url parts.
func buildMessages(req Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, msg := range req.History {
		role := llms.ChatMessageTypeHuman
		if msg.Role == "assistant" || msg.Role == "ai" {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}
	parts := make([]llms.ContentPart, 0, len(req.Images)+1)
	if req.User != "" {
		parts = append(parts, llms.TextContent{Text: req.User})
	}
	for _, image := range req.Images {
		parts = append(parts, llms.ImageURLContent{URL: image})
	}
	if len(parts) > 0 {
		messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeHuman, Parts: parts})
	}
	return messages
}

// extractUsage reads token counts from provider generation info,
// falling back to a chars/4 estimate when the provider reports none.
func extractUsage(info map[string]interface{}, messages []llms.MessageContent, completion string) (int, int) {
	inputTokens := intFromInfo(info, "input_tokens", "prompt_tokens", "PromptTokens")
	outputTokens := intFromInfo(info, "output_tokens", "completion_tokens", "CompletionTokens")
	if inputTokens == 0 {
		chars := 0
		for _, msg := range messages {
			for _, part := range msg.Parts {
				if text, ok := part.(llms.TextContent); ok {
					chars += len(text.Text)
				}
			}
		}
		inputTokens = chars / 4
	}
	if outputTokens == 0 {
		outputTokens = len(completion) / 4
	}
	return inputTokens, outputTokens
}

func intFromInfo(info map[string]interface{}, keys ...string) int {
	if info == nil {
		return 0
	}
	for _, key := range keys {
		v, ok := info[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case int:
			if t > 0 {
				return t
			}
		case int64:
			if t > 0 {
				return int(t)
			}
		case float64:
			if t > 0 {
				return int(t)
			}
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (g *Gateway) emit(ctx context.Context, data events.EventData) {
	if g.cfg.Emitter != nil {
		g.cfg.Emitter(ctx, data)
	}
}

func (g *Gateway) infof(format string, args ...interface{}) {
	if g.cfg.Logger != nil {
		g.cfg.Logger.Infof(format, args...)
	}
}

func (g *Gateway) warnf(format string, args ...interface{}) {
	if g.cfg.Logger != nil {
		g.cfg.Logger.Warnf(format, args...)
	}
}

func (g *Gateway) errorf(format string, args ...interface{}) {
	if g.cfg.Logger != nil {
		g.cfg.Logger.Errorf(format, args...)
	}
}

func (g *Gateway) debugf(format string, args ...interface{}) {
	if g.cfg.Logger != nil {
		g.cfg.Logger.Debugf(format, args...)
	}
}
