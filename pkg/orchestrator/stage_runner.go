package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/llm"
	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/parser"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
)

// StageRunner owns what every pipeline stage shares: the LLM gateway,
// the tolerant parser, the prompt store, per-stage model resolution
// and the event stream. Individual stages add their own decode,
// validation and fallback semantics on top.
type StageRunner struct {
	gateway *llm.Gateway
	parser  *parser.Parser
	prompts *prompts.Store
	models  *models.Registry
	logger  utils.ExtendedLogger
	emitter events.Emitter
}

// NewStageRunner wires the shared stage dependencies. The emitter may
// be nil; it defaults to a no-op.
func NewStageRunner(gateway *llm.Gateway, p *parser.Parser, store *prompts.Store, registry *models.Registry, logger utils.ExtendedLogger, emitter events.Emitter) *StageRunner {
	if emitter == nil {
		emitter = events.NopEmitter
	}
	if store == nil {
		store = prompts.NewDefaultStore()
	}
	if registry == nil {
		registry = models.NewRegistry(nil, logger)
	}
	return &StageRunner{
		gateway: gateway,
		parser:  p,
		prompts: store,
		models:  registry,
		logger:  logger,
		emitter: emitter,
	}
}

// Models exposes the stage model registry for callers that resolve
// model ladders themselves, such as visual verification.
func (r *StageRunner) Models() *models.Registry {
	return r.models
}

// Parser exposes the tolerant parser for callers that parse responses
// outside the stage flow.
func (r *StageRunner) Parser() *parser.Parser {
	return r.parser
}

// Logger exposes the shared logger.
func (r *StageRunner) Logger() utils.ExtendedLogger {
	return r.logger
}

// Emitter exposes the shared event emitter.
func (r *StageRunner) Emitter() events.Emitter {
	return r.emitter
}

// StageCall describes one stage invocation. PromptID is looked up in
// the store; FallbackPromptID covers per-server prompts that fall back
// to a generic one. Model overrides the stage's configured model, used
// by the vision escalation ladder.
type StageCall struct {
	StageID          string
	PromptID         string
	FallbackPromptID string
	Vars             map[string]string
	History          []types.ChatMessage
	Images           []string
	Model            string
	ItemID           string
}

// parseLevelOrdinal maps parse levels onto the numeric scale events
// carry: 1 strict, 2 repaired, 3 extracted, 4 keyword salvage.
var parseLevelOrdinal = map[parser.Level]int{
	parser.LevelStrict:    1,
	parser.LevelRepaired:  2,
	parser.LevelExtracted: 3,
	parser.LevelKeyword:   4,
}

// Object runs a JSON-object stage: resolve prompt, render, call the
// gateway, parse tolerantly. The parser never fails, so the error is
// non-nil only when the prompt is missing or the gateway gave up; a
// keyword-salvaged result comes back with Fallback set and the stage
// decides what that means.
func (r *StageRunner) Object(ctx context.Context, call StageCall) (*parser.Result, types.StageMeta, *types.StageError) {
	started := time.Now()
	meta := types.StageMeta{StageID: call.StageID, PromptID: call.PromptID}

	spec, stageErr := r.resolvePrompt(call)
	if stageErr != nil {
		r.failStage(ctx, call, meta, started, stageErr)
		return nil, meta, stageErr
	}
	meta.PromptID = spec.ID

	req := r.buildRequest(call, spec, true)
	r.startStage(ctx, call, spec.ID, req.Model)
	r.emit(ctx, &events.StructuredOutputEvent{StageID: call.StageID})

	resp, err := r.gateway.Call(ctx, req)
	if err != nil {
		stageErr = asStageError(call.StageID, err)
		meta.Duration = time.Since(started)
		r.emit(ctx, &events.StructuredOutputEvent{Phase: events.StructuredOutputError, StageID: call.StageID, Error: stageErr.Error()})
		r.failStage(ctx, call, meta, started, stageErr)
		return nil, meta, stageErr
	}
	meta.ModelUsed = resp.ModelUsed

	result := r.parser.Parse(resp.Text)
	meta.Duration = time.Since(started)
	meta.ParseLevel = string(result.Level)
	meta.FallbackUsed = result.Fallback

	r.emit(ctx, &events.StructuredOutputEvent{
		Phase:      events.StructuredOutputEnd,
		StageID:    call.StageID,
		ParseLevel: parseLevelOrdinal[result.Level],
	})
	r.endStage(ctx, call, meta, result)
	return result, meta, nil
}

// Text runs a free-text stage such as the chat reply or the final
// summary. No parsing is applied.
func (r *StageRunner) Text(ctx context.Context, call StageCall) (string, types.StageMeta, *types.StageError) {
	started := time.Now()
	meta := types.StageMeta{StageID: call.StageID, PromptID: call.PromptID}

	spec, stageErr := r.resolvePrompt(call)
	if stageErr != nil {
		r.failStage(ctx, call, meta, started, stageErr)
		return "", meta, stageErr
	}
	meta.PromptID = spec.ID

	req := r.buildRequest(call, spec, false)
	r.startStage(ctx, call, spec.ID, req.Model)

	resp, err := r.gateway.Call(ctx, req)
	if err != nil {
		stageErr = asStageError(call.StageID, err)
		meta.Duration = time.Since(started)
		r.failStage(ctx, call, meta, started, stageErr)
		return "", meta, stageErr
	}

	meta.ModelUsed = resp.ModelUsed
	meta.Duration = time.Since(started)
	r.endStage(ctx, call, meta, nil)
	return resp.Text, meta, nil
}

// resolvePrompt looks the call's prompt up, honouring the fallback id
// for per-server prompt families.
func (r *StageRunner) resolvePrompt(call StageCall) (*prompts.Spec, *types.StageError) {
	spec, ok := r.prompts.LookupWithFallback(call.PromptID, call.FallbackPromptID)
	if !ok {
		return nil, types.NewStageError(call.StageID, types.KindBadResponse,
			fmt.Sprintf("prompt %q not registered", call.PromptID), nil)
	}
	return spec, nil
}

// buildRequest renders the prompt templates and resolves the model for
// this stage. The schema hint, when present, is appended to the user
// message so every provider sees the expected shape.
func (r *StageRunner) buildRequest(call StageCall, spec *prompts.Spec, jsonObject bool) llm.Request {
	stageModel := r.models.StageModel(call.StageID)
	model := call.Model
	if model == "" {
		model = stageModel.Model
	}

	user := prompts.Render(spec.User, call.Vars)
	if jsonObject && spec.Schema != "" {
		user += "\n\nRespond with a single JSON object matching this schema:\n" + spec.Schema
	}

	return llm.Request{
		System:      prompts.Render(spec.System, call.Vars),
		User:        user,
		History:     call.History,
		Images:      call.Images,
		Model:       model,
		Temperature: stageModel.Temperature,
		MaxTokens:   stageModel.MaxTokens,
		JSONObject:  jsonObject,
		StageID:     call.StageID,
	}
}

func (r *StageRunner) startStage(ctx context.Context, call StageCall, promptID, model string) {
	r.debugf("🎯 Stage %s started (prompt=%s, model=%s)", call.StageID, promptID, model)
	r.emit(ctx, &events.StageStartEvent{
		StageID:  call.StageID,
		PromptID: promptID,
		Model:    model,
		ItemID:   call.ItemID,
	})
}

func (r *StageRunner) endStage(ctx context.Context, call StageCall, meta types.StageMeta, result *parser.Result) {
	status := string(types.OutcomeOK)
	level := 0
	if result != nil {
		level = parseLevelOrdinal[result.Level]
		if result.Fallback {
			status = string(types.OutcomeFallback)
		}
	}
	r.debugf("✅ Stage %s completed in %s (model=%s, parse=%s)", call.StageID, meta.Duration, meta.ModelUsed, meta.ParseLevel)
	r.emit(ctx, &events.StageEndEvent{
		StageID:    call.StageID,
		ItemID:     call.ItemID,
		Status:     status,
		Duration:   meta.Duration,
		ModelUsed:  meta.ModelUsed,
		ParseLevel: level,
	})
}

func (r *StageRunner) failStage(ctx context.Context, call StageCall, meta types.StageMeta, started time.Time, stageErr *types.StageError) {
	r.warnf("❌ Stage %s failed after %s: %v", call.StageID, time.Since(started), stageErr)
	r.emit(ctx, &events.StageErrorEvent{
		StageID: call.StageID,
		ItemID:  call.ItemID,
		Kind:    string(stageErr.Kind),
		Error:   stageErr.Error(),
	})
}

// fallbackStage reports that a stage answered through its
// deterministic fallback path instead of a model answer.
func (r *StageRunner) fallbackStage(ctx context.Context, stageID, reason string) {
	r.warnf("⚠️ Stage %s degraded to fallback: %s", stageID, reason)
	r.emit(ctx, &events.StageFallbackEvent{StageID: stageID, Reason: reason})
}

func (r *StageRunner) emit(ctx context.Context, data events.EventData) {
	if r.emitter != nil {
		r.emitter(ctx, data)
	}
}

func (r *StageRunner) debugf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debugf(format, args...)
	}
}

func (r *StageRunner) infof(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Infof(format, args...)
	}
}

func (r *StageRunner) warnf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warnf(format, args...)
	}
}

// asStageError widens a gateway error into a StageError, classifying
// raw errors that did not come through the gateway's own typing.
func asStageError(stageID string, err error) *types.StageError {
	var stageErr *types.StageError
	if errors.As(err, &stageErr) {
		if stageErr.Stage == "" {
			stageErr.Stage = stageID
		}
		return stageErr
	}
	return types.NewStageError(stageID, llm.ClassifyError(err), "", err)
}

// DecodeStage maps a parse result onto a typed stage payload.
func DecodeStage[T any](result *parser.Result) (T, error) {
	var value T
	if result == nil {
		return value, fmt.Errorf("no parse result to decode")
	}
	err := result.Decode(&value)
	return value, err
}
