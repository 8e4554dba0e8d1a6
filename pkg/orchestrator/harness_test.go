package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/llm"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/parser"
)

// scriptStep is one canned completion of the scripted model.
type scriptStep struct {
	text string
	err  error
}

func reply(text string) scriptStep   { return scriptStep{text: text} }
func replyErr(msg string) scriptStep { return scriptStep{err: fmt.Errorf("%s", msg)} }

// scriptedCall records what one generation asked for, so tests can
// assert on model routing, attached images and rendered prompts.
type scriptedCall struct {
	Model    string
	JSONMode bool
	Images   int
	User     string
	System   string
}

// scriptedModel replays a fixed sequence of completions for stage
// tests, mirroring how gateway tests drive the client.
type scriptedModel struct {
	mu     sync.Mutex
	script []scriptStep
	idx    int
	calls  []scriptedCall
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}
	call := scriptedCall{Model: opts.Model, JSONMode: opts.JSONMode}
	for _, msg := range messages {
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.ImageURLContent:
				call.Images++
			case llms.TextContent:
				if msg.Role == llms.ChatMessageTypeHuman {
					call.User = p.Text
				} else if msg.Role == llms.ChatMessageTypeSystem {
					call.System = p.Text
				}
			}
		}
	}
	m.calls = append(m.calls, call)
	if m.idx >= len(m.script) {
		return nil, fmt.Errorf("scripted model exhausted after %d calls", len(m.script))
	}
	step := m.script[m.idx]
	m.idx++
	if step.err != nil {
		return nil, step.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: step.text}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (m *scriptedModel) recorded() []scriptedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]scriptedCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// eventSink collects emitted events for assertions.
type eventSink struct {
	mu   sync.Mutex
	data []events.EventData
}

func (s *eventSink) emitter() events.Emitter {
	return func(ctx context.Context, data events.EventData) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.data = append(s.data, data)
	}
}

func (s *eventSink) ofType(eventType events.EventType) []events.EventData {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.EventData
	for _, d := range s.data {
		if d.GetEventType() == eventType {
			out = append(out, d)
		}
	}
	return out
}

func testSettings() *models.Settings {
	return &models.Settings{
		DefaultModel: models.StageModel{Model: "test-model", Temperature: 0.2, MaxTokens: 1200},
		Vision:       models.VisionModels{Fast: "vision-fast", Primary: "vision-primary", Top: "vision-top"},
	}
}

// newTestRunner wires a StageRunner around the scripted model. One
// script step corresponds to one stage call because the gateway gets a
// single attempt and no fallback ladder.
func newTestRunner(t *testing.T, model *scriptedModel, sink *eventSink) *StageRunner {
	t.Helper()
	gateway := llm.NewGatewayWithClient(model, llm.Config{
		Provider:    llm.ProviderOpenAI,
		ModelID:     "test-model",
		MaxAttempts: 1,
		Timeout:     5 * time.Second,
	})
	var emitter events.Emitter
	if sink != nil {
		emitter = sink.emitter()
	}
	return NewStageRunner(gateway, parser.New(nil), nil, models.NewRegistry(testSettings(), nil), nil, emitter)
}

// fakeToolReply scripts one tool's behavior in the fake catalog.
type fakeToolReply struct {
	output  string
	isError bool
	err     error
}

type fakeToolCall struct {
	Server string
	Tool   string
	Params map[string]interface{}
}

// fakeCatalog is an in-memory ToolCatalog. Unscripted tools answer
// with a generic success payload.
type fakeCatalog struct {
	mu      sync.Mutex
	servers map[string][]string
	replies map[string]fakeToolReply
	calls   []fakeToolCall
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		servers: make(map[string][]string),
		replies: make(map[string]fakeToolReply),
	}
}

func (f *fakeCatalog) addServer(name string, tools ...string) *fakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.servers[name] = append(f.servers[name], tools...)
	return f
}

func (f *fakeCatalog) scriptReply(qualified, output string) *fakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[qualified] = fakeToolReply{output: output}
	return f
}

func (f *fakeCatalog) scriptToolError(qualified, output string) *fakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[qualified] = fakeToolReply{output: output, isError: true}
	return f
}

func (f *fakeCatalog) scriptTransportError(qualified string, err error) *fakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[qualified] = fakeToolReply{err: err}
	return f
}

func (f *fakeCatalog) recordedCalls() []fakeToolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeToolCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeCatalog) ServerNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.servers))
	for name := range f.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *fakeCatalog) HasServer(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.servers[name]
	return ok
}

func (f *fakeCatalog) HasTool(server, tool string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.servers[server] {
		if t == tool {
			return true
		}
	}
	return false
}

func (f *fakeCatalog) ServersForTool(tool string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for server, tools := range f.servers {
		for _, t := range tools {
			if t == tool {
				out = append(out, server)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func (f *fakeCatalog) CatalogText(servers ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	include := make(map[string]bool, len(servers))
	for _, s := range servers {
		include[s] = true
	}
	names := make([]string, 0, len(f.servers))
	for name := range f.servers {
		if len(servers) == 0 || include[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %s\n", name, strings.Join(f.servers[name], ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (f *fakeCatalog) CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (string, bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeToolCall{Server: server, Tool: tool, Params: args})
	rep, scripted := f.replies[types.QualifyTool(server, tool)]
	f.mu.Unlock()
	if !scripted {
		return `{"status":"ok"}`, false, nil
	}
	if rep.err != nil {
		return "", false, rep.err
	}
	return rep.output, rep.isError, nil
}

// testItem builds a minimal todo item for stage tests.
func testItem(id, action, criteria string) *types.TodoItem {
	return &types.TodoItem{
		ID:              id,
		Action:          action,
		SuccessCriteria: criteria,
		Status:          types.TodoInProgress,
		Attempt:         1,
		MaxAttempts:     3,
	}
}
