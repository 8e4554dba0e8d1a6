package selfanalysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/llm"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/parser"
)

type scriptedModel struct {
	mu     sync.Mutex
	script []string
	idx    int
	users  []string
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		if msg.Role != llms.ChatMessageTypeHuman {
			continue
		}
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.users = append(m.users, text.Text)
			}
		}
	}
	if m.idx >= len(m.script) {
		return nil, fmt.Errorf("scripted model exhausted after %d calls", len(m.script))
	}
	text := m.script[m.idx]
	m.idx++
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", fmt.Errorf("not implemented")
}

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

// fakeCatalog scripts MCP tool behavior keyed by "server/tool".
type fakeCatalog struct {
	mu      sync.Mutex
	servers map[string][]string
	replies map[string]string
	failing map[string]bool
	calls   []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		servers: make(map[string][]string),
		replies: make(map[string]string),
		failing: make(map[string]bool),
	}
}

func (f *fakeCatalog) addServer(name string, tools ...string) *fakeCatalog {
	f.servers[name] = append(f.servers[name], tools...)
	return f
}

func (f *fakeCatalog) scriptReply(key, output string) *fakeCatalog {
	f.replies[key] = output
	return f
}

func (f *fakeCatalog) scriptFailure(key string) *fakeCatalog {
	f.failing[key] = true
	return f
}

func (f *fakeCatalog) ServerNames() []string {
	names := make([]string, 0, len(f.servers))
	for name := range f.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *fakeCatalog) HasServer(name string) bool {
	_, ok := f.servers[name]
	return ok
}

func (f *fakeCatalog) HasTool(server, tool string) bool {
	for _, t := range f.servers[server] {
		if t == tool {
			return true
		}
	}
	return false
}

func (f *fakeCatalog) ServersForTool(tool string) []string {
	var out []string
	for server := range f.servers {
		if f.HasTool(server, tool) {
			out = append(out, server)
		}
	}
	sort.Strings(out)
	return out
}

func (f *fakeCatalog) CatalogText(servers ...string) string {
	var b strings.Builder
	for _, name := range f.ServerNames() {
		fmt.Fprintf(&b, "%s: %s\n", name, strings.Join(f.servers[name], ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (f *fakeCatalog) CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (string, bool, error) {
	key := server + "/" + tool
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	if f.failing[key] {
		return "", false, fmt.Errorf("tool %s unavailable", key)
	}
	if out, ok := f.replies[key]; ok {
		return out, false, nil
	}
	return `{"status":"ok"}`, false, nil
}

func (f *fakeCatalog) recordedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func devSettings() *models.Settings {
	settings := models.DefaultSettings()
	settings.DefaultModel = models.StageModel{Model: "test-model", Temperature: 0.2, MaxTokens: 1200}
	settings.Intervention.Password = "mellon"
	settings.Analysis.LogDir = "logs"
	settings.Analysis.TailLines = 50
	settings.Analysis.MaxDepth = 3
	settings.Analysis.FilesystemServer = "filesystem"
	settings.Analysis.MemoryServer = "memory"
	return settings
}

func newAnalyzer(t *testing.T, script []string, catalog *fakeCatalog, sink *eventSink) *Analyzer {
	t.Helper()
	gateway := llm.NewGatewayWithClient(&scriptedModel{script: script}, llm.Config{
		Provider:    llm.ProviderOpenAI,
		ModelID:     "test-model",
		MaxAttempts: 1,
		Timeout:     5 * time.Second,
	})
	settings := devSettings()
	runner := orchestrator.NewStageRunner(gateway, parser.New(nil), nil, models.NewRegistry(settings, nil), nil, sink.emitter())
	return New(runner, catalog, nil, settings)
}

const analysisAnswer = `{
  "summary": "Verification keeps timing out on the screenshot step.",
  "problems": [
    {"signature": "capture timeout", "component": "capture", "severity": "medium",
     "evidence": ["error.log: screencapture exit 1"], "hypothesis": "screen recording permission missing"}
  ],
  "needs_deeper_look": false,
  "insights": ["all timeouts cluster after 14:00"]
}`

func TestHandleAnalysisOnly(t *testing.T) {
	catalog := newFakeCatalog().
		addServer("filesystem", "read_text_file").
		addServer("memory", "create_entities").
		scriptReply("filesystem/read_text_file", "line one\nline two")
	sink := &eventSink{}
	analyzer := newAnalyzer(t, []string{analysisAnswer}, catalog, sink)

	res := analyzer.Handle(context.Background(), &types.DevRequest{UserMessage: "проаналізуй себе"})

	require.NotNil(t, res.Report)
	assert.False(t, res.AuthRequired)
	assert.Nil(t, res.Plan)
	require.Len(t, res.Report.Problems, 1)
	assert.Equal(t, "capture timeout", res.Report.Problems[0].Signature)

	require.NotNil(t, res.Context)
	assert.False(t, res.Context.Fallback)
	assert.Equal(t, []string{"line one", "line two"}, res.Context.Logs.Error)

	// One root per problem, with investigate and remediate children.
	require.NotNil(t, res.Todo)
	require.Len(t, res.Todo.RootIDs, 1)
	root := res.Todo.Get("1")
	require.NotNil(t, root)
	assert.Len(t, root.ChildIDs, 2)
	remediate := res.Todo.Get("1.2")
	require.NotNil(t, remediate)
	assert.Equal(t, []string{"1.1"}, remediate.Dependencies)

	assert.NotEmpty(t, sink.ofType(events.AnalysisStart))
	assert.NotEmpty(t, sink.ofType(events.AnalysisEnd))
	assert.NotEmpty(t, sink.ofType(events.MemoryEntityWritten))
	assert.Contains(t, catalog.recordedCalls(), "memory/create_entities")
}

func TestHandleWrongPasswordStillAnalyzes(t *testing.T) {
	catalog := newFakeCatalog().addServer("filesystem", "read_text_file")
	sink := &eventSink{}
	analyzer := newAnalyzer(t, []string{analysisAnswer}, catalog, sink)

	res := analyzer.Handle(context.Background(), &types.DevRequest{
		UserMessage: "fix yourself",
		Password:    "wrong",
	})

	assert.True(t, res.AuthRequired)
	assert.Nil(t, res.Plan)
	require.NotNil(t, res.Report)
	assert.Len(t, res.Report.Problems, 1)

	denied := sink.ofType(events.InterventionDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, len("wrong"), denied[0].(*events.InterventionEvent).AttemptLength)
}

func TestHandleInterventionPlan(t *testing.T) {
	catalog := newFakeCatalog().
		addServer("filesystem", "read_text_file", "write_file").
		addServer("shell", "run_command")
	sink := &eventSink{}
	interventionAnswer := `{
	  "steps": [
	    {"server": "filesystem", "tool": "write_file",
	     "parameters": {"path": "config/settings.yaml", "content": "capture:\n  interval_ms: 2000"},
	     "rationale": "slow the capture loop"},
	    {"server": "shell", "tool": "run_command",
	     "parameters": {"command": "systemctl restart atlas"},
	     "rationale": "apply the new settings", "is_restart": true}
	  ],
	  "reasoning": "one config change then restart"
	}`
	analyzer := newAnalyzer(t, []string{analysisAnswer, interventionAnswer}, catalog, sink)

	res := analyzer.Handle(context.Background(), &types.DevRequest{
		UserMessage: "виправ себе",
		Password:    "mellon",
	})

	assert.False(t, res.AuthRequired)
	require.NotNil(t, res.Plan)
	require.Len(t, res.Plan.Steps, 2)

	last := res.Plan.Steps[1]
	assert.True(t, last.IsRestart)
	assert.Equal(t, []int{0}, last.DependsOn)
	assert.Equal(t, "shell", last.Call.Server)

	queued := sink.ofType(events.InterventionQueued)
	require.Len(t, queued, 1)
	assert.Equal(t, 2, queued[0].(*events.InterventionEvent).PlanItems)
}

func TestBuildPlanAppendsMissingRestart(t *testing.T) {
	catalog := newFakeCatalog().
		addServer("filesystem", "read_text_file", "write_file").
		addServer("shell", "run_command")
	sink := &eventSink{}
	interventionAnswer := `{
	  "steps": [
	    {"server": "filesystem", "tool": "write_file", "parameters": {"path": "x"}, "rationale": "patch"},
	    {"server": "ghost", "tool": "haunt", "rationale": "unknown server, must be dropped"}
	  ],
	  "reasoning": "forgot the restart"
	}`
	analyzer := newAnalyzer(t, []string{interventionAnswer}, catalog, sink)

	plan := analyzer.BuildPlan(context.Background(), &types.AnalysisReport{Summary: "x"})

	require.NotNil(t, plan)
	require.Len(t, plan.Steps, 2)
	last := plan.Steps[len(plan.Steps)-1]
	assert.True(t, last.IsRestart)
	assert.Equal(t, "run_command", last.Call.Tool)
	assert.Equal(t, []int{0}, last.DependsOn)
}

func TestDeepeningVisitsEachSignatureOnce(t *testing.T) {
	catalog := newFakeCatalog().addServer("filesystem", "read_text_file")
	sink := &eventSink{}
	looping := `{
	  "summary": "db keeps locking",
	  "problems": [{"signature": "sqlite lock", "component": "database", "severity": "critical",
	    "hypothesis": "two writers share one connection"}],
	  "needs_deeper_look": true
	}`
	// Same signature every pass: the visited set must end the loop after
	// one deepening even though the model keeps asking for more.
	analyzer := newAnalyzer(t, []string{looping, looping, looping, looping}, catalog, sink)

	res := analyzer.Handle(context.Background(), &types.DevRequest{UserMessage: "самоаналіз"})

	require.NotNil(t, res.Report)
	assert.Equal(t, 1, res.Report.Depth)
	assert.Len(t, res.Report.Problems, 1)
	assert.Len(t, sink.ofType(events.AnalysisDeepened), 1)
}

func TestGatherContextWithoutFilesystemServer(t *testing.T) {
	catalog := newFakeCatalog().addServer("memory", "create_entities")
	sink := &eventSink{}
	analyzer := newAnalyzer(t, nil, catalog, sink)

	snapshot := analyzer.GatherContext(context.Background(), nil)

	assert.True(t, snapshot.Fallback)
	assert.Empty(t, snapshot.Logs.Error)
	assert.NotEmpty(t, snapshot.MemoryUsage)
}

func TestGatherContextAllReadsFail(t *testing.T) {
	catalog := newFakeCatalog().
		addServer("filesystem", "read_text_file").
		scriptFailure("filesystem/read_text_file")
	sink := &eventSink{}
	analyzer := newAnalyzer(t, nil, catalog, sink)

	snapshot := analyzer.GatherContext(context.Background(), nil)

	assert.True(t, snapshot.Fallback)
}

func TestVerifyPassword(t *testing.T) {
	catalog := newFakeCatalog()
	sink := &eventSink{}
	analyzer := newAnalyzer(t, nil, catalog, sink)

	assert.True(t, analyzer.VerifyPassword("mellon"))
	assert.True(t, analyzer.VerifyPassword("  Mellon  "))
	assert.True(t, analyzer.VerifyPassword(`"mellon"`))
	assert.True(t, analyzer.VerifyPassword("'mellon'"))
	assert.False(t, analyzer.VerifyPassword("mithril"))
	assert.False(t, analyzer.VerifyPassword(""))
}

func TestVerifyPasswordEmptySecretNeverAuthorizes(t *testing.T) {
	settings := devSettings()
	settings.Intervention.Password = ""
	gateway := llm.NewGatewayWithClient(&scriptedModel{}, llm.Config{Provider: llm.ProviderOpenAI, ModelID: "m", MaxAttempts: 1, Timeout: time.Second})
	runner := orchestrator.NewStageRunner(gateway, parser.New(nil), nil, models.NewRegistry(settings, nil), nil, nil)
	analyzer := New(runner, newFakeCatalog(), nil, settings)

	assert.False(t, analyzer.VerifyPassword(""))
	assert.False(t, analyzer.VerifyPassword("anything"))
}
