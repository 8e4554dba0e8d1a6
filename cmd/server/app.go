package server

import (
	"context"
	"fmt"
	"time"

	ievents "github.com/olegkizyma008-rgb/Atlas-sub002/internal/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/llm"
	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/capture"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/database"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/mcpclient"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/mcpregistry"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/conditional"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/selfanalysis"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/parser"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/prompts"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/session"
)

// Runtime is the shared wiring behind both the HTTP server and the
// one-shot run command: settings, LLM gateway, MCP registry, capture
// service, session store and the polling event store. Per-session
// orchestrators are built on demand so each run records into its own
// event stream.
type Runtime struct {
	Settings *models.Settings
	Logger   utils.ExtendedLogger
	Gateway  *llm.Gateway
	Parser   *parser.Parser
	Prompts  *prompts.Store
	Models   *models.Registry
	Registry *mcpregistry.Registry
	Screens  capture.Service
	Sessions *session.Store
	Events   *ievents.EventStore
	Journal  *database.Journal
}

// maxStoredEvents bounds each session's polling backlog.
const maxStoredEvents = 2000

// NewRuntime loads settings, connects the LLM provider, and discovers
// the configured MCP servers. dbPath may be empty to run without the
// session journal.
func NewRuntime(settings *models.Settings, logger utils.ExtendedLogger, mcpConfigPath, dbPath string) (*Runtime, error) {
	if settings == nil {
		settings = models.DefaultSettings()
	}

	gateway, err := llm.NewGateway(llm.Config{
		Provider:    llm.Provider(settings.Provider),
		ModelID:     settings.DefaultModel.Model,
		BaseURL:     settings.APIEndpoint.Primary,
		Temperature: settings.DefaultModel.Temperature,
		Timeout:     settings.APITimeout(),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM gateway: %w", err)
	}

	mcpConfig, err := mcpclient.LoadConfig(mcpConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load MCP config %s: %w", mcpConfigPath, err)
	}
	registry := mcpregistry.NewRegistry(mcpConfig, logger)

	discoverCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	for _, res := range registry.DiscoverTools(discoverCtx) {
		if res.Err != nil {
			logger.Warnf("⚠️ MCP server %s discovery failed: %v", res.ServerName, res.Err)
			continue
		}
		logger.Infof("🔌 MCP server %s: %d tool(s)", res.ServerName, len(res.Tools))
	}

	rt := &Runtime{
		Settings: settings,
		Logger:   logger,
		Gateway:  gateway,
		Parser:   parser.New(logger),
		Prompts:  prompts.NewDefaultStore(),
		Models:   models.NewRegistry(settings, logger),
		Registry: registry,
		Screens:  capture.NewFileService(settings.Capture, logger),
		Sessions: session.NewStore(),
		Events:   ievents.NewEventStore(maxStoredEvents),
	}

	if dbPath != "" {
		journal, err := database.NewJournal(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session journal: %w", err)
		}
		rt.Journal = journal
	}
	return rt, nil
}

// OrchestratorFor builds the pipeline for one session, wired to record
// events into that session's polling stream.
func (rt *Runtime) OrchestratorFor(sessionID string) (*orchestrator.Orchestrator, *session.Session) {
	sess := rt.Sessions.GetOrCreate(sessionID)
	recorder := ievents.NewSessionRecorder(rt.Events, sess.ID, rt.Logger)

	runner := orchestrator.NewStageRunner(rt.Gateway, rt.Parser, rt.Prompts, rt.Models, rt.Logger, recorder.Emit)
	orch := orchestrator.New(runner, rt.Registry, rt.Screens, rt.Settings)

	decider := conditional.New(rt.Gateway, rt.Parser, "", rt.Logger)
	orch.SetDevHandler(selfanalysis.New(runner, rt.Registry, decider, rt.Settings))
	return orch, sess
}

// Close releases the MCP connections, the event store, and the journal.
func (rt *Runtime) Close() {
	rt.Registry.CloseAll()
	rt.Events.Stop()
	if rt.Journal != nil {
		rt.Journal.Close()
	}
}
