package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/logger"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/models"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/orchestrator/types"
)

// ServerCmd starts the HTTP API.
var ServerCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator HTTP API",
	Long: `Start the HTTP API that accepts user requests, runs them through the
staged pipeline, and exposes per-session event streams for polling.

Endpoints:
  POST /api/execute         run one request (chat, task, or dev mode)
  GET  /api/sessions        list active sessions
  GET  /api/sessions/:id    one session's snapshot
  GET  /poll/events/{id}    incremental event polling
  GET  /health              liveness probe

Examples:
  atlas serve                             # defaults (port 8765)
  atlas serve --port 8000 --db atlas.db   # custom port with journal`,
	Run: runServer,
}

func init() {
	ServerCmd.Flags().Int("port", 8765, "port to listen on")
	ServerCmd.Flags().String("host", "127.0.0.1", "host to bind to")
	ServerCmd.Flags().StringSlice("cors-origins", []string{"*"}, "allowed CORS origins")
	ServerCmd.Flags().String("db", "", "sqlite path for the session journal (empty disables it)")
}

// executeRequest is the POST /api/execute body.
type executeRequest struct {
	SessionID string             `json:"session_id"`
	Message   string             `json:"message" binding:"required"`
	Password  string             `json:"password"`
	TTS       *types.TTSSettings `json:"tts,omitempty"`
}

// API carries the runtime into the gin handlers.
type API struct {
	rt *Runtime
}

func runServer(cmd *cobra.Command, args []string) {
	logFile := viper.GetString("log-file")
	logLevel := viper.GetString("log-level")
	if viper.GetBool("debug") {
		logLevel = "debug"
	}
	log, err := logger.CreateLogger(logFile, logLevel, viper.GetString("log-format"), true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	settings, err := models.LoadSettings(viper.GetViper())
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	dbPath, _ := cmd.Flags().GetString("db")
	rt, err := NewRuntime(settings, log, viper.GetString("mcp-config"), dbPath)
	if err != nil {
		log.Fatalf("Failed to build runtime: %v", err)
	}
	defer rt.Close()

	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	origins, _ := cmd.Flags().GetStringSlice("cors-origins")

	api := &API{rt: rt}

	if !viper.GetBool("debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware(origins))

	engine.GET("/health", api.handleHealth)
	engine.POST("/api/execute", api.handleExecute)
	engine.GET("/api/sessions", api.handleListSessions)
	engine.GET("/api/sessions/:id", api.handleGetSession)
	engine.DELETE("/api/sessions/:id", api.handleDeleteSession)

	// The polling API lives on its own router; everything else is gin.
	polling := NewPollingAPI(rt.Events)
	root := http.NewServeMux()
	root.Handle("/poll/", polling.Router())
	root.Handle("/", engine)

	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: root}

	go func() {
		log.Infof("🚀 Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Shutdown error: %v", err)
	}
}

func (api *API) handleHealth(c *gin.Context) {
	status := gin.H{
		"status":  "ok",
		"servers": api.rt.Registry.ServerNames(),
		"events":  api.rt.Events.Stats(),
	}
	if api.rt.Journal != nil {
		if err := api.rt.Journal.Ping(c.Request.Context()); err != nil {
			status["journal"] = err.Error()
		} else {
			status["journal"] = "ok"
		}
	}
	c.JSON(http.StatusOK, status)
}

// handleExecute runs one request synchronously. Progress is observable
// through the polling API while the call is in flight.
func (api *API) handleExecute(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	orch, sess := api.rt.OrchestratorFor(req.SessionID)

	if api.rt.Journal != nil {
		if _, err := api.rt.Journal.RecordSession(c.Request.Context(), sess.ID, snippetTitle(req.Message), string(sess.LastMode())); err != nil {
			api.rt.Logger.Warnf("⚠️ Journal write failed: %v", err)
		}
	}

	result := orch.Execute(c.Request.Context(), orchestrator.Request{
		UserMessage: req.Message,
		Session:     sess,
		Password:    req.Password,
		TTS:         req.TTS,
	})

	if api.rt.Journal != nil {
		status := "completed"
		if !result.Success {
			status = "failed"
		}
		if err := api.rt.Journal.CompleteSession(c.Request.Context(), sess.ID, status); err != nil {
			api.rt.Logger.Warnf("⚠️ Journal update failed: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "result": result})
}

func (api *API) handleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": api.rt.Sessions.List()})
}

func (api *API) handleGetSession(c *gin.Context) {
	sess, ok := api.rt.Sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": sess.Snapshot(),
		"plan":    sess.Tree(),
	})
}

func (api *API) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	api.rt.Sessions.Delete(id)
	api.rt.Events.RemoveSession(id)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// corsMiddleware allows the configured origins; "*" allows any.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

func snippetTitle(message string) string {
	runes := []rune(strings.TrimSpace(message))
	if len(runes) > 80 {
		return string(runes[:80])
	}
	return string(runes)
}
