package mcpclient

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
)

const protocolVersion = "2024-11-05"

// RetryConfig controls connection retry behaviour.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	ConnectTimeout time.Duration
}

// DefaultRetryConfig returns the retry settings used when none are supplied.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       30 * time.Second,
		BackoffFactor:  2.0,
		ConnectTimeout: 2 * time.Minute,
	}
}

// Client wraps one MCP server connection. A Client is created per configured
// server and kept alive for the process lifetime; Close tears the transport
// down.
type Client struct {
	name        string
	config      MCPServerConfig
	retryConfig RetryConfig
	logger      utils.ExtendedLogger

	mu         sync.Mutex
	mcpClient  *client.Client
	serverInfo mcp.Implementation
	connected  bool
}

// New creates a client for one server entry with default retry settings.
func New(name string, config MCPServerConfig, logger utils.ExtendedLogger) *Client {
	return NewWithRetryConfig(name, config, DefaultRetryConfig(), logger)
}

// NewWithRetryConfig creates a client with explicit retry settings.
func NewWithRetryConfig(name string, config MCPServerConfig, retryConfig RetryConfig, logger utils.ExtendedLogger) *Client {
	return &Client{
		name:        name,
		config:      config,
		retryConfig: retryConfig,
		logger:      logger,
	}
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// Config returns the server entry this client was built from.
func (c *Client) Config() MCPServerConfig {
	return c.config
}

// Describe returns a human readable identity for logs and catalogs.
func (c *Client) Describe() string {
	if c.config.Description != "" {
		return c.config.Description
	}
	if c.config.Command != "" {
		return fmt.Sprintf("%s %v", c.config.Command, c.config.Args)
	}
	return c.config.URL
}

// ConnectWithRetry dials the server, retrying with exponential backoff until
// the retry budget is spent or the context is cancelled.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(c.retryConfig.InitialDelay) * math.Pow(c.retryConfig.BackoffFactor, float64(attempt-1)))
			if delay > c.retryConfig.MaxDelay {
				delay = c.retryConfig.MaxDelay
			}
			c.logger.Infof("🔄 Retrying MCP connection to '%s' in %s (attempt %d/%d)...", c.name, delay, attempt+1, c.retryConfig.MaxRetries+1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("connection to %s cancelled: %w", c.name, ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := c.connect(ctx); err != nil {
			lastErr = err
			c.logger.Warnf("⚠️ MCP connection attempt %d failed for '%s': %v", attempt+1, c.name, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("failed to connect to MCP server %s after %d attempts: %w", c.name, c.retryConfig.MaxRetries+1, lastErr)
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.retryConfig.ConnectTimeout)
	defer cancel()

	protocol := c.config.GetProtocol()
	if protocol == ProtocolStdio {
		c.logger.Infof("🔌 Connecting to MCP server '%s' via %s (command: %s %v)...", c.name, protocol, c.config.Command, c.config.Args)
	} else {
		c.logger.Infof("🔌 Connecting to MCP server '%s' via %s (%s)...", c.name, protocol, c.config.URL)
	}

	var (
		mcpClient *client.Client
		err       error
	)
	switch protocol {
	case ProtocolStdio:
		if c.config.Command == "" {
			return fmt.Errorf("stdio server %s has no command configured", c.name)
		}
		env := os.Environ()
		for key, value := range c.config.Env {
			env = append(env, fmt.Sprintf("%s=%s", key, value))
		}
		// NewStdioMCPClient starts the subprocess transport itself.
		mcpClient, err = client.NewStdioMCPClient(c.config.Command, env, c.config.Args...)
		if err != nil {
			return fmt.Errorf("failed to create stdio client for %s: %w", c.name, err)
		}
	case ProtocolHTTP:
		if c.config.URL == "" {
			return fmt.Errorf("http server %s has no URL configured", c.name)
		}
		var opts []transport.StreamableHTTPCOption
		if len(c.config.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(c.config.Headers))
		}
		mcpClient, err = client.NewStreamableHttpClient(c.config.URL, opts...)
		if err != nil {
			return fmt.Errorf("failed to create HTTP client for %s: %w", c.name, err)
		}
		if err = mcpClient.Start(connectCtx); err != nil {
			return fmt.Errorf("failed to start HTTP transport for %s: %w", c.name, err)
		}
	default:
		return fmt.Errorf("unsupported MCP protocol %q for server %s", protocol, c.name)
	}

	initResult, err := mcpClient.Initialize(connectCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "atlas-orchestrator",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		mcpClient.Close()
		return fmt.Errorf("failed to initialize MCP connection to %s: %w", c.name, err)
	}

	c.mcpClient = mcpClient
	c.serverInfo = initResult.ServerInfo
	c.connected = true
	c.logger.Infof("✅ Connected to MCP server '%s' (%s %s)", c.name, initResult.ServerInfo.Name, initResult.ServerInfo.Version)
	return nil
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	mcpClient, err := c.active()
	if err != nil {
		return nil, err
	}

	result, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools on %s: %w", c.name, err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool by its unqualified name.
func (c *Client) CallTool(ctx context.Context, tool string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	mcpClient, err := c.active()
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = make(map[string]interface{})
	}

	result, err := mcpClient.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tool %s failed on %s: %w", tool, c.name, err)
	}
	return result, nil
}

// IsConnected reports whether the initialize handshake has completed.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ServerInfo returns the implementation info the server reported during
// initialization.
func (c *Client) ServerInfo() mcp.Implementation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mcpClient == nil {
		return nil
	}
	err := c.mcpClient.Close()
	c.mcpClient = nil
	c.connected = false
	return err
}

func (c *Client) active() (*client.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.mcpClient == nil {
		return nil, fmt.Errorf("MCP server %s is not connected", c.name)
	}
	return c.mcpClient, nil
}
