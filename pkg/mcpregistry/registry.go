package mcpregistry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/olegkizyma008-rgb/Atlas-sub002/internal/utils"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/events"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/mcpcache"
	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/mcpclient"
)

// defaultConnectTimeout bounds a single server's connect plus handshake
// during discovery and lazy connects.
const defaultConnectTimeout = 2 * time.Minute

// Registry owns one client per configured MCP server. Connections are
// established lazily: discovery serves cached catalogs without spawning
// subprocesses, and a server is only dialed when a call targets it.
type Registry struct {
	config         *mcpclient.MCPConfig
	logger         utils.ExtendedLogger
	emitter        events.Emitter
	cache          *mcpcache.Manager
	connectTimeout time.Duration

	slots map[string]*serverSlot

	mu    sync.RWMutex
	tools map[string][]mcp.Tool
}

// serverSlot serializes connection attempts per server.
type serverSlot struct {
	mu     sync.Mutex
	client *mcpclient.Client
}

// Option configures a Registry.
type Option func(*Registry)

// WithEmitter attaches an event emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(r *Registry) { r.emitter = emitter }
}

// WithCache supplies a discovery cache. Without one, every discovery lists
// tools from the live server.
func WithCache(cache *mcpcache.Manager) Option {
	return func(r *Registry) { r.cache = cache }
}

// WithConnectTimeout overrides the per-server connect budget.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(r *Registry) { r.connectTimeout = timeout }
}

// NewRegistry builds a registry over a parsed server configuration.
func NewRegistry(config *mcpclient.MCPConfig, logger utils.ExtendedLogger, opts ...Option) *Registry {
	r := &Registry{
		config:         config,
		logger:         logger,
		emitter:        events.NopEmitter,
		connectTimeout: defaultConnectTimeout,
		slots:          make(map[string]*serverSlot),
		tools:          make(map[string][]mcp.Tool),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, name := range config.ListServers() {
		r.slots[name] = &serverSlot{}
	}
	return r
}

// ServerNames returns all configured server names sorted alphabetically.
func (r *Registry) ServerNames() []string {
	return r.config.ListServers()
}

// HasServer reports whether a server name is configured.
func (r *Registry) HasServer(name string) bool {
	_, ok := r.slots[name]
	return ok
}

// DiscoveryResult is the per-server outcome of a parallel discovery pass.
type DiscoveryResult struct {
	ServerName string
	Tools      []mcp.Tool
	FromCache  bool
	Err        error
}

// DiscoverTools resolves every configured server's tool catalog in parallel.
// Cached catalogs are served without dialing the server. A failed server
// produces a result with Err set; the rest of the fleet is unaffected.
func (r *Registry) DiscoverTools(ctx context.Context) []DiscoveryResult {
	servers := r.config.ListServers()
	if len(servers) == 0 {
		return nil
	}

	r.logger.Infof("🚀 Parallel tool discovery started: server_count=%d, servers=%v", len(servers), servers)

	resultsCh := make(chan DiscoveryResult, len(servers))
	var wg sync.WaitGroup

	for _, name := range servers {
		srvCfg, _ := r.config.GetServer(name)
		wg.Add(1)
		go func(name string, srvCfg mcpclient.MCPServerConfig) {
			defer wg.Done()
			resultsCh <- r.discoverOne(ctx, name, srvCfg)
		}(name, srvCfg)
	}

	wg.Wait()
	close(resultsCh)

	results := make([]DiscoveryResult, 0, len(servers))
	for res := range resultsCh {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ServerName < results[j].ServerName })

	for _, res := range results {
		if res.Err != nil {
			r.logger.Errorf("❌ Tool discovery failed: server_name=%s, error=%v", res.ServerName, res.Err)
			continue
		}
		r.logger.Infof("✅ Tool discovery complete: server_name=%s, tool_count=%d, from_cache=%v", res.ServerName, len(res.Tools), res.FromCache)
	}
	return results
}

func (r *Registry) discoverOne(ctx context.Context, name string, srvCfg mcpclient.MCPServerConfig) DiscoveryResult {
	if r.cache != nil {
		key := mcpcache.CacheKey(name, srvCfg)
		if entry, ok := r.cache.Get(key); ok {
			r.storeTools(name, entry.Tools)
			r.emit(ctx, &events.MCPServerDiscoveryEvent{Server: name, ToolCount: len(entry.Tools), FromCache: true})
			return DiscoveryResult{ServerName: name, Tools: entry.Tools, FromCache: true}
		}
	}

	// Isolated timeout so one slow server cannot stall the whole pass.
	discoverCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	client, err := r.ensureConnected(discoverCtx, name)
	if err != nil {
		return DiscoveryResult{ServerName: name, Err: err}
	}

	tools, err := client.ListTools(discoverCtx)
	if err != nil {
		return DiscoveryResult{ServerName: name, Err: err}
	}

	r.storeTools(name, tools)
	if r.cache != nil {
		r.cache.Put(mcpcache.CacheKey(name, srvCfg), name, string(srvCfg.GetProtocol()), tools)
	}
	r.emit(ctx, &events.MCPServerDiscoveryEvent{Server: name, ToolCount: len(tools), FromCache: false})
	return DiscoveryResult{ServerName: name, Tools: tools, FromCache: false}
}

// Tools returns the discovered catalog for one server.
func (r *Registry) Tools(server string) []mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[server]
}

// HasTool reports whether a server exposes a tool with the given
// unqualified name.
func (r *Registry) HasTool(server, tool string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools[server] {
		if t.Name == tool {
			return true
		}
	}
	return false
}

// ServersForTool returns every server whose catalog contains the unqualified
// tool name. Used to auto-qualify bare names when exactly one match exists.
func (r *Registry) ServersForTool(tool string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var servers []string
	for server, tools := range r.tools {
		for _, t := range tools {
			if t.Name == tool {
				servers = append(servers, server)
				break
			}
		}
	}
	sort.Strings(servers)
	return servers
}

// CallTool invokes an unqualified tool on a named server and flattens the
// result to text. The bool reports whether the result is a failure, covering
// both the explicit error flag and implicit error markers in the output.
func (r *Registry) CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (string, bool, error) {
	client, err := r.ensureConnected(ctx, server)
	if err != nil {
		return "", false, err
	}

	result, err := client.CallTool(ctx, tool, args)
	if err != nil {
		return "", false, err
	}
	return mcpclient.ToolResultAsString(result), mcpclient.ResultIsError(result), nil
}

// CatalogText renders the given servers' catalogs for prompt embedding,
// with tool names in their qualified server__tool form. All servers are
// rendered when none are named.
func (r *Registry) CatalogText(servers ...string) string {
	if len(servers) == 0 {
		servers = r.ServerNames()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, name := range servers {
		srvCfg, err := r.config.GetServer(name)
		if err != nil {
			continue
		}
		if srvCfg.Description != "" {
			b.WriteString(fmt.Sprintf("### %s: %s\n", name, srvCfg.Description))
		} else {
			b.WriteString(fmt.Sprintf("### %s\n", name))
		}
		for _, tool := range r.tools[name] {
			desc := strings.TrimSpace(tool.Description)
			if desc == "" {
				desc = "(no description)"
			}
			b.WriteString(fmt.Sprintf("- %s__%s: %s\n", name, tool.Name, desc))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// CloseAll tears down every live connection.
func (r *Registry) CloseAll() {
	for name, slot := range r.slots {
		slot.mu.Lock()
		if slot.client != nil {
			if err := slot.client.Close(); err != nil {
				r.logger.Warnf("⚠️ Failed to close MCP server '%s': %v", name, err)
			}
			slot.client = nil
		}
		slot.mu.Unlock()
	}
}

func (r *Registry) ensureConnected(ctx context.Context, name string) (*mcpclient.Client, error) {
	slot, ok := r.slots[name]
	if !ok {
		return nil, fmt.Errorf("unknown MCP server: %s", name)
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.client != nil && slot.client.IsConnected() {
		return slot.client, nil
	}

	srvCfg, err := r.config.GetServer(name)
	if err != nil {
		return nil, err
	}

	client := mcpclient.New(name, srvCfg, r.logger)
	r.emit(ctx, &events.MCPServerConnectionEvent{Server: name, Phase: events.MCPServerConnectionStart})
	if err := client.ConnectWithRetry(ctx); err != nil {
		r.emit(ctx, &events.MCPServerConnectionEvent{Server: name, Phase: events.MCPServerConnectionError, Error: err.Error()})
		return nil, err
	}
	r.emit(ctx, &events.MCPServerConnectionEvent{Server: name, Phase: events.MCPServerConnectionEnd})

	slot.client = client
	return client, nil
}

func (r *Registry) storeTools(name string, tools []mcp.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tools
}

func (r *Registry) emit(ctx context.Context, data events.EventData) {
	if r.emitter != nil {
		r.emitter(ctx, data)
	}
}
