package mcpclient

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Protocol identifies the transport used to reach an MCP server.
type Protocol string

const (
	ProtocolStdio Protocol = "stdio"
	ProtocolHTTP  Protocol = "http"
)

// MCPServerConfig describes a single MCP server entry.
type MCPServerConfig struct {
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Protocol    Protocol          `json:"protocol,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// GetProtocol resolves the transport for this entry. An explicit protocol
// wins; otherwise a command means stdio and a URL means streamable HTTP.
func (c MCPServerConfig) GetProtocol() Protocol {
	if c.Protocol != "" {
		return c.Protocol
	}
	if c.Command != "" {
		return ProtocolStdio
	}
	if c.URL != "" {
		return ProtocolHTTP
	}
	return ProtocolStdio
}

// MCPConfig is the parsed server configuration file.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// LoadConfig reads a server configuration file in the conventional
// {"mcpServers": {...}} layout.
func LoadConfig(path string) (*MCPConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MCP config %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses raw configuration bytes.
func ParseConfig(data []byte) (*MCPConfig, error) {
	var cfg MCPConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse MCP config: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]MCPServerConfig)
	}
	return &cfg, nil
}

// ListServers returns the configured server names sorted alphabetically.
func (c *MCPConfig) ListServers() []string {
	names := make([]string, 0, len(c.MCPServers))
	for name := range c.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetServer looks up a single server entry.
func (c *MCPConfig) GetServer(name string) (MCPServerConfig, error) {
	srv, ok := c.MCPServers[name]
	if !ok {
		return MCPServerConfig{}, fmt.Errorf("unknown MCP server: %s", name)
	}
	return srv, nil
}
