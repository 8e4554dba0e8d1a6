package mcpclient

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProtocolDetection(t *testing.T) {
	tests := []struct {
		name   string
		config MCPServerConfig
		want   Protocol
	}{
		{"explicit protocol wins", MCPServerConfig{Protocol: ProtocolHTTP, Command: "npx"}, ProtocolHTTP},
		{"command implies stdio", MCPServerConfig{Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-filesystem"}}, ProtocolStdio},
		{"url implies http", MCPServerConfig{URL: "http://localhost:3010/mcp"}, ProtocolHTTP},
		{"empty defaults to stdio", MCPServerConfig{}, ProtocolStdio},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.GetProtocol())
		})
	}
}

func TestLoadConfigParsesServerEntries(t *testing.T) {
	raw := `{
		"mcpServers": {
			"filesystem": {
				"command": "npx",
				"args": ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"],
				"env": {"LOG_LEVEL": "info"},
				"description": "Local file access"
			},
			"browser": {
				"url": "http://localhost:3010/mcp",
				"headers": {"Authorization": "Bearer token"}
			}
		}
	}`

	path := filepath.Join(t.TempDir(), "mcp_servers.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"browser", "filesystem"}, cfg.ListServers())

	fs, err := cfg.GetServer("filesystem")
	require.NoError(t, err)
	assert.Equal(t, "npx", fs.Command)
	assert.Equal(t, ProtocolStdio, fs.GetProtocol())
	assert.Equal(t, "Local file access", fs.Description)

	browser, err := cfg.GetServer("browser")
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTP, browser.GetProtocol())
	assert.Equal(t, "Bearer token", browser.Headers["Authorization"])
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestGetServerUnknownName(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"mcpServers": {}}`))
	require.NoError(t, err)

	_, err = cfg.GetServer("nope")
	assert.ErrorContains(t, err, "unknown MCP server")
}

func TestParseConfigToleratesEmptyDocument(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, cfg.ListServers())
}
