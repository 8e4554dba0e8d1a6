package mcpcache

import (
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/mcpclient"
)

func sampleTools() []mcp.Tool {
	return []mcp.Tool{
		{Name: "create_directory", Description: "Create a directory"},
		{Name: "get_file_info", Description: "Stat a path"},
	}
}

func TestPutAndGetRoundTrip(t *testing.T) {
	m := NewManager(time.Minute)
	key := CacheKey("filesystem", mcpclient.MCPServerConfig{Command: "npx"})

	m.Put(key, "filesystem", "stdio", sampleTools())

	entry, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, "filesystem", entry.ServerName)
	assert.Len(t, entry.Tools, 2)
	assert.True(t, entry.IsValid)
}

func TestGetDropsExpiredEntries(t *testing.T) {
	m := NewManager(time.Minute)
	key := CacheKey("filesystem", mcpclient.MCPServerConfig{Command: "npx"})

	m.Put(key, "filesystem", "stdio", sampleTools())

	// Backdate the entry past its TTL.
	m.mu.Lock()
	m.cache[key].CreatedAt = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()

	_, ok := m.Get(key)
	assert.False(t, ok)

	stats := m.Stats()
	assert.Equal(t, 0, stats["total_entries"])
}

func TestConfigHashChangesWithConfig(t *testing.T) {
	base := mcpclient.MCPServerConfig{Command: "npx", Args: []string{"-y", "server"}}
	changed := mcpclient.MCPServerConfig{Command: "npx", Args: []string{"-y", "server", "/tmp"}}

	assert.NotEqual(t, GenerateServerConfigHash(base), GenerateServerConfigHash(changed))
	assert.Equal(t, GenerateServerConfigHash(base), GenerateServerConfigHash(base))
}

func TestCacheKeyIncludesServerName(t *testing.T) {
	cfg := mcpclient.MCPServerConfig{Command: "npx"}
	assert.NotEqual(t, CacheKey("filesystem", cfg), CacheKey("shell", cfg))
}

func TestInvalidateServerDropsAllVariants(t *testing.T) {
	m := NewManager(time.Minute)

	m.Put(CacheKey("filesystem", mcpclient.MCPServerConfig{Command: "npx"}), "filesystem", "stdio", sampleTools())
	m.Put(CacheKey("filesystem", mcpclient.MCPServerConfig{Command: "node"}), "filesystem", "stdio", sampleTools())
	m.Put(CacheKey("shell", mcpclient.MCPServerConfig{Command: "sh"}), "shell", "stdio", nil)

	m.InvalidateServer("filesystem")

	stats := m.Stats()
	assert.Equal(t, 1, stats["total_entries"])
}

func TestNewManagerDefaultsTTL(t *testing.T) {
	m := NewManager(0)
	assert.Equal(t, int(DefaultTTL.Minutes()), m.Stats()["ttl_minutes"])
}
