package mcpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/mcpclient"
)

// DefaultTTL bounds how long a discovered tool catalog stays valid.
const DefaultTTL = 30 * time.Minute

// CacheEntry holds one server's discovered catalog and its metadata.
type CacheEntry struct {
	ServerName string     `json:"server_name"`
	Tools      []mcp.Tool `json:"tools"`

	CreatedAt    time.Time     `json:"created_at"`
	LastAccessed time.Time     `json:"last_accessed"`
	TTL          time.Duration `json:"ttl"`
	Protocol     string        `json:"protocol"`

	IsValid      bool   `json:"is_valid"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// IsExpired checks if the cache entry has expired.
func (ce *CacheEntry) IsExpired() bool {
	if !ce.IsValid {
		return true
	}
	return time.Now().After(ce.CreatedAt.Add(ce.TTL))
}

// Manager keeps discovered tool catalogs in memory, keyed by server name and
// configuration hash so a config edit invalidates the old entry.
type Manager struct {
	ttl   time.Duration
	mu    sync.RWMutex
	cache map[string]*CacheEntry
}

// NewManager creates a cache with the given TTL, or DefaultTTL when ttl <= 0.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		ttl:   ttl,
		cache: make(map[string]*CacheEntry),
	}
}

// GenerateServerConfigHash creates a deterministic hash of a server entry.
func GenerateServerConfigHash(config mcpclient.MCPServerConfig) string {
	configData := struct {
		Command  string            `json:"command"`
		Args     []string          `json:"args"`
		Env      map[string]string `json:"env"`
		URL      string            `json:"url"`
		Headers  map[string]string `json:"headers"`
		Protocol string            `json:"protocol"`
	}{
		Command:  config.Command,
		Args:     config.Args,
		Env:      sortedCopy(config.Env),
		URL:      config.URL,
		Headers:  sortedCopy(config.Headers),
		Protocol: string(config.Protocol),
	}

	jsonData, err := json.Marshal(configData)
	if err != nil {
		return fmt.Sprintf("config_%s", config.Command)
	}

	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// CacheKey combines server name and configuration hash so the cache is
// invalidated when the server configuration changes.
func CacheKey(serverName string, config mcpclient.MCPServerConfig) string {
	return fmt.Sprintf("%s_%s", serverName, GenerateServerConfigHash(config))
}

// Get returns the entry for a key when present and not expired.
func (m *Manager) Get(key string) (*CacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache[key]
	if !ok {
		return nil, false
	}
	if entry.IsExpired() {
		delete(m.cache, key)
		return nil, false
	}
	entry.LastAccessed = time.Now()
	return entry, true
}

// Put stores a freshly discovered catalog.
func (m *Manager) Put(key string, serverName string, protocol string, tools []mcp.Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.cache[key] = &CacheEntry{
		ServerName:   serverName,
		Tools:        tools,
		CreatedAt:    now,
		LastAccessed: now,
		TTL:          m.ttl,
		Protocol:     protocol,
		IsValid:      true,
	}
}

// Invalidate drops one entry.
func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
}

// InvalidateServer drops every entry recorded for a server name, regardless
// of which configuration produced it.
func (m *Manager) InvalidateServer(serverName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, entry := range m.cache {
		if entry.ServerName == serverName {
			delete(m.cache, key)
		}
	}
}

// Clear drops everything.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*CacheEntry)
}

// Stats reports cache occupancy for diagnostics endpoints.
func (m *Manager) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expired := 0
	for _, entry := range m.cache {
		if entry.IsExpired() {
			expired++
		}
	}
	return map[string]interface{}{
		"total_entries":   len(m.cache),
		"expired_entries": expired,
		"ttl_minutes":     int(m.ttl.Minutes()),
	}
}

func sortedCopy(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]string, len(in))
	for _, k := range keys {
		out[k] = in[k]
	}
	return out
}
