package mcpclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/olegkizyma008-rgb/Atlas-sub002/pkg/logger"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.BackoffFactor)
	assert.Equal(t, 2*time.Minute, cfg.ConnectTimeout)
}

func TestDescribePrefersDescription(t *testing.T) {
	log := logger.CreateDefaultLogger()

	c := New("files", MCPServerConfig{Description: "Local file access", Command: "npx"}, log)
	assert.Equal(t, "Local file access", c.Describe())

	c = New("files", MCPServerConfig{Command: "npx", Args: []string{"-y", "server"}}, log)
	assert.Equal(t, "npx [-y server]", c.Describe())

	c = New("browser", MCPServerConfig{URL: "http://localhost:3010/mcp"}, log)
	assert.Equal(t, "http://localhost:3010/mcp", c.Describe())
}

func TestCallsBeforeConnectFail(t *testing.T) {
	log := logger.CreateDefaultLogger()
	c := New("files", MCPServerConfig{Command: "npx"}, log)

	ctx := context.Background()

	_, err := c.ListTools(ctx)
	assert.ErrorContains(t, err, "not connected")

	_, err = c.CallTool(ctx, "read_file", nil)
	assert.ErrorContains(t, err, "not connected")

	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Close())
}

func TestConnectRejectsIncompleteConfig(t *testing.T) {
	log := logger.CreateDefaultLogger()

	// Stdio without a command cannot start a subprocess.
	c := NewWithRetryConfig("files", MCPServerConfig{Protocol: ProtocolStdio}, RetryConfig{
		MaxRetries:     0,
		InitialDelay:   time.Millisecond,
		MaxDelay:       time.Millisecond,
		BackoffFactor:  1.0,
		ConnectTimeout: time.Second,
	}, log)
	err := c.ConnectWithRetry(context.Background())
	assert.ErrorContains(t, err, "no command configured")

	// HTTP without a URL has nowhere to dial.
	c = NewWithRetryConfig("browser", MCPServerConfig{Protocol: ProtocolHTTP}, RetryConfig{
		MaxRetries:     0,
		InitialDelay:   time.Millisecond,
		MaxDelay:       time.Millisecond,
		BackoffFactor:  1.0,
		ConnectTimeout: time.Second,
	}, log)
	err = c.ConnectWithRetry(context.Background())
	assert.ErrorContains(t, err, "no URL configured")
}

func TestConnectWithRetryHonorsContextCancellation(t *testing.T) {
	log := logger.CreateDefaultLogger()
	c := NewWithRetryConfig("files", MCPServerConfig{Protocol: ProtocolStdio}, RetryConfig{
		MaxRetries:     5,
		InitialDelay:   50 * time.Millisecond,
		MaxDelay:       time.Second,
		BackoffFactor:  2.0,
		ConnectTimeout: time.Second,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.ConnectWithRetry(ctx)
	assert.ErrorContains(t, err, "cancelled")
}
