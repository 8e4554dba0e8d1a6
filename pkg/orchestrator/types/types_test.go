package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMode(t *testing.T) {
	tests := []struct {
		raw  string
		want Mode
	}{
		{"chat", ModeChat},
		{"greeting", ModeChat},
		{"question", ModeChat},
		{"casual", ModeChat},
		{"task", ModeTask},
		{"action", ModeTask},
		{"command", ModeTask},
		{"dev", ModeDev},
		{"self-analysis", ModeDev},
		{"intervention", ModeDev},
		{"banana", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeMode(tt.raw), "raw=%q", tt.raw)
	}
}

func TestQualifiedToolGrammar(t *testing.T) {
	assert.True(t, IsQualifiedTool("filesystem__create_directory"))
	assert.True(t, IsQualifiedTool("web_browser__goto_page2"))
	assert.False(t, IsQualifiedTool("create_directory"))
	assert.False(t, IsQualifiedTool("FileSystem__create"))
	assert.False(t, IsQualifiedTool("filesystem__"))
	assert.False(t, IsQualifiedTool("__tool"))

	server, tool, ok := SplitQualifiedTool("filesystem__create_directory")
	require.True(t, ok)
	assert.Equal(t, "filesystem", server)
	assert.Equal(t, "create_directory", tool)

	// The last separator wins so tool names may contain underscores.
	server, tool, ok = SplitQualifiedTool("web_browser__goto_page")
	require.True(t, ok)
	assert.Equal(t, "web_browser", server)
	assert.Equal(t, "goto_page", tool)

	_, _, ok = SplitQualifiedTool("plain_name")
	assert.False(t, ok)

	assert.Equal(t, "shell__run_command", QualifyTool("shell", "run_command"))
}

func TestOutcomeFold(t *testing.T) {
	var path string

	Ok("value").Fold(
		func(v string) { path = "ok:" + v },
		func(v, reason string) { path = "fallback" },
		func(err *StageError) { path = "fail" },
	)
	assert.Equal(t, "ok:value", path)

	FallbackOutcome("partial", "parser degraded").Fold(
		func(v string) { path = "ok" },
		func(v, reason string) { path = "fallback:" + reason },
		func(err *StageError) { path = "fail" },
	)
	assert.Equal(t, "fallback:parser degraded", path)

	Fail[string](NewStageError("mode_select", KindParseFailure, "no json", nil)).Fold(
		func(v string) { path = "ok" },
		func(v, reason string) { path = "fallback" },
		func(err *StageError) { path = "fail:" + string(err.Kind) },
	)
	assert.Equal(t, "fail:ParseFailure", path)
}

func TestOutcomeUsable(t *testing.T) {
	assert.True(t, Ok(1).Usable())
	assert.True(t, FallbackOutcome(1, "degraded").Usable())
	assert.False(t, Fail[int](NewStageError("s", KindTimeout, "", nil)).Usable())
}

func TestStageErrorWrapping(t *testing.T) {
	cause := errors.New("socket closed")
	err := NewStageError("llm_gateway", KindTransport, "call failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "llm_gateway")
	assert.Contains(t, err.Error(), "Transport")
	assert.Contains(t, err.Error(), "socket closed")
}

func TestErrorKindRetryable(t *testing.T) {
	assert.True(t, KindRateLimited.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.True(t, KindTransport.Retryable())
	assert.False(t, KindParseFailure.Retryable())
	assert.False(t, KindEmptyPlan.Retryable())
	assert.False(t, KindCancelled.Retryable())
}
