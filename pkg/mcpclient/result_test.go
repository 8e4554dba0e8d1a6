package mcpclient

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestToolResultAsStringPlainText(t *testing.T) {
	result := mcp.NewToolResultText("directory created")
	assert.Equal(t, "directory created", ToolResultAsString(result))
}

func TestToolResultAsStringUnwrapsTextEnvelope(t *testing.T) {
	result := mcp.NewToolResultText(`{"type":"text","text":"inner payload"}`)
	assert.Equal(t, "inner payload", ToolResultAsString(result))
}

func TestToolResultAsStringKeepsUnrelatedJSON(t *testing.T) {
	result := mcp.NewToolResultText(`{"size": 4096, "name": "demo"}`)
	assert.Equal(t, `{"size": 4096, "name": "demo"}`, ToolResultAsString(result))
}

func TestToolResultAsStringExplicitError(t *testing.T) {
	result := mcp.NewToolResultError("permission denied")
	out := ToolResultAsString(result)
	assert.Contains(t, out, "Tool call failed with error:")
	assert.Contains(t, out, "permission denied")
}

func TestToolResultAsStringImplicitError(t *testing.T) {
	result := mcp.NewToolResultText("command failed: exit status 1")
	out := ToolResultAsString(result)
	assert.Contains(t, out, "Tool call failed with error:")
}

func TestToolResultAsStringNilResult(t *testing.T) {
	assert.Equal(t, "Tool execution completed but no result returned", ToolResultAsString(nil))
}

func TestResultIsError(t *testing.T) {
	assert.False(t, ResultIsError(nil))
	assert.False(t, ResultIsError(mcp.NewToolResultText("ok")))
	assert.True(t, ResultIsError(mcp.NewToolResultError("boom")))
	assert.True(t, ResultIsError(mcp.NewToolResultText("usage: mytool [options]")))
}

func TestHasImplicitError(t *testing.T) {
	assert.True(t, HasImplicitError("exit status 2"))
	assert.True(t, HasImplicitError("Invalid choice: frobnicate"))
	assert.True(t, HasImplicitError("Error: Access denied for user"))
	assert.False(t, HasImplicitError("created /tmp/demo"))
	assert.False(t, HasImplicitError(""))
}

func TestUnwrapTextPayloadEdgeCases(t *testing.T) {
	assert.Equal(t, "plain", unwrapTextPayload("plain"))
	assert.Equal(t, "{broken json", unwrapTextPayload("{broken json"))
	assert.Equal(t, `{"type":"image"}`, unwrapTextPayload(`{"type":"image"}`))
}
