package mcpclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// implicitErrorMarkers flag tool output that reads like a failure even when
// the server left IsError unset. Shell wrappers in particular report usage
// errors as plain text.
var implicitErrorMarkers = []string{
	"exit status",
	"Invalid choice",
	"usage:",
	"Error: Access denied",
}

// ToolResultAsString flattens an MCP tool result into text suitable for
// prompts and logs.
func ToolResultAsString(result *mcp.CallToolResult) string {
	if result == nil {
		return "Tool execution completed but no result returned"
	}

	parts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		parts = append(parts, contentAsString(content))
	}
	joined := strings.Join(parts, "\n")

	if result.IsError {
		return fmt.Sprintf("Tool call failed with error: %s", joined)
	}
	if HasImplicitError(joined) {
		return fmt.Sprintf("Tool call failed with error: %s", joined)
	}
	return joined
}

// ResultIsError reports whether a tool result should be treated as a failure,
// combining the explicit flag with the implicit marker scan.
func ResultIsError(result *mcp.CallToolResult) bool {
	if result == nil {
		return false
	}
	if result.IsError {
		return true
	}
	var parts []string
	for _, content := range result.Content {
		parts = append(parts, contentAsString(content))
	}
	return HasImplicitError(strings.Join(parts, "\n"))
}

// HasImplicitError reports whether output text carries a failure marker.
func HasImplicitError(output string) bool {
	for _, marker := range implicitErrorMarkers {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

// contentAsString renders one content item. Both value and pointer forms are
// matched since the library has produced either across releases.
func contentAsString(content mcp.Content) string {
	switch c := content.(type) {
	case mcp.TextContent:
		return unwrapTextPayload(c.Text)
	case *mcp.TextContent:
		return unwrapTextPayload(c.Text)
	case mcp.ImageContent:
		return fmt.Sprintf("[Image: %s, %d bytes]", c.MIMEType, len(c.Data))
	case *mcp.ImageContent:
		return fmt.Sprintf("[Image: %s, %d bytes]", c.MIMEType, len(c.Data))
	case mcp.EmbeddedResource:
		return fmt.Sprintf("[Resource: %s]", formatResourceContents(c.Resource))
	case *mcp.EmbeddedResource:
		return fmt.Sprintf("[Resource: %s]", formatResourceContents(c.Resource))
	default:
		if jsonBytes, err := json.Marshal(content); err == nil {
			return string(jsonBytes)
		}
		return fmt.Sprintf("[Unknown content type: %T]", content)
	}
}

// unwrapTextPayload unpacks the {"type":"text","text":"..."} envelope some
// servers wrap around plain text.
func unwrapTextPayload(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return text
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return text
	}
	if payloadType, ok := payload["type"].(string); ok && payloadType == "text" {
		if inner, ok := payload["text"].(string); ok {
			return inner
		}
	}
	return text
}

func formatResourceContents(resource mcp.ResourceContents) string {
	switch r := resource.(type) {
	case mcp.TextResourceContents:
		return r.Text
	case *mcp.TextResourceContents:
		return r.Text
	case mcp.BlobResourceContents:
		return fmt.Sprintf("[Binary data: %s]", r.MIMEType)
	case *mcp.BlobResourceContents:
		return fmt.Sprintf("[Binary data: %s]", r.MIMEType)
	default:
		if jsonBytes, err := json.Marshal(resource); err == nil {
			return string(jsonBytes)
		}
		return fmt.Sprintf("[Unknown resource type: %T]", resource)
	}
}
