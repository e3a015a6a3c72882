package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/droverhq/drover/internal/tool"
)

// ToolAdapter bridges an MCP server tool to the tool.Tool interface, making
// it indistinguishable from native built-in tools to the agent runtime.
//
// Naming convention: mcp_<serverName>__<toolName> (double underscore
// separator). The double underscore cannot appear within a valid server or
// tool name and prevents collisions when either contains single underscores.
type ToolAdapter struct {
	serverName string
	info       ToolInfo
	client     *Client
}

// NewToolAdapter creates an adapter for a single MCP tool.
func NewToolAdapter(serverName string, info ToolInfo, client *Client) *ToolAdapter {
	return &ToolAdapter{
		serverName: serverName,
		info:       info,
		client:     client,
	}
}

// Name returns the fully-qualified tool name: mcp_<server>__<tool>.
func (a *ToolAdapter) Name() string {
	return fmt.Sprintf("mcp_%s__%s", a.serverName, a.info.Name)
}

// Description returns the tool description from the MCP server.
func (a *ToolAdapter) Description() string {
	return a.info.Description
}

// InputSchema returns the JSON Schema provided by the MCP server.
func (a *ToolAdapter) InputSchema() json.RawMessage {
	if len(a.info.InputSchema) == 0 {
		return tool.BuildSchema()
	}
	return a.info.InputSchema
}

// Execute deserialises the JSON args and delegates to the MCP server.
// Infrastructure errors and MCP tool-level errors are both returned as a
// ToolResult.Error (nil Go error) so the run continues gracefully.
func (a *ToolAdapter) Execute(ctx context.Context, args json.RawMessage) (tool.ToolResult, error) {
	var params map[string]any

	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &params); err != nil {
			return tool.ToolResult{
				Error: fmt.Sprintf("mcp adapter: parse args for %q: %v", a.Name(), err),
			}, nil
		}
	}

	text, err := a.client.CallTool(ctx, a.info.Name, params)
	if err != nil {
		return tool.ToolResult{Error: err.Error()}, nil
	}
	return tool.ToolResult{Output: text}, nil
}

// Init satisfies the tool.Tool interface. MCP connections are managed by the
// Manager; individual adapters have no additional initialisation.
func (a *ToolAdapter) Init(_ context.Context) error {
	return nil
}

// Close satisfies the tool.Tool interface. Connection lifecycle is managed by
// the Manager; adapters do not close the shared client.
func (a *ToolAdapter) Close() error {
	return nil
}
