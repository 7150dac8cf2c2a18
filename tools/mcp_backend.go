package tools

import (
	"context"
	"encoding/json"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPBackend is an external tool source reached over the Model Context
// Protocol, via a stdio-spawned backend process.
type MCPBackend struct {
	id     string
	client *mcpclient.Client
}

// NewMCPBackend spawns command as an MCP server over stdio and initializes
// the protocol session. id is this backend's name in the registry's
// precedence chain and in tool Descriptor.Source.
func NewMCPBackend(ctx context.Context, id, command string, args, env []string) (*MCPBackend, error) {
	client, err := mcpclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("spawning MCP backend %q: %w", id, err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "dael", Version: "0.1.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("initializing MCP backend %q: %w", id, err)
	}
	return &MCPBackend{id: id, client: client}, nil
}

// ID returns the backend's configured name.
func (b *MCPBackend) ID() string { return b.id }

// Close tears down the backend's stdio session.
func (b *MCPBackend) Close() error { return b.client.Close() }

// ListTools asks the backend for its current tool set.
func (b *MCPBackend) ListTools(ctx context.Context) ([]Descriptor, error) {
	resp, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing tools from backend %q: %w", b.id, err)
	}
	out := make([]Descriptor, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		var schema map[string]any
		if raw, err := json.Marshal(t.InputSchema); err == nil {
			_ = json.Unmarshal(raw, &schema)
		}
		out = append(out, Descriptor{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schema,
			Source:      b.id,
		})
	}
	return out, nil
}

// CallTool invokes one tool on the backend and unwraps its result content
// into a plain Go value.
func (b *MCPBackend) CallTool(ctx context.Context, name string, params map[string]any) (any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = params
	resp, err := b.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("calling tool %q on backend %q: %w", name, b.id, err)
	}
	if resp.IsError {
		return nil, fmt.Errorf("tool %q on backend %q returned an error: %s", name, b.id, contentToString(resp.Content))
	}
	return contentToValue(resp.Content), nil
}

func contentToString(content []mcp.Content) string {
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func contentToValue(content []mcp.Content) any {
	if len(content) == 1 {
		if tc, ok := content[0].(mcp.TextContent); ok {
			var parsed any
			if err := json.Unmarshal([]byte(tc.Text), &parsed); err == nil {
				return parsed
			}
			return tc.Text
		}
	}
	parts := make([]any, 0, len(content))
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return parts
}
