// Package mcpserver exposes the Tool Registry and Engine over the Model
// Context Protocol using github.com/mark3labs/mcp-go's server package:
// tools/list returns every built-in, workflow-backed ("workflow:<name>"),
// and federated MCP-backend tool; tools/call dispatches through the Tool
// Invoker.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ploston/dael/tools"
)

// Server fronts a Registry+Invoker pair with an MCP server.
type Server struct {
	mcp      *server.MCPServer
	registry *tools.Registry
	invoker  *tools.Invoker
}

// New builds a Server. Call Refresh before ServeStdio, and again whenever the
// Workflow Registry hot-reloads, to keep tools/list current.
func New(name, version string, registry *tools.Registry, invoker *tools.Invoker) *Server {
	return &Server{
		mcp:      server.NewMCPServer(name, version),
		registry: registry,
		invoker:  invoker,
	}
}

// Refresh registers every tool currently in the registry with the
// underlying MCP server, replacing any earlier registration of the same
// name. Tools registered by an earlier Refresh that are no longer in the
// registry are not removed.
func (s *Server) Refresh() error {
	for _, d := range s.registry.List() {
		schema, err := json.Marshal(d.Schema)
		if err != nil {
			return fmt.Errorf("marshaling schema for tool %q: %w", d.Name, err)
		}
		tool := mcp.NewToolWithRawSchema(d.Name, d.Description, schema)
		s.mcp.AddTool(tool, s.handlerFor(d.Name))
	}
	return nil
}

func (s *Server) handlerFor(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := request.GetArguments()
		result, err := s.invoker.Invoke(ctx, name, params, 0)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("result is not JSON-serializable: %v", err)), nil
		}
		return mcp.NewToolResultText(string(encoded)), nil
	}
}

// ServeStdio runs the MCP server over stdin/stdout until server.ServeStdio
// returns. ctx is not passed on, so canceling it does not stop the server.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}
