// Package mcpserver exposes the analyzer toolset over the Model Context
// Protocol, on stdio or streamable HTTP. It is a thin translation layer; all
// tool behavior lives in the toolset.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docker/ramcp/pkg/tools"
	"github.com/docker/ramcp/pkg/version"
)

// Toolset is anything that can enumerate tools, in practice the analyzer
// toolset.
type Toolset interface {
	Tools() []tools.Tool
}

// New builds an MCP server serving the toolset's tools.
func New(toolset Toolset, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ramcp",
		Version: version.Version,
	}, nil)

	for _, tool := range toolset.Tools() {
		def := &mcp.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Annotations: &mcp.ToolAnnotations{
				Title:        tool.Title,
				ReadOnlyHint: tool.ReadOnly,
			},
			InputSchema: tool.InputSchema,
		}
		mcp.AddTool(server, def, toolHandler(tool, logger))
	}

	return server
}

// toolHandler adapts a tool to the SDK's handler signature. Arguments stay
// raw JSON; the schema in the tool definition is authoritative and the tool's
// own handler does the decoding.
func toolHandler(tool tools.Tool, logger *slog.Logger) mcp.ToolHandlerFor[json.RawMessage, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args json.RawMessage) (*mcp.CallToolResult, any, error) {
		logger.Debug("tool called", "tool", tool.Name)

		result, err := tool.Handler(ctx, args)
		if err != nil {
			logger.Error("tool failed", "tool", tool.Name, "error", err)
			return nil, nil, err
		}
		if result.IsError {
			logger.Debug("tool returned error result", "tool", tool.Name, "output", result.Output)
		}
		return toCallToolResult(result), nil, nil
	}
}

func toCallToolResult(result *tools.ToolCallResult) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: result.Output}},
		IsError: result.IsError,
	}
}

// RunStdio serves MCP on stdin/stdout until ctx is canceled or the client
// disconnects.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

// RunHTTP serves MCP over streamable HTTP on the listener.
func RunHTTP(ctx context.Context, server *mcp.Server, ln net.Listener) error {
	httpServer := &http.Server{
		Handler: mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return server
		}, nil),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return httpServer.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
