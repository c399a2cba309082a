// Package tools defines the tool model shared between the analyzer toolset
// and the MCP server layer: a tool descriptor with a generated JSON schema,
// and typed handlers over raw JSON arguments.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Tool describes one callable tool.
type Tool struct {
	Name        string
	Title       string
	Description string
	// ReadOnly marks tools that never modify the workspace.
	ReadOnly    bool
	InputSchema *jsonschema.Schema
	Handler     Handler
}

// Handler executes a tool call with its raw JSON arguments.
type Handler func(ctx context.Context, arguments json.RawMessage) (*ToolCallResult, error)

// ToolCallResult is the outcome of a tool call. IsError marks operation
// failures that should be reported to the caller as tool errors rather than
// protocol errors.
type ToolCallResult struct {
	Output  string
	IsError bool
}

// Success formats a successful result.
func Success(format string, args ...any) *ToolCallResult {
	return &ToolCallResult{Output: fmt.Sprintf(format, args...)}
}

// Errorf formats a failed result.
func Errorf(format string, args ...any) *ToolCallResult {
	return &ToolCallResult{Output: fmt.Sprintf(format, args...), IsError: true}
}

// NewHandler adapts a typed handler to the raw Handler signature.
func NewHandler[T any](fn func(ctx context.Context, params T) (*ToolCallResult, error)) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (*ToolCallResult, error) {
		var params T
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &params); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		return fn(ctx, params)
	}
}
