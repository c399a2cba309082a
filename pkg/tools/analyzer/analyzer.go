// Package analyzer exposes rust-analyzer's language features as tools. Each
// tool validates its arguments, synchronizes the file it targets, performs
// one LSP request, and renders the result as text. Registration is a static
// table; adding a tool means adding a row.
package analyzer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/docker/ramcp/pkg/lsp"
	"github.com/docker/ramcp/pkg/tools"
)

const (
	// DefaultInteractiveTimeout bounds point queries like hover.
	DefaultInteractiveTimeout = 5 * time.Second
	// DefaultWorkspaceTimeout bounds whole-workspace operations like rename,
	// which may block on indexing.
	DefaultWorkspaceTimeout = 30 * time.Second
)

// LanguageClient is the part of the lsp client the toolset consumes.
type LanguageClient interface {
	Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	EnsureOpen(ctx context.Context, path string) (firstOpen bool, err error)
	Resync(ctx context.Context, path string) error
	Diagnostics() *lsp.DiagnosticStore
	Capabilities() json.RawMessage
	ServerInfo() *lsp.ServerInfo
	WorkspaceRoot() string
}

// Toolset translates tool calls into LSP requests against one client.
type Toolset struct {
	client LanguageClient
	logger *slog.Logger

	interactiveTimeout time.Duration
	workspaceTimeout   time.Duration
}

type Option func(*Toolset)

func WithInteractiveTimeout(d time.Duration) Option {
	return func(t *Toolset) {
		t.interactiveTimeout = d
	}
}

func WithWorkspaceTimeout(d time.Duration) Option {
	return func(t *Toolset) {
		t.workspaceTimeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Toolset) {
		t.logger = logger
	}
}

func New(client LanguageClient, opts ...Option) *Toolset {
	t := &Toolset{
		client:             client,
		logger:             slog.New(slog.DiscardHandler),
		interactiveTimeout: DefaultInteractiveTimeout,
		workspaceTimeout:   DefaultWorkspaceTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tool argument types. Lines and columns are zero-based, matching what the
// protocol itself uses; nothing is translated on the way through.

type WorkspaceArgs struct{}

type PositionArgs struct {
	File   string `json:"file" jsonschema:"path to the file, absolute or relative to the workspace root"`
	Line   int    `json:"line" jsonschema:"zero-based line number"`
	Column int    `json:"column" jsonschema:"zero-based column (UTF-16 code units)"`
}

type FileArgs struct {
	File string `json:"file" jsonschema:"path to the file, absolute or relative to the workspace root"`
}

type ReferencesArgs struct {
	PositionArgs
	IncludeDeclaration *bool `json:"include_declaration,omitempty" jsonschema:"include the declaration itself in the results (default true)"`
}

type WorkspaceSymbolsArgs struct {
	Query string `json:"query" jsonschema:"symbol name to search for, fuzzy matched; empty lists everything"`
}

type RenameArgs struct {
	PositionArgs
	NewName string `json:"new_name" jsonschema:"the new identifier, r# raw identifiers allowed"`
}

type CodeActionsArgs struct {
	File      string `json:"file" jsonschema:"path to the file, absolute or relative to the workspace root"`
	StartLine int    `json:"start_line" jsonschema:"zero-based first line of the range"`
	EndLine   *int   `json:"end_line,omitempty" jsonschema:"zero-based last line of the range (default start_line)"`
}

type InlayHintsArgs struct {
	File      string `json:"file" jsonschema:"path to the file, absolute or relative to the workspace root"`
	StartLine *int   `json:"start_line,omitempty" jsonschema:"zero-based first line (default 0)"`
	EndLine   *int   `json:"end_line,omitempty" jsonschema:"zero-based last line (default end of file)"`
}

// toolDef keeps a tool's metadata next to its handler for registration.
type toolDef struct {
	name        string
	title       string
	readOnly    bool
	description string
	params      *jsonschema.Schema
	handler     tools.Handler
}

// Tools returns the full toolset.
func (t *Toolset) Tools() []tools.Tool {
	defs := []toolDef{
		{
			name: "workspace", title: "Get Workspace Info", readOnly: true,
			params: tools.MustSchemaFor[WorkspaceArgs](), handler: tools.NewHandler(t.workspace),
			description: `Get information about the workspace and the analyzer's capabilities.

Use this at the start of a session to see the workspace root, the server
version, and which language features are available.

Takes no arguments.`,
		},
		{
			name: "hover", title: "Get Symbol Info", readOnly: true,
			params: tools.MustSchemaFor[PositionArgs](), handler: tools.NewHandler(t.hover),
			description: `Get type information and documentation for the symbol at a position.

Returns the type signature and rustdoc of the symbol under the cursor.
Lines and columns are zero-based.

Example: {"file": "src/main.rs", "line": 41, "column": 14}`,
		},
		{
			name: "completion", title: "Code Completion", readOnly: true,
			params: tools.MustSchemaFor[PositionArgs](), handler: tools.NewHandler(t.completion),
			description: `Get code completion suggestions at a position.

Returns the top completion candidates with their signatures. Lines and
columns are zero-based.

Example: {"file": "src/main.rs", "line": 41, "column": 14}`,
		},
		{
			name: "diagnostics", title: "Get Diagnostics", readOnly: true,
			params: tools.MustSchemaFor[FileArgs](), handler: tools.NewHandler(t.diagnostics),
			description: `Get compiler errors, warnings, and hints for a file.

Returns the diagnostics the analyzer has published for the file. Call this
after editing a file to check that the change is valid.

Output format:
  Diagnostics for src/main.rs:
  - [error] line 14: cannot find value 'x' in this scope (rustc)
  - [warning] line 2: unused import (rustc)

Example: {"file": "src/main.rs"}`,
		},
		{
			name: "goto_definition", title: "Go to Definition", readOnly: true,
			params: tools.MustSchemaFor[PositionArgs](), handler: tools.NewHandler(t.gotoDefinition),
			description: `Find where the symbol at a position is defined.

Returns file:line:column locations, zero-based. Works for functions, types,
traits, macros, and imports.

Example: {"file": "src/main.rs", "line": 41, "column": 14}`,
		},
		{
			name: "find_references", title: "Find References", readOnly: true,
			params: tools.MustSchemaFor[ReferencesArgs](), handler: tools.NewHandler(t.findReferences),
			description: `Find all references to the symbol at a position across the workspace.

Use this before modifying a symbol's definition to understand the impact.
Set include_declaration to false to exclude the definition itself.

Example: {"file": "src/main.rs", "line": 41, "column": 14}`,
		},
		{
			name: "document_symbols", title: "List File Symbols", readOnly: true,
			params: tools.MustSchemaFor[FileArgs](), handler: tools.NewHandler(t.documentSymbols),
			description: `List all symbols defined in a file as a hierarchy.

Returns functions, structs, enums, traits, impls, and constants with their
zero-based line numbers. Useful for getting an overview of a file.

Example: {"file": "src/lib.rs"}`,
		},
		{
			name: "workspace_symbols", title: "Search Workspace Symbols", readOnly: true,
			params: tools.MustSchemaFor[WorkspaceSymbolsArgs](), handler: tools.NewHandler(t.workspaceSymbols),
			description: `Search for symbols across the whole workspace.

Supports fuzzy matching; this is the primary way to locate a symbol without
knowing its file.

Example: {"query": "Handler"}`,
		},
		{
			name: "signature_help", title: "Signature Help", readOnly: true,
			params: tools.MustSchemaFor[PositionArgs](), handler: tools.NewHandler(t.signatureHelp),
			description: `Get the signature of the function being called at a position.

Position the cursor inside the parentheses of a call. The active parameter
is marked.

Example: {"file": "src/main.rs", "line": 41, "column": 25}`,
		},
		{
			name: "format", title: "Format File", readOnly: false,
			params: tools.MustSchemaFor[FileArgs](), handler: tools.NewHandler(t.format),
			description: `Format a file with rustfmt via the analyzer.

This is a WRITE operation: the formatted content is written back to disk
and the analyzer's view of the file is refreshed.

Example: {"file": "src/main.rs"}`,
		},
		{
			name: "rename", title: "Rename Symbol", readOnly: false,
			params: tools.MustSchemaFor[RenameArgs](), handler: tools.NewHandler(t.rename),
			description: `Rename the symbol at a position across the entire workspace.

This is a WRITE operation that modifies files on disk. new_name must be a
valid identifier (r#-prefixed raw identifiers are accepted). Run
diagnostics on the modified files afterwards.

Example: {"file": "src/main.rs", "line": 41, "column": 6, "new_name": "handle_data"}`,
		},
		{
			name: "code_actions", title: "Get Code Actions", readOnly: true,
			params: tools.MustSchemaFor[CodeActionsArgs](), handler: tools.NewHandler(t.codeActions),
			description: `List quick fixes and refactorings available for a line range.

Current diagnostics in the range are passed to the analyzer so that fixes
for reported errors show up. Lines are zero-based.

Example: {"file": "src/main.rs", "start_line": 41}`,
		},
		{
			name: "inlay_hints", title: "Inlay Hints", readOnly: true,
			params: tools.MustSchemaFor[InlayHintsArgs](), handler: tools.NewHandler(t.inlayHints),
			description: `Get inferred type annotations and parameter name hints for a range.

Defaults to the whole file. Lines are zero-based.

Example: {"file": "src/main.rs"}`,
		},
		{
			name: "expand_macro", title: "Expand Macro", readOnly: true,
			params: tools.MustSchemaFor[PositionArgs](), handler: tools.NewHandler(t.expandMacro),
			description: `Expand the macro invocation at a position.

Shows the code the macro expands to. This uses a rust-analyzer extension
and is not available with other language servers.

Example: {"file": "src/main.rs", "line": 41, "column": 4}`,
		},
	}

	result := make([]tools.Tool, len(defs))
	for i, def := range defs {
		result[i] = tools.Tool{
			Name:        def.name,
			Title:       def.title,
			Description: def.description,
			ReadOnly:    def.readOnly,
			InputSchema: def.params,
			Handler:     def.handler,
		}
	}
	return result
}
