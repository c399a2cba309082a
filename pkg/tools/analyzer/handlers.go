package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/docker/ramcp/pkg/lsp"
	"github.com/docker/ramcp/pkg/tools"
)

const maxCompletionItems = 10

// diagnosticsSettleTimeout is how long the diagnostics tool waits for the
// analyzer's first publish after a file is newly opened.
const diagnosticsSettleTimeout = 2 * time.Second

var identRe = regexp.MustCompile(`^(r#)?[A-Za-z_][A-Za-z0-9_]*$`)

func (t *Toolset) resolvePath(file string) (string, error) {
	if file == "" {
		return "", &lsp.ValidationError{Field: "file", Reason: "must not be empty"}
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(t.client.WorkspaceRoot(), file)
	}
	return filepath.Clean(file), nil
}

func validatePosition(line, column int) error {
	if line < 0 {
		return &lsp.ValidationError{Field: "line", Reason: "must be zero or greater"}
	}
	if column < 0 {
		return &lsp.ValidationError{Field: "column", Reason: "must be zero or greater"}
	}
	return nil
}

// prepare resolves the file argument and synchronizes the document before a
// request that targets it.
func (t *Toolset) prepare(ctx context.Context, file string) (path, uri string, firstOpen bool, err error) {
	path, err = t.resolvePath(file)
	if err != nil {
		return "", "", false, err
	}
	firstOpen, err = t.client.EnsureOpen(ctx, path)
	if err != nil {
		return "", "", false, err
	}
	return path, lsp.PathToURI(path), firstOpen, nil
}

// errorResult renders an operation failure as a tool error, prefixed with
// the failure kind so callers can tell a timeout from a dead server.
func errorResult(err error) *tools.ToolCallResult {
	var (
		ve *lsp.ValidationError
		fe *lsp.FileAccessError
		te *lsp.TimeoutError
		pe *lsp.ProtocolError
		se *lsp.StartupError
	)
	switch {
	case errors.As(err, &ve):
		return tools.Errorf("invalid arguments: %s", err)
	case errors.As(err, &fe):
		return tools.Errorf("file access error: %s", err)
	case errors.As(err, &te):
		return tools.Errorf("timeout: %s", err)
	case errors.As(err, &pe):
		return tools.Errorf("analyzer error: %s", err)
	case errors.Is(err, lsp.ErrProcessTerminated):
		return tools.Errorf("analyzer unavailable: %s", err)
	case errors.As(err, &se):
		return tools.Errorf("analyzer startup failed: %s", err)
	default:
		return tools.Errorf("%s", err)
	}
}

func (t *Toolset) workspace(_ context.Context, _ WorkspaceArgs) (*tools.ToolCallResult, error) {
	var result strings.Builder
	result.WriteString("Workspace Information:\n")
	fmt.Fprintf(&result, "- Root: %s\n", t.client.WorkspaceRoot())
	if info := t.client.ServerInfo(); info != nil && info.Name != "" {
		server := info.Name
		if info.Version != "" {
			server += " " + info.Version
		}
		fmt.Fprintf(&result, "- Server: %s\n", server)
	}

	result.WriteString("\nAvailable Capabilities:\n")
	var caps serverCapabilities
	if raw := t.client.Capabilities(); len(raw) > 0 && json.Unmarshal(raw, &caps) == nil {
		fmt.Fprintf(&result, "- Hover: %s\n", capabilityStatus(caps.HoverProvider))
		fmt.Fprintf(&result, "- Completion: %s\n", capabilityStatus(caps.CompletionProvider))
		fmt.Fprintf(&result, "- Go to Definition: %s\n", capabilityStatus(caps.DefinitionProvider))
		fmt.Fprintf(&result, "- Find References: %s\n", capabilityStatus(caps.ReferencesProvider))
		fmt.Fprintf(&result, "- Document Symbols: %s\n", capabilityStatus(caps.DocumentSymbolProvider))
		fmt.Fprintf(&result, "- Workspace Symbols: %s\n", capabilityStatus(caps.WorkspaceSymbolProvider))
		fmt.Fprintf(&result, "- Signature Help: %s\n", capabilityStatus(caps.SignatureHelpProvider))
		fmt.Fprintf(&result, "- Formatting: %s\n", capabilityStatus(caps.DocumentFormattingProvider))
		fmt.Fprintf(&result, "- Rename: %s\n", capabilityStatus(caps.RenameProvider))
		fmt.Fprintf(&result, "- Code Actions: %s\n", capabilityStatus(caps.CodeActionProvider))
		fmt.Fprintf(&result, "- Inlay Hints: %s\n", capabilityStatus(caps.InlayHintProvider))
	} else {
		result.WriteString("- (capabilities not available)\n")
	}

	return tools.Success("%s", result.String()), nil
}

type serverCapabilities struct {
	HoverProvider              any `json:"hoverProvider"`
	CompletionProvider         any `json:"completionProvider"`
	DefinitionProvider         any `json:"definitionProvider"`
	ReferencesProvider         any `json:"referencesProvider"`
	DocumentSymbolProvider     any `json:"documentSymbolProvider"`
	WorkspaceSymbolProvider    any `json:"workspaceSymbolProvider"`
	SignatureHelpProvider      any `json:"signatureHelpProvider"`
	DocumentFormattingProvider any `json:"documentFormattingProvider"`
	RenameProvider             any `json:"renameProvider"`
	CodeActionProvider         any `json:"codeActionProvider"`
	InlayHintProvider          any `json:"inlayHintProvider"`
}

// capabilityStatus maps a capability value to Yes or No. A non-bool, non-nil
// value is an options object, which means the capability is on.
func capabilityStatus(capability any) string {
	switch v := capability.(type) {
	case nil:
		return "No"
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	default:
		return "Yes"
	}
}

func (t *Toolset) hover(ctx context.Context, args PositionArgs) (*tools.ToolCallResult, error) {
	if err := validatePosition(args.Line, args.Column); err != nil {
		return errorResult(err), nil
	}
	_, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	params := lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Position:     lsp.Position{Line: args.Line, Character: args.Column},
	}
	result, err := t.client.Call(ctx, "textDocument/hover", params, t.interactiveTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) {
		return tools.Success("No information available at this position"), nil
	}

	var hover lsp.Hover
	if err := json.Unmarshal(result, &hover); err != nil {
		return tools.Success("%s", string(result)), nil
	}
	return tools.Success("%s", formatHoverContents(hover.Contents)), nil
}

func (t *Toolset) completion(ctx context.Context, args PositionArgs) (*tools.ToolCallResult, error) {
	if err := validatePosition(args.Line, args.Column); err != nil {
		return errorResult(err), nil
	}
	_, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	params := lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Position:     lsp.Position{Line: args.Line, Character: args.Column},
	}
	result, err := t.client.Call(ctx, "textDocument/completion", params, t.interactiveTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) {
		return tools.Success("No completions available at this position"), nil
	}

	items := parseCompletionItems(result)
	if len(items) == 0 {
		return tools.Success("No completions available at this position"), nil
	}
	return tools.Success("%s", formatCompletions(items, maxCompletionItems)), nil
}

func (t *Toolset) diagnostics(ctx context.Context, args FileArgs) (*tools.ToolCallResult, error) {
	store := t.client.Diagnostics()
	since := store.Seq()

	path, uri, firstOpen, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	// Diagnostics are pushed, not pulled. Give the analyzer a moment to
	// publish for a file it has only just seen.
	if firstOpen {
		store.Wait(ctx, since, diagnosticsSettleTimeout)
	}

	diags := store.Get(uri)
	if len(diags) == 0 {
		return tools.Success("No diagnostics for %s", path), nil
	}
	return tools.Success("%s", formatDiagnostics(path, diags)), nil
}

func (t *Toolset) gotoDefinition(ctx context.Context, args PositionArgs) (*tools.ToolCallResult, error) {
	if err := validatePosition(args.Line, args.Column); err != nil {
		return errorResult(err), nil
	}
	_, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	params := lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Position:     lsp.Position{Line: args.Line, Character: args.Column},
	}
	result, err := t.client.Call(ctx, "textDocument/definition", params, t.interactiveTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) || isEmptyArray(result) {
		return tools.Success("No definition found at this position"), nil
	}
	return tools.Success("%s", formatLocations(result)), nil
}

func (t *Toolset) findReferences(ctx context.Context, args ReferencesArgs) (*tools.ToolCallResult, error) {
	if err := validatePosition(args.Line, args.Column); err != nil {
		return errorResult(err), nil
	}
	_, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	includeDeclaration := args.IncludeDeclaration == nil || *args.IncludeDeclaration
	params := lsp.ReferenceParams{
		TextDocumentPositionParams: lsp.TextDocumentPositionParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: uri},
			Position:     lsp.Position{Line: args.Line, Character: args.Column},
		},
		Context: lsp.ReferenceContext{IncludeDeclaration: includeDeclaration},
	}
	result, err := t.client.Call(ctx, "textDocument/references", params, t.interactiveTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) || isEmptyArray(result) {
		return tools.Success("No references found"), nil
	}
	return tools.Success("%s", formatLocations(result)), nil
}

func (t *Toolset) documentSymbols(ctx context.Context, args FileArgs) (*tools.ToolCallResult, error) {
	_, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	params := lsp.DocumentSymbolParams{TextDocument: lsp.TextDocumentIdentifier{URI: uri}}
	result, err := t.client.Call(ctx, "textDocument/documentSymbol", params, t.interactiveTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) || isEmptyArray(result) {
		return tools.Success("No symbols found in file"), nil
	}
	return tools.Success("%s", formatSymbols(result)), nil
}

func (t *Toolset) workspaceSymbols(ctx context.Context, args WorkspaceSymbolsArgs) (*tools.ToolCallResult, error) {
	result, err := t.client.Call(ctx, "workspace/symbol", lsp.WorkspaceSymbolParams{Query: args.Query}, t.workspaceTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) || isEmptyArray(result) {
		if args.Query == "" {
			return tools.Success("No symbols found in workspace"), nil
		}
		return tools.Success("No symbols found matching %q", args.Query), nil
	}
	return tools.Success("%s", formatSymbols(result)), nil
}

func (t *Toolset) signatureHelp(ctx context.Context, args PositionArgs) (*tools.ToolCallResult, error) {
	if err := validatePosition(args.Line, args.Column); err != nil {
		return errorResult(err), nil
	}
	_, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	params := lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Position:     lsp.Position{Line: args.Line, Character: args.Column},
	}
	result, err := t.client.Call(ctx, "textDocument/signatureHelp", params, t.interactiveTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) {
		return tools.Success("No signature help available at this position"), nil
	}

	var help lsp.SignatureHelp
	if err := json.Unmarshal(result, &help); err != nil {
		return tools.Success("%s", string(result)), nil
	}
	return tools.Success("%s", formatSignatureHelp(help)), nil
}

func (t *Toolset) format(ctx context.Context, args FileArgs) (*tools.ToolCallResult, error) {
	path, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	params := lsp.DocumentFormattingParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Options:      lsp.FormattingOptions{TabSize: 4, InsertSpaces: true},
	}
	result, err := t.client.Call(ctx, "textDocument/formatting", params, t.workspaceTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) || isEmptyArray(result) {
		return tools.Success("No formatting changes needed for %s", path), nil
	}

	var edits []lsp.TextEdit
	if err := json.Unmarshal(result, &edits); err != nil {
		return errorResult(fmt.Errorf("parsing format result: %w", err)), nil
	}
	if len(edits) == 0 {
		return tools.Success("No formatting changes needed for %s", path), nil
	}

	if err := applyTextEditsToFile(path, edits); err != nil {
		return errorResult(err), nil
	}
	if err := t.client.Resync(ctx, path); err != nil {
		t.logger.Debug("re-syncing formatted file failed", "path", path, "error", err)
	}

	return tools.Success("Formatted %s\nApplied %d formatting change(s)", path, len(edits)), nil
}

func (t *Toolset) rename(ctx context.Context, args RenameArgs) (*tools.ToolCallResult, error) {
	if err := validatePosition(args.Line, args.Column); err != nil {
		return errorResult(err), nil
	}
	if !identRe.MatchString(args.NewName) {
		return errorResult(&lsp.ValidationError{Field: "new_name", Reason: "must be a valid identifier"}), nil
	}
	_, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	params := lsp.RenameParams{
		TextDocumentPositionParams: lsp.TextDocumentPositionParams{
			TextDocument: lsp.TextDocumentIdentifier{URI: uri},
			Position:     lsp.Position{Line: args.Line, Character: args.Column},
		},
		NewName: args.NewName,
	}
	result, err := t.client.Call(ctx, "textDocument/rename", params, t.workspaceTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) {
		return tools.Errorf("Cannot rename the symbol at this position"), nil
	}

	var edit lsp.WorkspaceEdit
	if err := json.Unmarshal(result, &edit); err != nil {
		return errorResult(fmt.Errorf("parsing rename result: %w", err)), nil
	}
	return t.applyWorkspaceEdit(ctx, &edit, args.NewName), nil
}

func (t *Toolset) codeActions(ctx context.Context, args CodeActionsArgs) (*tools.ToolCallResult, error) {
	if err := validatePosition(args.StartLine, 0); err != nil {
		return errorResult(&lsp.ValidationError{Field: "start_line", Reason: "must be zero or greater"}), nil
	}
	path, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	endLine := args.StartLine
	if args.EndLine != nil {
		endLine = *args.EndLine
	}
	if endLine < args.StartLine {
		return errorResult(&lsp.ValidationError{Field: "end_line", Reason: "must not be before start_line"}), nil
	}

	// Current diagnostics overlapping the range go into the request context
	// so the analyzer offers fixes for them.
	var rangeDiags []lsp.Diagnostic
	for _, d := range t.client.Diagnostics().Get(uri) {
		if d.Range.Start.Line >= args.StartLine && d.Range.Start.Line <= endLine {
			rangeDiags = append(rangeDiags, d)
		}
	}
	if rangeDiags == nil {
		rangeDiags = []lsp.Diagnostic{}
	}

	params := lsp.CodeActionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Range: lsp.Range{
			Start: lsp.Position{Line: args.StartLine, Character: 0},
			End:   lsp.Position{Line: endLine, Character: 999999},
		},
		Context: lsp.CodeActionContext{Diagnostics: rangeDiags},
	}
	result, err := t.client.Call(ctx, "textDocument/codeAction", params, t.workspaceTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) || isEmptyArray(result) {
		return tools.Success("No code actions available for %s:%d", path, args.StartLine), nil
	}
	return tools.Success("%s", formatCodeActions(path, args.StartLine, result)), nil
}

func (t *Toolset) inlayHints(ctx context.Context, args InlayHintsArgs) (*tools.ToolCallResult, error) {
	path, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	startLine := 0
	if args.StartLine != nil {
		startLine = *args.StartLine
	}
	endLine := fileLineCount(path)
	if args.EndLine != nil {
		endLine = *args.EndLine
	}
	if startLine < 0 || endLine < startLine {
		return errorResult(&lsp.ValidationError{Field: "start_line", Reason: "range is out of order"}), nil
	}

	params := lsp.InlayHintParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Range: lsp.Range{
			Start: lsp.Position{Line: startLine, Character: 0},
			End:   lsp.Position{Line: endLine, Character: 999999},
		},
	}
	result, err := t.client.Call(ctx, "textDocument/inlayHint", params, t.interactiveTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) || isEmptyArray(result) {
		return tools.Success("No inlay hints for %s:%d-%d", path, startLine, endLine), nil
	}

	var hints []lsp.InlayHint
	if err := json.Unmarshal(result, &hints); err != nil {
		return tools.Success("%s", string(result)), nil
	}
	return tools.Success("%s", formatInlayHints(path, startLine, endLine, hints)), nil
}

func (t *Toolset) expandMacro(ctx context.Context, args PositionArgs) (*tools.ToolCallResult, error) {
	if err := validatePosition(args.Line, args.Column); err != nil {
		return errorResult(err), nil
	}
	_, uri, _, err := t.prepare(ctx, args.File)
	if err != nil {
		return errorResult(err), nil
	}

	params := lsp.ExpandMacroParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: uri},
		Position:     lsp.Position{Line: args.Line, Character: args.Column},
	}
	result, err := t.client.Call(ctx, "rust-analyzer/expandMacro", params, t.interactiveTimeout)
	if err != nil {
		return errorResult(err), nil
	}
	if isNull(result) {
		return tools.Success("No macro to expand at this position"), nil
	}

	var expanded lsp.ExpandedMacro
	if err := json.Unmarshal(result, &expanded); err != nil {
		return tools.Success("%s", string(result)), nil
	}
	return tools.Success("Expansion of %s:\n\n%s", expanded.Name, expanded.Expansion), nil
}

func isNull(result json.RawMessage) bool {
	return len(result) == 0 || string(result) == "null"
}

func isEmptyArray(result json.RawMessage) bool {
	return string(result) == "[]"
}

func fileLineCount(path string) int {
	content, err := os.ReadFile(path)
	if err != nil {
		return 100000
	}
	return strings.Count(string(content), "\n") + 1
}
