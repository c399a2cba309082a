package analyzer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/ramcp/pkg/lsp"
)

// fakeClient scripts LSP responses per method, recording what the toolset
// sent.
type fakeClient struct {
	t    *testing.T
	root string

	store     *lsp.DiagnosticStore
	responses map[string]json.RawMessage
	errs      map[string]error

	calls    []recordedCall
	opened   []string
	resynced []string
}

type recordedCall struct {
	method string
	params json.RawMessage
}

func newFakeClient(t *testing.T) *fakeClient {
	return &fakeClient{
		t:         t,
		root:      t.TempDir(),
		store:     lsp.NewDiagnosticStore(),
		responses: make(map[string]json.RawMessage),
		errs:      make(map[string]error),
	}
}

func (f *fakeClient) Call(_ context.Context, method string, params any, _ time.Duration) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	require.NoError(f.t, err)
	f.calls = append(f.calls, recordedCall{method: method, params: raw})

	if err := f.errs[method]; err != nil {
		return nil, err
	}
	if resp, ok := f.responses[method]; ok {
		return resp, nil
	}
	return json.RawMessage("null"), nil
}

func (f *fakeClient) Notify(context.Context, string, any) error { return nil }

func (f *fakeClient) EnsureOpen(_ context.Context, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return false, &lsp.FileAccessError{Path: path, Err: err}
	}
	first := true
	for _, p := range f.opened {
		if p == path {
			first = false
		}
	}
	f.opened = append(f.opened, path)
	return first, nil
}

func (f *fakeClient) Resync(_ context.Context, path string) error {
	f.resynced = append(f.resynced, path)
	return nil
}

func (f *fakeClient) Diagnostics() *lsp.DiagnosticStore { return f.store }
func (f *fakeClient) Capabilities() json.RawMessage {
	return json.RawMessage(`{"hoverProvider":true,"renameProvider":{"prepareProvider":true},"definitionProvider":false}`)
}
func (f *fakeClient) ServerInfo() *lsp.ServerInfo {
	return &lsp.ServerInfo{Name: "rust-analyzer", Version: "2026-02-02"}
}
func (f *fakeClient) WorkspaceRoot() string { return f.root }

func (f *fakeClient) lastCall() recordedCall {
	require.NotEmpty(f.t, f.calls)
	return f.calls[len(f.calls)-1]
}

func (f *fakeClient) sourceFile(name, content string) string {
	path := filepath.Join(f.root, name)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestHover_FormatsMarkup(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() {}\n")
	f.responses["textDocument/hover"] = json.RawMessage(`{"contents":{"kind":"markdown","value":"fn main()"}}`)

	ts := New(f)
	result, err := ts.hover(context.Background(), PositionArgs{File: path, Line: 0, Column: 3})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "fn main()", result.Output)

	call := f.lastCall()
	assert.Equal(t, "textDocument/hover", call.method)
	assert.Contains(t, string(call.params), `"line":0`)
	assert.Contains(t, string(call.params), lsp.PathToURI(path))
}

func TestHover_NullResult(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() {}\n")

	result, err := New(f).hover(context.Background(), PositionArgs{File: path})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "No information available at this position", result.Output)
}

func TestHover_RelativePathResolvedAgainstWorkspace(t *testing.T) {
	f := newFakeClient(t)
	f.sourceFile("src/lib.rs", "pub fn f() {}\n")

	_, err := New(f).hover(context.Background(), PositionArgs{File: "src/lib.rs"})
	require.NoError(t, err)
	assert.Contains(t, string(f.lastCall().params), lsp.PathToURI(filepath.Join(f.root, "src/lib.rs")))
}

func TestValidation_NegativePosition(t *testing.T) {
	f := newFakeClient(t)

	result, err := New(f).hover(context.Background(), PositionArgs{File: "src/main.rs", Line: -1})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "invalid arguments")
	assert.Empty(t, f.calls, "nothing must reach the server")
}

func TestValidation_EmptyFile(t *testing.T) {
	f := newFakeClient(t)

	result, err := New(f).hover(context.Background(), PositionArgs{File: ""})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "file")
}

func TestRename_RejectsBadIdentifier(t *testing.T) {
	f := newFakeClient(t)
	ts := New(f)

	for _, name := range []string{"", "123abc", "has space", "has-dash", "r#"} {
		result, err := ts.rename(context.Background(), RenameArgs{
			PositionArgs: PositionArgs{File: "src/main.rs"},
			NewName:      name,
		})
		require.NoError(t, err)
		assert.True(t, result.IsError, "name %q must be rejected", name)
	}
	assert.Empty(t, f.calls)
}

func TestRename_AcceptsRawIdentifier(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn old_name() {}\nfn caller() { old_name(); }\n")
	f.responses["textDocument/rename"] = mustJSON(t, lsp.WorkspaceEdit{
		Changes: map[string][]lsp.TextEdit{
			lsp.PathToURI(path): {
				{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 3}, End: lsp.Position{Line: 0, Character: 11}}, NewText: "r#type"},
				{Range: lsp.Range{Start: lsp.Position{Line: 1, Character: 14}, End: lsp.Position{Line: 1, Character: 22}}, NewText: "r#type"},
			},
		},
	})

	result, err := New(f).rename(context.Background(), RenameArgs{
		PositionArgs: PositionArgs{File: path, Line: 0, Column: 3},
		NewName:      "r#type",
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Output, `Renamed to "r#type"`)
	assert.Contains(t, result.Output, "Modified 1 file(s)")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fn r#type() {}\nfn caller() { r#type(); }\n", string(content))
	assert.Equal(t, []string{path}, f.resynced)
}

func TestRename_NullMeansNotRenameable(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() {}\n")

	result, err := New(f).rename(context.Background(), RenameArgs{
		PositionArgs: PositionArgs{File: path},
		NewName:      "better_name",
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestDiagnostics_ReadFromStore(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() { x; }\n")
	f.store.Publish(lsp.PathToURI(path), []lsp.Diagnostic{
		{
			Range:    lsp.Range{Start: lsp.Position{Line: 0, Character: 12}},
			Severity: lsp.SeverityError,
			Source:   "rustc",
			Message:  "cannot find value `x` in this scope",
		},
	})

	result, err := New(f).diagnostics(context.Background(), FileArgs{File: path})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "[error] line 0")
	assert.Contains(t, result.Output, "cannot find value")
	assert.Contains(t, result.Output, "(rustc)")
	assert.Empty(t, f.calls, "diagnostics are served from the push store")
}

func TestDiagnostics_CleanFile(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() {}\n")
	f.store.Publish(lsp.PathToURI(path), nil)

	result, err := New(f).diagnostics(context.Background(), FileArgs{File: path})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "No diagnostics for")
}

func TestGotoDefinition_LocationLinks(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() {}\n")
	f.responses["textDocument/definition"] = json.RawMessage(
		`[{"targetUri":"file:///work/src/lib.rs","targetRange":{"start":{"line":9,"character":0},"end":{"line":12,"character":1}},"targetSelectionRange":{"start":{"line":9,"character":3},"end":{"line":9,"character":8}}}]`)

	result, err := New(f).gotoDefinition(context.Background(), PositionArgs{File: path, Line: 0, Column: 3})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "/work/src/lib.rs:9:3")
}

func TestFindReferences_IncludesDeclarationByDefault(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() {}\n")

	_, err := New(f).findReferences(context.Background(), ReferencesArgs{PositionArgs: PositionArgs{File: path}})
	require.NoError(t, err)
	assert.Contains(t, string(f.lastCall().params), `"includeDeclaration":true`)

	exclude := false
	_, err = New(f).findReferences(context.Background(), ReferencesArgs{
		PositionArgs:       PositionArgs{File: path},
		IncludeDeclaration: &exclude,
	})
	require.NoError(t, err)
	assert.Contains(t, string(f.lastCall().params), `"includeDeclaration":false`)
}

func TestCompletion_CapsItems(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() {}\n")

	items := make([]lsp.CompletionItem, 25)
	for i := range items {
		items[i] = lsp.CompletionItem{Label: "item", Detail: "fn()"}
	}
	f.responses["textDocument/completion"] = mustJSON(t, lsp.CompletionList{Items: items})

	result, err := New(f).completion(context.Background(), PositionArgs{File: path})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "Completions (10 of 25):")
}

func TestFormat_AppliesEditsAndResyncs(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main( ) {}\n")
	f.responses["textDocument/formatting"] = mustJSON(t, []lsp.TextEdit{
		{Range: lsp.Range{Start: lsp.Position{Line: 0, Character: 8}, End: lsp.Position{Line: 0, Character: 10}}, NewText: ")"},
	})

	result, err := New(f).format(context.Background(), FileArgs{File: path})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Output, "Applied 1 formatting change(s)")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}\n", string(content))
	assert.Equal(t, []string{path}, f.resynced)
}

func TestCodeActions_PassesRangeDiagnostics(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "use std::fmt;\nfn main() { x; }\n")
	uri := lsp.PathToURI(path)
	f.store.Publish(uri, []lsp.Diagnostic{
		{Range: lsp.Range{Start: lsp.Position{Line: 0}}, Message: "unused import"},
		{Range: lsp.Range{Start: lsp.Position{Line: 1}}, Message: "cannot find value `x`"},
	})
	f.responses["textDocument/codeAction"] = json.RawMessage(
		`[{"title":"Remove unused import","kind":"quickfix","isPreferred":true}]`)

	result, err := New(f).codeActions(context.Background(), CodeActionsArgs{File: path, StartLine: 0})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "1. [quickfix] Remove unused import (preferred)")

	// Only the line-0 diagnostic is in range.
	params := string(f.lastCall().params)
	assert.Contains(t, params, "unused import")
	assert.NotContains(t, params, "cannot find value")
}

func TestExpandMacro(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() { println!(\"hi\"); }\n")
	f.responses["rust-analyzer/expandMacro"] = json.RawMessage(
		`{"name":"println","expansion":"{ $crate::io::_print(format_args!(\"hi\\n\")); }"}`)

	result, err := New(f).expandMacro(context.Background(), PositionArgs{File: path, Line: 0, Column: 12})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "Expansion of println:")
	assert.Contains(t, result.Output, "_print")

	call := f.lastCall()
	assert.Equal(t, "rust-analyzer/expandMacro", call.method)
}

func TestExpandMacro_Null(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() {}\n")

	result, err := New(f).expandMacro(context.Background(), PositionArgs{File: path})
	require.NoError(t, err)
	assert.Equal(t, "No macro to expand at this position", result.Output)
}

func TestWorkspace_SummarizesCapabilities(t *testing.T) {
	f := newFakeClient(t)

	result, err := New(f).workspace(context.Background(), WorkspaceArgs{})
	require.NoError(t, err)
	assert.Contains(t, result.Output, "Root: "+f.root)
	assert.Contains(t, result.Output, "Server: rust-analyzer 2026-02-02")
	assert.Contains(t, result.Output, "Hover: Yes")
	assert.Contains(t, result.Output, "Rename: Yes")
	assert.Contains(t, result.Output, "Go to Definition: No")
}

func TestErrors_SurfaceAsToolErrors(t *testing.T) {
	f := newFakeClient(t)
	path := f.sourceFile("src/main.rs", "fn main() {}\n")

	f.errs["textDocument/hover"] = &lsp.TimeoutError{Method: "textDocument/hover", Timeout: time.Second}
	result, err := New(f).hover(context.Background(), PositionArgs{File: path})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "timeout:")

	f.errs["textDocument/hover"] = &lsp.ProtocolError{Method: "textDocument/hover", Code: -32603, Message: "panicked"}
	result, err = New(f).hover(context.Background(), PositionArgs{File: path})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "analyzer error:")

	f.errs["textDocument/hover"] = lsp.ErrProcessTerminated
	result, err = New(f).hover(context.Background(), PositionArgs{File: path})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "analyzer unavailable:")
}

func TestTools_Table(t *testing.T) {
	ts := New(newFakeClient(t))
	all := ts.Tools()

	names := make(map[string]bool, len(all))
	for _, tool := range all {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description, "tool %s", tool.Name)
		assert.NotNil(t, tool.InputSchema, "tool %s", tool.Name)
		assert.NotNil(t, tool.Handler, "tool %s", tool.Name)
	}

	for _, name := range []string{
		"workspace", "hover", "completion", "diagnostics", "goto_definition",
		"find_references", "document_symbols", "workspace_symbols",
		"signature_help", "format", "rename", "code_actions", "inlay_hints",
		"expand_macro",
	} {
		assert.True(t, names[name], "missing tool %s", name)
	}

	for _, tool := range all {
		switch tool.Name {
		case "format", "rename":
			assert.False(t, tool.ReadOnly, "tool %s", tool.Name)
		default:
			assert.True(t, tool.ReadOnly, "tool %s", tool.Name)
		}
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
