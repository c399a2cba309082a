package analyzer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/docker/ramcp/pkg/lsp"
	"github.com/docker/ramcp/pkg/tools"
)

// applyWorkspaceEdit writes a WorkspaceEdit to disk and re-synchronizes
// every touched file, then summarizes what changed.
func (t *Toolset) applyWorkspaceEdit(ctx context.Context, edit *lsp.WorkspaceEdit, newName string) *tools.ToolCallResult {
	fileChangeCounts := make(map[string]int)
	var modifiedFiles []string

	apply := func(uri string, edits []lsp.TextEdit) *tools.ToolCallResult {
		path := lsp.URIToPath(uri)
		if err := applyTextEditsToFile(path, edits); err != nil {
			return errorResult(err)
		}
		fileChangeCounts[path] = len(edits)
		modifiedFiles = append(modifiedFiles, path)
		return nil
	}

	for _, docEdit := range edit.DocumentChanges {
		if result := apply(docEdit.TextDocument.URI, docEdit.Edits); result != nil {
			return result
		}
	}
	for uri, edits := range edit.Changes {
		if result := apply(uri, edits); result != nil {
			return result
		}
	}

	if len(modifiedFiles) == 0 {
		return tools.Success("No changes were needed")
	}

	sort.Strings(modifiedFiles)
	for _, path := range modifiedFiles {
		if err := t.client.Resync(ctx, path); err != nil {
			t.logger.Debug("re-syncing renamed file failed", "path", path, "error", err)
		}
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Renamed to %q\n", newName)
	fmt.Fprintf(&result, "Modified %d file(s):\n", len(modifiedFiles))
	for _, path := range modifiedFiles {
		fmt.Fprintf(&result, "- %s (%d change(s))\n", path, fileChangeCounts[path])
	}
	return tools.Success("%s", result.String())
}

// applyTextEditsToFile applies edits to a file, writing the result back
// atomically so a crash mid-write never leaves a truncated source file.
func applyTextEditsToFile(path string, edits []lsp.TextEdit) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return &lsp.FileAccessError{Path: path, Err: err}
	}

	lines := strings.Split(string(content), "\n")

	// Apply bottom-up so earlier edits don't shift later ranges.
	sorted := make([]lsp.TextEdit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Range.Start.Line != sorted[j].Range.Start.Line {
			return sorted[i].Range.Start.Line > sorted[j].Range.Start.Line
		}
		return sorted[i].Range.Start.Character > sorted[j].Range.Start.Character
	})
	for _, edit := range sorted {
		lines = applyTextEdit(lines, edit)
	}

	updated := strings.Join(lines, "\n")
	if err := atomic.WriteFile(path, strings.NewReader(updated)); err != nil {
		return &lsp.FileAccessError{Path: path, Err: err}
	}
	return nil
}

func applyTextEdit(lines []string, edit lsp.TextEdit) []string {
	startLine := edit.Range.Start.Line
	endLine := edit.Range.End.Line

	if startLine >= len(lines) {
		return lines
	}
	var endChar int
	if endLine >= len(lines) {
		endLine = len(lines) - 1
		endChar = len(lines[endLine])
	} else {
		endChar = byteOffset(lines[endLine], edit.Range.End.Character)
	}
	startChar := byteOffset(lines[startLine], edit.Range.Start.Character)

	prefix := lines[startLine][:startChar]
	suffix := lines[endLine][endChar:]
	newLines := strings.Split(prefix+edit.NewText+suffix, "\n")

	result := make([]string, 0, len(lines)-(endLine-startLine)+len(newLines)-1)
	result = append(result, lines[:startLine]...)
	result = append(result, newLines...)
	if endLine+1 < len(lines) {
		result = append(result, lines[endLine+1:]...)
	}
	return result
}

// byteOffset converts a UTF-16 code unit offset, which is what LSP positions
// count, into a byte offset within line. Offsets past the end of the line
// clamp to its length.
func byteOffset(line string, utf16Offset int) int {
	units := 0
	for i, r := range line {
		if units >= utf16Offset {
			return i
		}
		units++
		if r > 0xFFFF {
			units++
		}
	}
	return len(line)
}
