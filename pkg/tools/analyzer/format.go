package analyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docker/ramcp/pkg/lsp"
)

// Result formatters. Positions are printed zero-based, exactly as the
// protocol reports them.

// formatHoverContents flattens the three shapes hover contents can take:
// MarkupContent, a bare MarkedString, or a list of MarkedStrings.
func formatHoverContents(contents json.RawMessage) string {
	var markup lsp.MarkupContent
	if err := json.Unmarshal(contents, &markup); err == nil && markup.Value != "" {
		return markup.Value
	}

	var plain string
	if err := json.Unmarshal(contents, &plain); err == nil {
		return plain
	}

	var list []json.RawMessage
	if err := json.Unmarshal(contents, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if part := formatHoverContents(item); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, "\n\n")
	}

	return string(contents)
}

// formatLocations accepts a single Location, a Location array, or a
// LocationLink array.
func formatLocations(data json.RawMessage) string {
	var loc lsp.Location
	if err := json.Unmarshal(data, &loc); err == nil && loc.URI != "" {
		return formatLocation(loc)
	}

	var locs []lsp.Location
	if err := json.Unmarshal(data, &locs); err == nil && len(locs) > 0 && locs[0].URI != "" {
		lines := make([]string, 0, len(locs))
		for _, l := range locs {
			lines = append(lines, formatLocation(l))
		}
		return fmt.Sprintf("Found %d location(s):\n%s", len(lines), strings.Join(lines, "\n"))
	}

	var links []lsp.LocationLink
	if err := json.Unmarshal(data, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
		lines := make([]string, 0, len(links))
		for _, l := range links {
			lines = append(lines, formatLocation(lsp.Location{URI: l.TargetURI, Range: l.TargetSelectionRange}))
		}
		return fmt.Sprintf("Found %d location(s):\n%s", len(lines), strings.Join(lines, "\n"))
	}

	return string(data)
}

func formatLocation(loc lsp.Location) string {
	return fmt.Sprintf("- %s:%d:%d", lsp.URIToPath(loc.URI), loc.Range.Start.Line, loc.Range.Start.Character)
}

func formatCompletions(items []lsp.CompletionItem, limit int) string {
	total := len(items)
	if len(items) > limit {
		items = items[:limit]
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Completions (%d of %d):", len(items), total))
	for _, item := range items {
		line := "- " + item.Label
		if item.Detail != "" {
			line += " : " + item.Detail
		}
		if doc := formatHoverContents(item.Documentation); doc != "" && len(item.Documentation) > 0 {
			if idx := strings.IndexByte(doc, '\n'); idx >= 0 {
				doc = doc[:idx]
			}
			line += " — " + doc
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// parseCompletionItems accepts both a CompletionList and a bare item array.
func parseCompletionItems(data json.RawMessage) []lsp.CompletionItem {
	var list lsp.CompletionList
	if err := json.Unmarshal(data, &list); err == nil && list.Items != nil {
		return list.Items
	}

	var items []lsp.CompletionItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items
	}
	return nil
}

func formatDiagnostics(path string, diags []lsp.Diagnostic) string {
	lines := []string{fmt.Sprintf("Diagnostics for %s:", path)}
	for _, d := range diags {
		line := fmt.Sprintf("- [%s] line %d: %s", d.Severity, d.Range.Start.Line, d.Message)
		if d.Source != "" {
			line += " (" + d.Source + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// formatSymbols accepts both the hierarchical and the flat symbol shapes.
func formatSymbols(data json.RawMessage) string {
	var docSymbols []lsp.DocumentSymbol
	if err := json.Unmarshal(data, &docSymbols); err == nil && len(docSymbols) > 0 && docSymbols[0].SelectionRange != (lsp.Range{}) {
		var lines []string
		formatDocumentSymbols(docSymbols, "", &lines)
		return strings.Join(lines, "\n")
	}

	var symbols []lsp.SymbolInformation
	if err := json.Unmarshal(data, &symbols); err == nil && len(symbols) > 0 {
		var lines []string
		for _, s := range symbols {
			line := fmt.Sprintf("- %s %s (%s:%d)", s.Kind, s.Name, lsp.URIToPath(s.Location.URI), s.Location.Range.Start.Line)
			if s.ContainerName != "" {
				line += fmt.Sprintf(" [in %s]", s.ContainerName)
			}
			lines = append(lines, line)
		}
		return strings.Join(lines, "\n")
	}

	return string(data)
}

func formatDocumentSymbols(symbols []lsp.DocumentSymbol, indent string, lines *[]string) {
	for _, s := range symbols {
		*lines = append(*lines, fmt.Sprintf("%s- %s %s (line %d)", indent, s.Kind, s.Name, s.Range.Start.Line))
		if len(s.Children) > 0 {
			formatDocumentSymbols(s.Children, indent+"  ", lines)
		}
	}
}

func formatCodeActions(path string, line int, data json.RawMessage) string {
	var actions []lsp.CodeAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return string(data)
	}
	if len(actions) == 0 {
		return fmt.Sprintf("No code actions available for %s:%d", path, line)
	}

	lines := []string{fmt.Sprintf("Available code actions for %s:%d:", path, line)}
	for i, action := range actions {
		kind := action.Kind
		if kind == "" {
			kind = "action"
		}
		preferred := ""
		if action.IsPreferred {
			preferred = " (preferred)"
		}
		lines = append(lines, fmt.Sprintf("%d. [%s] %s%s", i+1, kind, action.Title, preferred))
	}
	return strings.Join(lines, "\n")
}

func formatSignatureHelp(help lsp.SignatureHelp) string {
	if len(help.Signatures) == 0 {
		return "No signature help available"
	}

	var lines []string
	for i, sig := range help.Signatures {
		if i > 0 {
			lines = append(lines, "")
		}

		active := ""
		if i == help.ActiveSignature {
			active = " [ACTIVE]"
		}
		lines = append(lines, fmt.Sprintf("Function: %s%s", sig.Label, active))

		if len(sig.Documentation) > 0 {
			if doc := formatHoverContents(sig.Documentation); doc != "" {
				lines = append(lines, "", doc)
			}
		}

		if len(sig.Parameters) > 0 {
			lines = append(lines, "", "Parameters:")
			for j, param := range sig.Parameters {
				label := formatParameterLabel(param.Label)
				paramActive := ""
				if j == help.ActiveParameter {
					paramActive = " [ACTIVE]"
				}
				lines = append(lines, fmt.Sprintf("%d. %s%s", j+1, label, paramActive))
			}
		}
	}
	return strings.Join(lines, "\n")
}

// formatParameterLabel handles both the string form and the [start, end]
// offset form of a parameter label.
func formatParameterLabel(label json.RawMessage) string {
	var s string
	if err := json.Unmarshal(label, &s); err == nil {
		return s
	}

	var offsets [2]int
	if err := json.Unmarshal(label, &offsets); err == nil {
		return fmt.Sprintf("[%d:%d]", offsets[0], offsets[1])
	}
	return string(label)
}

func formatInlayHints(path string, startLine, endLine int, hints []lsp.InlayHint) string {
	lines := []string{fmt.Sprintf("Inlay hints for %s:%d-%d:", path, startLine, endLine)}
	for _, hint := range hints {
		lines = append(lines, fmt.Sprintf("- line %d, col %d: %q (%s)",
			hint.Position.Line, hint.Position.Character, formatInlayHintLabel(hint.Label), inlayHintKindName(hint.Kind)))
	}
	return strings.Join(lines, "\n")
}

// formatInlayHintLabel handles both the string form and the label-part list.
func formatInlayHintLabel(label json.RawMessage) string {
	var s string
	if err := json.Unmarshal(label, &s); err == nil {
		return s
	}

	var parts []lsp.InlayHintLabelPart
	if err := json.Unmarshal(label, &parts); err == nil {
		var b strings.Builder
		for _, part := range parts {
			b.WriteString(part.Value)
		}
		return b.String()
	}
	return string(label)
}

func inlayHintKindName(kind int) string {
	switch kind {
	case 1:
		return "type"
	case 2:
		return "parameter"
	default:
		return "hint"
	}
}
