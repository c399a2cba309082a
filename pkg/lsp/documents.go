package lsp

import (
	"context"
	"errors"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// languageID is advertised on every didOpen. The bridge speaks one dialect.
const languageID = "rust"

var errNotUTF8 = errors.New("file content is not valid UTF-8")

// documentTracker keeps the server's view of open files in sync with disk.
// It records, per file, the version last announced and a fingerprint of the
// content that version carried, so unchanged files cost no message at all.
// The mutex is held across the whole check-and-announce sequence: two
// concurrent first accesses to a file must produce exactly one didOpen.
type documentTracker struct {
	client *Client

	mu   sync.Mutex
	open map[string]*documentState // keyed by absolute path
}

type documentState struct {
	uri     string
	version int32
	hash    uint64
	size    int64
}

func newDocumentTracker(c *Client) *documentTracker {
	return &documentTracker{
		client: c,
		open:   make(map[string]*documentState),
	}
}

// ensureOpen brings path up to date on the server: didOpen at version 1 for
// unknown files, a full-content didChange at version N+1 when the file
// changed on disk, nothing when the fingerprint still matches.
func (t *documentTracker) ensureOpen(ctx context.Context, path string) (firstOpen bool, err error) {
	content, err := readDocument(path)
	if err != nil {
		return false, err
	}
	hash := xxhash.Sum64(content)

	t.mu.Lock()
	defer t.mu.Unlock()

	state, known := t.open[path]
	if !known {
		uri := PathToURI(path)
		err := t.client.Notify(ctx, "textDocument/didOpen", DidOpenTextDocumentParams{
			TextDocument: TextDocumentItem{
				URI:        uri,
				LanguageID: languageID,
				Version:    1,
				Text:       string(content),
			},
		})
		if err != nil {
			return false, err
		}
		t.open[path] = &documentState{uri: uri, version: 1, hash: hash, size: int64(len(content))}
		return true, nil
	}

	if state.hash == hash && state.size == int64(len(content)) {
		return false, nil
	}
	return false, t.announceChange(ctx, path, state, content, hash)
}

// resync pushes the on-disk content of an already-open file to the server.
// Files that are not open, or that still match their fingerprint, are a
// no-op. Used by the disk watcher.
func (t *documentTracker) resync(ctx context.Context, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, known := t.open[path]
	if !known {
		return nil
	}

	content, err := readDocument(path)
	if err != nil {
		return err
	}
	hash := xxhash.Sum64(content)
	if state.hash == hash && state.size == int64(len(content)) {
		return nil
	}

	return t.announceChange(ctx, path, state, content, hash)
}

// announceChange is called with t.mu held.
func (t *documentTracker) announceChange(ctx context.Context, path string, state *documentState, content []byte, hash uint64) error {
	// Whole-document replacement: one change event with no range.
	version := state.version + 1
	err := t.client.Notify(ctx, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: state.uri, Version: version},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: string(content)}},
	})
	if err != nil {
		return err
	}

	state.version = version
	state.hash = hash
	state.size = int64(len(content))

	t.client.logger.Debug("document re-synchronized", "path", path, "version", version)
	return nil
}

func (t *documentTracker) isOpen(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.open[path]
	return ok
}

// invalidate forgets all open documents. A fresh process knows nothing, so
// the tracker must not either.
func (t *documentTracker) invalidate() {
	t.mu.Lock()
	t.open = make(map[string]*documentState)
	t.mu.Unlock()
}

func readDocument(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}
	if !utf8.Valid(content) {
		return nil, &FileAccessError{Path: path, Err: errNotUTF8}
	}
	return content, nil
}

// Resync re-announces an open document whose content changed on disk.
func (c *Client) Resync(ctx context.Context, path string) error {
	return c.docs.resync(ctx, path)
}

// IsOpen reports whether path has been announced to the server.
func (c *Client) IsOpen(path string) bool {
	return c.docs.isOpen(path)
}
