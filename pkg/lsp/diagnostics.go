package lsp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/docker/ramcp/pkg/jsonrpc"
)

// handleNotification routes server-pushed notifications. Only diagnostics are
// materialized; everything else is traced and dropped.
func (c *Client) handleNotification(msg *jsonrpc.Message) {
	switch msg.Method {
	case "textDocument/publishDiagnostics":
		var params PublishDiagnosticsParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.logger.Debug("malformed publishDiagnostics", "error", err)
			return
		}
		c.diags.Publish(params.URI, params.Diagnostics)
		c.logger.Debug("diagnostics published", "uri", params.URI, "count", len(params.Diagnostics))
	case "window/logMessage", "window/showMessage":
		var params struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		c.logger.Debug("server message", "method", msg.Method, "message", params.Message)
	default:
		c.logger.Debug("ignoring notification", "method", msg.Method)
	}
}

// DiagnosticStore holds the latest published diagnostics per file. Each
// publish replaces that file's slot wholesale and bumps a global sequence
// number, which callers use to wait for analysis to catch up after opening
// a file.
type DiagnosticStore struct {
	mu    sync.Mutex
	byURI map[string][]Diagnostic
	seq   int64
}

func NewDiagnosticStore() *DiagnosticStore {
	return &DiagnosticStore{byURI: make(map[string][]Diagnostic)}
}

func (s *DiagnosticStore) Publish(uri string, diags []Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byURI[uri] = diags
	s.seq++
}

// Get returns a copy of the diagnostics for uri. An empty slice means the
// server last reported the file clean; it is indistinguishable from the
// server never having analyzed it, which is why callers pair Get with Wait
// after a first open.
func (s *DiagnosticStore) Get(uri string) []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	diags := s.byURI[uri]
	out := make([]Diagnostic, len(diags))
	copy(out, diags)
	return out
}

// Seq returns the global publish sequence number.
func (s *DiagnosticStore) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Wait blocks until the publish sequence advances past since, the timeout
// elapses, or ctx is canceled. It never returns an error: no diagnostics
// arriving is a valid outcome, the caller just reads whatever the store has.
func (s *DiagnosticStore) Wait(ctx context.Context, since int64, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.Seq() > since {
			return
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *DiagnosticStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byURI = make(map[string][]Diagnostic)
}
