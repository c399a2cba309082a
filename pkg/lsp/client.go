// Package lsp implements a client for language servers speaking JSON-RPC 2.0
// over stdio. It owns the server subprocess, correlates concurrent requests
// with their responses, keeps open documents synchronized, and collects
// server-pushed diagnostics. It is transport plumbing only; it understands
// nothing about the language being analyzed.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/ramcp/pkg/jsonrpc"
)

const (
	// DefaultStartupTimeout bounds the spawn plus initialize handshake.
	DefaultStartupTimeout = 60 * time.Second
	// DefaultShutdownTimeout bounds the graceful shutdown sequence before the
	// process is killed.
	DefaultShutdownTimeout = 5 * time.Second
)

// Config describes how to run the language server.
type Config struct {
	// Command is the server binary, e.g. "rust-analyzer".
	Command string
	Args    []string
	// Env entries in KEY=VALUE form, appended to the inherited environment.
	Env []string
	// WorkspaceRoot is the project directory, used as the process working
	// directory and advertised as the sole workspace folder.
	WorkspaceRoot string
	// InitializationOptions are passed verbatim in the initialize request.
	// Nil selects defaults that enable cargo build scripts and all features.
	InitializationOptions map[string]any

	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration

	// WatchFiles re-synchronizes open documents when they change on disk.
	WatchFiles bool

	Logger *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = DefaultStartupTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.InitializationOptions == nil {
		c.InitializationOptions = map[string]any{
			"cargo": map[string]any{
				"buildScripts": map[string]any{"enable": true},
				"features":     "all",
			},
		}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Client is a handle to one language server. All methods are safe for
// concurrent use. After the server process dies every method returns
// ErrProcessTerminated until Restart is called.
type Client struct {
	cfg    Config
	logger *slog.Logger

	// nextID is monotonic for the lifetime of the Client, across restarts,
	// so an ID abandoned by a timed-out request is never reused.
	nextID atomic.Int64

	mu   sync.Mutex // guards sess during start/close/restart
	sess *session

	docs    *documentTracker
	diags   *DiagnosticStore
	watcher *watcher

	capabilities json.RawMessage
	serverInfo   *ServerInfo
}

// session is the per-process state: pipes, pending requests, and liveness.
// A restart replaces the whole session.
type session struct {
	proc *process

	writeMu sync.Mutex
	writer  *jsonrpc.Writer

	pendingMu sync.Mutex
	pending   map[int64]chan *jsonrpc.Message
	failed    bool
	failErr   error
}

// NewClient spawns the language server and performs the initialize handshake.
// A failure at any point returns *StartupError and leaves no process behind.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cfg.applyDefaults()

	c := &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		diags:  NewDiagnosticStore(),
	}
	c.docs = newDocumentTracker(c)

	if err := c.start(ctx); err != nil {
		return nil, err
	}

	if cfg.WatchFiles {
		w, err := newWatcher(c, cfg.Logger)
		if err != nil {
			c.logger.Warn("file watcher unavailable", "error", err)
		} else {
			c.watcher = w
		}
	}

	return c, nil
}

// Capabilities returns the server capabilities from the initialize result.
func (c *Client) Capabilities() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// ServerInfo returns the server's self-reported name and version, if any.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

func (c *Client) WorkspaceRoot() string {
	return c.cfg.WorkspaceRoot
}

// Diagnostics exposes the store of server-pushed diagnostics.
func (c *Client) Diagnostics() *DiagnosticStore {
	return c.diags
}

func (c *Client) session() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil, ErrProcessTerminated
	}
	return c.sess, nil
}

// Call sends a request and blocks until its response arrives, the timeout
// elapses, ctx is canceled, or the server dies. A timed-out or canceled
// request is unregistered immediately; its late response, if one ever
// arrives, is dropped by the reader's unknown-ID path. The ID itself is
// never reused.
func (c *Client) Call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	sess, err := c.session()
	if err != nil {
		return nil, err
	}

	id := c.nextID.Add(1)
	ch, err := sess.register(id)
	if err != nil {
		return nil, err
	}

	msg, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		sess.unregister(id)
		return nil, fmt.Errorf("encoding %s request: %w", method, err)
	}

	c.logger.Debug("lsp request", "id", id, "method", method)
	if err := sess.write(msg); err != nil {
		sess.unregister(id)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, sess.failure()
		}
		if resp.Error != nil {
			return nil, &ProtocolError{
				Method:  method,
				Code:    resp.Error.Code,
				Message: resp.Error.Message,
				Data:    resp.Error.Data,
			}
		}
		return resp.Result, nil
	case <-timer.C:
		sess.unregister(id)
		c.logger.Debug("lsp request timed out", "id", id, "method", method, "timeout", timeout)
		return nil, &TimeoutError{Method: method, Timeout: timeout}
	case <-ctx.Done():
		sess.unregister(id)
		return nil, ctx.Err()
	}
}

// Notify sends a notification. It returns once the frame is fully written.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	sess, err := c.session()
	if err != nil {
		return err
	}

	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("encoding %s notification: %w", method, err)
	}

	c.logger.Debug("lsp notification", "method", method)
	return sess.write(msg)
}

// EnsureOpen makes sure the server's view of the file matches disk, opening
// or re-synchronizing it as needed. It reports whether this was the file's
// first open, which callers use to wait for initial diagnostics.
func (c *Client) EnsureOpen(ctx context.Context, path string) (firstOpen bool, err error) {
	firstOpen, err = c.docs.ensureOpen(ctx, path)
	if err == nil && firstOpen {
		c.mu.Lock()
		w := c.watcher
		c.mu.Unlock()
		if w != nil {
			w.track(path)
		}
	}
	return firstOpen, err
}

// readLoop is the only reader of the server's stdout. It resolves pending
// requests, routes notifications, and answers server-to-client requests.
func (c *Client) readLoop(sess *session, r *jsonrpc.Reader) {
	for {
		msg, err := r.Read()
		if err != nil {
			// Clean EOF means the process is going away; the wait goroutine
			// reports ErrProcessTerminated. Anything else is a framing
			// failure and the connection is unusable.
			var fe *jsonrpc.FramingError
			if errors.As(err, &fe) {
				c.logger.Error("lsp stream corrupt", "error", err)
				sess.fail(fmt.Errorf("%w: %w", ErrProcessTerminated, fe))
				sess.proc.kill()
			}
			return
		}

		switch msg.Kind() {
		case jsonrpc.KindResponse:
			c.dispatchResponse(sess, msg)
		case jsonrpc.KindNotification:
			c.handleNotification(msg)
		case jsonrpc.KindRequest:
			// The bridge implements no server-to-client requests. Answering
			// instead of ignoring keeps the server from blocking on them.
			c.logger.Debug("rejecting server request", "method", msg.Method, "id", msg.ID.String())
			reply := jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeMethodNotFound, "unhandled method "+msg.Method)
			if err := sess.write(reply); err != nil {
				c.logger.Debug("replying to server request", "error", err)
			}
		}
	}
}

func (c *Client) dispatchResponse(sess *session, msg *jsonrpc.Message) {
	// Only numeric IDs can be ours; a missing or string ID never matches a
	// pending request, so the response is just dropped.
	var id int64
	numeric := false
	if msg.ID != nil {
		id, numeric = msg.ID.Int64()
	}
	if !numeric {
		c.logger.Debug("dropping response with unusable id")
		return
	}

	sess.pendingMu.Lock()
	ch, ok := sess.pending[id]
	if ok {
		delete(sess.pending, id)
	}
	sess.pendingMu.Unlock()

	if !ok {
		// Abandoned (timed out or canceled) or never ours. Either way the
		// response has no waiter.
		c.logger.Debug("dropping response with no pending request", "id", id)
		return
	}
	ch <- msg
}

func (s *session) register(id int64) (chan *jsonrpc.Message, error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.failed {
		return nil, s.failErr
	}
	ch := make(chan *jsonrpc.Message, 1)
	s.pending[id] = ch
	return ch, nil
}

func (s *session) unregister(id int64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// fail marks the session dead and wakes every pending caller. Closing the
// channels makes each Call observe the stored failure exactly once.
func (s *session) fail(err error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.failed {
		return
	}
	s.failed = true
	s.failErr = err
	for id, ch := range s.pending {
		delete(s.pending, id)
		close(ch)
	}
}

func (s *session) isFailed() bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.failed
}

func (s *session) failure() error {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	return ErrProcessTerminated
}

func (s *session) write(msg *jsonrpc.Message) error {
	if s.isFailed() {
		return s.failure()
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.writer.Write(msg); err != nil {
		return fmt.Errorf("%w: writing to server: %w", ErrProcessTerminated, err)
	}
	return nil
}
