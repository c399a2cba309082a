package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/docker/ramcp/pkg/jsonrpc"
)

// process wraps the running language server subprocess.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	// done is closed once Wait has returned.
	done chan struct{}
}

func (p *process) kill() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// start spawns the server and runs the initialize handshake. On any failure
// the process is killed and *StartupError returned.
func (c *Client) start(ctx context.Context) error {
	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.WorkspaceRoot
	if len(c.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), c.cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &StartupError{Command: c.cfg.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &StartupError{Command: c.cfg.Command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &StartupError{Command: c.cfg.Command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		return &StartupError{Command: c.cfg.Command, Err: err}
	}
	c.logger.Info("language server started", "command", c.cfg.Command, "pid", cmd.Process.Pid, "workspace", c.cfg.WorkspaceRoot)

	proc := &process{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	sess := &session{
		proc:    proc,
		writer:  jsonrpc.NewWriter(stdin),
		pending: make(map[int64]chan *jsonrpc.Message),
	}

	go c.drainStderr(stderr)
	go c.readLoop(sess, jsonrpc.NewReader(stdout))
	go func() {
		err := cmd.Wait()
		close(proc.done)
		c.logger.Info("language server exited", "error", err)
		sess.fail(ErrProcessTerminated)
	}()

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	if err := c.handshake(ctx); err != nil {
		proc.kill()
		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
		return &StartupError{Command: c.cfg.Command, Err: err}
	}

	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	root := c.cfg.WorkspaceRoot
	params := InitializeParams{
		ProcessID: os.Getpid(),
		Capabilities: map[string]any{
			"workspace": map[string]any{
				"workspaceFolders": true,
				"symbol":           map[string]any{},
			},
			"textDocument": map[string]any{
				"synchronization":    map[string]any{"didSave": true},
				"publishDiagnostics": map[string]any{"relatedInformation": true},
				"hover":              map[string]any{"contentFormat": []string{"markdown", "plaintext"}},
			},
		},
		WorkspaceFolders: []WorkspaceFolder{
			{URI: PathToURI(root), Name: filepath.Base(root)},
		},
		InitializationOptions: c.cfg.InitializationOptions,
	}

	raw, err := c.Call(ctx, "initialize", params, c.cfg.StartupTimeout)
	if err != nil {
		return fmt.Errorf("initialize handshake: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decoding initialize result: %w", err)
	}

	c.mu.Lock()
	c.capabilities = result.Capabilities
	c.serverInfo = result.ServerInfo
	c.mu.Unlock()

	if result.ServerInfo != nil {
		c.logger.Info("language server initialized", "name", result.ServerInfo.Name, "version", result.ServerInfo.Version)
	}

	return c.Notify(ctx, "initialized", struct{}{})
}

func (c *Client) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		c.logger.Debug("language server stderr", "line", scanner.Text())
	}
}

// Close shuts the server down: best-effort shutdown request and exit
// notification, then a bounded wait before the process is killed. The client
// is unusable afterwards.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	if w != nil {
		w.close()
	}
	if sess == nil {
		return nil
	}

	c.shutdownSession(sess)
	return nil
}

// Restart kills the current process, fails all pending requests, resets
// document and diagnostic state, and brings up a fresh process. It is the
// only way out of the terminated state and is never triggered automatically.
func (c *Client) Restart(ctx context.Context) error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess != nil {
		sess.fail(ErrProcessTerminated)
		c.shutdownSession(sess)
	}

	c.docs.invalidate()
	c.diags.reset()

	c.logger.Info("restarting language server")
	return c.start(ctx)
}

// shutdownSession runs the graceful exit sequence against a detached session.
// The shutdown response, if any, lands in the reader's unknown-ID path.
func (c *Client) shutdownSession(sess *session) {
	if !sess.isFailed() {
		if msg, err := jsonrpc.NewRequest(c.nextID.Add(1), "shutdown", nil); err == nil {
			_ = sess.write(msg)
		}
		if msg, err := jsonrpc.NewNotification("exit", nil); err == nil {
			_ = sess.write(msg)
		}
	}
	_ = sess.proc.stdin.Close()

	timer := time.NewTimer(c.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-sess.proc.done:
	case <-timer.C:
		c.logger.Warn("language server did not exit, killing", "timeout", c.cfg.ShutdownTimeout)
		sess.proc.kill()
		<-sess.proc.done
	}

	sess.fail(ErrProcessTerminated)
}
