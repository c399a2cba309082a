package lsp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrProcessTerminated is returned for every operation, pending or new, once
// the language server process has exited. The client stays in this state until
// the caller explicitly restarts it.
var ErrProcessTerminated = errors.New("language server process terminated")

// StartupError reports a failure to bring the language server up: the binary
// could not be spawned, or the initialize handshake did not complete in time.
// It is fatal; the client never retries startup on its own.
type StartupError struct {
	Command string
	Err     error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Command, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// TimeoutError reports a request that received no response within its
// deadline. The request's ID is abandoned, never reused; a late response is
// silently dropped.
type TimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Method, e.Timeout)
}

// ProtocolError carries an error response from the language server verbatim.
type ProtocolError struct {
	Method  string
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s failed: %s (code %d)", e.Method, e.Message, e.Code)
}

// FileAccessError reports a file that could not be synchronized with the
// language server: missing, unreadable, or not valid UTF-8.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("accessing %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// ValidationError reports an argument rejected before anything was sent to
// the language server.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
