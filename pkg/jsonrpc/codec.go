package jsonrpc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FramingError reports malformed wire data: a bad header, a body shorter than
// its declared length, or a body that is not valid JSON. Once a FramingError
// occurs the stream position is no longer trustworthy and the connection must
// be abandoned.
type FramingError struct {
	Reason string
	Err    error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jsonrpc: framing error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("jsonrpc: framing error: %s", e.Reason)
}

func (e *FramingError) Unwrap() error { return e.Err }

// Reader decodes framed messages from a byte stream.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read blocks until a complete frame is available and returns the decoded
// message. It returns io.EOF when the stream closes cleanly between frames,
// and a *FramingError when the wire data is malformed or the stream closes
// mid-frame.
func (r *Reader) Read() (*Message, error) {
	contentLength := -1

	for {
		line, err := r.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && line == "" && contentLength < 0 {
				return nil, io.EOF
			}
			return nil, &FramingError{Reason: "reading header", Err: err}
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, &FramingError{Reason: fmt.Sprintf("malformed header line %q", line)}
		}
		// Other header fields (e.g. Content-Type) are allowed and ignored.
		if strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			contentLength, err = strconv.Atoi(strings.TrimSpace(value))
			if err != nil || contentLength < 0 {
				return nil, &FramingError{Reason: fmt.Sprintf("invalid Content-Length %q", strings.TrimSpace(value))}
			}
		}
	}

	if contentLength < 0 {
		return nil, &FramingError{Reason: "missing Content-Length header"}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, &FramingError{Reason: fmt.Sprintf("short body, want %d bytes", contentLength), Err: err}
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &FramingError{Reason: "invalid JSON body", Err: err}
	}

	return &msg, nil
}

// Writer encodes framed messages onto a byte stream. It is not safe for
// concurrent use; callers must serialize writes so that one frame is fully
// written before the next begins.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes msg as a single frame.
func (w *Writer) Write(msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	if _, err := fmt.Fprintf(w.w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.w.Write(body); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}

	return nil
}
