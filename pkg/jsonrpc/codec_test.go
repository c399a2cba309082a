package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	req, err := NewRequest(7, "textDocument/hover", map[string]any{"position": map[string]int{"line": 10, "character": 4}})
	require.NoError(t, err)
	require.NoError(t, NewWriter(&buf).Write(req))

	assert.True(t, strings.HasPrefix(buf.String(), "Content-Length: "))
	assert.Contains(t, buf.String(), "\r\n\r\n")

	got, err := NewReader(&buf).Read()
	require.NoError(t, err)
	assert.Equal(t, KindRequest, got.Kind())
	assert.Equal(t, int64(7), numericID(t, got))
	assert.Equal(t, "textDocument/hover", got.Method)
	assert.JSONEq(t, `{"position":{"line":10,"character":4}}`, string(got.Params))
}

func numericID(t *testing.T, msg *Message) int64 {
	t.Helper()
	require.NotNil(t, msg.ID)
	id, numeric := msg.ID.Int64()
	require.True(t, numeric)
	return id
}

func TestMessageKind(t *testing.T) {
	id := NewID(1)

	assert.Equal(t, KindRequest, (&Message{ID: id, Method: "initialize"}).Kind())
	assert.Equal(t, KindNotification, (&Message{Method: "initialized"}).Kind())
	assert.Equal(t, KindResponse, (&Message{ID: id, Result: json.RawMessage(`{}`)}).Kind())
	assert.Equal(t, KindResponse, (&Message{ID: id, Error: &Error{Code: -32600}}).Kind())
}

func TestRead_IgnoresExtraHeaders(t *testing.T) {
	input := "Content-Type: application/vscode-jsonrpc; charset=utf-8\r\n" +
		"Content-Length: 38\r\n\r\n" +
		`{"jsonrpc":"2.0","method":"gc","id":3}`

	msg, err := NewReader(strings.NewReader(input)).Read()
	require.NoError(t, err)
	assert.Equal(t, "gc", msg.Method)
}

func TestRead_MissingContentLength(t *testing.T) {
	input := "Content-Type: application/json\r\n\r\n{}"

	_, err := NewReader(strings.NewReader(input)).Read()
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "missing Content-Length")
}

func TestRead_InvalidContentLength(t *testing.T) {
	for _, value := range []string{"abc", "-5", ""} {
		input := "Content-Length: " + value + "\r\n\r\n{}"

		_, err := NewReader(strings.NewReader(input)).Read()
		var fe *FramingError
		assert.ErrorAs(t, err, &fe, "Content-Length %q", value)
	}
}

func TestRead_MalformedHeaderLine(t *testing.T) {
	_, err := NewReader(strings.NewReader("not a header\r\n\r\n")).Read()

	var fe *FramingError
	require.ErrorAs(t, err, &fe)
}

func TestRead_TruncatedBody(t *testing.T) {
	// Header declares 50 bytes but the stream closes after 10. This must be
	// a FramingError, not a hang.
	input := "Content-Length: 50\r\n\r\n" + `{"jsonrpc"`

	done := make(chan error, 1)
	go func() {
		_, err := NewReader(strings.NewReader(input)).Read()
		done <- err
	}()

	select {
	case err := <-done:
		var fe *FramingError
		require.ErrorAs(t, err, &fe)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	case <-time.After(time.Second):
		t.Fatal("Read hung on truncated body")
	}
}

func TestRead_InvalidJSONBody(t *testing.T) {
	input := "Content-Length: 9\r\n\r\nnot json!"

	_, err := NewReader(strings.NewReader(input)).Read()
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "invalid JSON")
}

func TestRead_CleanEOFBetweenFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	notif, err := NewNotification("initialized", struct{}{})
	require.NoError(t, err)
	require.NoError(t, w.Write(notif))

	r := NewReader(&buf)
	_, err = r.Read()
	require.NoError(t, err)

	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestRead_MultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	for i := int64(1); i <= 3; i++ {
		req, err := NewRequest(i, "m", nil)
		require.NoError(t, err)
		require.NoError(t, w.Write(req))
	}

	r := NewReader(&buf)
	for i := int64(1); i <= 3; i++ {
		msg, err := r.Read()
		require.NoError(t, err)
		assert.Equal(t, i, numericID(t, msg))
	}
}

func TestNewErrorResponse(t *testing.T) {
	msg := NewErrorResponse(NewID(4), CodeMethodNotFound, "unhandled method")

	assert.Equal(t, KindResponse, msg.Kind())
	assert.Equal(t, CodeMethodNotFound, msg.Error.Code)
}

func TestStringID_RoundTrips(t *testing.T) {
	// The protocol permits string IDs even though this client never issues
	// them; they must decode and echo back verbatim.
	body := `{"jsonrpc":"2.0","id":"cfg-1","method":"workspace/x"}`
	input := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)

	msg, err := NewReader(strings.NewReader(input)).Read()
	require.NoError(t, err)
	assert.Equal(t, KindRequest, msg.Kind())

	_, numeric := msg.ID.Int64()
	assert.False(t, numeric)
	assert.Equal(t, "cfg-1", msg.ID.String())

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(NewErrorResponse(msg.ID, CodeMethodNotFound, "nope")))
	assert.Contains(t, buf.String(), `"id":"cfg-1"`)
}

func TestNullID_IsNil(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"parse error"}}`
	input := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)

	msg, err := NewReader(strings.NewReader(input)).Read()
	require.NoError(t, err)
	assert.Nil(t, msg.ID)
	assert.Equal(t, KindResponse, msg.Kind())
}
