// Package jsonrpc implements the header-delimited JSON-RPC 2.0 wire format
// used by language servers: each message is a JSON body prefixed with a
// "Content-Length: N\r\n\r\n" header. The package is purely byte-level; it
// performs no semantic validation beyond telling requests, responses and
// notifications apart.
package jsonrpc

import (
	"encoding/json"
	"strconv"
)

// ID is a JSON-RPC request identifier. This client only ever issues numeric
// IDs, but the protocol also permits strings; incoming string IDs decode
// losslessly so a reply can echo them back.
type ID struct {
	num      int64
	str      string
	isString bool
}

// NewID builds a numeric request identifier.
func NewID(n int64) *ID {
	return &ID{num: n}
}

// Int64 returns the numeric value of the ID and whether it is numeric.
func (id *ID) Int64() (int64, bool) {
	return id.num, !id.isString
}

func (id *ID) String() string {
	if id.isString {
		return id.str
	}
	return strconv.FormatInt(id.num, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.str)
	}
	return strconv.AppendInt(nil, id.num, 10), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		id.isString = true
		return json.Unmarshal(data, &id.str)
	}
	id.isString = false
	return json.Unmarshal(data, &id.num)
}

// Message is one JSON-RPC 2.0 message. It covers all three shapes of the
// protocol; use Kind to tell them apart.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object, carried verbatim from the peer.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Kind classifies a message.
type Kind int

const (
	// KindRequest has both a method and an id and expects a response.
	KindRequest Kind = iota
	// KindResponse has an id but no method.
	KindResponse
	// KindNotification has a method but no id.
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "notification"
	}
}

// Kind reports whether m is a request, a response or a notification.
func (m *Message) Kind() Kind {
	switch {
	case m.Method != "" && m.ID != nil:
		return KindRequest
	case m.Method != "":
		return KindNotification
	default:
		return KindResponse
	}
}

// NewRequest builds a request message. Params are marshaled eagerly so that
// encoding errors surface before anything is written to the wire.
func NewRequest(id int64, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: NewID(id), Method: method, Params: raw}, nil
}

// NewNotification builds a notification message.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

// NewResponse builds a successful response to the request with the given id.
func NewResponse(id int64, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: NewID(id), Result: raw}, nil
}

// NewErrorResponse builds an error response to the request with the given id.
func NewErrorResponse(id *ID, code int, message string) *Message {
	return &Message{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}
