package mcp

import (
	"encoding/json"
	"fmt"
)

const jsonrpcVersion = "2.0"

// A session carries exactly one handshake and one payload request, so
// the ids are fixed rather than allocated.
const (
	handshakeID int64 = 1
	payloadID   int64 = 2
)

// Request is an outbound JSON-RPC 2.0 call.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a call. Nil params are omitted from the wire form.
func NewRequest(id int64, method string, params any) *Request {
	return &Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}

// Notification is an outbound message that expects no reply.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification builds a notification.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: jsonrpcVersion, Method: method, Params: params}
}

// Response is any inbound message. Only integer ids are mapped onto
// ID; notifications, string ids ("srv-1") and fractional ids decode
// with ID 0, which no phase ever expects. RawID keeps the id as sent.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	RawID   json.RawMessage `json:"-"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// UnmarshalJSON accepts any id type. A message that is not a JSON
// object is still an error.
func (r *Response) UnmarshalJSON(data []byte) error {
	var wire struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*r = Response{JSONRPC: wire.JSONRPC, RawID: wire.ID, Result: wire.Result, Error: wire.Error}
	var id int64
	if len(wire.ID) > 0 && json.Unmarshal(wire.ID, &id) == nil {
		r.ID = id
	}
	return nil
}

// Err returns the response's error object as an error, or nil. Use it
// instead of comparing Error to nil when passing the value on, so a
// nil *RPCError never turns into a non-nil error.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// decodeResult unmarshals the result into v. A result that does not fit
// is a *ProtocolError naming op.
func (r *Response) decodeResult(op string, v any) error {
	if err := json.Unmarshal(r.Result, v); err != nil {
		return &ProtocolError{Reason: "unreadable " + op + " result", Line: truncateLine(r.Result), Err: err}
	}
	return nil
}

// RPCError is the error object of a response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp rpc error %d: %s", e.Code, e.Message)
}
