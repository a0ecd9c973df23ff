// Package mcpschema defines the JSON-RPC 2.0 envelope and MCP content/result
// types, plus a JSON Schema validation facade used by the registry and the
// core server.
package mcpschema

import "encoding/json"

// ProtocolVersion is the single MCP protocol version this server advertises
// and accepts on initialize.
const ProtocolVersion = "2025-06-18"

// Request is an incoming JSON-RPC 2.0 request or notification. A request
// with a nil ID is a notification and MUST NOT receive a response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is an outgoing JSON-RPC 2.0 response. Exactly one of Result or
// Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

// NewResultResponse builds a successful response with a marshaled result.
func NewResultResponse(id json.RawMessage, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}

// Notification is an outbound server-initiated notification (no id).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification builds an outbound notification envelope.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: "2.0", Method: method, Params: params}
}

// NewRequest builds an outbound server-initiated JSON-RPC request (e.g.
// elicitation/create), marshaling params into the envelope's raw form.
func NewRequest(id json.RawMessage, method string, params any) *Request {
	raw, _ := json.Marshal(params)
	return &Request{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
}
