package commands

import "encoding/json"

// Version is the only JSON-RPC version accepted.
const Version = "2.0"

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeUnavailable is in the implementation-defined server error range.
	CodeUnavailable = -32001
)

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string       `json:"jsonrpc"`
	Result  interface{}  `json:"result,omitempty"`
	Error   *ErrorObject `json:"error,omitempty"`
	ID      interface{}  `json:"id"`
}

// ErrorObject represents a JSON-RPC 2.0 error
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// NewResult wraps a successful result.
func NewResult(id interface{}, result interface{}) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

// NewError wraps an error.
func NewError(id interface{}, code int, message, data string) *Response {
	return &Response{
		JSONRPC: Version,
		Error:   &ErrorObject{Code: code, Message: message, Data: data},
		ID:      id,
	}
}
