// Package protocol defines the JSON-RPC 2.0 wire format spoken with target
// servers and the line framing that turns a byte stream into discrete
// messages.
package protocol

import (
	"encoding/json"
	"fmt"
)

// JSONRPC2Request represents a JSON-RPC 2.0 request message
type JSONRPC2Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      *int64      `json:"id,omitempty"`
}

// JSONRPC2Response represents a JSON-RPC 2.0 response message
type JSONRPC2Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

// RPCError represents a JSON-RPC 2.0 error object
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Baseline MCP methods exercised by the harness.
const (
	MethodInitialize    = "initialize"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
	MethodPromptsList   = "prompts/list"

	NotificationInitialized = "notifications/initialized"
)

// Version is the protocol version token sent during the handshake.
const Version = "2024-11-05"

// NewRequest builds a correlated request for the given id.
func NewRequest(id int64, method string, params interface{}) *JSONRPC2Request {
	return &JSONRPC2Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      &id,
	}
}

// NewResponse builds a success response carrying the marshaled result.
func NewResponse(id int64, result interface{}) (*JSONRPC2Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &JSONRPC2Response{
		JSONRPC: "2.0",
		Result:  data,
		ID:      id,
	}, nil
}

// NewErrorResponse builds an error response for the given id.
func NewErrorResponse(id int64, code int, message string) *JSONRPC2Response {
	return &JSONRPC2Response{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message},
		ID:      id,
	}
}

// NewNotification builds an id-less notification message.
func NewNotification(method string, params interface{}) *JSONRPC2Request {
	return &JSONRPC2Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
}

// Encode marshals a message and appends the line terminator required by the
// wire format (one JSON value per line).
func Encode(msg interface{}) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return append(data, '\n'), nil
}

// Message is the decoded form of one inbound wire line. Exactly one of the
// interpretations applies: a response carries an id, a notification carries
// a method and no id.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      *int64          `json:"id,omitempty"`
}

// IsResponse reports whether the message correlates to an outstanding
// request.
func (m *Message) IsResponse() bool {
	return m.ID != nil && m.Method == ""
}

// IsNotification reports whether the message is a server-initiated
// notification.
func (m *Message) IsNotification() bool {
	return m.ID == nil && m.Method != ""
}

// Decode parses one complete wire line into a Message.
func Decode(line []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	return &msg, nil
}
