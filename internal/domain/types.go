package domain

import (
	"encoding/json"
	"time"
)

// ServerInfo describes the target server as reported during the handshake.
type ServerInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version,omitempty"`
	ProtocolVersion string `json:"protocol_version"`
}

// ToolDescriptor describes a tool obtained from discovery. The input schema
// is kept as the raw JSON-Schema-like object the server returned.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// ResourceDescriptor describes a resource obtained from best-effort discovery.
type ResourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PromptDescriptor describes a prompt obtained from best-effort discovery.
type PromptDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ContentItem is one typed content element of a tool result. The target
// protocol commonly returns a list of these, at least the "text" variant.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data string `json:"data,omitempty"`
}

// ToolResult is the application-defined result of a tool invocation.
type ToolResult struct {
	Content []ContentItem   `json:"content,omitempty"`
	IsError bool            `json:"isError,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// Text concatenates all text content items into one string.
func (r *ToolResult) Text() string {
	var out string
	for _, item := range r.Content {
		if item.Type == "text" {
			out += item.Text
		}
	}
	return out
}

// TestCaseResult records the outcome of a single functional test case.
// Produced once and never mutated afterward.
type TestCaseResult struct {
	Label     string                 `json:"label,omitempty"`
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Success   bool                   `json:"success"`
	Response  *ToolResult            `json:"response,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Elapsed   time.Duration          `json:"elapsed"`
}

// NegativeCaseResult records the outcome of a deliberately invalid
// invocation and whether the observed failure matched expectations.
type NegativeCaseResult struct {
	Label           string                 `json:"label,omitempty"`
	ToolName        string                 `json:"tool_name"`
	Arguments       map[string]interface{} `json:"arguments,omitempty"`
	Passed          bool                   `json:"passed"`
	MatchReason     string                 `json:"match_reason"`
	ObservedError   string                 `json:"observed_error,omitempty"`
	ExpectedPattern string                 `json:"expected_pattern,omitempty"`
	Elapsed         time.Duration          `json:"elapsed"`
}
