// Package assistant bridges the AI conversation channel to the finance
// tool pipeline.
package assistant

import (
	"context"
	"encoding/json"
)

// Kind discriminates channel events.
type Kind string

const (
	KindTranscript Kind = "transcript"
	KindToolCall   Kind = "tool_call"
	KindError      Kind = "error"
	KindClosed     Kind = "closed"
)

// ToolCallEvent is a function call issued by the model.
type ToolCallEvent struct {
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
	ToolCallID string          `json:"toolCallId"`
}

// ToolResponse answers one ToolCallEvent. Result is always a JSON document.
type ToolResponse struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
	Result     string `json:"result"`
}

// Event is one inbound message from the channel.
type Event struct {
	Kind     Kind           `json:"kind"`
	Text     string         `json:"text,omitempty"`
	ToolCall *ToolCallEvent `json:"toolCall,omitempty"`
}

// Channel is the bidirectional AI stream. Framing, audio and reconnection
// live behind it.
type Channel interface {
	Receive(ctx context.Context) (Event, error)
	SendToolResponse(ctx context.Context, resp ToolResponse) error
}
