package llm

import (
	"context"
	"iter"

	"citrux/internal/state"
	"citrux/internal/tooling"
)

// Request is the provider-agnostic payload for one streamed model turn. The
// history already ends with the pending user turn.
type Request struct {
	Model        string
	SystemPrompt string
	History      []state.Turn
	Tools        []tooling.ToolDefinition
	Temperature  float64
}

// Usage contains token consumption metrics from the LLM API.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage report.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// EventType tags the variant carried by an Event.
type EventType string

const (
	EventContent          EventType = "content"
	EventToolCallRequest  EventType = "tool_call_request"
	EventError            EventType = "error"
	EventLoopDetected     EventType = "loop_detected"
	EventMaxTurnsExceeded EventType = "max_turns_exceeded"
	EventUsage            EventType = "usage"
)

// Event is one element of a response stream.
type Event struct {
	Type     EventType
	Text     string
	ToolCall *state.ToolCall
	Err      error
	Usage    *Usage
}

// ContentEvent wraps a text delta.
func ContentEvent(text string) Event { return Event{Type: EventContent, Text: text} }

// ToolCallEvent wraps a finalized tool call.
func ToolCallEvent(call state.ToolCall) Event {
	return Event{Type: EventToolCallRequest, ToolCall: &call}
}

// ErrorEvent wraps a backend failure.
func ErrorEvent(err error) Event { return Event{Type: EventError, Err: err} }

// UsageEvent wraps token statistics.
func UsageEvent(u Usage) Event { return Event{Type: EventUsage, Usage: &u} }

// ContentGenerator streams one model turn. The returned sequence is finite,
// yields events in wire order and can be consumed once. Cancelling ctx ends
// the sequence without an error event.
type ContentGenerator interface {
	GenerateStream(ctx context.Context, req Request) iter.Seq[Event]
}

// Collect drains a stream into a slice. Intended for tests and tools.
func Collect(seq iter.Seq[Event]) []Event {
	var out []Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}
