package state

import (
	"errors"
	"fmt"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrorKind classifies a failed tool invocation.
type ErrorKind string

const (
	ErrorToolNotRegistered  ErrorKind = "TOOL_NOT_REGISTERED"
	ErrorInvalidToolParams  ErrorKind = "INVALID_TOOL_PARAMS"
	ErrorToolExecution      ErrorKind = "TOOL_EXECUTION_ERROR"
	ErrorStopExecution      ErrorKind = "STOP_EXECUTION"
	ErrorExecutionCancelled ErrorKind = "EXECUTION_CANCELLED"
)

// ErrOrphanResult is returned when a tool result does not answer the
// preceding assistant turn.
var ErrOrphanResult = errors.New("tool result does not match a pending tool call")

// ToolCall is a finalized function call request emitted by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult is the outcome of dispatching a ToolCall.
type ToolResult struct {
	CallID    string    `json:"call_id"`
	Name      string    `json:"name"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// Failed reports whether the tool returned an error.
func (r ToolResult) Failed() bool {
	return r.ErrorKind != "" || r.Error != ""
}

// Part is one element of a turn. Exactly one of Text, Call or Result is set.
type Part struct {
	Text   string      `json:"text,omitempty"`
	Call   *ToolCall   `json:"call,omitempty"`
	Result *ToolResult `json:"result,omitempty"`
}

// TextPart wraps plain text.
func TextPart(text string) Part { return Part{Text: text} }

// CallPart wraps a tool call request.
func CallPart(call ToolCall) Part { return Part{Call: &call} }

// ResultPart wraps a tool result.
func ResultPart(result ToolResult) Part { return Part{Result: &result} }

// Turn is one message in the conversation.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text concatenates the text parts of the turn.
func (t Turn) Text() string {
	var out string
	for _, p := range t.Parts {
		out += p.Text
	}
	return out
}

// ToolCalls returns the tool calls of the turn in order.
func (t Turn) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range t.Parts {
		if p.Call != nil {
			calls = append(calls, *p.Call)
		}
	}
	return calls
}

// ToolResults returns the tool results of the turn in order.
func (t Turn) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range t.Parts {
		if p.Result != nil {
			results = append(results, *p.Result)
		}
	}
	return results
}

// Conversation is the ordered history of a single session. It is owned by
// one driver and is not safe for concurrent use.
type Conversation struct {
	turns     []Turn
	createdAt time.Time
	updatedAt time.Time
}

// NewConversation returns an empty history.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Turns exposes a copy of the history.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}

// Last returns the most recent turn.
func (c *Conversation) Last() (Turn, bool) {
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// Append adds a turn. A user turn that carries tool results must answer
// every tool call of the immediately preceding assistant turn, in order.
func (c *Conversation) Append(turn Turn) error {
	if err := c.checkCorrelation(turn); err != nil {
		return err
	}
	c.turns = append(c.turns, turn)
	c.touch()
	return nil
}

func (c *Conversation) checkCorrelation(turn Turn) error {
	results := turn.ToolResults()
	if len(results) == 0 {
		return nil
	}
	if turn.Role != RoleUser {
		return fmt.Errorf("%w: results must be sent by the user role", ErrOrphanResult)
	}
	prev, ok := c.Last()
	if !ok || prev.Role != RoleAssistant {
		return fmt.Errorf("%w: no preceding assistant turn", ErrOrphanResult)
	}
	calls := prev.ToolCalls()
	if len(calls) != len(results) {
		return fmt.Errorf("%w: %d calls, %d results", ErrOrphanResult, len(calls), len(results))
	}
	for i := range calls {
		if calls[i].ID != results[i].CallID {
			return fmt.Errorf("%w: position %d answers %q, expected %q", ErrOrphanResult, i, results[i].CallID, calls[i].ID)
		}
	}
	return nil
}

// CreatedAt returns when the first turn was added.
func (c *Conversation) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns when the conversation last changed.
func (c *Conversation) UpdatedAt() time.Time {
	return c.updatedAt
}

func (c *Conversation) touch() {
	now := time.Now()
	if c.createdAt.IsZero() {
		c.createdAt = now
	}
	c.updatedAt = now
}
