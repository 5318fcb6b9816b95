package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"citrux/internal/agent"
	"citrux/internal/devloop"
	"citrux/internal/llm"
	"citrux/internal/logging"
	"citrux/internal/state"
)

// Stream event types.
const (
	EventInit       = "init"
	EventMessage    = "message"
	EventToolUse    = "tool_use"
	EventToolResult = "tool_result"
	EventError      = "error"
	EventResult     = "result"
)

// StreamEvent is one line of stream-json output. Fields are populated
// according to Type.
type StreamEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`

	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`

	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	Delta   bool   `json:"delta,omitempty"`

	ToolName   string         `json:"tool_name,omitempty"`
	ToolID     string         `json:"tool_id,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	Status string        `json:"status,omitempty"`
	Output string        `json:"output,omitempty"`
	Error  *ErrorPayload `json:"error,omitempty"`

	Severity string `json:"severity,omitempty"`
	Message  string `json:"message,omitempty"`

	Stats *StatsPayload `json:"stats,omitempty"`
}

// streamReporter writes one JSON object per line as events happen.
type streamReporter struct {
	enc    *json.Encoder
	errOut io.Writer
	now    func() time.Time
}

func newStreamReporter(opts Options) *streamReporter {
	enc := json.NewEncoder(opts.Stdout)
	enc.SetEscapeHTML(false)
	return &streamReporter{enc: enc, errOut: opts.Stderr, now: opts.Now}
}

func (r *streamReporter) emit(ev StreamEvent) {
	ev.Timestamp = r.now().UTC().Format(time.RFC3339Nano)
	if err := r.enc.Encode(ev); err != nil {
		logging.ErrorLog("stream-json: %v", err)
	}
}

func (r *streamReporter) Init(sessionID, model string) {
	r.emit(StreamEvent{Type: EventInit, SessionID: sessionID, Model: model})
}

func (r *streamReporter) UserMessage(text string) {
	r.emit(StreamEvent{Type: EventMessage, Role: "user", Content: text})
}

func (r *streamReporter) Deprecation(text string) {
	r.emit(StreamEvent{Type: EventMessage, Role: "assistant", Content: text, Delta: true})
}

func (r *streamReporter) Content(text string) {
	r.emit(StreamEvent{Type: EventMessage, Role: "assistant", Content: text, Delta: true})
}

func (r *streamReporter) ToolCall(call state.ToolCall) {
	r.emit(StreamEvent{Type: EventToolUse, ToolName: call.Name, ToolID: call.ID, Parameters: call.Args})
}

func (r *streamReporter) ToolResult(call state.ToolCall, res state.ToolResult) {
	ev := StreamEvent{Type: EventToolResult, ToolID: call.ID, Status: "success", Output: res.Output}
	if res.Failed() {
		kind := string(res.ErrorKind)
		if kind == "" {
			kind = string(state.ErrorToolExecution)
		}
		ev.Status = "error"
		ev.Error = &ErrorPayload{Type: kind, Message: res.Error}
	}
	r.emit(ev)
}

func (r *streamReporter) Usage(llm.Usage) {}

func (r *streamReporter) Notice(severity, message string) {
	r.emit(StreamEvent{Type: EventError, Severity: severity, Message: message})
}

func (r *streamReporter) TurnComplete()                  {}
func (r *streamReporter) VerifyStarted(int, int, string) {}
func (r *streamReporter) Stopped(string)                 {}

func (r *streamReporter) VerifyFinished(v devloop.Verification) {
	if v.Outcome == devloop.OutcomeVerificationError {
		fmt.Fprintf(r.errOut, "Error during verification: %v\n", v.Err)
	}
}

func (r *streamReporter) Finish(s agent.Summary) error {
	stats := statsPayload(s.Stats)
	ev := StreamEvent{Type: EventResult, Status: "success", Stats: &stats}
	if s.Err != nil {
		ev.Status = "error"
		ev.Error = errorPayload(s.Err)
	}
	ev.Timestamp = r.now().UTC().Format(time.RFC3339Nano)
	return r.enc.Encode(ev)
}
