package agent

import (
	"context"
	"fmt"
	"sync"

	"citrux/internal/devloop"
	"citrux/internal/llm"
	"citrux/internal/runlog"
	"citrux/internal/state"
	"citrux/internal/tooling"
)

// recorder implements Reporter and keeps a flat log of what it saw.
type recorder struct {
	mu      sync.Mutex
	events  []string
	text    string
	results []state.ToolResult
	summary *Summary
	verifs  []devloop.Verification
	stopped string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) Content(text string) {
	r.add("content:%s", text)
	r.mu.Lock()
	r.text += text
	r.mu.Unlock()
}
func (r *recorder) ToolCall(call state.ToolCall) { r.add("call:%s:%s", call.ID, call.Name) }
func (r *recorder) ToolResult(call state.ToolCall, res state.ToolResult) {
	r.add("result:%s:%s", call.ID, res.ErrorKind)
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}
func (r *recorder) Usage(u llm.Usage) { r.add("usage:%d", u.TotalTokens) }
func (r *recorder) Notice(severity, message string) { r.add("notice:%s:%s", severity, message) }
func (r *recorder) Init(sessionID, model string) { r.add("init:%s", model) }
func (r *recorder) UserMessage(text string) { r.add("user") }
func (r *recorder) Deprecation(text string) { r.add("deprecation") }
func (r *recorder) TurnComplete() { r.add("turn") }
func (r *recorder) VerifyStarted(i, max int, c string) { r.add("verify:%d/%d:%s", i, max, c) }
func (r *recorder) VerifyFinished(v devloop.Verification) {
	r.add("verified:%s", v.Outcome)
	r.mu.Lock()
	r.verifs = append(r.verifs, v)
	r.mu.Unlock()
}
func (r *recorder) Stopped(message string) {
	r.add("stopped")
	r.stopped = message
}
func (r *recorder) Finish(s Summary) error {
	r.add("finish")
	r.summary = &s
	return nil
}

// orderedTools records dispatch order and answers from a table.
type orderedTools struct {
	order   []string
	outputs map[string]state.ToolResult
	hook    func(call state.ToolCall)
}

func (o *orderedTools) Definitions() []tooling.ToolDefinition { return nil }

func (o *orderedTools) Execute(_ context.Context, call state.ToolCall) state.ToolResult {
	o.order = append(o.order, call.ID)
	if o.hook != nil {
		o.hook(call)
	}
	if res, ok := o.outputs[call.ID]; ok {
		res.CallID = call.ID
		res.Name = call.Name
		return res
	}
	return state.ToolResult{CallID: call.ID, Name: call.Name, Output: "ok:" + call.ID}
}

type memRuns struct {
	mu       sync.Mutex
	sessions []runlog.Session
	attempts []runlog.Attempt
}

func (m *memRuns) RecordSession(_ context.Context, rec runlog.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, rec)
	return nil
}

func (m *memRuns) RecordAttempt(_ context.Context, a runlog.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	return nil
}

func call(id, name string, args map[string]any) llm.Event {
	if args == nil {
		args = map[string]any{}
	}
	return llm.ToolCallEvent(state.ToolCall{ID: id, Name: name, Args: args})
}
