package agent

import (
	"context"
	"fmt"
	"strings"

	"citrux/internal/llm"
	"citrux/internal/logging"
	"citrux/internal/state"
	"citrux/internal/tooling"
)

// Status is the terminal state of one Driver.Run.
type Status string

const (
	StatusTurnComplete     Status = "turn_complete"
	StatusAborted          Status = "aborted"
	StatusFailed           Status = "failed"
	StatusMaxTurnsExceeded Status = "max_turns_exceeded"
	StatusStopped          Status = "stopped"
)

// Severity of a driver notice.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Sink observes everything the driver streams or dispatches.
type Sink interface {
	Content(text string)
	ToolCall(call state.ToolCall)
	ToolResult(call state.ToolCall, result state.ToolResult)
	Usage(u llm.Usage)
	Notice(severity, message string)
}

// ToolExecutor runs one tool call. tooling.Dispatcher is the production
// implementation.
type ToolExecutor interface {
	Definitions() []tooling.ToolDefinition
	Execute(ctx context.Context, call state.ToolCall) state.ToolResult
}

// DriverOptions configures requests sent by the driver.
type DriverOptions struct {
	Model        string
	SystemPrompt string
	Temperature  float64
	// MaxSessionTurns caps model requests per session; negative means no cap.
	MaxSessionTurns int
}

// TurnResult is what Run reports on return.
type TurnResult struct {
	Status Status
	// Text is the visible output of the last model response.
	Text         string
	LoopDetected bool
	// StopMessage carries the reason of a STOP_EXECUTION result.
	StopMessage string
}

// Driver owns a conversation and runs model turns until the model stops
// asking for tools.
type Driver struct {
	gen   llm.ContentGenerator
	tools ToolExecutor
	sink  Sink
	opts  DriverOptions

	conv      *state.Conversation
	turns     int
	toolCalls int
	usage     llm.Usage
}

// NewDriver wires a generator, a tool executor and a sink around a fresh
// conversation.
func NewDriver(gen llm.ContentGenerator, tools ToolExecutor, sink Sink, opts DriverOptions) *Driver {
	return &Driver{
		gen:   gen,
		tools: tools,
		sink:  sink,
		opts:  opts,
		conv:  state.NewConversation(),
	}
}

// Conversation exposes the history for inspection.
func (d *Driver) Conversation() *state.Conversation { return d.conv }

// Usage returns the token totals reported so far.
func (d *Driver) Usage() llm.Usage { return d.usage }

// ToolCalls returns the number of dispatched tool calls.
func (d *Driver) ToolCalls() int { return d.toolCalls }

// Turns returns the number of model requests issued.
func (d *Driver) Turns() int { return d.turns }

// Run appends parts as a user turn and drives the model until the turn
// completes. Only backend failures are returned as errors; every other
// terminal condition is reported through TurnResult.Status.
func (d *Driver) Run(ctx context.Context, parts []state.Part) (TurnResult, error) {
	if err := d.conv.Append(state.Turn{Role: state.RoleUser, Parts: parts}); err != nil {
		return TurnResult{Status: StatusFailed}, fmt.Errorf("append user turn: %w", err)
	}

	for {
		d.turns++
		if d.opts.MaxSessionTurns >= 0 && d.turns > d.opts.MaxSessionTurns {
			return TurnResult{Status: StatusMaxTurnsExceeded}, nil
		}
		if ctx.Err() != nil {
			return TurnResult{Status: StatusAborted}, nil
		}

		resp, err := d.stream(ctx)
		if err != nil {
			return TurnResult{Status: StatusFailed, Text: resp.text}, err
		}
		result := TurnResult{Text: resp.text, LoopDetected: resp.loopDetected}
		switch {
		case resp.aborted || ctx.Err() != nil:
			result.Status = StatusAborted
			return result, nil
		case resp.maxTurns:
			result.Status = StatusMaxTurnsExceeded
			return result, nil
		}

		calls := resp.calls
		if resp.loopDetected {
			calls = nil
		}
		assistant := state.Turn{Role: state.RoleAssistant}
		if resp.text != "" {
			assistant.Parts = append(assistant.Parts, state.TextPart(resp.text))
		}
		for _, call := range calls {
			assistant.Parts = append(assistant.Parts, state.CallPart(call))
		}
		if len(assistant.Parts) > 0 {
			if err := d.conv.Append(assistant); err != nil {
				return TurnResult{Status: StatusFailed}, fmt.Errorf("append assistant turn: %w", err)
			}
		}

		if len(calls) == 0 {
			result.Status = StatusTurnComplete
			return result, nil
		}

		results := make([]state.Part, 0, len(calls))
		for _, call := range calls {
			if ctx.Err() != nil {
				result.Status = StatusAborted
				return result, nil
			}
			res := d.tools.Execute(ctx, call)
			d.toolCalls++
			d.sink.ToolResult(call, res)
			if res.ErrorKind == state.ErrorStopExecution {
				logging.UserLog("agent: %s requested stop: %s", call.Name, res.Error)
				result.Status = StatusStopped
				result.StopMessage = stopMessage(res.Error)
				return result, nil
			}
			results = append(results, state.ResultPart(res))
		}
		if ctx.Err() != nil {
			result.Status = StatusAborted
			return result, nil
		}
		if err := d.conv.Append(state.Turn{Role: state.RoleUser, Parts: results}); err != nil {
			return TurnResult{Status: StatusFailed}, fmt.Errorf("append tool results: %w", err)
		}
	}
}

type streamed struct {
	text         string
	calls        []state.ToolCall
	loopDetected bool
	maxTurns     bool
	aborted      bool
}

func (d *Driver) stream(ctx context.Context) (streamed, error) {
	req := llm.Request{
		Model:        d.opts.Model,
		SystemPrompt: d.opts.SystemPrompt,
		History:      d.conv.Turns(),
		Tools:        d.tools.Definitions(),
		Temperature:  d.opts.Temperature,
	}
	logging.DevLog("agent: request %d with %d turns", d.turns, len(req.History))

	var out streamed
	var text strings.Builder
	for ev := range d.gen.GenerateStream(ctx, req) {
		if ctx.Err() != nil {
			out.aborted = true
			break
		}
		switch ev.Type {
		case llm.EventContent:
			text.WriteString(ev.Text)
			d.sink.Content(ev.Text)
		case llm.EventToolCallRequest:
			if ev.ToolCall == nil {
				continue
			}
			out.calls = append(out.calls, *ev.ToolCall)
			d.sink.ToolCall(*ev.ToolCall)
		case llm.EventUsage:
			if ev.Usage != nil {
				d.usage.Add(*ev.Usage)
				d.sink.Usage(*ev.Usage)
			}
		case llm.EventLoopDetected:
			out.loopDetected = true
			d.sink.Notice(SeverityWarning, "Loop detected, stopping execution")
		case llm.EventMaxTurnsExceeded:
			out.maxTurns = true
			d.sink.Notice(SeverityError, "Maximum session turns exceeded")
		case llm.EventError:
			out.text = text.String()
			return out, fmt.Errorf("model stream: %w", ev.Err)
		}
	}
	out.text = text.String()
	if ctx.Err() != nil {
		out.aborted = true
	}
	return out, nil
}

func stopMessage(errText string) string {
	_, msg, ok := strings.Cut(errText, tooling.ErrStopExecution.Error()+": ")
	if ok {
		return msg
	}
	return errText
}
