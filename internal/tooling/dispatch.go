package tooling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"citrux/internal/logging"
	"citrux/internal/state"
)

var (
	// ErrInvalidParams marks tool errors caused by malformed arguments.
	ErrInvalidParams = errors.New("invalid tool parameters")
	// ErrStopExecution is returned by tools that end the whole session.
	ErrStopExecution = errors.New("stop execution")
)

// MaxResultSize caps the tool output fed back to the model.
const MaxResultSize = 50000

// Dispatcher invokes registered tools and converts every outcome, including
// failures, into a state.ToolResult.
type Dispatcher struct {
	registry      *Registry
	maxResultSize int
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry, maxResultSize: MaxResultSize}
}

// Definitions exposes the schemas the model may call.
func (d *Dispatcher) Definitions() []ToolDefinition {
	return d.registry.Definitions()
}

// Execute runs a single tool call. It never returns a Go error: failures are
// reported through ToolResult.ErrorKind.
func (d *Dispatcher) Execute(ctx context.Context, call state.ToolCall) state.ToolResult {
	result := state.ToolResult{CallID: call.ID, Name: call.Name}

	tool, ok := d.registry.Lookup(call.Name)
	if !ok {
		msg := fmt.Sprintf("tool %s not registered", call.Name)
		logging.ErrorLog("%s", msg)
		result.ErrorKind = state.ErrorToolNotRegistered
		result.Error = msg
		return result
	}
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	if missing := missingRequired(tool.Definition(), args); missing != "" {
		result.ErrorKind = state.ErrorInvalidToolParams
		result.Error = fmt.Sprintf("invalid args for %s: missing required parameter %q", call.Name, missing)
		logging.ErrorLog("%s", result.Error)
		return result
	}

	logging.UserLog("Executing tool: %s", call.Name)
	start := time.Now()
	output, err := tool.Call(ctx, args)
	dur := time.Since(start).Round(time.Millisecond)
	if err != nil {
		logging.ErrorLog("tool %s failed after %s: %v", call.Name, dur, err)
		result.Error = err.Error()
		switch {
		case errors.Is(err, ErrStopExecution):
			result.ErrorKind = state.ErrorStopExecution
		case errors.Is(err, ErrInvalidParams):
			result.ErrorKind = state.ErrorInvalidToolParams
		case ctx.Err() != nil:
			result.ErrorKind = state.ErrorExecutionCancelled
		default:
			result.ErrorKind = state.ErrorToolExecution
		}
		return result
	}

	logging.DevLog("tool %s completed: %d bytes in %s", call.Name, len(output), dur)
	if n := len(output); d.maxResultSize > 0 && n > d.maxResultSize {
		output = output[:d.maxResultSize] + fmt.Sprintf("\n\n[TRUNCATED: Tool result too large (%d chars). Showing first %d chars. Use more specific filters, smaller ranges, or pagination.]", n, d.maxResultSize)
	}
	result.Output = output
	return result
}

func missingRequired(def ToolDefinition, args map[string]any) string {
	var required []string
	switch v := def.Function.Parameters["required"].(type) {
	case []string:
		required = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				required = append(required, s)
			}
		}
	}
	for _, name := range required {
		if _, ok := args[name]; !ok {
			return name
		}
	}
	return ""
}
