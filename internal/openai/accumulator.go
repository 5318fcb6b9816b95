package openai

import (
	"encoding/json"
	"sort"
	"strings"

	"citrux/internal/logging"
	"citrux/internal/state"
)

// pendingCall collects the fragments of one streamed tool call.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// accumulator keys partial tool calls by their stream index. Calls are only
// parsed when the backend signals the end of the turn, because argument
// fragments are not valid JSON until then.
type accumulator struct {
	calls map[int]*pendingCall
	newID func() string
}

func newAccumulator(newID func() string) *accumulator {
	return &accumulator{calls: make(map[int]*pendingCall), newID: newID}
}

// add merges one delta. Names overwrite, argument fragments append and the
// first non-empty id sticks.
func (a *accumulator) add(d toolCallDelta) {
	pc, ok := a.calls[d.Index]
	if !ok {
		pc = &pendingCall{}
		a.calls[d.Index] = pc
	}
	if d.ID != "" && pc.id == "" {
		pc.id = d.ID
	}
	if d.Function.Name != "" {
		pc.name = d.Function.Name
	}
	pc.args.WriteString(d.Function.Arguments)
}

func (a *accumulator) pending() int {
	return len(a.calls)
}

// finalize returns every complete call in ascending index order and clears
// the accumulator. Entries without a name or with arguments that do not
// decode to a JSON object are dropped.
func (a *accumulator) finalize() []state.ToolCall {
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]state.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		pc := a.calls[idx]
		if pc.name == "" {
			logging.DevLog("openai: dropping tool call at index %d without a name", idx)
			continue
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(pc.args.String()); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
				logging.DevLog("openai: dropping tool call %s at index %d: arguments are not a JSON object: %v", pc.name, idx, err)
				continue
			}
		}
		id := pc.id
		if id == "" {
			id = a.newID()
		}
		out = append(out, state.ToolCall{ID: id, Name: pc.name, Args: args})
	}
	a.calls = make(map[int]*pendingCall)
	return out
}
