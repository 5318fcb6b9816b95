package output

import (
	"encoding/json"
	"fmt"
	"io"

	"citrux/internal/agent"
	"citrux/internal/devloop"
	"citrux/internal/llm"
	"citrux/internal/state"
)

// jsonResult is the single document written by the json format.
type jsonResult struct {
	SessionID string        `json:"session_id"`
	Response  string        `json:"response,omitempty"`
	Stats     *StatsPayload `json:"stats,omitempty"`
	Error     *ErrorPayload `json:"error,omitempty"`
}

// jsonReporter stays silent until the session ends.
type jsonReporter struct {
	out    io.Writer
	errOut io.Writer
}

func newJSONReporter(opts Options) *jsonReporter {
	return &jsonReporter{out: opts.Stdout, errOut: opts.Stderr}
}

func (r *jsonReporter) Init(string, string)                         {}
func (r *jsonReporter) UserMessage(string)                          {}
func (r *jsonReporter) Deprecation(string)                          {}
func (r *jsonReporter) Content(string)                              {}
func (r *jsonReporter) ToolCall(state.ToolCall)                     {}
func (r *jsonReporter) ToolResult(state.ToolCall, state.ToolResult) {}
func (r *jsonReporter) Usage(llm.Usage)                             {}
func (r *jsonReporter) Notice(string, string)                       {}
func (r *jsonReporter) TurnComplete()                               {}
func (r *jsonReporter) VerifyStarted(int, int, string)              {}
func (r *jsonReporter) Stopped(string)                              {}

func (r *jsonReporter) VerifyFinished(v devloop.Verification) {
	if v.Outcome == devloop.OutcomeVerificationError {
		fmt.Fprintf(r.errOut, "Error during verification: %v\n", v.Err)
	}
}

func (r *jsonReporter) Finish(s agent.Summary) error {
	doc := jsonResult{SessionID: s.SessionID}
	if s.Err != nil {
		doc.Error = errorPayload(s.Err)
	} else {
		stats := statsPayload(s.Stats)
		doc.Response = s.Response
		doc.Stats = &stats
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json output: %w", err)
	}
	_, err = fmt.Fprintf(r.out, "%s\n", data)
	return err
}
