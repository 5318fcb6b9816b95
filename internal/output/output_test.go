package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citrux/internal/agent"
	"citrux/internal/devloop"
	"citrux/internal/llm"
	"citrux/internal/state"
)

var fixedNow = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

type upperRenderer struct{}

func (upperRenderer) Render(md string) (string, error) { return "<" + strings.ToUpper(md) + ">\n\n", nil }

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, " stream-json ": FormatStreamJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("yaml")
	assert.Error(t, err)
}

func TestTextReporterStreamsAndEnsuresNewline(t *testing.T) {
	var out, errOut bytes.Buffer
	r := New(Options{Format: FormatText, Stdout: &out, Stderr: &errOut})

	r.Init("s1", "m")
	r.Deprecation(agent.DeprecationNotice)
	r.Content("Hello ")
	r.Content("world")
	call := state.ToolCall{ID: "c1", Name: "shell"}
	r.ToolCall(call)
	r.ToolResult(call, state.ToolResult{CallID: "c1", Error: "exit 2", ErrorKind: state.ErrorToolExecution})
	r.Content("done")
	r.TurnComplete()
	require.NoError(t, r.Finish(agent.Summary{SessionID: "s1"}))

	assert.Equal(t, "Hello world\ndone\n", out.String())
	assert.Equal(t, agent.DeprecationNotice+"Error executing tool shell: exit 2\n", errOut.String())
}

func TestTextReporterDevLoopBanners(t *testing.T) {
	var out, errOut bytes.Buffer
	r := New(Options{Stdout: &out, Stderr: &errOut})

	r.VerifyStarted(1, 2, "go test ./...")
	r.VerifyFinished(devloop.Verification{Outcome: devloop.OutcomeRetry, ExitCode: 1, Output: "FAIL"})
	r.VerifyStarted(2, 2, "go test ./...")
	r.VerifyFinished(devloop.Verification{Outcome: devloop.OutcomeMaxIterations, ExitCode: 1, Output: "FAIL again", MaxIterations: 2})
	r.VerifyFinished(devloop.Verification{Outcome: devloop.OutcomeVerificationError, Err: errors.New("no shell")})

	text := out.String()
	assert.Contains(t, text, "\n[Iteration 1/2] Verifying: go test ./......\n")
	assert.Contains(t, text, "❌ Verification failed (Exit code: 1).\n\nOutput:\nFAIL\n")
	assert.Contains(t, text, "🛑 Reached maximum iterations (2). Stopping loop.\n")
	assert.Equal(t, "Error during verification: no shell\n", errOut.String())

	out.Reset()
	r.VerifyFinished(devloop.Verification{Outcome: devloop.OutcomeSuccess, Output: "ok"})
	r.VerifyFinished(devloop.Verification{Outcome: devloop.OutcomeStagnant})
	assert.Equal(t, "✅ Verification passed!\n\nOutput:\nok\n🛑 Stagnation detected: Verification error output hasn't changed. Stopping loop.\n", out.String())
}

func TestTextReporterRendersMarkdownPerTurn(t *testing.T) {
	var out bytes.Buffer
	r := New(Options{Stdout: &out, Stderr: &bytes.Buffer{}, Markdown: upperRenderer{}})

	r.Content("# title")
	r.Content(" body")
	assert.Empty(t, out.String())
	r.TurnComplete()
	assert.Equal(t, "<# TITLE BODY>\n", out.String())
}

func TestTextReporterStoppedAndError(t *testing.T) {
	var out, errOut bytes.Buffer
	r := New(Options{Stdout: &out, Stderr: &errOut})

	r.Content("partial")
	r.Stopped("goal reached")
	require.NoError(t, r.Finish(agent.Summary{Err: agent.ErrCancelled}))

	assert.Equal(t, "partial\n", out.String())
	assert.Equal(t, "Agent execution stopped: goal reached\nOperation cancelled.\n", errOut.String())
}

func TestJSONReporter(t *testing.T) {
	var out bytes.Buffer
	r := New(Options{Format: FormatJSON, Stdout: &out, Stderr: &bytes.Buffer{}})
	r.Content("ignored while streaming")
	require.NoError(t, r.Finish(agent.Summary{
		SessionID: "s1",
		Response:  "final answer",
		Stats:     agent.Stats{InputTokens: 3, OutputTokens: 4, TotalTokens: 7, ToolCalls: 1, Duration: 1500 * time.Millisecond},
	}))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "s1", doc["session_id"])
	assert.Equal(t, "final answer", doc["response"])
	stats := doc["stats"].(map[string]any)
	assert.EqualValues(t, 7, stats["total_tokens"])
	assert.EqualValues(t, 1500, stats["duration_ms"])
	assert.NotContains(t, doc, "error")
}

func TestJSONReporterError(t *testing.T) {
	var out bytes.Buffer
	r := New(Options{Format: FormatJSON, Stdout: &out, Stderr: &bytes.Buffer{}})
	require.NoError(t, r.Finish(agent.Summary{SessionID: "s1", Err: agent.ErrMaxTurns}))

	var doc struct {
		SessionID string        `json:"session_id"`
		Error     *ErrorPayload `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	require.NotNil(t, doc.Error)
	assert.Equal(t, "FatalTurnLimitedError", doc.Error.Type)
	assert.Equal(t, agent.ExitMaxTurns, doc.Error.Code)
}

func TestStreamReporterEmitsOneObjectPerLine(t *testing.T) {
	var out bytes.Buffer
	r := New(Options{Format: FormatStreamJSON, Stdout: &out, Stderr: &bytes.Buffer{}, Now: fixedNow})

	call := state.ToolCall{ID: "c1", Name: "read_file", Args: map[string]any{"path": "a<b>.go"}}
	r.Init("s1", "gpt")
	r.UserMessage("hi")
	r.Content("Sure")
	r.ToolCall(call)
	r.ToolResult(call, state.ToolResult{CallID: "c1", Output: "data"})
	r.ToolResult(call, state.ToolResult{CallID: "c1", Error: "boom", ErrorKind: state.ErrorInvalidToolParams})
	r.Usage(llm.Usage{TotalTokens: 9})
	r.Notice(agent.SeverityWarning, "Loop detected, stopping execution")
	require.NoError(t, r.Finish(agent.Summary{SessionID: "s1", Stats: agent.Stats{TotalTokens: 9}}))

	raw := out.String()
	assert.Contains(t, raw, `a<b>.go`)

	var events []StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		var ev StreamEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		assert.Equal(t, "2026-02-03T04:05:06Z", ev.Timestamp)
		events = append(events, ev)
	}
	require.Len(t, events, 8)
	assert.Equal(t, EventInit, events[0].Type)
	assert.Equal(t, "gpt", events[0].Model)
	assert.Equal(t, "user", events[1].Role)
	assert.True(t, events[2].Delta)
	assert.Equal(t, EventToolUse, events[3].Type)
	assert.Equal(t, "a<b>.go", events[3].Parameters["path"])
	assert.Equal(t, "success", events[4].Status)
	assert.Equal(t, "error", events[5].Status)
	assert.Equal(t, "INVALID_TOOL_PARAMS", events[5].Error.Type)
	assert.Equal(t, "warning", events[6].Severity)
	assert.Equal(t, EventResult, events[7].Type)
	assert.Equal(t, "success", events[7].Status)
	assert.Equal(t, 9, events[7].Stats.TotalTokens)
}

func TestStreamReporterErrorResult(t *testing.T) {
	var out bytes.Buffer
	r := New(Options{Format: FormatStreamJSON, Stdout: &out, Stderr: &bytes.Buffer{}, Now: fixedNow})
	require.NoError(t, r.Finish(agent.Summary{Err: agent.ErrCancelled}))

	var ev StreamEvent
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &ev))
	assert.Equal(t, "error", ev.Status)
	assert.Equal(t, agent.ExitCancelled, ev.Error.Code)
}
