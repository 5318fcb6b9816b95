package output

import (
	"fmt"
	"strings"

	"citrux/internal/agent"
	"citrux/internal/devloop"
	"citrux/internal/llm"
	"citrux/internal/logging"
	"citrux/internal/state"
)

// textReporter streams assistant text to stdout and diagnostics to stderr.
type textReporter struct {
	out      *lineWriter
	errOut   *lineWriter
	markdown Renderer
	pending  strings.Builder
}

func newTextReporter(opts Options) *textReporter {
	return &textReporter{
		out:      &lineWriter{w: opts.Stdout},
		errOut:   &lineWriter{w: opts.Stderr},
		markdown: opts.Markdown,
	}
}

func (r *textReporter) Init(string, string)     {}
func (r *textReporter) UserMessage(string)      {}
func (r *textReporter) ToolCall(state.ToolCall) {}
func (r *textReporter) Usage(llm.Usage)         {}

func (r *textReporter) Content(text string) {
	if text == "" {
		return
	}
	if r.markdown != nil {
		r.pending.WriteString(text)
		return
	}
	r.out.WriteString(text)
}

func (r *textReporter) flush() {
	if r.pending.Len() == 0 {
		return
	}
	text := r.pending.String()
	r.pending.Reset()
	if strings.TrimSpace(text) == "" {
		r.out.WriteString(text)
		return
	}
	rendered, err := r.markdown.Render(text)
	if err != nil {
		logging.ErrorLog("markdown render failed: %v", err)
		r.out.WriteString(text)
		return
	}
	r.out.WriteString(strings.TrimRight(rendered, "\n") + "\n")
}

func (r *textReporter) ToolResult(call state.ToolCall, res state.ToolResult) {
	r.flush()
	_ = r.out.EnsureTrailingNewline()
	if !res.Failed() || res.ErrorKind == state.ErrorStopExecution {
		return
	}
	r.errOut.WriteString(fmt.Sprintf("Error executing tool %s: %s\n", call.Name, res.Error))
}

func (r *textReporter) Notice(severity, message string) {
	r.errOut.WriteString(fmt.Sprintf("[%s] %s\n", severity, message))
}

func (r *textReporter) Deprecation(text string) {
	r.errOut.WriteString(text)
}

func (r *textReporter) TurnComplete() {
	r.flush()
}

func (r *textReporter) VerifyStarted(iteration, maxIterations int, command string) {
	r.out.WriteString(fmt.Sprintf("\n[Iteration %d/%d] Verifying: %s...\n", iteration, maxIterations, command))
}

func (r *textReporter) VerifyFinished(v devloop.Verification) {
	switch v.Outcome {
	case devloop.OutcomeSuccess:
		r.out.WriteString(fmt.Sprintf("✅ Verification passed!\n\nOutput:\n%s\n", v.Output))
	case devloop.OutcomeStagnant:
		r.out.WriteString("🛑 Stagnation detected: Verification error output hasn't changed. Stopping loop.\n")
	case devloop.OutcomeRetry:
		r.out.WriteString(fmt.Sprintf("❌ Verification failed (Exit code: %d).\n\nOutput:\n%s\n", v.ExitCode, v.Output))
	case devloop.OutcomeMaxIterations:
		r.out.WriteString(fmt.Sprintf("❌ Verification failed (Exit code: %d).\n\nOutput:\n%s\n", v.ExitCode, v.Output))
		r.out.WriteString(fmt.Sprintf("🛑 Reached maximum iterations (%d). Stopping loop.\n", v.MaxIterations))
	case devloop.OutcomeVerificationError:
		r.errOut.WriteString(fmt.Sprintf("Error during verification: %v\n", v.Err))
	}
}

func (r *textReporter) Stopped(message string) {
	r.flush()
	_ = r.out.EnsureTrailingNewline()
	r.errOut.WriteString(fmt.Sprintf("Agent execution stopped: %s\n", message))
}

func (r *textReporter) Finish(s agent.Summary) error {
	r.flush()
	if err := r.out.EnsureTrailingNewline(); err != nil {
		return err
	}
	if s.Err != nil {
		r.errOut.WriteString(s.Err.Error() + "\n")
	}
	return nil
}
