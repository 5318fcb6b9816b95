// Package output renders a session as plain text, a single JSON document
// or a stream of JSON lines.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"citrux/internal/agent"
)

// Format selects an output renderer.
type Format string

const (
	FormatText       Format = "text"
	FormatJSON       Format = "json"
	FormatStreamJSON Format = "stream-json"
)

// ParseFormat validates a format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatStreamJSON:
		return FormatStreamJSON, nil
	default:
		return "", fmt.Errorf("invalid output format %q (want text, json or stream-json)", s)
	}
}

// Renderer turns markdown into terminal output.
type Renderer interface {
	Render(markdown string) (string, error)
}

// Options configures New.
type Options struct {
	Format Format
	Stdout io.Writer
	Stderr io.Writer
	// Markdown renders completed text turns; nil streams raw deltas.
	Markdown Renderer
	Now      func() time.Time
}

// New returns the reporter for opts.Format.
func New(opts Options) agent.Reporter {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	switch opts.Format {
	case FormatJSON:
		return newJSONReporter(opts)
	case FormatStreamJSON:
		return newStreamReporter(opts)
	default:
		return newTextReporter(opts)
	}
}

// StatsPayload is the stats object shared by json and stream-json.
type StatsPayload struct {
	TotalTokens  int   `json:"total_tokens"`
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	DurationMS   int64 `json:"duration_ms"`
	ToolCalls    int   `json:"tool_calls"`
	Turns        int   `json:"turns"`
}

func statsPayload(s agent.Stats) StatsPayload {
	return StatsPayload{
		TotalTokens:  s.TotalTokens,
		InputTokens:  s.InputTokens,
		OutputTokens: s.OutputTokens,
		DurationMS:   s.Duration.Milliseconds(),
		ToolCalls:    s.ToolCalls,
		Turns:        s.Turns,
	}
}

// ErrorPayload describes a failed session.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

func errorPayload(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	return &ErrorPayload{Type: agent.ErrorType(err), Message: err.Error(), Code: agent.ExitCode(err)}
}

// lineWriter remembers whether the last byte written was a newline.
type lineWriter struct {
	w       io.Writer
	written bool
	atEOL   bool
}

func (l *lineWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := l.w.Write(p)
	if n > 0 {
		l.written = true
		l.atEOL = p[n-1] == '\n'
	}
	return n, err
}

func (l *lineWriter) WriteString(s string) {
	_, _ = l.Write([]byte(s))
}

// EnsureTrailingNewline terminates a partial line.
func (l *lineWriter) EnsureTrailingNewline() error {
	if !l.written || l.atEOL {
		return nil
	}
	_, err := l.Write([]byte("\n"))
	return err
}
