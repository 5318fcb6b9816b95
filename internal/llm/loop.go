package llm

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"iter"

	"citrux/internal/logging"
	"citrux/internal/state"
)

// DefaultLoopWindow is the number of recent tool calls inspected for a
// repeating pattern.
const DefaultLoopWindow = 10

// LoopGuard wraps a generator and ends a stream with EventLoopDetected when
// the model keeps issuing the same tool calls. Signatures persist across
// turns of one session, so a guard must not be shared between sessions.
type LoopGuard struct {
	inner  ContentGenerator
	window int
	sigs   []string
}

// WithLoopDetection wraps inner. A window <= 0 disables detection.
func WithLoopDetection(inner ContentGenerator, window int) *LoopGuard {
	return &LoopGuard{inner: inner, window: window}
}

// GenerateStream satisfies ContentGenerator.
func (g *LoopGuard) GenerateStream(ctx context.Context, req Request) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for ev := range g.inner.GenerateStream(ctx, req) {
			if ev.Type == EventToolCallRequest && ev.ToolCall != nil && g.window > 0 {
				g.record(*ev.ToolCall)
				if DetectLoop(g.sigs, g.window) {
					logging.UserLog("loop detected: last %d tool calls repeat (latest %s)", g.window, ev.ToolCall.Name)
					g.sigs = nil
					yield(Event{Type: EventLoopDetected})
					return
				}
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func (g *LoopGuard) record(call state.ToolCall) {
	g.sigs = append(g.sigs, toolCallSignature(call))
	if len(g.sigs) > g.window {
		g.sigs = g.sigs[len(g.sigs)-g.window:]
	}
}

// toolCallSignature is the name plus a hash of the canonical JSON arguments.
func toolCallSignature(call state.ToolCall) string {
	args, _ := json.Marshal(call.Args)
	h := sha256.Sum256(args)
	return fmt.Sprintf("%s:%x", call.Name, h[:8])
}

// DetectLoop checks if the last windowSize signatures follow a repeating
// pattern of length 1, 2, or 3. A pattern must occur at least twice.
func DetectLoop(sigs []string, windowSize int) bool {
	if windowSize <= 0 || len(sigs) < windowSize {
		return false
	}
	sigs = sigs[len(sigs)-windowSize:]
	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 || patternLen*2 > windowSize {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}
