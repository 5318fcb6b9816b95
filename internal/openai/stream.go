package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"citrux/internal/llm"
	"citrux/internal/logging"
)

type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type streamChunk struct {
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []toolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *llm.Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ErrStream wraps an error frame sent inside an otherwise healthy stream.
var ErrStream = errors.New("stream error")

// decodeStream turns an SSE body into events. Frames that fail to decode are
// skipped; cancellation ends the sequence without an error event.
func decodeStream(ctx context.Context, r io.Reader, newID func() string) iter.Seq[llm.Event] {
	return func(yield func(llm.Event) bool) {
		acc := newAccumulator(newID)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "" {
				continue
			}
			if data == "[DONE]" {
				break
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				logging.DevLog("openai: skipping malformed frame: %v", err)
				continue
			}
			if chunk.Error != nil {
				yield(llm.ErrorEvent(fmt.Errorf("%w: %s", ErrStream, chunk.Error.Message)))
				return
			}
			if chunk.Usage != nil {
				if !yield(llm.UsageEvent(*chunk.Usage)) {
					return
				}
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !yield(llm.ContentEvent(choice.Delta.Content)) {
						return
					}
				}
				for _, d := range choice.Delta.ToolCalls {
					acc.add(d)
				}
				if choice.FinishReason == nil {
					continue
				}
				switch *choice.FinishReason {
				case "tool_calls", "stop":
					for _, call := range acc.finalize() {
						if !yield(llm.ToolCallEvent(call)) {
							return
						}
					}
				}
			}
		}
		if ctx.Err() != nil {
			return
		}
		if err := scanner.Err(); err != nil {
			yield(llm.ErrorEvent(fmt.Errorf("read stream: %w", err)))
			return
		}
		if n := acc.pending(); n > 0 {
			logging.DevLog("openai: stream ended with %d unfinished tool calls", n)
		}
	}
}
