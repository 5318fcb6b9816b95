package mockclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"strings"
	"sync"

	"citrux/internal/llm"
	"citrux/internal/state"
)

// Step is one scripted stream element as written in a responses file.
type Step struct {
	Text     string     `json:"text,omitempty"`
	ToolCall *Call      `json:"tool_call,omitempty"`
	Error    string     `json:"error,omitempty"`
	Usage    *llm.Usage `json:"usage,omitempty"`
}

// Call is a scripted tool call.
type Call struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Client is a deterministic llm.ContentGenerator used for tests and CI. Each
// call to GenerateStream replays the next scripted response; once the script
// is exhausted it echoes the last user message.
type Client struct {
	prefix string

	mu        sync.Mutex
	responses [][]llm.Event
	requests  []llm.Request
	calls     int
}

// New returns a mock client that echoes the last user message.
func New() *Client {
	return &Client{prefix: "MOCK"}
}

// NewScripted replays the given responses in order.
func NewScripted(responses ...[]llm.Event) *Client {
	c := New()
	c.responses = responses
	return c
}

// Load reads a JSON-lines script: one line per model response, each line an
// array of steps. Blank lines and lines starting with '#' are ignored.
func Load(path string) (*Client, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open responses: %w", err)
	}
	defer f.Close()

	c := New()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var steps []Step
		if err := json.Unmarshal([]byte(text), &steps); err != nil {
			return nil, fmt.Errorf("responses line %d: %w", line, err)
		}
		c.responses = append(c.responses, c.toEvents(steps))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read responses: %w", err)
	}
	return c, nil
}

func (c *Client) toEvents(steps []Step) []llm.Event {
	events := make([]llm.Event, 0, len(steps))
	for _, s := range steps {
		switch {
		case s.ToolCall != nil:
			c.calls++
			id := s.ToolCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", c.calls)
			}
			events = append(events, llm.ToolCallEvent(state.ToolCall{ID: id, Name: s.ToolCall.Name, Args: s.ToolCall.Args}))
		case s.Error != "":
			events = append(events, llm.ErrorEvent(errors.New(s.Error)))
		case s.Usage != nil:
			events = append(events, llm.UsageEvent(*s.Usage))
		default:
			events = append(events, llm.ContentEvent(s.Text))
		}
	}
	return events
}

// Requests returns every request seen so far.
func (c *Client) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// GenerateStream satisfies llm.ContentGenerator.
func (c *Client) GenerateStream(ctx context.Context, req llm.Request) iter.Seq[llm.Event] {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	var events []llm.Event
	if len(c.responses) > 0 {
		events = c.responses[0]
		c.responses = c.responses[1:]
	} else {
		events = []llm.Event{llm.ContentEvent(c.echo(req))}
	}
	c.mu.Unlock()

	return func(yield func(llm.Event) bool) {
		for _, ev := range events {
			if ctx.Err() != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

func (c *Client) echo(req llm.Request) string {
	for i := len(req.History) - 1; i >= 0; i-- {
		turn := req.History[i]
		if turn.Role != state.RoleUser {
			continue
		}
		if last := strings.TrimSpace(turn.Text()); last != "" {
			return fmt.Sprintf("%s RESPONSE: %s", c.prefix, last)
		}
		break
	}
	return fmt.Sprintf("%s RESPONSE", c.prefix)
}
