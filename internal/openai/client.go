// Package openai streams chat completions from any OpenAI-compatible
// endpoint over server-sent events.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"citrux/internal/llm"
	"citrux/internal/logging"
	"citrux/internal/state"
	"citrux/internal/tooling"
)

const providerName = "openai"

// Client is a streaming HTTP wrapper around the chat completions API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	retry      llm.RetryPolicy
	newID      func() string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy overrides the retry schedule used before a stream opens.
func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// NewClient wires together the dependencies for API access. The timeout
// bounds the wait for response headers only; a stream may run longer.
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	c := &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		retry:      llm.DefaultRetryPolicy,
		newID:      newCallID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type chatRequest struct {
	Model         string                   `json:"model"`
	Messages      []chatMessage            `json:"messages"`
	Tools         []tooling.ToolDefinition `json:"tools,omitempty"`
	Temperature   float64                  `json:"temperature,omitempty"`
	Stream        bool                     `json:"stream"`
	StreamOptions *streamOptions           `json:"stream_options,omitempty"`
}

// buildRequest maps the conversation onto chat messages. Each tool result
// becomes its own tool message carrying the id of the call it answers.
func buildRequest(req llm.Request) (chatRequest, error) {
	out := chatRequest{
		Model:         req.Model,
		Tools:         req.Tools,
		Temperature:   req.Temperature,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
	if req.SystemPrompt != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, turn := range req.History {
		switch turn.Role {
		case state.RoleAssistant:
			msg := chatMessage{Role: "assistant", Content: turn.Text()}
			for _, call := range turn.ToolCalls() {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return chatRequest{}, fmt.Errorf("encode args for %s: %w", call.Name, err)
				}
				msg.ToolCalls = append(msg.ToolCalls, wireToolCall{
					ID:       call.ID,
					Type:     "function",
					Function: wireFunction{Name: call.Name, Arguments: string(args)},
				})
			}
			out.Messages = append(out.Messages, msg)
		case state.RoleUser:
			for _, res := range turn.ToolResults() {
				out.Messages = append(out.Messages, chatMessage{Role: "tool", ToolCallID: res.CallID, Content: resultContent(res)})
			}
			if text := turn.Text(); text != "" {
				out.Messages = append(out.Messages, chatMessage{Role: "user", Content: text})
			}
		default:
			return chatRequest{}, fmt.Errorf("unsupported role %q", turn.Role)
		}
	}
	return out, nil
}

func resultContent(res state.ToolResult) string {
	if res.Failed() {
		return fmt.Sprintf("tool error (%s): %s", res.ErrorKind, res.Error)
	}
	return res.Output
}

// GenerateStream satisfies llm.ContentGenerator.
func (c *Client) GenerateStream(ctx context.Context, req llm.Request) iter.Seq[llm.Event] {
	return func(yield func(llm.Event) bool) {
		payload, err := buildRequest(req)
		if err != nil {
			yield(llm.ErrorEvent(fmt.Errorf("build request: %w", err)))
			return
		}
		body, err := json.Marshal(payload)
		if err != nil {
			yield(llm.ErrorEvent(fmt.Errorf("marshal request: %w", err)))
			return
		}
		logging.Named(providerName).Debugw("sending request", "model", payload.Model, "messages", len(payload.Messages))

		resp, err := llm.Retry(ctx, c.retry, func(ctx context.Context) (*http.Response, error) {
			return c.open(ctx, body)
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Named(providerName).Errorw("request failed", "model", payload.Model, "error", err)
			yield(llm.ErrorEvent(err))
			return
		}
		defer resp.Body.Close()

		for ev := range decodeStream(ctx, resp.Body, c.newID) {
			if !yield(ev) {
				return
			}
		}
	}
}

// open posts the request and returns the response once headers arrived with
// a success status.
func (c *Client) open(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		logging.Named(providerName).Errorw("API error", "status", resp.StatusCode, "body", string(raw))
		return nil, llm.ClassifyHTTPError(providerName, resp.StatusCode, resp.Header, string(raw))
	}
	return resp, nil
}
