// Package gemini streams turns from the Gemini API through the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"citrux/internal/llm"
	"citrux/internal/logging"
	"citrux/internal/state"
	"citrux/internal/tooling"
)

// Client adapts genai streaming to llm.ContentGenerator.
type Client struct {
	models *genai.Models
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: API key is required (set GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{models: client.Models}, nil
}

// GenerateStream satisfies llm.ContentGenerator.
func (c *Client) GenerateStream(ctx context.Context, req llm.Request) iter.Seq[llm.Event] {
	return func(yield func(llm.Event) bool) {
		contents, err := toContents(req.History)
		if err != nil {
			yield(llm.ErrorEvent(err))
			return
		}
		logging.Named("gemini").Debugw("sending request", "model", req.Model, "contents", len(contents))

		var usage *llm.Usage
		for resp, err := range c.models.GenerateContentStream(ctx, req.Model, contents, buildConfig(req)) {
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logging.Named("gemini").Errorw("stream failed", "model", req.Model, "error", err)
				yield(llm.ErrorEvent(fmt.Errorf("gemini: %w", err)))
				return
			}
			for _, ev := range responseEvents(resp) {
				if !yield(ev) {
					return
				}
			}
			if u := responseUsage(resp); u != nil {
				usage = u
			}
		}
		if usage != nil && ctx.Err() == nil {
			yield(llm.UsageEvent(*usage))
		}
	}
}

func buildConfig(req llm.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if tools := toTools(req.Tools); tools != nil {
		cfg.Tools = tools
	}
	return cfg
}

func toTools(defs []tooling.ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 def.Function.Name,
			Description:          def.Function.Description,
			ParametersJsonSchema: def.Function.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toContents maps turns onto genai contents. Tool results travel as function
// responses in a user content, matched to their call by id and name.
func toContents(turns []state.Turn) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		content := &genai.Content{}
		switch turn.Role {
		case state.RoleUser:
			content.Role = string(genai.RoleUser)
		case state.RoleAssistant:
			content.Role = string(genai.RoleModel)
		default:
			return nil, fmt.Errorf("gemini: unsupported role %q", turn.Role)
		}
		for _, p := range turn.Parts {
			switch {
			case p.Call != nil:
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   p.Call.ID,
					Name: p.Call.Name,
					Args: p.Call.Args,
				}})
			case p.Result != nil:
				response := map[string]any{"output": p.Result.Output}
				if p.Result.Failed() {
					response = map[string]any{"error": p.Result.Error, "kind": string(p.Result.ErrorKind)}
				}
				content.Parts = append(content.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       p.Result.CallID,
					Name:     p.Result.Name,
					Response: response,
				}})
			case p.Text != "":
				content.Parts = append(content.Parts, genai.NewPartFromText(p.Text))
			}
		}
		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out, nil
}

// responseEvents extracts text and function calls from the first candidate.
// Thought parts are not surfaced.
func responseEvents(resp *genai.GenerateContentResponse) []llm.Event {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var events []llm.Event
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			events = append(events, llm.ContentEvent(part.Text))
		}
		if fc := part.FunctionCall; fc != nil && fc.Name != "" {
			id := fc.ID
			if id == "" {
				id = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
			}
			args := fc.Args
			if args == nil {
				args = map[string]any{}
			}
			events = append(events, llm.ToolCallEvent(state.ToolCall{ID: id, Name: fc.Name, Args: args}))
		}
	}
	return events
}

func responseUsage(resp *genai.GenerateContentResponse) *llm.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	m := resp.UsageMetadata
	return &llm.Usage{
		PromptTokens:     int(m.PromptTokenCount),
		CompletionTokens: int(m.CandidatesTokenCount),
		TotalTokens:      int(m.TotalTokenCount),
	}
}
