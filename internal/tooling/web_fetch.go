package tooling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// WebFetchTool downloads a page and returns a cleaned summary of its text, so
// the model can read documentation referenced by a failing verification.
type WebFetchTool struct {
	client   *http.Client
	maxBytes int64
}

func NewWebFetchTool(timeout time.Duration) *WebFetchTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebFetchTool{
		client:   &http.Client{Timeout: timeout},
		maxBytes: 2 << 20,
	}
}

func (t *WebFetchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "web_fetch",
			Description: "Fetch a web page and return JSON with its title, description, headings and paragraphs. A CSS selector narrows the extraction to matching elements.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "Absolute URL to fetch (http or https).",
					},
					"selector": map[string]any{
						"type":        "string",
						"description": "Optional CSS selector; when set, the text of each match is returned instead of paragraphs.",
					},
					"max_items": map[string]any{
						"type":        "integer",
						"description": "Maximum number of paragraphs or matches to include (default 8).",
					},
				},
				"required": []string{"url"},
			},
		},
	}
}

func (t *WebFetchTool) Call(ctx context.Context, args map[string]any) (string, error) {
	rawURL, _ := stringArg(args, "url")
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", fmt.Errorf("%w: url must start with http:// or https://", ErrInvalidParams)
	}
	selector, _ := stringArg(args, "selector")
	maxItems := intArg(args, "max_items", 8)
	if maxItems <= 0 {
		maxItems = 8
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "citrux/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	limited := &io.LimitedReader{R: resp.Body, N: t.maxBytes}
	body, err := io.ReadAll(limited)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	payload := map[string]any{
		"url":         resp.Request.URL.String(),
		"status":      resp.StatusCode,
		"truncated":   limited.N == 0,
		"title":       strings.TrimSpace(doc.Find("title").First().Text()),
		"description": strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", "")),
	}

	if selector != "" {
		payload["selector"] = selector
		payload["matches"] = collectText(doc.Find(selector), maxItems, 1)
	} else {
		payload["headings"] = collectText(doc.Find("h1, h2, h3"), maxItems, 1)
		payload["paragraphs"] = collectText(doc.Find("p, pre"), maxItems, 40)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// collectText gathers up to limit normalized texts of at least minLen runes.
func collectText(sel *goquery.Selection, limit, minLen int) []string {
	out := make([]string, 0, limit)
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(out) >= limit {
			return false
		}
		text := normalizeWhitespace(s.Text())
		if len([]rune(text)) >= minLen {
			out = append(out, text)
		}
		return true
	})
	return out
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
