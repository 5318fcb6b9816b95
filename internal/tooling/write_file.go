package tooling

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteFileTool creates or extends files within the workspace.
type WriteFileTool struct {
	guard pathGuard
}

func NewWriteFileTool(guard pathGuard) *WriteFileTool {
	return &WriteFileTool{guard: guard}
}

func (t *WriteFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "write_file",
			Description: "Write text to a file, creating parent directories as needed. Mode overwrite (default) replaces the file, append adds to its end.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file relative to the workspace root.",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Text to write. Use \n for new lines.",
					},
					"mode": map[string]any{
						"type":        "string",
						"description": "overwrite (default) or append.",
					},
				},
				"required": []string{"path", "content"},
			},
		},
	}
}

func (t *WriteFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, ok := stringArg(args, "path")
	if !ok || strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path is required", ErrInvalidParams)
	}
	abs, err := t.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return "", fmt.Errorf("%w: content is required", ErrInvalidParams)
	}

	mode, _ := stringArg(args, "mode")
	mode = strings.ToLower(strings.TrimSpace(mode))
	flags := os.O_CREATE | os.O_WRONLY
	switch mode {
	case "", "overwrite":
		mode = "overwrite"
		flags |= os.O_TRUNC
	case "append":
		flags |= os.O_APPEND
	default:
		return "", fmt.Errorf("%w: unsupported mode %s", ErrInvalidParams, mode)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	f, err := os.OpenFile(abs, flags, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return marshalPayload(map[string]any{
		"path":  t.guard.Rel(abs),
		"mode":  mode,
		"bytes": len(content),
	})
}
