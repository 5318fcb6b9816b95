package tooling

import (
	"context"
	"fmt"
	"strings"
)

// StopTool lets the model end the session when it cannot or should not
// continue.
type StopTool struct{}

func (StopTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "stop_session",
			Description: "Stop the whole session immediately. Use only when the task cannot be completed and further attempts are pointless.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"description": "Short explanation shown to the user.",
					},
				},
				"required": []string{"reason"},
			},
		},
	}
}

func (StopTool) Call(_ context.Context, args map[string]any) (string, error) {
	reason, _ := stringArg(args, "reason")
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}
	return "", fmt.Errorf("%w: %s", ErrStopExecution, reason)
}
