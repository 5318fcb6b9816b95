// Package prompts assembles the system prompt sent with every request.
package prompts

import (
	_ "embed"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

//go:embed system_citrux.txt
var baseSystemPrompt string

const envHeader = "## Environment Context"

var (
	metadataMu sync.RWMutex
	metadata   string
)

// Base returns the built-in system prompt.
func Base() string {
	return strings.TrimSpace(baseSystemPrompt)
}

// Combine joins the built-in prompt, the environment context and an optional
// user-provided prompt.
func Combine(user string) string {
	sections := []string{Base()}
	if meta := getMetadata(); meta != "" {
		sections = append(sections, envHeader+"\n"+meta)
	}
	if trimmed := strings.TrimSpace(user); trimmed != "" {
		sections = append(sections, trimmed)
	}
	return strings.Join(sections, "\n\n")
}

// ExtractUserPortion strips the base prompt and environment context from a
// combined prompt. Input that does not start with the base prompt is
// returned unchanged.
func ExtractUserPortion(combined string) string {
	combined = strings.TrimSpace(combined)
	if combined == "" {
		return ""
	}
	base := Base()
	if !strings.HasPrefix(combined, base) {
		return combined
	}
	remaining := strings.TrimSpace(combined[len(base):])
	if !strings.HasPrefix(remaining, envHeader) {
		return remaining
	}
	afterHeader := remaining[len(envHeader):]
	if next := strings.Index(afterHeader, "\n##"); next != -1 {
		return strings.TrimSpace(afterHeader[next:])
	}
	if parts := strings.SplitN(remaining, "\n\n", 2); len(parts) > 1 {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Environment describes the host and workspace for the model.
func Environment(workspace string, now time.Time) string {
	return fmt.Sprintf("- Workspace: %s\n- Platform: %s/%s\n- Date: %s",
		workspace, runtime.GOOS, runtime.GOARCH, now.Format("2006-01-02"))
}

// SetMetadata defines the environment metadata appended to the system prompt.
func SetMetadata(info string) {
	metadataMu.Lock()
	defer metadataMu.Unlock()
	metadata = strings.TrimSpace(info)
}

func getMetadata() string {
	metadataMu.RLock()
	defer metadataMu.RUnlock()
	return metadata
}
