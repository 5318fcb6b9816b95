package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"citrux/internal/logging"
	"citrux/internal/shellexec"
)

var errEntryLimit = errors.New("entry limit reached")

type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Tool interface {
	Definition() ToolDefinition
	Call(ctx context.Context, args map[string]any) (string, error)
}

type Registry struct {
	tools       map[string]Tool
	definitions []ToolDefinition
}

func NewRegistry(tools ...Tool) *Registry {
	bucket := make(map[string]Tool, len(tools))
	defs := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		def := tool.Definition()
		bucket[def.Function.Name] = tool
		defs = append(defs, def)
	}
	return &Registry{tools: bucket, definitions: defs}
}

func (r *Registry) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names lists the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Options struct {
	WorkspaceRoot string
	ShellTimeout  time.Duration
	FetchTimeout  time.Duration
	Shell         shellexec.Executor
}

func DefaultTools(opts Options) ([]Tool, error) {
	guard, err := newPathGuard(opts.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	shellTimeout := opts.ShellTimeout
	if shellTimeout <= 0 {
		shellTimeout = 60 * time.Second
	}
	shell := opts.Shell
	if shell == nil {
		shell = shellexec.NewLocal(shellTimeout)
	}

	return []Tool{
		ListFilesTool{guard: guard},
		ReadFileTool{guard: guard},
		NewWriteFileTool(guard),
		NewEditFileTool(guard),
		&ShellTool{guard: guard, exec: shell},
		NewWebFetchTool(opts.FetchTimeout),
		StopTool{},
	}, nil
}

type ListFilesTool struct {
	guard pathGuard
}

func (ListFilesTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "list_directory",
			Description: "List files within a directory, optionally recursively. All paths are constrained inside the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Directory path to list (default workspace root).",
					},
					"recursive": map[string]any{
						"type":        "boolean",
						"description": "Whether to walk subdirectories.",
					},
					"include_hidden": map[string]any{
						"type":        "boolean",
						"description": "Include entries whose names start with '.'.",
					},
					"max_entries": map[string]any{
						"type":        "integer",
						"description": "Maximum number of entries to return (default 200).",
					},
				},
			},
		},
	}
}

func (l ListFilesTool) Call(ctx context.Context, args map[string]any) (string, error) {
	target, _ := stringArg(args, "path")
	root, err := l.guard.Resolve(target)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", l.guard.Rel(root))
	}
	includeHidden := boolArg(args, "include_hidden", false)
	recursive := boolArg(args, "recursive", false)
	maxEntries := intArg(args, "max_entries", 200)
	if maxEntries <= 0 {
		maxEntries = 200
	}

	type entry struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	results := make([]entry, 0, 16)
	truncated := false

	add := func(path string, isDir bool) bool {
		if len(results) >= maxEntries {
			truncated = true
			return false
		}
		results = append(results, entry{Path: l.guard.Rel(path), Type: typeOf(isDir)})
		return true
	}

	if recursive {
		walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if path == root {
				return nil
			}
			if !includeHidden && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !add(path, d.IsDir()) {
				return errEntryLimit
			}
			return nil
		})
		if walkErr != nil && !errors.Is(walkErr, errEntryLimit) {
			return "", walkErr
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return "", err
		}
		for _, e := range entries {
			if !includeHidden && strings.HasPrefix(e.Name(), ".") {
				continue
			}
			if !add(filepath.Join(root, e.Name()), e.IsDir()) {
				break
			}
		}
	}

	return marshalPayload(map[string]any{
		"path":      l.guard.Rel(root),
		"entries":   results,
		"truncated": truncated,
	})
}

type ReadFileTool struct {
	guard pathGuard
}

func (ReadFileTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "read_file",
			Description: "Read a UTF-8 text file and return its contents (optionally truncated). The path must stay within the workspace root.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Path to the file to read, relative to the workspace root.",
					},
					"max_bytes": map[string]any{
						"type":        "integer",
						"description": "Maximum number of bytes to return (default 16384).",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

func (r ReadFileTool) Call(ctx context.Context, args map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return "", fmt.Errorf("%w: path is required", ErrInvalidParams)
	}
	abs, err := r.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	maxBytes := intArg(args, "max_bytes", 16384)
	if maxBytes <= 0 {
		maxBytes = 16384
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	truncated := false
	if len(data) > maxBytes {
		data = data[:maxBytes]
		truncated = true
	}
	return marshalPayload(map[string]any{
		"path":      r.guard.Rel(abs),
		"bytes":     len(data),
		"truncated": truncated,
		"content":   string(data),
	})
}

// blockedCommands need a human at the keyboard and would hang the session.
var blockedCommands = map[string]bool{"sudo": true, "su": true, "passwd": true}

type ShellTool struct {
	guard pathGuard
	exec  shellexec.Executor
}

func (s *ShellTool) Definition() ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: ToolFunction{
			Name:        "shell",
			Description: "Execute a command within the workspace root. Stdout and stderr are combined. Commands must not wait for interactive input.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"description": "Command to execute. Either an argv array ['ls', '-la'] or a shell command string 'ls -la | head'.",
						"oneOf": []map[string]any{
							{"type": "array", "items": map[string]any{"type": "string"}},
							{"type": "string"},
						},
					},
					"workdir": map[string]any{
						"type":        "string",
						"description": "Working directory relative to the workspace root.",
					},
				},
				"required": []string{"command"},
			},
		},
	}
}

func (s *ShellTool) Call(ctx context.Context, args map[string]any) (string, error) {
	command, argv, err := shellCommandArg(args)
	if err != nil {
		return "", err
	}
	if len(argv) > 0 && blockedCommands[filepath.Base(argv[0])] {
		logging.ErrorLog("shell: blocked command '%s' - interactive commands not allowed", argv[0])
		return "", fmt.Errorf("command '%s' requires interactive input and is not allowed", argv[0])
	}

	workdir, _ := stringArg(args, "workdir")
	resolvedDir, err := s.guard.Resolve(workdir)
	if err != nil {
		return "", err
	}

	res, runErr := s.exec.Execute(ctx, command, resolvedDir)
	logging.DevLog("shell: %q finished in %dms with exit code %d", command, res.Duration.Milliseconds(), res.ExitCode)

	result := map[string]any{
		"workdir":     s.guard.Rel(resolvedDir),
		"output":      res.Output,
		"exit_code":   res.ExitCode,
		"duration_ms": res.Duration.Milliseconds(),
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(runErr, shellexec.ErrTimedOut) {
			result["timed_out"] = true
		}
		result["error"] = runErr.Error()
	}
	return marshalPayload(result)
}

// shellCommandArg returns the command as a shell string plus its argv form.
// Array commands are quoted so that the shell sees exactly the given words.
func shellCommandArg(args map[string]any) (string, []string, error) {
	raw, ok := args["command"]
	if !ok {
		return "", nil, fmt.Errorf("%w: command is required", ErrInvalidParams)
	}
	switch v := raw.(type) {
	case string:
		command := strings.TrimSpace(v)
		if command == "" {
			return "", nil, fmt.Errorf("%w: command must not be empty", ErrInvalidParams)
		}
		argv, err := shellquote.Split(command)
		if err != nil {
			return "", nil, fmt.Errorf("%w: parse command: %v", ErrInvalidParams, err)
		}
		return command, argv, nil
	case []string, []any:
		argv, err := stringSliceArg(args, "command")
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return shellquote.Join(argv...), argv, nil
	default:
		return "", nil, fmt.Errorf("%w: command must be an array of strings or a command string", ErrInvalidParams)
	}
}

type pathGuard struct {
	root string
}

func newPathGuard(root string) (pathGuard, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return pathGuard{}, err
	}
	return pathGuard{root: abs}, nil
}

func (p pathGuard) Resolve(path string) (string, error) {
	var target string
	if path == "" {
		target = p.root
	} else if filepath.IsAbs(path) {
		target = path
	} else {
		target = filepath.Join(p.root, path)
	}
	cleaned, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	if cleaned != p.root && !strings.HasPrefix(cleaned, p.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path %s escapes workspace root", path)
	}
	return cleaned, nil
}

func (p pathGuard) Rel(path string) string {
	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return path
	}
	return rel
}

func stringSliceArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("%s is required", key)
	}
	switch v := raw.(type) {
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("%s is empty", key)
		}
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for idx, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] is not a string", key, idx)
			}
			out = append(out, str)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%s is empty", key)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
}

func stringArg(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok || val == nil {
		return "", false
	}
	switch cast := val.(type) {
	case string:
		return cast, true
	default:
		return fmt.Sprintf("%v", cast), true
	}
}

func boolArg(args map[string]any, key string, defaultVal bool) bool {
	val, ok := args[key]
	if !ok {
		return defaultVal
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return defaultVal
}

func intArg(args map[string]any, key string, defaultVal int) int {
	val, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch n := val.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return defaultVal
	}
}

func typeOf(isDir bool) string {
	if isDir {
		return "directory"
	}
	return "file"
}

func marshalPayload(payload map[string]any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
