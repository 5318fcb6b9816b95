package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citrux/internal/agent"
	"citrux/internal/config"
	"citrux/internal/runlog"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// isolate points config, logs and run history at a temp dir and returns a
// fresh workspace.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv(config.EnvConfigDir, t.TempDir())
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvOpenAIBase, "")
	t.Setenv(config.EnvFakeResponses, "")
	return t.TempDir()
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := execute(args, strings.NewReader(stdin), &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

func script(t *testing.T, lines ...string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "responses.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	t.Setenv(config.EnvFakeResponses, path)
}

func TestVersion(t *testing.T) {
	res := run(t, "", "version")
	assert.Equal(t, 0, res.code)
	assert.Equal(t, "citrux version dev\n", res.stdout)
}

func TestPromptWithMockProvider(t *testing.T) {
	ws := isolate(t)
	res := run(t, "", "--provider", "mock", "--workspace", ws, "-o", "text", "hello", "there")
	assert.Equal(t, agent.ExitOK, res.code, res.stderr)
	assert.Equal(t, "MOCK RESPONSE: hello there\n", res.stdout)
}

func TestPipedStdinIsPrepended(t *testing.T) {
	ws := isolate(t)
	res := run(t, "some context\n", "--provider", "mock", "--workspace", ws, "-o", "json", "summarize")
	require.Equal(t, agent.ExitOK, res.code, res.stderr)

	var doc struct {
		SessionID string `json:"session_id"`
		Response  string `json:"response"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	assert.NotEmpty(t, doc.SessionID)
	assert.Equal(t, "MOCK RESPONSE: some context\n\nsummarize", doc.Response)
}

func TestDeprecatedPromptFlag(t *testing.T) {
	ws := isolate(t)
	res := run(t, "", "--provider", "mock", "--workspace", ws, "-p", "hi")
	assert.Equal(t, agent.ExitOK, res.code)
	assert.Contains(t, res.stderr, "The --prompt (-p) flag has been deprecated")
	assert.Contains(t, res.stdout, "MOCK RESPONSE: hi")
}

func TestNoInputIsAnInputError(t *testing.T) {
	ws := isolate(t)
	res := run(t, "", "--provider", "mock", "--workspace", ws)
	assert.Equal(t, agent.ExitInput, res.code)
	assert.Contains(t, res.stderr, "No input provided via stdin.")
}

func TestUnknownFlagIsAnInputError(t *testing.T) {
	isolate(t)
	res := run(t, "", "--no-such-flag")
	assert.Equal(t, agent.ExitInput, res.code)
	assert.Contains(t, res.stderr, "no-such-flag")
}

func TestInvalidConfigIsFatal(t *testing.T) {
	ws := isolate(t)
	res := run(t, "", "--provider", "nope", "--workspace", ws, "hi")
	assert.Equal(t, agent.ExitFatal, res.code)
	assert.Contains(t, res.stderr, "provider must be one of")
}

func TestMissingPlanFile(t *testing.T) {
	ws := isolate(t)
	res := run(t, "", "--provider", "mock", "--workspace", ws, "dev-loop", "run", "absent.md")
	assert.Equal(t, agent.ExitInput, res.code)
	assert.Contains(t, res.stderr, "Plan file not found")
}

func TestMaxSessionTurnsExit(t *testing.T) {
	ws := isolate(t)
	res := run(t, "", "--provider", "mock", "--workspace", ws, "--max-session-turns", "0", "hi")
	assert.Equal(t, agent.ExitMaxTurns, res.code)
	assert.Contains(t, res.stderr, "Reached max session turns")
}

func TestDevLoopRunEndToEnd(t *testing.T) {
	ws := isolate(t)
	plan := `# Dev Loop Plan: CLI
- **Max Retries**: 2

## Description
Create success.txt.

## Completion Criteria (Verification Command)
` + "```bash\nls success.txt\n```" + `

## Execution Log
- [Initial]: Plan created.
`
	require.NoError(t, os.WriteFile(filepath.Join(ws, "plan.md"), []byte(plan), 0o644))
	script(t,
		`[{"tool_call":{"name":"write_file","args":{"path":"success.txt","content":"done"}}}]`,
		`[{"text":"Created success.txt."}]`,
	)

	res := run(t, "", "--workspace", ws, "-o", "json", "dev-loop", "run", "plan.md")
	require.Equal(t, agent.ExitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, `"response": "Created success.txt."`)

	data, err := os.ReadFile(filepath.Join(ws, "plan.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "- [Iteration 1]: ✅ SUCCESS - Verification passed.")

	runs := run(t, "", "runs", "-o", "json")
	require.Equal(t, 0, runs.code, runs.stderr)
	var sessions []runlog.Session
	require.NoError(t, json.Unmarshal([]byte(runs.stdout), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "success", sessions[0].Status)
	assert.Equal(t, 1, sessions[0].Attempts)
	assert.Equal(t, filepath.Join(ws, "plan.md"), sessions[0].PlanPath)
}

func TestVerificationIgnoresToolShellTimeout(t *testing.T) {
	ws := isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("shell_timeout_seconds: 1\n"), 0o644))
	plan := `# Dev Loop Plan: Slow
- **Max Retries**: 1

## Description
Create success.txt.

## Completion Criteria (Verification Command)
` + "```bash\nsleep 2 && ls success.txt\n```" + `
`
	require.NoError(t, os.WriteFile(filepath.Join(ws, "plan.md"), []byte(plan), 0o644))
	script(t,
		`[{"tool_call":{"name":"write_file","args":{"path":"success.txt","content":"done"}}}]`,
		`[{"text":"ok"}]`,
	)

	res := run(t, "", "--config", cfgPath, "--workspace", ws, "-o", "json", "dev-loop", "run", "plan.md")
	require.Equal(t, agent.ExitOK, res.code, res.stderr)
	assert.NotContains(t, res.stderr, "Error during verification")

	data, err := os.ReadFile(filepath.Join(ws, "plan.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "- [Iteration 1]: ✅ SUCCESS - Verification passed.")
}

func TestRunsEmpty(t *testing.T) {
	isolate(t)
	res := run(t, "", "runs")
	assert.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "No sessions recorded.\n", res.stdout)
}

func TestJoinInput(t *testing.T) {
	assert.Equal(t, "p", joinInput("", " p "))
	assert.Equal(t, "s", joinInput(" s\n", ""))
	assert.Equal(t, "s\n\np", joinInput("s", "p"))
}
