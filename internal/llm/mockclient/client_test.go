package mockclient

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citrux/internal/llm"
	"citrux/internal/state"
)

func TestLoadReplaysScriptThenEchoes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.jsonl")
	script := `# first turn asks for a tool
[{"text":"creating"},{"tool_call":{"name":"write_file","args":{"path":"success.txt","content":"ok"}}}]

[{"text":"done"},{"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}]
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o644))

	client, err := Load(path)
	require.NoError(t, err)

	first := llm.Collect(client.GenerateStream(context.Background(), llm.Request{}))
	require.Len(t, first, 2)
	assert.Equal(t, "creating", first[0].Text)
	require.NotNil(t, first[1].ToolCall)
	assert.Equal(t, "call_1", first[1].ToolCall.ID)
	assert.Equal(t, "success.txt", first[1].ToolCall.Args["path"])

	second := llm.Collect(client.GenerateStream(context.Background(), llm.Request{}))
	require.Len(t, second, 2)
	assert.Equal(t, llm.EventUsage, second[1].Type)
	assert.Equal(t, 5, second[1].Usage.TotalTokens)

	req := llm.Request{History: []state.Turn{{Role: state.RoleUser, Parts: []state.Part{state.TextPart(" hello ")}}}}
	third := llm.Collect(client.GenerateStream(context.Background(), req))
	require.Len(t, third, 1)
	assert.Equal(t, "MOCK RESPONSE: hello", third[0].Text)
	assert.Len(t, client.Requests(), 3)
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestCancelledContextEndsStream(t *testing.T) {
	client := NewScripted([]llm.Event{llm.ContentEvent("a"), llm.ContentEvent("b")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Empty(t, llm.Collect(client.GenerateStream(ctx, llm.Request{})))
}
