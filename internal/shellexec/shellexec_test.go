//go:build !windows

package shellexec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCapturesExitCodeAndOutput(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		exitCode int
		output   string
	}{
		{name: "success", command: "echo hello", exitCode: 0, output: "hello\n"},
		{name: "failure keeps output", command: "echo broken >&2; exit 3", exitCode: 3, output: "broken\n"},
		{name: "false", command: "false", exitCode: 1, output: ""},
	}
	exec := NewLocal(10 * time.Second)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := exec.Execute(context.Background(), tt.command, t.TempDir())
			require.NoError(t, err)
			assert.Equal(t, tt.exitCode, res.ExitCode)
			assert.Equal(t, tt.output, res.Output)
		})
	}
}

func TestExecuteRunsInDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "success.txt"), []byte("ok"), 0o644))

	res, err := NewLocal(0).Execute(context.Background(), "ls success.txt", dir)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "success.txt\n", res.Output)

	res, err = NewLocal(0).Execute(context.Background(), "ls missing.txt", dir)
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitCode)
}

func TestExecuteHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := NewLocal(0).Execute(ctx, "sleep 30", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExecuteTimeout(t *testing.T) {
	_, err := (&Local{Shell: "sh", Timeout: 100 * time.Millisecond}).Execute(context.Background(), "sleep 30", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimedOut))
}

func TestExecuteRejectsEmptyCommand(t *testing.T) {
	_, err := NewLocal(0).Execute(context.Background(), "", t.TempDir())
	require.Error(t, err)
}
