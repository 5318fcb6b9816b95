// Package shellexec runs shell command strings with combined output capture.
package shellexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"citrux/internal/logging"
)

// ErrTimedOut is returned when the per-command timeout elapses.
var ErrTimedOut = errors.New("command timed out")

// Result captures the outcome of a finished command.
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Executor runs a command string in a directory. A non-zero exit status is
// not an error; errors mean the command could not run to completion.
type Executor interface {
	Execute(ctx context.Context, command, dir string) (Result, error)
}

// Local executes commands through the host shell.
type Local struct {
	Shell   string
	Timeout time.Duration
	Env     []string
}

// NewLocal returns an executor using /bin/bash when present and sh otherwise.
func NewLocal(timeout time.Duration) *Local {
	shell := "sh"
	if _, err := os.Stat("/bin/bash"); err == nil {
		shell = "/bin/bash"
	}
	return &Local{Shell: shell, Timeout: timeout}
}

// Execute satisfies Executor.
func (l *Local) Execute(ctx context.Context, command, dir string) (Result, error) {
	if command == "" {
		return Result{}, errors.New("command must not be empty")
	}
	runCtx := ctx
	cancel := func() {}
	if l.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, l.Timeout)
	}
	defer cancel()

	shell := l.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(runCtx, shell, "-c", command)
	cmd.Dir = dir
	cmd.Stdin = nil
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	configureProcessGroup(cmd)
	cmd.WaitDelay = 2 * time.Second

	var out lockedBuffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	logging.DevLog("shellexec: running %q in %s", command, dir)
	start := time.Now()
	runErr := cmd.Run()
	res := Result{Output: out.String(), Duration: time.Since(start)}
	if ps := cmd.ProcessState; ps != nil {
		res.ExitCode = ps.ExitCode()
	}

	if runErr == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%w after %s", ErrTimedOut, l.Timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) && res.ExitCode >= 0 {
		return res, nil
	}
	return res, fmt.Errorf("run %q: %w", command, runErr)
}

// lockedBuffer lets stdout and stderr share one buffer without interleaving
// partial writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
