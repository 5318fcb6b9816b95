// Package cancel owns the cancellation token of a session and the process
// signal and terminal plumbing around it.
package cancel

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"citrux/internal/logging"
)

// DefaultGrace is how long an abort may take before the notice is shown.
const DefaultGrace = 200 * time.Millisecond

// Notice is written when an abort has not completed within the grace period.
const Notice = "Cancelling...\n"

// Options configures a Controller.
type Options struct {
	Grace  time.Duration
	Notice io.Writer
}

// Controller is the single source of cancellation for one session.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc
	grace  time.Duration
	notice io.Writer

	abortOnce sync.Once
	closeOnce sync.Once

	mu       sync.Mutex
	timer    *time.Timer
	closed   bool
	restores []func()
	stopSigs func()
}

// New derives a controller from parent.
func New(parent context.Context, opts Options) *Controller {
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.Notice == nil {
		opts.Notice = io.Discard
	}
	ctx, cancel := context.WithCancel(parent)
	return &Controller{ctx: ctx, cancel: cancel, grace: opts.Grace, notice: opts.Notice}
}

// Context is the cancellation token handed to every blocking operation.
func (c *Controller) Context() context.Context {
	return c.ctx
}

// Abort cancels the token. Only the first call has an effect.
func (c *Controller) Abort() {
	c.abortOnce.Do(func() {
		logging.DevLog("cancel: abort requested")
		c.cancel()
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		c.timer = time.AfterFunc(c.grace, c.showNotice)
	})
}

// Aborted reports whether the token has been cancelled.
func (c *Controller) Aborted() bool {
	return c.ctx.Err() != nil
}

func (c *Controller) showNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	_, _ = io.WriteString(c.notice, Notice)
}

// WatchSignals turns SIGINT and SIGTERM into Abort until Close is called.
func (c *Controller) WatchSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			logging.DevLog("cancel: received %s", sig)
			c.Abort()
		case <-done:
		}
	}()

	var once sync.Once
	c.mu.Lock()
	c.stopSigs = func() {
		once.Do(func() {
			signal.Stop(sigs)
			close(done)
		})
	}
	c.mu.Unlock()
}

// GuardTerminal snapshots the terminal attached to fd so Close can put it back
// the way it was. It is a no-op when fd is not a terminal.
func (c *Controller) GuardTerminal(fd int) {
	if !term.IsTerminal(fd) {
		return
	}
	st, err := term.GetState(fd)
	if err != nil {
		logging.DevLog("cancel: terminal state unavailable: %v", err)
		return
	}
	c.AddRestore(func() {
		if err := term.Restore(fd, st); err != nil {
			logging.DevLog("cancel: restore terminal: %v", err)
		}
	})
}

// AddRestore registers a cleanup that Close runs once.
func (c *Controller) AddRestore(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restores = append(c.restores, fn)
}

// Close stops the signal watcher and the grace timer, then runs the
// registered restores in reverse order. It does not cancel the token.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		if c.timer != nil {
			c.timer.Stop()
		}
		stop := c.stopSigs
		restores := c.restores
		c.restores = nil
		c.mu.Unlock()

		if stop != nil {
			stop()
		}
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	})
}
