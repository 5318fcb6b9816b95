package devloop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"citrux/internal/logging"
	"citrux/internal/shellexec"
)

// Outcome classifies one verification attempt.
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeRetry             Outcome = "retry"
	OutcomeStagnant          Outcome = "stagnant"
	OutcomeMaxIterations     Outcome = "max_iterations"
	OutcomeVerificationError Outcome = "verification_error"
	OutcomeCancelled         Outcome = "cancelled"
)

// NoOutput stands in for an empty verification output.
const NoOutput = "(No output)"

// Log messages appended to the plan file.
const (
	logSuccess  = "✅ SUCCESS - Verification passed."
	logStagnant = "🛑 STOPPED - Stagnation detected (error output unchanged)."
	logMax      = "🛑 STOPPED - Reached max iterations (%d)."
	logRetry    = "❌ FAILED - Exit code %d. Retrying..."
	logError    = "⚠️ ERROR - Verification could not run: %v"
	logCancel   = "🛑 STOPPED - Cancelled."
)

// Verification describes one attempt and what the session should do next.
type Verification struct {
	Iteration     int
	MaxIterations int
	Command       string
	Outcome       Outcome
	ExitCode      int
	Output        string
	// Feedback is the next user message when Outcome is OutcomeRetry.
	Feedback string
	Err      error
}

// Continue reports whether the session should run another model turn.
func (v Verification) Continue() bool {
	return v.Outcome == OutcomeRetry
}

// Controller is the retry state machine around a Plan.
type Controller struct {
	plan  *Plan
	exec  shellexec.Executor
	store PlanStore
	dir   string
}

// NewController binds a plan to the executor that verifies it. Commands run
// in dir. A nil store defaults to FileStore.
func NewController(plan *Plan, exec shellexec.Executor, store PlanStore, dir string) *Controller {
	if store == nil {
		store = FileStore{}
	}
	return &Controller{plan: plan, exec: exec, store: store, dir: dir}
}

// Plan returns a snapshot of the plan state.
func (c *Controller) Plan() Plan {
	return *c.plan
}

// Active reports whether another verification is expected.
func (c *Controller) Active() bool {
	return c.plan.Active
}

// InitialPrompt is the first user message of the run.
func (c *Controller) InitialPrompt() string {
	return fmt.Sprintf("%s\n\n[Dev Loop Mode] After you complete this task, I will automatically run verification: `%s`. If it fails, I will feed the error back to you for further fixes.",
		c.plan.Task, c.plan.VerifyCommand)
}

// Verify runs the verification command once and advances the plan. Every
// call on an active plan appends exactly one log line.
func (c *Controller) Verify(ctx context.Context) Verification {
	p := c.plan
	v := Verification{
		Iteration:     p.IterationCount + 1,
		MaxIterations: p.MaxIterations,
		Command:       p.VerifyCommand,
	}
	if !p.Active {
		v.Outcome = OutcomeVerificationError
		v.Err = errors.New("dev loop is not active")
		return v
	}

	res, err := c.exec.Execute(ctx, p.VerifyCommand, c.dir)
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		v.Outcome = OutcomeCancelled
		c.finish(v.Iteration, logCancel)
		return v
	case err != nil:
		v.Outcome = OutcomeVerificationError
		v.Err = err
		c.finish(v.Iteration, fmt.Sprintf(logError, err))
		return v
	}

	v.ExitCode = res.ExitCode
	v.Output = strings.TrimSpace(res.Output)
	if v.Output == "" {
		v.Output = NoOutput
	}

	if res.ExitCode == 0 {
		v.Outcome = OutcomeSuccess
		c.finish(v.Iteration, logSuccess)
		return v
	}
	if v.Output == p.LastVerificationOutput {
		v.Outcome = OutcomeStagnant
		c.finish(v.Iteration, logStagnant)
		return v
	}
	p.LastVerificationOutput = v.Output
	if v.Iteration >= p.MaxIterations {
		v.Outcome = OutcomeMaxIterations
		c.finish(v.Iteration, fmt.Sprintf(logMax, p.MaxIterations))
		return v
	}

	v.Outcome = OutcomeRetry
	c.log(v.Iteration, fmt.Sprintf(logRetry, res.ExitCode))
	p.IterationCount = v.Iteration
	v.Feedback = c.feedback(v)
	return v
}

func (c *Controller) feedback(v Verification) string {
	return fmt.Sprintf("The verification command `%s` failed with exit code %d. Output:\n\n```\n%s\n```\n\nPlease fix the remaining issues and try again.\n\nTask:\n%s",
		v.Command, v.ExitCode, v.Output, c.plan.Task)
}

func (c *Controller) finish(iteration int, message string) {
	c.log(iteration, message)
	c.plan.Active = false
}

func (c *Controller) log(iteration int, message string) {
	if err := c.store.AppendLog(c.plan.PlanFilePath, iteration, message); err != nil {
		logging.ErrorLog("dev loop: failed to update plan file: %v", err)
	}
}
