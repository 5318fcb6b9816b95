package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"citrux/internal/devloop"
	"citrux/internal/llm"
	"citrux/internal/logging"
	"citrux/internal/runlog"
	"citrux/internal/shellexec"
	"citrux/internal/state"
)

// DeprecationNotice is shown when the prompt came from --prompt.
const DeprecationNotice = "The --prompt (-p) flag has been deprecated and will be removed in a future version. Please use a positional argument for your prompt. See citrux --help for more information.\n"

// Stats summarises a finished session.
type Stats struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	ToolCalls    int
	Turns        int
	Duration     time.Duration
}

// Summary is handed to the reporter once the session ends.
type Summary struct {
	SessionID string
	// Response is the visible text of the last model response.
	Response string
	Stats    Stats
	Err      error
}

// Reporter renders a session in one of the output formats.
type Reporter interface {
	Sink
	Init(sessionID, model string)
	UserMessage(text string)
	Deprecation(text string)
	TurnComplete()
	VerifyStarted(iteration, maxIterations int, command string)
	VerifyFinished(v devloop.Verification)
	Stopped(message string)
	Finish(s Summary) error
}

// RunRecorder persists session history. runlog.Store implements it.
type RunRecorder interface {
	RecordSession(ctx context.Context, rec runlog.Session) error
	RecordAttempt(ctx context.Context, a runlog.Attempt) error
}

// SessionOptions configures a Session.
type SessionOptions struct {
	ID        string
	Provider  string
	Workspace string
	// DeprecatedPrompt is set when the prompt was passed with --prompt.
	DeprecatedPrompt bool
	Driver           DriverOptions
	// PlanStore receives dev-loop log lines; nil writes to the plan file.
	PlanStore devloop.PlanStore
	Now       func() time.Time
}

// Session runs one non-interactive invocation: a prompt or a dev-loop
// command, its model turns and any verification attempts.
type Session struct {
	driver   *Driver
	reporter Reporter
	shell    shellexec.Executor
	runs     RunRecorder
	opts     SessionOptions
}

// NewSession builds a session. runs may be nil.
func NewSession(gen llm.ContentGenerator, tools ToolExecutor, reporter Reporter, shell shellexec.Executor, runs RunRecorder, opts SessionOptions) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		driver:   NewDriver(gen, tools, reporter, opts.Driver),
		reporter: reporter,
		shell:    shell,
		runs:     runs,
		opts:     opts,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.opts.ID }

// Driver exposes the underlying driver.
func (s *Session) Driver() *Driver { return s.driver }

// Run processes input to completion. The returned error is suitable for
// ExitCode.
func (s *Session) Run(ctx context.Context, input string) error {
	start := s.opts.Now()
	rec := runlog.Session{
		ID:        s.opts.ID,
		Provider:  s.opts.Provider,
		Model:     s.opts.Driver.Model,
		Prompt:    input,
		Status:    "running",
		StartedAt: start,
	}
	s.record(ctx, rec)
	s.reporter.Init(s.opts.ID, s.opts.Driver.Model)

	response, err := s.run(ctx, input, &rec)

	usage := s.driver.Usage()
	summary := Summary{
		SessionID: s.opts.ID,
		Response:  response,
		Err:       err,
		Stats: Stats{
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
			TotalTokens:  usage.TotalTokens,
			ToolCalls:    s.driver.ToolCalls(),
			Turns:        s.driver.Turns(),
			Duration:     s.opts.Now().Sub(start),
		},
	}
	if ferr := s.reporter.Finish(summary); ferr != nil {
		logging.ErrorLog("session %s: write output: %v", s.opts.ID, ferr)
	}

	rec.Status = sessionStatus(err)
	if err != nil {
		rec.Error = err.Error()
	}
	rec.Turns = summary.Stats.Turns
	rec.ToolCalls = summary.Stats.ToolCalls
	rec.TotalTokens = summary.Stats.TotalTokens
	rec.EndedAt = s.opts.Now()
	s.record(context.WithoutCancel(ctx), rec)
	return err
}

func (s *Session) run(ctx context.Context, input string, rec *runlog.Session) (string, error) {
	prompt := input
	var loop *devloop.Controller
	if devloop.IsCommand(input) {
		cmd, err := devloop.ParseCommand(input)
		if err != nil {
			return "", NewInputError(err)
		}
		switch cmd.Kind {
		case devloop.CommandInit:
			prompt = devloop.InitPrompt(s.opts.Now())
		case devloop.CommandRun:
			plan, err := devloop.LoadPlan(s.opts.Workspace, cmd.PlanPath)
			if err != nil {
				return "", NewInputError(err)
			}
			rec.PlanPath = plan.PlanFilePath
			loop = devloop.NewController(plan, s.shell, s.opts.PlanStore, s.opts.Workspace)
			prompt = loop.InitialPrompt()
			logging.UserLog("session %s: dev loop on %s (max %d)", s.opts.ID, plan.PlanFilePath, plan.MaxIterations)
		}
	}

	s.reporter.UserMessage(input)
	if s.opts.DeprecatedPrompt {
		s.reporter.Deprecation(DeprecationNotice)
	}

	for {
		res, err := s.driver.Run(ctx, []state.Part{state.TextPart(prompt)})
		if err != nil {
			return res.Text, err
		}
		switch res.Status {
		case StatusAborted:
			return res.Text, ErrCancelled
		case StatusMaxTurnsExceeded:
			return res.Text, ErrMaxTurns
		case StatusStopped:
			s.reporter.Stopped(res.StopMessage)
			return res.Text, nil
		}
		s.reporter.TurnComplete()

		if loop == nil || !loop.Active() {
			return res.Text, nil
		}
		plan := loop.Plan()
		s.reporter.VerifyStarted(plan.IterationCount+1, plan.MaxIterations, plan.VerifyCommand)
		v := loop.Verify(ctx)
		s.reporter.VerifyFinished(v)
		s.recordAttempt(ctx, v)

		switch v.Outcome {
		case devloop.OutcomeRetry:
			prompt = v.Feedback
		case devloop.OutcomeCancelled:
			return res.Text, ErrCancelled
		default:
			return res.Text, nil
		}
	}
}

func (s *Session) record(ctx context.Context, rec runlog.Session) {
	if s.runs == nil {
		return
	}
	if err := s.runs.RecordSession(ctx, rec); err != nil {
		logging.ErrorLog("run log: %v", err)
	}
}

func (s *Session) recordAttempt(ctx context.Context, v devloop.Verification) {
	if s.runs == nil {
		return
	}
	err := s.runs.RecordAttempt(context.WithoutCancel(ctx), runlog.Attempt{
		SessionID: s.opts.ID,
		Iteration: v.Iteration,
		ExitCode:  v.ExitCode,
		Outcome:   string(v.Outcome),
		Output:    v.Output,
		At:        s.opts.Now(),
	})
	if err != nil {
		logging.ErrorLog("run log: %v", err)
	}
}

func sessionStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrMaxTurns):
		return "max_turns"
	case errors.Is(err, ErrInput):
		return "input_error"
	default:
		return "error"
	}
}
