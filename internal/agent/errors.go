package agent

import (
	"context"
	"errors"

	"citrux/internal/llm"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFatal     = 1
	ExitInput     = 42
	ExitMaxTurns  = 53
	ExitCancelled = 130
)

var (
	// ErrInput marks problems with what the user asked for, such as a bad
	// plan file or a malformed dev-loop command.
	ErrInput = errors.New("input error")
	// ErrMaxTurns is returned when the session exceeds its turn budget.
	ErrMaxTurns = errors.New("Reached max session turns for this session. Increase the number of turns with --max-session-turns or max_session_turns in the config file.")
	// ErrCancelled is returned when the session was aborted.
	ErrCancelled = errors.New("Operation cancelled.")
)

// inputError keeps the user-facing message while matching ErrInput.
type inputError struct{ err error }

func (e inputError) Error() string { return e.err.Error() }
func (e inputError) Unwrap() []error { return []error{ErrInput, e.err} }

// NewInputError wraps err so that it matches ErrInput and exits with
// ExitInput.
func NewInputError(err error) error { return inputError{err: err} }

// ExitCode maps a session error onto the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ExitCancelled
	case errors.Is(err, ErrMaxTurns):
		return ExitMaxTurns
	case errors.Is(err, ErrInput):
		return ExitInput
	default:
		return ExitFatal
	}
}

// ErrorType names the error class reported in structured output.
func ErrorType(err error) string {
	var pe *llm.ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "FatalCancellationError"
	case errors.Is(err, ErrMaxTurns):
		return "FatalTurnLimitedError"
	case errors.Is(err, ErrInput):
		return "FatalInputError"
	case errors.As(err, &pe):
		return "ProviderError:" + string(pe.Type)
	default:
		return "Error"
	}
}
