package devloop

import (
	"errors"
	"fmt"
	"strings"
)

// Usage messages for malformed dev-loop commands.
const (
	RunUsage  = "Usage: /dev-loop run <plan-file.md>"
	BareUsage = "Please provide a path to a plan file. Usage: /dev-loop run <path>. To create a new plan, use /dev-loop init"
)

// CommandKind names a dev-loop subcommand.
type CommandKind string

const (
	CommandRun  CommandKind = "run"
	CommandInit CommandKind = "init"
)

// Command is a parsed /dev-loop invocation.
type Command struct {
	Kind     CommandKind
	PlanPath string
}

// IsCommand reports whether input is a /dev-loop invocation.
func IsCommand(input string) bool {
	fields := strings.Fields(input)
	return len(fields) > 0 && fields[0] == "/dev-loop"
}

// ParseCommand parses "/dev-loop run <file>" and "/dev-loop init".
func ParseCommand(input string) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 || fields[0] != "/dev-loop" {
		return Command{}, fmt.Errorf("not a dev-loop command: %q", input)
	}
	args := fields[1:]
	if len(args) == 0 {
		return Command{}, errors.New(BareUsage)
	}
	switch args[0] {
	case "init":
		return Command{Kind: CommandInit}, nil
	case "run":
		path := strings.TrimSpace(strings.Join(args[1:], " "))
		if path == "" {
			return Command{}, errors.New(RunUsage)
		}
		return Command{Kind: CommandRun, PlanPath: path}, nil
	default:
		return Command{}, fmt.Errorf("To run a plan, please use the correct command format: /dev-loop run %s", strings.Join(args, " "))
	}
}
