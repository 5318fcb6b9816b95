package devloop

import (
	"fmt"
	"time"
)

// PlanFileName returns the timestamped name used for a new plan.
func PlanFileName(now time.Time) string {
	return "dev-loop-" + now.UTC().Format("2006-01-02T15-04-05") + ".md"
}

// InitPrompt asks the model to interview the user and write a plan file.
func InitPrompt(now time.Time) string {
	name := PlanFileName(now)
	return fmt.Sprintf(`I want to start a new autonomous development loop.
Please interview me to collect the following information:
1. **Plan Description**: What specific task or feature should be implemented?
2. **Plan Goal / Verification**: What is the shell command to verify the work? (e.g., "go test ./...")
3. **Max Retries**: How many times should we try to fix errors automatically? (Default is %d)

Once confirmed, please use your tool to create a file named `+"`%s`"+` in the current directory with this structure:

# Dev Loop Plan: [Title]
- **Timestamp**: %s
- **Status**: Pending
- **Max Retries**: [Number]

## Description
[Detailed description]

## Completion Criteria (Verification Command)
`+"```bash"+`
[Verification Command]
`+"```"+`

## Execution Log
- [Initial]: Plan created.

After creating the file, tell me exactly: "Plan file created at: `+"`%s`"+`. You can now start the loop by typing: `+"`citrux dev-loop run %s`"+`"`,
		DefaultMaxIterations, name, now.Format("2006-01-02 15:04:05"), name, name)
}
