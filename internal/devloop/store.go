package devloop

import (
	"fmt"
	"os"
)

// PlanStore records progress lines against a plan.
type PlanStore interface {
	AppendLog(path string, iteration int, message string) error
}

// FileStore appends log lines to the plan file itself.
type FileStore struct{}

// FormatLogLine renders one execution log entry.
func FormatLogLine(iteration int, message string) string {
	return fmt.Sprintf("\n- [Iteration %d]: %s\n", iteration, message)
}

// AppendLog writes the entry with a single append so a concurrent reader
// never observes a partial line.
func (FileStore) AppendLog(path string, iteration int, message string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open plan file: %w", err)
	}
	if _, err := f.WriteString(FormatLogLine(iteration, message)); err != nil {
		f.Close()
		return fmt.Errorf("append plan log: %w", err)
	}
	return f.Close()
}
