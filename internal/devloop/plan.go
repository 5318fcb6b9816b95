// Package devloop runs a task autonomously until a verification command
// passes, stops making progress, or runs out of retries.
package devloop

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// DefaultMaxIterations applies when a plan has no Max Retries line.
const DefaultMaxIterations = 5

// ErrInvalidPlan is returned when a plan file lacks a task or a command.
var ErrInvalidPlan = errors.New(`Invalid plan file format. Ensure it has "Description" and "Completion Criteria" sections.`)

var (
	descriptionRe = regexp.MustCompile(`## Description\n([\s\S]+?)\n##`)
	verifyRe      = regexp.MustCompile("## Completion Criteria \\(Verification Command\\)\\n```[a-zA-Z]*\\n([\\s\\S]+?)\\n```")
	maxRetriesRe  = regexp.MustCompile(`- \*\*Max Retries\*\*: (\d+)`)
)

// Plan is the state of one autonomous run. Only Controller mutates it once
// the run has started.
type Plan struct {
	Task                   string
	VerifyCommand          string
	MaxIterations          int
	IterationCount         int
	Active                 bool
	PlanFilePath           string
	LastVerificationOutput string
}

// ParsePlan extracts a plan from markdown content.
func ParsePlan(content string) (*Plan, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var task, command string
	if m := descriptionRe.FindStringSubmatch(content); m != nil {
		task = strings.TrimSpace(m[1])
	}
	if m := verifyRe.FindStringSubmatch(content); m != nil {
		command = strings.TrimSpace(m[1])
	}
	if task == "" || command == "" {
		return nil, ErrInvalidPlan
	}

	maxIter := DefaultMaxIterations
	if m := maxRetriesRe.FindStringSubmatch(content); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			maxIter = n
		}
	}
	return &Plan{
		Task:          task,
		VerifyCommand: command,
		MaxIterations: maxIter,
		Active:        true,
	}, nil
}

// LoadPlan reads and parses the plan at path, resolved against dir.
func LoadPlan(dir, path string) (*Plan, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New(RunUsage)
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(dir, path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("Plan file not found: %s", path)
		}
		return nil, fmt.Errorf("Error reading plan file: %w", err)
	}
	plan, err := ParsePlan(string(data))
	if err != nil {
		return nil, err
	}
	plan.PlanFilePath = abs
	return plan, nil
}
