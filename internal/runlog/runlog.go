// Package runlog keeps a local SQLite history of sessions and dev-loop
// verification attempts.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Session is one recorded invocation.
type Session struct {
	ID          string
	Provider    string
	Model       string
	Prompt      string
	PlanPath    string
	Status      string
	Error       string
	Turns       int
	ToolCalls   int
	TotalTokens int
	StartedAt   time.Time
	EndedAt     time.Time
	// Attempts is filled by RecentSessions.
	Attempts int
}

// Attempt is one dev-loop verification.
type Attempt struct {
	SessionID string
	Iteration int
	ExitCode  int
	Outcome   string
	Output    string
	At        time.Time
}

// Store is the SQLite-backed run history.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("run log path must be set")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare run log dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt TEXT NOT NULL,
	plan_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	turns INTEGER NOT NULL DEFAULT 0,
	tool_calls INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sessions schema: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), `
CREATE TABLE IF NOT EXISTS attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	exit_code INTEGER NOT NULL,
	outcome TEXT NOT NULL,
	output TEXT NOT NULL,
	at TIMESTAMP NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init attempts schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordSession inserts or updates a session row.
func (s *Store) RecordSession(ctx context.Context, rec Session) error {
	var ended any
	if !rec.EndedAt.IsZero() {
		ended = rec.EndedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (id, provider, model, prompt, plan_path, status, error, turns, tool_calls, total_tokens, started_at, ended_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	status = excluded.status,
	error = excluded.error,
	turns = excluded.turns,
	tool_calls = excluded.tool_calls,
	total_tokens = excluded.total_tokens,
	plan_path = excluded.plan_path,
	ended_at = excluded.ended_at`,
		rec.ID, rec.Provider, rec.Model, rec.Prompt, rec.PlanPath, rec.Status, rec.Error,
		rec.Turns, rec.ToolCalls, rec.TotalTokens, rec.StartedAt.UTC(), ended)
	if err != nil {
		return fmt.Errorf("record session %s: %w", rec.ID, err)
	}
	return nil
}

// RecordAttempt appends a verification attempt.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) error {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO attempts (session_id, iteration, exit_code, outcome, output, at)
VALUES (?, ?, ?, ?, ?, ?)`,
		a.SessionID, a.Iteration, a.ExitCode, a.Outcome, a.Output, a.At.UTC())
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// RecentSessions lists the newest sessions first with their attempt counts.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT s.id, s.provider, s.model, s.prompt, s.plan_path, s.status, s.error,
	s.turns, s.tool_calls, s.total_tokens, s.started_at, s.ended_at,
	(SELECT COUNT(*) FROM attempts a WHERE a.session_id = s.id)
FROM sessions s
ORDER BY s.started_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var rec Session
		var ended sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Provider, &rec.Model, &rec.Prompt, &rec.PlanPath, &rec.Status, &rec.Error,
			&rec.Turns, &rec.ToolCalls, &rec.TotalTokens, &rec.StartedAt, &ended, &rec.Attempts); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if ended.Valid {
			rec.EndedAt = ended.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Attempts returns the attempts of one session in order.
func (s *Store) Attempts(ctx context.Context, sessionID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT session_id, iteration, exit_code, outcome, output, at
FROM attempts WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.SessionID, &a.Iteration, &a.ExitCode, &a.Outcome, &a.Output, &a.At); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
