package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var ErrNotFound = errors.New("run not found")

// tsLayout is fixed width so timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Run is one ledger row plus its warnings.
type Run struct {
	RunID           string     `json:"run_id"`
	Mode            string     `json:"mode"`
	Strategy        string     `json:"strategy"`
	Status          string     `json:"status"`
	ErrorKind       string     `json:"error_kind,omitempty"`
	Error           string     `json:"error,omitempty"`
	Clips           int        `json:"clips"`
	TotalDurationMS int64      `json:"total_duration_ms"`
	LastRelaxation  string     `json:"last_relaxation,omitempty"`
	RunDir          string     `json:"run_dir"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Warnings        []string   `json:"warnings,omitempty"`
}

// Outcome is what Finish records.
type Outcome struct {
	Status          string
	ErrorKind       string
	Error           string
	Clips           int
	TotalDurationMS int64
	LastRelaxation  string
	FinishedAt      time.Time
}

type Ledger struct {
	conn *sql.DB
}

// Open opens (and creates if needed) the sqlite ledger at path.
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ledger: %w", err)
	}
	l := &Ledger{conn: conn}
	if err := l.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return l, nil
}

func (l *Ledger) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		strategy TEXT NOT NULL,
		status TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		clips INTEGER NOT NULL DEFAULT 0,
		total_duration_ms INTEGER NOT NULL DEFAULT 0,
		last_relaxation TEXT NOT NULL DEFAULT '',
		run_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);
	CREATE TABLE IF NOT EXISTS run_warnings (
		run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		message TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := l.conn.Exec(query)
	return err
}

func (l *Ledger) Close() error {
	return l.conn.Close()
}

// Begin records a new running run.
func (l *Ledger) Begin(ctx context.Context, r Run) error {
	_, err := l.conn.ExecContext(ctx,
		`INSERT INTO runs (run_id, mode, strategy, status, run_dir, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Mode, r.Strategy, StatusRunning, r.RunDir, r.StartedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	return nil
}

func (l *Ledger) Finish(ctx context.Context, runID string, o Outcome) error {
	res, err := l.conn.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_kind = ?, error = ?, clips = ?, total_duration_ms = ?, last_relaxation = ?, finished_at = ?
		 WHERE run_id = ?`,
		o.Status, o.ErrorKind, o.Error, o.Clips, o.TotalDurationMS, o.LastRelaxation, o.FinishedAt.UTC().Format(tsLayout), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddWarnings appends warnings after any already recorded for the run.
func (l *Ledger) AddWarnings(ctx context.Context, runID string, warnings []string) error {
	if len(warnings) == 0 {
		return nil
	}
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM run_warnings WHERE run_id = ?`, runID).Scan(&next); err != nil {
		return fmt.Errorf("failed to read warning sequence: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_warnings (run_id, seq, message) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, w := range warnings {
		if _, err := stmt.ExecContext(ctx, runID, next+i, w); err != nil {
			return fmt.Errorf("failed to insert warning: %w", err)
		}
	}
	return tx.Commit()
}

const selectRun = `SELECT run_id, mode, strategy, status, error_kind, error, clips, total_duration_ms, last_relaxation, run_dir, started_at, finished_at FROM runs`

func (l *Ledger) Get(ctx context.Context, runID string) (Run, error) {
	row := l.conn.QueryRowContext(ctx, selectRun+` WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := l.conn.QueryContext(ctx, `SELECT message FROM run_warnings WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return Run{}, fmt.Errorf("failed to get warnings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return Run{}, err
		}
		r.Warnings = append(r.Warnings, msg)
	}
	return r, rows.Err()
}

// List returns the newest runs first. Warnings are not loaded.
func (l *Ledger) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.conn.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r        Run
		started  string
		finished sql.NullString
	)
	err := s.Scan(&r.RunID, &r.Mode, &r.Strategy, &r.Status, &r.ErrorKind, &r.Error, &r.Clips, &r.TotalDurationMS, &r.LastRelaxation, &r.RunDir, &started, &finished)
	if err != nil {
		return Run{}, err
	}
	if r.StartedAt, err = time.Parse(tsLayout, started); err != nil {
		return Run{}, fmt.Errorf("run %s: started_at: %w", r.RunID, err)
	}
	if finished.Valid {
		t, err := time.Parse(tsLayout, finished.String)
		if err != nil {
			return Run{}, fmt.Errorf("run %s: finished_at: %w", r.RunID, err)
		}
		r.FinishedAt = &t
	}
	return r, nil
}
