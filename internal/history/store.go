// Package history keeps a rolling SQLite log of attempt outcomes and derives
// the success rate shown in reports and `backupflow status`.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes. Older databases are
// rejected; the history is disposable and can simply be deleted.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Entry is one recorded attempt.
type Entry struct {
	ID         int64
	RunID      string
	Phase      string
	Attempt    int
	StartedAt  time.Time
	Duration   time.Duration
	Success    bool
	ErrorCount int
	Summary    string
}

// Rate summarizes the outcome of the rows still retained.
type Rate struct {
	Total     int
	Succeeded int
}

// Percent returns the success percentage, or 100 when nothing is recorded.
func (r Rate) Percent() float64 {
	if r.Total == 0 {
		return 100
	}
	return float64(r.Succeeded) * 100 / float64(r.Total)
}

// Store manages the run history database.
type Store struct {
	db    *sql.DB
	path  string
	limit int
}

// Open initializes or connects to the history database at path, keeping at
// most limit rows per phase.
func Open(path string, limit int) (*Store, error) {
	if limit < 1 {
		limit = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, limit: limit}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Append records an attempt and drops the oldest rows of the same phase
// beyond the configured limit.
func (s *Store) Append(ctx context.Context, entry Entry) (Entry, error) {
	ctx = ensureContext(ctx)
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now()
	}
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO runs (run_id, phase, attempt, started_at, duration_ms, success, error_count, summary)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.RunID, entry.Phase, entry.Attempt,
			entry.StartedAt.UTC().Format(time.RFC3339Nano),
			entry.Duration.Milliseconds(), boolToInt(entry.Success), entry.ErrorCount,
			strings.TrimSpace(entry.Summary),
		)
		if err != nil {
			return err
		}
		if entry.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM runs WHERE phase = ? AND id NOT IN (
			     SELECT id FROM runs WHERE phase = ? ORDER BY id DESC LIMIT ?)`,
			entry.Phase, entry.Phase, s.limit,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return Entry{}, fmt.Errorf("append history: %w", err)
	}
	return entry, nil
}

// Recent returns up to n most recent entries across phases, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, phase, attempt, started_at, duration_ms, success, error_count, summary
		 FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			started   string
			duration  int64
			succeeded int
		)
		if err := rows.Scan(&entry.ID, &entry.RunID, &entry.Phase, &entry.Attempt, &started,
			&duration, &succeeded, &entry.ErrorCount, &entry.Summary); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
			entry.StartedAt = ts
		}
		entry.Duration = time.Duration(duration) * time.Millisecond
		entry.Success = succeeded != 0
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SuccessRate returns the retained outcome counts for phase. An empty phase
// covers every phase.
func (s *Store) SuccessRate(ctx context.Context, phase string) (Rate, error) {
	ctx = ensureContext(ctx)
	query := "SELECT COUNT(1), COALESCE(SUM(success), 0) FROM runs"
	args := []any{}
	if phase != "" {
		query += " WHERE phase = ?"
		args = append(args, phase)
	}
	var rate Rate
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&rate.Total, &rate.Succeeded); err != nil {
		return Rate{}, fmt.Errorf("query success rate: %w", err)
	}
	return rate, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
