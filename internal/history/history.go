// Package history records submission outcomes in a local SQLite
// ledger. Watch mode consults it to avoid re-submitting a file that
// already went through, and the history command lists past batches.
// It is an outcome record, not a pending queue: nothing is replayed
// from it after a restart.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // database/sql driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Submission outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Record is one submitted file.
type Record struct {
	ID          int64
	Path        string
	Name        string
	Size        int64
	MtimeNS     int64
	Outcome     string
	Detail      string
	SubmittedAt time.Time
}

// Ledger wraps the submissions table. Single-writer: the *sql.DB is
// capped at one open connection, matching SQLite's locking model.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the ledger database at path and
// applies pending schema migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil { //nolint:mnd // owner-only dir perms
		return nil, fmt.Errorf("history: creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// runMigrations applies all pending schema migrations using the goose
// v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("history: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("history: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("history: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Record inserts a submission outcome.
func (l *Ledger) Record(ctx context.Context, rec *Record) error {
	submittedAt := rec.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO submissions (path, name, size, mtime_ns, outcome, detail, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.Name, rec.Size, rec.MtimeNS, rec.Outcome, rec.Detail,
		submittedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("history: inserting record for %s: %w", rec.Path, err)
	}

	return nil
}

// WasSubmitted reports whether a successful submission is recorded for
// exactly this (path, size, mtime). A changed file looks new again.
func (l *Ledger) WasSubmitted(ctx context.Context, path string, size, mtimeNS int64) (bool, error) {
	var count int

	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM submissions
		 WHERE path = ? AND size = ? AND mtime_ns = ? AND outcome = ?`,
		path, size, mtimeNS, OutcomeSucceeded,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("history: querying %s: %w", path, err)
	}

	return count > 0, nil
}

// List returns the most recent submissions, newest first.
func (l *Ledger) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, path, name, size, mtime_ns, outcome, detail, submitted_at
		 FROM submissions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: listing submissions: %w", err)
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		var rec Record
		var submittedAt string

		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Name, &rec.Size, &rec.MtimeNS,
			&rec.Outcome, &rec.Detail, &submittedAt); err != nil {
			return nil, fmt.Errorf("history: scanning row: %w", err)
		}

		rec.SubmittedAt, err = time.Parse(time.RFC3339, submittedAt)
		if err != nil {
			l.logger.Warn("invalid submitted_at in ledger",
				slog.Int64("id", rec.ID),
				slog.String("raw", submittedAt),
			)
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating rows: %w", err)
	}

	return records, nil
}
