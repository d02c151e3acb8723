// Package sqlite provides a SQLite-backed run-history store.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jfrid/logsleuth/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed run-history store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (and if needed initializes) the database at path.
func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("sqlite run history opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// SaveRun persists one finished run, replacing any run with the same id.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	patterns, err := json.Marshal(run.Patterns)
	if err != nil {
		return fmt.Errorf("encoding patterns: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, session, kind, status, message, error, patterns, total_errors, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Session, string(run.Kind), string(run.Status),
		run.Message, run.Error, string(patterns), run.TotalErrors,
		run.StartedAt.UTC(), run.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session, kind, status, message, error, patterns, total_errors, started_at, completed_at
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs most recent first.
func (s *Store) ListRuns(ctx context.Context, session string, limit int) ([]*models.Run, error) {
	query := `
		SELECT id, session, kind, status, message, error, patterns, total_errors, started_at, completed_at
		FROM runs`
	args := []any{}
	if session != "" {
		query += " WHERE session = ?"
		args = append(args, session)
	}
	query += " ORDER BY completed_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Clear removes all stored runs.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs"); err != nil {
		return fmt.Errorf("clearing runs: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner covers sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var kind, status, patterns string
	var startedAt, completedAt time.Time

	if err := row.Scan(&run.ID, &run.Session, &kind, &status, &run.Message,
		&run.Error, &patterns, &run.TotalErrors, &startedAt, &completedAt); err != nil {
		return nil, err
	}

	run.Kind = models.JobKind(kind)
	run.Status = models.JobStatus(status)
	run.StartedAt = startedAt
	run.CompletedAt = completedAt
	if err := json.Unmarshal([]byte(patterns), &run.Patterns); err != nil {
		return nil, fmt.Errorf("decoding patterns: %w", err)
	}
	return &run, nil
}
