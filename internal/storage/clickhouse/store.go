// Package clickhouse provides a ClickHouse-backed run-history store for
// teams that archive analysis runs centrally.
package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/jfrid/logsleuth/pkg/models"
)

const (
	defaultMaxOpenConns = 5
	defaultDialTimeout  = 10 * time.Second
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id           String,
    session      String,
    kind         LowCardinality(String),
    status       LowCardinality(String),
    message      String,
    error        String,
    patterns     String,
    total_errors UInt64,
    started_at   DateTime64(3, 'UTC'),
    completed_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(completed_at)
ORDER BY (session, id)
`

// Config holds ClickHouse connection parameters.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// DefaultConfig returns a config for a local ClickHouse.
func DefaultConfig() Config {
	return Config{
		Addr:     "localhost:9000",
		Database: "default",
		Username: "default",
	}
}

// Store is a ClickHouse-backed run-history store.
type Store struct {
	conn   driver.Conn
	logger *slog.Logger
}

// NewStore connects to ClickHouse and ensures the runs table exists.
func NewStore(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:  defaultDialTimeout,
		MaxOpenConns: defaultMaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, schemaDDL); err != nil {
		return nil, fmt.Errorf("creating runs table: %w", err)
	}

	logger.Info("clickhouse run history connected", "addr", cfg.Addr)
	return &Store{conn: conn, logger: logger}, nil
}

// SaveRun persists one finished run.
func (s *Store) SaveRun(ctx context.Context, run *models.Run) error {
	patterns, err := json.Marshal(run.Patterns)
	if err != nil {
		return fmt.Errorf("encoding patterns: %w", err)
	}

	err = s.conn.Exec(ctx, `
		INSERT INTO analysis_runs
			(id, session, kind, status, message, error, patterns, total_errors, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Session, string(run.Kind), string(run.Status),
		run.Message, run.Error, string(patterns), uint64(run.TotalErrors),
		run.StartedAt.UTC(), run.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.Run, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, session, kind, status, message, error, patterns, total_errors, started_at, completed_at
		FROM analysis_runs FINAL WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, models.ErrRunNotFound
	}
	return scanRun(rows)
}

// ListRuns returns runs most recent first.
func (s *Store) ListRuns(ctx context.Context, session string, limit int) ([]*models.Run, error) {
	query := `
		SELECT id, session, kind, status, message, error, patterns, total_errors, started_at, completed_at
		FROM analysis_runs FINAL`
	args := []any{}
	if session != "" {
		query += " WHERE session = ?"
		args = append(args, session)
	}
	query += " ORDER BY completed_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Clear removes all stored runs.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE analysis_runs"); err != nil {
		return fmt.Errorf("clearing runs: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func scanRun(rows driver.Rows) (*models.Run, error) {
	var run models.Run
	var kind, status, patterns string
	var totalErrors uint64
	var startedAt, completedAt time.Time

	if err := rows.Scan(&run.ID, &run.Session, &kind, &status, &run.Message,
		&run.Error, &patterns, &totalErrors, &startedAt, &completedAt); err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	run.Kind = models.JobKind(kind)
	run.Status = models.JobStatus(status)
	run.TotalErrors = int(totalErrors)
	run.StartedAt = startedAt
	run.CompletedAt = completedAt
	if err := json.Unmarshal([]byte(patterns), &run.Patterns); err != nil {
		return nil, fmt.Errorf("decoding patterns: %w", err)
	}
	return &run, nil
}
