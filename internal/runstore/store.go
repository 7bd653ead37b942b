// Package runstore keeps a local index of research runs in sqlite so past
// reports can be located without scanning the artifact tree.
package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	topic       TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	report_path TEXT NOT NULL DEFAULT '',
	html_path   TEXT NOT NULL DEFAULT '',
	pdf_path    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
`

// Run is one recorded research run.
type Run struct {
	ID         string       `db:"id"`
	Topic      string       `db:"topic"`
	Mode       string       `db:"mode"`
	Status     string       `db:"status"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
	ReportPath string       `db:"report_path"`
	HTMLPath   string       `db:"html_path"`
	PDFPath    string       `db:"pdf_path"`
}

// Store is the sqlite-backed run index.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open connects to (or creates) the index at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening run index: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing run index: %w", err)
	}
	logger.Debug("Run index opened", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// StartRun records a run in the running state.
func (s *Store) StartRun(ctx context.Context, id, topic, mode string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, topic, mode, status, started_at) VALUES (?, ?, ?, 'running', ?)`,
		id, topic, mode, startedAt,
	)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// FinishRun closes a run record with its final status and artifact paths.
func (s *Store) FinishRun(ctx context.Context, id, status string, finishedAt time.Time, reportPath, htmlPath, pdfPath string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, report_path = ?, html_path = ?, pdf_path = ? WHERE id = ?`,
		status, finishedAt, reportPath, htmlPath, pdfPath, id,
	)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s was never started", id)
	}
	return nil
}

// Recent returns the newest runs, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		`SELECT id, topic, mode, status, started_at, finished_at, report_path, html_path, pdf_path
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
