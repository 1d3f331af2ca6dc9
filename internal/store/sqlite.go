package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/foodscout/api/schemas"
)

const createResultsTable = `
	CREATE TABLE IF NOT EXISTS scrape_results (
		run_id        TEXT NOT NULL,
		platform      TEXT NOT NULL,
		query         TEXT NOT NULL,
		location      TEXT NOT NULL,
		name          TEXT NOT NULL,
		cuisine       TEXT NOT NULL DEFAULT '',
		delivery_time TEXT NOT NULL DEFAULT '',
		delivery_fee  TEXT NOT NULL DEFAULT '',
		link          TEXT NOT NULL DEFAULT '',
		scraped_at    DATETIME NOT NULL
	)`

const createRunIndex = `CREATE INDEX IF NOT EXISTS idx_scrape_results_run_id ON scrape_results(run_id)`

// SQLiteSink writes results to a local SQLite file (pure Go driver).
type SQLiteSink struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

var _ Sink = (*SQLiteSink)(nil)

// NewSQLiteSink opens path and creates the results table. Use ":memory:" in tests.
func NewSQLiteSink(ctx context.Context, path string, logger *zap.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	for _, ddl := range []string{createResultsTable, createRunIndex} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("create results table: %w", err)
		}
	}
	return &SQLiteSink{db: db, log: logger.Named("store.sqlite"), now: time.Now}, nil
}

func (s *SQLiteSink) Write(ctx context.Context, runID string, results []schemas.ScrapeResult) error {
	rows := flatten(runID, results, s.now().UTC())
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(resultColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO scrape_results (%s) VALUES (%s)",
		strings.Join(resultColumns, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		// The driver stores time.Time as text; keep it sortable.
		row[len(row)-1] = row[len(row)-1].(time.Time).Format(time.RFC3339)
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert result row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.log.Info("Persisted scrape results.", zap.String("run_id", runID), zap.Int("rows", len(rows)))
	return nil
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
