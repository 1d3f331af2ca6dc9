package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the sink can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresSink copies result rows into the scrape_results table.
type PostgresSink struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

var _ Sink = (*PostgresSink)(nil)

// NewPostgresSink verifies the connection before returning.
func NewPostgresSink(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresSink, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresSink{
		pool: pool,
		log:  logger.Named("store.postgres"),
		now:  time.Now,
	}, nil
}

// Write inserts every restaurant of the run in a single transaction.
func (s *PostgresSink) Write(ctx context.Context, runID string, results []schemas.ScrapeResult) error {
	rows := flatten(runID, results, s.now().UTC())
	if len(rows) == 0 {
		s.log.Debug("No rows to persist.", zap.String("run_id", runID))
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"scrape_results"}, resultColumns, pgx.CopyFromRows(rows))
	if err == nil && int(n) != len(rows) {
		err = fmt.Errorf("mismatch in copied rows count: expected %d, got %d", len(rows), n)
	}
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return fmt.Errorf("failed to copy scrape results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Persisted scrape results.", zap.String("run_id", runID), zap.Int("rows", len(rows)))
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
