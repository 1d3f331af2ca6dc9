// Package store persists scrape results in addition to the JSON printed on stdout.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/api/schemas"
)

// Sink receives the results of one run.
type Sink interface {
	Write(ctx context.Context, runID string, results []schemas.ScrapeResult) error
	Close() error
}

const sqliteScheme = "sqlite:"

var resultColumns = []string{
	"run_id", "platform", "query", "location",
	"name", "cuisine", "delivery_time", "delivery_fee", "link",
	"scraped_at",
}

// Open picks a sink implementation from the DSN scheme: postgres:// or
// postgresql:// for PostgreSQL, sqlite:<path> for a local database file.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (Sink, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		sink, err := NewPostgresSink(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return sink, nil
	case strings.HasPrefix(dsn, sqliteScheme):
		path := strings.TrimPrefix(dsn, sqliteScheme)
		if path == "" {
			return nil, fmt.Errorf("sqlite dsn %q has no path", dsn)
		}
		return NewSQLiteSink(ctx, path, logger)
	default:
		return nil, fmt.Errorf("unsupported sink dsn %q", dsn)
	}
}

// flatten turns results into one row per restaurant, in resultColumns order.
func flatten(runID string, results []schemas.ScrapeResult, at time.Time) [][]interface{} {
	var rows [][]interface{}
	for _, r := range results {
		for _, rest := range r.Results {
			rows = append(rows, []interface{}{
				runID, r.Platform, r.Query, r.Location,
				rest.Name, rest.Cuisine, rest.DeliveryTime, rest.DeliveryFee, rest.Link,
				at,
			})
		}
	}
	return rows
}
