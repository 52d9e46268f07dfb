package history

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shelfscan/backend/internal/domain"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS price_comparisons (
	run_id          UUID        NOT NULL,
	retailer        TEXT        NOT NULL,
	compared_at     TIMESTAMPTZ NOT NULL,
	source_row      INTEGER     NOT NULL,
	upc             TEXT,
	description     TEXT,
	reference_price DOUBLE PRECISION,
	matched_name    TEXT,
	matched_price   DOUBLE PRECISION,
	score           DOUBLE PRECISION,
	status          TEXT        NOT NULL,
	delta_abs       DOUBLE PRECISION,
	delta_pct       DOUBLE PRECISION,
	flagged         BOOLEAN     NOT NULL DEFAULT FALSE,
	PRIMARY KEY (run_id, source_row)
)`

const insertSQL = `INSERT INTO price_comparisons
	(run_id, retailer, compared_at, source_row, upc, description, reference_price,
	 matched_name, matched_price, score, status, delta_abs, delta_pct, flagged)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	ON CONFLICT (run_id, source_row) DO NOTHING`

// Store records comparison runs in Postgres for price tracking over time
type Store struct {
	pool  *pgxpool.Pool
	batch int
	newID func() uuid.UUID
}

// Open connects to Postgres and makes sure the history table exists
func Open(ctx context.Context, dsn string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, domain.NewConfigurationError("invalid history database url", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect history database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{pool: pool, batch: 200, newID: uuid.New}, nil
}

// SaveComparison implements domain.HistoryRepository. Every call is a new run.
func (s *Store) SaveComparison(ctx context.Context, retailer string, rows []domain.ComparisonRow, at time.Time) error {
	runID := s.newID()
	total := 0
	for _, b := range buildBatches(runID, retailer, rows, at, s.batch) {
		n := b.Len()
		br := s.pool.SendBatch(ctx, b)
		for k := 0; k < n; k++ {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return fmt.Errorf("insert comparison row: %w", err)
			}
			total += int(tag.RowsAffected())
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("insert comparison batch: %w", err)
		}
	}
	log.Printf("[HISTORY] Stored %d comparison rows for %s (run %s)", total, retailer, runID)
	return nil
}

// Close implements domain.HistoryRepository
func (s *Store) Close() {
	s.pool.Close()
}

// buildBatches splits rows into insert batches of at most size statements
func buildBatches(runID uuid.UUID, retailer string, rows []domain.ComparisonRow, at time.Time, size int) []*pgx.Batch {
	if size <= 0 {
		size = 200
	}
	var batches []*pgx.Batch
	for i := 0; i < len(rows); i += size {
		j := i + size
		if j > len(rows) {
			j = len(rows)
		}
		b := &pgx.Batch{}
		for _, r := range rows[i:j] {
			var matchedName *string
			if r.Status == domain.StatusMatched {
				matchedName = &r.MatchedName
			}
			b.Queue(insertSQL,
				runID, retailer, at, r.Reference.Row, r.Reference.UPC, r.Reference.Description, r.Reference.Price,
				matchedName, r.MatchedPrice, r.Match.Score, r.Status, r.DeltaAbs, r.DeltaPct, r.Flagged,
			)
		}
		batches = append(batches, b)
	}
	return batches
}
