package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS products (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL,
	price            DOUBLE PRECISION,
	old_price        DOUBLE PRECISION,
	brand            TEXT NOT NULL DEFAULT 'Unknown',
	category         TEXT NOT NULL DEFAULT '',
	image_url        TEXT NOT NULL DEFAULT '',
	detail_url       TEXT NOT NULL DEFAULT '',
	rating           DOUBLE PRECISION,
	availability     TEXT NOT NULL DEFAULT 'in stock',
	captured_at      TIMESTAMPTZ NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	synthetic        BOOLEAN NOT NULL DEFAULT FALSE,
	synthetic_fields TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_products_captured_at ON products (captured_at DESC);
`

// PostgresStorage writes records to a products table in PostgreSQL.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	count  int
	logger *slog.Logger
}

// NewPostgresStorage connects to dsn and creates the products table if needed.
func NewPostgresStorage(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStorage, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Err: fmt.Errorf("parse config: %w", err)}
	}
	poolConfig.MaxConns = 4
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Err: fmt.Errorf("create pool: %w", err)}
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, &types.StorageError{Backend: "postgres", Err: fmt.Errorf("ping: %w", err)}
	}
	if _, err := pool.Exec(connectCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, &types.StorageError{Backend: "postgres", Err: fmt.Errorf("create schema: %w", err)}
	}

	return &PostgresStorage{
		pool:   pool,
		logger: logger.With("component", "postgres_storage"),
	}, nil
}

func (s *PostgresStorage) Name() string { return "postgres" }

func (s *PostgresStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i := range records {
		r := &records[i]
		batch.Queue(`INSERT INTO products (`+productColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			r.Name, r.Price, r.OldPrice, r.Brand, r.Category, r.ImageURL, r.DetailURL,
			r.Rating, r.Availability, r.CapturedAt.UTC(), r.Source, r.Synthetic,
			strings.Join(r.SyntheticFields, ","))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("insert batch: %w", err)}
	}
	if err := tx.Commit(ctx); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("commit: %w", err)}
	}

	s.count += len(records)
	s.logger.Debug("records stored in postgres", "count", len(records), "total", s.count)
	return nil
}

func (s *PostgresStorage) Records(ctx context.Context) ([]types.ProductRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY captured_at DESC, id DESC`)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("query: %w", err)}
	}
	defer rows.Close()

	var out []types.ProductRecord
	for rows.Next() {
		var (
			rec        types.ProductRecord
			synthetics string
		)
		err := rows.Scan(&rec.Name, &rec.Price, &rec.OldPrice, &rec.Brand, &rec.Category,
			&rec.ImageURL, &rec.DetailURL, &rec.Rating, &rec.Availability,
			&rec.CapturedAt, &rec.Source, &rec.Synthetic, &synthetics)
		if err != nil {
			return nil, &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("scan: %w", err)}
		}
		if synthetics != "" {
			rec.SyntheticFields = strings.Split(synthetics, ",")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Err: err}
	}
	return out, nil
}

func (s *PostgresStorage) Close() error {
	s.logger.Info("postgres storage closing", "total_records", s.count)
	s.pool.Close()
	return nil
}
