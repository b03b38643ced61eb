package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// ErrNotReadable is returned when no configured backend can read records back.
var ErrNotReadable = errors.New("storage backend does not support reading")

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS products (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	price            REAL,
	old_price        REAL,
	brand            TEXT NOT NULL DEFAULT 'Unknown',
	category         TEXT NOT NULL DEFAULT '',
	image_url        TEXT NOT NULL DEFAULT '',
	detail_url       TEXT NOT NULL DEFAULT '',
	rating           REAL,
	availability     TEXT NOT NULL DEFAULT 'in stock',
	captured_at      TEXT NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	synthetic        INTEGER NOT NULL DEFAULT 0,
	synthetic_fields TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_products_captured_at ON products (captured_at);
CREATE INDEX IF NOT EXISTS idx_products_category ON products (category);
`

const productColumns = `name, price, old_price, brand, category, image_url, detail_url,
	rating, availability, captured_at, source, synthetic, synthetic_fields`

// SQLiteStorage writes records to a products table in SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	count  int
	logger *slog.Logger
}

// NewSQLiteStorage opens dsn and creates the products table if needed.
func NewSQLiteStorage(ctx context.Context, dsn string, logger *slog.Logger) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("open: %w", err)}
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStorageFromDB(ctx, db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStorageFromDB wraps an already opened database.
func NewSQLiteStorageFromDB(ctx context.Context, db *sql.DB, logger *slog.Logger) (*SQLiteStorage, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("create schema: %w", err)}
	}
	return &SQLiteStorage{
		db:     db,
		logger: logger.With("component", "sqlite_storage"),
	}, nil
}

func (s *SQLiteStorage) Name() string { return "sqlite" }

func (s *SQLiteStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("prepare insert: %w", err)}
	}
	defer stmt.Close()

	for i := range records {
		if _, err := stmt.ExecContext(ctx, rowArgs(&records[i])...); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("insert %q: %w", records[i].Name, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("commit: %w", err)}
	}

	s.count += len(records)
	s.logger.Debug("records stored in sqlite", "count", len(records), "total", s.count)
	return nil
}

func (s *SQLiteStorage) Records(ctx context.Context) ([]types.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY captured_at DESC, id DESC`)
	if err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("query: %w", err)}
	}
	defer rows.Close()

	var out []types.ProductRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, &types.StorageError{Backend: s.Name(), Err: err}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Backend: s.Name(), Err: err}
	}
	return out, nil
}

func (s *SQLiteStorage) Close() error {
	s.logger.Info("sqlite storage closing", "total_records", s.count)
	return s.db.Close()
}

// rowArgs orders a record's values as productColumns.
func rowArgs(r *types.ProductRecord) []any {
	return []any{
		r.Name, nullFloat(r.Price), nullFloat(r.OldPrice), r.Brand, r.Category,
		r.ImageURL, r.DetailURL, nullFloat(r.Rating), r.Availability,
		r.CapturedAt.UTC().Format(time.RFC3339Nano), r.Source, r.Synthetic,
		strings.Join(r.SyntheticFields, ","),
	}
}

func scanRecord(scan func(dest ...any) error) (types.ProductRecord, error) {
	var (
		rec                    types.ProductRecord
		price, oldPrice, rate  sql.NullFloat64
		capturedAt, synthetics string
	)
	err := scan(&rec.Name, &price, &oldPrice, &rec.Brand, &rec.Category,
		&rec.ImageURL, &rec.DetailURL, &rate, &rec.Availability,
		&capturedAt, &rec.Source, &rec.Synthetic, &synthetics)
	if err != nil {
		return rec, fmt.Errorf("scan: %w", err)
	}

	rec.Price = floatPtr(price)
	rec.OldPrice = floatPtr(oldPrice)
	rec.Rating = floatPtr(rate)
	if rec.CapturedAt, err = time.Parse(time.RFC3339Nano, capturedAt); err != nil {
		return rec, fmt.Errorf("parse captured_at %q: %w", capturedAt, err)
	}
	if synthetics != "" {
		rec.SyntheticFields = strings.Split(synthetics, ",")
	}
	return rec, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return types.Float(v.Float64)
}
