package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a batch of records.
	Store(ctx context.Context, records []types.ProductRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// Reader is implemented by backends that can return what they stored,
// newest capture first.
type Reader interface {
	Records(ctx context.Context) ([]types.ProductRecord, error)
}

// New creates the backend selected by cfg.Type.
func New(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
	if cfg.Type != "multi" {
		return newBackend(ctx, cfg.Type, cfg, logger)
	}

	backends := make([]Storage, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		b, err := newBackend(ctx, name, cfg, logger)
		if err != nil {
			for _, opened := range backends {
				opened.Close()
			}
			return nil, err
		}
		backends = append(backends, b)
	}
	return NewMultiStorage(backends, logger), nil
}

func newBackend(ctx context.Context, name string, cfg *config.StorageConfig, logger *slog.Logger) (Storage, error) {
	switch name {
	case "sqlite":
		return NewSQLiteStorage(ctx, cfg.DSN, logger)
	case "postgres":
		dsn := cfg.PostgresDSN
		if dsn == "" {
			dsn = cfg.DSN
		}
		return NewPostgresStorage(ctx, dsn, logger)
	case "mongodb":
		return NewMongoStorage(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
	case "json", "csv":
		return NewFileStorage(name, cfg.OutputPath, logger)
	default:
		return nil, &types.StorageError{Backend: name, Err: fmt.Errorf("unsupported storage type")}
	}
}

// NewFileStorage creates the appropriate file-based export by type.
func NewFileStorage(storageType, outputDir string, logger *slog.Logger) (Storage, error) {
	switch storageType {
	case "json":
		return NewJSONStorage(filepath.Join(outputDir, "products.json"), logger)
	case "csv":
		return NewCSVStorage(filepath.Join(outputDir, "products.csv"), logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
