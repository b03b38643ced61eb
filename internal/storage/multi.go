package storage

import (
	"context"
	"log/slog"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// MultiStorage writes records to multiple backends.
type MultiStorage struct {
	backends []Storage
	logger   *slog.Logger
}

// NewMultiStorage creates a storage that fans out to multiple backends.
func NewMultiStorage(backends []Storage, logger *slog.Logger) *MultiStorage {
	return &MultiStorage{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStorage) Name() string { return "multi" }

// Store writes to every backend. A failing backend does not stop the
// others; the first error is returned.
func (s *MultiStorage) Store(ctx context.Context, records []types.ProductRecord) error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Store(ctx, records); err != nil {
			s.logger.Error("backend store failed", "backend", backend.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Records reads from the first backend that supports reading.
func (s *MultiStorage) Records(ctx context.Context) ([]types.ProductRecord, error) {
	for _, backend := range s.backends {
		if r, ok := backend.(Reader); ok {
			return r.Records(ctx)
		}
	}
	return nil, &types.StorageError{Backend: s.Name(), Err: ErrNotReadable}
}

func (s *MultiStorage) Close() error {
	var firstErr error
	for _, backend := range s.backends {
		if err := backend.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
