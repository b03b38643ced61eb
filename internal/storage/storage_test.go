package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var t0 = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func sampleRecords() []types.ProductRecord {
	return []types.ProductRecord{
		{
			Name:         "A Light in the Attic",
			Price:        types.Float(51.77),
			Brand:        types.UnknownBrand,
			Category:     "Books",
			ImageURL:     "https://books.example/media/a.jpg",
			DetailURL:    "https://books.example/catalogue/a-light-in-the-attic_1000/index.html",
			Rating:       types.Float(3),
			Availability: "In stock",
			CapturedAt:   t0,
			Source:       "All books",
		},
		{
			Name:            "sunt aut facere",
			Price:           types.Float(1337),
			Brand:           "Bret",
			Category:        "API",
			Rating:          types.Float(3.1),
			Availability:    types.DefaultAvailability,
			CapturedAt:      t0.Add(time.Minute),
			Synthetic:       true,
			SyntheticFields: []string{"price", "rating"},
		},
	}
}

func newMemorySQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(context.Background(), ":memory:", testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := newMemorySQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, sampleRecords()))

	got, err := s.Records(ctx)
	require.NoError(t, err)

	want := sampleRecords()
	want[0], want[1] = want[1], want[0]
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteKeepsAbsentNumbersNull(t *testing.T) {
	s := newMemorySQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, []types.ProductRecord{{Name: "Olio", CapturedAt: t0}}))

	got, err := s.Records(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Price)
	assert.Nil(t, got[0].OldPrice)
	assert.Nil(t, got[0].Rating)
}

func TestSQLiteStoreEmptyBatch(t *testing.T) {
	s := newMemorySQLite(t)
	require.NoError(t, s.Store(context.Background(), nil))

	got, err := s.Records(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJSONExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "products.json")
	s, err := NewJSONStorage(path, testLogger)
	require.NoError(t, err)

	records := sampleRecords()
	records[0].OldPrice = nil
	require.NoError(t, s.Store(context.Background(), records))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "£51.77", rows[0]["price"])
	assert.Equal(t, "N/A", rows[0]["old_price"])
	assert.Equal(t, "3/5", rows[0]["rating"])
	assert.Equal(t, "£1337.00", rows[1]["price"])
	assert.Equal(t, "3.1/5", rows[1]["rating"])
	assert.Equal(t, true, rows[1]["synthetic"])
}

func TestCSVExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")
	s, err := NewCSVStorage(path, testLogger)
	require.NoError(t, err)

	require.NoError(t, s.Store(context.Background(), sampleRecords()))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "A Light in the Attic", rows[1][0])
	assert.Equal(t, "£51.77", rows[1][1])
	assert.Equal(t, "N/A", rows[1][2])
	assert.Equal(t, "3/5", rows[1][7])
	assert.Equal(t, "price,rating", rows[2][12])
}

type failingStorage struct{ stored int }

func (f *failingStorage) Store(context.Context, []types.ProductRecord) error {
	f.stored++
	return &types.StorageError{Backend: "failing", Err: errors.New("disk full")}
}
func (f *failingStorage) Close() error { return nil }
func (f *failingStorage) Name() string { return "failing" }

func TestMultiStorageFansOut(t *testing.T) {
	failing := &failingStorage{}
	sqlite := newMemorySQLite(t)
	m := NewMultiStorage([]Storage{failing, sqlite}, testLogger)

	err := m.Store(context.Background(), sampleRecords())
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "failing", se.Backend)
	assert.Equal(t, 1, failing.stored)

	got, err := m.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2, "the healthy backend still received the batch")
}

func TestMultiStorageWithoutReader(t *testing.T) {
	m := NewMultiStorage([]Storage{&failingStorage{}}, testLogger)
	_, err := m.Records(context.Background())
	assert.ErrorIs(t, err, ErrNotReadable)
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		cfg      config.StorageConfig
		wantName string
		wantErr  bool
	}{
		{"sqlite", config.StorageConfig{Type: "sqlite", DSN: ":memory:"}, "sqlite", false},
		{"json", config.StorageConfig{Type: "json", OutputPath: dir}, "json", false},
		{"csv", config.StorageConfig{Type: "csv", OutputPath: dir}, "csv", false},
		{"multi", config.StorageConfig{Type: "multi", DSN: ":memory:", OutputPath: dir, Backends: []string{"sqlite", "csv"}}, "multi", false},
		{"unknown", config.StorageConfig{Type: "parquet"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(context.Background(), &tt.cfg, testLogger)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, tt.wantName, s.Name())
		})
	}
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("BOOKSPARSER_TEST_POSTGRES_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("BOOKSPARSER_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	s, err := NewPostgresStorage(ctx, dsn, testLogger)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.pool.Exec(ctx, "TRUNCATE products")
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, sampleRecords()))

	got, err := s.Records(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sunt aut facere", got[0].Name)
	assert.Equal(t, []string{"price", "rating"}, got[0].SyntheticFields)
}

func TestMongoRoundTrip(t *testing.T) {
	uri := os.Getenv("BOOKSPARSER_TEST_MONGO_URI")
	if uri == "" || testing.Short() {
		t.Skip("BOOKSPARSER_TEST_MONGO_URI not set")
	}
	ctx := context.Background()

	s, err := NewMongoStorage(ctx, uri, "booksparser_test", "products_"+time.Now().Format("150405"), testLogger)
	require.NoError(t, err)
	defer func() {
		s.collection.Drop(ctx)
		s.Close()
	}()

	require.NoError(t, s.Store(ctx, sampleRecords()))

	got, err := s.Records(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sunt aut facere", got[0].Name)
	assert.True(t, got[0].Synthetic)
}
