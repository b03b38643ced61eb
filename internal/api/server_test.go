package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Grigsan/booksparser-telegram-bot/internal/catalog"
	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/observability"
	"github.com/Grigsan/booksparser-telegram-bot/internal/storage"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeRunner struct {
	mu        sync.Mutex
	calls     int
	lastCap   int
	lastNames []string
	records   []types.ProductRecord
}

func (f *fakeRunner) RunExtraction(_ context.Context, sources []types.SourceSpec, globalCap int) []types.ProductRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastCap = globalCap
	f.lastNames = nil
	for _, src := range sources {
		f.lastNames = append(f.lastNames, src.DisplayName)
	}
	if len(f.records) > globalCap {
		return f.records[:globalCap]
	}
	return f.records
}

func books() []types.ProductRecord {
	t0 := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	return []types.ProductRecord{
		{Name: "Soumission", Price: types.Float(50.10), Brand: types.UnknownBrand, Category: "Fiction", Availability: "In stock", CapturedAt: t0},
		{Name: "Tipping the Velvet", Price: types.Float(53.74), Brand: types.UnknownBrand, Category: "Fiction", Availability: "In stock", CapturedAt: t0.Add(time.Second)},
		{Name: "It's Only the Himalayas", Price: types.Float(45.17), Brand: types.UnknownBrand, Category: "Travel", Availability: "In stock", CapturedAt: t0.Add(2 * time.Second)},
	}
}

type fixture struct {
	server  *Server
	runner  *fakeRunner
	store   *storage.SQLiteStorage
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(context.Background(), ":memory:", testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig()
	runner := &fakeRunner{records: books()}
	metrics := observability.NewMetrics(testLogger)
	srv := NewServer(cfg, runner, store, catalog.New(store, testLogger), metrics, testLogger)
	return &fixture{server: srv, runner: runner, store: store, metrics: metrics}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["parsing"])
}

func TestParseStoresRecords(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/parse", `{"global_cap": 2}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", body["status"])
	assert.EqualValues(t, 2, body["parsed_count"])
	assert.EqualValues(t, 2, body["total_products"])
	assert.NotEmpty(t, body["job_id"])
	assert.Equal(t, 2, f.runner.lastCap)
	assert.Len(t, f.runner.lastNames, len(config.DefaultSources()))
	assert.Equal(t, int64(2), f.metrics.RecordsStored.Load())

	jobRec, job := f.do(t, http.MethodGet, "/jobs/"+body["job_id"].(string), "")
	require.Equal(t, http.StatusOK, jobRec.Code)
	assert.Equal(t, "completed", job["status"])
}

func TestParseSkipsWhenRecordsExist(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Store(context.Background(), books()))

	rec, body := f.do(t, http.MethodPost, "/parse", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "skipped", body["status"])
	assert.EqualValues(t, 3, body["total_products"])
	assert.Zero(t, f.runner.calls)

	rec, body = f.do(t, http.MethodPost, "/parse", `{"force": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, 1, f.runner.calls)
	assert.EqualValues(t, 3, body["total_products"], "duplicates collapse in the catalog view")
}

func TestParseSourceFilter(t *testing.T) {
	f := newFixture(t)
	name := config.DefaultSources()[1].DisplayName

	rec, _ := f.do(t, http.MethodPost, "/parse", `{"sources": ["`+name+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{name}, f.runner.lastNames)

	rec, _ = f.do(t, http.MethodPost, "/parse", `{"force": true, "sources": ["nope"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/parse", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/parse", `{"global_cap": -3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProducts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Store(context.Background(), books()))

	rec, body := f.do(t, http.MethodGet, "/products?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])
	products := body["products"].([]any)
	assert.Equal(t, "It's Only the Himalayas", products[0].(map[string]any)["name"])

	rec, _ = f.do(t, http.MethodGet, "/products?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Store(context.Background(), books()))

	rec, body := f.do(t, http.MethodGet, "/search?q=velvet", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = f.do(t, http.MethodGet, "/search?category=fic", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	rec, _ = f.do(t, http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/search?q=%20%20&category=%20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodGet, "/search?q=%20velvet%20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	assert.Equal(t, "velvet", body["query"])
}

func TestStatsAndCategories(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Store(context.Background(), books()))

	rec, body := f.do(t, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 3, stats["total"])

	rec, body = f.do(t, http.MethodGet, "/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"Fiction", "Travel"}, body["categories"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodGet, "/health", "")

	rec, _ := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "booksparser_api_requests_total 1")
}

func TestUnknownJob(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
