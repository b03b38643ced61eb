package observability

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestMetricsServeHTTP(t *testing.T) {
	m := NewMetrics(testLogger)
	m.RunStarted()
	m.RecordsExtracted.Add(7)
	m.SourcesFailed.Add(1)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "booksparser_records_extracted_total 7")
	assert.Contains(t, body, "booksparser_sources_failed_total 1")
	assert.Contains(t, body, "# TYPE booksparser_runs_in_flight gauge")
	assert.Contains(t, body, "booksparser_runs_in_flight 1")
}

func TestMetricsRunLifecycle(t *testing.T) {
	m := NewMetrics(testLogger)
	m.RunStarted()
	m.RunStarted()
	m.RunFinished()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap["runs_total"])
	assert.Equal(t, int64(1), snap["runs_in_flight"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RunStarted()
		m.RunFinished()
	})
}
