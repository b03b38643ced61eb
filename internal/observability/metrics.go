package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for extraction runs and the API.
type Metrics struct {
	// Run metrics
	RunsTotal    atomic.Int64
	RunsInFlight atomic.Int32

	// Source metrics
	SourcesAcquired atomic.Int64
	SourcesFailed   atomic.Int64

	// Record metrics
	ItemsSeen        atomic.Int64
	RecordsExtracted atomic.Int64
	RecordsDropped   atomic.Int64
	RecordsDeduped   atomic.Int64
	RecordsStored    atomic.Int64
	StoreErrors      atomic.Int64

	// API metrics
	APIRequests atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type metric struct {
	name  string
	help  string
	kind  string
	value int64
}

func (m *Metrics) collect() []metric {
	return []metric{
		{"booksparser_runs_total", "Total extraction runs started", "counter", m.RunsTotal.Load()},
		{"booksparser_runs_in_flight", "Extraction runs currently executing", "gauge", int64(m.RunsInFlight.Load())},
		{"booksparser_sources_acquired_total", "Sources acquired successfully", "counter", m.SourcesAcquired.Load()},
		{"booksparser_sources_failed_total", "Sources skipped after an acquisition failure", "counter", m.SourcesFailed.Load()},
		{"booksparser_items_seen_total", "Listing items handed to an extractor", "counter", m.ItemsSeen.Load()},
		{"booksparser_records_extracted_total", "Records emitted by the walker", "counter", m.RecordsExtracted.Load()},
		{"booksparser_records_dropped_total", "Items dropped for lack of a name or by the pipeline", "counter", m.RecordsDropped.Load()},
		{"booksparser_records_deduped_total", "Records removed as duplicates", "counter", m.RecordsDeduped.Load()},
		{"booksparser_records_stored_total", "Records written to storage", "counter", m.RecordsStored.Load()},
		{"booksparser_store_errors_total", "Failed storage writes", "counter", m.StoreErrors.Load()},
		{"booksparser_api_requests_total", "HTTP API requests served", "counter", m.APIRequests.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, mt := range m.collect() {
		fmt.Fprintf(w, "# HELP %s %s\n", mt.name, mt.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", mt.name, mt.kind)
		fmt.Fprintf(w, "%s %d\n", mt.name, mt.value)
	}
}

// RunStarted records the start of an extraction run.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsTotal.Add(1)
	m.RunsInFlight.Add(1)
}

// RunFinished records the end of an extraction run.
func (m *Metrics) RunFinished() {
	if m == nil {
		return
	}
	m.RunsInFlight.Add(-1)
	m.logger.Debug("run finished", "runs_total", m.RunsTotal.Load())
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"runs_total":        m.RunsTotal.Load(),
		"runs_in_flight":    int64(m.RunsInFlight.Load()),
		"sources_acquired":  m.SourcesAcquired.Load(),
		"sources_failed":    m.SourcesFailed.Load(),
		"items_seen":        m.ItemsSeen.Load(),
		"records_extracted": m.RecordsExtracted.Load(),
		"records_dropped":   m.RecordsDropped.Load(),
		"records_deduped":   m.RecordsDeduped.Load(),
		"records_stored":    m.RecordsStored.Load(),
		"store_errors":      m.StoreErrors.Load(),
		"api_requests":      m.APIRequests.Load(),
	}
}
