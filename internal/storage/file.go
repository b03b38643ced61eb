package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// exportRow is the flat, human-readable shape written by file exports.
// Prices carry the currency sign and ratings are rendered out of five.
type exportRow struct {
	Name            string   `json:"name"`
	Price           string   `json:"price"`
	OldPrice        string   `json:"old_price"`
	Brand           string   `json:"brand"`
	Category        string   `json:"category"`
	ImageURL        string   `json:"image_url"`
	DetailURL       string   `json:"detail_url"`
	Rating          string   `json:"rating"`
	Availability    string   `json:"availability"`
	CapturedAt      string   `json:"captured_at"`
	Source          string   `json:"source,omitempty"`
	Synthetic       bool     `json:"synthetic"`
	SyntheticFields []string `json:"synthetic_fields,omitempty"`
}

var csvHeader = []string{
	"name", "price", "old_price", "brand", "category", "image_url", "detail_url",
	"rating", "availability", "captured_at", "source", "synthetic", "synthetic_fields",
}

func toExportRow(r *types.ProductRecord) exportRow {
	return exportRow{
		Name:            r.Name,
		Price:           r.FormattedPrice(),
		OldPrice:        r.FormattedOldPrice(),
		Brand:           r.Brand,
		Category:        r.Category,
		ImageURL:        r.ImageURL,
		DetailURL:       r.DetailURL,
		Rating:          r.FormattedRating(),
		Availability:    r.Availability,
		CapturedAt:      r.CapturedAt.UTC().Format(time.RFC3339),
		Source:          r.Source,
		Synthetic:       r.Synthetic,
		SyntheticFields: r.SyntheticFields,
	}
}

func (e exportRow) csvRecord() []string {
	return []string{
		e.Name, e.Price, e.OldPrice, e.Brand, e.Category, e.ImageURL, e.DetailURL,
		e.Rating, e.Availability, e.CapturedAt, e.Source,
		strconv.FormatBool(e.Synthetic), strings.Join(e.SyntheticFields, ","),
	}
}

// --- JSON Storage ---

// JSONStorage writes records as a JSON array to a file on Close.
type JSONStorage struct {
	path   string
	rows   []exportRow
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONStorage creates a new JSON file storage.
func NewJSONStorage(outputPath string, logger *slog.Logger) (*JSONStorage, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &types.StorageError{Backend: "json", Err: fmt.Errorf("create output dir: %w", err)}
	}

	return &JSONStorage{
		path:   outputPath,
		rows:   make([]exportRow, 0),
		logger: logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(_ context.Context, records []types.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range records {
		s.rows = append(s.rows, toExportRow(&records[i]))
	}
	s.logger.Debug("records buffered", "count", len(records), "total", len(s.rows))
	return nil
}

func (s *JSONStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("create output file: %w", err)}
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s.rows); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode JSON: %w", err)}
	}

	s.logger.Info("JSON written", "path", s.path, "records", len(s.rows))
	return nil
}

// --- CSV Storage ---

// CSVStorage writes records as CSV rows with a fixed header.
type CSVStorage struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
	count  int
	logger *slog.Logger
}

// NewCSVStorage creates a new CSV file storage and writes the header row.
func NewCSVStorage(outputPath string, logger *slog.Logger) (*CSVStorage, error) {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("create output dir: %w", err)}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("create output file: %w", err)}
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, &types.StorageError{Backend: "csv", Err: fmt.Errorf("write CSV header: %w", err)}
	}

	return &CSVStorage{
		path:   outputPath,
		file:   f,
		writer: w,
		logger: logger.With("component", "csv_storage"),
	}, nil
}

func (s *CSVStorage) Name() string { return "csv" }

func (s *CSVStorage) Store(_ context.Context, records []types.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range records {
		if err := s.writer.Write(toExportRow(&records[i]).csvRecord()); err != nil {
			return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("write CSV row: %w", err)}
		}
		s.count++
	}

	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVStorage) Close() error {
	s.logger.Info("CSV written", "path", s.path, "records", s.count)
	if s.writer != nil {
		s.writer.Flush()
	}
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
