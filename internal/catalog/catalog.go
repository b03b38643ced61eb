// Package catalog is the read side over stored records: unique listings,
// search, and per-category statistics.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/Grigsan/booksparser-telegram-bot/internal/engine"
	"github.com/Grigsan/booksparser-telegram-bot/internal/storage"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// FuzzyThreshold is the Jaro-Winkler similarity a name must reach to match
// a query that is not a plain substring.
const FuzzyThreshold = 0.88

// CategoryCount is the number of unique records in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Stats summarizes the unique records in the catalog.
type Stats struct {
	Total          int             `json:"total"`
	Stored         int             `json:"stored"`
	Synthetic      int             `json:"synthetic"`
	Categories     []CategoryCount `json:"categories"`
	AveragePrice   *float64        `json:"average_price,omitempty"`
	MinPrice       *float64        `json:"min_price,omitempty"`
	MaxPrice       *float64        `json:"max_price,omitempty"`
	LastCapturedAt *time.Time      `json:"last_captured_at,omitempty"`
}

// Service answers queries over stored records. Every query sees the
// deduplicated view: one record per normalized name, newest first.
type Service struct {
	reader storage.Reader
	logger *slog.Logger
}

// New creates a catalog service over reader.
func New(reader storage.Reader, logger *slog.Logger) *Service {
	return &Service{
		reader: reader,
		logger: logger.With("component", "catalog"),
	}
}

func (s *Service) unique(ctx context.Context) ([]types.ProductRecord, int, error) {
	stored, err := s.reader.Records(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("read records: %w", err)
	}
	return engine.Dedupe(stored, engine.NormalizedName), len(stored), nil
}

// Records returns up to limit unique records. A non-positive limit returns all.
func (s *Service) Records(ctx context.Context, limit int) ([]types.ProductRecord, error) {
	records, _, err := s.unique(ctx)
	if err != nil {
		return nil, err
	}
	return truncate(records, limit), nil
}

// Search returns unique records whose name or brand contains query, or
// whose name is similar to it, optionally restricted to categories
// containing category.
// Either filter may be empty but not both.
func (s *Service) Search(ctx context.Context, query, category string, limit int) ([]types.ProductRecord, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	category = strings.ToLower(strings.TrimSpace(category))
	if query == "" && category == "" {
		return nil, fmt.Errorf("search needs a query or a category")
	}

	records, _, err := s.unique(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]types.ProductRecord, 0)
	for _, rec := range records {
		if category != "" && !strings.Contains(strings.ToLower(rec.Category), category) {
			continue
		}
		if query != "" && !Matches(&rec, query) {
			continue
		}
		out = append(out, rec)
	}

	s.logger.Debug("search", "query", query, "category", category, "matches", len(out))
	return truncate(out, limit), nil
}

// Matches reports whether rec matches the lowercased query.
func Matches(rec *types.ProductRecord, query string) bool {
	name := strings.ToLower(rec.Name)
	if strings.Contains(name, query) || strings.Contains(strings.ToLower(rec.Brand), query) {
		return true
	}
	if matchr.JaroWinkler(name, query, false) >= FuzzyThreshold {
		return true
	}
	if strings.Contains(query, " ") {
		return false
	}
	for _, word := range strings.Fields(name) {
		if matchr.JaroWinkler(word, query, false) >= FuzzyThreshold {
			return true
		}
	}
	return false
}

// Categories returns unique record counts per category, largest first.
func (s *Service) Categories(ctx context.Context) ([]CategoryCount, error) {
	records, _, err := s.unique(ctx)
	if err != nil {
		return nil, err
	}
	return countCategories(records), nil
}

// Stats summarizes the catalog.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	records, stored, err := s.unique(ctx)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Total:      len(records),
		Stored:     stored,
		Categories: countCategories(records),
	}
	if len(records) > 0 {
		last := records[0].CapturedAt
		st.LastCapturedAt = &last
	}

	var sum float64
	var priced int
	minPrice, maxPrice := math.Inf(1), math.Inf(-1)
	for _, rec := range records {
		if rec.Synthetic {
			st.Synthetic++
		}
		if rec.Price == nil {
			continue
		}
		p := *rec.Price
		sum += p
		priced++
		minPrice = math.Min(minPrice, p)
		maxPrice = math.Max(maxPrice, p)
	}
	if priced > 0 {
		st.AveragePrice = types.Float(math.Round(sum/float64(priced)*100) / 100)
		st.MinPrice = types.Float(minPrice)
		st.MaxPrice = types.Float(maxPrice)
	}
	return st, nil
}

func countCategories(records []types.ProductRecord) []CategoryCount {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.Category]++
	}

	out := make([]CategoryCount, 0, len(counts))
	for cat, n := range counts {
		out = append(out, CategoryCount{Category: cat, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func truncate(records []types.ProductRecord, limit int) []types.ProductRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}
