// Package booksparser provides a public SDK for embedding the extraction
// engine as a library.
//
// Example usage:
//
//	ex, err := booksparser.NewExtractor(
//	    booksparser.WithGlobalCap(20),
//	    booksparser.WithSource(booksparser.Source{
//	        Name:     "Travel",
//	        URL:      "https://books.toscrape.com/catalogue/category/books/travel_2/index.html",
//	        Category: "Travel",
//	        Kind:     booksparser.Static,
//	        Shape:    booksparser.BookCard,
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//	records, err := ex.Run(ctx)
package booksparser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/engine"
	"github.com/Grigsan/booksparser-telegram-bot/internal/fetcher"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// Record is one extracted listing entry.
type Record = types.ProductRecord

// Source describes one listing to walk.
type Source = types.SourceSpec

// Acquisition kinds.
const (
	Static   = types.AcquireStatic
	Rendered = types.AcquireRendered
	API      = types.AcquireAPI
)

// Document shapes.
const (
	Catalog  = types.ShapeCatalog
	BookCard = types.ShapeBookCard
)

type settings struct {
	cfg     *config.Config
	sources []Source
}

// Option adjusts the extractor configuration.
type Option func(*settings)

// WithGlobalCap sets the maximum number of records per run.
func WithGlobalCap(n int) Option {
	return func(s *settings) { s.cfg.Engine.GlobalCap = n }
}

// WithSource adds a source. Any WithSource replaces the built-in source list.
func WithSource(src Source) Option {
	return func(s *settings) { s.sources = append(s.sources, src) }
}

// WithItemDelay sets the pacing range between emitted records.
func WithItemDelay(min, max time.Duration) Option {
	return func(s *settings) {
		s.cfg.Engine.ItemDelayMin, s.cfg.Engine.ItemDelayMax = min, max
	}
}

// WithSourceDelay sets the pacing range between sources.
func WithSourceDelay(min, max time.Duration) Option {
	return func(s *settings) {
		s.cfg.Engine.SourceDelayMin, s.cfg.Engine.SourceDelayMax = min, max
	}
}

// WithRequestDelay sets the pacing range before static requests.
func WithRequestDelay(min, max time.Duration) Option {
	return func(s *settings) {
		s.cfg.Engine.RequestDelayMin, s.cfg.Engine.RequestDelayMax = min, max
	}
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(s *settings) { s.cfg.Engine.UserAgents = []string{ua} }
}

// WithProxy enables proxy rotation with the given proxy URLs.
func WithProxy(urls ...string) Option {
	return func(s *settings) {
		s.cfg.Proxy.Enabled = true
		s.cfg.Proxy.URLs = urls
	}
}

// WithHeadless toggles the headless browser used by rendered sources.
func WithHeadless(headless bool) Option {
	return func(s *settings) { s.cfg.Browser.Headless = headless }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(s *settings) { s.cfg.Logging.Level = "debug" }
}

// Extractor runs extractions over a fixed source list.
type Extractor struct {
	cfg     *config.Config
	sources []Source
	engine  *engine.Engine
	logger  *slog.Logger
}

// NewExtractor creates an Extractor with the given options.
func NewExtractor(opts ...Option) (*Extractor, error) {
	s := &settings{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(s)
	}
	cfg := s.cfg
	if len(s.sources) > 0 {
		cfg.Sources = s.sources
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	sources, err := cfg.ResolvedSources()
	if err != nil {
		return nil, err
	}

	set, err := fetcher.NewDefaultSet(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create acquirers: %w", err)
	}

	return &Extractor{
		cfg:     cfg,
		sources: sources,
		engine:  engine.New(cfg, set, logger),
		logger:  logger,
	}, nil
}

// Run walks every source and returns the deduplicated records, newest
// first. Unreachable sources are skipped; a cancelled ctx returns the
// records gathered so far together with ctx.Err().
func (e *Extractor) Run(ctx context.Context) ([]Record, error) {
	records := e.engine.RunExtraction(ctx, e.sources, e.cfg.Engine.GlobalCap)
	return records, ctx.Err()
}

// Sources returns the resolved source list.
func (e *Extractor) Sources() []Source {
	out := make([]Source, len(e.sources))
	copy(out, e.sources)
	return out
}

// Stats returns statistics from the latest run.
func (e *Extractor) Stats() map[string]any {
	return e.engine.Stats().Snapshot()
}
