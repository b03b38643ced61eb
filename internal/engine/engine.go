package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/fetcher"
	"github.com/Grigsan/booksparser-telegram-bot/internal/observability"
	"github.com/Grigsan/booksparser-telegram-bot/internal/parser"
	"github.com/Grigsan/booksparser-telegram-bot/internal/pipeline"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// State represents the walker's current lifecycle state.
type State int32

const (
	StateIdle       State = 0
	StateAcquiring  State = 1
	StateExtracting State = 2
	StateThrottling State = 3
	StateCompleted  State = 4
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateExtracting:
		return "extracting"
	case StateThrottling:
		return "throttling"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Stats tracks statistics of the latest run.
type Stats struct {
	SourcesTotal   atomic.Int64
	SourcesDone    atomic.Int64
	SourcesFailed  atomic.Int64
	ItemsSeen      atomic.Int64
	ItemsDropped   atomic.Int64
	RecordsEmitted atomic.Int64
	StartTime      time.Time
	EndTime        time.Time
	RunID          string
	mu             sync.RWMutex
	sourceStats    map[string]*SourceStats
}

// SourceStats tracks per-source statistics.
type SourceStats struct {
	Items   int64
	Emitted int64
	Dropped int64
	Failed  bool
	Error   string
}

func newStats(runID string, start time.Time, sources int) *Stats {
	s := &Stats{
		StartTime:   start,
		RunID:       runID,
		sourceStats: make(map[string]*SourceStats, sources),
	}
	s.SourcesTotal.Store(int64(sources))
	return s
}

func (s *Stats) source(name string) *SourceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sourceStats[name]
	if !ok {
		st = &SourceStats{}
		s.sourceStats[name] = st
	}
	return st
}

func (s *Stats) update(name string, fn func(st *SourceStats)) {
	st := s.source(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(st)
}

func (s *Stats) finish(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = t
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perSource := make(map[string]SourceStats, len(s.sourceStats))
	for name, st := range s.sourceStats {
		perSource[name] = *st
	}

	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return map[string]any{
		"run_id":          s.RunID,
		"sources_total":   s.SourcesTotal.Load(),
		"sources_done":    s.SourcesDone.Load(),
		"sources_failed":  s.SourcesFailed.Load(),
		"items_seen":      s.ItemsSeen.Load(),
		"items_dropped":   s.ItemsDropped.Load(),
		"records_emitted": s.RecordsEmitted.Load(),
		"per_source":      perSource,
		"elapsed":         end.Sub(s.StartTime).String(),
	}
}

// Acquirers obtains batches for sources and releases the resources they
// hold. *fetcher.Set satisfies it.
type Acquirers interface {
	Acquire(ctx context.Context, src types.SourceSpec) (*fetcher.Batch, error)
	Close() error
}

// RecordFunc is called for every record as it is emitted.
type RecordFunc func(rec types.ProductRecord)

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the capture timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep replaces the wait used by the item and source pacers.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		e.itemPacer.WithSleep(fn)
		e.sourcePacer.WithSleep(fn)
	}
}

// WithMetrics shares a metrics registry with the engine.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPipeline replaces the default record pipeline.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(e *Engine) { e.pipeline = p }
}

// WithRegistry replaces the default extractor registry.
func WithRegistry(r *parser.Registry) Option {
	return func(e *Engine) { e.extractors = r }
}

// OnRecord registers a callback invoked for each emitted record.
func OnRecord(fn RecordFunc) Option {
	return func(e *Engine) { e.onRecord = fn }
}

// Engine walks sources in order, extracting records until the caps are
// reached. Runs are serialized; a second caller waits for the first.
type Engine struct {
	cfg         *config.Config
	logger      *slog.Logger
	acquirers   Acquirers
	extractors  *parser.Registry
	pipeline    *pipeline.Pipeline
	metrics     *observability.Metrics
	itemPacer   *fetcher.Pacer
	sourcePacer *fetcher.Pacer
	now         func() time.Time
	onRecord    RecordFunc

	state atomic.Int32
	stats atomic.Pointer[Stats]
	runMu sync.Mutex
}

// New creates a new Engine with the given configuration and acquirers.
func New(cfg *config.Config, acquirers Acquirers, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		logger:      logger.With("component", "engine"),
		acquirers:   acquirers,
		extractors:  parser.NewRegistry(logger),
		pipeline:    pipeline.Default(logger),
		itemPacer:   fetcher.NewPacer(cfg.Engine.ItemDelayMin, cfg.Engine.ItemDelayMax),
		sourcePacer: fetcher.NewPacer(cfg.Engine.SourceDelayMin, cfg.Engine.SourceDelayMax),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observability.NewMetrics(logger)
	}
	e.stats.Store(newStats("", time.Time{}, 0))
	return e
}

// RunExtraction walks sources and returns the deduplicated records, newest
// first. It never fails: unreachable sources are skipped and a cancelled
// context returns what was gathered so far.
func (e *Engine) RunExtraction(ctx context.Context, sources []types.SourceSpec, globalCap int) []types.ProductRecord {
	raw := e.Walk(ctx, sources, globalCap)
	records := Dedupe(raw, NormalizedName)
	if removed := len(raw) - len(records); removed > 0 {
		e.metrics.RecordsDeduped.Add(int64(removed))
		e.logger.Info("duplicates removed", "removed", removed, "kept", len(records))
	}
	return records
}

// Walk visits sources in declaration order and returns every emitted
// record before deduplication. At most globalCap records are returned and
// at most each source's PerSourceCap come from one source. Acquirer
// resources are released on every exit path.
func (e *Engine) Walk(ctx context.Context, sources []types.SourceSpec, globalCap int) []types.ProductRecord {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	runID := uuid.NewString()
	stats := newStats(runID, e.now(), len(sources))
	e.stats.Store(stats)
	e.metrics.RunStarted()

	logger := e.logger.With("run_id", runID)
	logger.Info("extraction starting", "sources", len(sources), "global_cap", globalCap)

	out := make([]types.ProductRecord, 0, max(globalCap, 0))

	defer func() {
		e.release(logger)
		stats.finish(e.now())
		e.setState(StateCompleted)
		e.metrics.RunFinished()
		logger.Info("extraction finished", "records", len(out), "stats", stats.Snapshot())
	}()

	if globalCap <= 0 {
		logger.Warn("global cap is not positive, nothing to extract", "global_cap", globalCap)
		return out
	}

	for i, src := range sources {
		if len(out) >= globalCap || ctx.Err() != nil {
			break
		}
		if i > 0 {
			e.setState(StateThrottling)
			if err := e.sourcePacer.Wait(ctx); err != nil {
				break
			}
		}

		var stop bool
		out, stop = e.walkSource(ctx, logger, stats, src, out, globalCap)
		if stop {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("extraction interrupted", "error", err, "records", len(out))
	}
	return out
}

// walkSource extracts one source's items into out. It reports stop when
// the run must end, which happens only on cancellation.
func (e *Engine) walkSource(ctx context.Context, logger *slog.Logger, stats *Stats, src types.SourceSpec, out []types.ProductRecord, globalCap int) ([]types.ProductRecord, bool) {
	logger = logger.With("source", src.DisplayName)

	e.setState(StateAcquiring)
	batch, err := e.acquirers.Acquire(ctx, src)
	if err != nil {
		e.sourceFailed(logger, stats, src, err)
		return out, ctx.Err() != nil
	}
	e.metrics.SourcesAcquired.Add(1)
	stats.SourcesDone.Add(1)

	if batch.Len() == 0 {
		logger.Info("source yielded no items", "url", src.EntryURL)
		stats.update(src.DisplayName, func(st *SourceStats) {})
		return out, false
	}

	extractor, err := e.extractors.For(batch.Variant)
	if err != nil {
		e.sourceFailed(logger, stats, src, err)
		return out, false
	}

	doc := parser.DocContext{BaseURL: batch.BaseURL, SourceURL: src.EntryURL}
	if doc.BaseURL == "" {
		doc.BaseURL = src.EntryURL
	}

	e.setState(StateExtracting)
	logger.Info("extracting", "items", batch.Len(), "variant", batch.Variant)

	emitted := 0
	for idx, el := range batch.Elements {
		if ctx.Err() != nil {
			return out, true
		}
		if (src.PerSourceCap > 0 && emitted >= src.PerSourceCap) || len(out) >= globalCap {
			break
		}

		stats.ItemsSeen.Add(1)
		e.metrics.ItemsSeen.Add(1)

		rec, ok := e.extractItem(logger, extractor, el, doc, idx)
		if ok {
			rec.Category = src.Category
			rec.CapturedAt = e.now()
			rec.Source = src.DisplayName
			rec, ok = e.process(logger, rec)
		}
		if !ok {
			stats.ItemsDropped.Add(1)
			e.metrics.RecordsDropped.Add(1)
			stats.update(src.DisplayName, func(st *SourceStats) { st.Items++; st.Dropped++ })
			continue
		}

		out = append(out, *rec)
		emitted++
		stats.RecordsEmitted.Add(1)
		e.metrics.RecordsExtracted.Add(1)
		stats.update(src.DisplayName, func(st *SourceStats) { st.Items++; st.Emitted++ })
		if e.onRecord != nil {
			e.onRecord(*rec)
		}
		logger.Debug("record extracted", "name", rec.Name, "price", rec.FormattedPrice())

		more := idx < len(batch.Elements)-1 &&
			(src.PerSourceCap <= 0 || emitted < src.PerSourceCap) &&
			len(out) < globalCap
		if more {
			e.setState(StateThrottling)
			if err := e.itemPacer.Wait(ctx); err != nil {
				return out, true
			}
			e.setState(StateExtracting)
		}
	}

	logger.Info("source done", "emitted", emitted)
	return out, false
}

// extractItem runs the extractor on one element. A panic inside the
// extractor counts as a skipped item.
func (e *Engine) extractItem(logger *slog.Logger, ex parser.Extractor, el parser.Node, doc parser.DocContext, idx int) (rec *types.ProductRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("extractor panicked, skipping item", "index", idx, "panic", r)
			rec, ok = nil, false
		}
	}()
	rec, ok = ex.Extract(el, doc)
	if !ok {
		logger.Debug("item skipped, no name", "index", idx)
	}
	return rec, ok
}

func (e *Engine) process(logger *slog.Logger, rec *types.ProductRecord) (*types.ProductRecord, bool) {
	result, err := e.pipeline.Process(rec)
	if err != nil {
		var pe *types.PipelineError
		if errors.As(err, &pe) {
			logger.Debug("pipeline rejected record", "stage", pe.Stage, "error", pe.Err)
		} else {
			logger.Debug("pipeline rejected record", "error", err)
		}
		return nil, false
	}
	return result, result != nil
}

func (e *Engine) sourceFailed(logger *slog.Logger, stats *Stats, src types.SourceSpec, err error) {
	logger.Warn("source failed, skipping", "url", src.EntryURL, "kind", src.AcquisitionKind, "error", err)
	stats.SourcesFailed.Add(1)
	e.metrics.SourcesFailed.Add(1)
	stats.update(src.DisplayName, func(st *SourceStats) {
		st.Failed = true
		st.Error = err.Error()
	})
}

func (e *Engine) release(logger *slog.Logger) {
	if err := e.acquirers.Close(); err != nil {
		logger.Warn("releasing acquirers failed", "error", err)
	}
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// GetState returns the current walker state.
func (e *Engine) GetState() State {
	return State(e.state.Load())
}

// Stats returns the statistics of the latest run.
func (e *Engine) Stats() *Stats {
	return e.stats.Load()
}

// Metrics returns the metrics registry the engine reports to.
func (e *Engine) Metrics() *observability.Metrics {
	return e.metrics
}
