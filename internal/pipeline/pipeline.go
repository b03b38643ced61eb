package pipeline

import (
	"log/slog"
	"strings"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop it.
	Process(rec *types.ProductRecord) (*types.ProductRecord, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// Default returns the chain every extracted record passes before emission:
// sanitize, trim, range checks, defaults, and the required name check.
func Default(logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(NewHTMLSanitizeMiddleware())
	p.Use(&TrimMiddleware{})
	p.Use(&RangeMiddleware{})
	p.Use(&DefaultsMiddleware{Brand: types.UnknownBrand, Availability: types.DefaultAvailability})
	p.Use(&RequiredNameMiddleware{})
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:  mw.Name(),
				Record: current,
				Err:    err,
			}
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name(), "name", rec.Name)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// --- Built-in Middleware ---

// RequiredNameMiddleware rejects records without a name.
type RequiredNameMiddleware struct{}

func (m *RequiredNameMiddleware) Name() string { return "required_name" }

func (m *RequiredNameMiddleware) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	if !rec.HasName() {
		return nil, types.ErrMissingName
	}
	return rec, nil
}

// DefaultsMiddleware fills the sentinel values for brand and availability.
type DefaultsMiddleware struct {
	Brand        string
	Availability string
}

func (m *DefaultsMiddleware) Name() string { return "defaults" }

func (m *DefaultsMiddleware) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	if rec.Brand == "" {
		rec.Brand = m.Brand
	}
	if rec.Availability == "" {
		rec.Availability = m.Availability
	}
	return rec, nil
}

// TrimMiddleware trims and collapses whitespace in every text field.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	for _, s := range []*string{&rec.Name, &rec.Brand, &rec.Category, &rec.Availability} {
		*s = strings.Join(strings.Fields(*s), " ")
	}
	rec.ImageURL = strings.TrimSpace(rec.ImageURL)
	rec.DetailURL = strings.TrimSpace(rec.DetailURL)
	return rec, nil
}
