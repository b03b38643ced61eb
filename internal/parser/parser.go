package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// DocContext carries document-level facts an extractor needs for every item.
type DocContext struct {
	// BaseURL resolves relative image and detail links.
	BaseURL string
	// SourceURL is the entry URL of the source the item came from.
	SourceURL string
}

// Extractor builds one partial record from one listing item. It returns
// false when no name could be resolved; every other miss leaves the field
// unset. Category and CapturedAt are filled in by the caller.
type Extractor interface {
	Variant() Variant
	Extract(item Node, doc DocContext) (*types.ProductRecord, bool)
}

// Registry maps variants to their extractor.
type Registry struct {
	extractors map[Variant]Extractor
}

// NewRegistry returns a registry holding all built-in extractors.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{extractors: make(map[Variant]Extractor)}
	r.Register(NewCatalogExtractor(logger))
	r.Register(NewRenderedExtractor(logger))
	r.Register(NewBookCardExtractor(logger))
	r.Register(NewAPIRecordExtractor(logger))
	return r
}

// Register adds or replaces the extractor for its variant.
func (r *Registry) Register(e Extractor) {
	r.extractors[e.Variant()] = e
}

// For returns the extractor for v.
func (r *Registry) For(v Variant) (Extractor, error) {
	e, ok := r.extractors[v]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownVariant, v)
	}
	return e, nil
}

// recordBuilder collects independently resolved fields. Each setter runs in
// its own recover scope so one failing lookup leaves the others intact.
type recordBuilder struct {
	item   Node
	set    CascadeSet
	doc    DocContext
	rec    *types.ProductRecord
	logger *slog.Logger
}

func newRecordBuilder(item Node, set CascadeSet, doc DocContext, logger *slog.Logger) *recordBuilder {
	return &recordBuilder{item: item, set: set, doc: doc, logger: logger, rec: &types.ProductRecord{}}
}

func (b *recordBuilder) field(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Debug("field lookup failed", "field", name, "error", r)
		}
	}()
	fn()
}

func (b *recordBuilder) name() bool {
	b.field(FieldName, func() {
		if v, ok := Resolve(b.item, b.set[FieldName]); ok {
			b.rec.Name = v
		}
	})
	return b.rec.Name != ""
}

func (b *recordBuilder) text(name string, dst *string) {
	b.field(name, func() {
		if v, ok := Resolve(b.item, b.set[name]); ok {
			*dst = v
		}
	})
}

func (b *recordBuilder) link(name string, dst *string) {
	b.field(name, func() {
		if v, ok := Resolve(b.item, b.set[name]); ok {
			*dst = ResolveURL(b.doc.BaseURL, v)
		}
	})
}

func (b *recordBuilder) price(name string, dst **float64) {
	b.field(name, func() {
		if v, ok := ResolveParsed(b.item, b.set[name], pricePtr); ok {
			*dst = v
		}
	})
}

func (b *recordBuilder) rating() {
	b.field(FieldRating, func() {
		if v, ok := ResolveParsed(b.item, b.set[FieldRating], ratingPtr); ok {
			b.rec.Rating = v
		}
	})
}

// wordRating reads the rating from a class list such as "star-rating Three".
func (b *recordBuilder) wordRating() {
	b.field(FieldRating, func() {
		v, ok := ResolveParsed(b.item, b.set[FieldRating], func(s string) (int, bool) {
			return ParseRatingFromWordClass(strings.Fields(s))
		})
		if ok {
			b.rec.Rating = types.Float(float64(v))
		}
	})
}

// generic fills every field of the catalog-style field set.
func (b *recordBuilder) generic() (*types.ProductRecord, bool) {
	if !b.name() {
		return nil, false
	}
	b.price(FieldPrice, &b.rec.Price)
	b.price(FieldOldPrice, &b.rec.OldPrice)
	b.text(FieldBrand, &b.rec.Brand)
	b.rating()
	b.text(FieldAvailability, &b.rec.Availability)
	b.link(FieldImageURL, &b.rec.ImageURL)
	b.link(FieldDetailURL, &b.rec.DetailURL)
	return b.rec, true
}
