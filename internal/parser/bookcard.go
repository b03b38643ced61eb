package parser

import (
	"log/slog"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// BookCardExtractor handles the fixed article.product_pod layout. The title
// anchor inside the heading supplies both name and detail link, and the
// rating is encoded as a word class on .star-rating. The layout never
// carries an author, so brand is always the Unknown sentinel.
type BookCardExtractor struct {
	logger *slog.Logger
}

// NewBookCardExtractor creates a book card extractor.
func NewBookCardExtractor(logger *slog.Logger) *BookCardExtractor {
	return &BookCardExtractor{logger: logger.With("component", "book_card_extractor")}
}

func (e *BookCardExtractor) Variant() Variant { return VariantBookCard }

// Extract implements Extractor.
func (e *BookCardExtractor) Extract(item Node, doc DocContext) (*types.ProductRecord, bool) {
	b := newRecordBuilder(item, Cascades(VariantBookCard), doc, e.logger)
	if !b.name() {
		e.logger.Debug("book card has no title", "base_url", doc.BaseURL)
		return nil, false
	}

	b.link(FieldDetailURL, &b.rec.DetailURL)
	b.price(FieldPrice, &b.rec.Price)
	b.wordRating()
	b.link(FieldImageURL, &b.rec.ImageURL)
	b.text(FieldAvailability, &b.rec.Availability)
	b.rec.Brand = types.UnknownBrand

	return b.rec, true
}
