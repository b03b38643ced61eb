package parser

import (
	"log/slog"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// CatalogExtractor handles arbitrary shop listing cards in a parsed document.
type CatalogExtractor struct {
	logger *slog.Logger
}

// NewCatalogExtractor creates a catalog card extractor.
func NewCatalogExtractor(logger *slog.Logger) *CatalogExtractor {
	return &CatalogExtractor{logger: logger.With("component", "catalog_extractor")}
}

func (e *CatalogExtractor) Variant() Variant { return VariantCatalog }

// Extract implements Extractor.
func (e *CatalogExtractor) Extract(item Node, doc DocContext) (*types.ProductRecord, bool) {
	rec, ok := newRecordBuilder(item, Cascades(VariantCatalog), doc, e.logger).generic()
	if !ok {
		e.logger.Debug("item has no name", "base_url", doc.BaseURL)
	}
	return rec, ok
}
