package fetcher

import (
	"context"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"github.com/Grigsan/booksparser-telegram-bot/internal/parser"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// StaticAcquirer downloads a listing with a plain GET and parses it into a
// document tree.
type StaticAcquirer struct {
	client *HTTPClient
	pacer  *Pacer
	logger *slog.Logger
}

// NewStaticAcquirer creates a static acquirer. The pacer's delay is waited
// before every request.
func NewStaticAcquirer(client *HTTPClient, pacer *Pacer, logger *slog.Logger) *StaticAcquirer {
	return &StaticAcquirer{
		client: client,
		pacer:  pacer,
		logger: logger.With("component", "static_acquirer"),
	}
}

// Acquire implements Acquirer.
func (a *StaticAcquirer) Acquire(ctx context.Context, src types.SourceSpec) (*Batch, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return nil, &types.AcquireError{Source: src.DisplayName, Kind: types.AcquireStatic, Err: err}
	}

	resp, err := a.client.Get(ctx, src.EntryURL)
	if err != nil {
		return nil, &types.AcquireError{Source: src.DisplayName, Kind: types.AcquireStatic, Err: err}
	}

	doc, err := resp.Document()
	if err != nil {
		return nil, &types.AcquireError{Source: src.DisplayName, Kind: types.AcquireStatic, Err: err}
	}

	batch := DocumentBatch(doc, src.Shape, resp.FinalURL)
	if batch.Len() == 0 {
		a.logger.Warn("no listing items found", "source", src.DisplayName, "url", src.EntryURL)
	}
	return batch, nil
}

// DocumentBatch splits a parsed listing into items using the container
// cascade for shape.
func DocumentBatch(doc *goquery.Document, shape types.DocumentShape, baseURL string) *Batch {
	variant, containers := parser.VariantCatalog, parser.CatalogContainers
	if shape == types.ShapeBookCard {
		variant, containers = parser.VariantBookCard, parser.BookCardContainers
	}

	batch := &Batch{Variant: variant, BaseURL: baseURL}
	for _, sel := range containers {
		found := doc.Find(sel)
		if found.Length() == 0 {
			continue
		}
		found.Each(func(_ int, s *goquery.Selection) {
			batch.Elements = append(batch.Elements, parser.NewSelectionNode(s))
		})
		break
	}
	return batch
}

// Close releases idle connections.
func (a *StaticAcquirer) Close() error {
	return a.client.Close()
}

// Type implements Acquirer.
func (a *StaticAcquirer) Type() types.AcquisitionKind {
	return types.AcquireStatic
}
