package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"

	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/parser"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

const scrollToBottomJS = `() => window.scrollTo(0, document.body.scrollHeight)`

// RenderedAcquirer loads a listing in the shared browser session. Catalog
// sources yield live elements, which stay valid until the next Acquire or
// Close; book card sources are snapshotted into a parsed document.
type RenderedAcquirer struct {
	session *BrowserSession
	cfg     *config.Config
	logger  *slog.Logger

	mu   sync.Mutex
	page *rod.Page
}

// NewRenderedAcquirer creates a rendered acquirer on session.
func NewRenderedAcquirer(session *BrowserSession, cfg *config.Config, logger *slog.Logger) *RenderedAcquirer {
	return &RenderedAcquirer{
		session: session,
		cfg:     cfg,
		logger:  logger.With("component", "rendered_acquirer"),
	}
}

// Acquire implements Acquirer. A navigation or body-wait timeout is logged
// and reported as an empty batch.
func (a *RenderedAcquirer) Acquire(ctx context.Context, src types.SourceSpec) (*Batch, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closePage()

	page, err := a.session.NewPage(ctx)
	if err != nil {
		return nil, &types.AcquireError{Source: src.DisplayName, Kind: types.AcquireRendered, Err: err}
	}
	a.page = page

	start := time.Now()
	nav := page.Context(ctx).Timeout(a.cfg.Engine.BrowserTimeout)
	defer nav.CancelTimeout()
	if err := nav.Navigate(src.EntryURL); err != nil {
		return nil, &types.AcquireError{
			Source: src.DisplayName,
			Kind:   types.AcquireRendered,
			Err:    &types.FetchError{URL: src.EntryURL, Err: err, Retryable: true},
		}
	}
	if _, err := nav.Element("body"); err != nil {
		a.logger.Warn("page body did not appear in time", "source", src.DisplayName, "error", err)
		return &Batch{Variant: a.variant(src), BaseURL: src.EntryURL}, nil
	}

	a.scroll(ctx, page)

	baseURL := src.EntryURL
	if info, err := page.Info(); err == nil && info != nil && info.URL != "" {
		baseURL = info.URL
	}

	var batch *Batch
	if src.Shape == types.ShapeBookCard {
		batch, err = a.snapshot(ctx, page, baseURL)
		if err != nil {
			return nil, &types.AcquireError{Source: src.DisplayName, Kind: types.AcquireRendered, Err: err}
		}
	} else {
		batch = a.liveElements(ctx, page, baseURL)
	}

	a.logger.Debug("rendered page acquired",
		"source", src.DisplayName,
		"items", batch.Len(),
		"duration", time.Since(start),
	)
	if batch.Len() == 0 {
		a.logger.Warn("no listing items found", "source", src.DisplayName, "url", src.EntryURL)
	}
	return batch, nil
}

func (a *RenderedAcquirer) variant(src types.SourceSpec) parser.Variant {
	if src.Shape == types.ShapeBookCard {
		return parser.VariantBookCard
	}
	return parser.VariantRendered
}

// scroll moves to the bottom twice, pausing after each step so lazy
// content can load.
func (a *RenderedAcquirer) scroll(ctx context.Context, page *rod.Page) {
	for i := 0; i < 2; i++ {
		if _, err := page.Context(ctx).Eval(scrollToBottomJS); err != nil {
			a.logger.Debug("scroll failed", "step", i+1, "error", err)
			return
		}
		if err := Sleep(ctx, a.cfg.Browser.ScrollPause); err != nil {
			return
		}
	}
}

func (a *RenderedAcquirer) snapshot(ctx context.Context, page *rod.Page, baseURL string) (*Batch, error) {
	html, err := page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("read rendered html: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}
	return DocumentBatch(doc, types.ShapeBookCard, baseURL), nil
}

func (a *RenderedAcquirer) liveElements(ctx context.Context, page *rod.Page, baseURL string) *Batch {
	batch := &Batch{Variant: parser.VariantRendered, BaseURL: baseURL}
	live := page.Context(ctx)
	for _, sel := range parser.RenderedContainers {
		els, err := live.Elements(sel)
		if err != nil || len(els) == 0 {
			continue
		}
		a.logger.Debug("container selector matched", "selector", sel, "count", len(els))
		if n := a.cfg.Browser.MaxElements; n > 0 && len(els) > n {
			els = els[:n]
		}
		for _, el := range els {
			batch.Elements = append(batch.Elements, parser.NewLiveNode(el, a.logger))
		}
		break
	}
	return batch
}

func (a *RenderedAcquirer) closePage() {
	if a.page == nil {
		return
	}
	if err := a.page.Close(); err != nil {
		a.logger.Debug("close page", "error", err)
	}
	a.page = nil
}

// Close closes the current page and releases the browser session. Errors
// from shutdown are logged and swallowed.
func (a *RenderedAcquirer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closePage()
	if err := a.session.Release(); err != nil {
		a.logger.Warn("browser shutdown failed", "error", err)
	}
	return nil
}

// Type implements Acquirer.
func (a *RenderedAcquirer) Type() types.AcquisitionKind {
	return types.AcquireRendered
}
