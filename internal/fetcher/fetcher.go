package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/parser"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// Batch is the outcome of acquiring one source: the listing items plus the
// extractor variant that understands them.
type Batch struct {
	Variant  parser.Variant
	BaseURL  string
	Elements []parser.Node
}

// Len returns the number of items in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Elements)
}

// Acquirer obtains the listing items for a source. A source with no
// matching items yields an empty batch and a nil error; transport or
// browser failures are returned as *types.AcquireError.
type Acquirer interface {
	Acquire(ctx context.Context, src types.SourceSpec) (*Batch, error)

	// Close releases any resources held by the acquirer.
	Close() error

	// Type returns the acquisition kind this acquirer serves.
	Type() types.AcquisitionKind
}

// Set routes sources to the acquirer registered for their kind.
type Set struct {
	acquirers map[types.AcquisitionKind]Acquirer
}

// NewSet creates a Set from the given acquirers.
func NewSet(acquirers ...Acquirer) *Set {
	s := &Set{acquirers: make(map[types.AcquisitionKind]Acquirer, len(acquirers))}
	for _, a := range acquirers {
		s.acquirers[a.Type()] = a
	}
	return s
}

// NewDefaultSet builds the static, rendered, and API acquirers from cfg.
// The browser is not started until a rendered source is acquired.
func NewDefaultSet(cfg *config.Config, logger *slog.Logger) (*Set, error) {
	var proxyMgr *ProxyManager
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		proxyMgr = NewProxyManager(&cfg.Proxy, logger)
	}

	pacer := NewPacer(cfg.Engine.RequestDelayMin, cfg.Engine.RequestDelayMax)

	client, err := NewHTTPClient(cfg, proxyMgr, logger)
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	session := NewBrowserSession(cfg, proxyMgr, logger)

	return NewSet(
		NewStaticAcquirer(client, pacer, logger),
		NewRenderedAcquirer(session, cfg, logger),
		NewAPIAcquirer(cfg, logger),
	), nil
}

// Acquire dispatches src to the acquirer for its kind.
func (s *Set) Acquire(ctx context.Context, src types.SourceSpec) (*Batch, error) {
	a, ok := s.acquirers[src.AcquisitionKind]
	if !ok {
		return nil, &types.AcquireError{
			Source: src.DisplayName,
			Kind:   src.AcquisitionKind,
			Err:    types.ErrUnknownAcquirer,
		}
	}
	return a.Acquire(ctx, src)
}

// Close closes every acquirer and joins their errors.
func (s *Set) Close() error {
	var errs []error
	for _, a := range s.acquirers {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s acquirer: %w", a.Type(), err))
		}
	}
	return errors.Join(errs...)
}
