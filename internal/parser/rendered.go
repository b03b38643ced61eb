package parser

import (
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// LiveNode adapts a live rod element. Every lookup is isolated: protocol
// errors and panics from a detached element count as "not found".
type LiveNode struct {
	el     *rod.Element
	logger *slog.Logger
}

// NewLiveNode wraps el.
func NewLiveNode(el *rod.Element, logger *slog.Logger) *LiveNode {
	return &LiveNode{el: el, logger: logger}
}

func (n *LiveNode) Find(kind SelectorKind, selector string) (found Node, ok bool) {
	defer n.contain(&types.ExtractError{Selector: selector}, func() { found, ok = nil, false })

	var (
		has bool
		el  *rod.Element
		err error
	)
	switch kind {
	case KindXPath:
		has, el, err = n.el.HasX(selector)
	case KindCSS, "":
		has, el, err = n.el.Has(selector)
	default:
		return nil, false
	}
	if err != nil {
		n.logger.Debug("live lookup failed", "error", &types.ExtractError{Selector: selector, Err: err})
		return nil, false
	}
	if !has || el == nil {
		return nil, false
	}
	return &LiveNode{el: el, logger: n.logger}, true
}

func (n *LiveNode) Text() (text string) {
	defer n.contain(&types.ExtractError{Field: "text"}, func() { text = "" })

	t, err := n.el.Text()
	if err != nil {
		return ""
	}
	return CleanText(t)
}

func (n *LiveNode) Attr(name string) (val string, ok bool) {
	defer n.contain(&types.ExtractError{Field: name}, func() { val, ok = "", false })

	v, err := n.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (n *LiveNode) contain(e *types.ExtractError, reset func()) {
	if r := recover(); r != nil {
		e.Err = fmt.Errorf("%v", r)
		n.logger.Debug("live element panicked", "error", e)
		reset()
	}
}

// RenderedExtractor handles live elements from a rendered browser page. It
// uses the catalog field set with a wider set of name and price candidates.
type RenderedExtractor struct {
	logger *slog.Logger
}

// NewRenderedExtractor creates a rendered element extractor.
func NewRenderedExtractor(logger *slog.Logger) *RenderedExtractor {
	return &RenderedExtractor{logger: logger.With("component", "rendered_extractor")}
}

func (e *RenderedExtractor) Variant() Variant { return VariantRendered }

// Extract implements Extractor.
func (e *RenderedExtractor) Extract(item Node, doc DocContext) (*types.ProductRecord, bool) {
	rec, ok := newRecordBuilder(item, Cascades(VariantRendered), doc, e.logger).generic()
	if !ok {
		e.logger.Debug("rendered element has no name", "base_url", doc.BaseURL)
	}
	return rec, ok
}
