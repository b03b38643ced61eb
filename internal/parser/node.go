package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Node is one element an extractor can query: a parsed document node, a
// live browser element, or a decoded JSON object.
type Node interface {
	// Find returns the first descendant matching selector under kind.
	Find(kind SelectorKind, selector string) (Node, bool)
	// Text returns the element's text content, whitespace-collapsed.
	Text() string
	// Attr returns a named attribute.
	Attr(name string) (string, bool)
}

// SelectionNode adapts a goquery selection. XPath candidates are evaluated
// with htmlquery against the selection's first underlying node.
type SelectionNode struct {
	sel *goquery.Selection
}

// NewSelectionNode wraps sel.
func NewSelectionNode(sel *goquery.Selection) *SelectionNode {
	return &SelectionNode{sel: sel}
}

func (n *SelectionNode) Find(kind SelectorKind, selector string) (Node, bool) {
	switch kind {
	case KindXPath:
		if len(n.sel.Nodes) == 0 {
			return nil, false
		}
		found, err := htmlquery.Query(n.sel.Nodes[0], selector)
		if err != nil || found == nil {
			return nil, false
		}
		return &htmlNode{node: found}, true
	case KindCSS, "":
		found := n.sel.Find(selector).First()
		if found.Length() == 0 {
			return nil, false
		}
		return &SelectionNode{sel: found}, true
	default:
		return nil, false
	}
}

func (n *SelectionNode) Text() string {
	return CleanText(n.sel.Text())
}

func (n *SelectionNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

// htmlNode is an XPath match. Further lookups stay in XPath or CSS space.
type htmlNode struct {
	node *html.Node
}

func (n *htmlNode) Find(kind SelectorKind, selector string) (Node, bool) {
	return (&SelectionNode{sel: goquery.NewDocumentFromNode(n.node).Selection}).Find(kind, selector)
}

func (n *htmlNode) Text() string {
	return CleanText(htmlquery.InnerText(n.node))
}

func (n *htmlNode) Attr(name string) (string, bool) {
	for _, a := range n.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// RecordNode adapts a decoded JSON object. Only KindField lookups match.
type RecordNode struct {
	fields map[string]any
	value  any
}

// NewRecordNode wraps a decoded JSON object.
func NewRecordNode(fields map[string]any) *RecordNode {
	return &RecordNode{fields: fields, value: fields}
}

func (n *RecordNode) Find(kind SelectorKind, selector string) (Node, bool) {
	if kind != KindField {
		return nil, false
	}
	v, ok := n.fields[selector]
	if !ok || v == nil {
		return nil, false
	}
	child := &RecordNode{value: v}
	if m, ok := v.(map[string]any); ok {
		child.fields = m
	}
	return child, true
}

func (n *RecordNode) Text() string {
	switch v := n.value.(type) {
	case string:
		return CleanText(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *RecordNode) Attr(name string) (string, bool) {
	child, ok := n.Find(KindField, name)
	if !ok {
		return "", false
	}
	return child.Text(), true
}
