package parser

import "strings"

// minValueLen is the shortest value the resolver accepts. Shorter matches
// are decorative nodes (icons, separators) and the cascade moves on.
const minValueLen = 3

// Resolve walks cascade in order and returns the first non-trivial value.
// A candidate whose element is missing, or whose text or attribute is empty
// or shorter than its minimum length (three characters unless the candidate
// sets MinLen), is skipped.
func Resolve(node Node, cascade Cascade) (string, bool) {
	for _, c := range cascade {
		if v, ok := readCandidate(node, c); ok {
			return v, true
		}
	}
	return "", false
}

// ResolveParsed is Resolve for typed fields: a candidate whose value does
// not parse is skipped like a missing one.
func ResolveParsed[T any](node Node, cascade Cascade, parse func(string) (T, bool)) (T, bool) {
	for _, c := range cascade {
		raw, ok := readCandidate(node, c)
		if !ok {
			continue
		}
		if v, ok := parse(raw); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func readCandidate(node Node, c SelectorCandidate) (string, bool) {
	if node == nil {
		return "", false
	}
	el, ok := node.Find(c.Kind, c.Selector)
	if !ok || el == nil {
		return "", false
	}

	var v string
	if c.Attr == "" {
		v = el.Text()
	} else {
		a, ok := el.Attr(c.Attr)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(a)
	}

	minLen := minValueLen
	if c.MinLen > 0 {
		minLen = c.MinLen
	}
	if len([]rune(v)) < minLen {
		return "", false
	}
	return v, true
}

func pricePtr(s string) (*float64, bool) {
	p := ParsePrice(s)
	return p, p != nil
}

func ratingPtr(s string) (*float64, bool) {
	r := ParseRating(s)
	return r, r != nil
}
