package parser

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	numericRunRe = regexp.MustCompile(`\d[\d.,]*`)
	priceRe      = regexp.MustCompile(`\d+(\.\d+)?`)
	ratingRe     = regexp.MustCompile(`\d+([.,]\d+)?`)
)

// ratingWords maps the star-rating class tokens to their value.
var ratingWords = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

// CleanText collapses runs of whitespace (including non-breaking spaces)
// into single spaces and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.FieldsFunc(s, isSpace), " ")
}

// ParsePrice extracts the first price in text. Currency symbols and
// thousands separators are stripped; a decimal comma is read as a point.
// It returns nil when text holds no digit run.
func ParsePrice(text string) *float64 {
	compact := strings.Map(func(r rune) rune {
		if isSpace(r) {
			return -1
		}
		return r
	}, text)

	run := numericRunRe.FindString(compact)
	if run == "" {
		return nil
	}
	run = normalizeSeparators(strings.TrimRight(run, ".,"))

	m := priceRe.FindString(run)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// normalizeSeparators rewrites a digit run so "." is the only decimal mark.
// European (1.234,56) and US (1,234.56) groupings are both accepted; a
// separator that repeats (1.234.567) is treated as grouping, as is a single
// comma followed by exactly three digits (1,299).
func normalizeSeparators(s string) string {
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case commas == 1:
		if len(s)-strings.Index(s, ",") == 4 {
			return strings.Replace(s, ",", "", 1)
		}
		return strings.Replace(s, ",", ".", 1)
	default:
		return s
	}
}

// ParseRating extracts the first number in text and returns it when it lies
// within [0,5].
func ParseRating(text string) *float64 {
	m := ratingRe.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

// ParseRatingFromWordClass maps a class list such as ["star-rating", "Three"]
// to its numeric rating. Matching is case-sensitive.
func ParseRatingFromWordClass(classes []string) (int, bool) {
	for _, c := range classes {
		if v, ok := ratingWords[c]; ok {
			return v, true
		}
	}
	return 0, false
}

// ResolveURL joins ref against base. Absolute refs are returned unchanged,
// and ref is returned as-is when either side fails to parse.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return ref
	}
	return b.ResolveReference(r).String()
}

// isSpace also covers NBSP and narrow NBSP, which shops use as digit grouping.
func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}
