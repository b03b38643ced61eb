package pipeline

import (
	"html"
	"regexp"
	"strings"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

// HTMLSanitizeMiddleware strips HTML tags and decodes entities in the
// free-text fields. API payloads and some shop titles carry markup.
type HTMLSanitizeMiddleware struct {
	stripRe *regexp.Regexp
}

func NewHTMLSanitizeMiddleware() *HTMLSanitizeMiddleware {
	return &HTMLSanitizeMiddleware{
		stripRe: regexp.MustCompile(`<[^>]*>`),
	}
}

func (m *HTMLSanitizeMiddleware) Name() string { return "html_sanitize" }

func (m *HTMLSanitizeMiddleware) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	for _, s := range []*string{&rec.Name, &rec.Brand, &rec.Availability} {
		if *s == "" {
			continue
		}
		cleaned := m.stripRe.ReplaceAllString(*s, "")
		cleaned = html.UnescapeString(cleaned)
		*s = strings.Join(strings.Fields(cleaned), " ")
	}
	return rec, nil
}

// RangeMiddleware clears numeric fields that fall outside their domain:
// negative prices and ratings outside [0,5].
type RangeMiddleware struct{}

func (m *RangeMiddleware) Name() string { return "range" }

func (m *RangeMiddleware) Process(rec *types.ProductRecord) (*types.ProductRecord, error) {
	if rec.Price != nil && *rec.Price < 0 {
		rec.Price = nil
	}
	if rec.OldPrice != nil && *rec.OldPrice < 0 {
		rec.OldPrice = nil
	}
	if rec.Rating != nil && (*rec.Rating < 0 || *rec.Rating > 5) {
		rec.Rating = nil
	}
	return rec, nil
}
