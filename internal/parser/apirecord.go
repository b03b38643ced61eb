package parser

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

const (
	bodyNameMinLen = 10
	bodyNameMaxLen = 50
)

// APIRecordExtractor turns a decoded JSON object into a record. The upstream
// payload carries no commerce fields, so price and rating are derived from
// the numeric id when absent. Every derived field is listed in
// SyntheticFields and Synthetic is set.
type APIRecordExtractor struct {
	logger *slog.Logger
}

// NewAPIRecordExtractor creates an API record extractor.
func NewAPIRecordExtractor(logger *slog.Logger) *APIRecordExtractor {
	return &APIRecordExtractor{logger: logger.With("component", "api_record_extractor")}
}

func (e *APIRecordExtractor) Variant() Variant { return VariantAPIRecord }

// Extract implements Extractor.
func (e *APIRecordExtractor) Extract(item Node, doc DocContext) (*types.ProductRecord, bool) {
	b := newRecordBuilder(item, Cascades(VariantAPIRecord), doc, e.logger)
	id, hasID := recordID(item)

	if !b.name() {
		b.field(FieldName, func() { e.deriveName(b.rec, item, id, hasID) })
	}
	if b.rec.Name == "" {
		e.logger.Debug("api record has no name", "source", doc.SourceURL)
		return nil, false
	}

	b.text(FieldBrand, &b.rec.Brand)
	if b.rec.Brand == "" {
		// An object with both title and name is a titled entity owned by name.
		if _, titled := item.Find(KindField, "title"); titled {
			if v, ok := item.Attr("name"); ok {
				b.rec.Brand = v
			}
		}
	}
	if b.rec.Brand == "" {
		b.rec.Brand = types.UnknownBrand
	}

	b.link(FieldImageURL, &b.rec.ImageURL)
	b.link(FieldDetailURL, &b.rec.DetailURL)
	if b.rec.DetailURL == "" && hasID && doc.SourceURL != "" {
		b.rec.DetailURL = strings.TrimRight(doc.SourceURL, "/") + "/" + strconv.FormatInt(id, 10)
	}

	b.price(FieldPrice, &b.rec.Price)
	if b.rec.Price == nil && hasID {
		b.rec.Price = types.Float(SyntheticPrice(id))
		b.rec.MarkSynthetic(FieldPrice)
	}

	b.rating()
	if b.rec.Rating == nil && hasID {
		b.rec.Rating = types.Float(SyntheticRating(id))
		b.rec.MarkSynthetic(FieldRating)
	}

	return b.rec, true
}

func (e *APIRecordExtractor) deriveName(rec *types.ProductRecord, item Node, id int64, hasID bool) {
	if body, ok := item.Attr("body"); ok && len([]rune(body)) > bodyNameMinLen {
		r := []rune(body)
		if len(r) > bodyNameMaxLen {
			r = r[:bodyNameMaxLen]
		}
		rec.Name = string(r) + "..."
		rec.MarkSynthetic(FieldName)
		return
	}
	if hasID {
		rec.Name = fmt.Sprintf("Item %d", id)
		rec.MarkSynthetic(FieldName)
	}
}

// SyntheticPrice derives a stable placeholder price from an item id: the id
// in thousands plus a 100..9999 offset spread by a prime multiplier.
func SyntheticPrice(id int64) float64 {
	offset := 100 + absMod(id*7919, 9900)
	return float64(id*1000 + offset)
}

// SyntheticRating derives a placeholder rating in [3.0, 4.9] from an item id.
func SyntheticRating(id int64) float64 {
	r := 3.0 + float64(absMod(id, 20))/10
	return math.Round(r*10) / 10
}

func absMod(v, m int64) int64 {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}

func recordID(item Node) (int64, bool) {
	s, ok := item.Attr("id")
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
