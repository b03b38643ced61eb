package types

import (
	"fmt"
	"time"
)

// Sentinel values applied when a listing carries no value for a field.
const (
	UnknownBrand        = "Unknown"
	DefaultAvailability = "in stock"
)

// ProductRecord is one normalized listing entry produced by an extraction run.
type ProductRecord struct {
	// Name is required; records without it are never emitted.
	Name string `json:"name" bson:"name"`

	// Price and OldPrice are non-negative when present.
	Price    *float64 `json:"price,omitempty"     bson:"price,omitempty"`
	OldPrice *float64 `json:"old_price,omitempty" bson:"old_price,omitempty"`

	Brand    string `json:"brand"    bson:"brand"`
	Category string `json:"category" bson:"category"`

	ImageURL  string `json:"image_url,omitempty"  bson:"image_url,omitempty"`
	DetailURL string `json:"detail_url,omitempty" bson:"detail_url,omitempty"`

	// Rating is always within [0,5] when present.
	Rating *float64 `json:"rating,omitempty" bson:"rating,omitempty"`

	Availability string    `json:"availability" bson:"availability"`
	CapturedAt   time.Time `json:"captured_at"  bson:"captured_at"`

	// Source is the display name of the SourceSpec that produced the record.
	Source string `json:"source,omitempty" bson:"source,omitempty"`

	// Synthetic is set when any field was derived instead of read from the
	// upstream payload. SyntheticFields names those fields.
	Synthetic       bool     `json:"synthetic"                  bson:"synthetic"`
	SyntheticFields []string `json:"synthetic_fields,omitempty" bson:"synthetic_fields,omitempty"`
}

// Float returns a pointer to v, for populating optional numeric fields.
func Float(v float64) *float64 {
	return &v
}

// HasName reports whether the record carries a usable name.
func (r *ProductRecord) HasName() bool {
	return r != nil && r.Name != ""
}

// MarkSynthetic records that field was derived rather than extracted.
func (r *ProductRecord) MarkSynthetic(field string) {
	r.Synthetic = true
	for _, f := range r.SyntheticFields {
		if f == field {
			return
		}
	}
	r.SyntheticFields = append(r.SyntheticFields, field)
}

// FormattedPrice renders the price the way exports show it ("£12.50").
func (r *ProductRecord) FormattedPrice() string {
	return formatMoney(r.Price)
}

// FormattedOldPrice renders the old price the way exports show it.
func (r *ProductRecord) FormattedOldPrice() string {
	return formatMoney(r.OldPrice)
}

// FormattedRating renders the rating as "value/5".
func (r *ProductRecord) FormattedRating() string {
	if r.Rating == nil {
		return "N/A"
	}
	return fmt.Sprintf("%g/5", *r.Rating)
}

func formatMoney(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("£%.2f", *v)
}

// Clone returns a copy that shares no mutable state with r.
func (r ProductRecord) Clone() ProductRecord {
	c := r
	if r.Price != nil {
		c.Price = Float(*r.Price)
	}
	if r.OldPrice != nil {
		c.OldPrice = Float(*r.OldPrice)
	}
	if r.Rating != nil {
		c.Rating = Float(*r.Rating)
	}
	c.SyntheticFields = append([]string(nil), r.SyntheticFields...)
	return c
}
