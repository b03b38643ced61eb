package parser

// SelectorKind tells the resolver how to interpret a candidate's selector.
type SelectorKind string

const (
	KindCSS   SelectorKind = "css"
	KindXPath SelectorKind = "xpath"
	// KindField looks a key up in a decoded JSON object.
	KindField SelectorKind = "field"
)

// Record field names used as cascade keys.
const (
	FieldName         = "name"
	FieldPrice        = "price"
	FieldOldPrice     = "old_price"
	FieldBrand        = "brand"
	FieldRating       = "rating"
	FieldAvailability = "availability"
	FieldImageURL     = "image_url"
	FieldDetailURL    = "detail_url"
)

// SelectorCandidate is one fallback rule for one field. An empty Attr reads
// the matched element's trimmed text. MinLen overrides the resolver's
// minimum value length when set.
type SelectorCandidate struct {
	Field    string
	Selector string
	Kind     SelectorKind
	Attr     string
	MinLen   int
}

// Cascade is the ordered list of candidates for one field; earlier entries win.
type Cascade []SelectorCandidate

// CascadeSet holds one cascade per field for a document shape.
type CascadeSet map[string]Cascade

// Variant names a record extractor and the cascade set it owns.
type Variant string

const (
	VariantCatalog   Variant = "catalog"
	VariantRendered  Variant = "rendered"
	VariantBookCard  Variant = "book_card"
	VariantAPIRecord Variant = "api_record"
)

func cssText(field string, selectors ...string) Cascade {
	out := make(Cascade, 0, len(selectors))
	for _, s := range selectors {
		out = append(out, SelectorCandidate{Field: field, Selector: s, Kind: KindCSS})
	}
	return out
}

func cssAttr(field, selector string, attrs ...string) Cascade {
	out := make(Cascade, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, SelectorCandidate{Field: field, Selector: selector, Kind: KindCSS, Attr: a})
	}
	return out
}

func jsonKeys(field string, keys ...string) Cascade {
	out := make(Cascade, 0, len(keys))
	for _, k := range keys {
		out = append(out, SelectorCandidate{Field: field, Selector: k, Kind: KindField})
	}
	return out
}

// Container selectors tried in order until one matches at least one element.
var (
	CatalogContainers = []string{
		"div.product-item",
		"div.product-card",
		"div[data-product-id]",
		"div.item",
		"div.product",
		`div[class*="product"]`,
		`div[class*="item"]`,
	}

	RenderedContainers = []string{
		"div.catalog-product",
		"div.product-card",
		"div[data-product-id]",
		"div[data-id]",
		"div.item",
		"div.product",
		`div[class*="product"]`,
		`div[class*="item"]`,
		"article",
		`div[class*="card"]`,
	}

	BookCardContainers = []string{"article.product_pod", ".product_pod"}
)

var (
	imageCascade  = cssAttr(FieldImageURL, "img", "src", "data-src", "data-lazy")
	detailCascade = cssAttr(FieldDetailURL, "a[href]", "href")

	ratingCascade = cssText(FieldRating,
		".rating", ".stars", ".score",
		`span[class*="rating"]`, `div[class*="rating"]`,
	)
	brandCascade = cssText(FieldBrand,
		".brand", ".manufacturer", ".producer",
		`span[class*="brand"]`, `div[class*="brand"]`,
	)
	availabilityCascade = cssText(FieldAvailability,
		".availability", ".stock", ".in-stock", ".out-of-stock",
	)
	oldPriceCascade = cssText(FieldOldPrice,
		".old-price", ".price-old", ".crossed-price",
		`span[class*="old"]`, `div[class*="old"]`,
	)
)

var cascadeTables = map[Variant]CascadeSet{
	VariantCatalog: {
		FieldName: cssText(FieldName,
			"a.product-name", "h3", "h2", "h1", `a[href*="/product/"]`,
			".title", ".name", ".product-title", ".item-title",
			`a[class*="title"]`, `span[class*="title"]`,
		),
		FieldPrice: cssText(FieldPrice,
			".price", ".product-price", ".item-price", ".cost",
			`span[class*="price"]`, `div[class*="price"]`,
		),
		FieldOldPrice:     oldPriceCascade,
		FieldBrand:        brandCascade,
		FieldRating:       ratingCascade,
		FieldAvailability: availabilityCascade,
		FieldImageURL:     imageCascade,
		FieldDetailURL:    detailCascade,
	},
	VariantRendered: {
		FieldName: cssText(FieldName,
			"a.product-card__name", "h3", "h2", "h1", `a[href*="/product/"]`,
			".title", ".name", ".product-title", ".item-title",
			`span[class*="title"]`, `div[class*="title"]`,
			`a[class*="title"]`, `span[class*="name"]`,
		),
		FieldPrice: cssText(FieldPrice,
			".price", ".product-price", ".item-price", ".cost",
			`span[class*="price"]`, `div[class*="price"]`,
			".price-current", ".price-new",
		),
		FieldOldPrice:     oldPriceCascade,
		FieldBrand:        brandCascade,
		FieldRating:       ratingCascade,
		FieldAvailability: availabilityCascade,
		FieldImageURL:     imageCascade,
		FieldDetailURL:    detailCascade,
	},
	VariantBookCard: {
		FieldName: {
			{Field: FieldName, Selector: ".//h3/a", Kind: KindXPath, Attr: "title", MinLen: 1},
			{Field: FieldName, Selector: ".//h3/a", Kind: KindXPath, MinLen: 1},
			{Field: FieldName, Selector: ".title", Kind: KindCSS, MinLen: 1},
		},
		FieldDetailURL:    cssAttr(FieldDetailURL, "h3 a", "href"),
		FieldPrice:        cssText(FieldPrice, ".price_color"),
		FieldRating:       cssAttr(FieldRating, ".star-rating", "class"),
		FieldImageURL:     cssAttr(FieldImageURL, "img", "src"),
		FieldAvailability: cssText(FieldAvailability, ".availability"),
	},
	VariantAPIRecord: {
		FieldName:      jsonKeys(FieldName, "title", "name"),
		FieldBrand:     jsonKeys(FieldBrand, "username", "author", "brand"),
		FieldImageURL:  jsonKeys(FieldImageURL, "thumbnailUrl", "image", "url"),
		FieldPrice:     jsonKeys(FieldPrice, "price"),
		FieldRating:    jsonKeys(FieldRating, "rating"),
		FieldDetailURL: jsonKeys(FieldDetailURL, "link", "product_url"),
	},
}

// Cascades returns the statically declared cascade set for a variant.
// The returned set must not be modified.
func Cascades(v Variant) CascadeSet {
	return cascadeTables[v]
}
