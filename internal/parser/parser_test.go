package parser

import (
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const catalogHTML = `<html><body>
<div class="product-card">
  <a href="/product/42"><img data-src="/img/42.jpg"></a>
  <h3>  Acme   Widget Pro </h3>
  <span class="price">1 234,56 ₽</span>
  <span class="old-price">1 500 ₽</span>
  <div class="brand">Acme</div>
  <div class="rating">4,5 of 5</div>
  <span class="stock">In stock</span>
</div>
<div class="product-card">
  <span class="price">99.90</span>
</div>
</body></html>`

const bookCardHTML = `<html><body><ol>
<li><article class="product_pod">
  <div class="image_container"><a href="a-light-in-the-attic_1000/index.html"><img src="../media/cache/2c/da/2cdad67c.jpg" alt="A Light in the Attic"></a></div>
  <p class="star-rating Three"></p>
  <h3><a href="a-light-in-the-attic_1000/index.html" title="A Light in the Attic">A Light in the ...</a></h3>
  <div class="product_price">
    <p class="price_color">£51.77</p>
    <p class="instock availability"><i class="icon-ok"></i> In stock </p>
  </div>
</article></li>
<li><article class="product_pod">
  <p class="star-rating Seven"></p>
  <h3><a href="tipping-the-velvet_999/index.html">Tipping the Velvet</a></h3>
  <p class="price_color">£53.74</p>
</article></li>
<li><article class="product_pod"><p class="price_color">£10.00</p></article></li>
</ol></body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func nodes(doc *goquery.Document, selector string) []Node {
	var out []Node
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, NewSelectionNode(s))
	})
	return out
}

// --- Normalizer ---

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"£12.50", types.Float(12.50)},
		{"1 234,56", types.Float(1234.56)},
		{"1 234,56 ₽", types.Float(1234.56)},
		{"1.234,56 €", types.Float(1234.56)},
		{"$1,234.56", types.Float(1234.56)},
		{"12 990 руб.", types.Float(12990)},
		{"1.234.567", types.Float(1234567)},
		{"$1,299", types.Float(1299)},
		{"1,299 руб.", types.Float(1299)},
		{"12,50", types.Float(12.5)},
		{"12,5 €", types.Float(12.5)},
		{"Price: 7", types.Float(7)},
		{"free", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePrice(tt.in))
		})
	}
}

func TestParseRating(t *testing.T) {
	assert.Equal(t, types.Float(4.5), ParseRating("4,5 of 5"))
	assert.Equal(t, types.Float(3), ParseRating("Rated 3"))
	assert.Equal(t, types.Float(0), ParseRating("0"))
	assert.Nil(t, ParseRating("9.1"))
	assert.Nil(t, ParseRating("no stars yet"))
}

func TestParseRatingFromWordClass(t *testing.T) {
	v, ok := ParseRatingFromWordClass([]string{"star-rating", "Three"})
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = ParseRatingFromWordClass([]string{"star-rating", "three"})
	assert.False(t, ok, "matching is case-sensitive")

	_, ok = ParseRatingFromWordClass([]string{"star-rating", "Seven"})
	assert.False(t, ok)
}

func TestResolveURL(t *testing.T) {
	base := "https://books.toscrape.com/catalogue/page-1.html"
	assert.Equal(t, "https://books.toscrape.com/catalogue/a_1/index.html", ResolveURL(base, "a_1/index.html"))
	assert.Equal(t, "https://books.toscrape.com/media/x.jpg", ResolveURL(base, "../media/x.jpg"))
	assert.Equal(t, "https://cdn.example.com/x.jpg", ResolveURL(base, "https://cdn.example.com/x.jpg"))
	assert.Equal(t, "", ResolveURL(base, "  "))
	assert.Equal(t, "rel/x", ResolveURL("", "rel/x"))
}

// --- Resolver ---

func TestResolveSkipsTrivialMatches(t *testing.T) {
	doc := mustDoc(t, `<div id="c"><span class="a"></span><span class="b">ok</span><span class="w">Widget</span></div>`)
	item := NewSelectionNode(doc.Find("#c"))

	v, ok := Resolve(item, cssText(FieldName, ".a", ".b", ".w"))
	assert.True(t, ok)
	assert.Equal(t, "Widget", v)

	_, ok = Resolve(item, cssText(FieldName, ".a", ".missing"))
	assert.False(t, ok)
}

func TestResolveParsedContinuesPastUnparsable(t *testing.T) {
	doc := mustDoc(t, `<div id="c"><span class="price">call us</span><span class="cost">£9.99</span></div>`)
	item := NewSelectionNode(doc.Find("#c"))

	v, ok := ResolveParsed(item, cssText(FieldPrice, ".price", ".cost"), pricePtr)
	require.True(t, ok)
	assert.Equal(t, 9.99, *v)
}

func TestResolveXPathCandidate(t *testing.T) {
	doc := mustDoc(t, bookCardHTML)
	item := NewSelectionNode(doc.Find("article.product_pod").First())

	v, ok := Resolve(item, Cascades(VariantBookCard)[FieldName])
	assert.True(t, ok)
	assert.Equal(t, "A Light in the Attic", v)
}

func TestCascadeTablesAreComplete(t *testing.T) {
	for _, v := range []Variant{VariantCatalog, VariantRendered} {
		set := Cascades(v)
		for _, f := range []string{FieldName, FieldPrice, FieldOldPrice, FieldBrand, FieldRating, FieldAvailability, FieldImageURL, FieldDetailURL} {
			assert.NotEmpty(t, set[f], "%s cascade for %s", v, f)
			for _, c := range set[f] {
				assert.Equal(t, f, c.Field)
			}
		}
	}
}

// --- Extractors ---

func TestCatalogExtractor(t *testing.T) {
	doc := mustDoc(t, catalogHTML)
	items := nodes(doc, "div.product-card")
	require.Len(t, items, 2)

	e := NewCatalogExtractor(testLogger)
	ctx := DocContext{BaseURL: "https://shop.example.com/catalog/"}

	rec, ok := e.Extract(items[0], ctx)
	require.True(t, ok)

	want := &types.ProductRecord{
		Name:         "Acme Widget Pro",
		Price:        types.Float(1234.56),
		OldPrice:     types.Float(1500),
		Brand:        "Acme",
		Rating:       types.Float(4.5),
		Availability: "In stock",
		ImageURL:     "https://shop.example.com/img/42.jpg",
		DetailURL:    "https://shop.example.com/product/42",
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	_, ok = e.Extract(items[1], ctx)
	assert.False(t, ok, "card without a name must be dropped")
}

func TestBookCardExtractor(t *testing.T) {
	doc := mustDoc(t, bookCardHTML)
	items := nodes(doc, "article.product_pod")
	require.Len(t, items, 3)

	e := NewBookCardExtractor(testLogger)
	ctx := DocContext{BaseURL: "https://books.toscrape.com/catalogue/page-1.html"}

	rec, ok := e.Extract(items[0], ctx)
	require.True(t, ok)
	want := &types.ProductRecord{
		Name:         "A Light in the Attic",
		Price:        types.Float(51.77),
		Brand:        types.UnknownBrand,
		Rating:       types.Float(3),
		Availability: "In stock",
		ImageURL:     "https://books.toscrape.com/media/cache/2c/da/2cdad67c.jpg",
		DetailURL:    "https://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html",
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	// No title attribute: the anchor text is used. Unknown rating word leaves it absent.
	rec, ok = e.Extract(items[1], ctx)
	require.True(t, ok)
	assert.Equal(t, "Tipping the Velvet", rec.Name)
	assert.Nil(t, rec.Rating)
	assert.Empty(t, rec.ImageURL)

	_, ok = e.Extract(items[2], ctx)
	assert.False(t, ok)
}

func TestBookCardExtractorShortTitle(t *testing.T) {
	doc := mustDoc(t, `<article class="product_pod"><h3><a href="it_7/index.html" title="It">It</a></h3><p class="price_color">£20.00</p></article>`)
	items := nodes(doc, "article.product_pod")
	require.Len(t, items, 1)

	rec, ok := NewBookCardExtractor(testLogger).Extract(items[0], DocContext{BaseURL: "https://books.toscrape.com/catalogue/"})
	require.True(t, ok)
	assert.Equal(t, "It", rec.Name)
	assert.Equal(t, "https://books.toscrape.com/catalogue/it_7/index.html", rec.DetailURL)
	assert.Equal(t, 20.0, *rec.Price)
}

// faultyNode wraps a node and fails lookups for chosen selectors: a panic
// for those in panics, a plain miss for those in misses.
type faultyNode struct {
	Node
	panics map[string]bool
	misses map[string]bool
}

func (n *faultyNode) Find(kind SelectorKind, selector string) (Node, bool) {
	if n.panics[selector] {
		panic("element detached: " + selector)
	}
	if n.misses[selector] {
		return nil, false
	}
	found, ok := n.Node.Find(kind, selector)
	if !ok {
		return nil, false
	}
	return &faultyNode{Node: found, panics: n.panics, misses: n.misses}, true
}

func TestFieldFailureLeavesOtherFieldsIntact(t *testing.T) {
	doc := mustDoc(t, catalogHTML)
	items := nodes(doc, "div.product-card")
	require.NotEmpty(t, items)

	misses := map[string]bool{}
	for _, c := range Cascades(VariantCatalog)[FieldRating] {
		misses[c.Selector] = true
	}
	item := &faultyNode{
		Node:   items[0],
		panics: map[string]bool{".price": true},
		misses: misses,
	}
	ctx := DocContext{BaseURL: "https://shop.example.com/catalog/"}

	for _, e := range []Extractor{NewCatalogExtractor(testLogger), NewRenderedExtractor(testLogger)} {
		t.Run(string(e.Variant()), func(t *testing.T) {
			rec, ok := e.Extract(item, ctx)
			require.True(t, ok)

			assert.Nil(t, rec.Price)
			assert.Nil(t, rec.Rating)
			assert.Equal(t, "Acme Widget Pro", rec.Name)
			assert.Equal(t, "Acme", rec.Brand)
			assert.Equal(t, types.Float(1500), rec.OldPrice)
			assert.Equal(t, "https://shop.example.com/product/42", rec.DetailURL)
			assert.Equal(t, "https://shop.example.com/img/42.jpg", rec.ImageURL)
		})
	}
}

func TestAPIRecordExtractor(t *testing.T) {
	e := NewAPIRecordExtractor(testLogger)
	ctx := DocContext{SourceURL: "https://jsonplaceholder.typicode.com/photos"}

	rec, ok := e.Extract(NewRecordNode(map[string]any{
		"id":           float64(3),
		"title":        "officia porro iure quia iusto qui ipsa ut modi",
		"thumbnailUrl": "https://via.placeholder.com/150/24f355",
	}), ctx)
	require.True(t, ok)

	assert.Equal(t, "officia porro iure quia iusto qui ipsa ut modi", rec.Name)
	assert.Equal(t, types.UnknownBrand, rec.Brand)
	assert.Equal(t, "https://via.placeholder.com/150/24f355", rec.ImageURL)
	assert.Equal(t, "https://jsonplaceholder.typicode.com/photos/3", rec.DetailURL)
	assert.Equal(t, SyntheticPrice(3), *rec.Price)
	assert.Equal(t, 3.3, *rec.Rating)
	assert.True(t, rec.Synthetic)
	assert.ElementsMatch(t, []string{FieldPrice, FieldRating}, rec.SyntheticFields)
}

func TestAPIRecordExtractorNameFallbacks(t *testing.T) {
	e := NewAPIRecordExtractor(testLogger)

	rec, ok := e.Extract(NewRecordNode(map[string]any{
		"id":       float64(1),
		"name":     "Leanne Graham",
		"username": "Bret",
	}), DocContext{})
	require.True(t, ok)
	assert.Equal(t, "Leanne Graham", rec.Name)
	assert.Equal(t, "Bret", rec.Brand)

	rec, ok = e.Extract(NewRecordNode(map[string]any{
		"id":   float64(7),
		"body": strings.Repeat("lorem ipsum ", 10),
	}), DocContext{})
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(rec.Name, "..."))
	assert.Len(t, []rune(rec.Name), 53)
	assert.Contains(t, rec.SyntheticFields, FieldName)

	_, ok = e.Extract(NewRecordNode(map[string]any{"body": "short"}), DocContext{})
	assert.False(t, ok)
}

func TestSyntheticValuesAreDeterministic(t *testing.T) {
	for id := int64(0); id < 50; id++ {
		p := SyntheticPrice(id)
		assert.Equal(t, p, SyntheticPrice(id))
		assert.GreaterOrEqual(t, p, float64(id*1000+100))
		assert.LessOrEqual(t, p, float64(id*1000+9999))

		r := SyntheticRating(id)
		assert.GreaterOrEqual(t, r, 3.0)
		assert.LessOrEqual(t, r, 4.9)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(testLogger)
	for _, v := range []Variant{VariantCatalog, VariantRendered, VariantBookCard, VariantAPIRecord} {
		e, err := r.For(v)
		require.NoError(t, err)
		assert.Equal(t, v, e.Variant())
	}
	_, err := r.For("pdf")
	assert.ErrorIs(t, err, types.ErrUnknownVariant)
}
