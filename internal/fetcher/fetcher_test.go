package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Grigsan/booksparser-telegram-bot/internal/config"
	"github.com/Grigsan/booksparser-telegram-bot/internal/parser"
	"github.com/Grigsan/booksparser-telegram-bot/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const shopHTML = `<html><body>
<div class="grid">
  <div class="product-card"><h3>Phone X</h3><span class="price">999</span></div>
  <div class="product-card"><h3>Phone Y</h3><span class="price">1 099</span></div>
</div>
<div class="footer-item">Contacts</div>
</body></html>`

const podsHTML = `<html><body><ol>
<li><article class="product_pod"><h3><a href="b1.html" title="Book One">Book One</a></h3><p class="price_color">£10.00</p></article></li>
<li><article class="product_pod"><h3><a href="b2.html" title="Book Two">Book Two</a></h3><p class="price_color">£12.00</p></article></li>
<li><article class="product_pod"><h3><a href="b3.html" title="Book Three">Book Three</a></h3><p class="price_color">£14.00</p></article></li>
</ol></body></html>`

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Engine.RequestDelayMin = 0
	cfg.Engine.RequestDelayMax = 0
	cfg.Engine.RequestTimeout = 5 * time.Second
	cfg.APISource.RatePerSecond = 1000
	return cfg
}

func newStatic(t *testing.T, cfg *config.Config) *StaticAcquirer {
	t.Helper()
	client, err := NewHTTPClient(cfg, nil, testLogger)
	require.NoError(t, err)
	return NewStaticAcquirer(client, NewPacer(0, 0), testLogger)
}

func TestStaticAcquirerCatalog(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA, gotAccept = r.Header.Get("User-Agent"), r.Header.Get("Accept")
		fmt.Fprint(w, shopHTML)
	}))
	defer srv.Close()

	a := newStatic(t, testConfig())
	defer a.Close()

	batch, err := a.Acquire(context.Background(), types.SourceSpec{
		DisplayName: "shop", EntryURL: srv.URL + "/catalog", Shape: types.ShapeCatalog,
	})
	require.NoError(t, err)

	assert.Equal(t, parser.VariantCatalog, batch.Variant)
	assert.Equal(t, srv.URL+"/catalog", batch.BaseURL)
	// div.product-card wins before the broader class*="item" selector.
	assert.Equal(t, 2, batch.Len())
	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.Contains(t, gotAccept, "text/html")
}

func TestStaticAcquirerBookCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, podsHTML)
	}))
	defer srv.Close()

	a := newStatic(t, testConfig())
	batch, err := a.Acquire(context.Background(), types.SourceSpec{
		DisplayName: "books", EntryURL: srv.URL, Shape: types.ShapeBookCard,
	})
	require.NoError(t, err)
	assert.Equal(t, parser.VariantBookCard, batch.Variant)
	assert.Equal(t, 3, batch.Len())
}

func TestStaticAcquirerNoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>Access denied</p></body></html>`)
	}))
	defer srv.Close()

	a := newStatic(t, testConfig())
	batch, err := a.Acquire(context.Background(), types.SourceSpec{DisplayName: "blocked", EntryURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Len())
}

func TestStaticAcquirerHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newStatic(t, testConfig())
	_, err := a.Acquire(context.Background(), types.SourceSpec{DisplayName: "down", EntryURL: srv.URL})
	require.Error(t, err)

	var acqErr *types.AcquireError
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, "down", acqErr.Source)

	var fetchErr *types.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.True(t, fetchErr.IsRetryable())
}

func TestHTTPClientDecompresses(t *testing.T) {
	tests := []struct {
		encoding string
		compress func([]byte) []byte
	}{
		{"gzip", func(b []byte) []byte {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			zw.Write(b)
			zw.Close()
			return buf.Bytes()
		}},
		{"br", func(b []byte) []byte {
			var buf bytes.Buffer
			bw := brotli.NewWriter(&buf)
			bw.Write(b)
			bw.Close()
			return buf.Bytes()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Encoding", tt.encoding)
				w.Write(tt.compress([]byte(shopHTML)))
			}))
			defer srv.Close()

			client, err := NewHTTPClient(testConfig(), nil, testLogger)
			require.NoError(t, err)

			resp, err := client.Get(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.Contains(t, string(resp.Body), "Phone X")
		})
	}
}

func TestAPIAcquirer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var items []string
		for i := 1; i <= 40; i++ {
			items = append(items, fmt.Sprintf(`{"id":%d,"title":"post number %d"}`, i, i))
		}
		items = append([]string{`"not an object"`}, items...)
		fmt.Fprintf(w, "[%s]", strings.Join(items, ","))
	}))
	defer srv.Close()

	a := NewAPIAcquirer(testConfig(), testLogger)
	batch, err := a.Acquire(context.Background(), types.SourceSpec{DisplayName: "posts", EntryURL: srv.URL + "/posts"})
	require.NoError(t, err)

	assert.Equal(t, parser.VariantAPIRecord, batch.Variant)
	assert.Equal(t, 25, batch.Len())

	title, ok := batch.Elements[0].Attr("title")
	assert.True(t, ok)
	assert.Equal(t, "post number 1", title)
}

func TestAPIAcquirerRejectsNonArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"rate limited"}`)
	}))
	defer srv.Close()

	a := NewAPIAcquirer(testConfig(), testLogger)
	_, err := a.Acquire(context.Background(), types.SourceSpec{DisplayName: "api", EntryURL: srv.URL})
	var acqErr *types.AcquireError
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, types.AcquireAPI, acqErr.Kind)
}

type stubAcquirer struct {
	kind   types.AcquisitionKind
	closed bool
}

func (s *stubAcquirer) Acquire(context.Context, types.SourceSpec) (*Batch, error) {
	return &Batch{}, nil
}
func (s *stubAcquirer) Close() error {
	s.closed = true
	return nil
}

func (s *stubAcquirer) Type() types.AcquisitionKind { return s.kind }

func TestSetRoutesByKind(t *testing.T) {
	static := &stubAcquirer{kind: types.AcquireStatic}
	set := NewSet(static)

	_, err := set.Acquire(context.Background(), types.SourceSpec{AcquisitionKind: types.AcquireStatic})
	assert.NoError(t, err)

	_, err = set.Acquire(context.Background(), types.SourceSpec{DisplayName: "x", AcquisitionKind: types.AcquireAPI})
	assert.True(t, errors.Is(err, types.ErrUnknownAcquirer))

	require.NoError(t, set.Close())
	assert.True(t, static.closed)
}

func TestProxyRotation(t *testing.T) {
	pm := NewProxyManager(&config.ProxyConfig{
		Rotation: "round_robin",
		URLs:     []string{"http://p1:8080", "http://p2:8080", "::bad::"},
	}, testLogger)
	require.Equal(t, 2, pm.Count())

	assert.Equal(t, "p1:8080", pm.Next().Host)
	assert.Equal(t, "p2:8080", pm.Next().Host)
	assert.Equal(t, "p1:8080", pm.Next().Host)

	pm.MarkFailed(pm.Next(), errors.New("refused"))
	assert.Equal(t, 1, pm.HealthyCount())

	var nilMgr *ProxyManager
	assert.Nil(t, nilMgr.Next())
}

func TestPacer(t *testing.T) {
	var waited []time.Duration
	p := NewPacer(2*time.Second, 5*time.Second).WithSleep(func(_ context.Context, d time.Duration) error {
		waited = append(waited, d)
		return nil
	})

	for i := 0; i < 20; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	for _, d := range waited {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestStealthConfig(t *testing.T) {
	sc := NewStealthConfig([]string{"UA-1"}, 1366, 768)
	assert.Equal(t, "UA-1", sc.UserAgent)
	assert.Equal(t, "1366,768", sc.WindowSize)
	assert.Contains(t, sc.StealthJS(), "'webdriver'")

	random := NewStealthConfig(nil, 0, 0)
	assert.Positive(t, random.ViewportWidth)
	assert.Empty(t, random.UserAgent)
}

// Launching a real browser is opt-in.
func TestRenderedAcquirerBookCard(t *testing.T) {
	if testing.Short() || os.Getenv("BOOKSPARSER_BROWSER_TESTS") == "" {
		t.Skip("set BOOKSPARSER_BROWSER_TESTS=1 to run browser tests")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, podsHTML)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Browser.ScrollPause = 100 * time.Millisecond
	cfg.Engine.BrowserTimeout = 3 * time.Second
	session := NewBrowserSession(cfg, nil, testLogger)
	a := NewRenderedAcquirer(session, cfg, testLogger)

	batch, err := a.Acquire(context.Background(), types.SourceSpec{
		DisplayName: "books", EntryURL: srv.URL, Shape: types.ShapeBookCard,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, batch.Len())
	assert.True(t, session.Active())

	// The navigation deadline is released once Acquire returns, so the live
	// page stays usable past it and the next Acquire starts clean.
	time.Sleep(cfg.Engine.BrowserTimeout + 100*time.Millisecond)
	batch, err = a.Acquire(context.Background(), types.SourceSpec{
		DisplayName: "books", EntryURL: srv.URL, Shape: types.ShapeBookCard,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, batch.Len())

	require.NoError(t, a.Close())
	assert.False(t, session.Active())
}
