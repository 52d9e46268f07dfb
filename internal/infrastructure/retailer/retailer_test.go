package retailer

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonServer(t *testing.T, status int, body string, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func htCreds() *domain.SessionCredentials {
	return &domain.SessionCredentials{
		Headers: map[string]string{LAFHeader: "laf-123"},
		Cookies: map[string]string{"b": "2", "a": "1"},
	}
}

const htBody = `{"data":{"products":[
	{"item":{"upc":"0001600027528","description":"Cheerios Cereal","brand":{"name":"General Mills"}},
	 "fulfillmentSummaries":[
		{"type":"DELIVERY","regular":{"price":9.99,"pricePerUnitString":"x"}},
		{"type":"PICKUP","regular":{"price":4.79,"pricePerUnitString":"12 oz"}}]},
	{"item":{"upc":"0003800084500","description":"Frosted Flakes"},"fulfillmentSummaries":[]}
]}}`

func TestHarrisTeeter_FetchBatch(t *testing.T) {
	var seen *http.Request
	server := jsonServer(t, http.StatusOK, htBody, func(r *http.Request) { seen = r })
	h := NewHarrisTeeter(server.URL, time.Second)

	results, err := h.FetchBatch(context.Background(), []string{"016000275287", "038000845000"}, htCreds())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Cheerios Cereal", results[0].Description)
	assert.Equal(t, "General Mills", results[0].Brand)
	require.NotNil(t, results[0].Price)
	assert.InDelta(t, 4.79, *results[0].Price, 0.001)
	assert.Equal(t, "12 oz", results[0].Size)
	assert.Nil(t, results[1].Price)

	assert.Equal(t, h.RequestKey("016000275287"), h.ResultKey(results[0].UPC))
	assert.Equal(t, "laf-123", seen.Header.Get(LAFHeader))
	assert.Equal(t, "a=1; b=2", seen.Header.Get("Cookie"))
	assert.Equal(t, []string{"0001600027528", "0003800084500"}, seen.URL.Query()["filter.gtin13s"])
	assert.Equal(t, harrisTeeterPath, seen.URL.Path)
}

func TestHarrisTeeter_Keys(t *testing.T) {
	h := NewHarrisTeeter("", time.Second)
	returned := h.ResultKey("0001600027528")

	tests := []struct {
		name string
		id   string
	}{
		{"12-digit UPC-A", "016000275287"},
		{"leading zero lost in the sheet", "16000275287"},
		{"13-digit EAN", "0016000275287"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, returned, h.RequestKey(tt.id))
			assert.Contains(t, h.BatchURL([]string{tt.id}), "filter.gtin13s="+returned)
		})
	}
	assert.NotEqual(t, returned, h.RequestKey("038000845000"))
}

func TestHarrisTeeter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   domain.ErrorKind
		absent bool
	}{
		{name: "throttled", status: 429, body: `{}`, kind: domain.KindThrottled},
		{name: "cloudflare", status: 522, body: ``, kind: domain.KindThrottled},
		{name: "server error", status: 500, body: `oops`, kind: domain.KindTransient},
		{name: "not found", status: 404, body: `{}`, kind: domain.KindFatal},
		{name: "invalid json", status: 200, body: `<html>`, kind: domain.KindParse},
		{name: "wrong schema", status: 200, body: `{"data":{}}`, kind: domain.KindParse},
		{name: "zero products", status: 200, body: `{"data":{"products":[]}}`, absent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := jsonServer(t, tt.status, tt.body, nil)
			h := NewHarrisTeeter(server.URL, time.Second)

			_, err := h.FetchBatch(context.Background(), []string{"016000275287"}, htCreds())
			require.Error(t, err)
			if tt.absent {
				assert.ErrorIs(t, err, domain.ErrConfirmedAbsent)
				return
			}
			assert.Equal(t, tt.kind, domain.KindOf(err))
		})
	}
}

func TestHarrisTeeter_RequiresSession(t *testing.T) {
	h := NewHarrisTeeter("http://127.0.0.1:1", time.Second)

	_, err := h.FetchBatch(context.Background(), []string{"1"}, &domain.SessionCredentials{})
	assert.ErrorIs(t, err, domain.ErrNoSession)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestHarrisTeeter_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()
	h := NewHarrisTeeter(server.URL, 20*time.Millisecond)

	_, err := h.FetchBatch(context.Background(), []string{"016000275287"}, htCreds())
	assert.Equal(t, domain.KindTransient, domain.KindOf(err))
}

func TestGiant_FetchBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("keywords") {
		case "016000275287":
			w.Write([]byte(`{"response":{"products":[{"upc":"16000275287","name":"Cheerios","price":"4.99","size":"12 oz"}]}}`))
		case "038000845000":
			w.Write([]byte(`{"response":{"products":[{"upc":"99999","name":"Something Else","price":1}]}}`))
		default:
			w.Write([]byte(`{"response":{"products":[]}}`))
		}
	}))
	defer server.Close()
	g := NewGiant(server.URL, time.Second)
	creds := &domain.SessionCredentials{Params: map[string]string{GiantProductsPathParam: "/api/v6.0/products/2/50000351"}}

	results, err := g.FetchBatch(context.Background(), []string{"016000275287", "038000845000", "000000000000"}, creds)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "016000275287", results[0].UPC)
	assert.Equal(t, "Cheerios", results[0].Name)
	assert.InDelta(t, 4.99, *results[0].Price, 0.001)

	_, err = g.FetchBatch(context.Background(), []string{"000000000000"}, creds)
	assert.ErrorIs(t, err, domain.ErrConfirmedAbsent)

	_, err = g.FetchBatch(context.Background(), []string{"1"}, &domain.SessionCredentials{})
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestSafeway_Categories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "categories.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"Bread & Bakery": [
			{"display_name": "Sandwich Breads", "category_id": "1_23_2", "category_name": "Sandwich Bread"},
			{"display_name": "Bagels"}
		],
		"Dairy": [{"display_name": "Milk", "category_id": "1_5_1"}]
	}`), 0o644))

	categories, err := NewSafeway("", path, time.Second).Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, domain.Category{Key: "Bread & Bakery::Sandwich Breads", ID: "1_23_2", Name: "Sandwich Bread", Parent: "Bread & Bakery"}, categories[0])
	assert.Equal(t, "Milk", categories[1].Name)

	_, err = NewSafeway("", filepath.Join(t.TempDir(), "missing.json"), time.Second).Categories(context.Background())
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestSafeway_FetchPage(t *testing.T) {
	var query url.Values
	server := jsonServer(t, http.StatusOK, `{"response":{"numFound":41,"docs":[
		{"upc":"111","name":"White Bread 20 oz","price":2.5},
		{"name":"no upc"}],
		"miscInfo":{"nextPageToken":"tok-2"}}}`, func(r *http.Request) { query = r.URL.Query() })
	s := NewSafeway(server.URL, "", time.Second)
	creds := &domain.SessionCredentials{
		Headers: map[string]string{SafewaySubscriptionHeader: "key"},
		Params:  map[string]string{"storeid": "2912", "nextPageToken": "stale"},
	}
	cat := domain.Category{Key: "Bread::Sandwich", ID: "1_23_2", Name: "Sandwich Bread"}

	page, err := s.FetchPage(context.Background(), cat, domain.PageCursor{Offset: 20, Token: "tok-1"}, creds)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "White Bread 20 oz", page.Entries[0].Name)
	assert.Equal(t, 41, page.Total)
	assert.Equal(t, &domain.PageCursor{Offset: 40, Token: "tok-2"}, page.Next)

	assert.Equal(t, "2912", query.Get("storeid"))
	assert.Equal(t, "1_23_2", query.Get("category-id"))
	assert.Equal(t, "20", query.Get("start"))
	assert.Equal(t, "tok-1", query.Get("nextPageToken"))
}

func TestSafeway_FetchPageStatuses(t *testing.T) {
	creds := &domain.SessionCredentials{Headers: map[string]string{SafewaySubscriptionHeader: "key"}}
	cat := domain.Category{Key: "k", ID: "1"}

	bad := jsonServer(t, http.StatusBadRequest, `{}`, nil)
	page, err := NewSafeway(bad.URL, "", time.Second).FetchPage(context.Background(), cat, domain.PageCursor{}, creds)
	require.NoError(t, err)
	assert.Nil(t, page.Next)
	assert.Empty(t, page.Entries)

	blocked := jsonServer(t, http.StatusForbidden, `{}`, nil)
	_, err = NewSafeway(blocked.URL, "", time.Second).FetchPage(context.Background(), cat, domain.PageCursor{}, creds)
	assert.Equal(t, domain.KindThrottled, domain.KindOf(err))

	last := jsonServer(t, http.StatusOK, `{"response":{"docs":[{"upc":"1","name":"x"}],"miscInfo":{"nextPageToken":""}}}`, nil)
	page, err = NewSafeway(last.URL, "", time.Second).FetchPage(context.Background(), cat, domain.PageCursor{}, creds)
	require.NoError(t, err)
	assert.Nil(t, page.Next)
}

func storeCookie(payload string) string {
	return url.QueryEscape(base64.RawURLEncoding.EncodeToString([]byte(payload)))
}

func TestStoreIDFromCookie(t *testing.T) {
	id, err := StoreIDFromCookie(storeCookie(`{"id":"10135","name":"P Street"}`))
	require.NoError(t, err)
	assert.Equal(t, "10135", id)

	_, err = StoreIDFromCookie(storeCookie(`{"name":"no id"}`))
	assert.Error(t, err)

	_, err = StoreIDFromCookie("%%%")
	assert.Error(t, err)
}

func TestWholeFoods_FetchPage(t *testing.T) {
	var query url.Values
	server := jsonServer(t, http.StatusOK, `{
		"results":[
			{"name":"Organic Bananas","brand":"365","slug":"organic-bananas-b0001","regularPrice":0.29},
			{"name":"Oat Milk","brand":"Oatly","slug":"oat-milk-64-fl-oz-b0002","regularPrice":"5.49"}],
		"facets":[{"slug":"category","refinements":[{"slug":"all-products","count":62}]}]}`,
		func(r *http.Request) { query = r.URL.Query() })
	w := NewWholeFoods(server.URL, nil, time.Second)
	creds := &domain.SessionCredentials{Cookies: map[string]string{StoreCookie: storeCookie(`{"id":"10135"}`)}}

	categories, err := w.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 1)

	page, err := w.FetchPage(context.Background(), categories[0], domain.PageCursor{}, creds)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, 62, page.Total)
	assert.Equal(t, &domain.PageCursor{Offset: 60}, page.Next)
	assert.InDelta(t, 5.49, *page.Entries[1].Price, 0.001)
	assert.Equal(t, "10135", query.Get("store"))
	assert.Equal(t, "60", query.Get("limit"))

	page, err = w.FetchPage(context.Background(), categories[0], domain.PageCursor{Offset: 60}, creds)
	require.NoError(t, err)
	assert.Nil(t, page.Next)

	_, err = w.FetchPage(context.Background(), categories[0], domain.PageCursor{}, &domain.SessionCredentials{})
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

func TestConfirmStore(t *testing.T) {
	html := `<html><body><div class="store"><span data-testid="store-name">Harris Teeter
		Washington, DC 20007</span></div></body></html>`

	label, err := ConfirmStore(html, "[data-testid='store-name']", "20007")
	require.NoError(t, err)
	assert.Equal(t, "Harris Teeter Washington, DC 20007", label)

	_, err = ConfirmStore(html, "[data-testid='store-name']", "22201")
	assert.Error(t, err)

	_, err = ConfirmStore(html, ".missing", "")
	assert.Error(t, err)
}

type fakeRendered struct {
	captured *domain.CapturedRequest
	cookies  []domain.BrowserCookie
	html     string
	closed   bool
}

func (f *fakeRendered) Navigate(ctx context.Context, url string) error { return nil }

func (f *fakeRendered) AwaitCapturedRequest(ctx context.Context, match func(domain.CapturedRequest) bool, timeout time.Duration) (*domain.CapturedRequest, error) {
	if f.captured == nil || !match(*f.captured) {
		return nil, domain.ErrRequestNotCaptured
	}
	return f.captured, nil
}

func (f *fakeRendered) Cookies(ctx context.Context) ([]domain.BrowserCookie, error) {
	return f.cookies, nil
}

func (f *fakeRendered) Content(ctx context.Context) (string, error) { return f.html, nil }

func (f *fakeRendered) Close() error {
	f.closed = true
	return nil
}

type fakePageFetcher struct {
	opens   int
	targets []string
	next    func() *fakeRendered
	err     error
}

func (f *fakePageFetcher) Open(ctx context.Context, target string, steps []domain.InteractiveStep) (domain.RenderedSession, error) {
	f.opens++
	f.targets = append(f.targets, target)
	if f.err != nil {
		return nil, f.err
	}
	return f.next(), nil
}

func TestBrowserSessionProvider(t *testing.T) {
	profile, err := Profile(SafewayName, Options{ZipCode: "20007", StoreID: "2912"})
	require.NoError(t, err)

	var sessions []*fakeRendered
	fetcher := &fakePageFetcher{next: func() *fakeRendered {
		rs := &fakeRendered{
			captured: &domain.CapturedRequest{
				URL:     "https://www.safeway.com/abs/pub/xapi/v1/aisles/products?storeid=2912&banner=safeway",
				Headers: map[string]string{"Ocp-Apim-Subscription-Key": "sub", "User-Agent": "ua", "Accept": "drop"},
			},
			cookies: []domain.BrowserCookie{
				{Name: "SWY_SHARED", Value: "1", Domain: ".safeway.com"},
				{Name: "tracker", Value: "x", Domain: ".ads.example"},
			},
		}
		sessions = append(sessions, rs)
		return rs
	}}
	sessionCache := cache.NewSessionCache()
	defer sessionCache.Close()
	provider := NewBrowserSessionProvider(profile, fetcher, sessionCache, time.Hour, time.Second)

	creds, err := provider.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sub", creds.Headers[SafewaySubscriptionHeader])
	assert.Equal(t, "ua", creds.Headers["user-agent"])
	assert.NotContains(t, creds.Headers, "Accept")
	assert.Equal(t, map[string]string{"SWY_SHARED": "1"}, creds.Cookies)
	assert.Equal(t, "2912", creds.Params["storeid"])
	assert.True(t, sessions[0].closed)

	_, err = provider.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.opens, "second acquire is served from cache")

	_, err = provider.Renew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.opens)
	require.NoError(t, provider.Close())
}

func TestBrowserSessionProvider_Failures(t *testing.T) {
	profile, err := Profile(GiantName, Options{})
	require.NoError(t, err)

	t.Run("request never captured", func(t *testing.T) {
		fetcher := &fakePageFetcher{next: func() *fakeRendered { return &fakeRendered{} }}
		provider := NewBrowserSessionProvider(profile, fetcher, nil, time.Hour, time.Second)

		_, err := provider.Acquire(context.Background())
		assert.ErrorIs(t, err, domain.ErrRequestNotCaptured)
		assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	})

	t.Run("browser fails to open", func(t *testing.T) {
		fetcher := &fakePageFetcher{err: errors.New("browser crashed")}
		provider := NewBrowserSessionProvider(profile, fetcher, nil, time.Hour, time.Second)

		_, err := provider.Acquire(context.Background())
		assert.Equal(t, domain.KindTransient, domain.KindOf(err))
	})

	t.Run("captures product path", func(t *testing.T) {
		fetcher := &fakePageFetcher{next: func() *fakeRendered {
			return &fakeRendered{captured: &domain.CapturedRequest{URL: "https://giantfood.com/api/v6.0/products/2/50000351?keywords=milk"}}
		}}
		provider := NewBrowserSessionProvider(profile, fetcher, nil, time.Hour, time.Second)

		creds, err := provider.Acquire(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "/api/v6.0/products/2/50000351", creds.Params[GiantProductsPathParam])
	})

	t.Run("wrong store selected", func(t *testing.T) {
		p := profile
		p.StoreSelector = ".store"
		p.ExpectStore = "20007"
		fetcher := &fakePageFetcher{next: func() *fakeRendered {
			return &fakeRendered{
				captured: &domain.CapturedRequest{URL: "https://giantfood.com/api/v6.0/products/2/1"},
				html:     `<div class="store">Giant Arlington 22201</div>`,
			}
		}}
		provider := NewBrowserSessionProvider(p, fetcher, nil, time.Hour, time.Second)

		_, err := provider.Acquire(context.Background())
		assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	})
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{GiantName, HarrisTeeterName, SafewayName, WholeFoodsName}, Names())

	mode, err := ModeOf(SafewayName)
	require.NoError(t, err)
	assert.Equal(t, ModeCatalogue, mode)

	_, err = ModeOf("kroger")
	assert.ErrorIs(t, err, domain.ErrUnknownRetailer)

	_, err = NewBatchFetcher(SafewayName, Options{})
	assert.ErrorIs(t, err, domain.ErrUnknownRetailer)
	_, err = NewCataloguePager(GiantName, Options{})
	assert.ErrorIs(t, err, domain.ErrUnknownRetailer)

	for _, name := range Names() {
		profile, err := Profile(name, Options{ZipCode: "20007", StoreID: "1"})
		require.NoError(t, err, name)
		assert.NotEmpty(t, profile.StartURL, name)
	}
}

func TestRepositories(t *testing.T) {
	open := Repositories(t.TempDir())

	batch, err := open(GiantName)
	require.NoError(t, err)
	assert.Equal(t, string(ModeBatch), batch.Mode)
	assert.NotNil(t, batch.Checkpoint)
	assert.Nil(t, batch.Catalogue)

	crawl, err := open(WholeFoodsName)
	require.NoError(t, err)
	assert.Nil(t, crawl.Checkpoint)
	require.NotNil(t, crawl.Catalogue)
	_, err = crawl.Catalogue.Load()
	assert.ErrorIs(t, err, domain.ErrCatalogueNotFound)

	_, err = open("kroger")
	assert.ErrorIs(t, err, domain.ErrUnknownRetailer)
}
