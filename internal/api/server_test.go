package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/priceloom/priceloom/internal/config"
	"github.com/priceloom/priceloom/internal/crawler"
	"github.com/priceloom/priceloom/internal/discount"
	"github.com/priceloom/priceloom/internal/tracker"
	"github.com/priceloom/priceloom/internal/worker"
)

const testSecret = "cron-secret"

type stubFetcher struct {
	pages map[string][]byte
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: no route to host", tracker.ErrFetchFailed)
	}
	return body, nil
}

// stubStore backs the read endpoints and satisfies every store interface
// the server's collaborators need.
type stubStore struct {
	products   []tracker.ProductRef
	options    map[int64][]tracker.Option
	prices     map[int64][]tracker.PricePoint
	active     *tracker.Discount
	categories []tracker.CategoryURL
	urls       []tracker.ProductURL
}

func (s *stubStore) UpsertProduct(_ context.Context, name, description, sourceURL string, updatedAt time.Time) (tracker.Product, error) {
	return tracker.Product{ID: 1, Name: name, Description: description, SourceURL: sourceURL, UpdatedAt: updatedAt}, nil
}

func (s *stubStore) UpsertOption(context.Context, int64, string, string) error { return nil }

func (s *stubStore) ListOptions(_ context.Context, productID int64) ([]tracker.Option, error) {
	return s.options[productID], nil
}

func (s *stubStore) ListProducts(context.Context) ([]tracker.ProductRef, error) {
	return s.products, nil
}

func (s *stubStore) UpsertDiscount(_ context.Context, eventName string, percentage int) (tracker.Discount, error) {
	return tracker.Discount{ID: 1, EventName: eventName, Percentage: percentage}, nil
}

func (s *stubStore) GetActiveEvent(context.Context) (tracker.ActiveEvent, error) {
	if s.active == nil {
		return tracker.ActiveEvent{}, tracker.ErrNotFound
	}
	return tracker.ActiveEvent{DiscountID: s.active.ID}, nil
}

func (s *stubStore) ReplaceActiveEvent(context.Context, int64, time.Time) error { return nil }

func (s *stubStore) CloseOpenDateRange(context.Context, int64, time.Time) error { return nil }

func (s *stubStore) OpenDateRange(context.Context, int64, time.Time) error { return nil }

func (s *stubStore) ActiveDiscount(context.Context) (tracker.Discount, error) {
	if s.active == nil {
		return tracker.Discount{}, tracker.ErrNotFound
	}
	return *s.active, nil
}

func (s *stubStore) InsertPrice(_ context.Context, optionID, discountID int64, price float64, ts time.Time) (tracker.PriceObservation, error) {
	return tracker.PriceObservation{OptionID: optionID, DiscountID: discountID, Price: price, Timestamp: ts}, nil
}

func (s *stubStore) ListPrices(_ context.Context, optionID int64, _, _ time.Time) ([]tracker.PricePoint, error) {
	return s.prices[optionID], nil
}

func (s *stubStore) ListCategoryURLs(context.Context) ([]tracker.CategoryURL, error) {
	return s.categories, nil
}

func (s *stubStore) DeleteCategoryURL(context.Context, int64) error { return nil }

func (s *stubStore) UpsertProductURL(context.Context, tracker.ProductURL) error { return nil }

func (s *stubStore) ListProductURLs(context.Context) ([]tracker.ProductURL, error) {
	return s.urls, nil
}

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T, store *stubStore, fetcher *stubFetcher) *httptest.Server {
	t.Helper()

	if fetcher == nil {
		fetcher = &stubFetcher{}
	}
	clk := stubClock{now: time.Unix(1700000000, 0).UTC()}
	logger := zap.NewNop()

	cr := crawler.New(fetcher, store, crawler.NewHeuristicClassifier(), clk,
		crawler.Config{BaseURL: "https://shop.example", Keyword: "protein", Concurrency: 2}, logger)

	workflow := discount.NewWorkflow(store)
	activator := discount.NewActivator(store, clk, logger)
	wk := worker.New(fetcher, store, store, store, workflow, activator, clk,
		worker.Config{BatchSize: 2}, logger)

	cfg := config.Config{Auth: config.AuthConfig{Secret: testSecret}}
	srv := NewServer(cr, wk, store, store, store, cfg, logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, secret string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set("X-Cron-Secret", secret)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestHealthEndpointsUnauthenticated(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubStore{}, nil)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])

	resp, body = doRequest(t, http.MethodGet, ts.URL+"/readyz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ready", body["status"])
}

func TestV1RequiresCronSecret(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubStore{}, nil)

	resp, _ := doRequest(t, http.MethodPost, ts.URL+"/v1/crawl", "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/v1/crawl", "wrong")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodPost, ts.URL+"/v1/crawl", testSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestV1AcceptsSecretQueryParam(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubStore{}, nil)

	resp, _ := doRequest(t, http.MethodPost, ts.URL+"/v1/crawl?secret="+testSecret, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestScrapeRequiresURL(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubStore{}, nil)

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/v1/scrape", testSecret)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body["error"], "url")
}

func TestScrapeMapsFetchFailure(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubStore{}, &stubFetcher{})

	resp, _ := doRequest(t, http.MethodPost,
		ts.URL+"/v1/scrape?url=https://shop.example/p/1.html", testSecret)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestScrapeAllReportsCounts(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubStore{}, nil)

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/v1/scrape/all", testSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(0), body["attempted"])
}

func TestListProducts(t *testing.T) {
	t.Parallel()

	store := &stubStore{products: []tracker.ProductRef{{ID: 1, Name: "Impact Whey Protein"}}}
	ts := newTestServer(t, store, nil)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/v1/products", testSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	products := body["products"].([]any)
	require.Len(t, products, 1)
}

func TestListOptionsRejectsBadID(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubStore{}, nil)

	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/v1/products/zero/options", testSecret)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListPricesAppliesTimeRange(t *testing.T) {
	t.Parallel()

	store := &stubStore{prices: map[int64][]tracker.PricePoint{
		4: {{ID: 1, OriginalPrice: 50, DiscountPercentage: 40, DiscountAmount: 20, FinalPrice: 30}},
	}}
	ts := newTestServer(t, store, nil)

	resp, body := doRequest(t, http.MethodGet,
		ts.URL+"/v1/options/4/prices?from=2023-11-01T00:00:00Z", testSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prices := body["prices"].([]any)
	require.Len(t, prices, 1)

	resp, _ = doRequest(t, http.MethodGet,
		ts.URL+"/v1/options/4/prices?from=not-a-time", testSecret)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActiveDiscount(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubStore{}, nil)
	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/v1/discounts/active", testSecret)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	withActive := &stubStore{active: &tracker.Discount{ID: 3, EventName: "FLASH SALE", Percentage: 45}}
	ts2 := newTestServer(t, withActive, nil)
	resp, body := doRequest(t, http.MethodGet, ts2.URL+"/v1/discounts/active", testSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "FLASH SALE", body["event_name"])
	require.Equal(t, float64(45), body["percentage"])
}

func TestRequestIDHeaderSet(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, &stubStore{}, nil)

	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/healthz", "")
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
