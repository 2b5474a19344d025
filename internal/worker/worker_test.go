package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priceloom/priceloom/internal/discount"
	"github.com/priceloom/priceloom/internal/tracker"
)

// memStore is an in-memory stand-in for every store interface the worker
// touches, mimicking the upsert-by-key semantics of the Postgres layer.
type memStore struct {
	mu sync.Mutex

	products      map[string]tracker.Product
	nextProductID int64

	options      []tracker.Option
	nextOptionID int64

	discounts      map[string]tracker.Discount
	nextDiscountID int64
	active         *tracker.ActiveEvent
	ranges         []tracker.DateRange

	prices      []tracker.PriceObservation
	nextPriceID int64

	productURLs []tracker.ProductURL
}

func newMemStore() *memStore {
	return &memStore{
		products:       map[string]tracker.Product{},
		nextProductID:  1,
		nextOptionID:   1,
		discounts:      map[string]tracker.Discount{},
		nextDiscountID: 1,
		nextPriceID:    1,
	}
}

func (m *memStore) UpsertProduct(_ context.Context, name, description, sourceURL string, updatedAt time.Time) (tracker.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[name]; ok {
		p.Description = description
		p.UpdatedAt = updatedAt
		m.products[name] = p
		return p, nil
	}
	p := tracker.Product{ID: m.nextProductID, Name: name, Description: description, UpdatedAt: updatedAt, SourceURL: sourceURL}
	m.nextProductID++
	m.products[name] = p
	return p, nil
}

func (m *memStore) UpsertOption(_ context.Context, productID int64, variantLabel, variantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.options {
		if o.ProductID == productID && o.VariantLabel == variantLabel {
			return nil
		}
	}
	m.options = append(m.options, tracker.Option{
		ID: m.nextOptionID, ProductID: productID, VariantLabel: variantLabel, VariantID: variantID,
	})
	m.nextOptionID++
	return nil
}

func (m *memStore) ListOptions(_ context.Context, productID int64) ([]tracker.Option, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tracker.Option
	for _, o := range m.options {
		if o.ProductID == productID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ListProducts(context.Context) ([]tracker.ProductRef, error) {
	return nil, nil
}

func (m *memStore) UpsertDiscount(_ context.Context, eventName string, percentage int) (tracker.Discount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.discounts[eventName]; ok {
		d.Percentage = percentage
		m.discounts[eventName] = d
		return d, nil
	}
	d := tracker.Discount{ID: m.nextDiscountID, EventName: eventName, Percentage: percentage}
	m.nextDiscountID++
	m.discounts[eventName] = d
	return d, nil
}

func (m *memStore) GetActiveEvent(context.Context) (tracker.ActiveEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return tracker.ActiveEvent{}, tracker.ErrNotFound
	}
	return *m.active, nil
}

func (m *memStore) ReplaceActiveEvent(_ context.Context, discountID int64, activatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = &tracker.ActiveEvent{DiscountID: discountID, ActivatedAt: activatedAt}
	return nil
}

func (m *memStore) CloseOpenDateRange(_ context.Context, discountID int64, endDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.ranges {
		if m.ranges[i].DiscountID == discountID && m.ranges[i].EndDate == nil {
			end := endDate
			m.ranges[i].EndDate = &end
			return nil
		}
	}
	return nil
}

func (m *memStore) OpenDateRange(_ context.Context, discountID int64, startDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranges = append(m.ranges, tracker.DateRange{
		ID: int64(len(m.ranges) + 1), DiscountID: discountID, StartDate: startDate,
	})
	return nil
}

func (m *memStore) ActiveDiscount(context.Context) (tracker.Discount, error) {
	return tracker.Discount{}, tracker.ErrNotFound
}

func (m *memStore) InsertPrice(_ context.Context, optionID, discountID int64, price float64, ts time.Time) (tracker.PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obs := tracker.PriceObservation{ID: m.nextPriceID, OptionID: optionID, DiscountID: discountID, Price: price, Timestamp: ts}
	m.nextPriceID++
	m.prices = append(m.prices, obs)
	return obs, nil
}

func (m *memStore) ListPrices(context.Context, int64, time.Time, time.Time) ([]tracker.PricePoint, error) {
	return nil, nil
}

func (m *memStore) ListCategoryURLs(context.Context) ([]tracker.CategoryURL, error) {
	return nil, nil
}

func (m *memStore) DeleteCategoryURL(context.Context, int64) error { return nil }

func (m *memStore) UpsertProductURL(context.Context, tracker.ProductURL) error { return nil }

func (m *memStore) ListProductURLs(context.Context) ([]tracker.ProductURL, error) {
	return m.productURLs, nil
}

type mapFetcher struct {
	mu    sync.Mutex
	pages map[string][]byte
	errs  map[string]error
}

func (f *mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.pages[url], nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var scrapeTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func productPage(banner string, variants ...string) []byte {
	page := fmt.Sprintf(`<html><body>
<div class="stripBanner_text"><p>%s</p></div>
<h1 class="productName_title">Impact Whey Protein</h1>
<p class="productName_subtitle">Muscle building whey protein</p>
<p class="productPrice_price">S$54.45</p>
<script id="productSchema" type="application/ld+json">
{"@type":"ProductGroup","name":"Impact Whey Protein","hasVariant":[%s]}
</script>
</body></html>`, banner, joinVariants(variants))
	return []byte(page)
}

func joinVariants(variants []string) string {
	out := ""
	for i, v := range variants {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out
}

func variantJSON(sku, name, price string) string {
	return fmt.Sprintf(`{"@id":"https://shop.example.com/p/%s","sku":%q,"name":%q,"offers":{"price":%q}}`, sku, sku, name, price)
}

func newTestWorker(fetcher tracker.Fetcher, store *memStore, batchSize int) *Worker {
	clock := fixedClock{t: scrapeTime}
	return New(
		fetcher,
		store,
		store,
		store,
		discount.NewWorkflow(store),
		discount.NewActivator(store, clock, nil),
		clock,
		Config{BatchSize: batchSize},
		nil,
	)
}

func TestScrapeURLRecordsPricesWithActiveDiscount(t *testing.T) {
	t.Parallel()

	const url = "https://shop.example.com/p/whey/10530943.html"
	fetcher := &mapFetcher{pages: map[string][]byte{
		url: productPage("45% OFF | USE CODE【IMPACT】",
			variantJSON("10530943", "Impact Whey Protein 1kg Chocolate", "49.90"),
			variantJSON("10530944", "Impact Whey Protein 2.5kg Vanilla", "99.90"),
		),
	}}
	store := newMemStore()

	result, err := newTestWorker(fetcher, store, 3).ScrapeURL(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, "Impact Whey Protein", result.Product.Name)
	assert.Equal(t, "IMPACT", result.Discount.EventName)
	assert.Equal(t, 45, result.Discount.Percentage)

	require.Len(t, result.Options, 2)
	require.Len(t, result.Prices, 2)
	for _, obs := range result.Prices {
		assert.Equal(t, result.Discount.ID, obs.DiscountID)
		assert.Equal(t, scrapeTime, obs.Timestamp)
	}
	assert.InDelta(t, 49.90, result.Prices[0].Price, 1e-9)

	require.NotNil(t, store.active)
	assert.Equal(t, result.Discount.ID, store.active.DiscountID)
	require.Len(t, store.ranges, 1)
	assert.Nil(t, store.ranges[0].EndDate)
}

func TestScrapeURLDeduplicatesRepeatedVariants(t *testing.T) {
	t.Parallel()

	const url = "https://shop.example.com/p/whey/10530943.html"
	dup := variantJSON("10530943", "Impact Whey Protein 1kg Chocolate", "49.90")
	fetcher := &mapFetcher{pages: map[string][]byte{
		url: productPage("45% OFF | USE CODE【IMPACT】", dup, dup),
	}}
	store := newMemStore()

	result, err := newTestWorker(fetcher, store, 3).ScrapeURL(context.Background(), url)
	require.NoError(t, err)

	assert.Len(t, result.Options, 1)
	assert.Len(t, result.Prices, 1)
	assert.Len(t, store.options, 1)
	assert.Len(t, store.prices, 1)
}

func TestScrapeURLDiscountGatesPricing(t *testing.T) {
	t.Parallel()

	const url = "https://shop.example.com/p/whey/10530943.html"
	fetcher := &mapFetcher{pages: map[string][]byte{
		// Banner with no event code: the discount cannot be resolved.
		url: productPage("45% OFF EVERYTHING",
			variantJSON("10530943", "Impact Whey Protein 1kg Chocolate", "49.90"),
		),
	}}
	store := newMemStore()

	_, err := newTestWorker(fetcher, store, 3).ScrapeURL(context.Background(), url)
	require.ErrorIs(t, err, tracker.ErrNoEventName)

	// Options may exist, but no price rows were written.
	assert.Len(t, store.options, 1)
	assert.Empty(t, store.prices)
	assert.Nil(t, store.active)
}

func TestScrapeURLRequiresTitle(t *testing.T) {
	t.Parallel()

	const url = "https://shop.example.com/p/mystery.html"
	fetcher := &mapFetcher{pages: map[string][]byte{
		url: []byte(`<html><body><p class="productPrice_price">S$9.99</p></body></html>`),
	}}
	store := newMemStore()

	_, err := newTestWorker(fetcher, store, 3).ScrapeURL(context.Background(), url)
	require.ErrorIs(t, err, tracker.ErrTitleMissing)
	assert.Empty(t, store.products)
}

func TestScrapeURLRequiresProductSchema(t *testing.T) {
	t.Parallel()

	const url = "https://shop.example.com/p/whey/10530943.html"
	fetcher := &mapFetcher{pages: map[string][]byte{
		url: []byte(`<html><body>
<h1 class="productName_title">Impact Whey Protein</h1>
<div class="stripBanner_text"><p>45% OFF | USE CODE【IMPACT】</p></div>
</body></html>`),
	}}
	store := newMemStore()

	_, err := newTestWorker(fetcher, store, 3).ScrapeURL(context.Background(), url)
	require.ErrorIs(t, err, tracker.ErrSchemaMissing)
	assert.Empty(t, store.prices)
}

func TestScrapeURLSameBannerTwiceKeepsSingleOpenRange(t *testing.T) {
	t.Parallel()

	const url = "https://shop.example.com/p/whey/10530943.html"
	fetcher := &mapFetcher{pages: map[string][]byte{
		url: productPage("45% OFF | USE CODE【IMPACT】",
			variantJSON("10530943", "Impact Whey Protein 1kg Chocolate", "49.90"),
		),
	}}
	store := newMemStore()
	w := newTestWorker(fetcher, store, 3)

	_, err := w.ScrapeURL(context.Background(), url)
	require.NoError(t, err)
	_, err = w.ScrapeURL(context.Background(), url)
	require.NoError(t, err)

	require.Len(t, store.ranges, 1, "re-scraping an unchanged banner must not grow history")
	assert.Nil(t, store.ranges[0].EndDate)
	// But both scrapes recorded a price observation.
	assert.Len(t, store.prices, 2)
}

func TestScrapeAllProcessesBatchesAndCountsFailures(t *testing.T) {
	t.Parallel()

	page := productPage("45% OFF | USE CODE【IMPACT】",
		variantJSON("10530943", "Impact Whey Protein 1kg Chocolate", "49.90"),
	)
	fetcher := &mapFetcher{
		pages: map[string][]byte{
			"https://shop.example.com/p/1.html": page,
			"https://shop.example.com/p/2.html": page,
			"https://shop.example.com/p/4.html": page,
		},
		errs: map[string]error{
			"https://shop.example.com/p/3.html": fmt.Errorf("%w: connection reset", tracker.ErrFetchFailed),
		},
	}
	store := newMemStore()
	for i := 1; i <= 4; i++ {
		store.productURLs = append(store.productURLs, tracker.ProductURL{
			URL: fmt.Sprintf("https://shop.example.com/p/%d.html", i),
		})
	}

	result, err := newTestWorker(fetcher, store, 2).ScrapeAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, BatchResult{Attempted: 4, Succeeded: 3, Failed: 1}, result)
}
