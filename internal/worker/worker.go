// Package worker implements the per-URL scrape pipeline.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/priceloom/priceloom/internal/discount"
	"github.com/priceloom/priceloom/internal/extract"
	"github.com/priceloom/priceloom/internal/metrics"
	"github.com/priceloom/priceloom/internal/tracker"
)

// Config controls Worker behavior.
type Config struct {
	// BatchSize bounds how many product URLs are scraped concurrently in
	// one admission window during ScrapeAll. Each window completes before
	// the next starts.
	BatchSize int
}

// Worker executes the scrape pipeline for product URLs. Within one scrape
// the steps are strictly ordered: product upsert, option upsert and
// re-read, discount resolution and activation, then price writes. Later
// steps reference ids produced by the earlier ones.
type Worker struct {
	fetcher   tracker.Fetcher
	catalog   tracker.CatalogStore
	products  tracker.ProductStore
	prices    tracker.PriceStore
	workflow  *discount.Workflow
	activator *discount.Activator
	clock     tracker.Clock
	cfg       Config
	logger    *zap.Logger
}

// BatchResult summarizes one ScrapeAll pass.
type BatchResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// New constructs a Worker.
func New(
	fetcher tracker.Fetcher,
	catalog tracker.CatalogStore,
	products tracker.ProductStore,
	prices tracker.PriceStore,
	workflow *discount.Workflow,
	activator *discount.Activator,
	clock tracker.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		fetcher:   fetcher,
		catalog:   catalog,
		products:  products,
		prices:    prices,
		workflow:  workflow,
		activator: activator,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// ScrapeURL fetches one product page and records product, options, the
// active discount, and one immutable price observation per variant.
//
// A scrape that cannot resolve a discount writes no prices at all: a
// price without its discount context is incomplete data, so the whole
// scrape fails even when options were already upserted.
func (w *Worker) ScrapeURL(ctx context.Context, url string) (tracker.ScrapeResult, error) {
	result, err := w.scrapeURL(ctx, url)
	if err != nil {
		metrics.Scrape("error")
		w.logger.Error("scrape failed", zap.String("url", url), zap.Error(err))
		return tracker.ScrapeResult{}, err
	}
	metrics.Scrape("ok")
	metrics.PricesRecorded(len(result.Prices))
	w.logger.Info("scrape completed",
		zap.String("url", url),
		zap.String("product", result.Product.Name),
		zap.Int("prices", len(result.Prices)),
	)
	return result, nil
}

func (w *Worker) scrapeURL(ctx context.Context, url string) (tracker.ScrapeResult, error) {
	body, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		return tracker.ScrapeResult{}, fmt.Errorf("fetch %s: %w", url, err)
	}

	details, err := extract.Details(body)
	if err != nil {
		return tracker.ScrapeResult{}, fmt.Errorf("extract details: %w", err)
	}

	now := w.clock.Now()
	product, err := w.products.UpsertProduct(ctx, details.Title, details.Subtitle, url, now)
	if err != nil {
		return tracker.ScrapeResult{}, fmt.Errorf("upsert product %q: %w", details.Title, err)
	}

	offers, err := extract.VariantOffers(body)
	if err != nil {
		return tracker.ScrapeResult{}, fmt.Errorf("extract variant offers: %w", err)
	}
	offers = dedupeOffers(offers)

	for _, offer := range offers {
		if err := w.products.UpsertOption(ctx, product.ID, offer.VariantLabel, offer.VariantID); err != nil {
			return tracker.ScrapeResult{}, fmt.Errorf("upsert option %q: %w", offer.VariantLabel, err)
		}
	}

	// Upsert responses are not trusted for ids; re-read the persisted set.
	options, err := w.products.ListOptions(ctx, product.ID)
	if err != nil {
		return tracker.ScrapeResult{}, fmt.Errorf("list options: %w", err)
	}

	disc, err := w.workflow.Resolve(ctx, extract.BannerText(body))
	if err != nil {
		return tracker.ScrapeResult{}, fmt.Errorf("resolve discount: %w", err)
	}
	if err := w.activator.Activate(ctx, disc.ID, now); err != nil {
		return tracker.ScrapeResult{}, fmt.Errorf("activate discount %d: %w", disc.ID, err)
	}

	observations, err := w.recordPrices(ctx, options, offers, disc.ID, now)
	if err != nil {
		return tracker.ScrapeResult{}, err
	}

	return tracker.ScrapeResult{
		Product:  product,
		Options:  options,
		Prices:   observations,
		Discount: disc,
	}, nil
}

// recordPrices joins authoritative option ids to scraped price text by
// (variant label, variant id) and writes one observation per match.
func (w *Worker) recordPrices(
	ctx context.Context,
	options []tracker.Option,
	offers []extract.VariantOffer,
	discountID int64,
	ts time.Time,
) ([]tracker.PriceObservation, error) {
	byKey := make(map[offerKey]extract.VariantOffer, len(offers))
	for _, offer := range offers {
		byKey[offerKey{label: offer.VariantLabel, variantID: offer.VariantID}] = offer
	}

	var observations []tracker.PriceObservation
	for _, opt := range options {
		offer, ok := byKey[offerKey{label: opt.VariantLabel, variantID: opt.VariantID}]
		if !ok {
			// Previously stored variant that this scrape did not offer.
			continue
		}
		obs, err := w.prices.InsertPrice(ctx, opt.ID, discountID, extract.ParsePrice(offer.PriceText), ts)
		if err != nil {
			return nil, fmt.Errorf("insert price for option %d: %w", opt.ID, err)
		}
		observations = append(observations, obs)
	}
	return observations, nil
}

type offerKey struct {
	label     string
	variantID string
}

// dedupeOffers drops repeated (label, variant id) pairs so one scrape can
// never produce duplicate option rows or double price writes.
func dedupeOffers(offers []extract.VariantOffer) []extract.VariantOffer {
	seen := make(map[offerKey]struct{}, len(offers))
	out := offers[:0]
	for _, offer := range offers {
		key := offerKey{label: offer.VariantLabel, variantID: offer.VariantID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, offer)
	}
	return out
}

// ScrapeAll scrapes every stored product URL in admission-controlled
// batches. Per-URL failures are counted, not fatal; a canceled context
// stops admission of further batches.
func (w *Worker) ScrapeAll(ctx context.Context) (BatchResult, error) {
	urls, err := w.catalog.ListProductURLs(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list product urls: %w", err)
	}

	var (
		mu     sync.Mutex
		result = BatchResult{Attempted: len(urls)}
	)
	for start := 0; start < len(urls); start += w.cfg.BatchSize {
		if ctx.Err() != nil {
			return result, fmt.Errorf("scrape all: %w", ctx.Err())
		}
		end := min(start+w.cfg.BatchSize, len(urls))

		var g errgroup.Group
		for _, u := range urls[start:end] {
			g.Go(func() error {
				_, scrapeErr := w.ScrapeURL(ctx, u.URL)
				mu.Lock()
				defer mu.Unlock()
				if scrapeErr != nil {
					result.Failed++
				} else {
					result.Succeeded++
				}
				return nil
			})
		}
		// Each batch runs to completion before the next is admitted.
		_ = g.Wait()
	}
	return result, nil
}
