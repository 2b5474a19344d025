package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/priceloom/priceloom/internal/extract"
	"github.com/priceloom/priceloom/internal/metrics"
	"github.com/priceloom/priceloom/internal/tracker"
)

// Config controls crawl behavior.
type Config struct {
	// BaseURL is the site prefix stripped before the keyword pre-filter.
	BaseURL string
	// Keyword must appear in a category's relative URL for it to be crawled.
	Keyword string
	// Concurrency bounds how many categories are crawled in parallel.
	// Pages within one category are always fetched sequentially.
	Concurrency int
}

// Crawler walks category listings and upserts discovered product URLs.
type Crawler struct {
	fetcher    tracker.Fetcher
	catalog    tracker.CatalogStore
	classifier PageClassifier
	clock      tracker.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Crawler.
func New(
	fetcher tracker.Fetcher,
	catalog tracker.CatalogStore,
	classifier PageClassifier,
	clock tracker.Clock,
	cfg Config,
	logger *zap.Logger,
) *Crawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		fetcher:    fetcher,
		catalog:    catalog,
		classifier: classifier,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// CrawlAll crawls every eligible category with bounded parallelism. A
// failed category is counted and logged; it never blocks its siblings.
func (c *Crawler) CrawlAll(ctx context.Context) (tracker.CrawlResult, error) {
	categories, err := c.catalog.ListCategoryURLs(ctx)
	if err != nil {
		return tracker.CrawlResult{}, fmt.Errorf("list category urls: %w", err)
	}

	var (
		mu     sync.Mutex
		result tracker.CrawlResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for _, cat := range categories {
		if !c.eligible(cat) {
			c.logger.Debug("category skipped by pre-filter", zap.String("url", cat.URL))
			continue
		}
		g.Go(func() error {
			urls, crawlErr := c.crawlCategory(gctx, cat)
			mu.Lock()
			defer mu.Unlock()
			result.Discovered = append(result.Discovered, urls...)
			if crawlErr != nil {
				result.CategoriesFailed++
				c.logger.Error("category crawl failed",
					zap.String("url", cat.URL),
					zap.Error(crawlErr),
				)
				return nil
			}
			result.CategoriesCrawled++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("crawl categories: %w", err)
	}
	metrics.URLsDiscovered(len(result.Discovered))
	return result, nil
}

// eligible applies the topical pre-filter: the category URL, minus the
// configured base prefix, must contain the keyword.
func (c *Crawler) eligible(cat tracker.CategoryURL) bool {
	if c.cfg.Keyword == "" {
		return true
	}
	relative := strings.Replace(cat.URL, c.cfg.BaseURL, "", 1)
	return strings.Contains(relative, c.cfg.Keyword)
}

// crawlCategory walks ?pageNumber=1.. until the listing is exhausted.
// URLs already produced within this invocation are skipped; every new URL
// is upserted before being returned. Any fetch, parse, or store error
// aborts this category only.
func (c *Crawler) crawlCategory(ctx context.Context, cat tracker.CategoryURL) ([]tracker.ProductURL, error) {
	visited := make(map[string]struct{})
	var found []tracker.ProductURL

	for page := 1; ; page++ {
		pageURL := fmt.Sprintf("%s?pageNumber=%d", cat.URL, page)
		body, err := c.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			metrics.CrawlPage("error")
			return found, fmt.Errorf("fetch page %d: %w", page, err)
		}

		verdict := c.classifier.Classify(body)
		if verdict.NotFound {
			// Dead category, not an exhausted pagination tail: prune it.
			metrics.CrawlPage("not_found")
			if err := c.catalog.DeleteCategoryURL(ctx, cat.ID); err != nil {
				return found, fmt.Errorf("delete invalid category url: %w", err)
			}
			c.logger.Warn("invalid category url pruned", zap.String("url", cat.URL))
			return found, nil
		}
		if verdict.Exhausted {
			metrics.CrawlPage("exhausted")
			return found, nil
		}

		cards, err := extract.ProductCards(body, cat.URL)
		if err != nil {
			metrics.CrawlPage("error")
			return found, fmt.Errorf("extract cards from page %d: %w", page, err)
		}
		if len(cards) == 0 {
			metrics.CrawlPage("exhausted")
			return found, nil
		}
		metrics.CrawlPage("ok")

		for _, card := range cards {
			if _, seen := visited[card.URL]; seen {
				continue
			}
			visited[card.URL] = struct{}{}
			u := tracker.ProductURL{
				URL:           card.URL,
				VariantID:     card.VariantID,
				CategoryID:    cat.ID,
				LastScrapedAt: c.clock.Now(),
			}
			if err := c.catalog.UpsertProductURL(ctx, u); err != nil {
				return found, fmt.Errorf("upsert product url %q: %w", card.URL, err)
			}
			found = append(found, u)
		}
	}
}
