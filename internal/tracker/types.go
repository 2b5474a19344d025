// Package tracker defines core types shared across subsystems.
package tracker

import "time"

// CategoryURL is a seeded category listing page that the crawler walks.
type CategoryURL struct {
	ID  int64  `json:"id"`
	URL string `json:"url"`
}

// ProductURL is a discovered product page, keyed by URL.
type ProductURL struct {
	URL           string    `json:"url"`
	VariantID     string    `json:"variant_id"`
	CategoryID    int64     `json:"category_id"`
	LastScrapedAt time.Time `json:"last_scraped_at"`
}

// Product is the canonical product record, upserted by name.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
	SourceURL   string    `json:"source_url,omitempty"`
}

// ProductRef is the id+name projection used by listing endpoints.
type ProductRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Option is a purchasable variant of a product (a size, a flavour),
// unique per (product_id, variant_label).
type Option struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"product_id"`
	VariantLabel string `json:"variant_label"`
	VariantID    string `json:"variant_id"`
}

// Discount is a promotional event, keyed by the event name scraped from
// the banner. The percentage may be refreshed on re-upsert; the name is
// the stable identity.
type Discount struct {
	ID         int64     `json:"id"`
	EventName  string    `json:"event_name"`
	Percentage int       `json:"discount_percentage"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActiveEvent is the singleton "discount currently in effect" row.
type ActiveEvent struct {
	DiscountID  int64     `json:"discount_id"`
	ActivatedAt time.Time `json:"activated_at"`
}

// DateRange is one period during which a discount was in effect.
// A nil EndDate means the range is still open.
type DateRange struct {
	ID         int64      `json:"id"`
	DiscountID int64      `json:"discount_id"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

// PriceObservation is one immutable price reading for an option,
// tagged with the discount believed active at scrape time.
type PriceObservation struct {
	ID         int64     `json:"id"`
	OptionID   int64     `json:"option_id"`
	DiscountID int64     `json:"discount_id"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
}

// PricePoint is a price observation joined with its discount, plus the
// derived net price, as served to chart consumers.
type PricePoint struct {
	ID                 int64     `json:"id"`
	OriginalPrice      float64   `json:"original_price"`
	DiscountPercentage int       `json:"discount_percentage"`
	DiscountAmount     float64   `json:"discount_amount"`
	FinalPrice         float64   `json:"final_price"`
	Timestamp          time.Time `json:"timestamp"`
}

// ScrapeResult is returned for each successful per-URL scrape.
type ScrapeResult struct {
	Product  Product            `json:"product"`
	Options  []Option           `json:"options"`
	Prices   []PriceObservation `json:"prices"`
	Discount Discount           `json:"discount"`
}

// CrawlResult summarizes one pass over all category URLs.
type CrawlResult struct {
	CategoriesCrawled int          `json:"categories_crawled"`
	CategoriesFailed  int          `json:"categories_failed"`
	Discovered        []ProductURL `json:"discovered"`
}
