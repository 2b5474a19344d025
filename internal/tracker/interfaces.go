package tracker

import (
	"context"
	"time"
)

// Fetcher retrieves the raw HTML for a URL. Implementations do not retry;
// network and non-2xx failures surface as ErrFetchFailed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// CatalogStore persists category URLs and discovered product URLs.
type CatalogStore interface {
	ListCategoryURLs(ctx context.Context) ([]CategoryURL, error)
	DeleteCategoryURL(ctx context.Context, id int64) error
	UpsertProductURL(ctx context.Context, u ProductURL) error
	ListProductURLs(ctx context.Context) ([]ProductURL, error)
}

// ProductStore persists products and their option variants.
type ProductStore interface {
	// UpsertProduct writes a product keyed by name, refreshing description
	// and updated_at on conflict, and returns the persisted row.
	UpsertProduct(ctx context.Context, name, description, sourceURL string, updatedAt time.Time) (Product, error)
	// UpsertOption writes an option keyed by (product_id, variant_label),
	// doing nothing on conflict.
	UpsertOption(ctx context.Context, productID int64, variantLabel, variantID string) error
	// ListOptions returns the authoritative persisted option set for a product.
	ListOptions(ctx context.Context, productID int64) ([]Option, error)
	ListProducts(ctx context.Context) ([]ProductRef, error)
}

// DiscountStore persists discounts, the active-event singleton, and the
// date-range history. Only the discount.Activator may call the event and
// range mutation methods.
type DiscountStore interface {
	// UpsertDiscount writes a discount keyed by event_name, refreshing the
	// percentage on conflict, and returns the persisted row.
	UpsertDiscount(ctx context.Context, eventName string, percentage int) (Discount, error)
	// GetActiveEvent returns the singleton row, or ErrNotFound when none exists.
	GetActiveEvent(ctx context.Context) (ActiveEvent, error)
	// ReplaceActiveEvent atomically swaps the singleton row. A concurrent
	// replacement surfaces as ErrConstraintViolation.
	ReplaceActiveEvent(ctx context.Context, discountID int64, activatedAt time.Time) error
	// CloseOpenDateRange sets end_date on the discount's open range.
	// A missing open range is not an error.
	CloseOpenDateRange(ctx context.Context, discountID int64, endDate time.Time) error
	OpenDateRange(ctx context.Context, discountID int64, startDate time.Time) error
	// ActiveDiscount resolves the active event to its discount row, or
	// ErrNotFound when no event is active.
	ActiveDiscount(ctx context.Context) (Discount, error)
}

// PriceStore persists immutable price observations.
type PriceStore interface {
	InsertPrice(ctx context.Context, optionID, discountID int64, price float64, ts time.Time) (PriceObservation, error)
	ListPrices(ctx context.Context, optionID int64, from, to time.Time) ([]PricePoint, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
