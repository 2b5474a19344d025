package tracker

import "errors"

// Failure kinds surfaced by the scrape and crawl pipelines. Callers match
// with errors.Is; lower layers wrap them with %w to add context.
var (
	// ErrFetchFailed covers network errors and non-2xx responses.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrSchemaMissing means the product page had no embedded product
	// schema block, so variant pricing cannot be recovered.
	ErrSchemaMissing = errors.New("product schema missing")

	// ErrTitleMissing means the product page yielded no title; the scrape
	// is treated as failed rather than recorded as partial data.
	ErrTitleMissing = errors.New("product title missing")

	// ErrNoEventName means the discount banner carried no event code; a
	// discount without an identity cannot be tracked.
	ErrNoEventName = errors.New("no event name in discount banner")

	// ErrConstraintViolation reports a store uniqueness conflict, e.g. two
	// scrapes racing on the active-event singleton.
	ErrConstraintViolation = errors.New("store constraint violation")

	// ErrNotFound reports a missing row for get-by-key reads.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized reports a trigger secret mismatch.
	ErrUnauthorized = errors.New("unauthorized")
)
