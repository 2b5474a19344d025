// Package discount resolves promotional events from banner text and owns
// the active-event state machine.
package discount

import (
	"context"
	"fmt"

	"github.com/priceloom/priceloom/internal/extract"
	"github.com/priceloom/priceloom/internal/tracker"
)

// Workflow turns scraped banner text into a persisted canonical discount.
type Workflow struct {
	store tracker.DiscountStore
}

// NewWorkflow constructs a Workflow.
func NewWorkflow(store tracker.DiscountStore) *Workflow {
	return &Workflow{store: store}
}

// Resolve parses the banner and upserts the discount keyed by its event
// name, refreshing the percentage on conflict. A banner with no event code
// fails with ErrNoEventName: a discount without an identity cannot be
// tracked, and callers must not activate or price against it.
func (w *Workflow) Resolve(ctx context.Context, bannerText string) (tracker.Discount, error) {
	banner := extract.DiscountBanner(bannerText)
	if banner.EventName == "" {
		return tracker.Discount{}, fmt.Errorf("%w: banner %q", tracker.ErrNoEventName, truncate(bannerText, 80))
	}
	d, err := w.store.UpsertDiscount(ctx, banner.EventName, banner.Percentage)
	if err != nil {
		return tracker.Discount{}, fmt.Errorf("upsert discount %q: %w", banner.EventName, err)
	}
	return d, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
