package discount

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/priceloom/priceloom/internal/metrics"
	"github.com/priceloom/priceloom/internal/tracker"
)

// Activator is the single writer for the active-event singleton and the
// discount date-range history. No other component mutates either.
//
// Invariants it maintains:
//   - at most one active_event row exists;
//   - per discount, at most one date range is open (end_date null);
//   - re-activating the already-active discount performs no writes.
type Activator struct {
	mu     sync.Mutex
	store  tracker.DiscountStore
	clock  tracker.Clock
	logger *zap.Logger
}

// NewActivator constructs an Activator.
func NewActivator(store tracker.DiscountStore, clock tracker.Clock, logger *zap.Logger) *Activator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Activator{store: store, clock: clock, logger: logger}
}

// Activate makes discountID the active event as of effectiveDate.
//
// In-process callers serialize on the mutex; writers in other processes
// serialize through the store's singleton uniqueness. When a concurrent
// writer wins the race, the resulting ErrConstraintViolation triggers a
// re-read: if the desired discount is now active the transition is already
// satisfied and Activate succeeds, otherwise the error propagates.
func (a *Activator) Activate(ctx context.Context, discountID int64, effectiveDate time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.store.GetActiveEvent(ctx)
	switch {
	case err == nil:
		if current.DiscountID == discountID {
			// Re-scrape of an unchanged banner: no writes, no history rows.
			return nil
		}
		if err := a.store.CloseOpenDateRange(ctx, current.DiscountID, effectiveDate); err != nil {
			return fmt.Errorf("close open range for discount %d: %w", current.DiscountID, err)
		}
	case errors.Is(err, tracker.ErrNotFound):
		// First activation ever, nothing to close.
	default:
		return fmt.Errorf("read active event: %w", err)
	}

	if err := a.store.ReplaceActiveEvent(ctx, discountID, a.clock.Now()); err != nil {
		if errors.Is(err, tracker.ErrConstraintViolation) {
			return a.reconcile(ctx, discountID, err)
		}
		return fmt.Errorf("replace active event: %w", err)
	}
	if err := a.store.OpenDateRange(ctx, discountID, effectiveDate); err != nil {
		return fmt.Errorf("open range for discount %d: %w", discountID, err)
	}

	metrics.EventTransition()
	a.logger.Info("active event changed",
		zap.Int64("discount_id", discountID),
		zap.Time("effective_date", effectiveDate),
	)
	return nil
}

// reconcile re-reads state after losing a singleton race. The transition
// counts as done when the concurrent winner activated the same discount.
func (a *Activator) reconcile(ctx context.Context, discountID int64, cause error) error {
	current, err := a.store.GetActiveEvent(ctx)
	if err == nil && current.DiscountID == discountID {
		a.logger.Debug("activation already satisfied by concurrent writer",
			zap.Int64("discount_id", discountID),
		)
		return nil
	}
	return fmt.Errorf("activate discount %d: %w", discountID, cause)
}
