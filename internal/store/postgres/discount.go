package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/priceloom/priceloom/internal/tracker"
)

// UpsertDiscount inserts a discount event or refreshes its percentage,
// returning the stored row.
func (s *Store) UpsertDiscount(ctx context.Context, eventName string, percentage int) (tracker.Discount, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO discounts (event_name, discount_percentage)
		VALUES ($1, $2)
		ON CONFLICT (event_name) DO UPDATE SET
			discount_percentage = EXCLUDED.discount_percentage
		RETURNING id, event_name, discount_percentage, created_at`,
		eventName, percentage)

	var d tracker.Discount
	if err := row.Scan(&d.ID, &d.EventName, &d.Percentage, &d.CreatedAt); err != nil {
		return tracker.Discount{}, fmt.Errorf("upsert discount %q: %w", eventName, mapError(err))
	}
	return d, nil
}

// GetActiveEvent returns the singleton active event, or
// tracker.ErrNotFound when no discount is active.
func (s *Store) GetActiveEvent(ctx context.Context) (tracker.ActiveEvent, error) {
	row := s.db.QueryRow(ctx,
		`SELECT discount_id, activated_at FROM active_event`)

	var ev tracker.ActiveEvent
	if err := row.Scan(&ev.DiscountID, &ev.ActivatedAt); err != nil {
		return tracker.ActiveEvent{}, fmt.Errorf("get active event: %w", mapError(err))
	}
	return ev, nil
}

// ReplaceActiveEvent atomically swaps the active event row for the given
// discount. A concurrent swap surfaces as tracker.ErrConstraintViolation.
func (s *Store) ReplaceActiveEvent(ctx context.Context, discountID int64, activatedAt time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("replace active event: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM active_event`); err != nil {
		return fmt.Errorf("replace active event: clear: %w", mapError(err))
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO active_event (discount_id, activated_at)
		VALUES ($1, $2)`,
		discountID, activatedAt); err != nil {
		return fmt.Errorf("replace active event: insert: %w", mapError(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace active event: commit: %w", mapError(err))
	}
	return nil
}

// CloseOpenDateRange stamps an end date on the discount's open range.
// Having no open range is not an error.
func (s *Store) CloseOpenDateRange(ctx context.Context, discountID int64, endDate time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE discount_date_ranges SET end_date = $2
		WHERE discount_id = $1 AND end_date IS NULL`,
		discountID, endDate)
	if err != nil {
		return fmt.Errorf("close date range: %w", mapError(err))
	}
	return nil
}

// OpenDateRange starts a new open-ended range for the discount. The
// partial unique index rejects a second open range per discount.
func (s *Store) OpenDateRange(ctx context.Context, discountID int64, startDate time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO discount_date_ranges (discount_id, start_date, end_date)
		VALUES ($1, $2, NULL)`,
		discountID, startDate)
	if err != nil {
		return fmt.Errorf("open date range: %w", mapError(err))
	}
	return nil
}

// ActiveDiscount returns the discount the active event points at, or
// tracker.ErrNotFound when nothing is active.
func (s *Store) ActiveDiscount(ctx context.Context) (tracker.Discount, error) {
	row := s.db.QueryRow(ctx, `
		SELECT d.id, d.event_name, d.discount_percentage, d.created_at
		FROM discounts d
		JOIN active_event a ON a.discount_id = d.id`)

	var d tracker.Discount
	if err := row.Scan(&d.ID, &d.EventName, &d.Percentage, &d.CreatedAt); err != nil {
		return tracker.Discount{}, fmt.Errorf("active discount: %w", mapError(err))
	}
	return d, nil
}
