package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/priceloom/priceloom/internal/tracker"
)

// InsertPrice appends one price observation for an option.
func (s *Store) InsertPrice(ctx context.Context, optionID, discountID int64, price float64, ts time.Time) (tracker.PriceObservation, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO prices (option_id, discount_id, price, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		optionID, discountID, price, ts)

	obs := tracker.PriceObservation{
		OptionID:   optionID,
		DiscountID: discountID,
		Price:      price,
		Timestamp:  ts,
	}
	if err := row.Scan(&obs.ID); err != nil {
		return tracker.PriceObservation{}, fmt.Errorf("insert price: %w", mapError(err))
	}
	return obs, nil
}

// ListPrices returns the option's observations within [from, to], each
// joined with the discount in force when it was recorded. The discounted
// price is derived here rather than stored.
func (s *Store) ListPrices(ctx context.Context, optionID int64, from, to time.Time) ([]tracker.PricePoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.price, d.discount_percentage, p.timestamp
		FROM prices p
		JOIN discounts d ON d.id = p.discount_id
		WHERE p.option_id = $1 AND p.timestamp >= $2 AND p.timestamp <= $3
		ORDER BY p.timestamp`,
		optionID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", mapError(err))
	}
	defer rows.Close()

	var points []tracker.PricePoint
	for rows.Next() {
		var pt tracker.PricePoint
		if err := rows.Scan(&pt.ID, &pt.OriginalPrice, &pt.DiscountPercentage, &pt.Timestamp); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		pt.DiscountAmount = pt.OriginalPrice * float64(pt.DiscountPercentage) / 100
		pt.FinalPrice = pt.OriginalPrice - pt.DiscountAmount
		points = append(points, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	return points, nil
}
