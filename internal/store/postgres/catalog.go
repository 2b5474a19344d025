package postgres

import (
	"context"
	"fmt"

	"github.com/priceloom/priceloom/internal/tracker"
)

// ListCategoryURLs returns every seeded category listing URL.
func (s *Store) ListCategoryURLs(ctx context.Context) ([]tracker.CategoryURL, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, url FROM category_urls ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list category urls: %w", mapError(err))
	}
	defer rows.Close()

	var cats []tracker.CategoryURL
	for rows.Next() {
		var c tracker.CategoryURL
		if err := rows.Scan(&c.ID, &c.URL); err != nil {
			return nil, fmt.Errorf("scan category url: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list category urls: %w", err)
	}
	return cats, nil
}

// DeleteCategoryURL removes a category URL that no longer resolves.
func (s *Store) DeleteCategoryURL(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM category_urls WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete category url %d: %w", id, mapError(err))
	}
	return nil
}

// UpsertProductURL records a discovered product page, refreshing its
// metadata when the URL is already known.
func (s *Store) UpsertProductURL(ctx context.Context, u tracker.ProductURL) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO urls (url, variant_id, category_url_id, last_scraped_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (url) DO UPDATE SET
			variant_id = EXCLUDED.variant_id,
			category_url_id = EXCLUDED.category_url_id,
			last_scraped_at = EXCLUDED.last_scraped_at`,
		u.URL, u.VariantID, u.CategoryID, u.LastScrapedAt)
	if err != nil {
		return fmt.Errorf("upsert product url: %w", mapError(err))
	}
	return nil
}

// ListProductURLs returns every known product page URL.
func (s *Store) ListProductURLs(ctx context.Context) ([]tracker.ProductURL, error) {
	rows, err := s.db.Query(ctx, `
		SELECT url, variant_id, category_url_id, last_scraped_at
		FROM urls ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("list product urls: %w", mapError(err))
	}
	defer rows.Close()

	var urls []tracker.ProductURL
	for rows.Next() {
		var u tracker.ProductURL
		if err := rows.Scan(&u.URL, &u.VariantID, &u.CategoryID, &u.LastScrapedAt); err != nil {
			return nil, fmt.Errorf("scan product url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list product urls: %w", err)
	}
	return urls, nil
}
