package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/priceloom/priceloom/internal/tracker"
)

// UpsertProduct inserts a product or refreshes it by name, returning the
// stored row either way.
func (s *Store) UpsertProduct(ctx context.Context, name, description, sourceURL string, updatedAt time.Time) (tracker.Product, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO products (name, description, source_url, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			source_url = EXCLUDED.source_url,
			updated_at = EXCLUDED.updated_at
		RETURNING id, name, description, source_url, updated_at`,
		name, description, sourceURL, updatedAt)

	var p tracker.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SourceURL, &p.UpdatedAt); err != nil {
		return tracker.Product{}, fmt.Errorf("upsert product %q: %w", name, mapError(err))
	}
	return p, nil
}

// UpsertOption records a product variant. An existing (product, label)
// pair is left untouched.
func (s *Store) UpsertOption(ctx context.Context, productID int64, variantLabel, variantID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO product_options (product_id, variant_label, variant_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, variant_label) DO NOTHING`,
		productID, variantLabel, variantID)
	if err != nil {
		return fmt.Errorf("upsert option %q: %w", variantLabel, mapError(err))
	}
	return nil
}

// ListOptions returns the stored variants of a product.
func (s *Store) ListOptions(ctx context.Context, productID int64) ([]tracker.Option, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, product_id, variant_label, variant_id
		FROM product_options WHERE product_id = $1 ORDER BY id`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", mapError(err))
	}
	defer rows.Close()

	var opts []tracker.Option
	for rows.Next() {
		var o tracker.Option
		if err := rows.Scan(&o.ID, &o.ProductID, &o.VariantLabel, &o.VariantID); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		opts = append(opts, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	return opts, nil
}

// ListProducts returns every tracked product, newest names last.
func (s *Store) ListProducts(ctx context.Context) ([]tracker.ProductRef, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", mapError(err))
	}
	defer rows.Close()

	var refs []tracker.ProductRef
	for rows.Next() {
		var r tracker.ProductRef
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return refs, nil
}
