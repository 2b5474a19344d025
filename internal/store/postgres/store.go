// Package postgres provides Postgres-backed persistence for the tracker.
//
// Expected schema:
//
//	CREATE TABLE category_urls (
//	    id BIGSERIAL PRIMARY KEY,
//	    url TEXT NOT NULL UNIQUE
//	);
//	CREATE TABLE urls (
//	    url TEXT PRIMARY KEY,
//	    variant_id TEXT NOT NULL,
//	    category_url_id BIGINT,
//	    last_scraped_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE products (
//	    id BIGSERIAL PRIMARY KEY,
//	    name TEXT NOT NULL UNIQUE,
//	    description TEXT NOT NULL DEFAULT '',
//	    source_url TEXT NOT NULL DEFAULT '',
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE product_options (
//	    id BIGSERIAL PRIMARY KEY,
//	    product_id BIGINT NOT NULL REFERENCES products(id),
//	    variant_label TEXT NOT NULL,
//	    variant_id TEXT NOT NULL,
//	    UNIQUE (product_id, variant_label)
//	);
//	CREATE TABLE discounts (
//	    id BIGSERIAL PRIMARY KEY,
//	    event_name TEXT NOT NULL UNIQUE,
//	    discount_percentage INT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE TABLE active_event (
//	    singleton BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (singleton),
//	    discount_id BIGINT NOT NULL REFERENCES discounts(id),
//	    activated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE discount_date_ranges (
//	    id BIGSERIAL PRIMARY KEY,
//	    discount_id BIGINT NOT NULL REFERENCES discounts(id),
//	    start_date TIMESTAMPTZ NOT NULL,
//	    end_date TIMESTAMPTZ
//	);
//	CREATE UNIQUE INDEX one_open_range_per_discount
//	    ON discount_date_ranges (discount_id) WHERE end_date IS NULL;
//	CREATE TABLE prices (
//	    id BIGSERIAL PRIMARY KEY,
//	    option_id BIGINT NOT NULL REFERENCES product_options(id),
//	    discount_id BIGINT NOT NULL REFERENCES discounts(id),
//	    price DOUBLE PRECISION NOT NULL,
//	    timestamp TIMESTAMPTZ NOT NULL
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/priceloom/priceloom/internal/tracker"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the pool surface the store uses. pgxpool.Pool satisfies it in
// production; pgxmock stands in for tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements the tracker store interfaces on Postgres.
type Store struct {
	db DB
}

// New creates a Store with its own pgx pool.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: pool}, nil
}

// NewWithDB constructs a Store from an existing pool (primarily for testing).
func NewWithDB(db DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// mapError translates driver errors into the tracker taxonomy.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", tracker.ErrConstraintViolation, pgErr.ConstraintName)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return tracker.ErrNotFound
	}
	return err
}
