// Package main hosts the price tracker service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, crawl/scrape triggers and read endpoints. Every /v1
//     route is gated by the shared X-Cron-Secret so only the scheduler (or an operator holding the secret) can
//     trigger work or read tracked data.
//   - Crawler: internal/crawler walks seeded category listing URLs page by page, classifies terminal pages with
//     text heuristics, prunes categories that no longer resolve, and upserts discovered product URLs. Categories
//     are crawled in parallel with a bounded errgroup; one failing category never blocks its siblings.
//   - Scrape pipeline: internal/worker fetches a product page, extracts the product header and the JSON-LD variant
//     schema, upserts product and options, resolves the discount advertised in the strip banner, activates it via
//     the single-active-event state machine, and finally records one price observation per variant tagged with
//     that discount. Batch scrapes admit a fixed-size window of URLs at a time.
//   - Persistence: internal/store/postgres holds all state in Postgres via pgx. Unique-violation errors surface as
//     a sentinel so the discount activator can reconcile concurrent activations instead of failing.
//   - Configuration & plumbing: Viper populates config from env/files (PRICELOOM_* prefix); zap provides
//     structured logging; Prometheus counters/histograms are exported on /metrics; outbound requests go through a
//     per-domain token-bucket rate limiter in front of the Colly fetcher.
//
// Quick checklist:
//   - Configure env vars: PRICELOOM_AUTH_SECRET (required), PRICELOOM_DB_DSN, PRICELOOM_SERVER_PORT,
//     PRICELOOM_CRAWLER_BASE_URL, PRICELOOM_CRAWLER_CONCURRENCY, PRICELOOM_HTTP_TIMEOUT_SECONDS.
//   - Run locally: go run ./cmd/priceloom -config config.yaml (or rely solely on env overrides).
//   - The process listens on the configured port and shuts down cleanly on SIGTERM, draining in-flight requests.
package main
