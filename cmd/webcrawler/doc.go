// Package main hosts the scrape engine service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, single-page scrape, crawl job and history
//     endpoints behind optional API-key auth.
//   - Job manager: internal/jobs.Manager stores each crawl in the in-memory job registry and runs it in its own
//     goroutine, one page at a time, until the frontier is empty or max_pages pages were recorded.
//   - Fetch pipeline: every page fetch goes through internal/scraper, which holds one permit of the shared
//     concurrency gate (crawler.max_concurrency) while fetching statically via Colly or rendering via a lazily
//     started headless Chrome, then extracts title, metadata, content and links with goquery.
//   - Cache & history: pages are cached in Redis (cache.redis_url) or an in-process TTL map, and appended to a
//     Postgres history table when db.dsn is set. Failures there are logged and never fail a scrape.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported at /metrics.
//
// Operational notes:
//   - SIGINT/SIGTERM drains the HTTP server, then stops running crawls, which end failed with
//     "engine shutting down", then closes the browser, cache and database.
//   - Jobs live only in memory and are removed when a poller reads a terminal status or deletes the job.
//
// Quick checklist:
//   - Configure env vars: CRAWLER_SERVER_PORT, CRAWLER_CRAWLER_MAX_CONCURRENCY, CRAWLER_HTTP_TIMEOUT_SECONDS,
//     CRAWLER_HEADLESS_ENABLED, CRAWLER_CACHE_REDIS_URL, CRAWLER_DB_DSN, CRAWLER_AUTH_ENABLED.
//   - Run locally: go run ./cmd/webcrawler -config config.yaml (or rely solely on env overrides).
//   - Issue a key: go run ./cmd/webcrawler -create-api-key ci (requires CRAWLER_DB_DSN).
package main
