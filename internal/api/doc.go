// Package api hosts the HTTP server, middleware, and REST handlers of the scrape
// engine. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrape for a single cached page scrape.
//   - POST /v1/crawl, GET and DELETE /v1/crawl/{job_id} for background crawl jobs.
//   - GET /v1/history when a history database is configured.
package api
