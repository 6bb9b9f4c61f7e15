// Package crawler holds the types and contracts shared by the scrape engine:
// crawl specifications, job records and their lifecycle, extracted pages, and the
// fetcher, cache, store, and history interfaces the engine is assembled from.
package crawler
