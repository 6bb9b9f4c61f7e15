package crawler

import (
	"context"
	"time"
)

// JobStore holds job records for the lifetime of a crawl.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errText string) error
	RecordPage(ctx context.Context, jobID string, page Page) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	DeleteJob(ctx context.Context, jobID string) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageFetcher performs one gated fetch and extracts a Page from it. Failures are
// returned as *FetchError.
type PageFetcher interface {
	FetchPage(ctx context.Context, request ScrapeRequest) (PageResult, error)
}

// Cache is the key/value store with TTL consulted before fetching.
type Cache interface {
	Get(ctx context.Context, key string) (Page, error)
	Set(ctx context.Context, key string, page Page, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// HistoryStore persists successfully scraped pages.
type HistoryStore interface {
	RecordPage(ctx context.Context, page Page, cacheKey string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
