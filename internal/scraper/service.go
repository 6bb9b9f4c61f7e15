package scraper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
	"github.com/JakeFAU/scrape-engine/internal/metrics"
)

// DefaultCacheTTL is how long scraped pages stay cached when no TTL is configured.
const DefaultCacheTTL = time.Hour

// Service scrapes single pages, consulting the cache before fetching. Cache and history
// failures are logged and otherwise ignored.
type Service struct {
	pages   crawler.PageFetcher
	cache   crawler.Cache
	history crawler.HistoryStore
	ttl     time.Duration
	logger  *zap.Logger
}

// NewService builds a Service. cache and history may be nil.
func NewService(
	pages crawler.PageFetcher,
	cache crawler.Cache,
	history crawler.HistoryStore,
	ttl time.Duration,
	logger *zap.Logger,
) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{pages: pages, cache: cache, history: history, ttl: ttl, logger: logger}
}

// Scrape returns the page for request, from the cache when present.
func (s *Service) Scrape(ctx context.Context, request crawler.ScrapeRequest) (crawler.Page, error) {
	key := crawler.CacheKey(request.URL, request.RenderJS, request.Selectors)
	if page, ok := Lookup(ctx, s.cache, key, s.logger); ok {
		return page, nil
	}

	result, err := s.pages.FetchPage(ctx, request)
	if err != nil {
		return crawler.Page{}, err
	}
	Store(ctx, s.cache, key, result.Page, s.ttl, s.logger)
	Record(ctx, s.history, key, result.Page, s.logger)
	return result.Page, nil
}

// Lookup reads key from cache, treating every error as a miss.
func Lookup(ctx context.Context, cache crawler.Cache, key string, logger *zap.Logger) (crawler.Page, bool) {
	if cache == nil {
		return crawler.Page{}, false
	}
	page, err := cache.Get(ctx, key)
	switch {
	case err == nil:
		metrics.ObserveCacheLookup(metrics.CacheHit)
		logger.Debug("cache hit", zap.String("key", key))
		return page, true
	case errors.Is(err, crawler.ErrCacheMiss):
		metrics.ObserveCacheLookup(metrics.CacheMiss)
	default:
		metrics.ObserveCacheLookup(metrics.CacheError)
		logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
	}
	return crawler.Page{}, false
}

// Store writes page under key; failures are logged and dropped.
func Store(ctx context.Context, cache crawler.Cache, key string, page crawler.Page, ttl time.Duration, logger *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Set(ctx, key, page, ttl); err != nil {
		logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Record appends page to the scrape history; failures are logged and dropped.
func Record(ctx context.Context, history crawler.HistoryStore, key string, page crawler.Page, logger *zap.Logger) {
	if history == nil {
		return
	}
	if err := history.RecordPage(ctx, page, key); err != nil {
		logger.Warn("history write failed", zap.String("url", page.URL), zap.Error(err))
	}
}
