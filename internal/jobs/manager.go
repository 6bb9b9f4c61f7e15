// Package jobs runs crawl jobs in the background and tracks their lifecycle.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
	"github.com/JakeFAU/scrape-engine/internal/metrics"
	"github.com/JakeFAU/scrape-engine/internal/scraper"
)

// DefaultMaxPages applies when a spec leaves max_pages unset.
const DefaultMaxPages = 10

var (
	// ErrClosed is returned by Create once Close has been called.
	ErrClosed = errors.New("job manager closed")
	// ErrInvalidSpec wraps crawl spec validation failures.
	ErrInvalidSpec = errors.New("invalid crawl spec")

	errShuttingDown = errors.New("engine shutting down")
)

// Config holds manager defaults.
type Config struct {
	DefaultMaxPages int
	CacheTTL        time.Duration
}

// Dependencies wires the manager's collaborators. Cache and History may be nil.
type Dependencies struct {
	Store   crawler.JobStore
	Pages   crawler.PageFetcher
	Cache   crawler.Cache
	History crawler.HistoryStore
	IDs     crawler.IDGenerator
	Clock   crawler.Clock
	Logger  *zap.Logger
}

// Manager creates crawl jobs and runs each one in its own goroutine. Pages within a job
// are fetched one at a time; concurrency across jobs is bounded by the page fetcher.
type Manager struct {
	cfg     Config
	store   crawler.JobStore
	pages   crawler.PageFetcher
	cache   crawler.Cache
	history crawler.HistoryStore
	ids     crawler.IDGenerator
	clock   crawler.Clock
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewManager validates deps and builds a Manager.
func NewManager(cfg Config, deps Dependencies) (*Manager, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("job store is required")
	case deps.Pages == nil:
		return nil, errors.New("page fetcher is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	}
	if cfg.DefaultMaxPages <= 0 {
		cfg.DefaultMaxPages = DefaultMaxPages
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = scraper.DefaultCacheTTL
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		store:   deps.Store,
		pages:   deps.Pages,
		cache:   deps.Cache,
		history: deps.History,
		ids:     deps.IDs,
		clock:   deps.Clock,
		logger:  deps.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Create registers a pending job for spec and starts crawling it in the background.
// It returns as soon as the job is stored.
func (m *Manager) Create(ctx context.Context, spec crawler.CrawlSpec) (string, error) {
	spec, err := m.normalize(spec)
	if err != nil {
		return "", err
	}
	id, err := m.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("allocate job id: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	job := crawler.Job{
		ID:         id,
		Status:     crawler.JobStatusPending,
		TotalPages: spec.MaxPages,
		Results:    []crawler.Page{},
		Spec:       spec,
		Submitted:  m.clock.Now(),
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("store job: %w", err)
	}
	m.wg.Add(1)
	go m.run(id, spec)

	m.logger.Info("crawl job created",
		zap.String("job_id", id),
		zap.String("url", spec.StartURL),
		zap.Int("max_pages", spec.MaxPages),
		zap.Bool("render_js", spec.RenderJS),
		zap.Bool("follow_links", spec.FollowLinks),
	)
	return id, nil
}

// Status returns a snapshot of the job or crawler.ErrJobNotFound.
func (m *Manager) Status(ctx context.Context, id string) (crawler.Job, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return crawler.Job{}, fmt.Errorf("job status: %w", err)
	}
	return job, nil
}

// Dispose forgets the job. Callers are expected to dispose only after observing a
// terminal status; disposing a running job discards its record while the crawl goroutine
// keeps running until its next registry write fails.
func (m *Manager) Dispose(ctx context.Context, id string) error {
	if err := m.store.DeleteJob(ctx, id); err != nil {
		return fmt.Errorf("dispose job: %w", err)
	}
	m.logger.Debug("crawl job disposed", zap.String("job_id", id))
	return nil
}

// Close stops accepting jobs, interrupts running crawls and waits for them to record
// their final status, bounded by ctx.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for crawl jobs: %w", ctx.Err())
	}
}

func (m *Manager) normalize(spec crawler.CrawlSpec) (crawler.CrawlSpec, error) {
	if err := crawler.ValidateAbsoluteURL(spec.StartURL); err != nil {
		return spec, fmt.Errorf("%w: start_url: %w", ErrInvalidSpec, err)
	}
	if spec.MaxPages < 0 {
		return spec, fmt.Errorf("%w: max_pages must be >= 1", ErrInvalidSpec)
	}
	if spec.MaxPages == 0 {
		spec.MaxPages = m.cfg.DefaultMaxPages
	}
	if spec.OutputFormat == "" {
		spec.OutputFormat = crawler.OutputJSON
	}
	if !spec.OutputFormat.Valid() {
		return spec, fmt.Errorf("%w: unknown output_format %q", ErrInvalidSpec, spec.OutputFormat)
	}
	return spec, nil
}

func (m *Manager) run(id string, spec crawler.CrawlSpec) {
	defer m.wg.Done()
	// Registry writes must land even while shutting down.
	storeCtx := context.WithoutCancel(m.ctx)
	logger := m.logger.With(zap.String("job_id", id))

	if err := m.store.UpdateJobStatus(storeCtx, id, crawler.JobStatusRunning, ""); err != nil {
		logger.Error("mark job running", zap.Error(err))
		return
	}
	logger.Info("crawl job running")

	status, errText := crawler.JobStatusCompleted, ""
	if err := m.crawl(m.ctx, storeCtx, id, spec, logger); err != nil {
		status, errText = crawler.JobStatusFailed, err.Error()
		logger.Error("crawl job failed", zap.Error(err))
	}
	if err := m.store.UpdateJobStatus(storeCtx, id, status, errText); err != nil {
		logger.Error("record final job status", zap.String("status", string(status)), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(status))
	logger.Info("crawl job finished", zap.String("status", string(status)))
}

// crawl walks the frontier. Only loop-level problems are returned; page failures are
// logged and skipped.
func (m *Manager) crawl(ctx, storeCtx context.Context, id string, spec crawler.CrawlSpec, logger *zap.Logger) error {
	exclude, err := crawler.CompileExcludePatterns(spec.ExcludePatterns)
	if err != nil {
		return err
	}

	f := newFrontier(spec.StartURL)
	visited := make(map[string]struct{})
	for f.Len() > 0 && len(visited) < spec.MaxPages {
		if ctx.Err() != nil {
			return errShuttingDown
		}
		url := f.Pop()
		if _, seen := visited[urlKey(url)]; seen {
			continue
		}
		if exclude.Match(url) {
			logger.Debug("url excluded", zap.String("url", url))
			continue
		}

		request := crawler.ScrapeRequest{URL: url, RenderJS: spec.RenderJS, Selectors: spec.Selectors}
		result, err := m.pages.FetchPage(ctx, request)
		if err != nil {
			if ctx.Err() != nil {
				return errShuttingDown
			}
			logPageFailure(logger, url, err)
			continue
		}

		if err := m.store.RecordPage(storeCtx, id, result.Page); err != nil {
			return fmt.Errorf("record page %s: %w", url, err)
		}
		visited[urlKey(url)] = struct{}{}

		key := crawler.CacheKey(url, spec.RenderJS, spec.Selectors)
		scraper.Store(storeCtx, m.cache, key, result.Page, m.cfg.CacheTTL, logger)
		scraper.Record(storeCtx, m.history, key, result.Page, logger)

		if spec.FollowLinks {
			enqueueLinks(f, result.Links, spec, exclude)
		}
	}
	return nil
}

func enqueueLinks(f *frontier, links []string, spec crawler.CrawlSpec, exclude *crawler.ExcludeMatcher) {
	for _, link := range links {
		if !crawler.DomainAllowed(link, spec.AllowedDomains) || exclude.Match(link) {
			continue
		}
		f.Push(link)
	}
}

func logPageFailure(logger *zap.Logger, url string, err error) {
	var fetchErr *crawler.FetchError
	if errors.As(err, &fetchErr) {
		logger.Warn("page fetch failed",
			zap.String("url", url),
			zap.String("kind", string(fetchErr.Kind)),
			zap.Error(fetchErr.Err),
		)
		return
	}
	logger.Warn("page fetch failed", zap.String("url", url), zap.Error(err))
}
