// Package scraper fetches single pages through the shared concurrency gate and turns
// them into page records.
package scraper

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
	"github.com/JakeFAU/scrape-engine/internal/extract"
	"github.com/JakeFAU/scrape-engine/internal/gate"
	"github.com/JakeFAU/scrape-engine/internal/metrics"
)

// Scraper implements crawler.PageFetcher. One Scraper owns one gate; every job and
// single-page scrape issued through it shares that bound.
type Scraper struct {
	gate      *gate.Gate
	static    crawler.Fetcher
	rendered  crawler.Fetcher
	extractor *extract.Extractor
	clock     crawler.Clock
	logger    *zap.Logger
}

// Options wires the collaborators of a Scraper.
type Options struct {
	Gate      *gate.Gate
	Static    crawler.Fetcher
	Rendered  crawler.Fetcher
	Extractor *extract.Extractor
	Clock     crawler.Clock
	Logger    *zap.Logger
}

// New builds a Scraper. Static and Clock are required; a nil Rendered fetcher makes
// every rendered request fail.
func New(opts Options) (*Scraper, error) {
	if opts.Static == nil {
		return nil, errors.New("static fetcher is required")
	}
	if opts.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if opts.Gate == nil {
		opts.Gate = gate.New(gate.DefaultMax, metrics.SetFetchInFlight)
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.New(crawler.ContentModeMarkdown)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Scraper{
		gate:      opts.Gate,
		static:    opts.Static,
		rendered:  opts.Rendered,
		extractor: opts.Extractor,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}, nil
}

// FetchPage fetches request.URL while holding one gate permit and extracts the page.
// Any failure is a *crawler.FetchError.
func (s *Scraper) FetchPage(ctx context.Context, request crawler.ScrapeRequest) (crawler.PageResult, error) {
	var result crawler.PageResult
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		fetcher, kind := s.static, crawler.FetchErrorTransport
		if request.RenderJS {
			fetcher, kind = s.rendered, crawler.FetchErrorRender
		}
		if fetcher == nil {
			return crawler.NewFetchError(request.URL, kind, errors.New("no fetcher configured"))
		}

		resp, err := fetcher.Fetch(ctx, crawler.FetchRequest{URL: request.URL})
		if err != nil {
			return crawler.NewFetchError(request.URL, kind, err)
		}

		body := string(resp.Body)
		base := resp.URL
		if base == "" {
			base = request.URL
		}
		result = crawler.PageResult{
			Page:  s.extractor.Extract(body, request.URL, extract.Options{Selectors: request.Selectors}, s.clock.Now()),
			Links: extract.Links(body, base),
		}
		s.logger.Debug("page fetched",
			zap.String("url", request.URL),
			zap.Bool("render_js", request.RenderJS),
			zap.Int("status", resp.StatusCode),
			zap.Duration("duration", resp.Duration),
		)
		return nil
	})
	if err != nil {
		metrics.ObservePage(request.RenderJS, "error")
		var fetchErr *crawler.FetchError
		if !errors.As(err, &fetchErr) {
			fetchErr = crawler.NewFetchError(request.URL, crawler.FetchErrorTransport, err)
		}
		return crawler.PageResult{}, fetchErr
	}
	metrics.ObservePage(request.RenderJS, "success")
	return result, nil
}

// Close releases the fetchers. The rendered fetcher shuts its browser down if one was
// ever started.
func (s *Scraper) Close() error {
	var errs []error
	for _, f := range []crawler.Fetcher{s.static, s.rendered} {
		switch c := f.(type) {
		case io.Closer:
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		case interface{ Close() }:
			c.Close()
		}
	}
	return errors.Join(errs...)
}
