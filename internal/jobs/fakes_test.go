package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

type sequentialIDs struct{ n atomic.Int64 }

func (g *sequentialIDs) NewID() (string, error) {
	return fmt.Sprintf("job-%d", g.n.Add(1)), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) { return "", errors.New("entropy exhausted") }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// sitePages serves a fixed site map. URLs missing from pages fail with a transport error.
type sitePages struct {
	mu      sync.Mutex
	pages   map[string][]string
	fails   map[string]error
	block   chan struct{}
	fetched map[string]int
}

func newSitePages(pages map[string][]string) *sitePages {
	return &sitePages{pages: pages, fails: map[string]error{}, fetched: map[string]int{}}
}

func (s *sitePages) FetchPage(ctx context.Context, req crawler.ScrapeRequest) (crawler.PageResult, error) {
	s.mu.Lock()
	s.fetched[req.URL]++
	links, ok := s.pages[req.URL]
	failure := s.fails[req.URL]
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return crawler.PageResult{}, crawler.NewFetchError(req.URL, crawler.FetchErrorTransport, ctx.Err())
		}
	}
	if failure != nil {
		return crawler.PageResult{}, crawler.NewFetchError(req.URL, crawler.FetchErrorTransport, failure)
	}
	if !ok {
		return crawler.PageResult{}, crawler.NewFetchError(req.URL, crawler.FetchErrorTransport, errors.New("no such host"))
	}
	return crawler.PageResult{
		Page: crawler.Page{
			URL:      req.URL,
			Title:    "title of " + req.URL,
			Content:  crawler.MarkdownContent("body"),
			Metadata: map[string]string{crawler.MetaDescription: "", crawler.MetaKeywords: ""},
		},
		Links: links,
	}, nil
}

func (s *sitePages) count(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetched[url]
}

func (s *sitePages) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.fetched {
		n += c
	}
	return n
}

type recordingHistory struct {
	mu   sync.Mutex
	keys []string
}

func (h *recordingHistory) RecordPage(_ context.Context, _ crawler.Page, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, key)
	return nil
}

func (h *recordingHistory) recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.keys...)
}

// countingFetcher is a crawler.Fetcher that tracks peak concurrency.
type countingFetcher struct {
	delay   time.Duration
	current atomic.Int32
	peak    atomic.Int32
	calls   atomic.Int32
}

func (f *countingFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.calls.Add(1)
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte("<html><title>t</title></html>")}, nil
}
