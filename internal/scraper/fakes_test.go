package scraper

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

type fakeFetcher struct {
	body    string
	err     error
	delay   time.Duration
	calls   atomic.Int32
	current atomic.Int32
	peak    atomic.Int32
	closed  atomic.Bool
}

func (f *fakeFetcher) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.calls.Add(1)
	n := f.current.Add(1)
	defer f.current.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return crawler.FetchResponse{}, ctx.Err()
		}
	}
	if f.err != nil {
		return crawler.FetchResponse{}, f.err
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(f.body)}, nil
}

func (f *fakeFetcher) Close() error {
	f.closed.Store(true)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakePages struct {
	result crawler.PageResult
	err    error
	calls  atomic.Int32
}

func (f *fakePages) FetchPage(_ context.Context, req crawler.ScrapeRequest) (crawler.PageResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return crawler.PageResult{}, f.err
	}
	res := f.result
	res.Page.URL = req.URL
	return res, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]crawler.Page
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]crawler.Page{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (crawler.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return crawler.Page{}, c.getErr
	}
	page, ok := c.entries[key]
	if !ok {
		return crawler.Page{}, crawler.ErrCacheMiss
	}
	return page, nil
}

func (c *fakeCache) Set(_ context.Context, key string, page crawler.Page, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = page
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *fakeCache) Close() error { return nil }

type fakeHistory struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (h *fakeHistory) RecordPage(_ context.Context, _ crawler.Page, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keys = append(h.keys, key)
	return h.err
}
