package scraper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
	"github.com/JakeFAU/scrape-engine/internal/gate"
)

const samplePage = `<html><head><title>Example</title><meta name="description" content="d"></head>
<body><h1>Title</h1><a href="/next">next</a></body></html>`

var testNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestScraper(t *testing.T, static, rendered crawler.Fetcher, g *gate.Gate) *Scraper {
	t.Helper()
	s, err := New(Options{Gate: g, Static: static, Rendered: rendered, Clock: fixedClock{testNow}})
	require.NoError(t, err)
	return s
}

func TestNewRequiresStaticAndClock(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Clock: fixedClock{}})
	require.Error(t, err)
	_, err = New(Options{Static: &fakeFetcher{}})
	require.Error(t, err)
}

func TestFetchPage_StaticPath(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{body: samplePage}
	rendered := &fakeFetcher{body: samplePage}
	s := newTestScraper(t, static, rendered, nil)

	res, err := s.FetchPage(context.Background(), crawler.ScrapeRequest{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, "https://example.com", res.Page.URL)
	require.Equal(t, "Example", res.Page.Title)
	require.Equal(t, "d", res.Page.Metadata[crawler.MetaDescription])
	require.Equal(t, testNow, res.Page.Timestamp)
	require.Equal(t, crawler.ContentMarkdown, res.Page.Content.Kind)
	require.Equal(t, []string{"https://example.com/next"}, res.Links)
	require.Equal(t, int32(1), static.calls.Load())
	require.Equal(t, int32(0), rendered.calls.Load())
}

func TestFetchPage_RenderedPathWithSelectors(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{body: samplePage}
	rendered := &fakeFetcher{body: samplePage}
	s := newTestScraper(t, static, rendered, nil)

	res, err := s.FetchPage(context.Background(), crawler.ScrapeRequest{
		URL:       "https://example.com",
		RenderJS:  true,
		Selectors: map[string]string{"headline": "h1"},
	})
	require.NoError(t, err)
	require.Equal(t, map[string][]string{"headline": {"Title"}}, res.Page.Content.Fields)
	require.Equal(t, int32(0), static.calls.Load())
	require.Equal(t, int32(1), rendered.calls.Load())
}

func TestFetchPage_FailuresAreTyped(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		render   bool
		static   crawler.Fetcher
		rendered crawler.Fetcher
		kind     crawler.FetchErrorKind
	}{
		{"transport", false, &fakeFetcher{err: errors.New("connection refused")}, nil, crawler.FetchErrorTransport},
		{"timeout", false, &fakeFetcher{err: context.DeadlineExceeded}, nil, crawler.FetchErrorTimeout},
		{"render", true, &fakeFetcher{}, &fakeFetcher{err: errors.New("crashed")}, crawler.FetchErrorRender},
		{"no renderer", true, &fakeFetcher{}, nil, crawler.FetchErrorRender},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := newTestScraper(t, tc.static, tc.rendered, nil)
			_, err := s.FetchPage(context.Background(), crawler.ScrapeRequest{URL: "https://example.com", RenderJS: tc.render})
			var fetchErr *crawler.FetchError
			require.ErrorAs(t, err, &fetchErr)
			require.Equal(t, tc.kind, fetchErr.Kind)
			require.Equal(t, "https://example.com", fetchErr.URL)
		})
	}
}

func TestFetchPage_GateAcquireCanceled(t *testing.T) {
	t.Parallel()

	g := gate.New(1, nil)
	static := &fakeFetcher{body: samplePage}
	s := newTestScraper(t, static, nil, g)

	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.FetchPage(ctx, crawler.ScrapeRequest{URL: "https://example.com"})
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, crawler.FetchErrorTimeout, fetchErr.Kind)
	require.Equal(t, int32(0), static.calls.Load())
}

func TestFetchPage_SharedGateBoundsInFlight(t *testing.T) {
	t.Parallel()

	const limit = 2
	static := &fakeFetcher{body: samplePage, delay: 10 * time.Millisecond}
	rendered := static
	s := newTestScraper(t, static, rendered, gate.New(limit, nil))

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.FetchPage(context.Background(), crawler.ScrapeRequest{URL: "https://example.com", RenderJS: i%2 == 0})
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(12), static.calls.Load())
	require.LessOrEqual(t, static.peak.Load(), int32(limit))
}

func TestClose(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{}
	rendered := &fakeFetcher{}
	s := newTestScraper(t, static, rendered, nil)
	require.NoError(t, s.Close())
	require.True(t, static.closed.Load())
	require.True(t, rendered.closed.Load())

	require.NoError(t, newTestScraper(t, static, nil, nil).Close())
}
