// Package collyfetcher implements the static retrieval path using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

// DefaultTimeout bounds a single static request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Fetcher on top of one fully configured base collector.
// Each Fetch works on a clone carrying the caller's context, so cancelling the context
// aborts the outbound request before Fetch returns. Redirects are followed; error
// statuses still yield a body, only transport failures and timeouts are errors.
type Fetcher struct {
	base      *colly.Collector
	transport *http.Transport
	timeout   time.Duration
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. The shared HTTP client is configured here once; clones only
// ever read it.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	base := colly.NewCollector(opts...)
	transport := newHTTPTransport()
	base.WithTransport(transport)
	base.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{base: base, transport: transport, timeout: cfg.Timeout}
}

// Fetch executes a single HTTP GET and waits for it to finish or be aborted.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	collector := f.base.Clone()
	collector.Context = ctx

	v := &visit{request: request, start: time.Now()}
	v.attach(collector)

	err := collector.Visit(request.URL)
	switch {
	case ctx.Err() != nil:
		return crawler.FetchResponse{}, fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err != nil:
		return crawler.FetchResponse{}, fmt.Errorf("visit %s: %w", request.URL, err)
	case v.err != nil:
		return crawler.FetchResponse{}, fmt.Errorf("response %s: %w", request.URL, v.err)
	}
	return v.resp, nil
}

// Close releases idle pooled connections.
func (f *Fetcher) Close() {
	f.transport.CloseIdleConnections()
}

// visit collects the outcome of one Fetch from the collector callbacks.
type visit struct {
	request crawler.FetchRequest
	start   time.Time
	resp    crawler.FetchResponse
	err     error
}

func (v *visit) attach(hooks collectorHooks) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range v.request.Headers {
			for _, val := range values {
				r.Headers.Add(key, val)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		v.resp = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(v.start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		v.err = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
