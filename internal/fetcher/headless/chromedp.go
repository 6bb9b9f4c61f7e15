// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

const (
	defaultNavTimeout  = 45 * time.Second
	defaultIdleTimeout = 30 * time.Second
	lifecycleInit      = "init"
	lifecycleIdle      = "networkIdle"
)

// ErrClosed is returned by Fetch after Close.
var ErrClosed = errors.New("headless browser host closed")

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	// IdleTimeout caps the wait for the network to go quiet; the page is captured
	// anyway once it expires.
	IdleTimeout time.Duration
	SettleMin   time.Duration
	SettleMax   time.Duration
	ExecPath    string
}

// Fetcher implements crawler.Fetcher using chromedp and headless Chrome. The browser
// process is started on the first Fetch and shared by every page; each page gets its
// own browser context so cookies and storage never leak between fetches.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger

	mu            sync.Mutex
	started       bool
	closed        bool
	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc

	// settle picks the post-idle delay; replaced in tests.
	settle func() time.Duration
}

// NewChromedp creates a headless fetcher backed by chromedp. No browser is launched
// until the first Fetch.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.SettleMin < 0 || cfg.SettleMax < 0 {
		return nil, fmt.Errorf("settle delays must be >= 0")
	}
	if cfg.SettleMax < cfg.SettleMin {
		return nil, fmt.Errorf("settle max %s below min %s", cfg.SettleMax, cfg.SettleMin)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{cfg: cfg, logger: logger}
	f.settle = f.randomSettle
	return f, nil
}

// Started reports whether the browser process has been launched.
func (f *Fetcher) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Close shuts the browser down. It is safe to call when the browser was never started
// and safe to call more than once.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	if !f.started {
		return nil
	}
	var err error
	if cerr := chromedp.Cancel(f.browser); cerr != nil && !errors.Is(cerr, context.Canceled) {
		err = fmt.Errorf("close browser: %w", cerr)
	}
	f.browserCancel()
	f.allocCancel()
	f.logger.Info("headless browser stopped")
	return err
}

// Fetch navigates with a headless browser and returns the fully rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	browser, err := f.ensureBrowser()
	if err != nil {
		return crawler.FetchResponse{}, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browser, chromedp.WithNewBrowserContext())
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	idle := newIdleSignal()
	chromedp.ListenTarget(taskCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			meta.capture(e)
		case *page.EventLifecycleEvent:
			idle.observe(e.Name)
		case *page.EventJavascriptDialogOpening:
			go dismissDialog(taskCtx, f.logger, request.URL, e.Type)
		}
	})

	start := time.Now()
	html, finalURL, err := f.runHeadless(taskCtx, request, idle)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.FetchResponse{}, fmt.Errorf("headless fetch canceled: %w", ctxErr)
		}
		return crawler.FetchResponse{}, err
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	if headers == nil {
		headers = http.Header{}
	}

	return crawler.FetchResponse{
		URL:          responseURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (f *Fetcher) ensureBrowser() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	if f.started {
		return f.browser, nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), f.allocatorOptions()...)
	browser, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browser); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start headless browser: %w", err)
	}
	f.allocCancel = allocCancel
	f.browser = browser
	f.browserCancel = browserCancel
	f.started = true
	f.logger.Info("headless browser started")
	return browser, nil
}

func (f *Fetcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	return opts
}

func (f *Fetcher) runHeadless(ctx context.Context, request crawler.FetchRequest, idle *idleSignal) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(request.Headers),
		chromedp.Navigate(request.URL),
		idle.waitAction(f.cfg.IdleTimeout),
		chromedp.Sleep(f.settle()),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) randomSettle() time.Duration {
	lo, hi := f.cfg.SettleMin, f.cfg.SettleMax
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func dismissDialog(ctx context.Context, logger *zap.Logger, url string, kind page.DialogType) {
	if err := chromedp.Run(ctx, page.HandleJavaScriptDialog(false)); err != nil {
		logger.Debug("dismiss dialog failed", zap.String("url", url), zap.Error(err))
		return
	}
	logger.Debug("dialog dismissed", zap.String("url", url), zap.String("dialog", kind.String()))
}

// idleSignal latches once the main frame reports networkIdle for the current
// navigation. A new navigation ("init") clears it.
type idleSignal struct {
	mu   sync.Mutex
	ch   chan struct{}
	done bool
}

func newIdleSignal() *idleSignal {
	return &idleSignal{ch: make(chan struct{})}
}

func (s *idleSignal) observe(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case lifecycleInit:
		if s.done {
			s.ch = make(chan struct{})
			s.done = false
		}
	case lifecycleIdle:
		if !s.done {
			close(s.ch)
			s.done = true
		}
	}
}

func (s *idleSignal) wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func (s *idleSignal) waitAction(limit time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		select {
		case <-s.wait():
			return nil
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait for network idle: %w", ctx.Err())
		}
	})
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.headers.Clone(), m.url
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
