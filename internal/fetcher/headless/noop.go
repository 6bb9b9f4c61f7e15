package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

// ErrNotConfigured is returned when rendering is requested but headless browsing is
// disabled.
var ErrNotConfigured = errors.New("headless fetcher not configured")

// Noop implements Fetcher but always returns ErrNotConfigured.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns ErrNotConfigured.
func (Noop) Fetch(_ context.Context, _ crawler.FetchRequest) (crawler.FetchResponse, error) {
	return crawler.FetchResponse{}, ErrNotConfigured
}

// Close is a no-op.
func (Noop) Close() error { return nil }
