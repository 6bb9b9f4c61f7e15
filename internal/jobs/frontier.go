package jobs

import (
	"net/url"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

// frontier is a FIFO queue of URLs still to visit in one job. A URL is accepted at
// most once for the lifetime of the job, so a page that failed is never retried.
type frontier struct {
	queue []string
	seen  map[string]struct{}
}

func newFrontier(seed string) *frontier {
	f := &frontier{seen: make(map[string]struct{})}
	f.Push(seed)
	return f
}

// Push enqueues raw unless an equivalent URL was already accepted.
func (f *frontier) Push(raw string) bool {
	key := urlKey(raw)
	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = struct{}{}
	f.queue = append(f.queue, raw)
	return true
}

// Pop removes the oldest URL. It must not be called on an empty frontier.
func (f *frontier) Pop() string {
	next := f.queue[0]
	f.queue[0] = ""
	f.queue = f.queue[1:]
	return next
}

func (f *frontier) Len() int {
	return len(f.queue)
}

// urlKey identifies equivalent URLs: scheme and host case, default ports, query order,
// fragments and an empty root path do not matter.
func urlKey(raw string) string {
	normalized, err := crawler.NormalizeURL(raw)
	if err != nil {
		return raw
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return normalized
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
