package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scrape-engine/internal/clock/system"
	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

func TestPageCacheExpiry(t *testing.T) {
	t.Parallel()

	clock := system.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := NewPageCache(clock)
	ctx := context.Background()
	page := crawler.Page{URL: "https://example.com", Title: "t", Content: crawler.MarkdownContent("# t")}

	_, err := cache.Get(ctx, "k")
	require.ErrorIs(t, err, crawler.ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "k", page, time.Minute))
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, page.Title, got.Title)
	require.Equal(t, crawler.ContentMarkdown, got.Content.Kind)

	clock.Advance(time.Minute)
	_, err = cache.Get(ctx, "k")
	require.ErrorIs(t, err, crawler.ErrCacheMiss)
}

func TestPageCacheIsolationAndDelete(t *testing.T) {
	t.Parallel()

	cache := NewPageCache(nil)
	ctx := context.Background()
	page := crawler.Page{URL: "u", Content: crawler.FieldContent(map[string][]string{"h": {"a"}})}
	require.NoError(t, cache.Set(ctx, "k", page, 0))

	page.Content.Fields["h"][0] = "mutated"
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, got.Content.Fields["h"])

	require.NoError(t, cache.Delete(ctx, "k"))
	_, err = cache.Get(ctx, "k")
	require.ErrorIs(t, err, crawler.ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "k2", page, 0))
	require.NoError(t, cache.Close())
	_, err = cache.Get(ctx, "k2")
	require.ErrorIs(t, err, crawler.ErrCacheMiss)
}

func TestPageCacheSweepsExpiredEntriesOnWrite(t *testing.T) {
	t.Parallel()

	clock := system.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := NewPageCache(clock)
	ctx := context.Background()
	page := crawler.Page{URL: "https://example.com", Content: crawler.TextContent("t")}

	for i := 0; i < 1000; i++ {
		require.NoError(t, cache.Set(ctx, fmt.Sprintf("short-%d", i), page, time.Second))
	}
	require.NoError(t, cache.Set(ctx, "forever", page, 0))
	require.Equal(t, 1001, cache.Len())

	// Writes inside the sweep interval do not sweep.
	clock.Advance(SweepInterval / 2)
	require.NoError(t, cache.Set(ctx, "mid", page, 2*time.Hour))
	require.Equal(t, 1002, cache.Len())

	clock.Advance(time.Hour)
	require.NoError(t, cache.Set(ctx, "fresh", page, time.Hour))
	require.Equal(t, 3, cache.Len())

	_, err := cache.Get(ctx, "short-0")
	require.ErrorIs(t, err, crawler.ErrCacheMiss)
	_, err = cache.Get(ctx, "mid")
	require.NoError(t, err)
	_, err = cache.Get(ctx, "forever")
	require.NoError(t, err)
	_, err = cache.Get(ctx, "fresh")
	require.NoError(t, err)
}
