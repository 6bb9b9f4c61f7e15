// Package redis implements the page cache on top of Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "scrape:"

// Cache stores pages as JSON under prefixed keys with a per-entry expiry.
type Cache struct {
	client *redis.Client
	prefix string
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Open parses a redis:// URL, connects, and verifies the server answers PING.
func Open(ctx context.Context, rawURL, prefix string) (*Cache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client, prefix), nil
}

// Get returns the page stored under key or crawler.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) (crawler.Page, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return crawler.Page{}, crawler.ErrCacheMiss
		}
		return crawler.Page{}, fmt.Errorf("redis get: %w", err)
	}
	var page crawler.Page
	if err := json.Unmarshal(val, &page); err != nil {
		return crawler.Page{}, fmt.Errorf("decode cached page: %w", err)
	}
	return page, nil
}

// Set stores page under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, page crawler.Page, ttl time.Duration) error {
	payload, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("encode page: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete invalidates key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks that the server is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the client.
func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
