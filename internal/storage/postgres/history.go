package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

// HistoryEntry is one stored page row.
type HistoryEntry struct {
	ID        int64             `json:"id"`
	URL       string            `json:"url"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Kind      string            `json:"content_kind"`
	Metadata  map[string]string `json:"metadata"`
	ScrapedAt time.Time         `json:"scraped_at"`
	CacheKey  string            `json:"cache_key"`
}

// RecordPage inserts one row for a successfully scraped page. Field-map content is
// stored as its JSON encoding.
func (s *Store) RecordPage(ctx context.Context, page crawler.Page, cacheKey string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("history store is not configured")
	}
	content, err := contentColumn(page.Content)
	if err != nil {
		return err
	}
	metadata := page.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url,
	title,
	content,
	content_kind,
	page_metadata,
	scraped_at,
	cache_key
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)

	args := []any{
		page.URL,
		page.Title,
		content,
		string(page.Content.Kind),
		metaJSON,
		page.Timestamp,
		cacheKey,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// ListHistory returns the most recent rows for url, newest first.
func (s *Store) ListHistory(ctx context.Context, url string, limit, offset int) ([]HistoryEntry, error) {
	query := fmt.Sprintf(`
		SELECT id, url, title, content, content_kind, page_metadata, scraped_at, cache_key
		FROM %s
		WHERE url = $1
		ORDER BY scraped_at DESC
		LIMIT $2 OFFSET $3;
	`, s.table)
	rows, err := s.pool.Query(ctx, query, url, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			entry    HistoryEntry
			metaJSON []byte
		)
		err := rows.Scan(
			&entry.ID,
			&entry.URL,
			&entry.Title,
			&entry.Content,
			&entry.Kind,
			&metaJSON,
			&entry.ScrapedAt,
			&entry.CacheKey,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode history metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

func contentColumn(c crawler.Content) (string, error) {
	if c.Kind != crawler.ContentFields {
		return c.Text, nil
	}
	raw, err := json.Marshal(c.Fields)
	if err != nil {
		return "", fmt.Errorf("marshal field content: %w", err)
	}
	return string(raw), nil
}
