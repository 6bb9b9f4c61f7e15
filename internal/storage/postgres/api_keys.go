package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/scrape-engine/internal/hash/sha256"
)

// ValidateAPIKey reports whether key is registered in api_keys and stamps its last use.
// Only digests are stored.
func (s *Store) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used = now() WHERE key_hash = $1`, sha256.Hex(key))
	if err != nil {
		return false, fmt.Errorf("validate api key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreateAPIKey registers a new key.
func (s *Store) CreateAPIKey(ctx context.Context, key, name, description string) error {
	if key == "" || name == "" {
		return fmt.Errorf("create api key: key and name are required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (key_hash, name, description) VALUES ($1, $2, $3)`,
		sha256.Hex(key), name, description,
	)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}
