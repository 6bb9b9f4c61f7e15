// Package uuid generates job identifiers and API key secrets.
package uuid

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 strings.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return id.String(), nil
}

// NewSecret returns an unguessable API key: 64 hex characters taken from two random
// (v4) UUIDs. Job IDs are time ordered and must not be used as secrets.
func NewSecret() (string, error) {
	var buf []byte
	for range 2 {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("generate secret: %w", err)
		}
		buf = append(buf, id[:]...)
	}
	return hex.EncodeToString(buf), nil
}
