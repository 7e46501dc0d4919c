// Package storage persists named JSON collections across process restarts.
//
// A Backend stores opaque documents under string keys. Collection layers a
// typed, JSON-encoded slice on top of a Backend so stores never deal with
// encoding or the concrete persistence medium.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Collection keys
const (
	KeyFavorites         = "stockFavorites"
	KeyComparisonHistory = "comparisonHistory"
)

// SaveTimeout bounds a single Collection.Save
const SaveTimeout = 10 * time.Second

var (
	// ErrPersistenceUnavailable is returned when the backend cannot read or write.
	// Backend errors wrap it so callers can detect any persistence failure with errors.Is.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrCorrupt is returned by Collection.Load when the stored document is not valid JSON
	ErrCorrupt = errors.New("stored collection is corrupt")
)

// Backend stores whole documents under a key
type Backend interface {
	// Load returns the document stored under key, or nil when nothing is stored
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the document stored under key
	Save(ctx context.Context, key string, data []byte) error

	// Name identifies the backend in logs
	Name() string

	Close() error
}

// Collection is a typed JSON array persisted under a single key
type Collection[T any] struct {
	backend Backend
	key     string
}

// NewCollection binds key on backend to element type T
func NewCollection[T any](backend Backend, key string) *Collection[T] {
	return &Collection[T]{backend: backend, key: key}
}

// Key returns the collection's storage key
func (c *Collection[T]) Key() string {
	return c.key
}

// Load reads the stored items. A missing document yields an empty slice.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	data, err := c.backend.Load(ctx, c.key)
	if err != nil {
		return []T{}, err
	}
	if len(data) == 0 {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return []T{}, fmt.Errorf("%w: %s: %w", ErrCorrupt, c.key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Save overwrites the stored document with items. The write is detached from
// ctx cancellation and bounded by SaveTimeout instead: by the time Save runs
// the change is already applied in memory.
func (c *Collection[T]) Save(ctx context.Context, items []T) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SaveTimeout)
	defer cancel()

	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	return c.backend.Save(ctx, c.key, data)
}

// unavailable wraps a backend failure so it matches ErrPersistenceUnavailable
func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrPersistenceUnavailable, op, key, err)
}
