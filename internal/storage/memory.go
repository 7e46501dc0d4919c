package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend keeps documents in process memory
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.docs[key]), nil
}

func (m *MemoryBackend) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = slices.Clone(data)
	return nil
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Close() error { return nil }

// NoneBackend never persists anything; every call fails with ErrPersistenceUnavailable
type NoneBackend struct{}

func (NoneBackend) Load(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrPersistenceUnavailable
}

func (NoneBackend) Save(ctx context.Context, key string, data []byte) error {
	return ErrPersistenceUnavailable
}

func (NoneBackend) Name() string { return "none" }

func (NoneBackend) Close() error { return nil }
