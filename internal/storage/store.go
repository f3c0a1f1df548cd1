// Package storage is the blob store boundary: opaque bytes keyed by subtitle
// content id, with an explicit not-found signal. Content is written once on
// first successful download and treated as immutable; a rewrite of the same
// key simply replaces bytes.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when no object exists under the key.
// Callers must distinguish it from transport/store errors, which are fatal.
var ErrNotFound = errors.New("object not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, content []byte) error
}

// MemoryStore is a process-local Store, used when no Redis URL is configured
// and throughout the tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), content...), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), content...)
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
