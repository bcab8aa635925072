package credstore

import (
	"context"
	"sync"
)

type memoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns a Storage that lives only as long as the process.
func NewMemory() Storage {
	return &memoryStorage{values: make(map[string]string)}
}

func (m *memoryStorage) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryStorage) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}
