package cart

import (
	"context"
	"sync"
)

// MemoryStorage keeps snapshots in process memory
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string][]byte)}
}

func (m *MemoryStorage) LoadCart(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.data[key]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) SaveCart(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), data...)
	return nil
}

// UpdateCart runs fn under the storage lock, so updates of any key are
// serialized. fn must not call back into the storage.
func (m *MemoryStorage) UpdateCart(_ context.Context, key string, fn func(data []byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current []byte
	if data, ok := m.data[key]; ok {
		current = append([]byte(nil), data...)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	m.data[key] = append([]byte(nil), next...)
	return nil
}
