package store

import (
	"context"
	"sync"
)

// MemoryKV is an in-process KV backend. Used in tests and for local runs
// without Redis or Postgres; contents do not survive a restart.
type MemoryKV struct {
	mu          sync.RWMutex
	collections map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{collections: make(map[string][]byte)}
}

func (m *MemoryKV) Load(_ context.Context, collection string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryKV) Save(_ context.Context, collection string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.collections[collection] = stored
	return nil
}
