package cache

import (
	"context"
	"sync"
)

// MemoryBackend keeps tables in process memory. Contents do not survive a
// restart; it serves development runs and tests.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[Table]map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{tables: make(map[Table]map[string][]byte)}
}

func (m *MemoryBackend) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range Tables {
		if m.tables[t] == nil {
			m.tables[t] = make(map[string][]byte)
		}
	}
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, table Table, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.tables[table][key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryBackend) Put(ctx context.Context, table Table, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tables[table] == nil {
		m.tables[table] = make(map[string][]byte)
	}
	m.tables[table][key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, table Table, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables[table], key)
	return nil
}

func (m *MemoryBackend) Scan(ctx context.Context, table Table) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.tables[table]))
	for k, v := range m.tables[table] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }
