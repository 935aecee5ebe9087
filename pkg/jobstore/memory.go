package jobstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store, grounded on the teacher's own in-memory
// NoSQL fallback idiom (see the GoCodeAlone workflow pack's MemoryNoSQL) —
// here used for unit tests rather than as a "local mode" production path.
type Memory struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{records: map[string][]byte{}}
}

func (m *Memory) EnsureTable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = map[string][]byte{}
	}
	return nil
}

func (m *Memory) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return cp, nil
}

func (m *Memory) Save(ctx context.Context, key string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(raw))
	copy(cp, raw)
	m.records[key] = cp
	return nil
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
