package statetable

import "sync"

// Memory is an in-process Table guarded by a RWMutex. It satisfies the
// atomic per-key visibility the supervisor assumes of the shared table.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemory constructs an empty in-memory table.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Put(ident string, rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[ident] = rec
}

func (m *Memory) Get(ident string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[ident]
	return rec, ok
}

// Snapshot returns a copy of the table; mutating it does not affect the
// live records.
func (m *Memory) Snapshot() map[string]Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Record, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out
}
