package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps state in process memory. State is lost on restart and
// is not shared between instances.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryStore creates a MemoryStore. A ttl of zero keeps state until it
// is cleared.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		states: make(map[string]State),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, token string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[token]
	if !ok {
		return nil, nil
	}
	if m.ttl > 0 && m.now().Sub(st.UpdatedAt) > m.ttl {
		delete(m.states, token)
		return nil, nil
	}
	return &st, nil
}

func (m *MemoryStore) Set(_ context.Context, token string, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	cp.UpdatedAt = m.now()
	m.states[token] = cp
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, token)
	return nil
}

// Len returns the number of stored states, including expired ones not yet
// evicted.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}
