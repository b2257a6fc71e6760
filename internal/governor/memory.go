package governor

import (
	"context"
	"sync"
)

// MemorySessionStore 用于测试与 dry-run。
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]State
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]State)}
}

func (m *MemorySessionStore) LoadSession(_ context.Context, userID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[userID]
	if !ok {
		return State{}, ErrSessionNotFound
	}
	return st.clone(), nil
}

func (m *MemorySessionStore) SaveSession(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[st.UserID] = st.clone()
	return nil
}
