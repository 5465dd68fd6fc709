package streak

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/performance-engine/generic"
)

type stateKey struct {
	TenantID generic.TenantID
	UserID   generic.UserID
	Type     string
}

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	states  map[stateKey]State
	history map[string][]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:  make(map[stateKey]State),
		history: make(map[string][]Event),
	}
}

func (m *MemoryStore) GetState(_ context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string) (State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[stateKey{tenantID, userID, streakType}]
	return s, ok, nil
}

func (m *MemoryStore) SaveState(_ context.Context, s State, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[stateKey{s.TenantID, s.UserID, s.Type}] = s
	m.history[s.ID] = append(m.history[s.ID], events...)
	return nil
}

func (m *MemoryStore) ListUserStates(_ context.Context, tenantID generic.TenantID, userID generic.UserID) ([]State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []State
	for k, s := range m.states {
		if k.TenantID == tenantID && k.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (m *MemoryStore) ListFrozen(_ context.Context, tenantID generic.TenantID) ([]State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []State
	for k, s := range m.states {
		if k.TenantID == tenantID && s.Frozen {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) History(_ context.Context, streakID string) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Event(nil), m.history[streakID]...), nil
}
