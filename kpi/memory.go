package kpi

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/performance-engine/generic"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	targets     map[string]Target
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		definitions: make(map[string]Definition),
		targets:     make(map[string]Target),
	}
}

func (m *MemoryStore) SaveDefinition(_ context.Context, d Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[d.ID] = d
	return nil
}

func (m *MemoryStore) GetDefinition(_ context.Context, tenantID generic.TenantID, id string) (Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.definitions[id]
	if !ok || d.TenantID != tenantID {
		return Definition{}, generic.NotFound("kpi definition", id)
	}
	return d, nil
}

func (m *MemoryStore) ListDefinitions(_ context.Context, tenantID generic.TenantID) ([]Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Definition
	for _, d := range m.definitions {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SaveTarget(_ context.Context, t Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[t.ID] = t
	return nil
}

func (m *MemoryStore) GetTarget(_ context.Context, tenantID generic.TenantID, id string) (Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok || t.TenantID != tenantID {
		return Target{}, generic.NotFound("target", id)
	}
	return t, nil
}

func (m *MemoryStore) ListTargets(_ context.Context, f TargetFilter) ([]Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Target
	for _, t := range m.targets {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].KpiID < out[j].KpiID
	})
	return out, nil
}
