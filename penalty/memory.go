package penalty

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/performance-engine/generic"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	rules     map[string]Rule
	penalties map[string]Penalty
	warnings  []Warning
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:     make(map[string]Rule),
		penalties: make(map[string]Penalty),
	}
}

func (m *MemoryStore) SaveRule(_ context.Context, r Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
	return nil
}

func (m *MemoryStore) GetRule(_ context.Context, tenantID generic.TenantID, id string) (Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok || r.TenantID != tenantID {
		return Rule{}, generic.NotFound("penalty rule", id)
	}
	return r, nil
}

func (m *MemoryStore) ListRules(_ context.Context, tenantID generic.TenantID) ([]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Rule
	for _, r := range m.rules {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) GetPenalty(_ context.Context, tenantID generic.TenantID, id string) (Penalty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.penalties[id]
	if !ok || p.TenantID != tenantID {
		return Penalty{}, generic.NotFound("penalty", id)
	}
	return p, nil
}

func (m *MemoryStore) SavePenalties(_ context.Context, ps ...Penalty) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range ps {
		m.penalties[p.ID] = p
	}
	return nil
}

func (m *MemoryStore) ListPenalties(_ context.Context, f Filter) ([]Penalty, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Penalty
	for _, p := range m.penalties {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TriggeredAt.Equal(out[j].TriggeredAt) {
			return out[i].TriggeredAt.Before(out[j].TriggeredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) SaveWarning(_ context.Context, w Warning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnings = append(m.warnings, w)
	return nil
}

func (m *MemoryStore) ListWarnings(_ context.Context, tenantID generic.TenantID, userID generic.UserID, ruleID string) ([]Warning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Warning
	for _, w := range m.warnings {
		if w.TenantID != tenantID || w.UserID != userID {
			continue
		}
		if ruleID != "" && w.RuleID != ruleID {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}
