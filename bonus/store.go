package bonus

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/performance-engine/generic"
)

type Filter struct {
	TenantID generic.TenantID
	UserID   generic.UserID
	Statuses []Status
	Since    *generic.TimePoint // Period.Start >= Since
}

func (f Filter) Matches(c Calculation) bool {
	if c.TenantID != f.TenantID {
		return false
	}
	if f.UserID != "" && c.UserID != f.UserID {
		return false
	}
	if f.Since != nil && c.Period.Start.Before(*f.Since) {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if c.Status == s {
			return true
		}
	}
	return false
}

type Store interface {
	SaveSetting(ctx context.Context, s Setting) error
	GetSetting(ctx context.Context, tenantID generic.TenantID, id string) (Setting, error)
	ListSettings(ctx context.Context, tenantID generic.TenantID) ([]Setting, error)

	SaveCalculation(ctx context.Context, c Calculation) error
	GetCalculation(ctx context.Context, tenantID generic.TenantID, id string) (Calculation, error)
	// FindCalculation looks up the (user, period) row.
	FindCalculation(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, period generic.Period) (Calculation, bool, error)
	// ListCalculations returns matches newest period first.
	ListCalculations(ctx context.Context, f Filter) ([]Calculation, error)
}

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]Setting
	calcs    map[string]Calculation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings: make(map[string]Setting),
		calcs:    make(map[string]Calculation),
	}
}

func (m *MemoryStore) SaveSetting(_ context.Context, s Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSetting(_ context.Context, tenantID generic.TenantID, id string) (Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[id]
	if !ok || s.TenantID != tenantID {
		return Setting{}, generic.NotFound("bonus setting", id)
	}
	return s, nil
}

func (m *MemoryStore) ListSettings(_ context.Context, tenantID generic.TenantID) ([]Setting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Setting
	for _, s := range m.settings {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) SaveCalculation(_ context.Context, c Calculation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calcs[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCalculation(_ context.Context, tenantID generic.TenantID, id string) (Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calcs[id]
	if !ok || c.TenantID != tenantID {
		return Calculation{}, generic.NotFound("bonus", id)
	}
	return c, nil
}

func (m *MemoryStore) FindCalculation(_ context.Context, tenantID generic.TenantID, userID generic.UserID, period generic.Period) (Calculation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.calcs {
		if c.TenantID == tenantID && c.UserID == userID && c.Period.Key() == period.Key() {
			return c, true, nil
		}
	}
	return Calculation{}, false, nil
}

func (m *MemoryStore) ListCalculations(_ context.Context, f Filter) ([]Calculation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Calculation
	for _, c := range m.calcs {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Period.Start.Equal(out[j].Period.Start) {
			return out[i].Period.Start.After(out[j].Period.Start)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
