package leaderboard

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/performance-engine/generic"
)

type Store interface {
	// ReplaceSummaries atomically swaps every summary of the period.
	ReplaceSummaries(ctx context.Context, tenantID generic.TenantID, period generic.Period, summaries []Summary) error
	ListSummaries(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]Summary, error)
	UserSummaries(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, periodType generic.PeriodType) ([]Summary, error)

	SaveEntries(ctx context.Context, tenantID generic.TenantID, period generic.Period, entries []Entry) error
	ListEntries(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]Entry, error)
	AllEntries(ctx context.Context, tenantID generic.TenantID) ([]Entry, error)
}

type periodKey struct {
	TenantID generic.TenantID
	Period   string
}

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu        sync.RWMutex
	summaries map[periodKey][]Summary
	entries   map[periodKey][]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		summaries: make(map[periodKey][]Summary),
		entries:   make(map[periodKey][]Entry),
	}
}

func (m *MemoryStore) ReplaceSummaries(_ context.Context, tenantID generic.TenantID, period generic.Period, summaries []Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[periodKey{tenantID, period.Key()}] = append([]Summary(nil), summaries...)
	return nil
}

func (m *MemoryStore) ListSummaries(_ context.Context, tenantID generic.TenantID, period generic.Period) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]Summary(nil), m.summaries[periodKey{tenantID, period.Key()}]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (m *MemoryStore) UserSummaries(_ context.Context, tenantID generic.TenantID, userID generic.UserID, periodType generic.PeriodType) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Summary
	for k, rows := range m.summaries {
		if k.TenantID != tenantID {
			continue
		}
		for _, s := range rows {
			if s.UserID == userID && s.Period.Type == periodType {
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Start.After(out[j].Period.Start) })
	return out, nil
}

func (m *MemoryStore) SaveEntries(_ context.Context, tenantID generic.TenantID, period generic.Period, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[periodKey{tenantID, period.Key()}] = append([]Entry(nil), entries...)
	return nil
}

func (m *MemoryStore) ListEntries(_ context.Context, tenantID generic.TenantID, period generic.Period) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Entry(nil), m.entries[periodKey{tenantID, period.Key()}]...), nil
}

func (m *MemoryStore) AllEntries(_ context.Context, tenantID generic.TenantID) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for k, rows := range m.entries {
		if k.TenantID == tenantID {
			out = append(out, rows...)
		}
	}
	return out, nil
}
