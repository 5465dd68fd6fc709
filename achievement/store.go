package achievement

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/performance-engine/generic"
)

type Store interface {
	SaveDefinition(ctx context.Context, d Definition) error
	GetDefinition(ctx context.Context, tenantID generic.TenantID, id string) (Definition, error)
	ListDefinitions(ctx context.Context, tenantID generic.TenantID) ([]Definition, error)

	GetUserAchievement(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, achievementID string) (UserAchievement, bool, error)
	SaveUserAchievement(ctx context.Context, ua UserAchievement) error
	ListUserAchievements(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]UserAchievement, error)
}

type uaKey struct {
	TenantID      generic.TenantID
	UserID        generic.UserID
	AchievementID string
}

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	definitions map[string]Definition
	awards      map[uaKey]UserAchievement
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		definitions: make(map[string]Definition),
		awards:      make(map[uaKey]UserAchievement),
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
		return Definition{}, generic.NotFound("achievement", id)
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
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (m *MemoryStore) GetUserAchievement(_ context.Context, tenantID generic.TenantID, userID generic.UserID, achievementID string) (UserAchievement, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ua, ok := m.awards[uaKey{tenantID, userID, achievementID}]
	return ua, ok, nil
}

func (m *MemoryStore) SaveUserAchievement(_ context.Context, ua UserAchievement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.awards[uaKey{ua.TenantID, ua.UserID, ua.AchievementID}] = ua
	return nil
}

func (m *MemoryStore) ListUserAchievements(_ context.Context, tenantID generic.TenantID, userID generic.UserID) ([]UserAchievement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []UserAchievement
	for k, ua := range m.awards {
		if k.TenantID == tenantID && k.UserID == userID {
			out = append(out, ua)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
