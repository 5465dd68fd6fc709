package sqlite

import (
	"context"

	"github.com/warp/performance-engine/achievement"
	"github.com/warp/performance-engine/generic"
)

// =============================================================================
// ACHIEVEMENT STORE (achievement.Store interface)
// =============================================================================

type achievementStore struct{ *Store }

func (s *Store) Achievements() achievement.Store { return achievementStore{s} }

func (s achievementStore) SaveDefinition(ctx context.Context, d achievement.Definition) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO achievements (id, tenant_id, code, sort_order, data_json) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			sort_order = excluded.sort_order,
			data_json = excluded.data_json
	`, d.ID, d.TenantID, d.Code, d.SortOrder, data)
	return err
}

func (s achievementStore) GetDefinition(ctx context.Context, tenantID generic.TenantID, id string) (achievement.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok, err := getDoc[achievement.Definition](ctx, s.db,
		"SELECT data_json FROM achievements WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return achievement.Definition{}, err
	}
	if !ok {
		return achievement.Definition{}, generic.NotFound("achievement", id)
	}
	return d, nil
}

func (s achievementStore) ListDefinitions(ctx context.Context, tenantID generic.TenantID) ([]achievement.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[achievement.Definition](ctx, s.db,
		"SELECT data_json FROM achievements WHERE tenant_id = ? ORDER BY sort_order, code", tenantID)
}

func (s achievementStore) GetUserAchievement(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, achievementID string) (achievement.UserAchievement, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getDoc[achievement.UserAchievement](ctx, s.db,
		"SELECT data_json FROM user_achievements WHERE tenant_id = ? AND user_id = ? AND achievement_id = ?",
		tenantID, userID, achievementID)
}

func (s achievementStore) SaveUserAchievement(ctx context.Context, ua achievement.UserAchievement) error {
	data, err := encode(ua)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_achievements (tenant_id, user_id, achievement_id, code, data_json) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id, achievement_id) DO UPDATE SET data_json = excluded.data_json
	`, ua.TenantID, ua.UserID, ua.AchievementID, ua.Code, data)
	return err
}

func (s achievementStore) ListUserAchievements(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]achievement.UserAchievement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[achievement.UserAchievement](ctx, s.db,
		"SELECT data_json FROM user_achievements WHERE tenant_id = ? AND user_id = ? ORDER BY code", tenantID, userID)
}
