package sqlite

import (
	"context"
	"sort"

	"github.com/warp/performance-engine/bonus"
	"github.com/warp/performance-engine/generic"
)

// =============================================================================
// BONUS STORE (bonus.Store interface)
// =============================================================================

type bonusStore struct{ *Store }

func (s *Store) Bonuses() bonus.Store { return bonusStore{s} }

func (s bonusStore) SaveSetting(ctx context.Context, st bonus.Setting) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bonus_settings (id, tenant_id, created_at, data_json) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json
	`, st.ID, st.TenantID, timestamp(st.CreatedAt), data)
	return err
}

func (s bonusStore) GetSetting(ctx context.Context, tenantID generic.TenantID, id string) (bonus.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok, err := getDoc[bonus.Setting](ctx, s.db,
		"SELECT data_json FROM bonus_settings WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return bonus.Setting{}, err
	}
	if !ok {
		return bonus.Setting{}, generic.NotFound("bonus setting", id)
	}
	return st, nil
}

// ListSettings returns settings oldest first.
func (s bonusStore) ListSettings(ctx context.Context, tenantID generic.TenantID) ([]bonus.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[bonus.Setting](ctx, s.db,
		"SELECT data_json FROM bonus_settings WHERE tenant_id = ? ORDER BY created_at, id", tenantID)
}

func (s bonusStore) SaveCalculation(ctx context.Context, c bonus.Calculation) error {
	data, err := encode(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bonus_calculations (id, tenant_id, user_id, period_key, period_start, status, data_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			data_json = excluded.data_json
	`, c.ID, c.TenantID, c.UserID, c.Period.Key(), dateText(c.Period.Start), c.Status, data)
	if isUniqueConstraintError(err) {
		return &generic.PreconditionError{
			Entity: "bonus", ID: c.ID, State: "duplicate", Action: "save",
			Reason: "a calculation already exists for " + string(c.UserID) + " in " + c.Period.Key(),
		}
	}
	return err
}

func (s bonusStore) GetCalculation(ctx context.Context, tenantID generic.TenantID, id string) (bonus.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok, err := getDoc[bonus.Calculation](ctx, s.db,
		"SELECT data_json FROM bonus_calculations WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return bonus.Calculation{}, err
	}
	if !ok {
		return bonus.Calculation{}, generic.NotFound("bonus", id)
	}
	return c, nil
}

func (s bonusStore) FindCalculation(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, period generic.Period) (bonus.Calculation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getDoc[bonus.Calculation](ctx, s.db,
		"SELECT data_json FROM bonus_calculations WHERE tenant_id = ? AND user_id = ? AND period_key = ?",
		tenantID, userID, period.Key())
}

// ListCalculations returns matches newest period first, then by user.
func (s bonusStore) ListCalculations(ctx context.Context, f bonus.Filter) ([]bonus.Calculation, error) {
	query := "SELECT data_json FROM bonus_calculations WHERE tenant_id = ?"
	args := []any{f.TenantID}
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Since != nil {
		query += " AND period_start >= ?"
		args = append(args, dateText(*f.Since))
	}

	s.mu.RLock()
	all, err := queryDocs[bonus.Calculation](ctx, s.db, query, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var out []bonus.Calculation
	for _, c := range all {
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
