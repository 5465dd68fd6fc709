package sqlite

import (
	"context"
	"database/sql"
	"sort"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/penalty"
)

// =============================================================================
// PENALTY STORE (penalty.Store interface)
// =============================================================================

type penaltyStore struct{ *Store }

func (s *Store) Penalties() penalty.Store { return penaltyStore{s} }

func (s penaltyStore) SaveRule(ctx context.Context, r penalty.Rule) error {
	data, err := encode(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO penalty_rules (id, tenant_id, code, data_json) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET code = excluded.code, data_json = excluded.data_json
	`, r.ID, r.TenantID, r.Code, data)
	return err
}

func (s penaltyStore) GetRule(ctx context.Context, tenantID generic.TenantID, id string) (penalty.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok, err := getDoc[penalty.Rule](ctx, s.db,
		"SELECT data_json FROM penalty_rules WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return penalty.Rule{}, err
	}
	if !ok {
		return penalty.Rule{}, generic.NotFound("penalty rule", id)
	}
	return r, nil
}

func (s penaltyStore) ListRules(ctx context.Context, tenantID generic.TenantID) ([]penalty.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[penalty.Rule](ctx, s.db,
		"SELECT data_json FROM penalty_rules WHERE tenant_id = ? ORDER BY code", tenantID)
}

func (s penaltyStore) GetPenalty(ctx context.Context, tenantID generic.TenantID, id string) (penalty.Penalty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok, err := getDoc[penalty.Penalty](ctx, s.db,
		"SELECT data_json FROM penalties WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return penalty.Penalty{}, err
	}
	if !ok {
		return penalty.Penalty{}, generic.NotFound("penalty", id)
	}
	return p, nil
}

// SavePenalties upserts every penalty in one transaction.
func (s penaltyStore) SavePenalties(ctx context.Context, ps ...penalty.Penalty) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range ps {
			data, err := encode(p)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO penalties (id, tenant_id, user_id, rule_id, bonus_id, status, triggered_at, data_json)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					bonus_id = excluded.bonus_id,
					status = excluded.status,
					data_json = excluded.data_json
			`, p.ID, p.TenantID, p.UserID, nullString(p.RuleID), nullString(p.DeductedFromBonusID),
				p.Status, timestamp(p.TriggeredAt), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s penaltyStore) ListPenalties(ctx context.Context, f penalty.Filter) ([]penalty.Penalty, error) {
	query := "SELECT data_json FROM penalties WHERE tenant_id = ?"
	args := []any{f.TenantID}
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.From != nil {
		query += " AND triggered_at >= ?"
		args = append(args, timestamp(*f.From))
	}
	if f.To != nil {
		query += " AND triggered_at < ?"
		args = append(args, timestamp(*f.To))
	}
	query += " ORDER BY triggered_at, id"

	s.mu.RLock()
	all, err := queryDocs[penalty.Penalty](ctx, s.db, query, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var out []penalty.Penalty
	for _, p := range all {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TriggeredAt.Equal(out[j].TriggeredAt) {
			return out[i].TriggeredAt.Before(out[j].TriggeredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s penaltyStore) SaveWarning(ctx context.Context, w penalty.Warning) error {
	data, err := encode(w)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO penalty_warnings (id, tenant_id, user_id, rule_id, data_json) VALUES (?, ?, ?, ?, ?)",
		w.ID, w.TenantID, w.UserID, w.RuleID, data)
	return err
}

// ListWarnings returns warnings in issue order. An empty ruleID lists all rules.
func (s penaltyStore) ListWarnings(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, ruleID string) ([]penalty.Warning, error) {
	query := "SELECT data_json FROM penalty_warnings WHERE tenant_id = ? AND user_id = ?"
	args := []any{tenantID, userID}
	if ruleID != "" {
		query += " AND rule_id = ?"
		args = append(args, ruleID)
	}
	query += " ORDER BY seq"

	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[penalty.Warning](ctx, s.db, query, args...)
}
