package sqlite

import (
	"context"
	"sort"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/kpi"
)

// =============================================================================
// KPI STORE (kpi.Store interface)
// =============================================================================

type kpiStore struct{ *Store }

func (s *Store) KPI() kpi.Store { return kpiStore{s} }

func (s kpiStore) SaveDefinition(ctx context.Context, d kpi.Definition) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kpi_definitions (id, tenant_id, data_json) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json
	`, d.ID, d.TenantID, data)
	return err
}

func (s kpiStore) GetDefinition(ctx context.Context, tenantID generic.TenantID, id string) (kpi.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok, err := getDoc[kpi.Definition](ctx, s.db,
		"SELECT data_json FROM kpi_definitions WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return kpi.Definition{}, err
	}
	if !ok {
		return kpi.Definition{}, generic.NotFound("kpi definition", id)
	}
	return d, nil
}

func (s kpiStore) ListDefinitions(ctx context.Context, tenantID generic.TenantID) ([]kpi.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[kpi.Definition](ctx, s.db,
		"SELECT data_json FROM kpi_definitions WHERE tenant_id = ? ORDER BY id", tenantID)
}

func (s kpiStore) SaveTarget(ctx context.Context, t kpi.Target) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kpi_targets (id, tenant_id, user_id, kpi_id, period_type, period_start, status, data_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			data_json = excluded.data_json
	`, t.ID, t.TenantID, t.UserID, t.KpiID, t.Period.Type, dateText(t.Period.Start), t.Status, data)
	if isUniqueConstraintError(err) {
		return &generic.PreconditionError{
			Entity: "target", ID: t.ID, State: "duplicate", Action: "save",
			Reason: "a live target already exists for " + string(t.UserID) + " in " + t.Period.Key(),
		}
	}
	return err
}

func (s kpiStore) GetTarget(ctx context.Context, tenantID generic.TenantID, id string) (kpi.Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok, err := getDoc[kpi.Target](ctx, s.db,
		"SELECT data_json FROM kpi_targets WHERE tenant_id = ? AND id = ?", tenantID, id)
	if err != nil {
		return kpi.Target{}, err
	}
	if !ok {
		return kpi.Target{}, generic.NotFound("target", id)
	}
	return t, nil
}

// ListTargets narrows by tenant and period in SQL; the filter decides the rest.
func (s kpiStore) ListTargets(ctx context.Context, f kpi.TargetFilter) ([]kpi.Target, error) {
	query := "SELECT data_json FROM kpi_targets WHERE tenant_id = ?"
	args := []any{f.TenantID}
	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.PeriodType != "" {
		query += " AND period_type = ?"
		args = append(args, f.PeriodType)
	}
	if f.PeriodStart != nil {
		query += " AND period_start = ?"
		args = append(args, dateText(*f.PeriodStart))
	}

	s.mu.RLock()
	all, err := queryDocs[kpi.Target](ctx, s.db, query, args...)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var out []kpi.Target
	for _, t := range all {
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
