package sqlite

import (
	"context"
	"time"

	"github.com/warp/performance-engine/engine"
	"github.com/warp/performance-engine/generic"
)

// =============================================================================
// MEMBERS (engine.Directory interface)
// =============================================================================

// SaveMember adds the user to the tenant roster or updates their role.
func (s *Store) SaveMember(ctx context.Context, tenantID generic.TenantID, m engine.Member) error {
	if m.UserID == "" {
		return generic.Invalid("user_id", "required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (tenant_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id) DO UPDATE SET role = excluded.role
	`, tenantID, m.UserID, m.Role, timestamp(time.Now()))
	return err
}

func (s *Store) RemoveMember(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE tenant_id = ? AND user_id = ?`, tenantID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFound("member", string(userID))
	}
	return nil
}

// Members lists the roster ordered by user id.
func (s *Store) Members(ctx context.Context, tenantID generic.TenantID) ([]engine.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role FROM members WHERE tenant_id = ? ORDER BY user_id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Member
	for rows.Next() {
		var m engine.Member
		if err := rows.Scan(&m.UserID, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// ACTIVITY FACTS (engine.ActivityFacts interface)
// =============================================================================

// RecordFact stores the user's metric value for one day. Recording the same
// day again replaces the value; collaborators report totals, not deltas.
func (s *Store) RecordFact(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, metric string, day generic.TimePoint, value float64) error {
	switch {
	case userID == "":
		return generic.Invalid("user_id", "required")
	case metric == "":
		return generic.Invalid("metric", "required")
	case day.IsZero():
		return generic.Invalid("date", "required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_facts (tenant_id, user_id, metric, day, value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id, metric, day) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, tenantID, userID, metric, dateText(day), value, timestamp(time.Now()))
	return err
}

// Value sums the metric over [from, to], both days inclusive. A zero from
// reads from the first recorded day.
func (s *Store) Value(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, metric string, from, to generic.TimePoint) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lower := "0000-01-01"
	if !from.IsZero() {
		lower = dateText(from)
	}
	var total float64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(value), 0) FROM activity_facts
		WHERE tenant_id = ? AND user_id = ? AND metric = ? AND day BETWEEN ? AND ?
	`, tenantID, userID, metric, lower, dateText(to)).Scan(&total)
	return total, err
}
