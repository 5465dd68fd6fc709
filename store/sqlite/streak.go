package sqlite

import (
	"context"
	"database/sql"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/streak"
)

// =============================================================================
// STREAK STORE (streak.Store interface)
// =============================================================================

type streakStore struct{ *Store }

func (s *Store) Streaks() streak.Store { return streakStore{s} }

func (s streakStore) GetState(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, streakType string) (streak.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getDoc[streak.State](ctx, s.db,
		"SELECT data_json FROM streak_states WHERE tenant_id = ? AND user_id = ? AND streak_type = ?",
		tenantID, userID, streakType)
}

// SaveState upserts the state and appends its events in one transaction.
func (s streakStore) SaveState(ctx context.Context, st streak.State, events []streak.Event) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO streak_states (id, tenant_id, user_id, streak_type, frozen, data_json)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, user_id, streak_type) DO UPDATE SET
				frozen = excluded.frozen,
				data_json = excluded.data_json
		`, st.ID, st.TenantID, st.UserID, st.Type, st.Frozen, data); err != nil {
			return err
		}
		for _, ev := range events {
			raw, err := encode(ev)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO streak_events (id, streak_id, data_json) VALUES (?, ?, ?)",
				ev.ID, st.ID, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s streakStore) ListUserStates(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]streak.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[streak.State](ctx, s.db,
		"SELECT data_json FROM streak_states WHERE tenant_id = ? AND user_id = ? ORDER BY streak_type",
		tenantID, userID)
}

func (s streakStore) ListFrozen(ctx context.Context, tenantID generic.TenantID) ([]streak.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[streak.State](ctx, s.db,
		"SELECT data_json FROM streak_states WHERE tenant_id = ? AND frozen = TRUE ORDER BY id", tenantID)
}

func (s streakStore) History(ctx context.Context, streakID string) ([]streak.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[streak.Event](ctx, s.db,
		"SELECT data_json FROM streak_events WHERE streak_id = ? ORDER BY seq", streakID)
}
