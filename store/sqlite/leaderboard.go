package sqlite

import (
	"context"
	"database/sql"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/leaderboard"
)

// =============================================================================
// LEADERBOARD STORE (leaderboard.Store interface)
// =============================================================================

type leaderboardStore struct{ *Store }

func (s *Store) Leaderboard() leaderboard.Store { return leaderboardStore{s} }

// ReplaceSummaries deletes the period's rows and inserts the new set in
// one transaction.
func (s leaderboardStore) ReplaceSummaries(ctx context.Context, tenantID generic.TenantID, period generic.Period, summaries []leaderboard.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM leaderboard_summaries WHERE tenant_id = ? AND period_key = ?",
			tenantID, period.Key()); err != nil {
			return err
		}
		for _, sm := range summaries {
			data, err := encode(sm)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO leaderboard_summaries (tenant_id, period_key, period_type, period_start, user_id, rank, data_json)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, tenantID, period.Key(), period.Type, dateText(period.Start), sm.UserID, sm.Rank, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s leaderboardStore) ListSummaries(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]leaderboard.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[leaderboard.Summary](ctx, s.db,
		"SELECT data_json FROM leaderboard_summaries WHERE tenant_id = ? AND period_key = ? ORDER BY rank, user_id",
		tenantID, period.Key())
}

func (s leaderboardStore) UserSummaries(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, periodType generic.PeriodType) ([]leaderboard.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[leaderboard.Summary](ctx, s.db, `
		SELECT data_json FROM leaderboard_summaries
		WHERE tenant_id = ? AND user_id = ? AND period_type = ?
		ORDER BY period_start DESC
	`, tenantID, userID, periodType)
}

func (s leaderboardStore) SaveEntries(ctx context.Context, tenantID generic.TenantID, period generic.Period, entries []leaderboard.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM leaderboard_entries WHERE tenant_id = ? AND period_key = ?",
			tenantID, period.Key()); err != nil {
			return err
		}
		for _, e := range entries {
			data, err := encode(e)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO leaderboard_entries (tenant_id, period_key, rank, user_id, data_json) VALUES (?, ?, ?, ?, ?)",
				tenantID, period.Key(), e.Rank, e.UserID, data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s leaderboardStore) ListEntries(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]leaderboard.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[leaderboard.Entry](ctx, s.db,
		"SELECT data_json FROM leaderboard_entries WHERE tenant_id = ? AND period_key = ? ORDER BY rank, user_id",
		tenantID, period.Key())
}

func (s leaderboardStore) AllEntries(ctx context.Context, tenantID generic.TenantID) ([]leaderboard.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[leaderboard.Entry](ctx, s.db,
		"SELECT data_json FROM leaderboard_entries WHERE tenant_id = ? ORDER BY period_key, rank", tenantID)
}
