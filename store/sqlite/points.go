package sqlite

import (
	"context"
	"database/sql"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/points"
)

// =============================================================================
// POINTS STORE (points.Store interface)
// =============================================================================

// pointsStore adds the account projection to the ledger methods of Store.
type pointsStore struct{ *Store }

func (s *Store) Points() points.Store { return pointsStore{s} }

func (s pointsStore) GetAccount(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) (points.Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getDoc[points.Account](ctx, s.db,
		"SELECT data_json FROM points_accounts WHERE tenant_id = ? AND user_id = ?", tenantID, userID)
}

func (s pointsStore) ListAccounts(ctx context.Context, tenantID generic.TenantID) ([]points.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryDocs[points.Account](ctx, s.db,
		"SELECT data_json FROM points_accounts WHERE tenant_id = ? ORDER BY user_id", tenantID)
}

// SaveAccount appends txs and writes the account row atomically. A
// duplicate idempotency key rolls back both.
func (s pointsStore) SaveAccount(ctx context.Context, a points.Account, txs []generic.Transaction) error {
	data, err := encode(a)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.appendAll(ctx, tx, txs); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO points_accounts (tenant_id, user_id, data_json) VALUES (?, ?, ?)
			ON CONFLICT(tenant_id, user_id) DO UPDATE SET data_json = excluded.data_json
		`, a.TenantID, a.UserID, data)
		return err
	})
}
