package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/performance-engine/generic"
)

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendTx(ctx, s.db, tx)
}

func (s *Store) appendTx(ctx context.Context, db execer, tx generic.Transaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)
	createdAt := tx.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO transactions
		(id, tenant_id, user_id, effective_at, delta_value, delta_unit, tx_type,
		 source, source_id, reason, balance_after, idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.TenantID,
		tx.UserID,
		timestamp(tx.EffectiveAt.Time),
		tx.Delta.Value.String(),
		tx.Delta.Unit,
		tx.Type,
		tx.Source,
		tx.SourceID,
		tx.Reason,
		tx.BalanceAfter.Value.String(),
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		tx.CreatedBy,
		timestamp(createdAt),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(sqlTx *sql.Tx) error {
		return s.appendAll(ctx, sqlTx, txs)
	})
}

func (s *Store) appendAll(ctx context.Context, db execer, txs []generic.Transaction) error {
	// Check for duplicate idempotency keys within the batch first
	idempotencyKeys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			k := string(tx.TenantID) + "\x00" + tx.IdempotencyKey
			if idempotencyKeys[k] {
				return generic.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[k] = true
		}
	}
	for _, tx := range txs {
		if err := s.appendTx(ctx, db, tx); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs fn in a database transaction. Callers hold s.mu.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

const txColumns = `id, tenant_id, user_id, effective_at, delta_value, delta_unit, tx_type,
	source, source_id, reason, balance_after, idempotency_key, metadata_json, created_by, created_at`

// Load returns all transactions for a user, oldest first.
func (s *Store) Load(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + txColumns + `
		FROM transactions
		WHERE tenant_id = ? AND user_id = ?
		ORDER BY effective_at ASC, rowid ASC
	`

	return s.queryTransactions(ctx, query, tenantID, userID)
}

// LoadRange returns transactions in a time range.
func (s *Store) LoadRange(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + txColumns + `
		FROM transactions
		WHERE tenant_id = ? AND user_id = ?
		  AND substr(effective_at, 1, 10) BETWEEN ? AND ?
		ORDER BY effective_at ASC, rowid ASC
	`

	return s.queryTransactions(ctx, query, tenantID, userID, dateText(from), dateText(to))
}

// Exists checks if the tenant already used an idempotency key.
func (s *Store) Exists(ctx context.Context, tenantID generic.TenantID, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE tenant_id = ? AND idempotency_key = ?",
		tenantID, idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		effectiveAt    string
		deltaValue     string
		deltaUnit      string
		source         sql.NullString
		sourceID       sql.NullString
		reason         sql.NullString
		balanceAfter   string
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.TenantID, &tx.UserID, &effectiveAt, &deltaValue, &deltaUnit, &tx.Type,
		&source, &sourceID, &reason, &balanceAfter, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	t, _ := time.Parse(tsLayout, effectiveAt)
	tx.EffectiveAt = generic.InstantOf(t)
	tx.Delta = parseAmount(deltaValue, deltaUnit)
	tx.BalanceAfter = parseAmount(balanceAfter, deltaUnit)
	tx.Source = source.String
	tx.SourceID = sourceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	c, _ := time.Parse(tsLayout, createdAt)
	tx.CreatedAt = generic.InstantOf(c)

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata)
	}

	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(sqlTx *sql.Tx) error {
		return fn(&txStore{tx: sqlTx, parent: s})
	})
}

// txStore reads through the open transaction so uncommitted appends are
// visible to fn.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Append(ctx context.Context, tx generic.Transaction) error {
	return ts.parent.appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	return ts.parent.appendAll(ctx, ts.tx, txs)
}

func (ts *txStore) Load(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]generic.Transaction, error) {
	return ts.query(ctx, `SELECT `+txColumns+` FROM transactions
		WHERE tenant_id = ? AND user_id = ? ORDER BY effective_at ASC, rowid ASC`, tenantID, userID)
}

func (ts *txStore) LoadRange(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	return ts.query(ctx, `SELECT `+txColumns+` FROM transactions
		WHERE tenant_id = ? AND user_id = ? AND substr(effective_at, 1, 10) BETWEEN ? AND ?
		ORDER BY effective_at ASC, rowid ASC`, tenantID, userID, dateText(from), dateText(to))
}

func (ts *txStore) Exists(ctx context.Context, tenantID generic.TenantID, idempotencyKey string) (bool, error) {
	var count int
	err := ts.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE tenant_id = ? AND idempotency_key = ?",
		tenantID, idempotencyKey).Scan(&count)
	return count > 0, err
}

func (ts *txStore) query(ctx context.Context, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := ts.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
