// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/performance-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory ledger (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	transactions map[key][]generic.Transaction
	idempotency  map[idemKey]bool
}

type key struct {
	TenantID generic.TenantID
	UserID   generic.UserID
}

type idemKey struct {
	TenantID generic.TenantID
	Key      string
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[key][]generic.Transaction),
		idempotency:  make(map[idemKey]bool),
	}
}

// Append adds a single transaction. Append-only.
func (m *Memory) Append(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

// AppendBatch adds multiple transactions atomically.
func (m *Memory) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[idemKey]bool, len(txs))
	for _, tx := range txs {
		if tx.IdempotencyKey == "" {
			continue
		}
		ik := idemKey{tx.TenantID, tx.IdempotencyKey}
		if m.idempotency[ik] || seen[ik] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[ik] = true
	}

	for _, tx := range txs {
		if err := m.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) appendLocked(tx generic.Transaction) error {
	ik := idemKey{tx.TenantID, tx.IdempotencyKey}
	if tx.IdempotencyKey != "" && m.idempotency[ik] {
		return generic.ErrDuplicateIdempotencyKey
	}
	k := key{TenantID: tx.TenantID, UserID: tx.UserID}
	txs := m.transactions[k]

	// Insert after every transaction at the same instant so order of append is kept.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].EffectiveAt.After(tx.EffectiveAt)
	})

	txs = append(txs, generic.Transaction{})
	copy(txs[i+1:], txs[i:])
	txs[i] = tx
	m.transactions[k] = txs

	if tx.IdempotencyKey != "" {
		m.idempotency[ik] = true
	}
	return nil
}

func (m *Memory) Load(_ context.Context, tenantID generic.TenantID, userID generic.UserID) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(tenantID, userID), nil
}

func (m *Memory) loadLocked(tenantID generic.TenantID, userID generic.UserID) []generic.Transaction {
	k := key{TenantID: tenantID, UserID: userID}
	result := make([]generic.Transaction, len(m.transactions[k]))
	copy(result, m.transactions[k])
	return result
}

func (m *Memory) LoadRange(_ context.Context, tenantID generic.TenantID, userID generic.UserID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rangeLocked(tenantID, userID, from, to), nil
}

func (m *Memory) rangeLocked(tenantID generic.TenantID, userID generic.UserID, from, to generic.TimePoint) []generic.Transaction {
	k := key{TenantID: tenantID, UserID: userID}
	var result []generic.Transaction
	for _, tx := range m.transactions[k] {
		day := tx.EffectiveAt.Date()
		if from.Date().BeforeOrEqual(day) && day.BeforeOrEqual(to.Date()) {
			result = append(result, tx)
		}
	}
	return result
}

func (m *Memory) Exists(_ context.Context, tenantID generic.TenantID, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idemKey{tenantID, idempotencyKey}], nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	txsCopy := make(map[key][]generic.Transaction, len(tm.transactions))
	for k, v := range tm.transactions {
		txsCopy[k] = append([]generic.Transaction{}, v...)
	}
	idempCopy := make(map[idemKey]bool, len(tm.idempotency))
	for k, v := range tm.idempotency {
		idempCopy[k] = v
	}
	return memorySnapshot{transactions: txsCopy, idempotency: idempCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.transactions = s.transactions
	tm.idempotency = s.idempotency
}

type memorySnapshot struct {
	transactions map[key][]generic.Transaction
	idempotency  map[idemKey]bool
}

// txMemoryView runs with the parent's write lock already held.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Append(_ context.Context, tx generic.Transaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txMemoryView) AppendBatch(_ context.Context, txs []generic.Transaction) error {
	for _, tx := range txs {
		if err := tv.parent.appendLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (tv *txMemoryView) Load(_ context.Context, tenantID generic.TenantID, userID generic.UserID) ([]generic.Transaction, error) {
	return tv.parent.loadLocked(tenantID, userID), nil
}

func (tv *txMemoryView) LoadRange(_ context.Context, tenantID generic.TenantID, userID generic.UserID, from, to generic.TimePoint) ([]generic.Transaction, error) {
	return tv.parent.rangeLocked(tenantID, userID, from, to), nil
}

func (tv *txMemoryView) Exists(_ context.Context, tenantID generic.TenantID, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idemKey{tenantID, idempotencyKey}], nil
}
