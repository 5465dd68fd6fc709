package points

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/generic/store"
)

// Store persists accounts next to the append-only ledger. SaveAccount
// writes the account row and appends txs atomically; a duplicate
// idempotency key rejects the whole write.
type Store interface {
	generic.Store
	GetAccount(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) (Account, bool, error)
	ListAccounts(ctx context.Context, tenantID generic.TenantID) ([]Account, error)
	SaveAccount(ctx context.Context, a Account, txs []generic.Transaction) error
}

type accountKey struct {
	TenantID generic.TenantID
	UserID   generic.UserID
}

// MemoryStore keeps accounts in a map and transactions in a TxMemory ledger.
type MemoryStore struct {
	*store.TxMemory
	mu       sync.RWMutex
	accounts map[accountKey]Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		TxMemory: store.NewTxMemory(),
		accounts: make(map[accountKey]Account),
	}
}

func (m *MemoryStore) GetAccount(_ context.Context, tenantID generic.TenantID, userID generic.UserID) (Account, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountKey{tenantID, userID}]
	return a, ok, nil
}

func (m *MemoryStore) ListAccounts(_ context.Context, tenantID generic.TenantID) ([]Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Account
	for k, a := range m.accounts {
		if k.TenantID == tenantID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryStore) SaveAccount(ctx context.Context, a Account, txs []generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(txs) > 0 {
		if err := m.TxMemory.WithTx(ctx, func(s generic.Store) error {
			return s.AppendBatch(ctx, txs)
		}); err != nil {
			return err
		}
	}
	m.accounts[accountKey{a.TenantID, a.UserID}] = a
	return nil
}
