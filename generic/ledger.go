/*
ledger.go - Append-only points transaction log

PURPOSE:
  The Ledger is the immutable audit trail for every points mutation.
  Every earn, spend, adjustment and reversal is recorded here together
  with the balance it produced. The account row is authoritative for
  reads, but replaying the ledger must reproduce it exactly.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. REPLAYABLE: sum(deltas) == available balance, sum(earn deltas) == total earned
  4. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  If a mistake is made, you don't edit the transaction. Instead:
  1. Create a Reversal transaction (opposite sign)
  2. Both original and reversal remain in the ledger

EXAMPLE FLOW:
  1. Achievement first_sale: TxEarned +50   (available 50)
  2. Gold medal:             TxEarned +100  (available 150)
  3. Reward redeemed:        TxSpent  -30   (available 120)

  Replay: [+50, +100, -30] = 120 available, 150 earned, 30 spent

  A negative reversal takes back earnings, a positive one refunds a spend.

SEE ALSO:
  - store.go: Low-level persistence interface
  - points/service.go: Account wrapper with levels and medals
*/
package generic

import "context"

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger records all points changes for a user.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Immutable: Once written, transactions cannot be modified.
//
// Corrections are made via reversal transactions, not edits.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for tenant+user, chronologically.
	Transactions(ctx context.Context, tenantID TenantID, userID UserID) ([]Transaction, error)

	// TransactionsInRange returns transactions in [from, to].
	TransactionsInRange(ctx context.Context, tenantID TenantID, userID UserID, from, to TimePoint) ([]Transaction, error)

	// BalanceAt computes the available balance at a specific time.
	BalanceAt(ctx context.Context, tenantID TenantID, userID UserID, at TimePoint) (Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.TenantID, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, tx.TenantID, tx.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

func (l *DefaultLedger) Transactions(ctx context.Context, tenantID TenantID, userID UserID) ([]Transaction, error) {
	return l.Store.Load(ctx, tenantID, userID)
}

func (l *DefaultLedger) TransactionsInRange(ctx context.Context, tenantID TenantID, userID UserID, from, to TimePoint) ([]Transaction, error) {
	return l.Store.LoadRange(ctx, tenantID, userID, from, to)
}

func (l *DefaultLedger) BalanceAt(ctx context.Context, tenantID TenantID, userID UserID, at TimePoint) (Amount, error) {
	txs, err := l.Store.Load(ctx, tenantID, userID)
	if err != nil {
		return Amount{}, err
	}

	balance := ZeroAmount(UnitPoints)
	for _, tx := range txs {
		if tx.EffectiveAt.After(at) {
			break
		}
		balance = balance.Add(tx.Delta)
	}
	return balance, nil
}

// =============================================================================
// REPLAY - Recompute balances from the log
// =============================================================================

// ReplayResult is what a sequence of transactions adds up to.
type ReplayResult struct {
	Available Amount // sum of all deltas
	Earned    Amount // earning deltas less reversed earnings
	Spent     Amount // magnitude of spend deltas less reversed spends
	Count     int
}

// Replay sums a user's transactions in order.
func Replay(txs []Transaction) ReplayResult {
	r := ReplayResult{
		Available: ZeroAmount(UnitPoints),
		Earned:    ZeroAmount(UnitPoints),
		Spent:     ZeroAmount(UnitPoints),
	}
	for _, tx := range txs {
		r.Available = r.Available.Add(tx.Delta)
		switch {
		case tx.IsEarning():
			r.Earned = r.Earned.Add(tx.Delta)
		case tx.Type == TxSpent:
			r.Spent = r.Spent.Sub(tx.Delta)
		case tx.Type == TxReversal && tx.Delta.IsNegative():
			r.Earned = r.Earned.Add(tx.Delta)
		case tx.Type == TxReversal:
			r.Spent = r.Spent.Sub(tx.Delta)
		}
		r.Count++
	}
	return r
}
