package generic_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/generic/store"
)

func pointsTx(key string, n int64, typ generic.TransactionType, at generic.TimePoint) generic.Transaction {
	return generic.Transaction{
		ID:             generic.TransactionID(key),
		TenantID:       "biz-1",
		UserID:         "user-1",
		EffectiveAt:    at,
		Delta:          generic.Points(n),
		Type:           typ,
		IdempotencyKey: key,
	}
}

func TestLedger_AppendRejectsDuplicateKey(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())

	require.NoError(t, ledger.Append(ctx, pointsTx("a", 50, generic.TxEarned, date(2025, time.March, 1))))
	err := ledger.Append(ctx, pointsTx("a", 50, generic.TxEarned, date(2025, time.March, 1)))
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	txs, err := ledger.Transactions(ctx, "biz-1", "user-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestLedger_KeysAreScopedPerTenant(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	require.NoError(t, ledger.Append(ctx, pointsTx("medal:2025-03:user-1:gold", 100, generic.TxEarned, date(2025, time.March, 31))))

	// WHEN: Another tenant uses the same key for its own user-1
	other := pointsTx("medal:2025-03:user-1:gold", 100, generic.TxEarned, date(2025, time.March, 31))
	other.TenantID = "biz-2"
	err := ledger.Append(ctx, other)

	// THEN: Both writes land
	require.NoError(t, err)
	txs, err := ledger.Transactions(ctx, "biz-2", "user-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestLedger_BatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	require.NoError(t, ledger.Append(ctx, pointsTx("b", 10, generic.TxEarned, date(2025, time.March, 1))))

	// WHEN: A batch contains one already-used key
	err := ledger.AppendBatch(ctx, []generic.Transaction{
		pointsTx("c", 10, generic.TxEarned, date(2025, time.March, 2)),
		pointsTx("b", 10, generic.TxEarned, date(2025, time.March, 2)),
	})

	// THEN: Nothing from the batch is written
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	txs, _ := ledger.Transactions(ctx, "biz-1", "user-1")
	assert.Len(t, txs, 1)
}

func TestLedger_BalanceAtAndReplay(t *testing.T) {
	ctx := context.Background()
	ledger := generic.NewLedger(store.NewMemory())
	require.NoError(t, ledger.AppendBatch(ctx, []generic.Transaction{
		pointsTx("e1", 50, generic.TxEarned, date(2025, time.March, 1)),
		pointsTx("e2", 100, generic.TxEarned, date(2025, time.March, 5)),
		pointsTx("s1", -30, generic.TxSpent, date(2025, time.March, 9)),
	}))

	bal, err := ledger.BalanceAt(ctx, "biz-1", "user-1", date(2025, time.March, 6))
	require.NoError(t, err)
	assert.Equal(t, int64(150), bal.IntPart())

	txs, err := ledger.Transactions(ctx, "biz-1", "user-1")
	require.NoError(t, err)
	r := generic.Replay(txs)
	assert.Equal(t, int64(120), r.Available.IntPart())
	assert.Equal(t, int64(150), r.Earned.IntPart())
	assert.Equal(t, int64(30), r.Spent.IntPart())

	inRange, err := ledger.TransactionsInRange(ctx, "biz-1", "user-1", date(2025, time.March, 2), date(2025, time.March, 9))
	require.NoError(t, err)
	assert.Len(t, inRange, 2)
}

func TestReplay_ReversalsNetAgainstEarnedAndSpent(t *testing.T) {
	// GIVEN: An earning taken back and a spend refunded
	txs := []generic.Transaction{
		pointsTx("e1", 100, generic.TxEarned, date(2025, time.March, 1)),
		pointsTx("s1", -30, generic.TxSpent, date(2025, time.March, 2)),
		pointsTx("r1", -100, generic.TxReversal, date(2025, time.March, 3)),
		pointsTx("r2", 30, generic.TxReversal, date(2025, time.March, 4)),
	}

	// WHEN: Replaying
	r := generic.Replay(txs)

	// THEN: Both reversals cancel out what they undo
	assert.Equal(t, int64(0), r.Available.IntPart())
	assert.Equal(t, int64(0), r.Earned.IntPart())
	assert.Equal(t, int64(0), r.Spent.IntPart())
	assert.Equal(t, 4, r.Count)
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := store.NewTxMemory()

	err := s.WithTx(ctx, func(tx generic.Store) error {
		require.NoError(t, tx.Append(ctx, pointsTx("r1", 5, generic.TxEarned, date(2025, time.March, 1))))
		return generic.ErrPrecondition
	})
	assert.ErrorIs(t, err, generic.ErrPrecondition)

	exists, _ := s.Exists(ctx, "biz-1", "r1")
	assert.False(t, exists)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	ctx := context.Background()
	locks := generic.NewKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(ctx, "user-1")
			if err != nil {
				return
			}
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestKeyedMutex_HonoursContext(t *testing.T) {
	locks := generic.NewKeyedMutex()
	unlock, err := locks.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
