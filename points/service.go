package points

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/logger"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service mutates accounts one user at a time.
type Service struct {
	store  Store
	ledger generic.Ledger
	tables Tables
	clock  generic.Clock
	locks  generic.Locker
	log    *logger.Logger
}

func NewService(store Store, tables Tables, clock generic.Clock, locks generic.Locker, log *logger.Logger) *Service {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if locks == nil {
		locks = generic.NewKeyedMutex()
	}
	return &Service{
		store:  store,
		ledger: generic.NewLedger(store),
		tables: tables,
		clock:  clock,
		locks:  locks,
		log:    logger.OrNop(log).With("component", "points"),
	}
}

func (s *Service) Tables() Tables { return s.tables }

// EarnInput describes a points grant.
type EarnInput struct {
	TenantID       generic.TenantID
	UserID         generic.UserID
	Points         int64
	Source         string // achievement, medal, streak, manual
	SourceID       string
	Reason         string
	IdempotencyKey string
	// CountAchievement also bumps achievements_count in the same write.
	CountAchievement bool
}

// Result reports what an earn did. Applied is false when the idempotency
// key had already been used, in which case the account is unchanged.
type Result struct {
	Account      Account
	Transaction  *generic.Transaction
	Applied      bool
	LevelsGained int
}

func (s *Service) lock(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) (func(), error) {
	return s.locks.Lock(ctx, "points:"+string(tenantID)+":"+string(userID))
}

func (s *Service) load(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) (Account, error) {
	a, ok, err := s.store.GetAccount(ctx, tenantID, userID)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		a = NewAccount(tenantID, userID, s.tables.Levels)
	}
	return a, nil
}

// AddPoints raises total, available and experience, appends an earn
// transaction and levels up as far as experience allows.
func (s *Service) AddPoints(ctx context.Context, in EarnInput) (Result, error) {
	if in.Points < 0 {
		return Result{}, generic.Invalid("points", "must not be negative")
	}
	if in.UserID == "" {
		return Result{}, generic.Invalid("user_id", "required")
	}
	unlock, err := s.lock(ctx, in.TenantID, in.UserID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()
	return s.addLocked(ctx, in)
}

func (s *Service) addLocked(ctx context.Context, in EarnInput) (Result, error) {
	a, err := s.load(ctx, in.TenantID, in.UserID)
	if err != nil {
		return Result{}, err
	}
	if in.IdempotencyKey != "" {
		used, err := s.store.Exists(ctx, in.TenantID, in.IdempotencyKey)
		if err != nil {
			return Result{}, err
		}
		if used {
			return Result{Account: a}, nil
		}
	}

	now := s.clock.Now()
	a.Total += in.Points
	a.Available += in.Points
	a.Experience += in.Points
	if in.CountAchievement {
		a.AchievementsCount++
	}
	gained := a.levelUp(s.tables.Levels)
	a.UpdatedAt = now

	var txs []generic.Transaction
	var tx *generic.Transaction
	if in.Points > 0 {
		t := s.newTx(a, in.Points, generic.TxEarned, in.Source, in.SourceID, in.Reason, in.IdempotencyKey)
		txs = append(txs, t)
		tx = &t
	}
	if err := s.store.SaveAccount(ctx, a, txs); err != nil {
		if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			cur, lerr := s.load(ctx, in.TenantID, in.UserID)
			return Result{Account: cur}, lerr
		}
		return Result{}, fmt.Errorf("save points account: %w", err)
	}

	if gained > 0 {
		s.log.Info("level up", "tenant_id", a.TenantID, "user_id", a.UserID, "level", a.Level, "gained", gained)
	}
	return Result{Account: a, Transaction: tx, Applied: true, LevelsGained: gained}, nil
}

func (s *Service) newTx(a Account, delta int64, typ generic.TransactionType, source, sourceID, reason, key string) generic.Transaction {
	now := s.clock.Now()
	return generic.Transaction{
		ID:             generic.TransactionID(generic.NewID()),
		TenantID:       a.TenantID,
		UserID:         a.UserID,
		EffectiveAt:    generic.InstantOf(now),
		Delta:          generic.Points(delta),
		Type:           typ,
		Source:         source,
		SourceID:       sourceID,
		Reason:         reason,
		BalanceAfter:   generic.Points(a.Available),
		IdempotencyKey: key,
		CreatedAt:      generic.InstantOf(now),
	}
}

// SpendInput describes a redemption.
type SpendInput struct {
	TenantID       generic.TenantID
	UserID         generic.UserID
	Points         int64
	Source         string
	Reason         string
	IdempotencyKey string
}

// SpendPoints lowers the available balance. It fails with an
// InsufficientBalanceError, and no partial spend, when available < points.
// A reused idempotency key returns the account unchanged.
func (s *Service) SpendPoints(ctx context.Context, in SpendInput) (Account, error) {
	if in.Points <= 0 {
		return Account{}, generic.Invalid("points", "must be greater than zero")
	}
	unlock, err := s.lock(ctx, in.TenantID, in.UserID)
	if err != nil {
		return Account{}, err
	}
	defer unlock()

	a, err := s.load(ctx, in.TenantID, in.UserID)
	if err != nil {
		return Account{}, err
	}
	if in.IdempotencyKey != "" {
		used, err := s.store.Exists(ctx, in.TenantID, in.IdempotencyKey)
		if err != nil {
			return Account{}, err
		}
		if used {
			return a, nil
		}
	}
	if a.Available < in.Points {
		return Account{}, &generic.InsufficientBalanceError{
			UserID:    in.UserID,
			Available: generic.Points(a.Available),
			Requested: generic.Points(in.Points),
		}
	}

	a.Available -= in.Points
	a.Spent += in.Points
	a.UpdatedAt = s.clock.Now()
	tx := s.newTx(a, -in.Points, generic.TxSpent, in.Source, "", in.Reason, in.IdempotencyKey)
	if err := s.store.SaveAccount(ctx, a, []generic.Transaction{tx}); err != nil {
		return Account{}, fmt.Errorf("save points account: %w", err)
	}
	return a, nil
}

// AddMedal counts the medal, improves best_rank and grants the medal's
// points, all in one write. A reused idempotency key is a no-op.
func (s *Service) AddMedal(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, medal Medal, sourceID, idempotencyKey string) (Result, error) {
	rank := medal.Rank()
	if rank == 0 {
		return Result{}, generic.Invalid("medal", fmt.Sprintf("unknown medal %q", medal))
	}
	unlock, err := s.lock(ctx, tenantID, userID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	a, err := s.load(ctx, tenantID, userID)
	if err != nil {
		return Result{}, err
	}
	if idempotencyKey != "" {
		used, err := s.store.Exists(ctx, tenantID, idempotencyKey)
		if err != nil {
			return Result{}, err
		}
		if used {
			return Result{Account: a}, nil
		}
	}

	*a.medalCounter(medal)++
	if a.BestRank == 0 || rank < a.BestRank {
		a.BestRank = rank
	}

	pts := s.tables.MedalPoints.For(medal)
	a.Total += pts
	a.Available += pts
	a.Experience += pts
	gained := a.levelUp(s.tables.Levels)
	a.UpdatedAt = s.clock.Now()

	var txs []generic.Transaction
	var tx *generic.Transaction
	if pts > 0 {
		t := s.newTx(a, pts, generic.TxEarned, "medal", sourceID, "Medal: "+string(medal), idempotencyKey)
		txs = append(txs, t)
		tx = &t
	}
	if err := s.store.SaveAccount(ctx, a, txs); err != nil {
		return Result{}, fmt.Errorf("save points account: %w", err)
	}
	return Result{Account: a, Transaction: tx, Applied: true, LevelsGained: gained}, nil
}

// RevokeMedal takes back a medal granted by AddMedal: the counter drops,
// the medal points are reversed and BestRank falls back to the best medal
// still held. Experience and level are kept. Available may go below zero
// when the points were already spent.
func (s *Service) RevokeMedal(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, medal Medal, sourceID, idempotencyKey string) (Result, error) {
	if medal.Rank() == 0 {
		return Result{}, generic.Invalid("medal", fmt.Sprintf("unknown medal %q", medal))
	}
	unlock, err := s.lock(ctx, tenantID, userID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	a, err := s.load(ctx, tenantID, userID)
	if err != nil {
		return Result{}, err
	}
	if idempotencyKey != "" {
		used, err := s.store.Exists(ctx, tenantID, idempotencyKey)
		if err != nil {
			return Result{}, err
		}
		if used {
			return Result{Account: a}, nil
		}
	}

	counter := a.medalCounter(medal)
	if *counter == 0 {
		return Result{}, &generic.PreconditionError{
			Entity: "points account", ID: string(userID), State: "no " + string(medal) + " medal", Action: "revoke medal",
		}
	}
	*counter--
	a.BestRank = a.bestHeldRank()

	pts := s.tables.MedalPoints.For(medal)
	a.Total -= pts
	a.Available -= pts
	a.UpdatedAt = s.clock.Now()

	var txs []generic.Transaction
	var tx *generic.Transaction
	if pts > 0 {
		t := s.newTx(a, -pts, generic.TxReversal, "medal", sourceID, "Medal revoked: "+string(medal), idempotencyKey)
		txs = append(txs, t)
		tx = &t
	}
	if err := s.store.SaveAccount(ctx, a, txs); err != nil {
		return Result{}, fmt.Errorf("save points account: %w", err)
	}
	return Result{Account: a, Transaction: tx, Applied: true}, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Account returns the user's account, or a fresh level-1 account.
func (s *Service) Account(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) (Account, error) {
	return s.load(ctx, tenantID, userID)
}

func (s *Service) Transactions(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) ([]generic.Transaction, error) {
	return s.ledger.Transactions(ctx, tenantID, userID)
}

// Verification compares the account with a ledger replay.
type Verification struct {
	Account Account
	Replay  generic.ReplayResult
	OK      bool
}

// Verify replays the ledger and checks it against the stored account.
func (s *Service) Verify(ctx context.Context, tenantID generic.TenantID, userID generic.UserID) (Verification, error) {
	a, err := s.load(ctx, tenantID, userID)
	if err != nil {
		return Verification{}, err
	}
	txs, err := s.ledger.Transactions(ctx, tenantID, userID)
	if err != nil {
		return Verification{}, err
	}
	r := generic.Replay(txs)
	ok := r.Available.IntPart() == a.Available &&
		r.Earned.IntPart() == a.Total &&
		r.Spent.IntPart() == a.Spent
	if len(txs) > 0 {
		ok = ok && txs[len(txs)-1].BalanceAfter.IntPart() == a.Available
	}
	return Verification{Account: a, Replay: r, OK: ok}, nil
}

// Ranked is one row of the points leaderboard.
type Ranked struct {
	Rank    int
	Account Account
}

// Leaderboard ranks the tenant by lifetime points, ties broken by user id.
func (s *Service) Leaderboard(ctx context.Context, tenantID generic.TenantID, limit int) ([]Ranked, error) {
	accounts, err := s.store.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].Total != accounts[j].Total {
			return accounts[i].Total > accounts[j].Total
		}
		return accounts[i].UserID < accounts[j].UserID
	})
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	out := make([]Ranked, len(accounts))
	for i, a := range accounts {
		out[i] = Ranked{Rank: i + 1, Account: a}
	}
	return out, nil
}
