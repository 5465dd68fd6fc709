package leaderboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/kpi"
	"github.com/warp/performance-engine/logger"
	"github.com/warp/performance-engine/points"
)

// TargetSource supplies the scored targets of a period. *kpi.Tracker satisfies it.
type TargetSource interface {
	PeriodTargets(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]kpi.Target, error)
	Definition(ctx context.Context, tenantID generic.TenantID, id string) (kpi.Definition, error)
}

// MedalGranter credits and takes back medal points. *points.Service satisfies it.
type MedalGranter interface {
	AddMedal(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, medal points.Medal, sourceID, idempotencyKey string) (points.Result, error)
	RevokeMedal(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, medal points.Medal, sourceID, idempotencyKey string) (points.Result, error)
}

// Roster lists the users of a tenant.
type Roster interface {
	Users(ctx context.Context, tenantID generic.TenantID) ([]generic.UserID, error)
}

// Cache serves ranked summaries between recomputes.
type Cache interface {
	Get(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]Summary, bool, error)
	Set(ctx context.Context, tenantID generic.TenantID, period generic.Period, summaries []Summary) error
	Invalidate(ctx context.Context, tenantID generic.TenantID, period generic.Period) error
}

type Options struct {
	Tiers Tiers
	// IncludeUsersWithoutTargets ranks roster users that have no targets
	// at score 0. Requires a Roster.
	IncludeUsersWithoutTargets bool
}

// Board recomputes and serves period leaderboards.
type Board struct {
	store    Store
	targets  TargetSource
	medals   MedalGranter
	roster   Roster
	calendar generic.HolidayCalendar
	cache    Cache
	opts     Options
	clock    generic.Clock
	locks    generic.Locker
	log      *logger.Logger
}

func NewBoard(store Store, targets TargetSource, medals MedalGranter, opts Options, clock generic.Clock, locks generic.Locker, log *logger.Logger) *Board {
	if len(opts.Tiers) == 0 {
		opts.Tiers = DefaultTiers()
	}
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if locks == nil {
		locks = generic.NewKeyedMutex()
	}
	return &Board{
		store:   store,
		targets: targets,
		medals:  medals,
		opts:    opts,
		clock:   clock,
		locks:   locks,
		log:     logger.OrNop(log).With("component", "leaderboard"),
	}
}

func (b *Board) WithRoster(r Roster) *Board { b.roster = r; return b }
func (b *Board) WithCalendar(c generic.HolidayCalendar) *Board { b.calendar = c; return b }
func (b *Board) WithCache(c Cache) *Board { b.cache = c; return b }

func lockKey(tenantID generic.TenantID, period generic.Period) string {
	return "leaderboard:" + string(tenantID) + ":" + period.Key()
}

// =============================================================================
// RECOMPUTE
// =============================================================================

// Recompute rebuilds every summary of the period and replaces the stored
// set. Safe to re-run; runs for the same period are serialized.
func (b *Board) Recompute(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]Summary, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	unlock, err := b.locks.Lock(ctx, lockKey(tenantID, period))
	if err != nil {
		return nil, err
	}
	defer unlock()

	b.log.Info("recomputing period", "tenant_id", tenantID, "period", period.Key())

	targets, err := b.targets.PeriodTargets(ctx, tenantID, period)
	if err != nil {
		return nil, fmt.Errorf("load period targets: %w", err)
	}

	byUser := make(map[generic.UserID][]KPIScore)
	defs := make(map[string]*kpi.Definition)
	for _, t := range targets {
		def, ok := defs[t.KpiID]
		if !ok {
			d, err := b.targets.Definition(ctx, tenantID, t.KpiID)
			switch {
			case generic.IsNotFound(err):
				b.log.Warn("target references unknown kpi", "kpi_id", t.KpiID, "target_id", t.ID)
			case err != nil:
				return nil, err
			default:
				def = &d
			}
			defs[t.KpiID] = def
		}
		if def == nil {
			continue
		}
		byUser[t.UserID] = append(byUser[t.UserID], KPIScore{
			KpiID:              t.KpiID,
			Metric:             def.Metric,
			Weight:             def.Weight,
			Score:              t.Score,
			AchievementPercent: t.AchievementPercent,
		})
	}

	if b.opts.IncludeUsersWithoutTargets && b.roster != nil {
		users, err := b.roster.Users(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("load roster: %w", err)
		}
		for _, u := range users {
			if _, ok := byUser[u]; !ok {
				byUser[u] = nil
			}
		}
	}

	now := b.clock.Now()
	workingDays := period.WorkingDays(b.calendar, tenantID)
	summaries := make([]Summary, 0, len(byUser))
	for user, kpis := range byUser {
		sort.Slice(kpis, func(i, j int) bool { return kpis[i].KpiID < kpis[j].KpiID })
		score := WeightedScore(kpis)
		summaries = append(summaries, Summary{
			ID:            generic.NewID(),
			TenantID:      tenantID,
			UserID:        user,
			Period:        period,
			WeightedScore: score,
			Tier:          b.opts.Tiers.Classify(score),
			KPIs:          kpis,
			KpisCount:     len(kpis),
			WorkingDays:   workingDays,
			ComputedAt:    now,
		})
	}
	Rank(summaries)

	prev, err := b.store.ListSummaries(ctx, tenantID, period.Previous())
	if err != nil {
		return nil, fmt.Errorf("load previous period: %w", err)
	}
	prevRank := make(map[generic.UserID]int, len(prev))
	for _, s := range prev {
		prevRank[s.UserID] = s.Rank
	}
	for i := range summaries {
		if r, ok := prevRank[summaries[i].UserID]; ok {
			summaries[i].PreviousRank = r
			summaries[i].RankChange = r - summaries[i].Rank
		}
	}

	if err := b.store.ReplaceSummaries(ctx, tenantID, period, summaries); err != nil {
		return nil, fmt.Errorf("replace summaries: %w", err)
	}
	if b.cache != nil {
		if err := b.cache.Invalidate(ctx, tenantID, period); err != nil {
			b.log.Warn("leaderboard cache invalidation failed", "period", period.Key(), "error", err)
		}
	}

	b.log.Info("period recomputed", "tenant_id", tenantID, "period", period.Key(), "users", len(summaries), "targets", len(targets))
	return summaries, nil
}

// =============================================================================
// PUBLISH
// =============================================================================

// Publish snapshots the top three of the period with medals and grants
// medal points. A published period is left unchanged unless force is set
// and the period is still open. A forced publish bumps the revision and
// revokes every earlier placing that did not survive it.
func (b *Board) Publish(ctx context.Context, tenantID generic.TenantID, period generic.Period, force bool) ([]Entry, error) {
	unlock, err := b.locks.Lock(ctx, lockKey(tenantID, period))
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := b.store.ListEntries(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}
	closed := generic.Today(b.clock).After(period.End)
	if len(existing) > 0 && (!force || closed) {
		return existing, nil
	}

	summaries, err := b.store.ListSummaries(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, &generic.PreconditionError{
			Entity: "leaderboard", ID: period.Key(), State: "empty", Action: "publish",
			Reason: "recompute the period first",
		}
	}

	revision := 0
	if len(existing) > 0 {
		revision = existing[0].Revision + 1
	}
	now := b.clock.Now()
	var entries []Entry
	for _, s := range summaries {
		medal, ok := points.MedalForRank(s.Rank)
		if !ok {
			break
		}
		entries = append(entries, Entry{
			ID:          generic.NewID(),
			TenantID:    tenantID,
			Period:      period,
			UserID:      s.UserID,
			Rank:        s.Rank,
			Score:       s.WeightedScore,
			Tier:        s.Tier,
			Medal:       medal,
			Revision:    revision,
			PublishedAt: now,
		})
	}

	// Medals before the snapshot: keys are per (period, revision, user,
	// medal), so a retry after a failed save neither grants nor revokes twice.
	if b.medals != nil {
		if err := b.settleMedals(ctx, tenantID, period, revision, existing, entries); err != nil {
			return nil, err
		}
	}
	if err := b.store.SaveEntries(ctx, tenantID, period, entries); err != nil {
		return nil, fmt.Errorf("save leaderboard: %w", err)
	}

	b.log.Info("leaderboard published", "tenant_id", tenantID, "period", period.Key(), "entries", len(entries))
	return entries, nil
}

// settleMedals revokes placings of the previous revision that are gone and
// grants the new ones. A user keeping the same medal is left alone.
func (b *Board) settleMedals(ctx context.Context, tenantID generic.TenantID, period generic.Period, revision int, previous, entries []Entry) error {
	type placing struct {
		user  generic.UserID
		medal points.Medal
	}
	held := make(map[placing]bool, len(previous))
	for _, e := range previous {
		held[placing{e.UserID, e.Medal}] = true
	}
	next := make(map[placing]bool, len(entries))
	for _, e := range entries {
		next[placing{e.UserID, e.Medal}] = true
	}

	for _, e := range previous {
		if next[placing{e.UserID, e.Medal}] {
			continue
		}
		key := fmt.Sprintf("medal-revoke:%s:r%d:%s:%s", period.Key(), revision, e.UserID, e.Medal)
		if _, err := b.medals.RevokeMedal(ctx, tenantID, e.UserID, e.Medal, period.Key(), key); err != nil {
			return fmt.Errorf("revoke %s medal: %w", e.Medal, err)
		}
	}
	for _, e := range entries {
		if held[placing{e.UserID, e.Medal}] {
			continue
		}
		if _, err := b.medals.AddMedal(ctx, tenantID, e.UserID, e.Medal, period.Key(), medalKey(period, revision, e)); err != nil {
			return fmt.Errorf("grant %s medal: %w", e.Medal, err)
		}
	}
	return nil
}

func medalKey(period generic.Period, revision int, e Entry) string {
	if revision == 0 {
		return fmt.Sprintf("medal:%s:%s:%s", period.Key(), e.UserID, e.Medal)
	}
	return fmt.Sprintf("medal:%s:r%d:%s:%s", period.Key(), revision, e.UserID, e.Medal)
}

// =============================================================================
// QUERIES
// =============================================================================

// Leaderboard returns the ranked summaries of a period, top limit rows
// (0 = all).
func (b *Board) Leaderboard(ctx context.Context, tenantID generic.TenantID, period generic.Period, limit int) ([]Summary, error) {
	var rows []Summary
	hit := false
	if b.cache != nil {
		cached, ok, err := b.cache.Get(ctx, tenantID, period)
		if err != nil {
			b.log.Warn("leaderboard cache read failed", "period", period.Key(), "error", err)
		}
		rows, hit = cached, ok
	}
	if !hit {
		var err error
		rows, err = b.fill(ctx, tenantID, period)
		if err != nil {
			return nil, err
		}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// fill reads the stored summaries and caches them. It holds the period
// lock so a recompute cannot invalidate between the read and the write.
func (b *Board) fill(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]Summary, error) {
	if b.cache == nil {
		return b.store.ListSummaries(ctx, tenantID, period)
	}
	unlock, err := b.locks.Lock(ctx, lockKey(tenantID, period))
	if err != nil {
		return nil, err
	}
	defer unlock()

	rows, err := b.store.ListSummaries(ctx, tenantID, period)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		if err := b.cache.Set(ctx, tenantID, period, rows); err != nil {
			b.log.Warn("leaderboard cache write failed", "period", period.Key(), "error", err)
		}
	}
	return rows, nil
}

func (b *Board) Entries(ctx context.Context, tenantID generic.TenantID, period generic.Period) ([]Entry, error) {
	return b.store.ListEntries(ctx, tenantID, period)
}

// UserSummary returns the user's summary for the period.
func (b *Board) UserSummary(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, period generic.Period) (Summary, error) {
	rows, err := b.store.ListSummaries(ctx, tenantID, period)
	if err != nil {
		return Summary{}, err
	}
	for _, s := range rows {
		if s.UserID == userID {
			return s, nil
		}
	}
	return Summary{}, generic.NotFound("period summary", string(userID)+"@"+period.Key())
}

// UserRankHistory returns the user's summaries of one period type, newest first.
func (b *Board) UserRankHistory(ctx context.Context, tenantID generic.TenantID, userID generic.UserID, periodType generic.PeriodType, limit int) ([]Summary, error) {
	rows, err := b.store.UserSummaries(ctx, tenantID, userID, periodType)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// MedalTable counts published medals per user, best first.
func (b *Board) MedalTable(ctx context.Context, tenantID generic.TenantID) ([]MedalCount, error) {
	entries, err := b.store.AllEntries(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	counts := make(map[generic.UserID]*MedalCount)
	for _, e := range entries {
		c, ok := counts[e.UserID]
		if !ok {
			c = &MedalCount{UserID: e.UserID}
			counts[e.UserID] = c
		}
		switch e.Medal {
		case points.MedalGold:
			c.Gold++
		case points.MedalSilver:
			c.Silver++
		case points.MedalBronze:
			c.Bronze++
		}
	}
	out := make([]MedalCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i], out[j]
		if a.Gold != c.Gold {
			return a.Gold > c.Gold
		}
		if a.Silver != c.Silver {
			return a.Silver > c.Silver
		}
		if a.Bronze != c.Bronze {
			return a.Bronze > c.Bronze
		}
		return a.UserID < c.UserID
	})
	return out, nil
}
