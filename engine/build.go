package engine

import (
	"context"

	"github.com/warp/performance-engine/achievement"
	"github.com/warp/performance-engine/bonus"
	"github.com/warp/performance-engine/config"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/kpi"
	"github.com/warp/performance-engine/leaderboard"
	"github.com/warp/performance-engine/logger"
	"github.com/warp/performance-engine/penalty"
	"github.com/warp/performance-engine/points"
	"github.com/warp/performance-engine/streak"
)

// DefaultConcurrency bounds RecomputeTenants when Options leaves it unset.
const DefaultConcurrency = 8

// Stores is one backend per component.
type Stores struct {
	KPI          kpi.Store
	Streaks      streak.Store
	Points       points.Store
	Achievements achievement.Store
	Leaderboard  leaderboard.Store
	Penalties    penalty.Store
	Bonuses      bonus.Store
}

func MemoryStores() Stores {
	return Stores{
		KPI:          kpi.NewMemoryStore(),
		Streaks:      streak.NewMemoryStore(),
		Points:       points.NewMemoryStore(),
		Achievements: achievement.NewMemoryStore(),
		Leaderboard:  leaderboard.NewMemoryStore(),
		Penalties:    penalty.NewMemoryStore(),
		Bonuses:      bonus.NewMemoryStore(),
	}
}

// Collaborators are supplied by the surrounding platform. Any may be nil.
type Collaborators struct {
	Directory Directory
	Facts     ActivityFacts
	Calendar  generic.HolidayCalendar
}

type Options struct {
	Tables                     config.Tables
	IncludeUsersWithoutTargets bool
	Concurrency                int
	Cache                      leaderboard.Cache
	Clock                      generic.Clock
	Locks                      generic.Locker
	Logger                     *logger.Logger
}

// Build wires every component over the given stores. A zero Tables value
// is replaced by config.DefaultTables.
func Build(stores Stores, col Collaborators, opts Options) (*Engine, error) {
	if len(opts.Tables.PerformanceTiers) == 0 {
		opts.Tables = config.DefaultTables()
	}
	if err := opts.Tables.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = generic.SystemClock{}
	}
	if opts.Locks == nil {
		opts.Locks = generic.NewKeyedMutex()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	log := logger.OrNop(opts.Logger)
	clock, locks, tables := opts.Clock, opts.Locks, opts.Tables

	tracker := kpi.NewTracker(stores.KPI, clock, locks, log)
	pts := points.NewService(stores.Points, tables.Points, clock, locks, log)
	streaks := streak.NewTracker(stores.Streaks, tables.Streaks, clock, locks, log)
	achievements := achievement.NewEngine(stores.Achievements, pts, tables.AchievementTiers, clock, locks, log)
	streaks.OnMilestone(achievements)

	board := leaderboard.NewBoard(stores.Leaderboard, tracker, pts, leaderboard.Options{
		Tiers:                      tables.PerformanceTiers,
		IncludeUsersWithoutTargets: opts.IncludeUsersWithoutTargets,
	}, clock, locks, log)
	if col.Directory != nil {
		board.WithRoster(directoryRoster{col.Directory})
	}
	if col.Calendar != nil {
		board.WithCalendar(col.Calendar)
	}
	if opts.Cache != nil {
		board.WithCache(opts.Cache)
	}

	penalties := penalty.NewEngine(stores.Penalties, clock, locks, log).WithWarningValidity(tables.WarningValidityDays)
	bonuses := bonus.NewCalculator(stores.Bonuses, board, penalties, clock, locks, log).
		WithDefaultTiers(tables.BonusSettingTiers())
	if col.Calendar != nil {
		bonuses.WithCalendar(col.Calendar)
	}

	return &Engine{
		KPI:          tracker,
		Streaks:      streaks,
		Points:       pts,
		Achievements: achievements,
		Board:        board,
		Penalties:    penalties,
		Bonuses:      bonuses,
		directory:    col.Directory,
		facts:        col.Facts,
		concurrency:  opts.Concurrency,
		clock:        clock,
		tracer:       newTracer(),
		log:          log.With("component", "engine"),
	}, nil
}

// directoryRoster adapts a Directory to leaderboard.Roster.
type directoryRoster struct{ dir Directory }

func (r directoryRoster) Users(ctx context.Context, tenantID generic.TenantID) ([]generic.UserID, error) {
	members, err := r.dir.Members(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]generic.UserID, 0, len(members))
	for _, m := range members {
		out = append(out, m.UserID)
	}
	return out, nil
}

// StaticDirectory is a fixed roster, keyed by tenant.
type StaticDirectory map[generic.TenantID][]Member

func (d StaticDirectory) Members(_ context.Context, tenantID generic.TenantID) ([]Member, error) {
	return d[tenantID], nil
}
