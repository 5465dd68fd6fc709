/*
scheduler.go - Automated period processing

PURPOSE:
  Periodically recomputes the open period for every tenant, publishes the
  period that just closed and lifts expired streak freezes.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Recomputes the current period of each configured type
  - Recomputes the previous period one last time and publishes it once
    it has ended; publishing is idempotent so every tick may retry it
  - Tenants with nothing to publish are skipped, not failed

USAGE:
  scheduler := NewPeriodScheduler(engine, store, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RecomputePeriod and PublishPeriod endpoints (manual runs)
  - engine/engine.go: RecomputeTenants
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/performance-engine/engine"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/logger"
)

// TenantSource lists the tenants the scheduler works on.
type TenantSource interface {
	Tenants(ctx context.Context) ([]generic.TenantID, error)
}

// PeriodScheduler handles automated recompute and publish.
type PeriodScheduler struct {
	Engine        *engine.Engine
	Tenants       TenantSource
	PeriodTypes   []generic.PeriodType
	CheckInterval time.Duration
	Enabled       bool
	Clock         generic.Clock

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	log    *logger.Logger
}

func NewPeriodScheduler(eng *engine.Engine, tenants TenantSource, log *logger.Logger) *PeriodScheduler {
	return &PeriodScheduler{
		Engine:        eng,
		Tenants:       tenants,
		PeriodTypes:   []generic.PeriodType{generic.PeriodMonthly},
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Clock:         generic.SystemClock{},
		stop:          make(chan struct{}),
		log:           logger.OrNop(log).With("component", "scheduler"),
	}
}

func (ps *PeriodScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.log.Info("scheduler disabled, not starting")
		return
	}

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.wg.Add(1)
	go ps.run()

	ps.log.Info("scheduler started", "interval", ps.CheckInterval)
}

func (ps *PeriodScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.log.Info("scheduler stopped")
	}
}

func (ps *PeriodScheduler) run() {
	defer ps.wg.Done()

	ps.RunOnce(context.Background())

	for {
		select {
		case <-ps.ticker.C:
			ps.RunOnce(context.Background())
		case <-ps.stop:
			return
		}
	}
}

// RunReport counts what one pass did.
type RunReport struct {
	Tenants        int
	Recomputed     int // tenant periods
	Published      int
	FreezesExpired int
	Failures       int
}

// RunOnce performs a single pass. Failures are logged and counted; one
// tenant failing does not stop the others.
func (ps *PeriodScheduler) RunOnce(ctx context.Context) RunReport {
	var rep RunReport
	tenants, err := ps.Tenants.Tenants(ctx)
	if err != nil {
		ps.log.Error("list tenants failed", "error", err)
		rep.Failures++
		return rep
	}
	rep.Tenants = len(tenants)
	if len(tenants) == 0 {
		return rep
	}

	today := generic.Today(ps.Clock)
	for _, pt := range ps.PeriodTypes {
		current := generic.PeriodFor(pt, today)
		if err := ps.Engine.RecomputeTenants(ctx, tenants, pt, current.Start); err != nil {
			ps.log.Error("recompute failed", "period", current.Key(), "error", err)
			rep.Failures++
		} else {
			rep.Recomputed += len(tenants)
		}

		previous := current.Previous()
		for _, t := range tenants {
			// Late corrections land in a final recompute before the snapshot.
			published, err := ps.Engine.Board.Entries(ctx, t, previous)
			if err != nil {
				ps.log.Error("load published entries failed", "tenant_id", t, "period", previous.Key(), "error", err)
				rep.Failures++
				continue
			}
			if len(published) == 0 {
				if _, err := ps.Engine.RecomputePeriod(ctx, t, pt, previous.Start); err != nil {
					ps.log.Error("final recompute failed", "tenant_id", t, "period", previous.Key(), "error", err)
					rep.Failures++
					continue
				}
				rep.Recomputed++
			}
			entries, err := ps.Engine.PublishPeriod(ctx, t, pt, previous.Start, false)
			switch {
			case err == nil:
				if len(entries) > 0 {
					rep.Published++
				}
			case generic.IsPrecondition(err):
				// nothing was computed for the closed period
			default:
				ps.log.Error("publish failed", "tenant_id", t, "period", previous.Key(), "error", err)
				rep.Failures++
			}
		}
	}

	for _, t := range tenants {
		n, err := ps.Engine.Streaks.ExpireFreezes(ctx, t)
		rep.FreezesExpired += n
		if err != nil {
			ps.log.Error("expire freezes failed", "tenant_id", t, "error", err)
			rep.Failures++
		}
	}

	if rep.Published > 0 || rep.FreezesExpired > 0 || rep.Failures > 0 {
		ps.log.Info("scheduler pass complete", "tenants", rep.Tenants, "published", rep.Published,
			"freezes_expired", rep.FreezesExpired, "failures", rep.Failures)
	}
	return rep
}
