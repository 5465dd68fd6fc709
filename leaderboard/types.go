/*
Package leaderboard aggregates KPI targets into period summaries and ranks users.

PURPOSE:
  Once per (tenant, period) the batch recompute pulls every scored target,
  weights the KPI scores into one number per user, classifies a performance
  tier and ranks the tenant. The top three are published with medals.

FULL REPLACE:
  A recompute rewrites every summary of the period in one store call.
  Rows are never patched, so ranks stay a permutation of 1..N.

TIE-BREAK:
  Equal scores rank by user ID ascending. Recomputing the same data always
  yields the same ranks.

SEE ALSO:
  - board.go: Recompute, Publish and the query surfaces
  - ../kpi: per-target scores
  - ../points: medal points
*/
package leaderboard

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/points"
)

// =============================================================================
// PERFORMANCE TIERS
// =============================================================================

type Tier string

const (
	TierExceptional      Tier = "exceptional"
	TierExcellent        Tier = "excellent"
	TierGood             Tier = "good"
	TierMeets            Tier = "meets"
	TierDeveloping       Tier = "developing"
	TierNeedsImprovement Tier = "needs_improvement"
)

type TierThreshold struct {
	Tier Tier    `yaml:"tier" json:"tier"`
	Min  float64 `yaml:"min" json:"min"`
}

// Tiers are ordered from the highest threshold down.
type Tiers []TierThreshold

func DefaultTiers() Tiers {
	return Tiers{
		{Tier: TierExceptional, Min: 90},
		{Tier: TierExcellent, Min: 75},
		{Tier: TierGood, Min: 60},
		{Tier: TierMeets, Min: 45},
		{Tier: TierDeveloping, Min: 30},
	}
}

func (ts Tiers) Validate() error {
	for i := 1; i < len(ts); i++ {
		if ts[i].Min >= ts[i-1].Min {
			return generic.Invalid("tiers", fmt.Sprintf("%s threshold must be below %s", ts[i].Tier, ts[i-1].Tier))
		}
	}
	return nil
}

// Classify returns the first tier whose threshold the score reaches.
func (ts Tiers) Classify(score float64) Tier {
	for _, t := range ts {
		if score >= t.Min {
			return t.Tier
		}
	}
	return TierNeedsImprovement
}

// =============================================================================
// SUMMARY
// =============================================================================

// KPIScore is one line of a summary's breakdown.
type KPIScore struct {
	KpiID              string  `json:"kpi_id"`
	Metric             string  `json:"metric"`
	Weight             float64 `json:"weight"`
	Score              int     `json:"score"`
	AchievementPercent float64 `json:"achievement_percent"`
}

// Summary is unique per (tenant, user, period).
type Summary struct {
	ID            string           `json:"id"`
	TenantID      generic.TenantID `json:"tenant_id"`
	UserID        generic.UserID   `json:"user_id"`
	Period        generic.Period   `json:"period"`
	WeightedScore float64          `json:"weighted_score"`
	Tier          Tier             `json:"tier"`
	Rank          int              `json:"rank"`
	PreviousRank  int              `json:"previous_rank"` // 0 when unranked last period
	RankChange    int              `json:"rank_change"`   // positive means moved up
	KPIs          []KPIScore       `json:"kpis"`
	KpisCount     int              `json:"kpis_count"`
	WorkingDays   int              `json:"working_days"`
	ComputedAt    time.Time        `json:"computed_at"`
}

// WeightedScore is Σ(score×weight)/Σ(weight), two decimals. No KPIs
// scores 0; all-zero weights fall back to the plain mean.
func WeightedScore(kpis []KPIScore) float64 {
	if len(kpis) == 0 {
		return 0
	}
	var sum, weights, plain float64
	for _, k := range kpis {
		sum += float64(k.Score) * k.Weight
		weights += k.Weight
		plain += float64(k.Score)
	}
	if weights == 0 {
		return round2(plain / float64(len(kpis)))
	}
	return round2(sum / weights)
}

// Rank orders summaries by score descending then user ID, and numbers
// them 1..N in place.
func Rank(summaries []Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].WeightedScore != summaries[j].WeightedScore {
			return summaries[i].WeightedScore > summaries[j].WeightedScore
		}
		return summaries[i].UserID < summaries[j].UserID
	})
	for i := range summaries {
		summaries[i].Rank = i + 1
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// =============================================================================
// PUBLISHED LEADERBOARD
// =============================================================================

// Entry is an immutable published placing with its medal.
type Entry struct {
	ID          string           `json:"id"`
	TenantID    generic.TenantID `json:"tenant_id"`
	Period      generic.Period   `json:"period"`
	UserID      generic.UserID   `json:"user_id"`
	Rank        int              `json:"rank"`
	Score       float64          `json:"score"`
	Tier        Tier             `json:"tier"`
	Medal       points.Medal     `json:"medal"`
	Revision    int              `json:"revision"` // 0 for the first publish, +1 per forced republish
	PublishedAt time.Time        `json:"published_at"`
}

// MedalCount is one row of the tenant's all-time medal table.
type MedalCount struct {
	UserID generic.UserID `json:"user_id"`
	Gold   int            `json:"gold"`
	Silver int            `json:"silver"`
	Bronze int            `json:"bronze"`
}

func (m MedalCount) Total() int { return m.Gold + m.Silver + m.Bronze }
