/*
Package points keeps each user's points account, level and medals.

PURPOSE:
  Points are earned from achievements and leaderboard medals and can be
  spent on rewards. Experience rises with every earn and never falls;
  levels follow a fixed experience curve.

INVARIANTS:
  - Every mutation appends a ledger transaction carrying balance_after.
  - Replaying the ledger reproduces the account: sum of all deltas is the
    available balance, sum of earn deltas is total_points.
  - A spend larger than the available balance fails and changes nothing.

SEE ALSO:
  - generic/ledger.go: The append-only log and Replay
  - service.go: AddPoints, SpendPoints, AddMedal, Verify
*/
package points

import (
	"math"
	"time"

	"github.com/warp/performance-engine/generic"
)

// =============================================================================
// LEVEL CURVE
// =============================================================================

type Level struct {
	Level      int    `yaml:"level" json:"level"`
	Name       string `yaml:"name" json:"name"`
	XPRequired int64  `yaml:"xp_required" json:"xp_required"`
}

// LevelTable is ordered by Level ascending, starting at level 1 with 0 XP.
type LevelTable []Level

func DefaultLevels() LevelTable {
	return LevelTable{
		{Level: 1, Name: "Newcomer", XPRequired: 0},
		{Level: 2, Name: "Beginner", XPRequired: 100},
		{Level: 3, Name: "Intermediate", XPRequired: 300},
		{Level: 4, Name: "Experienced", XPRequired: 600},
		{Level: 5, Name: "Professional", XPRequired: 1000},
		{Level: 6, Name: "Expert", XPRequired: 1500},
		{Level: 7, Name: "Master", XPRequired: 2500},
		{Level: 8, Name: "Grand Master", XPRequired: 4000},
		{Level: 9, Name: "Legend", XPRequired: 6000},
		{Level: 10, Name: "Champion", XPRequired: 10000},
	}
}

// Validate requires consecutive levels from 1 with strictly increasing XP.
func (lt LevelTable) Validate() error {
	if len(lt) == 0 {
		return generic.Invalid("levels", "at least one level required")
	}
	if lt[0].Level != 1 || lt[0].XPRequired != 0 {
		return generic.Invalid("levels", "level 1 must require 0 xp")
	}
	for i := 1; i < len(lt); i++ {
		if lt[i].Level != lt[i-1].Level+1 {
			return generic.Invalid("levels", "levels must be consecutive")
		}
		if lt[i].XPRequired <= lt[i-1].XPRequired {
			return generic.Invalid("levels", "xp_required must strictly increase")
		}
	}
	return nil
}

func (lt LevelTable) Get(level int) (Level, bool) {
	if level < 1 || level > len(lt) {
		return Level{}, false
	}
	return lt[level-1], true
}

func (lt LevelTable) MaxLevel() int { return len(lt) }

// NextXP is the experience needed for level+1, or 0 at the top level.
func (lt LevelTable) NextXP(level int) int64 {
	next, ok := lt.Get(level + 1)
	if !ok {
		return 0
	}
	return next.XPRequired
}

// =============================================================================
// MEDALS
// =============================================================================

type Medal string

const (
	MedalGold   Medal = "gold"
	MedalSilver Medal = "silver"
	MedalBronze Medal = "bronze"
)

// MedalForRank returns the medal for ranks 1-3.
func MedalForRank(rank int) (Medal, bool) {
	switch rank {
	case 1:
		return MedalGold, true
	case 2:
		return MedalSilver, true
	case 3:
		return MedalBronze, true
	}
	return "", false
}

// Rank is the leaderboard position a medal stands for.
func (m Medal) Rank() int {
	switch m {
	case MedalGold:
		return 1
	case MedalSilver:
		return 2
	case MedalBronze:
		return 3
	}
	return 0
}

type MedalPoints struct {
	Gold   int64 `yaml:"gold" json:"gold"`
	Silver int64 `yaml:"silver" json:"silver"`
	Bronze int64 `yaml:"bronze" json:"bronze"`
}

func DefaultMedalPoints() MedalPoints {
	return MedalPoints{Gold: 100, Silver: 50, Bronze: 25}
}

func (mp MedalPoints) For(m Medal) int64 {
	switch m {
	case MedalGold:
		return mp.Gold
	case MedalSilver:
		return mp.Silver
	case MedalBronze:
		return mp.Bronze
	}
	return 0
}

// Tables is the immutable configuration a Service runs with.
type Tables struct {
	Levels      LevelTable  `yaml:"levels"`
	MedalPoints MedalPoints `yaml:"medal_points"`
}

func DefaultTables() Tables {
	return Tables{Levels: DefaultLevels(), MedalPoints: DefaultMedalPoints()}
}

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is the per-user singleton.
type Account struct {
	ID                string
	TenantID          generic.TenantID
	UserID            generic.UserID
	Total             int64 // lifetime earned
	Available         int64
	Spent             int64
	Level             int
	Experience        int64
	NextLevelXP       int64 // 0 at max level
	AchievementsCount int
	BestRank          int // 0 until a medal is won
	GoldMedals        int
	SilverMedals      int
	BronzeMedals      int
	UpdatedAt         time.Time
}

func NewAccount(tenantID generic.TenantID, userID generic.UserID, levels LevelTable) Account {
	return Account{
		ID:          generic.NewID(),
		TenantID:    tenantID,
		UserID:      userID,
		Level:       1,
		NextLevelXP: levels.NextXP(1),
	}
}

func (a Account) TotalMedals() int { return a.GoldMedals + a.SilverMedals + a.BronzeMedals }

// LevelProgress is the percent of the way from the current level to the next,
// rounded to one decimal. At the top level it is 100.
func (a Account) LevelProgress(levels LevelTable) float64 {
	cur, ok := levels.Get(a.Level)
	next, hasNext := levels.Get(a.Level + 1)
	if !ok || !hasNext {
		return 100
	}
	span := next.XPRequired - cur.XPRequired
	if span <= 0 {
		return 100
	}
	p := float64(a.Experience-cur.XPRequired) / float64(span) * 100
	return math.Min(100, math.Round(p*10)/10)
}

func (a *Account) medalCounter(m Medal) *int {
	switch m {
	case MedalGold:
		return &a.GoldMedals
	case MedalSilver:
		return &a.SilverMedals
	default:
		return &a.BronzeMedals
	}
}

// bestHeldRank is the rank of the best medal the account still holds, 0 for none.
func (a *Account) bestHeldRank() int {
	switch {
	case a.GoldMedals > 0:
		return 1
	case a.SilverMedals > 0:
		return 2
	case a.BronzeMedals > 0:
		return 3
	}
	return 0
}

// levelUp advances while experience covers the next level. Returns levels gained.
func (a *Account) levelUp(levels LevelTable) int {
	gained := 0
	for a.Level < levels.MaxLevel() {
		next, _ := levels.Get(a.Level + 1)
		if a.Experience < next.XPRequired {
			break
		}
		a.Level++
		gained++
	}
	a.NextLevelXP = levels.NextXP(a.Level)
	return gained
}
