package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/performance-engine/achievement"
	"github.com/warp/performance-engine/bonus"
	"github.com/warp/performance-engine/leaderboard"
	"github.com/warp/performance-engine/penalty"
	"github.com/warp/performance-engine/points"
	"github.com/warp/performance-engine/streak"
)

// BonusTier is the YAML form of bonus.Tier.
type BonusTier struct {
	Name       string  `yaml:"name"`
	MinScore   float64 `yaml:"min_score"`
	Multiplier float64 `yaml:"multiplier"`
}

// Tables are the rule tables every service is constructed with.
type Tables struct {
	PerformanceTiers    leaderboard.Tiers           `yaml:"performance_tiers"`
	Streaks             streak.Tables               `yaml:"streaks"`
	Points              points.Tables               `yaml:"points"`
	AchievementTiers    achievement.TierMultipliers `yaml:"achievement_tiers"`
	BonusTiers          []BonusTier                 `yaml:"bonus_tiers"`
	WarningValidityDays int                         `yaml:"warning_validity_days"`
}

func DefaultTables() Tables {
	t := Tables{
		PerformanceTiers:    leaderboard.DefaultTiers(),
		Streaks:             streak.DefaultTables(),
		Points:              points.DefaultTables(),
		AchievementTiers:    achievement.DefaultTierMultipliers(),
		WarningValidityDays: penalty.DefaultWarningValidityDays,
	}
	for _, bt := range bonus.DefaultTiers() {
		m, _ := bt.Multiplier.Float64()
		t.BonusTiers = append(t.BonusTiers, BonusTier{Name: bt.Name, MinScore: bt.MinScore, Multiplier: m})
	}
	return t
}

// LoadTables overlays a YAML file on the defaults. Sections missing from
// the file keep their default values. An empty path returns the defaults.
func LoadTables(path string) (Tables, error) {
	t := DefaultTables()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read tables: %w", err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Tables{}, fmt.Errorf("parse tables %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, fmt.Errorf("tables %s: %w", path, err)
	}
	return t, nil
}

func (t Tables) Validate() error {
	if err := t.PerformanceTiers.Validate(); err != nil {
		return err
	}
	if err := t.Streaks.Validate(); err != nil {
		return err
	}
	if err := t.Points.Levels.Validate(); err != nil {
		return err
	}
	if t.WarningValidityDays <= 0 {
		return fmt.Errorf("warning_validity_days must be positive")
	}
	s := bonus.Setting{Name: "tables", Tiers: t.BonusSettingTiers()}
	return s.Validate()
}

// BonusSettingTiers converts the YAML tiers for bonus settings.
func (t Tables) BonusSettingTiers() []bonus.Tier {
	out := make([]bonus.Tier, 0, len(t.BonusTiers))
	for _, bt := range t.BonusTiers {
		out = append(out, bonus.Tier{Name: bt.Name, MinScore: bt.MinScore, Multiplier: decimal.NewFromFloat(bt.Multiplier)})
	}
	return out
}
