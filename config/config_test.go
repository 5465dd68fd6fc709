package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/performance-engine/config"
	"github.com/warp/performance-engine/leaderboard"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "")
	os.Unsetenv("SCHEDULER_INTERVAL")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.SchedulerInterval)
	assert.False(t, cfg.IncludeUsersWithoutTargets)
}

func TestLoad_ReadsEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SCHEDULER_ENABLED", "true")
	t.Setenv("SCHEDULER_INTERVAL", "15m")
	t.Setenv("INCLUDE_USERS_WITHOUT_TARGETS", "1")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Equal(t, 15*time.Minute, cfg.SchedulerInterval)
	assert.True(t, cfg.IncludeUsersWithoutTargets)
}

func TestLoad_RejectsBadBool(t *testing.T) {
	t.Setenv("TRACING_ENABLED", "maybe")

	_, err := config.Load()

	assert.Error(t, err)
}

func TestLoad_RulesFileNeedsTenant(t *testing.T) {
	t.Setenv("RULES_FILE", "rules.json")
	t.Setenv("RULES_TENANT", "")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("RULES_TENANT", "biz-1")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "biz-1", cfg.RulesTenant)
}

func TestDefaultTables_Valid(t *testing.T) {
	assert.NoError(t, config.DefaultTables().Validate())
}

func TestLoadTables_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
performance_tiers:
  - {tier: exceptional, min: 95}
  - {tier: good, min: 50}
points:
  medal_points: {gold: 300, silver: 200, bronze: 100}
`), 0o600))

	tables, err := config.LoadTables(path)

	require.NoError(t, err)
	assert.Equal(t, leaderboard.TierGood, tables.PerformanceTiers.Classify(60))
	assert.Equal(t, int64(300), tables.Points.MedalPoints.Gold)
	// untouched sections keep defaults
	assert.NotEmpty(t, tables.Points.Levels)
	assert.NotEmpty(t, tables.Streaks.Types)
}

func TestLoadTables_RejectsNonMonotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
performance_tiers:
  - {tier: good, min: 50}
  - {tier: exceptional, min: 95}
`), 0o600))

	_, err := config.LoadTables(path)

	assert.Error(t, err)
}
