/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  One database file backs every component. Store hands out per-component
  views (KPI, Streaks, Points, ...) because the component interfaces share
  method names; Stores() bundles them for engine.Build.

LAYOUT:
  Every row carries the columns its queries filter and sort on, plus a
  data_json column holding the full record. Reads decode data_json, so a
  new field on a domain type needs no migration.

APPEND-ONLY ENFORCEMENT:
  The transactions table is the points ledger:
  - No UPDATE statements on transactions table
  - No DELETE statements on transactions table
  - Corrections via reversal transactions only

KEY TABLES:
  transactions:          Immutable points ledger
  points_accounts:       Account projection, written with its transactions
  kpi_targets:           One live row per (kpi, user, period); cancelled rows are kept
  leaderboard_summaries: Replaced wholesale on every recompute
  penalties:             Full audit row, updated through each transition
  bonus_calculations:    One row per (user, period)
  members, activity_facts: Local directory and facts for single-process runs

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows a single writer;
  the mutex keeps writers from tripping SQLITE_BUSY.

USAGE:
  store, err := sqlite.New("./data/performance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  eng, err := engine.Build(store.Stores(), engine.Collaborators{
      Directory: store, Facts: store, Calendar: store,
  }, opts)

SEE ALSO:
  - generic/store.go: ledger interface
  - engine/build.go: Stores bundle
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/performance-engine/engine"
	"github.com/warp/performance-engine/generic"
)

var (
	_ generic.TxStore         = (*Store)(nil)
	_ generic.HolidayCalendar = (*Store)(nil)
	_ engine.Directory        = (*Store)(nil)
	_ engine.ActivityFacts    = (*Store)(nil)
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stores returns one view per component.
func (s *Store) Stores() engine.Stores {
	return engine.Stores{
		KPI:          s.KPI(),
		Streaks:      s.Streaks(),
		Points:       s.Points(),
		Achievements: s.Achievements(),
		Leaderboard:  s.Leaderboard(),
		Penalties:    s.Penalties(),
		Bonuses:      s.Bonuses(),
	}
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Points ledger (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		source TEXT,
		source_id TEXT,
		reason TEXT,
		balance_after TEXT NOT NULL,
		idempotency_key TEXT,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON transactions(tenant_id, user_id, effective_at);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_idempotency
		ON transactions(tenant_id, idempotency_key);

	CREATE TABLE IF NOT EXISTS points_accounts (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		data_json TEXT NOT NULL,
		PRIMARY KEY (tenant_id, user_id)
	);

	-- KPIs
	CREATE TABLE IF NOT EXISTS kpi_definitions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kpi_targets (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		kpi_id TEXT NOT NULL,
		period_type TEXT NOT NULL,
		period_start TEXT NOT NULL,
		status TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_kpi_targets_period
		ON kpi_targets(tenant_id, period_type, period_start);
	CREATE INDEX IF NOT EXISTS idx_kpi_targets_user
		ON kpi_targets(tenant_id, user_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_kpi_targets_unique
		ON kpi_targets(tenant_id, kpi_id, user_id, period_type, period_start)
		WHERE status != 'cancelled';

	-- Streaks
	CREATE TABLE IF NOT EXISTS streak_states (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		streak_type TEXT NOT NULL,
		frozen BOOLEAN NOT NULL DEFAULT FALSE,
		data_json TEXT NOT NULL,
		UNIQUE(tenant_id, user_id, streak_type)
	);

	CREATE TABLE IF NOT EXISTS streak_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		streak_id TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_streak_events_streak
		ON streak_events(streak_id);

	-- Achievements
	CREATE TABLE IF NOT EXISTS achievements (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		code TEXT NOT NULL,
		sort_order INTEGER NOT NULL DEFAULT 0,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_achievements (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		achievement_id TEXT NOT NULL,
		code TEXT NOT NULL,
		data_json TEXT NOT NULL,
		PRIMARY KEY (tenant_id, user_id, achievement_id)
	);

	-- Leaderboards
	CREATE TABLE IF NOT EXISTS leaderboard_summaries (
		tenant_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		period_type TEXT NOT NULL,
		period_start TEXT NOT NULL,
		user_id TEXT NOT NULL,
		rank INTEGER NOT NULL,
		data_json TEXT NOT NULL,
		PRIMARY KEY (tenant_id, period_key, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_user
		ON leaderboard_summaries(tenant_id, user_id, period_type, period_start DESC);

	CREATE TABLE IF NOT EXISTS leaderboard_entries (
		tenant_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		rank INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		data_json TEXT NOT NULL,
		PRIMARY KEY (tenant_id, period_key, user_id)
	);

	-- Penalties
	CREATE TABLE IF NOT EXISTS penalty_rules (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		code TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS penalties (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		rule_id TEXT,
		bonus_id TEXT,
		status TEXT NOT NULL,
		triggered_at TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_penalties_user_date
		ON penalties(tenant_id, user_id, triggered_at);
	CREATE INDEX IF NOT EXISTS idx_penalties_status
		ON penalties(tenant_id, status);

	CREATE TABLE IF NOT EXISTS penalty_warnings (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_warnings_user_rule
		ON penalty_warnings(tenant_id, user_id, rule_id);

	-- Bonuses
	CREATE TABLE IF NOT EXISTS bonus_settings (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		data_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bonus_calculations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		period_key TEXT NOT NULL,
		period_start TEXT NOT NULL,
		status TEXT NOT NULL,
		data_json TEXT NOT NULL,
		UNIQUE(tenant_id, user_id, period_key)
	);

	CREATE INDEX IF NOT EXISTS idx_bonus_calculations_status
		ON bonus_calculations(tenant_id, status);

	-- Holidays (tenant-specific and global)
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_tenant_date
		ON holidays(tenant_id, date);

	CREATE TABLE IF NOT EXISTS members (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS activity_facts (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		metric TEXT NOT NULL,
		day TEXT NOT NULL,
		value REAL NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, user_id, metric, day)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(tenant_id, date, name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data. For tests and demo resets only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"transactions", "points_accounts", "kpi_definitions", "kpi_targets",
		"streak_states", "streak_events", "achievements", "user_achievements",
		"leaderboard_summaries", "leaderboard_entries", "penalty_rules", "penalties",
		"penalty_warnings", "bonus_settings", "bonus_calculations", "holidays",
		"members", "activity_facts",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("reset %s: %w", t, err)
		}
	}
	return nil
}

// Tenants lists every tenant with at least one KPI definition.
func (s *Store) Tenants(ctx context.Context) ([]generic.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM kpi_definitions ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.TenantID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, generic.TenantID(id))
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// tsLayout keeps timestamps lexically sortable.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func timestamp(t time.Time) string { return t.UTC().Format(tsLayout) }

func dateText(tp generic.TimePoint) string { return tp.Time.UTC().Format("2006-01-02") }

func encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode row: %w", err)
	}
	return string(raw), nil
}

// queryDocs decodes the data_json column of every row.
func queryDocs[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// getDoc decodes a single row; ok is false when nothing matched.
func getDoc[T any](ctx context.Context, q querier, query string, args ...any) (T, bool, error) {
	var zero T
	docs, err := queryDocs[T](ctx, q, query, args...)
	if err != nil || len(docs) == 0 {
		return zero, false, err
	}
	return docs[0], true, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseAmount(value, unit string) generic.Amount {
	return generic.Amount{
		Value: generic.MustParseDecimal(value),
		Unit:  generic.Unit(unit),
	}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
