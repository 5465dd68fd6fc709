/*
Package config loads process settings from the environment and the rule
tables from YAML.

PURPOSE:
  Config carries everything that differs per deployment (port, database
  path, redis, scheduler). Tables carry the business constants: tier
  thresholds, streak multipliers, level curve, medal points. Both are read
  once at startup and passed into constructors.

SEE ALSO:
  - tables.go: DefaultTables, LoadTables
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string
	Port    string
	LogMode string

	DBPath   string
	RedisURL string

	RulesFile   string
	RulesTenant string
	TablesFile  string

	SchedulerEnabled  bool
	SchedulerInterval time.Duration

	TracingEnabled             bool
	IncludeUsersWithoutTargets bool
	AllowedOrigins             string
}

func Load() (*Config, error) {
	// .env is optional; production sets real env vars
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		LogMode:        getEnv("LOG_MODE", "dev"),
		DBPath:         getEnv("DB_PATH", "performance.db"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RulesFile:      os.Getenv("RULES_FILE"),
		RulesTenant:    os.Getenv("RULES_TENANT"),
		TablesFile:     os.Getenv("TABLES_FILE"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
	}

	var err error
	if cfg.SchedulerEnabled, err = parseBool("SCHEDULER_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.TracingEnabled, err = parseBool("TRACING_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.IncludeUsersWithoutTargets, err = parseBool("INCLUDE_USERS_WITHOUT_TARGETS", false); err != nil {
		return nil, err
	}
	cfg.SchedulerInterval, err = time.ParseDuration(getEnv("SCHEDULER_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_INTERVAL: %w", err)
	}
	if cfg.SchedulerInterval <= 0 {
		return nil, fmt.Errorf("invalid SCHEDULER_INTERVAL: must be positive")
	}
	if cfg.RulesFile != "" && cfg.RulesTenant == "" {
		return nil, fmt.Errorf("RULES_FILE needs RULES_TENANT")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseBool(key string, fallback bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
