/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the performance engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env plus environment)
  2. Build the zap logger and, when enabled, the stdout tracer
  3. Load the tuning tables and open the SQLite store
  4. Connect Redis when REDIS_URL is set (locks and leaderboard cache)
  5. Build the engine, optionally install a rules file for RULES_TENANT
  6. Start the HTTP server and, when enabled, the period scheduler

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Flush traces, close Redis and the database

ENVIRONMENT:
  See config/config.go for every variable and its default.

FLAGS:
  -port  Overrides PORT
  -db    Overrides DB_PATH

SEE ALSO:
  - api/server.go: Router configuration
  - engine/build.go: Engine wiring
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/warp/performance-engine/api"
	"github.com/warp/performance-engine/config"
	"github.com/warp/performance-engine/engine"
	"github.com/warp/performance-engine/factory"
	"github.com/warp/performance-engine/generic"
	"github.com/warp/performance-engine/logger"
	"github.com/warp/performance-engine/store/redis"
	"github.com/warp/performance-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", "error", err)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if cfg.TracingEnabled {
		shutdown, err := setupTracing()
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		defer shutdown()
	}

	tables, err := config.LoadTables(cfg.TablesFile)
	if err != nil {
		return err
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	opts := engine.Options{
		Tables:                     tables,
		IncludeUsersWithoutTargets: cfg.IncludeUsersWithoutTargets,
		Logger:                     log,
	}
	rdb, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		// In-process mutex first so local callers queue without polling Redis.
		opts.Locks = generic.Chain{generic.NewKeyedMutex(), redis.NewLocker(rdb, redis.DefaultLockTTL)}
		opts.Cache = redis.NewCache(rdb, 10*time.Minute)
		log.Info("redis enabled")
	}

	eng, err := engine.Build(store.Stores(), engine.Collaborators{
		Directory: store,
		Facts:     store,
		Calendar:  store,
	}, opts)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if cfg.RulesFile != "" {
		if err := installRulesFile(eng, cfg.RulesFile, generic.TenantID(cfg.RulesTenant), log); err != nil {
			return err
		}
	}

	handler := api.NewHandler(eng, store, log)
	router := api.NewRouter(handler, splitOrigins(cfg.AllowedOrigins))

	scheduler := api.NewPeriodScheduler(eng, store, log)
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		scheduler.Stop()
		return err
	}

	log.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// installRulesFile defines a rules document for one tenant at startup.
func installRulesFile(eng *engine.Engine, path string, tenantID generic.TenantID, log *logger.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}
	rules, err := factory.NewRulesFactory().ParseRules(string(raw))
	if err != nil {
		return fmt.Errorf("rules %s: %w", path, err)
	}
	report, err := rules.Install(context.Background(), tenantID, eng)
	if err != nil {
		return fmt.Errorf("install rules: %w", err)
	}
	log.Info("rules installed", "tenant_id", tenantID, "file", path, "kpis", report.KPIs,
		"penalty_rules", report.PenaltyRules, "achievements", report.Achievements, "bonus_settings", report.BonusSettings)
	return nil
}

func setupTracing() (func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}, nil
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
