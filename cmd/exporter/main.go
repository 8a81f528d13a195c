// Package main is the entry point of the usage-insights exporter.
//
// The exporter is a batch job: it reads the MathAData usage log (a CSV dump
// or the platform database), clusters student events into teaching sessions,
// profiles every teacher, summarizes institutions, and writes the resulting
// report as CSV files, a JSON document, and optionally a Redis cache entry
// for the dashboard.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mathadata/usage-insights/config"
	"github.com/mathadata/usage-insights/internal/application/export"
	"github.com/mathadata/usage-insights/internal/domain/profile"
	"github.com/mathadata/usage-insights/internal/infrastructure/ingest"
	"github.com/mathadata/usage-insights/internal/infrastructure/persistence/postgres"
	"github.com/mathadata/usage-insights/internal/infrastructure/persistence/redis"
	"github.com/mathadata/usage-insights/internal/infrastructure/writer"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting usage-insights exporter",
		"env", string(cfg.App.Environment),
		"debug", cfg.App.Debug,
		"timezone", cfg.App.Timezone,
		"source", string(cfg.Input.Source),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT SOURCE (CSV dump or platform database)
	// ─────────────────────────────────────────────────────────────────────────
	var source export.EventSource
	switch cfg.Input.Source {
	case config.SourcePostgres:
		log.Info("connecting to database...")
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			log.Info("closing database connection...")
			conn.Close()
		}()
		source = postgres.NewEventSource(conn, cfg.App.Location, log)
		log.Info("database connection established")
	default:
		source = ingest.NewCSVEventSource(cfg.Input.UsageCSVPath, cfg.App.Location, log)
		log.Info("reading usage log from file", "path", cfg.Input.UsageCSVPath)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. INSTITUTION DIRECTORY (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var directory export.DirectorySource
	if cfg.Input.AnnuairePath != "" {
		if _, err := os.Stat(cfg.Input.AnnuairePath); err == nil {
			directory = ingest.NewDirectoryLoader(cfg.Input.AnnuairePath, log)
		} else {
			log.Warn("annuaire file not found, institutions will be unresolved",
				"path", cfg.Input.AnnuairePath)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REPORT WRITERS
	// ─────────────────────────────────────────────────────────────────────────
	var writers []export.ReportWriter
	if cfg.Output.WriteCSV {
		writers = append(writers, writer.NewCSVWriter(cfg.Output.Dir, cfg.App.Location, log))
	}
	if cfg.Output.WriteJSON {
		writers = append(writers, writer.NewJSONWriter(cfg.Output.Dir, log))
	}

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.ReportTTL = cfg.Redis.ReportTTL

		cache, err := redis.NewReportCache(ctx, redisCfg, log)
		if err != nil {
			log.Warn("failed to connect to Redis, report caching disabled", "error", err)
		} else {
			defer cache.Close()
			writers = append(writers, cache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. EXPORT RUN
	// ─────────────────────────────────────────────────────────────────────────
	jobConfig := export.Config{
		Profile: profile.Config{
			IdleThreshold:      cfg.Analysis.IdleThreshold,
			SameClassThreshold: cfg.Analysis.SameClassThreshold,
			EngagementCutoff:   cfg.Analysis.EngagementCutoff,
			Location:           cfg.App.Location,
		},
		Concurrency: cfg.Analysis.Concurrency,
	}

	job := export.NewJob(source, directory, writers, log, jobConfig)

	_, stats, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	log.Info("export finished",
		"events", stats.TotalEvents,
		"dropped_rows", stats.DroppedRows,
		"teachers", stats.TotalTeachers,
		"sessions", stats.TotalSessions,
		"schools", stats.TotalSchools,
		"duration", stats.Duration.String(),
	)
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	if cfg.IsProduction() {
		// JSON format in production, easier for log aggregators.
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Text format in development, easier to read.
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
