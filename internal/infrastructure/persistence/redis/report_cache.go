// Package redis publishes finished export reports to Redis so the dashboard
// can read the latest run without touching the output files.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mathadata/usage-insights/internal/application/export"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// ReportTTL is how long a published report stays readable. Zero keeps
	// it until the next run overwrites it.
	ReportTTL time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		ReportTTL:    7 * 24 * time.Hour,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss is returned when no report has been published yet.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned when Redis connection fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization is returned when serialization fails.
	ErrCacheSerialization = errors.New("cache: serialization failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

// Key layout for published reports.
const (
	// keyLatestReport holds the full document of the most recent run.
	keyLatestReport = "export:report:latest"

	// keyLatestMeta holds just the metadata of the most recent run, for
	// cheap dashboard polling.
	keyLatestMeta = "export:report:latest:meta"

	// prefixRunReport holds historical runs keyed by run ID.
	prefixRunReport = "export:report:run:"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ReportCache stores export reports in Redis. It implements the export
// job's ReportWriter contract.
type ReportCache struct {
	client *redis.Client
	config Config
	logger *slog.Logger
}

// NewReportCache creates a report cache and verifies the connection.
func NewReportCache(ctx context.Context, cfg Config, logger *slog.Logger) (*ReportCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return &ReportCache{client: client, config: cfg, logger: logger}, nil
}

// Write publishes the report under both the latest key and its run-ID key.
func (c *ReportCache) Write(ctx context.Context, r *export.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, keyLatestReport, payload, 0)
	pipe.Set(ctx, keyLatestMeta, meta, 0)
	pipe.Set(ctx, prefixRunReport+r.Metadata.RunID, payload, c.config.ReportTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	c.logger.Info("report published to cache",
		slog.String("run_id", r.Metadata.RunID),
		slog.Int("bytes", len(payload)))
	return nil
}

// Latest reads back the most recently published report.
func (c *ReportCache) Latest(ctx context.Context) (*export.Report, error) {
	payload, err := c.client.Get(ctx, keyLatestReport).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	var report export.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return &report, nil
}

// Close releases the underlying client.
func (c *ReportCache) Close() error {
	return c.client.Close()
}
