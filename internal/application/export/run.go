// Package export orchestrates one export run: load events, profile every
// teacher on a bounded worker pool, summarize institutions, and hand the
// resulting report to the configured writers.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mathadata/usage-insights/internal/domain/event"
	"github.com/mathadata/usage-insights/internal/domain/institution"
	"github.com/mathadata/usage-insights/internal/domain/profile"
	"github.com/mathadata/usage-insights/internal/domain/shared"
	"github.com/mathadata/usage-insights/pkg/timeutil"
)

// EventSource provides the normalized event stream. DroppedRows reports how
// many raw rows the source discarded during normalization.
type EventSource interface {
	Events(ctx context.Context) ([]event.Event, error)
	DroppedRows() int
}

// DirectorySource provides the institution lookup table.
type DirectorySource interface {
	Directory(ctx context.Context) (*institution.Directory, error)
}

// ReportWriter persists one finished report (files, cache, anything).
type ReportWriter interface {
	Write(ctx context.Context, r *Report) error
}

// Config contains configuration for an export run.
type Config struct {
	// Profile holds the analysis thresholds shared by all workers.
	Profile profile.Config

	// Concurrency is the number of parallel profiling workers.
	Concurrency int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Profile:     profile.DefaultConfig(),
		Concurrency: 4,
	}
}

// Stats contains statistics from one export run.
type Stats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	TotalEvents   int
	DroppedRows   int
	TotalTeachers int
	TotalSchools  int
	TotalSessions int
}

// Job runs the export pipeline end to end. Teachers are independent, so
// profiling fans out to a worker pool; everything downstream of the merge is
// sequential.
type Job struct {
	source    EventSource
	directory DirectorySource
	writers   []ReportWriter
	logger    *slog.Logger
	config    Config
}

// NewJob creates an export job. The directory source may be nil, in which
// case every institution resolves to the unknown placeholder.
func NewJob(source EventSource, directory DirectorySource, writers []ReportWriter, logger *slog.Logger, config Config) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Job{
		source:    source,
		directory: directory,
		writers:   writers,
		logger:    logger,
		config:    config,
	}
}

// Run executes one export run.
func (j *Job) Run(ctx context.Context) (*Report, *Stats, error) {
	stats := &Stats{StartedAt: timeutil.Now()}
	runID := uuid.New().String()
	log := j.logger.With(slog.String("run_id", runID))

	log.Info("export run starting")

	events, err := j.source.Events(ctx)
	if err != nil {
		return nil, nil, shared.WrapError("export", "Run", shared.ErrSourceUnavailable, "loading events", err)
	}
	stats.TotalEvents = len(events)
	stats.DroppedRows = j.source.DroppedRows()
	log.Info("events loaded",
		slog.Int("events", stats.TotalEvents),
		slog.Int("dropped_rows", stats.DroppedRows))

	dir, err := j.loadDirectory(ctx)
	if err != nil {
		return nil, nil, err
	}
	log.Info("institution directory loaded", slog.Int("institutions", dir.Len()))

	profiles, err := j.profileTeachers(ctx, events)
	if err != nil {
		return nil, nil, err
	}
	stats.TotalTeachers = len(profiles)
	for _, p := range profiles {
		stats.TotalSessions += p.TotalSessions
	}

	summaries := institution.Summarize(profiles, dir)
	stats.TotalSchools = len(summaries)

	report := &Report{
		Metadata: Metadata{
			RunID:         runID,
			ExportedAt:    timeutil.Now(),
			TotalEvents:   stats.TotalEvents,
			TotalTeachers: stats.TotalTeachers,
			TotalSchools:  stats.TotalSchools,
			DroppedRows:   stats.DroppedRows,
			IdleThreshold: j.config.Profile.IdleThreshold,
		},
		Teachers:     profiles,
		Institutions: summaries,
	}

	for _, w := range j.writers {
		if err := w.Write(ctx, report); err != nil {
			return nil, nil, shared.WrapError("export", "Run", shared.ErrSinkUnavailable, "writing report", err)
		}
	}

	stats.CompletedAt = timeutil.Now()
	stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
	log.Info("export run completed",
		slog.Int("teachers", stats.TotalTeachers),
		slog.Int("sessions", stats.TotalSessions),
		slog.Int("schools", stats.TotalSchools),
		slog.Duration("duration", stats.Duration))

	return report, stats, nil
}

func (j *Job) loadDirectory(ctx context.Context) (*institution.Directory, error) {
	if j.directory == nil {
		return institution.NewDirectory(nil), nil
	}
	dir, err := j.directory.Directory(ctx)
	if err != nil {
		return nil, shared.WrapError("export", "Run", shared.ErrSourceUnavailable, "loading institution directory", err)
	}
	return dir, nil
}

// profileTeachers fans per-teacher profiling out to the worker pool. Workers
// write disjoint slice slots, so no lock is needed; results merge in teacher
// ID order.
func (j *Job) profileTeachers(ctx context.Context, events []event.Event) ([]profile.TeacherProfile, error) {
	byTeacher := event.GroupByTeacher(events)

	teachers := make([]shared.TeacherID, 0, len(byTeacher))
	for id := range byTeacher {
		teachers = append(teachers, id)
	}
	sort.Slice(teachers, func(i, j int) bool { return teachers[i] < teachers[j] })

	profiles := make([]profile.TeacherProfile, len(teachers))
	profiler := profile.NewProfiler(j.config.Profile)

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < j.config.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				id := teachers[i]
				profiles[i] = profiler.Profile(id, byTeacher[id])
			}
		}()
	}

	for i := range teachers {
		select {
		case <-ctx.Done():
			close(indexes)
			wg.Wait()
			return nil, fmt.Errorf("export interrupted: %w", ctx.Err())
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	return profiles, nil
}
