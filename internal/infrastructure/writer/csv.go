// Package writer renders finished reports to their on-disk formats: the
// flat CSV files consumed by spreadsheet users and the nested JSON document
// consumed by downstream analysis.
package writer

import (
	"context"
	"encoding/csv"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mathadata/usage-insights/internal/application/export"
	"github.com/mathadata/usage-insights/internal/domain/institution"
	"github.com/mathadata/usage-insights/internal/domain/shared"
	"github.com/mathadata/usage-insights/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CSV REPORT WRITER
// ══════════════════════════════════════════════════════════════════════════════

// File layout under the output directory.
const (
	summaryFileName = "teachers_summary.csv"
	teachersDirName = "teachers"
)

// Column headers, kept byte-compatible with the historical export so
// existing spreadsheets keep working.
var (
	summaryHeaders = []string{
		"teacher_id", "nb_schools", "schools_uai", "schools_names",
		"nb_activities", "nb_activities_tested", "nb_activities_taught",
		"nb_activities_tested_then_taught", "conversion_rate", "adoption_style",
		"total_teaching_sessions", "total_unique_students", "avg_class_size",
		"uses_multiple_classes", "encourages_home_work", "home_work_rate",
		"does_follow_up_sessions", "second_session_rate",
		"first_usage_date", "last_usage_date", "usage_duration_days",
	}

	sessionHeaders = []string{
		"session_number", "activity_id", "activity_name", "uai", "school_name",
		"date", "timestamp", "time_pattern", "nb_students",
		"avg_work_duration_minutes", "continuation_rate", "home_work_rate",
		"had_second_session", "second_session_date", "second_session_students",
		"tested_first", "days_between_test_and_teaching",
		"is_same_students_as_previous", "overlap_rate",
	}

	timelineHeaders = []string{
		"timestamp", "date", "event_type", "activity_id", "activity_title",
		"student_id", "uai", "school_name", "work_duration_minutes",
	}
)

// CSVWriter renders a report as teachers_summary.csv plus one sessions file
// and one timeline file per teacher.
type CSVWriter struct {
	outputDir string
	loc       *time.Location
	logger    *slog.Logger
}

// NewCSVWriter creates a writer rooted at the given output directory.
func NewCSVWriter(outputDir string, loc *time.Location, logger *slog.Logger) *CSVWriter {
	if loc == nil {
		loc = timeutil.ParisTZ
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{outputDir: outputDir, loc: loc, logger: logger}
}

// Write renders the whole report. Existing files are overwritten; each run
// fully replaces the previous output.
func (w *CSVWriter) Write(ctx context.Context, r *export.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	teachersDir := filepath.Join(w.outputDir, teachersDirName)
	if err := os.MkdirAll(teachersDir, 0o755); err != nil {
		return shared.WrapError("writer", "Write", shared.ErrSinkUnavailable, "creating output directories", err)
	}

	dir := directoryFromReport(r)

	summaryRows := make([][]string, 0, len(r.Teachers))
	for _, p := range r.Teachers {
		summaryRows = append(summaryRows, summaryRecord(export.BuildSummaryRow(p, dir)))

		sessions := export.BuildSessionRows(p, dir, w.loc)
		if len(sessions) > 0 {
			records := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				records = append(records, sessionRecord(s))
			}
			path := filepath.Join(teachersDir, p.Teacher.String()+"_sessions.csv")
			if err := writeCSVFile(path, sessionHeaders, records); err != nil {
				return err
			}
		}

		timeline := export.BuildTimelineRows(p, dir, w.loc)
		if len(timeline) > 0 {
			records := make([][]string, 0, len(timeline))
			for _, e := range timeline {
				records = append(records, timelineRecord(e))
			}
			path := filepath.Join(teachersDir, p.Teacher.String()+"_timeline.csv")
			if err := writeCSVFile(path, timelineHeaders, records); err != nil {
				return err
			}
		}
	}

	summaryPath := filepath.Join(w.outputDir, summaryFileName)
	if err := writeCSVFile(summaryPath, summaryHeaders, summaryRows); err != nil {
		return err
	}

	w.logger.Info("csv report written",
		slog.String("dir", w.outputDir),
		slog.Int("teachers", len(r.Teachers)))
	return nil
}

// directoryFromReport rebuilds a lookup table from the report's own
// institution summaries, so the writer needs no second directory load.
func directoryFromReport(r *export.Report) *institution.Directory {
	infos := make([]institution.Info, 0, len(r.Institutions))
	for _, s := range r.Institutions {
		infos = append(infos, s.Info)
	}
	return institution.NewDirectory(infos)
}

func summaryRecord(row export.SummaryRow) []string {
	codes := make([]string, len(row.SchoolCodes))
	for i, c := range row.SchoolCodes {
		codes[i] = c.String()
	}

	return []string{
		row.TeacherID.String(),
		strconv.Itoa(row.SchoolCount),
		strings.Join(codes, "|"),
		strings.Join(row.SchoolNames, "|"),
		strconv.Itoa(row.ActivityCount),
		strconv.Itoa(row.TestedCount),
		strconv.Itoa(row.TaughtCount),
		strconv.Itoa(row.TestedThenTaught),
		formatOptionalRate(row.ConversionRate),
		string(row.AdoptionStyle),
		strconv.Itoa(row.TotalSessions),
		strconv.Itoa(row.UniqueStudents),
		strconv.Itoa(row.AvgClassSize),
		yesNo(row.UsesMultipleClasses),
		yesNo(row.EncouragesHomeWork),
		formatRate(row.HomeWorkRate),
		yesNo(row.DoesFollowUp),
		formatRate(row.SecondSessionRate),
		row.FirstUsageDate,
		row.LastUsageDate,
		strconv.Itoa(row.UsageDurationDays),
	}
}

func sessionRecord(s export.SessionRow) []string {
	secondDate := ""
	if s.SecondSessionStart != nil {
		secondDate = s.SecondSessionStart.UTC().Format(time.RFC3339)
	}
	days := ""
	if s.DaysBetweenTestTeach != nil {
		days = strconv.Itoa(*s.DaysBetweenTestTeach)
	}
	sameClass := ""
	overlap := ""
	if s.SameStudentsAsPrev != nil {
		sameClass = yesNo(*s.SameStudentsAsPrev)
		overlap = formatRate(*s.OverlapRate)
	}

	return []string{
		strconv.Itoa(s.SessionNumber),
		s.ActivityID.String(),
		s.ActivityName,
		s.SchoolCode.String(),
		s.SchoolName,
		s.Date,
		s.Timestamp.UTC().Format(time.RFC3339),
		s.TimePattern,
		strconv.Itoa(s.StudentCount),
		strconv.Itoa(s.AvgWorkMinutes),
		formatRate(s.ContinuationRate),
		formatRate(s.HomeWorkRate),
		yesNo(s.HadSecondSession),
		secondDate,
		strconv.Itoa(s.SecondSessionStudents),
		yesNo(s.TestedFirst),
		days,
		sameClass,
		overlap,
	}
}

func timelineRecord(e export.TimelineRow) []string {
	return []string{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Date,
		e.EventType,
		e.ActivityID.String(),
		e.ActivityTitle,
		e.StudentID.String(),
		e.SchoolCode.String(),
		e.SchoolName,
		strconv.Itoa(e.WorkDurationMin),
	}
}

func writeCSVFile(path string, headers []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return shared.WrapError("writer", "Write", shared.ErrSinkUnavailable, "creating "+filepath.Base(path), err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(headers); err != nil {
		return shared.WrapError("writer", "Write", shared.ErrSinkUnavailable, "writing "+filepath.Base(path), err)
	}
	if err := cw.WriteAll(records); err != nil {
		return shared.WrapError("writer", "Write", shared.ErrSinkUnavailable, "writing "+filepath.Base(path), err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return shared.WrapError("writer", "Write", shared.ErrSinkUnavailable, "flushing "+filepath.Base(path), err)
	}
	return f.Close()
}

// formatRate renders a ratio rounded to two decimals, without trailing
// zeros, matching the historical files.
func formatRate(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func formatOptionalRate(v *float64) string {
	if v == nil {
		return ""
	}
	return formatRate(*v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
