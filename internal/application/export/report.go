package export

import (
	"time"

	"github.com/mathadata/usage-insights/internal/domain/institution"
	"github.com/mathadata/usage-insights/internal/domain/profile"
	"github.com/mathadata/usage-insights/internal/domain/shared"
	"github.com/mathadata/usage-insights/pkg/timeutil"
)

// Metadata describes one export run.
type Metadata struct {
	RunID         string        `json:"run_id"`
	ExportedAt    time.Time     `json:"date_export"`
	TotalEvents   int           `json:"total_usages"`
	TotalTeachers int           `json:"total_teachers"`
	TotalSchools  int           `json:"total_schools"`
	DroppedRows   int           `json:"dropped_rows"`
	IdleThreshold time.Duration `json:"clustering_window"`
}

// Report is the nested document produced by one export run: run metadata,
// every teacher profile, and every institution summary.
type Report struct {
	Metadata     Metadata                 `json:"metadata"`
	Teachers     []profile.TeacherProfile `json:"teachers"`
	Institutions []institution.Summary    `json:"school_summaries"`
}

// SummaryRow is the flat per-teacher projection, one row of
// teachers_summary.csv. Field order matches the historical export.
type SummaryRow struct {
	TeacherID           shared.TeacherID
	SchoolCount         int
	SchoolCodes         []shared.InstitutionCode
	SchoolNames         []string
	ActivityCount       int
	TestedCount         int
	TaughtCount         int
	TestedThenTaught    int
	ConversionRate      *float64
	AdoptionStyle       profile.AdoptionStyle
	TotalSessions       int
	UniqueStudents      int
	AvgClassSize        int
	UsesMultipleClasses bool
	EncouragesHomeWork  bool
	HomeWorkRate        float64
	DoesFollowUp        bool
	SecondSessionRate   float64
	FirstUsageDate      string
	LastUsageDate       string
	UsageDurationDays   int
}

// SessionRow is one analyzed session flattened for the per-teacher
// sessions file.
type SessionRow struct {
	SessionNumber         int
	ActivityID            shared.ActivityID
	ActivityName          string
	SchoolCode            shared.InstitutionCode
	SchoolName            string
	Date                  string
	Timestamp             time.Time
	TimePattern           string
	StudentCount          int
	AvgWorkMinutes        int
	ContinuationRate      float64
	HomeWorkRate          float64
	HadSecondSession      bool
	SecondSessionStart    *time.Time
	SecondSessionStudents int
	TestedFirst           bool
	DaysBetweenTestTeach  *int
	SameStudentsAsPrev    *bool
	OverlapRate           *float64
}

// TimelineRow is one interaction flattened for the per-teacher timeline file.
type TimelineRow struct {
	Timestamp       time.Time
	Date            string
	EventType       string
	ActivityID      shared.ActivityID
	ActivityTitle   string
	StudentID       shared.StudentID
	SchoolCode      shared.InstitutionCode
	SchoolName      string
	WorkDurationMin int
}

// BuildSummaryRow flattens one teacher profile, resolving school names
// through the directory.
func BuildSummaryRow(p profile.TeacherProfile, dir *institution.Directory) SummaryRow {
	names := make([]string, len(p.Institutions))
	for i, code := range p.Institutions {
		names[i] = dir.Lookup(code).Name
	}

	row := SummaryRow{
		TeacherID:           p.Teacher,
		SchoolCount:         len(p.Institutions),
		SchoolCodes:         p.Institutions,
		SchoolNames:         names,
		ActivityCount:       len(p.Activities),
		TestedCount:         len(p.TestedActivities),
		TaughtCount:         len(p.TaughtActivities),
		TestedThenTaught:    len(p.TestedThenTaught),
		ConversionRate:      p.ConversionRate,
		AdoptionStyle:       p.AdoptionStyle,
		TotalSessions:       p.TotalSessions,
		UniqueStudents:      p.UniqueStudents,
		AvgClassSize:        p.AverageClassSize,
		UsesMultipleClasses: p.UsesMultipleClasses,
		EncouragesHomeWork:  p.EncouragesHomeWork,
		HomeWorkRate:        p.HomeWorkRate,
		DoesFollowUp:        p.DoesFollowUpSessions,
		SecondSessionRate:   p.SecondSessionRate,
		UsageDurationDays:   p.UsageDurationDays,
	}
	if !p.FirstUsage.IsZero() {
		row.FirstUsageDate = timeutil.FormatDateStr(timeutil.ToParis(p.FirstUsage))
		row.LastUsageDate = timeutil.FormatDateStr(timeutil.ToParis(p.LastUsage))
	}
	return row
}

// BuildSessionRows flattens a teacher's analyzed sessions.
func BuildSessionRows(p profile.TeacherProfile, dir *institution.Directory, loc *time.Location) []SessionRow {
	rows := make([]SessionRow, 0, len(p.Sessions))
	for _, s := range p.Sessions {
		row := SessionRow{
			SessionNumber:    s.Number,
			ActivityID:       s.Activity,
			ActivityName:     s.ActivityName,
			SchoolCode:       s.Institution,
			SchoolName:       dir.Lookup(s.Institution).Name,
			Date:             s.Analysis.Date(loc),
			Timestamp:        s.Analysis.StartAt,
			TimePattern:      string(s.Analysis.TimePattern),
			StudentCount:     s.Analysis.StudentCount,
			AvgWorkMinutes:   s.Analysis.AvgWorkDurationMinutes,
			ContinuationRate: s.Analysis.ContinuationRate,
			HomeWorkRate:     s.Analysis.HomeWorkRate,
			HadSecondSession: s.Analysis.SecondSession.Detected,
			TestedFirst:      s.TestedFirst,
		}
		if s.Analysis.SecondSession.Detected {
			start := s.Analysis.SecondSession.StartAt
			row.SecondSessionStart = &start
			row.SecondSessionStudents = s.Analysis.SecondSession.Students
		}
		if s.DaysBetweenTestAndTeach != nil {
			days := *s.DaysBetweenTestAndTeach
			row.DaysBetweenTestTeach = &days
		}
		if s.Continuity.Compared {
			same := s.Continuity.SameClass
			overlap := s.Continuity.Overlap
			row.SameStudentsAsPrev = &same
			row.OverlapRate = &overlap
		}
		rows = append(rows, row)
	}
	return rows
}

// BuildTimelineRows flattens a teacher's chronological event history.
func BuildTimelineRows(p profile.TeacherProfile, dir *institution.Directory, loc *time.Location) []TimelineRow {
	rows := make([]TimelineRow, 0, len(p.Timeline))
	for _, e := range p.Timeline {
		rows = append(rows, TimelineRow{
			Timestamp:       e.Timestamp,
			Date:            timeutil.FormatDateStr(e.Timestamp.In(loc)),
			EventType:       string(e.Kind),
			ActivityID:      e.Activity,
			ActivityTitle:   e.ActivityTitle,
			StudentID:       e.Student,
			SchoolCode:      e.Institution,
			SchoolName:      dir.Lookup(e.Institution).Name,
			WorkDurationMin: e.WorkDurationMinutes,
		})
	}
	return rows
}
