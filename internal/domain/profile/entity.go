// Package profile aggregates a teacher's events and analyzed sessions into a
// behavioural profile: which activities they tested versus taught, how their
// classes behaved, and an adoption-style label summarizing how they sequence
// testing and teaching.
// This is a pure domain layer with zero external dependencies.
package profile

import (
	"time"

	"github.com/mathadata/usage-insights/internal/domain/session"
	"github.com/mathadata/usage-insights/internal/domain/shared"
)

// AdoptionStyle labels how a teacher sequences testing vs teaching.
type AdoptionStyle string

const (
	// StyleCautiousAdopter tests most activities before teaching them.
	StyleCautiousAdopter AdoptionStyle = "cautious_adopter"
	// StyleConfidentDirect teaches without ever testing.
	StyleConfidentDirect AdoptionStyle = "confident_direct"
	// StyleExplorerTester tests more activities than they teach.
	StyleExplorerTester AdoptionStyle = "explorer_tester"
	// StyleMixedApproach is the residual class.
	StyleMixedApproach AdoptionStyle = "mixed_approach"
	// StyleUnknown is the defined fallback for a teacher with no tested and
	// no taught activities. Upstream filtering makes this unreachable in
	// practice, but the classification stays total.
	StyleUnknown AdoptionStyle = "unknown"
)

// ClassifyAdoption applies the adoption-style rules in order, first match
// wins. Counts are distinct activities: tested (any teacher-role event),
// taught (any student-role session), and their intersection.
func ClassifyAdoption(tested, taught, testedThenTaught int) AdoptionStyle {
	if tested == 0 && taught == 0 {
		return StyleUnknown
	}
	switch {
	case float64(testedThenTaught) >= 0.7*float64(taught):
		return StyleCautiousAdopter
	case tested == 0:
		return StyleConfidentDirect
	case tested > taught:
		return StyleExplorerTester
	default:
		return StyleMixedApproach
	}
}

// EventKind tags timeline entries.
type EventKind string

const (
	// KindTest is a teacher-role interaction (self-testing).
	KindTest EventKind = "test"
	// KindTeaching is a student-role interaction within a class.
	KindTeaching EventKind = "teaching"
)

// TimelineEntry is one chronological interaction of the teacher's history,
// suitable for one row of the per-teacher timeline file.
type TimelineEntry struct {
	Timestamp           time.Time
	Kind                EventKind
	Activity            shared.ActivityID
	ActivityTitle       string
	Student             shared.StudentID // empty for tests
	Institution         shared.InstitutionCode
	WorkDurationMinutes int
}

// SessionRecord is one analyzed teaching session tagged with its place in
// the teacher's history: continuity against the previous session of the
// same activity stream and its relation to the activity's first test.
type SessionRecord struct {
	// Number is the 1-based position in the teacher's session list.
	Number       int
	Activity     shared.ActivityID
	ActivityName string
	Institution  shared.InstitutionCode

	Analysis session.Analysis
	Students []shared.StudentID

	Continuity session.Continuity

	// TestedFirst is set when the teacher tested the activity before this
	// session started. DaysBetweenTestAndTeach is nil when the activity was
	// never tested.
	TestedFirst             bool
	DaysBetweenTestAndTeach *int
}

// TestRecord is one self-testing interaction of the teacher.
type TestRecord struct {
	Timestamp       time.Time
	DurationMinutes int
	TimePattern     session.TimePattern
}

// ActivityHistory gathers everything one teacher did with one activity.
type ActivityHistory struct {
	Activity shared.ActivityID
	Name     string

	Tests    []TestRecord
	Sessions []SessionRecord

	UniqueStudents          int
	UsedWithMultipleClasses bool

	// Success indicators of the activity within this teacher's classes.
	HighContinuation       bool
	HomeWorkObserved       bool
	SecondSessionsObserved bool
	RepeatedUsage          bool
}

// TeacherProfile is the behavioural aggregate for one teacher, built once
// per export run and never updated incrementally.
type TeacherProfile struct {
	Teacher shared.TeacherID

	Institutions []shared.InstitutionCode

	TestedActivities []shared.ActivityID
	TaughtActivities []shared.ActivityID
	TestedThenTaught []shared.ActivityID

	Activities []ActivityHistory
	Sessions   []SessionRecord
	Timeline   []TimelineEntry

	AdoptionStyle         AdoptionStyle
	TestingBeforeTeaching bool
	// ConversionRate is tested-then-taught over tested; nil when the
	// teacher never tested anything.
	ConversionRate *float64

	TotalSessions    int
	UniqueStudents   int
	AverageClassSize int

	UsesMultipleClasses  bool
	EncouragesHomeWork   bool
	HomeWorkRate         float64
	DoesFollowUpSessions bool
	SecondSessionRate    float64

	FirstUsage        time.Time
	LastUsage         time.Time
	UsageDurationDays int
}
