package profile

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mathadata/usage-insights/internal/domain/event"
	"github.com/mathadata/usage-insights/internal/domain/session"
	"github.com/mathadata/usage-insights/internal/domain/shared"
	"github.com/mathadata/usage-insights/pkg/timeutil"
)

// DefaultEngagementCutoff is the rate above which a behaviour (home work,
// follow-up sessions) is considered encouraged rather than incidental.
const DefaultEngagementCutoff = 0.1

// Config holds the profiler's tunable thresholds.
type Config struct {
	// IdleThreshold bounds a session cluster. Zero means one hour.
	IdleThreshold time.Duration

	// SameClassThreshold is the roster-overlap ratio above which two
	// consecutive sessions count as the same class. Zero means 0.7.
	SameClassThreshold float64

	// EngagementCutoff is the rate above which home work / follow-up
	// behaviour is flagged. Zero means 0.1.
	EngagementCutoff float64

	// Location is the locale for calendar-based rules. Nil means
	// Europe/Paris.
	Location *time.Location
}

// DefaultConfig returns the historical thresholds.
func DefaultConfig() Config {
	return Config{
		IdleThreshold:      session.DefaultIdleThreshold,
		SameClassThreshold: session.DefaultSameClassThreshold,
		EngagementCutoff:   DefaultEngagementCutoff,
		Location:           timeutil.ParisTZ,
	}
}

// Profiler builds TeacherProfiles from a teacher's event subset. It holds no
// mutable state and is safe for concurrent use across teachers.
type Profiler struct {
	cfg      Config
	analyzer *session.Analyzer
}

// NewProfiler creates a profiler, filling zero config fields with defaults.
func NewProfiler(cfg Config) *Profiler {
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = session.DefaultIdleThreshold
	}
	if cfg.SameClassThreshold <= 0 {
		cfg.SameClassThreshold = session.DefaultSameClassThreshold
	}
	if cfg.EngagementCutoff <= 0 {
		cfg.EngagementCutoff = DefaultEngagementCutoff
	}
	if cfg.Location == nil {
		cfg.Location = timeutil.ParisTZ
	}
	return &Profiler{
		cfg:      cfg,
		analyzer: session.NewAnalyzer(cfg.IdleThreshold, cfg.Location),
	}
}

// Profile aggregates all events of one teacher into a behavioural profile.
// Malformed values degrade the profile (fields stay empty or zero); nothing
// aborts the run.
func (p *Profiler) Profile(teacher shared.TeacherID, events []event.Event) TeacherProfile {
	prof := TeacherProfile{
		Teacher:       teacher,
		AdoptionStyle: StyleUnknown,
	}
	if len(events) == 0 {
		return prof
	}

	prof.Institutions = event.Institutions(events)
	prof.Timeline = buildTimeline(events)

	byActivity := event.GroupByActivity(events)
	activityIDs := sortedActivityIDs(byActivity)

	testedSet := make(map[shared.ActivityID]struct{})
	taughtSet := make(map[shared.ActivityID]struct{})
	studentSet := make(map[shared.StudentID]struct{})

	sessionNumber := 0
	for _, id := range activityIDs {
		history := p.buildActivityHistory(id, byActivity[id], &sessionNumber)

		if len(history.Tests) > 0 {
			testedSet[id] = struct{}{}
		}
		if len(history.Sessions) > 0 {
			taughtSet[id] = struct{}{}
		}
		for _, e := range byActivity[id] {
			if e.Role == event.RoleStudent && e.Student.IsValid() {
				studentSet[e.Student] = struct{}{}
			}
		}

		prof.Activities = append(prof.Activities, history)
		prof.Sessions = append(prof.Sessions, history.Sessions...)
	}

	prof.TestedActivities = sortedSetKeys(testedSet)
	prof.TaughtActivities = sortedSetKeys(taughtSet)
	for _, id := range prof.TestedActivities {
		if _, ok := taughtSet[id]; ok {
			prof.TestedThenTaught = append(prof.TestedThenTaught, id)
		}
	}

	p.aggregate(&prof, len(studentSet))
	return prof
}

// buildActivityHistory clusters the activity's teaching events per
// institution, orders the resulting sessions chronologically, and tags each
// with continuity against its predecessor in the stream.
func (p *Profiler) buildActivityHistory(id shared.ActivityID, events []event.Event, sessionNumber *int) ActivityHistory {
	history := ActivityHistory{
		Activity: id,
		Name:     activityName(id, events),
	}

	var firstTest time.Time
	var teaching []event.Event
	for _, e := range events {
		switch {
		case e.Role == event.RoleTeacher:
			history.Tests = append(history.Tests, TestRecord{
				Timestamp:       e.CreatedAt,
				DurationMinutes: int(math.Round(e.WorkDuration().Minutes())),
				TimePattern:     session.TimePatternAt(e.CreatedAt, p.cfg.Location),
			})
			if firstTest.IsZero() || e.CreatedAt.Before(firstTest) {
				firstTest = e.CreatedAt
			}
		case e.Role == event.RoleStudent && e.Student.IsValid():
			teaching = append(teaching, e)
		}
	}

	clusters := clustersAcrossInstitutions(teaching, p.cfg.IdleThreshold)

	uniqueStudents := make(map[shared.StudentID]struct{})
	var prevRoster []shared.StudentID
	for _, c := range clusters {
		analysis, err := p.analyzer.Analyze(c)
		if err != nil {
			continue // clusters are never empty by construction
		}

		*sessionNumber++
		students := c.Students()
		for _, s := range students {
			uniqueStudents[s] = struct{}{}
		}

		record := SessionRecord{
			Number:       *sessionNumber,
			Activity:     id,
			ActivityName: history.Name,
			Institution:  c.Events[0].Institution,
			Analysis:     analysis,
			Students:     students,
			Continuity:   session.CompareRosters(prevRoster, students, p.cfg.SameClassThreshold),
		}
		if !firstTest.IsZero() {
			record.TestedFirst = firstTest.Before(analysis.StartAt)
			days := int(math.Round(analysis.StartAt.Sub(firstTest).Hours() / 24))
			record.DaysBetweenTestAndTeach = &days
		}

		history.Sessions = append(history.Sessions, record)
		prevRoster = students
	}

	history.UniqueStudents = len(uniqueStudents)
	for _, s := range history.Sessions {
		if s.Continuity.Compared && !s.Continuity.SameClass {
			history.UsedWithMultipleClasses = true
		}
		if s.Analysis.ContinuationRate >= 0.5 {
			history.HighContinuation = true
		}
		if s.Analysis.HomeWorkRate > 0 {
			history.HomeWorkObserved = true
		}
		if s.Analysis.SecondSession.Detected {
			history.SecondSessionsObserved = true
		}
	}
	history.RepeatedUsage = len(history.Sessions) > 1

	return history
}

// aggregate fills the profile's teacher-level statistics. Every rate is a
// total function: empty denominators yield 0, never an error.
func (p *Profiler) aggregate(prof *TeacherProfile, uniqueStudents int) {
	prof.AdoptionStyle = ClassifyAdoption(
		len(prof.TestedActivities),
		len(prof.TaughtActivities),
		len(prof.TestedThenTaught),
	)
	prof.TestingBeforeTeaching = len(prof.TestedThenTaught) > 0
	if n := len(prof.TestedActivities); n > 0 {
		rate := float64(len(prof.TestedThenTaught)) / float64(n)
		prof.ConversionRate = &rate
	}

	prof.TotalSessions = len(prof.Sessions)
	prof.UniqueStudents = uniqueStudents
	if prof.TotalSessions > 0 {
		prof.AverageClassSize = int(math.Round(float64(uniqueStudents) / float64(prof.TotalSessions)))

		homeWorkSum := 0.0
		secondSessions := 0
		for _, s := range prof.Sessions {
			homeWorkSum += s.Analysis.HomeWorkRate
			if s.Analysis.SecondSession.Detected {
				secondSessions++
			}
			if s.Continuity.Compared && !s.Continuity.SameClass {
				prof.UsesMultipleClasses = true
			}
		}
		prof.HomeWorkRate = homeWorkSum / float64(prof.TotalSessions)
		prof.SecondSessionRate = float64(secondSessions) / float64(prof.TotalSessions)
	}
	prof.EncouragesHomeWork = prof.HomeWorkRate > p.cfg.EngagementCutoff
	prof.DoesFollowUpSessions = prof.SecondSessionRate > p.cfg.EngagementCutoff

	if len(prof.Timeline) > 0 {
		prof.FirstUsage = prof.Timeline[0].Timestamp
		prof.LastUsage = prof.Timeline[len(prof.Timeline)-1].Timestamp
		prof.UsageDurationDays = timeutil.DaysBetween(prof.FirstUsage, prof.LastUsage)
	}
}

// clustersAcrossInstitutions clusters teaching events per institution and
// merges the results into one chronological stream. The explicit sort keeps
// the "previous session" comparison independent of map iteration order.
func clustersAcrossInstitutions(teaching []event.Event, idle time.Duration) []session.Cluster {
	byInstitution := make(map[shared.InstitutionCode][]event.Event)
	for _, e := range teaching {
		byInstitution[e.Institution] = append(byInstitution[e.Institution], e)
	}

	var clusters []session.Cluster
	for _, group := range byInstitution {
		clusters = append(clusters, session.ClusterByCreated(group, idle)...)
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Start().Before(clusters[j].Start())
	})
	return clusters
}

func buildTimeline(events []event.Event) []TimelineEntry {
	ordered := make([]event.Event, len(events))
	copy(ordered, events)
	event.SortByCreatedAt(ordered)

	timeline := make([]TimelineEntry, 0, len(ordered))
	for _, e := range ordered {
		kind := KindTeaching
		if e.Role == event.RoleTeacher {
			kind = KindTest
		}
		timeline = append(timeline, TimelineEntry{
			Timestamp:           e.CreatedAt,
			Kind:                kind,
			Activity:            e.Activity,
			ActivityTitle:       e.ActivityTitle,
			Student:             e.Student,
			Institution:         e.Institution,
			WorkDurationMinutes: int(math.Round(e.WorkDuration().Minutes())),
		})
	}
	return timeline
}

func activityName(id shared.ActivityID, events []event.Event) string {
	for _, e := range events {
		if e.ActivityTitle != "" {
			return e.ActivityTitle
		}
	}
	return fmt.Sprintf("Activity %s", id)
}

func sortedActivityIDs(m map[shared.ActivityID][]event.Event) []shared.ActivityID {
	ids := make([]shared.ActivityID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedSetKeys(set map[shared.ActivityID]struct{}) []shared.ActivityID {
	ids := make([]shared.ActivityID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
