package session

import (
	"fmt"
	"math"
	"time"

	"github.com/mathadata/usage-insights/internal/domain/event"
	"github.com/mathadata/usage-insights/internal/domain/shared"
	"github.com/mathadata/usage-insights/pkg/timeutil"
)

// Local-hour boundaries for the behavioural rules and time-of-day bands.
const (
	eveningStartHour = 18
	morningStartHour = 8
	lunchStartHour   = 12
	afternoonHour    = 14
	nightStartHour   = 22

	// minSecondSessionStudents is the smallest follow-up group that counts
	// as a second session: a lone student resuming work is homework, two or
	// more resuming together within one idle window is a session.
	minSecondSessionStudents = 2
)

// TimePattern tags a session with its time-of-day band and day type,
// e.g. "morning_weekday" or "evening_weekend".
type TimePattern string

// StudentWork holds the per-member measurements of one session.
type StudentWork struct {
	Student   shared.StudentID
	CreatedAt time.Time
	ChangedAt time.Time

	// WorkDurationMinutes is ChangedAt-CreatedAt rounded to whole minutes.
	WorkDurationMinutes int

	// ContinuedAfterThreshold is set when the student kept modifying their
	// work for longer than the idle threshold after starting.
	ContinuedAfterThreshold bool

	// WorkedAtHome is set when the last modification happened in the
	// evening, early morning, or on a weekend.
	WorkedAtHome bool
}

// SecondSession is the result of follow-up detection: did at least two
// students independently resume work together after the session closed.
type SecondSession struct {
	Detected bool
	StartAt  time.Time
	Students int
}

// Analysis is the immutable per-session result consumed by the profiler.
type Analysis struct {
	StartAt      time.Time
	Students     []StudentWork
	StudentCount int

	AvgWorkDurationMinutes int
	ContinuationRate       float64
	HomeWorkRate           float64

	SecondSession SecondSession
	TimePattern   TimePattern
}

// Date returns the session date (YYYY-MM-DD) in the analyzer's locale.
func (a Analysis) Date(loc *time.Location) string {
	return timeutil.FormatDateStr(a.StartAt.In(loc))
}

// Analyzer computes per-session statistics. The zero value is not usable;
// construct with NewAnalyzer.
type Analyzer struct {
	idle time.Duration
	loc  *time.Location
}

// NewAnalyzer creates an analyzer with the given idle threshold and locale.
// Zero/nil arguments fall back to one hour and Europe/Paris.
func NewAnalyzer(idle time.Duration, loc *time.Location) *Analyzer {
	if idle <= 0 {
		idle = DefaultIdleThreshold
	}
	if loc == nil {
		loc = timeutil.ParisTZ
	}
	return &Analyzer{idle: idle, loc: loc}
}

// Location returns the locale used for calendar-based rules.
func (a *Analyzer) Location() *time.Location {
	return a.loc
}

// Analyze computes the statistics of one non-empty cluster.
func (a *Analyzer) Analyze(c Cluster) (Analysis, error) {
	if c.Size() == 0 {
		return Analysis{}, shared.ErrEmptyCluster
	}

	students := make([]StudentWork, 0, c.Size())
	continued := 0
	atHome := 0
	totalMinutes := 0

	for _, e := range c.Events {
		work := StudentWork{
			Student:                 e.Student,
			CreatedAt:               e.CreatedAt,
			ChangedAt:               e.ChangedAt,
			WorkDurationMinutes:     roundMinutes(e.WorkDuration()),
			ContinuedAfterThreshold: e.WorkDuration() > a.idle,
			WorkedAtHome:            a.workedAtHome(e.CreatedAt, e.ChangedAt),
		}
		if work.ContinuedAfterThreshold {
			continued++
		}
		if work.WorkedAtHome {
			atHome++
		}
		totalMinutes += work.WorkDurationMinutes
		students = append(students, work)
	}

	n := len(students)
	return Analysis{
		StartAt:                c.Start(),
		Students:               students,
		StudentCount:           n,
		AvgWorkDurationMinutes: int(math.Round(float64(totalMinutes) / float64(n))),
		ContinuationRate:       float64(continued) / float64(n),
		HomeWorkRate:           float64(atHome) / float64(n),
		SecondSession:          a.detectSecondSession(c),
		TimePattern:            a.timePatternAt(c.Start()),
	}, nil
}

// workedAtHome implements the home-work heuristic. On the same calendar day
// only an evening modification counts; on a later day, weekends and
// out-of-school hours count.
func (a *Analyzer) workedAtHome(created, changed time.Time) bool {
	c := created.In(a.loc)
	ch := changed.In(a.loc)

	if timeutil.IsSameDay(c, ch) {
		return ch.Hour() >= eveningStartHour
	}
	if timeutil.IsWeekend(ch) {
		return true
	}
	return ch.Hour() >= eveningStartHour || ch.Hour() < morningStartHour
}

// detectSecondSession looks for modifications made after the session's
// nominal end (latest arrival plus one idle window), re-clusters them on
// ChangedAt, and keeps the largest group of at least two students. Ties go
// to the earliest group.
func (a *Analyzer) detectSecondSession(c Cluster) SecondSession {
	sessionEnd := c.Events[0].CreatedAt
	for _, e := range c.Events[1:] {
		if e.CreatedAt.After(sessionEnd) {
			sessionEnd = e.CreatedAt
		}
	}
	sessionEnd = sessionEnd.Add(a.idle)

	var after []event.Event
	for _, e := range c.Events {
		if e.ChangedAt.After(sessionEnd) {
			after = append(after, e)
		}
	}
	if len(after) < minSecondSessionStudents {
		return SecondSession{}
	}

	groups := filterMinSize(clusterByChanged(after, a.idle), minSecondSessionStudents)
	if len(groups) == 0 {
		return SecondSession{}
	}

	best := groups[0]
	for _, g := range groups[1:] {
		if g.Size() > best.Size() {
			best = g
		}
	}

	return SecondSession{
		Detected: true,
		StartAt:  best.Events[0].ChangedAt,
		Students: best.Size(),
	}
}

// timePatternAt computes the time-of-day/day-type tag from an instant.
func (a *Analyzer) timePatternAt(t time.Time) TimePattern {
	return TimePatternAt(t, a.loc)
}

// TimePatternAt tags an instant with its time-of-day band and day type in
// the given locale, e.g. "morning_weekday".
func TimePatternAt(t time.Time, loc *time.Location) TimePattern {
	local := t.In(loc)
	hour := local.Hour()

	var band string
	switch {
	case hour >= morningStartHour && hour < lunchStartHour:
		band = "morning"
	case hour >= lunchStartHour && hour < afternoonHour:
		band = "lunch"
	case hour >= afternoonHour && hour < eveningStartHour:
		band = "afternoon"
	case hour >= eveningStartHour && hour < nightStartHour:
		band = "evening"
	default:
		band = "night"
	}

	dayType := "weekday"
	if timeutil.IsWeekend(local) {
		dayType = "weekend"
	}

	return TimePattern(fmt.Sprintf("%s_%s", band, dayType))
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
