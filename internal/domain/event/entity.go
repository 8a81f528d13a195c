// Package event contains the normalized interaction record flowing through
// the export pipeline and the grouping functions that slice the flat log
// into per-teacher and per-cluster views.
// This is a pure domain layer with zero external dependencies.
package event

import (
	"sort"
	"time"

	"github.com/mathadata/usage-insights/internal/domain/shared"
)

// Role describes who produced an interaction record.
type Role string

const (
	// RoleTeacher marks self-testing by a teacher, without students.
	RoleTeacher Role = "teacher"
	// RoleStudent marks a student working on an activity in a teacher's class.
	RoleStudent Role = "student"
)

// IsValid checks if the role is one of the known values.
func (r Role) IsValid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Event is one timestamped interaction with a learning activity.
// Events are normalized upstream: CreatedAt is always set, ChangedAt
// defaults to CreatedAt, and the institution code is already attributed
// (teacher institution for teacher-role events, student institution for
// student-role events).
type Event struct {
	Role          Role
	Teacher       shared.TeacherID
	Student       shared.StudentID // empty for teacher-role events
	Activity      shared.ActivityID
	ActivityTitle string
	Institution   shared.InstitutionCode
	CreatedAt     time.Time
	ChangedAt     time.Time
}

// Validate checks the invariants every event must satisfy before it enters
// the pipeline. Events failing these are dropped by the ingestion layer.
func (e Event) Validate() error {
	if e.CreatedAt.IsZero() {
		return shared.ErrMissingCreatedAt
	}
	if !e.Teacher.IsValid() {
		return shared.ErrMissingTeacherID
	}
	if !e.Role.IsValid() {
		return shared.ErrUnknownRole
	}
	return nil
}

// WorkDuration is the time between creation and last modification.
// Zero when ChangedAt was absent upstream.
func (e Event) WorkDuration() time.Duration {
	if e.ChangedAt.Before(e.CreatedAt) {
		return 0
	}
	return e.ChangedAt.Sub(e.CreatedAt)
}

// ClusterKey returns the temporal-clustering key of the event.
func (e Event) ClusterKey() shared.ClusterKey {
	return shared.ClusterKey{
		Teacher:     e.Teacher,
		Activity:    e.Activity,
		Institution: e.Institution,
	}
}

// SortByCreatedAt orders events by creation time ascending, in place.
// Ties keep their relative input order.
func SortByCreatedAt(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}

// SortByChangedAt orders events by modification time ascending, in place.
func SortByChangedAt(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].ChangedAt.Before(events[j].ChangedAt)
	})
}

// GroupByTeacher slices the flat log into per-teacher event lists,
// each ordered by creation time.
func GroupByTeacher(events []Event) map[shared.TeacherID][]Event {
	grouped := make(map[shared.TeacherID][]Event)
	for _, e := range events {
		grouped[e.Teacher] = append(grouped[e.Teacher], e)
	}
	for _, list := range grouped {
		SortByCreatedAt(list)
	}
	return grouped
}

// GroupByClusterKey groups student-role events by their
// (teacher, activity, institution) clustering key, each list ordered by
// creation time. Teacher-role events carry no class and are excluded.
func GroupByClusterKey(events []Event) map[shared.ClusterKey][]Event {
	grouped := make(map[shared.ClusterKey][]Event)
	for _, e := range events {
		if e.Role != RoleStudent {
			continue
		}
		key := e.ClusterKey()
		grouped[key] = append(grouped[key], e)
	}
	for _, list := range grouped {
		SortByCreatedAt(list)
	}
	return grouped
}

// GroupByActivity slices events by activity, each list ordered by creation
// time. Both roles are included; callers separate tests from teaching.
func GroupByActivity(events []Event) map[shared.ActivityID][]Event {
	grouped := make(map[shared.ActivityID][]Event)
	for _, e := range events {
		grouped[e.Activity] = append(grouped[e.Activity], e)
	}
	for _, list := range grouped {
		SortByCreatedAt(list)
	}
	return grouped
}

// Institutions returns the distinct institution codes present in the events.
func Institutions(events []Event) []shared.InstitutionCode {
	seen := make(map[shared.InstitutionCode]struct{})
	var codes []shared.InstitutionCode
	for _, e := range events {
		if _, ok := seen[e.Institution]; ok {
			continue
		}
		seen[e.Institution] = struct{}{}
		codes = append(codes, e.Institution)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Span returns the time range covered by the events' creation timestamps.
// The zero range is returned for an empty slice.
func Span(events []Event) shared.TimeRange {
	var r shared.TimeRange
	for _, e := range events {
		r = r.Extend(e.CreatedAt)
	}
	return r
}
