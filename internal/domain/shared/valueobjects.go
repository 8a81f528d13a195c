// Package shared contains common domain types, errors, and value objects
// used across all domain packages.
package shared

import (
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// TeacherID identifies a teacher account on the platform.
type TeacherID string

// IsValid checks if the teacher ID is non-empty.
func (t TeacherID) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// String returns the string representation.
func (t TeacherID) String() string {
	return string(t)
}

// StudentID identifies a student account. Empty for teacher-role events.
type StudentID string

// IsValid checks if the student ID is non-empty.
func (s StudentID) IsValid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// ActivityID identifies a learning activity (a published notebook).
type ActivityID string

// IsValid checks if the activity ID is non-empty.
func (a ActivityID) IsValid() bool {
	return strings.TrimSpace(string(a)) != ""
}

// String returns the string representation.
func (a ActivityID) String() string {
	return string(a)
}

// InstitutionCode is the stable national code (UAI) of an institution.
// The empty code is represented as "unknown" so it can be grouped explicitly.
type InstitutionCode string

// CodeUnknown groups events whose institution could not be attributed.
const CodeUnknown InstitutionCode = "unknown"

// IsKnown reports whether the code refers to a real institution.
func (c InstitutionCode) IsKnown() bool {
	return c != "" && c != CodeUnknown
}

// String returns the string representation.
func (c InstitutionCode) String() string {
	return string(c)
}

// NormalizeInstitutionCode maps blank codes to CodeUnknown.
func NormalizeInstitutionCode(raw string) InstitutionCode {
	code := strings.TrimSpace(raw)
	if code == "" {
		return CodeUnknown
	}
	return InstitutionCode(code)
}

// ═══════════════════════════════════════════════════════════════════════════
// Grouping Keys
// ═══════════════════════════════════════════════════════════════════════════

// StreamKey identifies a (teacher, activity) session stream. Continuity
// between consecutive sessions is only defined within one stream.
type StreamKey struct {
	Teacher  TeacherID
	Activity ActivityID
}

// ClusterKey identifies the grouping used for temporal clustering:
// one teacher, one activity, one institution.
// An explicit tuple type avoids the key collisions that string
// concatenation invites.
type ClusterKey struct {
	Teacher     TeacherID
	Activity    ActivityID
	Institution InstitutionCode
}

// Stream returns the continuity stream this cluster key belongs to.
func (k ClusterKey) Stream() StreamKey {
	return StreamKey{Teacher: k.Teacher, Activity: k.Activity}
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a time period.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && !t.From.After(t.To)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Extend widens the range to include the given instant.
func (t TimeRange) Extend(tm time.Time) TimeRange {
	if t.From.IsZero() || tm.Before(t.From) {
		t.From = tm
	}
	if t.To.IsZero() || tm.After(t.To) {
		t.To = tm
	}
	return t
}
