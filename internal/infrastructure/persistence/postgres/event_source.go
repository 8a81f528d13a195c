package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/mathadata/usage-insights/internal/domain/event"
	"github.com/mathadata/usage-insights/internal/domain/shared"
	"github.com/mathadata/usage-insights/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT SOURCE
// ══════════════════════════════════════════════════════════════════════════════

// usageQuery reads the raw usage log. The COALESCE chain mirrors the
// attribution done on CSV dumps: student institution for student rows,
// teacher institution for teacher rows.
const usageQuery = `
SELECT
    lower(trim(role))                         AS role,
    trim(teacher)                             AS teacher,
    COALESCE(trim(student), '')               AS student,
    COALESCE(trim(mathadata_id), '')          AS activity_id,
    COALESCE(trim(mathadata_title), '')       AS activity_title,
    COALESCE(trim(uai_el), '')                AS uai_student,
    COALESCE(trim(uai_teach), '')             AS uai_teacher,
    created,
    COALESCE(changed, created)                AS changed
FROM usage_log
WHERE teacher IS NOT NULL
  AND trim(teacher) <> ''
  AND created IS NOT NULL
ORDER BY created
`

// EventSource streams normalized events out of the platform database. It
// satisfies the same contract as the CSV source; rows the query cannot
// normalize are dropped and counted.
type EventSource struct {
	conn    *Connection
	loc     *time.Location
	logger  *slog.Logger
	dropped int
}

// NewEventSource creates a database-backed event source.
func NewEventSource(conn *Connection, loc *time.Location, logger *slog.Logger) *EventSource {
	if loc == nil {
		loc = timeutil.ParisTZ
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventSource{conn: conn, loc: loc, logger: logger}
}

// Events runs the usage query and maps rows to domain events.
func (s *EventSource) Events(ctx context.Context) ([]event.Event, error) {
	if s.conn.IsClosed() {
		return nil, shared.WrapError("postgres", "Events", shared.ErrSourceUnavailable, "querying usage log", ErrConnectionClosed)
	}

	rows, err := s.conn.Pool().Query(ctx, usageQuery)
	if err != nil {
		return nil, shared.WrapError("postgres", "Events", shared.ErrSourceUnavailable, "querying usage log", err)
	}
	defer rows.Close()

	s.dropped = 0
	var events []event.Event
	for rows.Next() {
		var (
			role, teacher, student   string
			activityID, activityName string
			uaiStudent, uaiTeacher   string
			created, changed         time.Time
		)
		if err := rows.Scan(&role, &teacher, &student, &activityID, &activityName,
			&uaiStudent, &uaiTeacher, &created, &changed); err != nil {
			return nil, shared.WrapError("postgres", "Events", shared.ErrInvalidFormat, "scanning usage row", err)
		}

		e, ok := s.normalize(role, teacher, student, activityID, activityName,
			uaiStudent, uaiTeacher, created, changed)
		if !ok {
			s.dropped++
			continue
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("postgres", "Events", shared.ErrSourceUnavailable, "reading usage rows", err)
	}

	s.logger.Info("usage log queried",
		slog.Int("events", len(events)),
		slog.Int("dropped_rows", s.dropped))
	return events, nil
}

// DroppedRows reports how many rows the last Events call discarded.
func (s *EventSource) DroppedRows() int {
	return s.dropped
}

func (s *EventSource) normalize(role, teacher, student, activityID, activityName,
	uaiStudent, uaiTeacher string, created, changed time.Time) (event.Event, bool) {

	var r event.Role
	switch role {
	case "teacher":
		r = event.RoleTeacher
	case "student":
		r = event.RoleStudent
	default:
		return event.Event{}, false
	}

	institution := uaiStudent
	if r == event.RoleTeacher {
		institution = uaiTeacher
	}

	if changed.Before(created) {
		changed = created
	}

	e := event.Event{
		Role:          r,
		Teacher:       shared.TeacherID(teacher),
		Student:       shared.StudentID(student),
		Activity:      shared.ActivityID(activityID),
		ActivityTitle: activityName,
		Institution:   shared.NormalizeInstitutionCode(institution),
		CreatedAt:     created.In(s.loc),
		ChangedAt:     changed.In(s.loc),
	}
	if err := e.Validate(); err != nil {
		return event.Event{}, false
	}
	return e, true
}
