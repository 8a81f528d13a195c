// Package ingest loads and normalizes the raw platform exports: the usage
// log CSV and the public institution directory CSV. All parsing quirks of
// the upstream dumps (mixed delimiters, "NULL" tokens, epoch vs ISO
// timestamps) are contained here; domain packages only ever see normalized
// events.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mathadata/usage-insights/internal/domain/event"
	"github.com/mathadata/usage-insights/internal/domain/shared"
	"github.com/mathadata/usage-insights/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CSV EVENT SOURCE
// ══════════════════════════════════════════════════════════════════════════════

// Usage log column names, as exported by the platform.
const (
	colRole          = "role"
	colTeacher       = "teacher"
	colStudent       = "student"
	colActivityID    = "mathadata_id"
	colActivityTitle = "mathadata_title"
	colUAIStudent    = "uai_el"
	colUAI           = "uai"
	colUAITeacher    = "uai_teach"
	colCreated       = "created"
	colChanged       = "changed"
)

// nullToken marks an absent value in the upstream dumps.
const nullToken = "NULL"

// CSVEventSource reads the usage log CSV and yields normalized events.
// Rows missing a teacher ID or a creation timestamp are dropped and counted,
// never surfaced as errors; one bad row must not abort an export.
type CSVEventSource struct {
	path    string
	loc     *time.Location
	logger  *slog.Logger
	dropped int
}

// NewCSVEventSource creates a source for the given usage log file.
func NewCSVEventSource(path string, loc *time.Location, logger *slog.Logger) *CSVEventSource {
	if loc == nil {
		loc = timeutil.ParisTZ
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVEventSource{path: path, loc: loc, logger: logger}
}

// Events reads and normalizes the whole file.
func (s *CSVEventSource) Events(ctx context.Context) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		return nil, shared.WrapError("ingest", "Events", shared.ErrSourceUnavailable, "reading usage log", err)
	}

	header, rows, err := parseTable(content)
	if err != nil {
		return nil, shared.WrapError("ingest", "Events", shared.ErrInvalidFormat, "parsing usage log", err)
	}

	s.dropped = 0
	events := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		e, ok := s.normalizeRow(header, row)
		if !ok {
			s.dropped++
			continue
		}
		events = append(events, e)
	}

	s.logger.Info("usage log parsed",
		slog.String("path", s.path),
		slog.Int("events", len(events)),
		slog.Int("dropped_rows", s.dropped))
	return events, nil
}

// DroppedRows reports how many rows the last Events call discarded.
func (s *CSVEventSource) DroppedRows() int {
	return s.dropped
}

func (s *CSVEventSource) normalizeRow(header map[string]int, row []string) (event.Event, bool) {
	get := func(col string) string { return cell(header, row, col) }

	role, ok := parseRole(get(colRole))
	if !ok {
		return event.Event{}, false
	}

	teacher := get(colTeacher)
	if teacher == "" {
		return event.Event{}, false
	}

	created, err := ParseTimestamp(get(colCreated), s.loc)
	if err != nil {
		return event.Event{}, false
	}
	changed := created
	if raw := get(colChanged); raw != "" {
		if t, err := ParseTimestamp(raw, s.loc); err == nil {
			changed = t
		}
	}
	if changed.Before(created) {
		changed = created
	}

	institution := get(colUAIStudent)
	if institution == "" {
		institution = get(colUAI)
	}
	if role == event.RoleTeacher {
		institution = get(colUAITeacher)
	}

	return event.Event{
		Role:          role,
		Teacher:       shared.TeacherID(teacher),
		Student:       shared.StudentID(get(colStudent)),
		Activity:      shared.ActivityID(get(colActivityID)),
		ActivityTitle: get(colActivityTitle),
		Institution:   shared.NormalizeInstitutionCode(institution),
		CreatedAt:     created,
		ChangedAt:     changed,
	}, true
}

func parseRole(raw string) (event.Role, bool) {
	switch strings.ToLower(raw) {
	case "teacher":
		return event.RoleTeacher, true
	case "student":
		return event.RoleStudent, true
	default:
		return "", false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED CSV PLUMBING
// ══════════════════════════════════════════════════════════════════════════════

// parseTable reads a full CSV table: delimiter auto-detection, trimmed and
// lower-cased headers, "NULL" tokens mapped to empty strings.
func parseTable(content []byte) (map[string]int, [][]string, error) {
	reader := csv.NewReader(strings.NewReader(string(content)))
	reader.Comma = detectDelimiter(content)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	headerRow, err := reader.Read()
	if err != nil {
		return nil, nil, err
	}
	header := make(map[string]int, len(headerRow))
	for i, h := range headerRow {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// detectDelimiter picks ';' or ',' by counting occurrences in the first 4 KiB.
// The platform switched delimiters between export versions.
func detectDelimiter(content []byte) rune {
	sample := content
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	semicolons := strings.Count(string(sample), ";")
	commas := strings.Count(string(sample), ",")
	if semicolons > commas {
		return ';'
	}
	return ','
}

func cell(header map[string]int, row []string, col string) string {
	i, ok := header[col]
	if !ok || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if v == nullToken {
		return ""
	}
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMESTAMP PARSING
// ══════════════════════════════════════════════════════════════════════════════

// Accepted textual timestamp layouts, tried in order. Layouts without a zone
// are interpreted in the source's location.
var textLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a raw timestamp value. Pure digits are an epoch:
// 10 to 12 digits are seconds, 13 or more are milliseconds, 9 or fewer are
// rejected as ambiguous rather than silently miscomputed. Anything else is
// tried against the known textual layouts.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == nullToken {
		return time.Time{}, shared.ErrMissingTimestamp
	}
	if loc == nil {
		loc = timeutil.ParisTZ
	}

	if isDigits(raw) {
		switch {
		case len(raw) <= 9:
			return time.Time{}, shared.ErrAmbiguousEpoch
		case len(raw) <= 12:
			sec, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return time.Time{}, shared.ErrAmbiguousEpoch
			}
			return time.Unix(sec, 0).In(loc), nil
		default:
			ms, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return time.Time{}, shared.ErrAmbiguousEpoch
			}
			return time.UnixMilli(ms).In(loc), nil
		}
	}

	for _, layout := range textLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, shared.NewDomainError("ingest", "ParseTimestamp", shared.ErrInvalidFormat, "unrecognized timestamp "+strconv.Quote(raw))
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
