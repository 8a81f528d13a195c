package writer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathadata/usage-insights/internal/application/export"
	"github.com/mathadata/usage-insights/internal/domain/institution"
	"github.com/mathadata/usage-insights/internal/domain/profile"
	"github.com/mathadata/usage-insights/internal/domain/session"
	"github.com/mathadata/usage-insights/internal/domain/shared"
	"github.com/mathadata/usage-insights/pkg/timeutil"
)

func sampleReport() *export.Report {
	start := time.Date(2024, 3, 12, 9, 0, 0, 0, timeutil.ParisTZ)
	code := shared.InstitutionCode("0750001A")

	teacher := profile.TeacherProfile{
		Teacher:          shared.TeacherID("t1"),
		Institutions:     []shared.InstitutionCode{code},
		TaughtActivities: []shared.ActivityID{"act1"},
		Activities: []profile.ActivityHistory{{
			Activity: "act1",
			Name:     "Fractions",
		}},
		Sessions: []profile.SessionRecord{{
			Number:       1,
			Activity:     "act1",
			ActivityName: "Fractions",
			Institution:  code,
			Analysis: session.Analysis{
				StartAt:                start,
				StudentCount:           2,
				AvgWorkDurationMinutes: 30,
				ContinuationRate:       0.5,
				HomeWorkRate:           0,
				TimePattern:            "morning_weekday",
			},
			Students: []shared.StudentID{"s1", "s2"},
		}},
		Timeline: []profile.TimelineEntry{{
			Timestamp:           start,
			Kind:                profile.KindTeaching,
			Activity:            "act1",
			ActivityTitle:       "Fractions",
			Student:             "s1",
			Institution:         code,
			WorkDurationMinutes: 30,
		}},
		AdoptionStyle:  profile.StyleConfidentDirect,
		TotalSessions:  1,
		UniqueStudents: 2,
		FirstUsage:     start,
		LastUsage:      start,
	}

	return &export.Report{
		Metadata: export.Metadata{
			RunID:         "run-1",
			ExportedAt:    start,
			TotalEvents:   2,
			TotalTeachers: 1,
			TotalSchools:  1,
			IdleThreshold: time.Hour,
		},
		Teachers: []profile.TeacherProfile{teacher},
		Institutions: []institution.Summary{{
			Code:         code,
			Info:         institution.Info{Code: code, Name: "Lycée Condorcet"},
			TeacherCount: 1,
			Teachers:     []shared.TeacherID{"t1"},
			Pattern:      institution.PatternDirectUsage,
		}},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSVWriter_WritesSummaryAndPerTeacherFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, timeutil.ParisTZ, nil)

	require.NoError(t, w.Write(context.Background(), sampleReport()))

	summary := readCSV(t, filepath.Join(dir, "teachers_summary.csv"))
	require.Len(t, summary, 2)
	assert.Equal(t, summaryHeaders, summary[0])

	row := summary[1]
	assert.Equal(t, "t1", row[0])
	assert.Equal(t, "1", row[1])                // nb_schools
	assert.Equal(t, "0750001A", row[2])         // schools_uai
	assert.Equal(t, "Lycée Condorcet", row[3])  // schools_names
	assert.Equal(t, "", row[8])                 // conversion_rate never tested
	assert.Equal(t, "confident_direct", row[9]) // adoption_style
	assert.Equal(t, "no", row[13])              // uses_multiple_classes
	assert.Equal(t, "2024-03-12", row[18])      // first_usage_date

	sessions := readCSV(t, filepath.Join(dir, "teachers", "t1_sessions.csv"))
	require.Len(t, sessions, 2)
	assert.Equal(t, sessionHeaders, sessions[0])
	assert.Equal(t, "1", sessions[1][0])
	assert.Equal(t, "Fractions", sessions[1][2])
	assert.Equal(t, "Lycée Condorcet", sessions[1][4])
	assert.Equal(t, "0.5", sessions[1][10]) // continuation_rate
	assert.Equal(t, "no", sessions[1][12])  // had_second_session
	assert.Equal(t, "", sessions[1][17])    // no previous roster

	timeline := readCSV(t, filepath.Join(dir, "teachers", "t1_timeline.csv"))
	require.Len(t, timeline, 2)
	assert.Equal(t, "teaching", timeline[1][2])
	assert.Equal(t, "s1", timeline[1][5])
	assert.Equal(t, "30", timeline[1][8])
}

func TestJSONWriter_WritesNestedDocument(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONWriter(dir, nil)

	require.NoError(t, w.Write(context.Background(), sampleReport()))

	payload, err := os.ReadFile(filepath.Join(dir, "usage_report.json"))
	require.NoError(t, err)

	var decoded export.Report
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, "run-1", decoded.Metadata.RunID)
	assert.Equal(t, 1, decoded.Metadata.TotalTeachers)
	require.Len(t, decoded.Teachers, 1)
	assert.Equal(t, shared.TeacherID("t1"), decoded.Teachers[0].Teacher)
	require.Len(t, decoded.Institutions, 1)
	assert.Equal(t, institution.PatternDirectUsage, decoded.Institutions[0].Pattern)

	// No leftover temp file after the atomic rename.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"))
	}
}
