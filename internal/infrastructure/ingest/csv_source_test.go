package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathadata/usage-insights/internal/domain/event"
	"github.com/mathadata/usage-insights/internal/domain/shared"
	"github.com/mathadata/usage-insights/pkg/timeutil"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usage.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseTimestamp_DigitHeuristic(t *testing.T) {
	loc := timeutil.ParisTZ

	// 2024-03-12T08:00:00Z as seconds and as milliseconds.
	fromSec, err := ParseTimestamp("1710230400", loc)
	require.NoError(t, err)
	fromMs, err := ParseTimestamp("1710230400000", loc)
	require.NoError(t, err)
	assert.True(t, fromSec.Equal(fromMs))
	assert.True(t, fromSec.Equal(time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC)))

	// 9 digits or fewer are ambiguous, never guessed.
	_, err = ParseTimestamp("171023040", loc)
	assert.ErrorIs(t, err, shared.ErrAmbiguousEpoch)

	_, err = ParseTimestamp("", loc)
	assert.ErrorIs(t, err, shared.ErrMissingTimestamp)

	_, err = ParseTimestamp("NULL", loc)
	assert.ErrorIs(t, err, shared.ErrMissingTimestamp)
}

func TestParseTimestamp_TextLayouts(t *testing.T) {
	loc := timeutil.ParisTZ

	iso, err := ParseTimestamp("2024-03-12T08:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, iso.Equal(time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC)))

	// Zoneless layouts are read in the source's locale.
	local, err := ParseTimestamp("2024-03-12 09:00:00", loc)
	require.NoError(t, err)
	assert.Equal(t, 9, local.Hour())
	assert.Equal(t, loc.String(), local.Location().String())

	_, err = ParseTimestamp("not a date", loc)
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestCSVEventSource_SemicolonDelimiterAndNullTokens(t *testing.T) {
	path := writeTempCSV(t, ""+
		"Role;teacher;student;mathadata_id;mathadata_title;uai_el;uai_teach;created;changed\n"+
		"student;t1;s1;act1;Fractions;0750001A;NULL;1710230400;1710232200\n"+
		"teacher;t1;NULL;act1;Fractions;NULL;0750001A;1710144000;NULL\n")

	source := NewCSVEventSource(path, timeutil.ParisTZ, nil)
	events, err := source.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Zero(t, source.DroppedRows())

	student := events[0]
	assert.Equal(t, event.RoleStudent, student.Role)
	assert.Equal(t, shared.TeacherID("t1"), student.Teacher)
	assert.Equal(t, shared.StudentID("s1"), student.Student)
	assert.Equal(t, shared.InstitutionCode("0750001A"), student.Institution)
	assert.Equal(t, 30*time.Minute, student.WorkDuration())

	teacher := events[1]
	assert.Equal(t, event.RoleTeacher, teacher.Role)
	assert.False(t, teacher.Student.IsValid())
	// Teacher-role events attribute the teacher's institution.
	assert.Equal(t, shared.InstitutionCode("0750001A"), teacher.Institution)
	// Absent changed defaults to created.
	assert.Equal(t, teacher.CreatedAt, teacher.ChangedAt)
}

func TestCSVEventSource_CommaDelimiter(t *testing.T) {
	path := writeTempCSV(t, ""+
		"Role,teacher,student,mathadata_id,mathadata_title,uai_el,uai_teach,created,changed\n"+
		"student,t1,s1,act1,Fractions,0750001A,,1710230400,1710232200\n")

	source := NewCSVEventSource(path, timeutil.ParisTZ, nil)
	events, err := source.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestCSVEventSource_DropsInvalidRows(t *testing.T) {
	path := writeTempCSV(t, ""+
		"Role;teacher;student;mathadata_id;mathadata_title;uai_el;uai_teach;created;changed\n"+
		// Missing teacher.
		"student;;s1;act1;Fractions;0750001A;;1710230400;1710232200\n"+
		// Missing created.
		"student;t1;s2;act1;Fractions;0750001A;;NULL;1710232200\n"+
		// Unknown role.
		"admin;t1;s3;act1;Fractions;0750001A;;1710230400;1710232200\n"+
		// Ambiguous 9-digit epoch.
		"student;t1;s4;act1;Fractions;0750001A;;171023040;1710232200\n"+
		// Valid.
		"student;t1;s5;act1;Fractions;0750001A;;1710230400;1710232200\n")

	source := NewCSVEventSource(path, timeutil.ParisTZ, nil)
	events, err := source.Events(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, 4, source.DroppedRows())
	assert.Equal(t, shared.StudentID("s5"), events[0].Student)
}

func TestCSVEventSource_BlankInstitutionNormalized(t *testing.T) {
	path := writeTempCSV(t, ""+
		"Role;teacher;student;mathadata_id;mathadata_title;uai_el;uai_teach;created;changed\n"+
		"student;t1;s1;act1;Fractions;NULL;;1710230400;1710232200\n")

	source := NewCSVEventSource(path, timeutil.ParisTZ, nil)
	events, err := source.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, shared.CodeUnknown, events[0].Institution)
}

func TestCSVEventSource_ChangedBeforeCreatedClamped(t *testing.T) {
	path := writeTempCSV(t, ""+
		"Role;teacher;student;mathadata_id;mathadata_title;uai_el;uai_teach;created;changed\n"+
		"student;t1;s1;act1;Fractions;0750001A;;1710232200;1710230400\n")

	source := NewCSVEventSource(path, timeutil.ParisTZ, nil)
	events, err := source.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, time.Duration(0), events[0].WorkDuration())
	assert.Equal(t, events[0].CreatedAt, events[0].ChangedAt)
}

func TestDirectoryLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "annuaire.csv")
	content := "" +
		"uai;nom_etablissement;ville;academie;type_etablissement;secteur;ips;latitude;longitude\n" +
		"0750001A;Lycée Condorcet;Paris;Paris;Lycée;Public;112.4;48.8738;2.3268\n" +
		"0930002B;Collège Jean Moulin;Montreuil;Créteil;Collège;Public;;;\n" +
		";Sans code;;;;;;;\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loader := NewDirectoryLoader(path, nil)
	dir, err := loader.Directory(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, dir.Len())

	condorcet := dir.Lookup("0750001A")
	assert.Equal(t, "Lycée Condorcet", condorcet.Name)
	assert.Equal(t, "Paris", condorcet.City)
	require.NotNil(t, condorcet.IPS)
	assert.InDelta(t, 112.4, *condorcet.IPS, 1e-9)

	moulin := dir.Lookup("0930002B")
	assert.Nil(t, moulin.IPS)
	assert.Nil(t, moulin.Latitude)
}
