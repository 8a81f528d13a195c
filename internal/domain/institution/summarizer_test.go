package institution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathadata/usage-insights/internal/domain/profile"
	"github.com/mathadata/usage-insights/internal/domain/shared"
)

func TestClassifyUsage(t *testing.T) {
	cases := []struct {
		name              string
		teachers, testers int
		want              UsagePattern
	}{
		{"several teachers with a tester", 3, 1, PatternProgressiveDeployment},
		{"several teachers no tester", 2, 0, PatternCollaborativeUsage},
		{"lone tester", 1, 1, PatternSingleTeacherExploration},
		{"lone direct teacher", 1, 0, PatternDirectUsage},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := ClassifyUsage(tc.teachers, tc.testers)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSummarize_SingleTeacherExploration(t *testing.T) {
	code := shared.InstitutionCode("0750001A")
	dir := NewDirectory([]Info{{Code: code, Name: "Lycée Condorcet", City: "Paris"}})

	profiles := []profile.TeacherProfile{{
		Teacher:               shared.TeacherID("t1"),
		Institutions:          []shared.InstitutionCode{code},
		TestingBeforeTeaching: true,
	}}

	summaries := Summarize(profiles, dir)

	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, code, s.Code)
	assert.Equal(t, "Lycée Condorcet", s.Info.Name)
	assert.Equal(t, 1, s.TeacherCount)
	assert.Equal(t, PatternSingleTeacherExploration, s.Pattern)
}

func TestSummarize_TeacherSpanningTwoInstitutions(t *testing.T) {
	a := shared.InstitutionCode("0750001A")
	b := shared.InstitutionCode("0930002B")
	dir := NewDirectory(nil)

	profiles := []profile.TeacherProfile{
		{
			Teacher:               shared.TeacherID("t1"),
			Institutions:          []shared.InstitutionCode{a, b},
			TestingBeforeTeaching: true,
		},
		{
			Teacher:      shared.TeacherID("t2"),
			Institutions: []shared.InstitutionCode{a},
		},
	}

	summaries := Summarize(profiles, dir)

	require.Len(t, summaries, 2)
	assert.Equal(t, a, summaries[0].Code)
	assert.Equal(t, 2, summaries[0].TeacherCount)
	assert.Equal(t, PatternProgressiveDeployment, summaries[0].Pattern)
	assert.Equal(t, []shared.TeacherID{"t1", "t2"}, summaries[0].Teachers)

	assert.Equal(t, b, summaries[1].Code)
	assert.Equal(t, 1, summaries[1].TeacherCount)
	assert.Equal(t, PatternSingleTeacherExploration, summaries[1].Pattern)
}

func TestDirectory_UnknownCodePlaceholder(t *testing.T) {
	dir := NewDirectory([]Info{{Code: "0750001A", Name: "Lycée Condorcet"}})

	info := dir.Lookup("9999999Z")
	assert.Equal(t, UnknownName, info.Name)
	assert.Equal(t, shared.InstitutionCode("9999999Z"), info.Code)
	assert.False(t, dir.Known("9999999Z"))
	assert.True(t, dir.Known("0750001A"))
	assert.Equal(t, 1, dir.Len())
}
