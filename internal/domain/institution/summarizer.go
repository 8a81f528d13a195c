package institution

import (
	"sort"
	"strings"

	"github.com/mathadata/usage-insights/internal/domain/profile"
	"github.com/mathadata/usage-insights/internal/domain/shared"
)

// UsagePattern labels how an institution's teachers use the platform.
type UsagePattern string

const (
	// PatternProgressiveDeployment marks several teachers with at least one
	// testing before teaching.
	PatternProgressiveDeployment UsagePattern = "progressive_deployment"
	// PatternCollaborativeUsage marks several teachers, none testing first.
	PatternCollaborativeUsage UsagePattern = "collaborative_usage"
	// PatternSingleTeacherExploration marks a lone teacher who tests first.
	PatternSingleTeacherExploration UsagePattern = "single_teacher_exploration"
	// PatternDirectUsage is the residual class.
	PatternDirectUsage UsagePattern = "direct_usage"
)

// Summary is the per-institution aggregate of the export run.
type Summary struct {
	Code shared.InstitutionCode
	Info Info

	TeacherCount int
	Teachers     []shared.TeacherID

	Pattern UsagePattern
	// Evidence is a short human-readable justification of the pattern,
	// carried into the report for reviewers.
	Evidence string
}

// ClassifyUsage applies the usage-pattern rules in order, first match wins.
func ClassifyUsage(teacherCount, testersCount int) (UsagePattern, string) {
	multiple := teacherCount > 1
	switch {
	case multiple && testersCount > 0:
		return PatternProgressiveDeployment, "Multiple teachers, Tests followed by teaching"
	case multiple:
		return PatternCollaborativeUsage, "Multiple teachers"
	case testersCount > 0:
		return PatternSingleTeacherExploration, "Single teacher testing"
	default:
		return PatternDirectUsage, "Direct teaching without testing"
	}
}

// Summarize groups teacher profiles by institution and labels each
// institution's usage pattern. A teacher contributes to every institution
// observed in their events. Results are ordered by institution code.
func Summarize(profiles []profile.TeacherProfile, dir *Directory) []Summary {
	byCode := make(map[shared.InstitutionCode][]profile.TeacherProfile)
	for _, p := range profiles {
		for _, code := range p.Institutions {
			byCode[code] = append(byCode[code], p)
		}
	}

	summaries := make([]Summary, 0, len(byCode))
	for code, members := range byCode {
		testers := 0
		teachers := make([]shared.TeacherID, 0, len(members))
		for _, m := range members {
			teachers = append(teachers, m.Teacher)
			if m.TestingBeforeTeaching {
				testers++
			}
		}
		sort.Slice(teachers, func(i, j int) bool {
			return strings.Compare(string(teachers[i]), string(teachers[j])) < 0
		})

		pattern, evidence := ClassifyUsage(len(members), testers)
		summaries = append(summaries, Summary{
			Code:         code,
			Info:         dir.Lookup(code),
			TeacherCount: len(members),
			Teachers:     teachers,
			Pattern:      pattern,
			Evidence:     evidence,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Code < summaries[j].Code
	})
	return summaries
}
