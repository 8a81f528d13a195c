package session

import (
	"github.com/mathadata/usage-insights/internal/domain/shared"
)

// DefaultSameClassThreshold is the roster-overlap ratio above which two
// consecutive sessions are considered the same class. A heuristic with no
// documented derivation; kept configurable.
const DefaultSameClassThreshold = 0.7

// Continuity describes how a session's roster relates to the previous
// session of the same (teacher, activity) stream.
type Continuity struct {
	// Compared is false for the first session of a stream, where there is
	// no prior roster to compare against.
	Compared  bool
	Overlap   float64
	SameClass bool
}

// Overlap measures the similarity of two student rosters as
// |A ∩ B| / max(|A|, |B|). Normalizing by the larger set rather than the
// union penalizes less when one session is a strict superset of the other.
// Empty input on either side yields 0.
func Overlap(a, b []shared.StudentID) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	common := 0
	for id := range setA {
		if _, ok := setB[id]; ok {
			common++
		}
	}

	larger := len(setA)
	if len(setB) > larger {
		larger = len(setB)
	}
	return float64(common) / float64(larger)
}

// CompareRosters computes the continuity of a session against the previous
// session's roster. A nil previous roster marks the first session of a
// stream.
func CompareRosters(prev, current []shared.StudentID, threshold float64) Continuity {
	if prev == nil {
		return Continuity{}
	}
	if threshold <= 0 {
		threshold = DefaultSameClassThreshold
	}

	overlap := Overlap(prev, current)
	return Continuity{
		Compared:  true,
		Overlap:   overlap,
		SameClass: overlap > threshold,
	}
}

func toSet(ids []shared.StudentID) map[shared.StudentID]struct{} {
	set := make(map[shared.StudentID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
