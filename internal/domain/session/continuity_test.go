package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mathadata/usage-insights/internal/domain/shared"
)

func roster(ids ...string) []shared.StudentID {
	out := make([]shared.StudentID, len(ids))
	for i, id := range ids {
		out[i] = shared.StudentID(id)
	}
	return out
}

func TestOverlap_NormalizedByLargerSet(t *testing.T) {
	a := roster("s1", "s2", "s3", "s4")
	b := roster("s1", "s2")

	// 2 common out of max(4, 2).
	assert.Equal(t, 0.5, Overlap(a, b))
}

func TestOverlap_Symmetric(t *testing.T) {
	a := roster("s1", "s2", "s3")
	b := roster("s2", "s3", "s4", "s5")

	assert.Equal(t, Overlap(a, b), Overlap(b, a))
}

func TestOverlap_DuplicatesIgnored(t *testing.T) {
	a := roster("s1", "s1", "s2")
	b := roster("s1", "s2")

	assert.Equal(t, 1.0, Overlap(a, b))
}

func TestOverlap_EmptySide(t *testing.T) {
	assert.Equal(t, 0.0, Overlap(nil, roster("s1")))
	assert.Equal(t, 0.0, Overlap(roster("s1"), nil))
	assert.Equal(t, 0.0, Overlap(nil, nil))
}

func TestCompareRosters_FirstSessionNotCompared(t *testing.T) {
	c := CompareRosters(nil, roster("s1", "s2"), DefaultSameClassThreshold)

	assert.False(t, c.Compared)
	assert.False(t, c.SameClass)
	assert.Equal(t, 0.0, c.Overlap)
}

func TestCompareRosters_ThresholdIsStrict(t *testing.T) {
	// Overlap exactly 0.7 is not the same class; the threshold is exclusive.
	prev := roster("s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10")
	same := roster("s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10")
	seven := roster("s1", "s2", "s3", "s4", "s5", "s6", "s7", "x1", "x2", "x3")

	atThreshold := CompareRosters(prev, seven, DefaultSameClassThreshold)
	assert.True(t, atThreshold.Compared)
	assert.InDelta(t, 0.7, atThreshold.Overlap, 1e-9)
	assert.False(t, atThreshold.SameClass)

	identical := CompareRosters(prev, same, DefaultSameClassThreshold)
	assert.Equal(t, 1.0, identical.Overlap)
	assert.True(t, identical.SameClass)
}
