package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mathadata/usage-insights/internal/domain/event"
	"github.com/mathadata/usage-insights/internal/domain/shared"
	"github.com/mathadata/usage-insights/pkg/timeutil"
)

func studentEvent(student string, created, changed time.Time) event.Event {
	return event.Event{
		Role:        event.RoleStudent,
		Teacher:     shared.TeacherID("t1"),
		Student:     shared.StudentID(student),
		Activity:    shared.ActivityID("a1"),
		Institution: shared.InstitutionCode("0750001A"),
		CreatedAt:   created,
		ChangedAt:   changed,
	}
}

func TestClusterByCreated_IdleThresholdBoundary(t *testing.T) {
	base := time.Date(2024, 3, 11, 9, 0, 0, 0, timeutil.ParisTZ)

	events := []event.Event{
		studentEvent("s1", base, base),
		studentEvent("s2", base.Add(3599*time.Second), base.Add(3599*time.Second)),
		studentEvent("s3", base.Add(3600*time.Second), base.Add(3600*time.Second)),
		studentEvent("s4", base.Add(3601*time.Second), base.Add(3601*time.Second)),
	}

	clusters := ClusterByCreated(events, time.Hour)

	// Exactly one hour after the anchor still belongs; one second more does not.
	assert.Len(t, clusters, 2)
	assert.Equal(t, 3, clusters[0].Size())
	assert.Equal(t, 1, clusters[1].Size())
	assert.Equal(t, base, clusters[0].Start())
	assert.Equal(t, base.Add(3601*time.Second), clusters[1].Start())
}

func TestClusterByCreated_AnchorIsClusterStartNotPreviousEvent(t *testing.T) {
	base := time.Date(2024, 3, 11, 9, 0, 0, 0, timeutil.ParisTZ)

	// Each event is 40 minutes after the previous one. With a previous-event
	// anchor they would all chain into one cluster; with a cluster-start
	// anchor the third event falls outside the first window.
	events := []event.Event{
		studentEvent("s1", base, base),
		studentEvent("s2", base.Add(40*time.Minute), base.Add(40*time.Minute)),
		studentEvent("s3", base.Add(80*time.Minute), base.Add(80*time.Minute)),
	}

	clusters := ClusterByCreated(events, time.Hour)

	assert.Len(t, clusters, 2)
	assert.Equal(t, 2, clusters[0].Size())
	assert.Equal(t, 1, clusters[1].Size())
}

func TestClusterByCreated_EveryEventInExactlyOneCluster(t *testing.T) {
	base := time.Date(2024, 3, 11, 9, 0, 0, 0, timeutil.ParisTZ)

	var events []event.Event
	offsets := []time.Duration{0, 10 * time.Minute, 2 * time.Hour, 125 * time.Minute, 26 * time.Hour}
	for i, off := range offsets {
		events = append(events, studentEvent(string(rune('a'+i)), base.Add(off), base.Add(off)))
	}

	clusters := ClusterByCreated(events, time.Hour)

	total := 0
	for _, c := range clusters {
		total += c.Size()
	}
	assert.Equal(t, len(events), total)
}

func TestClusterByCreated_UnsortedInput(t *testing.T) {
	base := time.Date(2024, 3, 11, 9, 0, 0, 0, timeutil.ParisTZ)

	events := []event.Event{
		studentEvent("s3", base.Add(2*time.Hour), base.Add(2*time.Hour)),
		studentEvent("s1", base, base),
		studentEvent("s2", base.Add(20*time.Minute), base.Add(20*time.Minute)),
	}

	clusters := ClusterByCreated(events, time.Hour)

	assert.Len(t, clusters, 2)
	assert.Equal(t, base, clusters[0].Start())
	assert.Equal(t, shared.StudentID("s1"), clusters[0].Events[0].Student)
	assert.Equal(t, shared.StudentID("s2"), clusters[0].Events[1].Student)
}

func TestClusterByCreated_Empty(t *testing.T) {
	assert.Nil(t, ClusterByCreated(nil, time.Hour))
}

func TestCluster_StudentsDeduplicated(t *testing.T) {
	base := time.Date(2024, 3, 11, 9, 0, 0, 0, timeutil.ParisTZ)

	c := Cluster{Events: []event.Event{
		studentEvent("s1", base, base),
		studentEvent("s2", base.Add(time.Minute), base.Add(time.Minute)),
		studentEvent("s1", base.Add(2*time.Minute), base.Add(2*time.Minute)),
	}}

	assert.Equal(t, []shared.StudentID{"s1", "s2"}, c.Students())
}
