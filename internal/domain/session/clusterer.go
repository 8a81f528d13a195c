// Package session implements the temporal-clustering and analysis engine:
// it groups noisy event timestamps into classroom sessions, measures each
// session's behaviour, and compares consecutive sessions' rosters.
// This is a pure domain layer with zero external dependencies.
package session

import (
	"time"

	"github.com/mathadata/usage-insights/internal/domain/event"
	"github.com/mathadata/usage-insights/internal/domain/shared"
)

// DefaultIdleThreshold bounds a session cluster: every member must start
// within this window of the cluster's first event. One hour is a heuristic
// matching the length of a French class period; it is configurable, not
// derived.
const DefaultIdleThreshold = time.Hour

// Cluster is an ordered group of events judged to belong to the same live
// classroom occurrence. A cluster is never empty.
type Cluster struct {
	Events []event.Event
}

// Size returns the number of member events.
func (c Cluster) Size() int {
	return len(c.Events)
}

// Start returns the creation time of the cluster's first event, which is
// also the clustering anchor.
func (c Cluster) Start() time.Time {
	if len(c.Events) == 0 {
		return time.Time{}
	}
	return c.Events[0].CreatedAt
}

// Students returns the distinct student IDs in order of first appearance.
func (c Cluster) Students() []shared.StudentID {
	seen := make(map[shared.StudentID]struct{}, len(c.Events))
	var ids []shared.StudentID
	for _, e := range c.Events {
		if !e.Student.IsValid() {
			continue
		}
		if _, ok := seen[e.Student]; ok {
			continue
		}
		seen[e.Student] = struct{}{}
		ids = append(ids, e.Student)
	}
	return ids
}

// ClusterByCreated partitions events sharing one clustering key into session
// clusters. Events are ordered by CreatedAt; a new cluster starts whenever an
// event's CreatedAt is more than idle after the current cluster's first
// event. The anchor is deliberately the cluster start, not the previous
// event: a cluster spans at most one idle window of arrival time regardless
// of how many events it holds.
func ClusterByCreated(events []event.Event, idle time.Duration) []Cluster {
	return cluster(events, idle, event.SortByCreatedAt, func(e event.Event) time.Time {
		return e.CreatedAt
	})
}

// clusterByChanged applies the same partitioning keyed on ChangedAt. Used by
// second-session detection, where the signal is when students resumed
// modifying their work.
func clusterByChanged(events []event.Event, idle time.Duration) []Cluster {
	return cluster(events, idle, event.SortByChangedAt, func(e event.Event) time.Time {
		return e.ChangedAt
	})
}

func cluster(events []event.Event, idle time.Duration, sortFn func([]event.Event), at func(event.Event) time.Time) []Cluster {
	if len(events) == 0 {
		return nil
	}
	if idle <= 0 {
		idle = DefaultIdleThreshold
	}

	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	sortFn(sorted)

	var clusters []Cluster
	current := []event.Event{sorted[0]}
	anchor := at(sorted[0])

	for _, e := range sorted[1:] {
		if at(e).Sub(anchor) <= idle {
			current = append(current, e)
			continue
		}
		clusters = append(clusters, Cluster{Events: current})
		current = []event.Event{e}
		anchor = at(e)
	}
	clusters = append(clusters, Cluster{Events: current})

	return clusters
}

// filterMinSize drops clusters smaller than min members.
func filterMinSize(clusters []Cluster, min int) []Cluster {
	var kept []Cluster
	for _, c := range clusters {
		if c.Size() >= min {
			kept = append(kept, c)
		}
	}
	return kept
}
