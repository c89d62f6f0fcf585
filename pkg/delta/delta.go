// Package delta computes day-over-day changes between two snapshots and
// resolves the previous-day baseline a report is compared against.
package delta

import (
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

// Compute returns one delta per numeric leaf present in either snapshot.
// A leaf missing on one side counts as 0 there. Order follows today's
// leaves, then leaves only yesterday has.
func Compute(today, yesterday *stats.Snapshot) []stats.Delta {
	todayLeaves := today.Leaves()
	prev := yesterday.LeafMap()

	deltas := make([]stats.Delta, 0, len(todayLeaves))
	seen := make(map[string]struct{}, len(todayLeaves))
	for _, leaf := range todayLeaves {
		seen[leaf.Path] = struct{}{}
		deltas = append(deltas, stats.NewDelta(leaf.Path, leaf.Value, prev[leaf.Path]))
	}
	for _, leaf := range yesterday.Leaves() {
		if _, ok := seen[leaf.Path]; ok {
			continue
		}
		deltas = append(deltas, stats.NewDelta(leaf.Path, 0, leaf.Value))
	}
	return deltas
}

// Index keys deltas by leaf path
func Index(deltas []stats.Delta) map[string]stats.Delta {
	m := make(map[string]stats.Delta, len(deltas))
	for _, d := range deltas {
		m[d.Path] = d
	}
	return m
}
