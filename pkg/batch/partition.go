// Package batch splits station lists into bounded-size request groups.
package batch

import "github.com/seismoworks/tdvms-client/pkg/catalog"

// Partition splits stations into groups no larger than roughly
// targetSize, spreading the remainder so that no two group sizes differ
// by more than one. The input order is preserved within and across
// groups, and the concatenation of all groups reproduces the input
// exactly. An empty input yields no groups. targetSize must be positive;
// plan validation enforces this before Partition is reached.
func Partition(stations []catalog.Station, targetSize int) [][]catalog.Station {
	total := len(stations)
	if total == 0 {
		return nil
	}

	// One more group than full target-size batches, then spread evenly:
	// the first m groups get k+1 stations, the rest k.
	n := total/targetSize + 1
	k, m := total/n, total%n

	groups := make([][]catalog.Station, 0, n)
	for i := 0; i < n; i++ {
		start := i*k + min(i, m)
		end := (i+1)*k + min(i+1, m)
		if start == end {
			// A trailing empty group appears when n exceeds the station
			// count (targetSize of 1). Batches are non-empty by contract.
			continue
		}
		groups = append(groups, stations[start:end])
	}
	return groups
}
