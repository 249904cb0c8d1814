package generator

import (
	"slices"
	"time"

	"github.com/arkilian/abgen/internal/scenario"
	"golang.org/x/exp/rand"
)

// Timestamps draws n session start times uniformly over the scenario window,
// at whole-second resolution with both window ends inclusive, and returns them
// sorted ascending.
//
// The sorted slice is bound to rows by position only. Columns drawn earlier
// keep their original order, so a row's timestamp is not the one drawn for its
// index.
func Timestamps(r *rand.Rand, s scenario.Scenario, n int) []time.Time {
	window := s.WindowSeconds()
	ts := make([]time.Time, n)
	for i := range ts {
		offset := r.Int63n(window + 1)
		ts[i] = s.Start.Add(time.Duration(offset) * time.Second)
	}
	slices.SortFunc(ts, func(a, b time.Time) int { return a.Compare(b) })
	return ts
}
