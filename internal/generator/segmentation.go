package generator

import (
	"sort"

	"github.com/arkilian/abgen/internal/scenario"
	"github.com/arkilian/abgen/pkg/types"
	"golang.org/x/exp/rand"
)

// SampleDevices draws a device class per session from the scenario's
// categorical distribution.
func SampleDevices(r *rand.Rand, s scenario.Scenario, n int) []types.Device {
	classes, cdf := s.DeviceCDF()
	devices := make([]types.Device, n)
	for i := range devices {
		f := r.Float64()
		idx := sort.Search(len(cdf), func(j int) bool { return cdf[j] > f })
		if idx == len(cdf) {
			idx = len(cdf) - 1
		}
		devices[i] = classes[idx]
	}
	return devices
}

// MissingPositions selects k distinct row positions out of n uniformly,
// without replacement, using a partial Fisher-Yates shuffle.
func MissingPositions(r *rand.Rand, n, k int) []int {
	if k <= 0 || n <= 0 {
		return nil
	}
	if k > n {
		k = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + r.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}
