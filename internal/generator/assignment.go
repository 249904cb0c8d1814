package generator

import (
	"crypto/md5"

	"github.com/arkilian/abgen/internal/scenario"
	"github.com/arkilian/abgen/pkg/types"
)

// Bucket maps a user identifier to [0, buckets) by reading the MD5 digest of
// the identifier as a big-endian 128-bit integer and reducing it modulo buckets.
func Bucket(userID string, buckets uint64) uint64 {
	sum := md5.Sum([]byte(userID))
	var rem uint64
	for _, b := range sum {
		rem = (rem<<8 | uint64(b)) % buckets
	}
	return rem
}

// Assign returns the experiment group of a user. It is a pure function of the
// identifier: no random state is consulted.
func Assign(s scenario.Scenario, userID string) types.Group {
	if Bucket(userID, s.BucketCount) < s.ControlBuckets {
		return types.GroupControl
	}
	return types.GroupTreatment
}

// AssignAll assigns a group to every session.
func AssignAll(s scenario.Scenario, users []string) []types.Group {
	groups := make([]types.Group, len(users))
	for i, u := range users {
		groups[i] = Assign(s, u)
	}
	return groups
}
