package generator

import (
	"fmt"

	"github.com/arkilian/abgen/internal/scenario"
	"golang.org/x/exp/rand"
)

// UserPool returns the distinct user identifiers available to n sessions.
func UserPool(s scenario.Scenario, n int) []string {
	size := s.PoolSize(n)
	pool := make([]string, size)
	for i := range pool {
		pool[i] = formatID(s.UserIDPrefix, s.UserIDWidth, i+1)
	}
	return pool
}

// SampleUsers draws n identifiers uniformly from pool, with replacement.
func SampleUsers(r *rand.Rand, pool []string, n int) []string {
	users := make([]string, n)
	for i := range users {
		users[i] = pool[r.Intn(len(pool))]
	}
	return users
}

// formatID renders a prefixed, zero-padded sequence number. Numbers wider than
// width are printed in full.
func formatID(prefix string, width, seq int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, seq)
}
