package partition

import (
	"fmt"
	"sort"

	"github.com/arkilian/abgen/internal/config"
	"github.com/arkilian/abgen/pkg/types"
)

// allKey is the partition key used by config.StrategyNone.
const allKey = "all"

// Batch is the set of rows that share a partition key.
type Batch struct {
	Key  string
	Rows []types.SessionEvent
}

// Router determines the partition key for a row based on the configured strategy.
type Router struct {
	strategy string
}

// NewRouter creates a new partition key router for strategy.
func NewRouter(strategy string) (*Router, error) {
	switch strategy {
	case config.StrategyDay, config.StrategyGroup, config.StrategyNone:
	default:
		return nil, fmt.Errorf("routing: unsupported strategy %q", strategy)
	}
	return &Router{strategy: strategy}, nil
}

// Strategy returns the router's strategy.
func (r *Router) Strategy() string {
	return r.strategy
}

// RouteRow computes the partition key for a single row.
func (r *Router) RouteRow(row *types.SessionEvent) string {
	switch r.strategy {
	case config.StrategyDay:
		return row.Timestamp.UTC().Format("20060102")
	case config.StrategyGroup:
		return string(row.Group)
	default:
		return allKey
	}
}

// RouteRows splits rows by partition key. Batches are returned in key order and
// keep the input order of their rows.
func (r *Router) RouteRows(rows []types.SessionEvent) []Batch {
	byKey := make(map[string][]types.SessionEvent)
	for i := range rows {
		key := r.RouteRow(&rows[i])
		byKey[key] = append(byKey[key], rows[i])
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batches := make([]Batch, len(keys))
	for i, k := range keys {
		batches[i] = Batch{Key: k, Rows: byKey[k]}
	}
	return batches
}
