package generator

import (
	"context"
	"fmt"

	generrors "github.com/arkilian/abgen/internal/errors"
	"github.com/arkilian/abgen/internal/scenario"
	"github.com/arkilian/abgen/pkg/types"
)

// Table is a fully generated experiment dataset, held in memory until it is
// serialized.
type Table struct {
	Rows []types.SessionEvent
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Generator assembles session tables from a scenario.
type Generator struct {
	scenario scenario.Scenario
	model    *OutcomeModel
	workers  int
}

// Option configures a Generator.
type Option func(*Generator)

// WithWorkers sets how many goroutines resolve outcomes. Values below 2 keep
// the single-threaded path.
func WithWorkers(n int) Option {
	return func(g *Generator) {
		g.workers = n
	}
}

// New creates a generator for the scenario.
func New(s scenario.Scenario, opts ...Option) *Generator {
	g := &Generator{
		scenario: s,
		model:    NewOutcomeModel(s),
		workers:  1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateRecordCount rejects record counts that cannot produce a table.
func ValidateRecordCount(n int) error {
	if n <= 0 {
		return generrors.NewValidationError(generrors.CodeInvalidRecordCount,
			fmt.Sprintf("num_records must be a positive integer, got %d", n)).
			WithDetails(map[string]interface{}{"num_records": n})
	}
	return nil
}

// Generate builds a table of n sessions.
//
// The general stream is consumed in a fixed order: user sampling, timestamps,
// devices, then missing-device selection. The distribution stream is consumed
// row by row by the outcome model.
func (g *Generator) Generate(ctx context.Context, n int, streams *Streams) (*Table, error) {
	if err := ValidateRecordCount(n); err != nil {
		return nil, err
	}

	pool := UserPool(g.scenario, n)
	users := SampleUsers(streams.General, pool, n)
	timestamps := Timestamps(streams.General, g.scenario, n)
	groups := AssignAll(g.scenario, users)
	devices := SampleDevices(streams.General, g.scenario, n)

	if err := ctx.Err(); err != nil {
		return nil, generrors.Wrap(generrors.ErrCategoryGeneration, generrors.CodeCancelled, "generation cancelled", err)
	}

	outcomes, err := g.model.EvaluateParallel(ctx, groups, devices, streams.Distribution, g.workers)
	if err != nil {
		return nil, generrors.Wrap(generrors.ErrCategoryGeneration, generrors.CodeCancelled, "outcome evaluation cancelled", err)
	}

	rows := make([]types.SessionEvent, n)
	for i := range rows {
		rows[i] = types.SessionEvent{
			SessionID:   formatID(g.scenario.SessionIDPrefix, g.scenario.SessionIDWidth, i+1),
			UserID:      users[i],
			Timestamp:   timestamps[i],
			Group:       groups[i],
			LandingPage: groups[i].LandingPage(),
			Device:      devices[i],
			Converted:   outcomes[i].Converted,
			OrderValue:  outcomes[i].OrderValue,
		}
	}

	for _, pos := range MissingPositions(streams.General, n, g.scenario.MissingDeviceCount(n)) {
		rows[pos].Device = types.DeviceMissing
	}

	return &Table{Rows: rows}, nil
}
