package generator

import (
	"context"
	"math"

	"github.com/arkilian/abgen/internal/scenario"
	"github.com/arkilian/abgen/pkg/types"
	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

// Outcome is the result of one checkout attempt.
type Outcome struct {
	Converted  bool
	OrderValue *float64
}

// variate holds the raw draws of one session. The order value is only drawn
// when the Bernoulli trial succeeds and is neither rounded nor clamped.
type variate struct {
	converted bool
	value     float64
}

// OutcomeModel turns (group, device) into a conversion and an order value.
// All parameters come from the scenario tables.
type OutcomeModel struct {
	scenario scenario.Scenario
}

// NewOutcomeModel creates an outcome model for the scenario.
func NewOutcomeModel(s scenario.Scenario) *OutcomeModel {
	return &OutcomeModel{scenario: s}
}

// Probability returns the conversion probability for a session.
func (m *OutcomeModel) Probability(g types.Group, d types.Device) float64 {
	p := m.scenario.BaseConversion[d]
	if uplift, ok := m.scenario.Uplift[g][d]; ok {
		p *= uplift
	}
	return p
}

// OrderValueParams returns the log-normal location and scale for a converted session.
func (m *OutcomeModel) OrderValueParams(g types.Group, d types.Device) (mu, sigma float64) {
	base := m.scenario.BaseOrderValue[d]
	if mult, ok := m.scenario.OrderValueMultiplier[g]; ok {
		base *= mult
	}
	return math.Log(base), m.scenario.OrderValueSigma
}

// Decide runs one independent trial for a session, drawing from src.
func (m *OutcomeModel) Decide(g types.Group, d types.Device, src *rand.Rand) Outcome {
	return m.resolve(m.draw(g, d, src))
}

// draw consumes the distribution stream for one session: a uniform for the
// Bernoulli trial, then one log-normal sample only when the session converts.
func (m *OutcomeModel) draw(g types.Group, d types.Device, src *rand.Rand) variate {
	if src.Float64() >= m.Probability(g, d) {
		return variate{}
	}
	mu, sigma := m.OrderValueParams(g, d)
	orderValue := distuv.LogNormal{Mu: mu, Sigma: sigma, Src: src}
	return variate{converted: true, value: orderValue.Rand()}
}

// resolve maps raw draws to an outcome. It consumes no randomness.
func (m *OutcomeModel) resolve(v variate) Outcome {
	if !v.converted {
		return Outcome{}
	}
	value := m.clamp(roundCents(v.value))
	return Outcome{Converted: true, OrderValue: &value}
}

func (m *OutcomeModel) clamp(v float64) float64 {
	return math.Max(m.scenario.MinOrderValue, math.Min(v, m.scenario.MaxOrderValue))
}

// roundCents rounds to 2 decimals, halves to even.
func roundCents(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// EvaluateAll decides every session in index order on one goroutine.
func (m *OutcomeModel) EvaluateAll(ctx context.Context, groups []types.Group, devices []types.Device, src *rand.Rand) ([]Outcome, error) {
	out := make([]Outcome, len(groups))
	for i := range groups {
		if i%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = m.Decide(groups[i], devices[i], src)
	}
	return out, nil
}

// EvaluateParallel produces the same outcomes as EvaluateAll, splitting the
// deterministic part of the work across workers.
//
// Draws are still taken from src in index order before any worker starts; the
// workers only map draws to outcomes over disjoint index ranges.
func (m *OutcomeModel) EvaluateParallel(ctx context.Context, groups []types.Group, devices []types.Device, src *rand.Rand, workers int) ([]Outcome, error) {
	if workers <= 1 || len(groups) < workers {
		return m.EvaluateAll(ctx, groups, devices, src)
	}

	draws := make([]variate, len(groups))
	for i := range groups {
		if i%checkInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		draws[i] = m.draw(groups[i], devices[i], src)
	}

	out := make([]Outcome, len(groups))
	chunk := (len(groups) + workers - 1) / workers

	eg, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(groups); start += chunk {
		lo, hi := start, min(start+chunk, len(groups))
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				out[i] = m.resolve(draws[i])
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// checkInterval is how many rows are processed between context checks.
const checkInterval = 4096
