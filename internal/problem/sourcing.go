package problem

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"cscplan/internal/genome"
	"cscplan/internal/market"
	"cscplan/internal/objective"
	"cscplan/internal/sampling"
)

// Sourcing is the lower level of the bi-level decomposition: for a fixed
// materials need, choose purchase quantities only. Both objectives, cost and
// virgin-material ratio, are minimised.
type Sourcing struct {
	layout    *genome.Layout
	sampler   *sampling.Sampler
	evaluator *objective.Evaluator
	need      []float64
	opts      Options
}

var _ Problem = (*Sourcing)(nil)

func NewSourcing(m *market.Market, need []float64, opts Options) (*Sourcing, error) {
	if err := checkNeed(m, need); err != nil {
		return nil, err
	}
	layout, err := genome.NewLayout(m)
	if err != nil {
		return nil, err
	}
	sampler, err := sampling.NewSampler(layout, sampling.Options{Fractional: opts.Fractional})
	if err != nil {
		return nil, err
	}

	opts.logger().Debug("sourcing problem constructed",
		zap.String("instance", m.Name()),
		zap.Int("n_var", layout.NSourcing()),
		zap.Float64s("materials_needed", need),
	)

	return &Sourcing{
		layout:    layout,
		sampler:   sampler,
		evaluator: objective.NewSourcing(layout, opts.Workers),
		need:      append([]float64(nil), need...),
		opts:      opts,
	}, nil
}

// ForPlan derives the sourcing sub-problem of a production plan.
func (p *CSC) ForPlan(plan []float64) (*Sourcing, error) {
	if len(plan) != p.layout.NProducts() {
		return nil, fmt.Errorf("%w: production plan: want %d entries, got %d", market.ErrConfig, p.layout.NProducts(), len(plan))
	}
	return NewSourcing(p.layout.Market(), p.sampler.MaterialsNeeded(plan), p.opts)
}

func (s *Sourcing) Layout() *genome.Layout { return s.layout }
func (s *Sourcing) Need() []float64 { return append([]float64(nil), s.need...) }

func (s *Sourcing) NVar() int { return s.layout.NSourcing() }
func (s *Sourcing) NObj() int { return 2 }

func (s *Sourcing) Lower() []float64 { return make([]float64, s.layout.NSourcing()) }
func (s *Sourcing) Upper() []float64 { return s.layout.Capacities() }

func (s *Sourcing) Senses() []Sense { return []Sense{Minimize, Minimize} }

// MaterialAtGene names the owning material of every gene.
func (s *Sourcing) MaterialAtGene() []int { return s.layout.MaterialAtGene() }

// Evaluate returns purchase cost and virgin-material ratio per row.
func (s *Sourcing) Evaluate(pop mat.Matrix) (*mat.Dense, error) {
	cost, err := s.evaluator.Cost(pop)
	if err != nil {
		return nil, err
	}
	ratio, err := s.evaluator.VirginRatio(pop)
	if err != nil {
		return nil, err
	}
	return columns(cost, ratio), nil
}

// Sample draws n sourcing plans that each cover the fixed need.
func (s *Sourcing) Sample(ctx context.Context, n int, seed int64) (*mat.Dense, error) {
	return s.sampler.SourcingPopulation(ctx, n, seed, s.opts.Workers, s.need)
}
