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

// Sense states whether an objective column is to be minimised or maximised.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

func (s Sense) String() string {
	if s == Maximize {
		return "maximize"
	}
	return "minimize"
}

// Problem is what a search driver consumes: dimensionality, bounds, a
// sampling operator and a population evaluator.
type Problem interface {
	NVar() int
	NObj() int
	Lower() []float64
	Upper() []float64
	Senses() []Sense
	Evaluate(pop mat.Matrix) (*mat.Dense, error)
	Sample(ctx context.Context, n int, seed int64) (*mat.Dense, error)
}

type Options struct {
	// MinimizeBoth reports profit negated so that both objective columns
	// are minimised. Otherwise profit is reported as is and maximised.
	MinimizeBoth bool
	// Fractional allows real-valued purchase quantities when sampling.
	Fractional bool
	// Workers bounds the goroutines used for sampling and evaluation.
	Workers int
	Logger  *zap.Logger
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// CSC is the full circular supply-chain problem: sourcing quantities followed
// by production counts, scored on profit and virgin-material ratio.
type CSC struct {
	layout    *genome.Layout
	sampler   *sampling.Sampler
	evaluator *objective.Evaluator
	opts      Options
	senses    []Sense
}

var _ Problem = (*CSC)(nil)

func New(m *market.Market, opts Options) (*CSC, error) {
	layout, err := genome.NewLayout(m)
	if err != nil {
		return nil, err
	}
	sampler, err := sampling.NewSampler(layout, sampling.Options{Fractional: opts.Fractional})
	if err != nil {
		return nil, err
	}
	senses := []Sense{Maximize, Minimize}
	if opts.MinimizeBoth {
		senses[0] = Minimize
	}

	opts.logger().Debug("problem constructed",
		zap.String("instance", m.Name()),
		zap.Int("n_var", layout.NVar()),
		zap.Int("n_sourcing", layout.NSourcing()),
		zap.Int("pruned", m.Materials()*m.Suppliers()-layout.NSourcing()),
		zap.Float64s("product_ceilings", layout.Ceilings()),
		zap.Bool("minimize_both", opts.MinimizeBoth),
	)

	return &CSC{
		layout:    layout,
		sampler:   sampler,
		evaluator: objective.New(layout, opts.Workers),
		opts:      opts,
		senses:    senses,
	}, nil
}

func (p *CSC) Layout() *genome.Layout { return p.layout }
func (p *CSC) Sampler() *sampling.Sampler { return p.sampler }
func (p *CSC) Evaluator() *objective.Evaluator { return p.evaluator }

func (p *CSC) NVar() int { return p.layout.NVar() }
func (p *CSC) NObj() int { return 2 }
func (p *CSC) Lower() []float64 { return p.layout.Lower() }
func (p *CSC) Upper() []float64 { return p.layout.Upper() }
func (p *CSC) Senses() []Sense { return append([]Sense(nil), p.senses...) }

// MaterialAtGene names the owning material of every sourcing gene.
func (p *CSC) MaterialAtGene() []int { return p.layout.MaterialAtGene() }

// Evaluate returns one row per individual: profit (negated when both
// objectives are minimised) and virgin-material ratio.
func (p *CSC) Evaluate(pop mat.Matrix) (*mat.Dense, error) {
	profit, err := p.evaluator.Profit(pop)
	if err != nil {
		return nil, err
	}
	ratio, err := p.evaluator.VirginRatio(pop)
	if err != nil {
		return nil, err
	}
	if p.opts.MinimizeBoth {
		for i := range profit {
			profit[i] = -profit[i]
		}
	}
	return columns(profit, ratio), nil
}

func (p *CSC) Sample(ctx context.Context, n int, seed int64) (*mat.Dense, error) {
	return p.sampler.Population(ctx, n, seed, p.opts.Workers)
}

// columns stacks equally long vectors as the columns of a new matrix.
func columns(cols ...[]float64) *mat.Dense {
	rows := len(cols[0])
	out := mat.NewDense(rows, len(cols), nil)
	for j, col := range cols {
		out.SetCol(j, col)
	}
	return out
}

func checkNeed(m *market.Market, need []float64) error {
	if len(need) != m.Materials() {
		return fmt.Errorf("%w: materials need: want %d entries, got %d", market.ErrConfig, m.Materials(), len(need))
	}
	totals := m.MaterialCapacity()
	for material, v := range need {
		if v < 0 {
			return fmt.Errorf("%w: materials need[%d] must be >= 0, got %g", market.ErrConfig, material, v)
		}
		if v > totals[material] {
			return fmt.Errorf("%w: materials need[%d]=%g exceeds market capacity %g", market.ErrConfig, material, v, totals[material])
		}
	}
	return nil
}
