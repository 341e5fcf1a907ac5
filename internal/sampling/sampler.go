package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"cscplan/internal/genome"
	"cscplan/internal/market"
)

// ErrInfeasible is returned when a material block runs out of usable
// supplier slots before the material need is covered.
var ErrInfeasible = errors.New("material need cannot be sourced")

// coverTolerance is the relative shortfall a sourced material may carry. It
// absorbs rounding left behind by real-valued purchases.
const coverTolerance = 1e-9

// covered reports whether bought satisfies need up to coverTolerance.
func covered(bought, need float64) bool {
	return bought >= need-coverTolerance*math.Max(1, math.Abs(need))
}

type Options struct {
	// Fractional allows real-valued purchase quantities. Production counts
	// are always integral.
	Fractional bool
}

// Sampler builds decision vectors that are feasible by construction. It holds
// only read-only layout data; every call works on its own depletion state, so
// one Sampler may serve many goroutines as long as each has its own rng.
type Sampler struct {
	layout  *genome.Layout
	opts    Options
	recipes [][]float64
	totals  []float64
	blocks  [][]int
	moq     []float64
	cap     []float64
}

func NewSampler(layout *genome.Layout, opts Options) (*Sampler, error) {
	if layout == nil {
		return nil, fmt.Errorf("layout is required")
	}
	m := layout.Market()
	moq, capacity := layout.MOQs(), layout.Capacities()
	if !opts.Fractional {
		for slot := range capacity {
			if capacity[slot] != math.Trunc(capacity[slot]) || moq[slot] != math.Trunc(moq[slot]) {
				return nil, fmt.Errorf("%w: slot %d has non-integral capacity %g or order minimum %g; use fractional mode",
					market.ErrConfig, slot, capacity[slot], moq[slot])
			}
		}
	}
	recipes := make([][]float64, m.Products())
	for p := range recipes {
		recipes[p] = m.Recipe(p)
	}
	return &Sampler{
		layout:  layout,
		opts:    opts,
		recipes: recipes,
		totals:  m.MaterialCapacity(),
		blocks:  layout.MaterialBlocks(),
		moq:     moq,
		cap:     capacity,
	}, nil
}

func (s *Sampler) Layout() *genome.Layout { return s.layout }

// ProductionPlan draws a production count for every product, visiting products
// in random order and depleting a running copy of the market capacity so the
// plan as a whole never asks for more material than the market holds.
func (s *Sampler) ProductionPlan(rng *rand.Rand) []float64 {
	remaining := append([]float64(nil), s.totals...)
	plan := make([]float64, len(s.recipes))

	for _, product := range rng.Perm(len(s.recipes)) {
		recipe := s.recipes[product]
		limit := maxProducible(recipe, remaining)
		count := float64(rng.Int63n(int64(limit) + 1))
		for material, need := range recipe {
			remaining[material] -= count * need
			if remaining[material] < 0 {
				remaining[material] = 0
			}
		}
		plan[product] = count
	}
	return plan
}

func maxProducible(recipe, remaining []float64) float64 {
	limit := math.Inf(1)
	for material, need := range recipe {
		if need == 0 {
			continue
		}
		l := math.Floor(remaining[material] / need)
		if l < limit {
			limit = l
		}
	}
	if math.IsInf(limit, 1) || limit < 0 {
		return 0
	}
	return limit
}

// MaterialsNeeded is the per-material consumption of a production plan.
func (s *Sampler) MaterialsNeeded(plan []float64) []float64 {
	need := make([]float64, len(s.totals))
	for product, count := range plan {
		if count == 0 {
			continue
		}
		for material, perUnit := range s.recipes[product] {
			need[material] += count * perUnit
		}
	}
	return need
}

// Sourcing allocates purchases across the surviving supplier slots until every
// material need is covered. A slot receives either nothing or at least its
// order minimum; once a slot holds its minimum it accepts top-ups of one unit
// or more. Slots that can no longer take a purchase are dropped from the draw.
// A need counts as covered once its shortfall is within a relative 1e-9.
func (s *Sampler) Sourcing(rng *rand.Rand, need []float64) ([]float64, error) {
	if len(need) != len(s.blocks) {
		return nil, fmt.Errorf("materials need length mismatch: got=%d want=%d", len(need), len(s.blocks))
	}
	allocated := make([]float64, len(s.cap))

	for material, total := range need {
		remaining := total
		candidates := append([]int(nil), s.blocks[material]...)
		for !covered(total-remaining, total) {
			if len(candidates) == 0 {
				return nil, fmt.Errorf("%w: material %d short by %g", ErrInfeasible, material, remaining)
			}
			pick := rng.Intn(len(candidates))
			slot := candidates[pick]

			amount, ok := s.purchase(rng, allocated[slot], s.moq[slot], s.cap[slot], remaining)
			if !ok {
				candidates[pick] = candidates[len(candidates)-1]
				candidates = candidates[:len(candidates)-1]
				continue
			}
			allocated[slot] += amount
			remaining -= amount
		}
	}
	return allocated, nil
}

// purchase returns how much to buy at a slot holding allocated units, or
// false when the slot cannot take any purchase that respects its order
// minimum and capacity.
func (s *Sampler) purchase(rng *rand.Rand, allocated, moq, capacity, remaining float64) (float64, bool) {
	headroom := capacity - allocated
	hi := math.Min(remaining, headroom)
	if hi <= 0 {
		return 0, false
	}

	lo := 1.0
	if allocated < moq {
		lo = moq
	}
	if s.opts.Fractional {
		if allocated >= moq && lo > headroom {
			lo = headroom
		}
	} else {
		// A non-integral recipe can leave a fractional need; round it up.
		lo = math.Ceil(lo)
		hi = math.Min(math.Ceil(remaining), math.Floor(headroom))
	}
	if lo > headroom {
		return 0, false
	}

	if lo >= hi {
		return lo, true
	}
	if s.opts.Fractional {
		return lo + rng.Float64()*(hi-lo), true
	}
	return lo + float64(rng.Int63n(int64(hi-lo)+1)), true
}

// Individual samples one full decision vector: sourcing segment followed by
// the production segment.
func (s *Sampler) Individual(rng *rand.Rand) ([]float64, error) {
	plan := s.ProductionPlan(rng)
	sourcing, err := s.Sourcing(rng, s.MaterialsNeeded(plan))
	if err != nil {
		return nil, err
	}
	x := make([]float64, 0, len(sourcing)+len(plan))
	x = append(x, sourcing...)
	x = append(x, plan...)
	return x, nil
}
