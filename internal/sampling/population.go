package sampling

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"
)

// DrawFunc produces one row of a population from its own random stream.
type DrawFunc func(rng *rand.Rand) ([]float64, error)

// Populate samples n rows of the given width. Row i draws from a stream seeded
// by the i-th value of a master stream, so the result depends on seed only and
// not on the worker count or scheduling order.
func Populate(ctx context.Context, n, width int, seed int64, workers int, draw DrawFunc) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be > 0")
	}
	if width <= 0 {
		return nil, fmt.Errorf("row width must be > 0")
	}
	if workers <= 0 {
		workers = 1
	}

	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	rows := make([][]float64, n)
	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for i := range rows {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			row, err := draw(rand.New(rand.NewSource(seeds[i])))
			if err != nil {
				return fmt.Errorf("individual %d: %w", i, err)
			}
			if len(row) != width {
				return fmt.Errorf("individual %d: row width mismatch: got=%d want=%d", i, len(row), width)
			}
			rows[i] = row
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	data := make([]float64, 0, n*width)
	for _, row := range rows {
		data = append(data, row...)
	}
	return mat.NewDense(n, width, data), nil
}

// Population samples n full decision vectors.
func (s *Sampler) Population(ctx context.Context, n int, seed int64, workers int) (*mat.Dense, error) {
	return Populate(ctx, n, s.layout.NVar(), seed, workers, s.Individual)
}

// SourcingPopulation samples n sourcing-only vectors that all cover need.
func (s *Sampler) SourcingPopulation(ctx context.Context, n int, seed int64, workers int, need []float64) (*mat.Dense, error) {
	need = append([]float64(nil), need...)
	return Populate(ctx, n, s.layout.NSourcing(), seed, workers, func(rng *rand.Rand) ([]float64, error) {
		return s.Sourcing(rng, need)
	})
}
