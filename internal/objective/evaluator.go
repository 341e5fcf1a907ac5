package objective

import (
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"

	"cscplan/internal/genome"
)

// ZeroPurchaseRatio is the virgin-material ratio of an individual that buys
// nothing. Buying nothing counts as maximally sustainable.
const ZeroPurchaseRatio = 0.0

// Evaluator scores population matrices. Rows are individuals; the first
// len(prices) columns are purchase quantities per sourcing slot and the
// remaining columns, if any, are production counts per product.
//
// Evaluator never mutates its input and keeps no state between calls, so the
// same matrix always yields bit-identical scores.
type Evaluator struct {
	prices    []float64
	recycled  []bool
	salePrice []float64
	workers   int
}

// New builds an evaluator for full decision vectors of layout.
func New(layout *genome.Layout, workers int) *Evaluator {
	m := layout.Market()
	salePrice := make([]float64, m.Products())
	for p := range salePrice {
		salePrice[p] = m.SalePrice(p)
	}
	return &Evaluator{
		prices:    layout.Prices(),
		recycled:  layout.RecycledMask(),
		salePrice: salePrice,
		workers:   workers,
	}
}

// NewSourcing builds an evaluator for sourcing-only vectors.
func NewSourcing(layout *genome.Layout, workers int) *Evaluator {
	return &Evaluator{
		prices:   layout.Prices(),
		recycled: layout.RecycledMask(),
		workers:  workers,
	}
}

// Width is the number of columns a population must have.
func (e *Evaluator) Width() int { return len(e.prices) + len(e.salePrice) }

// Revenue is the sale value of the production segment.
func (e *Evaluator) Revenue(pop mat.Matrix) ([]float64, error) {
	return e.mapRows(pop, e.revenue)
}

// Cost is the purchase value of the sourcing segment.
func (e *Evaluator) Cost(pop mat.Matrix) ([]float64, error) {
	return e.mapRows(pop, e.cost)
}

// Profit is revenue minus cost.
func (e *Evaluator) Profit(pop mat.Matrix) ([]float64, error) {
	return e.mapRows(pop, func(x []float64) float64 {
		return e.revenue(x) - e.cost(x)
	})
}

// VirginRatio is the share of purchased units that come from virgin sources,
// counted in raw units. Rows that buy nothing score ZeroPurchaseRatio.
func (e *Evaluator) VirginRatio(pop mat.Matrix) ([]float64, error) {
	return e.mapRows(pop, e.virginRatio)
}

func (e *Evaluator) revenue(x []float64) float64 {
	production := x[len(e.prices):]
	total := 0.0
	for p, count := range production {
		total += count * e.salePrice[p]
	}
	return total
}

func (e *Evaluator) cost(x []float64) float64 {
	total := 0.0
	for slot, price := range e.prices {
		total += x[slot] * price
	}
	return total
}

func (e *Evaluator) virginRatio(x []float64) float64 {
	all, virgin := 0.0, 0.0
	for slot, recycled := range e.recycled {
		all += x[slot]
		if !recycled {
			virgin += x[slot]
		}
	}
	if all == 0 {
		return ZeroPurchaseRatio
	}
	return virgin / all
}

// mapRows applies fn to every row of pop. Rows are split into contiguous
// chunks, one per worker; each chunk owns its row buffer and its slice of the
// output.
func (e *Evaluator) mapRows(pop mat.Matrix, fn func([]float64) float64) ([]float64, error) {
	if pop == nil {
		return nil, fmt.Errorf("population is required")
	}
	rows, cols := pop.Dims()
	if cols != e.Width() {
		return nil, fmt.Errorf("population width mismatch: got=%d want=%d", cols, e.Width())
	}
	out := make([]float64, rows)

	workers := e.workers
	if workers <= 0 {
		workers = 1
	}
	if workers > rows {
		workers = rows
	}
	if workers <= 1 {
		buf := make([]float64, cols)
		for i := 0; i < rows; i++ {
			out[i] = fn(mat.Row(buf, i, pop))
		}
		return out, nil
	}

	chunk := (rows + workers - 1) / workers
	p := pool.New().WithMaxGoroutines(workers)
	for start := 0; start < rows; start += chunk {
		end := min(start+chunk, rows)
		p.Go(func() {
			buf := make([]float64, cols)
			for i := start; i < end; i++ {
				out[i] = fn(mat.Row(buf, i, pop))
			}
		})
	}
	p.Wait()
	return out, nil
}
