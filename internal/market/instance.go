package market

import (
	"errors"
	"fmt"
	"math"
)

// ErrConfig marks a problem instance that cannot be optimised. It is returned
// before any sampling or evaluation takes place.
var ErrConfig = errors.New("invalid problem instance")

// Instance is the raw definition of a circular supply-chain planning problem.
// Per-supplier arrays are indexed [material][supplier], recipes are indexed
// [product][material].
type Instance struct {
	Name      string      `json:"name,omitempty" yaml:"name,omitempty"`
	Materials int         `json:"n_materials" yaml:"n_materials"`
	Suppliers int         `json:"n_suppliers" yaml:"n_suppliers"`
	Products  int         `json:"n_products" yaml:"n_products"`
	MOQ       [][]float64 `json:"moq" yaml:"moq"`
	Capacity  [][]float64 `json:"cap" yaml:"cap"`
	Price     [][]float64 `json:"mp" yaml:"mp"`
	// Recycled is true for recycled sources and false for virgin sources.
	Recycled  [][]bool    `json:"recycled" yaml:"recycled"`
	Recipe    [][]float64 `json:"mc" yaml:"mc"`
	SalePrice []float64   `json:"sp" yaml:"sp"`
	// FixedCost belongs to the instance definition but does not enter the
	// objective functions.
	FixedCost float64 `json:"fixed_cost" yaml:"fixed_cost"`
}

// Validate checks array shapes, value domains and the configuration errors
// that would otherwise surface mid-run: a product with an empty recipe, a
// required material without any capacitated supplier, and a supplier whose
// order minimum exceeds its capacity.
func (in Instance) Validate() error {
	if in.Materials <= 0 || in.Suppliers <= 0 || in.Products <= 0 {
		return configErrorf("materials, suppliers and products must be > 0 (got %d, %d, %d)", in.Materials, in.Suppliers, in.Products)
	}
	if err := checkMatrix("moq", in.MOQ, in.Materials, in.Suppliers); err != nil {
		return err
	}
	if err := checkMatrix("cap", in.Capacity, in.Materials, in.Suppliers); err != nil {
		return err
	}
	if err := checkMatrix("mp", in.Price, in.Materials, in.Suppliers); err != nil {
		return err
	}
	if len(in.Recycled) != in.Materials {
		return configErrorf("recycled: want %d rows, got %d", in.Materials, len(in.Recycled))
	}
	for m, row := range in.Recycled {
		if len(row) != in.Suppliers {
			return configErrorf("recycled[%d]: want %d columns, got %d", m, in.Suppliers, len(row))
		}
	}
	if err := checkMatrix("mc", in.Recipe, in.Products, in.Materials); err != nil {
		return err
	}
	if len(in.SalePrice) != in.Products {
		return configErrorf("sp: want %d entries, got %d", in.Products, len(in.SalePrice))
	}
	if !finite(in.FixedCost) {
		return configErrorf("fixed_cost must be finite, got %g", in.FixedCost)
	}
	for p, v := range in.SalePrice {
		if !finite(v) {
			return configErrorf("sp[%d] must be finite, got %g", p, v)
		}
		if v < 0 {
			return configErrorf("sp[%d] must be >= 0, got %g", p, v)
		}
	}

	for m := 0; m < in.Materials; m++ {
		for s := 0; s < in.Suppliers; s++ {
			capacity := in.Capacity[m][s]
			if capacity > 0 && in.MOQ[m][s] > capacity {
				return configErrorf("material %d supplier %d: order minimum %g exceeds capacity %g", m, s, in.MOQ[m][s], capacity)
			}
		}
	}

	totals := marketTotals(in.Capacity)
	for p := 0; p < in.Products; p++ {
		required := 0
		for m, need := range in.Recipe[p] {
			if need == 0 {
				continue
			}
			required++
			if totals[m] == 0 {
				return configErrorf("product %d requires material %d which has no capacitated supplier", p, m)
			}
		}
		if required == 0 {
			return configErrorf("product %d has an empty recipe", p)
		}
	}
	return nil
}

func checkMatrix(name string, values [][]float64, rows, cols int) error {
	if len(values) != rows {
		return configErrorf("%s: want %d rows, got %d", name, rows, len(values))
	}
	for i, row := range values {
		if len(row) != cols {
			return configErrorf("%s[%d]: want %d columns, got %d", name, i, cols, len(row))
		}
		for j, v := range row {
			if !finite(v) {
				return configErrorf("%s[%d][%d] must be finite, got %g", name, i, j, v)
			}
			if v < 0 {
				return configErrorf("%s[%d][%d] must be >= 0, got %g", name, i, j, v)
			}
		}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func marketTotals(capacity [][]float64) []float64 {
	totals := make([]float64, len(capacity))
	for m, row := range capacity {
		for _, c := range row {
			totals[m] += c
		}
	}
	return totals
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
