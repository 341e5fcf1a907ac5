package genome

import (
	"fmt"
	"math"

	"cscplan/internal/market"
)

// Layout maps a decision vector onto the market: one sourcing slot per
// surviving (material, supplier) pair followed by one production slot per
// product. Zero-capacity pairs are pruned and never become genes.
type Layout struct {
	market *market.Market

	materialAtGene []int
	supplierAtGene []int
	moq            []float64
	capacity       []float64
	price          []float64
	recycled       []bool
	blocks         [][]int

	lower    []float64
	upper    []float64
	ceilings []float64
}

func NewLayout(m *market.Market) (*Layout, error) {
	if m == nil {
		return nil, fmt.Errorf("market is required")
	}

	var (
		materialAtGene []int
		supplierAtGene []int
		moq            []float64
		capacity       []float64
		price          []float64
		recycled       []bool
	)
	blocks := make([][]int, m.Materials())
	for material := 0; material < m.Materials(); material++ {
		for supplier := 0; supplier < m.Suppliers(); supplier++ {
			c := m.Capacity(material, supplier)
			if c == 0 {
				continue
			}
			blocks[material] = append(blocks[material], len(materialAtGene))
			materialAtGene = append(materialAtGene, material)
			supplierAtGene = append(supplierAtGene, supplier)
			moq = append(moq, m.MOQ(material, supplier))
			capacity = append(capacity, c)
			price = append(price, m.Price(material, supplier))
			recycled = append(recycled, m.Recycled(material, supplier))
		}
	}

	ceilings, err := ProductCeilings(m)
	if err != nil {
		return nil, err
	}

	nVar := len(capacity) + m.Products()
	upper := make([]float64, 0, nVar)
	upper = append(upper, capacity...)
	upper = append(upper, ceilings...)

	return &Layout{
		market:         m,
		materialAtGene: materialAtGene,
		supplierAtGene: supplierAtGene,
		moq:            moq,
		capacity:       capacity,
		price:          price,
		recycled:       recycled,
		blocks:         blocks,
		lower:          make([]float64, nVar),
		upper:          upper,
		ceilings:       ceilings,
	}, nil
}

// ProductCeilings returns, per product, the most units that could be built if
// no other product consumed any material. Every material with a nonzero
// requirement bounds the product by floor(market capacity / requirement);
// materials the recipe does not use are ignored. Competition between products
// for the same material is not considered here.
func ProductCeilings(m *market.Market) ([]float64, error) {
	totals := m.MaterialCapacity()
	ceilings := make([]float64, m.Products())
	for product := range ceilings {
		ceiling := math.Inf(1)
		for _, material := range m.RequiredMaterials(product) {
			if totals[material] == 0 {
				return nil, fmt.Errorf("%w: product %d requires material %d with zero market capacity", market.ErrConfig, product, material)
			}
			limit := math.Floor(totals[material] / m.Requirement(product, material))
			if limit < ceiling {
				ceiling = limit
			}
		}
		if math.IsInf(ceiling, 1) {
			return nil, fmt.Errorf("%w: product %d has no bounded material requirement", market.ErrConfig, product)
		}
		ceilings[product] = ceiling
	}
	return ceilings, nil
}

func (l *Layout) Market() *market.Market { return l.market }

// NVar is the decision-vector length.
func (l *Layout) NVar() int { return len(l.capacity) + l.market.Products() }

// NSourcing is the number of surviving (material, supplier) slots.
func (l *Layout) NSourcing() int { return len(l.capacity) }

func (l *Layout) NProducts() int { return l.market.Products() }

// ProductSlot is the decision-vector index holding product's production count.
func (l *Layout) ProductSlot(product int) int { return len(l.capacity) + product }

func (l *Layout) Lower() []float64 { return append([]float64(nil), l.lower...) }
func (l *Layout) Upper() []float64 { return append([]float64(nil), l.upper...) }

// Ceilings returns the per-product production upper bounds.
func (l *Layout) Ceilings() []float64 { return append([]float64(nil), l.ceilings...) }

// MaterialAtGene names the owning material of every sourcing slot.
func (l *Layout) MaterialAtGene() []int { return append([]int(nil), l.materialAtGene...) }

// SupplierAtGene names the supplier of every sourcing slot.
func (l *Layout) SupplierAtGene() []int { return append([]int(nil), l.supplierAtGene...) }

func (l *Layout) MOQ(slot int) float64      { return l.moq[slot] }
func (l *Layout) Capacity(slot int) float64 { return l.capacity[slot] }
func (l *Layout) Price(slot int) float64    { return l.price[slot] }
func (l *Layout) Recycled(slot int) bool    { return l.recycled[slot] }

// Block returns the sourcing slots belonging to material, in supplier order.
// A material without any capacitated supplier has an empty block.
func (l *Layout) Block(material int) []int {
	return append([]int(nil), l.blocks[material]...)
}

// MaterialBlocks returns the slot grouping for every material. Crossover and
// mutation operators use it to keep offspring structurally meaningful.
func (l *Layout) MaterialBlocks() [][]int {
	out := make([][]int, len(l.blocks))
	for i := range l.blocks {
		out[i] = l.Block(i)
	}
	return out
}

// Split returns the sourcing and production segments of x without copying.
func (l *Layout) Split(x []float64) (sourcing, production []float64) {
	return x[:len(l.capacity)], x[len(l.capacity):]
}

// Check reports the first violated bound, order-minimum or capacity
// constraint in x, or nil when x is a feasible decision vector.
func (l *Layout) Check(x []float64) error {
	if len(x) != l.NVar() {
		return fmt.Errorf("decision vector length mismatch: got=%d want=%d", len(x), l.NVar())
	}
	for i, v := range x {
		if v < l.lower[i] || v > l.upper[i] {
			return fmt.Errorf("slot %d value %g outside [%g, %g]", i, v, l.lower[i], l.upper[i])
		}
	}
	sourcing, _ := l.Split(x)
	return CheckSourcing(sourcing, l.moq, l.capacity)
}

// CheckSourcing enforces the all-or-nothing order minimum and the capacity
// ceiling on every sourcing slot.
func CheckSourcing(sourcing, moq, capacity []float64) error {
	for i, v := range sourcing {
		if v > capacity[i] {
			return fmt.Errorf("slot %d buys %g above capacity %g", i, v, capacity[i])
		}
		if v != 0 && v < moq[i] {
			return fmt.Errorf("slot %d buys %g below order minimum %g", i, v, moq[i])
		}
	}
	return nil
}

// MOQs returns the order minimum of every sourcing slot.
func (l *Layout) MOQs() []float64 { return append([]float64(nil), l.moq...) }

// Capacities returns the capacity of every sourcing slot.
func (l *Layout) Capacities() []float64 { return append([]float64(nil), l.capacity...) }

// Prices returns the unit price of every sourcing slot.
func (l *Layout) Prices() []float64 { return append([]float64(nil), l.price...) }

// RecycledMask returns the recycled flag of every sourcing slot.
func (l *Layout) RecycledMask() []bool { return append([]bool(nil), l.recycled...) }
