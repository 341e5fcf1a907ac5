package genome

import (
	"errors"
	"reflect"
	"testing"

	"cscplan/internal/market"
)

func referenceInstance() market.Instance {
	return market.Instance{
		Materials: 2,
		Suppliers: 3,
		Products:  2,
		MOQ:       [][]float64{{15, 2, 1}, {10, 3, 2}},
		Capacity:  [][]float64{{100, 20, 30}, {70, 30, 50}},
		Price:     [][]float64{{2, 2.5, 3}, {2, 2.5, 2.5}},
		Recycled:  [][]bool{{false, false, true}, {false, false, true}},
		Recipe:    [][]float64{{3, 1}, {1, 3}},
		SalePrice: []float64{15, 15},
		FixedCost: 50,
	}
}

func mustLayout(t *testing.T, in market.Instance) *Layout {
	t.Helper()
	m, err := market.New(in)
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	layout, err := NewLayout(m)
	if err != nil {
		t.Fatalf("new layout: %v", err)
	}
	return layout
}

func TestLayoutReferenceInstance(t *testing.T) {
	layout := mustLayout(t, referenceInstance())

	if layout.NVar() != 8 || layout.NSourcing() != 6 {
		t.Fatalf("unexpected dimensions: nvar=%d sourcing=%d", layout.NVar(), layout.NSourcing())
	}
	if got := layout.Ceilings(); !reflect.DeepEqual(got, []float64{50, 50}) {
		t.Fatalf("unexpected ceilings: %v", got)
	}
	wantUpper := []float64{100, 20, 30, 70, 30, 50, 50, 50}
	if got := layout.Upper(); !reflect.DeepEqual(got, wantUpper) {
		t.Fatalf("unexpected upper bounds: %v", got)
	}
	for i, v := range layout.Lower() {
		if v != 0 {
			t.Fatalf("lower bound %d = %f, want 0", i, v)
		}
	}
	if got := layout.MaterialAtGene(); !reflect.DeepEqual(got, []int{0, 0, 0, 1, 1, 1}) {
		t.Fatalf("unexpected material mapping: %v", got)
	}
	if got := layout.SupplierAtGene(); !reflect.DeepEqual(got, []int{0, 1, 2, 0, 1, 2}) {
		t.Fatalf("unexpected supplier mapping: %v", got)
	}
	if layout.ProductSlot(1) != 7 {
		t.Fatalf("unexpected product slot: %d", layout.ProductSlot(1))
	}
}

func TestLayoutPrunesZeroCapacitySupplier(t *testing.T) {
	in := referenceInstance()
	in.Capacity[0][2] = 0
	layout := mustLayout(t, in)

	if layout.NSourcing() != 5 || layout.NVar() != 7 {
		t.Fatalf("unexpected dimensions after pruning: nvar=%d sourcing=%d", layout.NVar(), layout.NSourcing())
	}
	if got := layout.MaterialAtGene(); !reflect.DeepEqual(got, []int{0, 0, 1, 1, 1}) {
		t.Fatalf("unexpected material mapping: %v", got)
	}
	if got := layout.SupplierAtGene(); !reflect.DeepEqual(got, []int{0, 1, 0, 1, 2}) {
		t.Fatalf("unexpected supplier mapping: %v", got)
	}
	if got := layout.MOQs(); !reflect.DeepEqual(got, []float64{15, 2, 10, 3, 2}) {
		t.Fatalf("pruned arrays out of step: %v", got)
	}
	if len(layout.Lower()) != layout.NVar() || len(layout.Upper()) != layout.NVar() {
		t.Fatal("bounds length disagrees with nvar")
	}
	// 120 units of material 0 remain on the market.
	if got := layout.Ceilings(); !reflect.DeepEqual(got, []float64{40, 50}) {
		t.Fatalf("unexpected ceilings: %v", got)
	}
	if got := layout.MaterialBlocks(); !reflect.DeepEqual(got, [][]int{{0, 1}, {2, 3, 4}}) {
		t.Fatalf("unexpected material blocks: %v", got)
	}
}

func TestProductCeilingsIgnoreUnusedMaterials(t *testing.T) {
	in := referenceInstance()
	in.Recipe = [][]float64{{4, 0}, {0, 7}}
	layout := mustLayout(t, in)
	// floor(150/4)=37 and floor(150/7)=21.
	if got := layout.Ceilings(); !reflect.DeepEqual(got, []float64{37, 21}) {
		t.Fatalf("unexpected ceilings: %v", got)
	}
}

func TestProductCeilingMayBeZero(t *testing.T) {
	in := referenceInstance()
	in.Recipe = [][]float64{{151, 1}, {1, 3}}
	layout := mustLayout(t, in)
	if got := layout.Ceilings()[0]; got != 0 {
		t.Fatalf("expected zero ceiling, got %f", got)
	}
}

func TestLayoutRejectsNilMarket(t *testing.T) {
	if _, err := NewLayout(nil); err == nil {
		t.Fatal("expected error for nil market")
	}
}

func TestLayoutMaterialWithoutSuppliers(t *testing.T) {
	in := referenceInstance()
	in.Materials = 3
	in.MOQ = append(in.MOQ, []float64{0, 0, 0})
	in.Capacity = append(in.Capacity, []float64{0, 0, 0})
	in.Price = append(in.Price, []float64{0, 0, 0})
	in.Recycled = append(in.Recycled, []bool{false, false, false})
	in.Recipe = [][]float64{{3, 1, 0}, {1, 3, 0}}
	m, err := market.New(in)
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	ceilings, err := ProductCeilings(m)
	if err != nil {
		t.Fatalf("ceilings: %v", err)
	}
	if !reflect.DeepEqual(ceilings, []float64{50, 50}) {
		t.Fatalf("unexpected ceilings: %v", ceilings)
	}
	layout, err := NewLayout(m)
	if err != nil {
		t.Fatalf("new layout: %v", err)
	}
	if len(layout.Block(2)) != 0 {
		t.Fatalf("expected empty block for unsupplied material, got %v", layout.Block(2))
	}

	in.Recipe = [][]float64{{3, 1, 1}, {1, 3, 0}}
	if _, err := market.New(in); !errors.Is(err, market.ErrConfig) {
		t.Fatalf("expected configuration error for starved material, got %v", err)
	}
}

func TestCheckEnforcesOrderMinimumAndCapacity(t *testing.T) {
	layout := mustLayout(t, referenceInstance())

	cases := []struct {
		name string
		x    []float64
		ok   bool
	}{
		{"all zero", []float64{0, 0, 0, 0, 0, 0, 0, 0}, true},
		{"at moq", []float64{15, 2, 1, 10, 3, 2, 1, 1}, true},
		{"below moq", []float64{14, 0, 0, 0, 0, 0, 0, 0}, false},
		{"above capacity", []float64{0, 21, 0, 0, 0, 0, 0, 0}, false},
		{"above ceiling", []float64{0, 0, 0, 0, 0, 0, 51, 0}, false},
		{"negative", []float64{0, 0, 0, 0, 0, 0, -1, 0}, false},
		{"short vector", []float64{0, 0}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := layout.Check(tc.x)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected violation")
			}
		})
	}
}
