package market

import (
	"errors"
	"math"
	"testing"
)

func referenceInstance() Instance {
	return Instance{
		Name:      "reference",
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

func TestNewMarketReferenceInstance(t *testing.T) {
	m, err := New(referenceInstance())
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	totals := m.MaterialCapacity()
	if len(totals) != 2 || totals[0] != 150 || totals[1] != 150 {
		t.Fatalf("unexpected market totals: %v", totals)
	}
	if got := m.RequiredMaterials(0); len(got) != 2 {
		t.Fatalf("unexpected required materials: %v", got)
	}
	if m.FixedCost() != 50 {
		t.Fatalf("unexpected fixed cost: %f", m.FixedCost())
	}
}

func TestMarketIsDetachedFromInstance(t *testing.T) {
	in := referenceInstance()
	m, err := New(in)
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	in.Capacity[0][0] = 1
	in.Recipe[0][0] = 99
	if m.Capacity(0, 0) != 100 || m.Requirement(0, 0) != 3 {
		t.Fatal("market aliases caller arrays")
	}
	totals := m.MaterialCapacity()
	totals[0] = 0
	if m.MaterialCapacity()[0] != 150 {
		t.Fatal("market totals are mutable through the accessor")
	}
}

func TestValidateConfigurationErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Instance)
	}{
		{"zero counts", func(in *Instance) { in.Products = 0 }},
		{"moq rows", func(in *Instance) { in.MOQ = in.MOQ[:1] }},
		{"cap columns", func(in *Instance) { in.Capacity[1] = []float64{1, 2} }},
		{"recycled rows", func(in *Instance) { in.Recycled = nil }},
		{"recipe shape", func(in *Instance) { in.Recipe[0] = []float64{1} }},
		{"sale prices", func(in *Instance) { in.SalePrice = []float64{1} }},
		{"negative price", func(in *Instance) { in.Price[0][1] = -1 }},
		{"negative sale price", func(in *Instance) { in.SalePrice[1] = -3 }},
		{"moq above capacity", func(in *Instance) { in.MOQ[0][1] = 21 }},
		{"empty recipe", func(in *Instance) { in.Recipe[1] = []float64{0, 0} }},
		{"required material without supply", func(in *Instance) { in.Capacity[1] = []float64{0, 0, 0} }},
		{"nan capacity", func(in *Instance) { in.Capacity[0][0] = math.NaN() }},
		{"infinite capacity", func(in *Instance) { in.Capacity[1][2] = math.Inf(1) }},
		{"nan order minimum", func(in *Instance) { in.MOQ[0][1] = math.NaN() }},
		{"nan recipe", func(in *Instance) { in.Recipe[0][0] = math.NaN() }},
		{"infinite sale price", func(in *Instance) { in.SalePrice[0] = math.Inf(1) }},
		{"nan fixed cost", func(in *Instance) { in.FixedCost = math.NaN() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := referenceInstance()
			tc.mutate(&in)
			err := in.Validate()
			if err == nil {
				t.Fatal("expected configuration error")
			}
			if !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestValidateAllowsUnusedMaterialWithoutSupply(t *testing.T) {
	in := referenceInstance()
	in.Materials = 3
	in.MOQ = append(in.MOQ, []float64{0, 0, 0})
	in.Capacity = append(in.Capacity, []float64{0, 0, 0})
	in.Price = append(in.Price, []float64{0, 0, 0})
	in.Recycled = append(in.Recycled, []bool{false, false, false})
	in.Recipe = [][]float64{{3, 1, 0}, {1, 3, 0}}
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateAllowsMOQOnPrunedSupplier(t *testing.T) {
	in := referenceInstance()
	in.Capacity[0][2] = 0
	in.MOQ[0][2] = 40
	if err := in.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
