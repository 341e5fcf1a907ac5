package objective

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"cscplan/internal/genome"
	"cscplan/internal/market"
)

func referenceLayout(t *testing.T) *genome.Layout {
	t.Helper()
	m, err := market.New(market.Instance{
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
	})
	if err != nil {
		t.Fatalf("new market: %v", err)
	}
	layout, err := genome.NewLayout(m)
	if err != nil {
		t.Fatalf("new layout: %v", err)
	}
	return layout
}

func TestEvaluatorScoresKnownRows(t *testing.T) {
	e := New(referenceLayout(t), 1)
	pop := mat.NewDense(3, 8, []float64{
		0, 0, 0, 0, 0, 0, 0, 0,
		30, 0, 0, 10, 0, 0, 10, 0,
		20, 0, 30, 0, 0, 50, 5, 10,
	})

	revenue, err := e.Revenue(pop)
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	cost, err := e.Cost(pop)
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	profit, err := e.Profit(pop)
	if err != nil {
		t.Fatalf("profit: %v", err)
	}
	ratio, err := e.VirginRatio(pop)
	if err != nil {
		t.Fatalf("virgin ratio: %v", err)
	}

	wantRevenue := []float64{0, 150, 225}
	wantCost := []float64{0, 80, 40 + 90 + 125}
	wantRatio := []float64{ZeroPurchaseRatio, 1, 20.0 / 100.0}
	for i := range wantRevenue {
		if revenue[i] != wantRevenue[i] {
			t.Fatalf("row %d revenue=%f want %f", i, revenue[i], wantRevenue[i])
		}
		if cost[i] != wantCost[i] {
			t.Fatalf("row %d cost=%f want %f", i, cost[i], wantCost[i])
		}
		if profit[i] != wantRevenue[i]-wantCost[i] {
			t.Fatalf("row %d profit=%f want %f", i, profit[i], wantRevenue[i]-wantCost[i])
		}
		if math.Abs(ratio[i]-wantRatio[i]) > 1e-12 {
			t.Fatalf("row %d ratio=%f want %f", i, ratio[i], wantRatio[i])
		}
	}
}

func TestZeroPurchaseIsMaximallySustainable(t *testing.T) {
	e := New(referenceLayout(t), 1)
	pop := mat.NewDense(1, 8, []float64{0, 0, 0, 0, 0, 0, 3, 0})
	ratio, err := e.VirginRatio(pop)
	if err != nil {
		t.Fatalf("virgin ratio: %v", err)
	}
	if math.IsNaN(ratio[0]) || ratio[0] != ZeroPurchaseRatio {
		t.Fatalf("expected zero-purchase ratio, got %f", ratio[0])
	}
}

func TestEvaluatorIsDeterministicAndParallelSafe(t *testing.T) {
	layout := referenceLayout(t)
	rows := 257
	data := make([]float64, rows*8)
	for i := range data {
		data[i] = float64((i*7919)%97) / 3
	}
	pop := mat.NewDense(rows, 8, data)
	before := mat.DenseCopyOf(pop)

	serial, err := New(layout, 1).Profit(pop)
	if err != nil {
		t.Fatalf("serial profit: %v", err)
	}
	parallel, err := New(layout, 8).Profit(pop)
	if err != nil {
		t.Fatalf("parallel profit: %v", err)
	}
	again, err := New(layout, 8).Profit(pop)
	if err != nil {
		t.Fatalf("repeat profit: %v", err)
	}
	for i := range serial {
		if serial[i] != parallel[i] || parallel[i] != again[i] {
			t.Fatalf("row %d differs: %v %v %v", i, serial[i], parallel[i], again[i])
		}
	}
	if !mat.Equal(before, pop) {
		t.Fatal("evaluator mutated its input")
	}
}

func TestSourcingEvaluatorWidth(t *testing.T) {
	layout := referenceLayout(t)
	e := NewSourcing(layout, 2)
	if e.Width() != 6 {
		t.Fatalf("unexpected width %d", e.Width())
	}
	cost, err := e.Cost(mat.NewDense(1, 6, []float64{15, 0, 0, 10, 0, 2}))
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if cost[0] != 30+20+5 {
		t.Fatalf("unexpected cost %f", cost[0])
	}
	if _, err := e.Cost(mat.NewDense(1, 8, nil)); err == nil {
		t.Fatal("expected width mismatch error")
	}
	if _, err := e.Cost(nil); err == nil {
		t.Fatal("expected error for nil population")
	}
}
