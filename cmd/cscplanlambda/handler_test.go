package main

import (
	"context"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"cscplan/internal/market"
	"cscplan/internal/sampling"
)

func TestParseRequestDefaults(t *testing.T) {
	req, err := parseRequest([]byte(`{"seed": 7}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Mode != modeSample || req.Samples != defaultSamples || req.Seed != 7 {
		t.Fatalf("unexpected defaults: %+v", req)
	}
	if req.Instance.Name != "reference" {
		t.Fatalf("expected reference instance, got %q", req.Instance.Name)
	}
}

func TestParseRequestInlineInstance(t *testing.T) {
	body := `{
		"mode": "source",
		"plan": [3],
		"instance": {
			"name": "inline",
			"moq": [[1, 1]], "cap": [[10, 10]], "mp": [[1, 2]],
			"recycled": [[false, true]], "mc": [[2]], "sp": [5]
		}
	}`
	req, err := parseRequest([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Instance.Name != "inline" || req.Instance.Suppliers != 2 || req.Instance.Products != 1 {
		t.Fatalf("unexpected inline instance: %+v", req.Instance)
	}
	if len(req.Plan) != 1 || req.Need != nil {
		t.Fatalf("unexpected plan/need: %v %v", req.Plan, req.Need)
	}
}

func TestParseRequestErrors(t *testing.T) {
	cases := map[string]string{
		"invalid json":     `{"seed":`,
		"not an object":    `[1, 2]`,
		"bad samples":      `{"samples": 0}`,
		"too many samples": `{"samples": 1000000}`,
		"unknown instance": `{"instance": "missing"}`,
		"instance type":    `{"instance": 3}`,
		"unknown mode":     `{"mode": "optimize"}`,
		"need in sample":   `{"need": [1, 2]}`,
		"source without":   `{"mode": "source"}`,
		"source with both": `{"mode": "source", "need": [1, 2], "plan": [1, 1]}`,
		"need not array":   `{"mode": "source", "need": 3}`,
		"need item":        `{"mode": "source", "need": [1, "x"]}`,
	}
	for name, body := range cases {
		_, err := parseRequest([]byte(body))
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if statusOf(err) != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d (%v)", name, statusOf(err), err)
		}
	}
}

func TestSolveSampleAndSource(t *testing.T) {
	s := &solver{logger: zap.NewNop(), workers: 2}
	ctx := context.Background()

	req, err := parseRequest([]byte(`{"samples": 5, "seed": 3, "minimize_both": true}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	resp, err := s.solve(ctx, req)
	if err != nil {
		t.Fatalf("solve sample: %v", err)
	}
	if resp.NVar != 8 || len(resp.Population) != 5 || len(resp.Population[0]) != 8 || len(resp.Values[0]) != 2 {
		t.Fatalf("unexpected sample response shape: %+v", resp)
	}
	if resp.Objectives[0] != "neg_profit" || resp.Senses[0] != "minimize" {
		t.Fatalf("unexpected objective metadata: %v %v", resp.Objectives, resp.Senses)
	}

	req, err = parseRequest([]byte(`{"mode": "source", "plan": [10, 5], "samples": 4}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	resp, err = s.solve(ctx, req)
	if err != nil {
		t.Fatalf("solve source: %v", err)
	}
	if resp.NVar != 6 || len(resp.Need) != 2 || resp.Need[0] != 35 || resp.Need[1] != 25 {
		t.Fatalf("unexpected source response: n_var=%d need=%v", resp.NVar, resp.Need)
	}
	for _, row := range resp.Values {
		if row[0] <= 0 {
			t.Fatalf("sourcing cost must be positive, got %v", row)
		}
	}
}

func TestSolveRejectsNeedAboveMarket(t *testing.T) {
	s := &solver{logger: zap.NewNop()}
	req, err := parseRequest([]byte(`{"mode": "source", "need": [1000, 10]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = s.solve(context.Background(), req)
	if err == nil {
		t.Fatal("expected error for need above market capacity")
	}
	if statusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%v)", statusOf(err), err)
	}
}

func TestStatusOf(t *testing.T) {
	if got := statusOf(sampling.ErrInfeasible); got != http.StatusUnprocessableEntity {
		t.Fatalf("infeasible: got %d", got)
	}
	if got := statusOf(market.ErrConfig); got != http.StatusBadRequest {
		t.Fatalf("config: got %d", got)
	}
	if got := statusOf(context.Canceled); got != http.StatusInternalServerError {
		t.Fatalf("other: got %d", got)
	}
}
