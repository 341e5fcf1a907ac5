package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"cscplan/internal/model"
)

func TestDecodeRunFixture(t *testing.T) {
	run, err := DecodeRun(readFixture(t, "run_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "run-reference-1" || run.Kind != model.RunKindSample {
		t.Fatalf("unexpected run header: %+v", run)
	}
	if run.Instance.Materials != 2 || run.Instance.Capacity[1][2] != 50 {
		t.Fatalf("unexpected embedded instance: %+v", run.Instance)
	}
	if len(run.Objectives) != 2 || run.Objectives[0].Best != 70 {
		t.Fatalf("unexpected objective stats: %+v", run.Objectives)
	}
	if run.CreatedAt.Year() != 2026 {
		t.Fatalf("unexpected created_at: %v", run.CreatedAt)
	}
}

func TestDecodePopulationFixture(t *testing.T) {
	population, err := DecodePopulation(readFixture(t, "population_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if population.Rows != 2 || population.DecisionCols != 8 || population.ObjectiveCols != 2 {
		t.Fatalf("unexpected dims: %+v", population)
	}
	if population.Decisions[8] != 30 || population.Objectives[2] != 70 {
		t.Fatalf("unexpected payload: %+v", population)
	}
}

func TestRunCodecRoundTrip(t *testing.T) {
	run, err := DecodeRun(readFixture(t, "run_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(run, again) {
		t.Fatalf("round trip differs:\n got=%+v\nwant=%+v", again, run)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	if _, err := DecodeRun([]byte(`{"schema_version": 2, "codec_version": 1, "id": "r"}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
	if _, err := DecodePopulation([]byte(`{"schema_version": 1, "codec_version": 9, "run_id": "r"}`)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestPopulationCodecChecksShape(t *testing.T) {
	bad := model.PopulationRecord{
		VersionedRecord: Versioned(),
		RunID:           "r",
		Rows:            2,
		DecisionCols:    3,
		ObjectiveCols:   2,
		Decisions:       []float64{1, 2, 3},
		Objectives:      []float64{1, 2, 3, 4},
	}
	if _, err := EncodePopulation(bad); err == nil {
		t.Fatal("expected shape error on encode")
	}
	data := []byte(`{"schema_version": 1, "codec_version": 1, "run_id": "r", "rows": 1, "decision_cols": 2, "objective_cols": 2, "decisions": [1], "objectives": [1, 2]}`)
	if _, err := DecodePopulation(data); err == nil {
		t.Fatal("expected shape error on decode")
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}
