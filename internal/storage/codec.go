package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"cscplan/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Versioned returns the record header stamped on everything this package writes.
func Versioned() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodePopulation(p model.PopulationRecord) ([]byte, error) {
	if err := checkShape(p); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

func DecodePopulation(data []byte) (model.PopulationRecord, error) {
	var population model.PopulationRecord
	if err := json.Unmarshal(data, &population); err != nil {
		return model.PopulationRecord{}, err
	}
	if err := checkVersion(population.VersionedRecord); err != nil {
		return model.PopulationRecord{}, err
	}
	if err := checkShape(population); err != nil {
		return model.PopulationRecord{}, err
	}
	return population, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

func checkShape(p model.PopulationRecord) error {
	if len(p.Decisions) != p.Rows*p.DecisionCols {
		return fmt.Errorf("population %s: decisions length %d does not match %dx%d", p.RunID, len(p.Decisions), p.Rows, p.DecisionCols)
	}
	if len(p.Objectives) != p.Rows*p.ObjectiveCols {
		return fmt.Errorf("population %s: objectives length %d does not match %dx%d", p.RunID, len(p.Objectives), p.Rows, p.ObjectiveCols)
	}
	return nil
}
