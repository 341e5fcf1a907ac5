package model

import (
	"time"

	"cscplan/internal/market"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

const (
	RunKindSample   = "sample"
	RunKindSourcing = "sourcing"
)

// RunRecord describes one sampling run and carries the instance it ran on, so
// a stored population can be re-scored without the original file.
type RunRecord struct {
	VersionedRecord
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	CreatedAt    time.Time       `json:"created_at"`
	Instance     market.Instance `json:"instance"`
	Samples      int             `json:"samples"`
	Seed         int64           `json:"seed"`
	Workers      int             `json:"workers"`
	MinimizeBoth bool            `json:"minimize_both"`
	Fractional   bool            `json:"fractional"`
	NVar         int             `json:"n_var"`
	Senses       []string        `json:"senses"`
	Need         []float64       `json:"need,omitempty"`
	Objectives   []ObjectiveStat `json:"objectives"`
}

// ObjectiveStat summarises one objective column of a run.
type ObjectiveStat struct {
	Name  string  `json:"name"`
	Sense string  `json:"sense"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Best  float64 `json:"best"`
}

// PopulationRecord stores a run's decision and objective matrices row-major.
type PopulationRecord struct {
	VersionedRecord
	RunID          string    `json:"run_id"`
	Rows           int       `json:"rows"`
	DecisionCols   int       `json:"decision_cols"`
	ObjectiveCols  int       `json:"objective_cols"`
	MaterialAtGene []int     `json:"material_at_gene"`
	SupplierAtGene []int     `json:"supplier_at_gene"`
	Decisions      []float64 `json:"decisions"`
	Objectives     []float64 `json:"objectives"`
}
