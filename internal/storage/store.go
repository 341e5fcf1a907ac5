package storage

import (
	"context"

	"cscplan/internal/model"
)

// Store persists sampling runs and their populations.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns the newest runs first. A limit <= 0 returns all runs.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	SavePopulation(ctx context.Context, population model.PopulationRecord) error
	GetPopulation(ctx context.Context, runID string) (model.PopulationRecord, bool, error)
	// DeleteRun removes a run and its population. Unknown ids are not an error.
	DeleteRun(ctx context.Context, id string) error
}
