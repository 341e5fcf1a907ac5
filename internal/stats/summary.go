package stats

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"cscplan/internal/model"
)

const (
	SenseMinimize = "minimize"
	SenseMaximize = "maximize"
)

// Summarize reports min, max, mean and best value per objective column. Best
// follows the column's sense.
func Summarize(objectives mat.Matrix, names, senses []string) ([]model.ObjectiveStat, error) {
	if objectives == nil {
		return nil, fmt.Errorf("objective matrix is required")
	}
	rows, cols := objectives.Dims()
	if len(names) != cols || len(senses) != cols {
		return nil, fmt.Errorf("objective metadata mismatch: cols=%d names=%d senses=%d", cols, len(names), len(senses))
	}
	if rows == 0 {
		return nil, fmt.Errorf("objective matrix is empty")
	}

	out := make([]model.ObjectiveStat, 0, cols)
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(column, j, objectives)
		entry := model.ObjectiveStat{
			Name:  names[j],
			Sense: senses[j],
			Min:   floats.Min(column),
			Max:   floats.Max(column),
			Mean:  stat.Mean(column, nil),
		}
		switch senses[j] {
		case SenseMaximize:
			entry.Best = entry.Max
		case SenseMinimize:
			entry.Best = entry.Min
		default:
			return nil, fmt.Errorf("unsupported objective sense: %s", senses[j])
		}
		out = append(out, entry)
	}
	return out, nil
}

// BestRow returns the index of the row with the best value in column col.
// Ties keep the earliest row.
func BestRow(objectives mat.Matrix, col int, sense string) (int, error) {
	rows, cols := objectives.Dims()
	if col < 0 || col >= cols || rows == 0 {
		return 0, fmt.Errorf("objective column %d out of range", col)
	}
	column := mat.Col(nil, col, objectives)
	switch sense {
	case SenseMaximize:
		return floats.MaxIdx(column), nil
	case SenseMinimize:
		return floats.MinIdx(column), nil
	default:
		return 0, fmt.Errorf("unsupported objective sense: %s", sense)
	}
}
