package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"cscplan/internal/model"
)

const (
	runIndexFile   = "run_index.json"
	runFile        = "run.json"
	populationFile = "population.csv"
	objectivesFile = "objectives.json"

	// indexTimeLayout keeps a fixed width so index timestamps sort as strings.
	indexTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// RunArtifacts is everything written to a run directory.
type RunArtifacts struct {
	Run            model.RunRecord
	Population     model.PopulationRecord
	DecisionNames  []string
	ObjectiveNames []string
}

type RunIndexEntry struct {
	RunID        string    `json:"run_id"`
	Kind         string    `json:"kind"`
	Instance     string    `json:"instance"`
	Samples      int       `json:"samples"`
	Seed         int64     `json:"seed"`
	Workers      int       `json:"workers"`
	Objectives   []string  `json:"objectives"`
	Best         []float64 `json:"best"`
	CreatedAtUTC string    `json:"created_at_utc"`
}

// DecisionNames labels decision columns: one per sourcing slot, then one per
// product.
func DecisionNames(materialAtGene, supplierAtGene []int, products int) []string {
	names := make([]string, 0, len(materialAtGene)+products)
	for i := range materialAtGene {
		names = append(names, fmt.Sprintf("buy_m%d_s%d", materialAtGene[i], supplierAtGene[i]))
	}
	for p := 0; p < products; p++ {
		names = append(names, fmt.Sprintf("make_p%d", p))
	}
	return names
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.ID == "" {
		return "", fmt.Errorf("run id is required")
	}
	population := artifacts.Population
	if len(artifacts.DecisionNames) != population.DecisionCols {
		return "", fmt.Errorf("decision names mismatch: got=%d want=%d", len(artifacts.DecisionNames), population.DecisionCols)
	}
	if len(artifacts.ObjectiveNames) != population.ObjectiveCols {
		return "", fmt.Errorf("objective names mismatch: got=%d want=%d", len(artifacts.ObjectiveNames), population.ObjectiveCols)
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, runFile), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, objectivesFile), artifacts.Run.Objectives); err != nil {
		return "", err
	}

	file, err := os.Create(filepath.Join(runDir, populationFile))
	if err != nil {
		return "", err
	}
	defer file.Close()

	header := append(append([]string(nil), artifacts.DecisionNames...), artifacts.ObjectiveNames...)
	var rows mat.Matrix
	if population.Rows > 0 {
		if population.DecisionCols == 0 || population.ObjectiveCols == 0 {
			return "", fmt.Errorf("population %s has rows but no columns", population.RunID)
		}
		var joined mat.Dense
		joined.Augment(
			mat.NewDense(population.Rows, population.DecisionCols, population.Decisions),
			mat.NewDense(population.Rows, population.ObjectiveCols, population.Objectives),
		)
		rows = &joined
	}
	if err := WriteMatrixCSV(file, header, rows); err != nil {
		return "", err
	}
	return runDir, file.Sync()
}

// WriteMatrixCSV writes an optional header row followed by one record per row.
func WriteMatrixCSV(w io.Writer, header []string, m mat.Matrix) error {
	writer := csv.NewWriter(w)
	if len(header) > 0 {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	if m != nil {
		rows, cols := m.Dims()
		record := make([]string, cols)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				record[j] = strconv.FormatFloat(m.At(i, j), 'f', -1, 64)
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadMatrixCSV reads numeric records. A first record that does not parse as
// numbers is returned as the header.
func ReadMatrixCSV(r io.Reader) (*mat.Dense, []string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv has no records")
	}

	var header []string
	if _, err := parseRecord(records[0]); err != nil {
		header = records[0]
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, header, fmt.Errorf("csv has no data rows")
	}

	cols := len(records[0])
	data := make([]float64, 0, len(records)*cols)
	for i, record := range records {
		values, err := parseRecord(record)
		if err != nil {
			return nil, header, fmt.Errorf("csv row %d: %w", i+1, err)
		}
		data = append(data, values...)
	}
	return mat.NewDense(len(records), cols, data), header, nil
}

func parseRecord(record []string) ([]float64, error) {
	values := make([]float64, len(record))
	for j, field := range record {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, err
		}
		values[j] = v
	}
	return values, nil
}

func ReadRun(baseDir, runID string) (model.RunRecord, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, runFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, false, err
	}
	return run, true, nil
}

// IndexEntry condenses a run record for the run index.
func IndexEntry(run model.RunRecord) RunIndexEntry {
	entry := RunIndexEntry{
		RunID:        run.ID,
		Kind:         run.Kind,
		Instance:     run.Instance.Name,
		Samples:      run.Samples,
		Seed:         run.Seed,
		Workers:      run.Workers,
		CreatedAtUTC: run.CreatedAt.UTC().Format(indexTimeLayout),
	}
	for _, objective := range run.Objectives {
		entry.Objectives = append(entry.Objectives, objective.Name)
		entry.Best = append(entry.Best, objective.Best)
	}
	return entry
}

// ReadPopulation loads a run's population.csv as written by WriteRunArtifacts.
func ReadPopulation(baseDir, runID string) (*mat.Dense, []string, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, populationFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}
	defer file.Close()

	m, header, err := ReadMatrixCSV(file)
	if err != nil {
		return nil, nil, false, fmt.Errorf("read population %s: %w", runID, err)
	}
	return m, header, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// RemoveRunIndex drops runID from the index. A missing entry is not an error.
func RemoveRunIndex(baseDir, runID string) error {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, entry := range entries {
		if entry.RunID != runID {
			kept = append(kept, entry)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return writeJSON(filepath.Join(baseDir, runIndexFile), kept)
}

// ListRunIndex returns index entries newest first; entries with equal
// timestamps keep the later-appended one first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := entries[order[a]], entries[order[b]]
		if ea.CreatedAtUTC == eb.CreatedAtUTC {
			return order[a] > order[b]
		}
		return ea.CreatedAtUTC > eb.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(entries))
	for _, idx := range order {
		sorted = append(sorted, entries[idx])
	}
	return sorted, nil
}

// readRunIndex returns the index in append order.
func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}
	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ExportRunArtifacts copies a run directory's files into outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{runFile, objectivesFile, populationFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
