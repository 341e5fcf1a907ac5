package cscplan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"cscplan/internal/genome"
	"cscplan/internal/market"
	"cscplan/internal/metrics"
	"cscplan/internal/model"
	"cscplan/internal/problem"
	"cscplan/internal/stats"
	"cscplan/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "cscplan.db"
	defaultSamples    = 100
	defaultRunsLimit  = 20
)

type Options struct {
	StoreKind  string
	DBPath     string
	RunsDir    string
	ExportsDir string
	// Workers is the default parallelism for requests that leave it unset.
	Workers int
	Logger  *zap.Logger
	Metrics *metrics.Collectors
}

type Client struct {
	store   storage.Store
	logger  *zap.Logger
	metrics *metrics.Collectors

	runsDir    string
	exportsDir string
	workers    int

	mu          sync.Mutex
	initialized bool

	now   func() time.Time
	newID func() string
}

type LayoutSummary struct {
	Instance       string
	NVar           int
	NSourcing      int
	Products       int
	Pruned         int
	MaterialAtGene []int
	SupplierAtGene []int
	MaterialBlocks [][]int
	Lower          []float64
	Upper          []float64
	Ceilings       []float64
}

type SampleRequest struct {
	Instance     market.Instance
	Samples      int
	Seed         int64
	Workers      int
	MinimizeBoth bool
	Fractional   bool
}

// SourceRequest samples the sourcing sub-problem for a fixed materials need.
// Exactly one of Need and Plan is set; a Plan is converted to its need.
type SourceRequest struct {
	Instance   market.Instance
	Need       []float64
	Plan       []float64
	Samples    int
	Seed       int64
	Workers    int
	Fractional bool
}

type SampleSummary struct {
	RunID          string
	ArtifactsDir   string
	NVar           int
	Need           []float64
	Senses         []problem.Sense
	DecisionNames  []string
	ObjectiveNames []string
	Population     *mat.Dense
	Objectives     *mat.Dense
	Stats          []model.ObjectiveStat
}

type EvaluateRequest struct {
	Instance     market.Instance
	Population   mat.Matrix
	Workers      int
	MinimizeBoth bool
}

type EvaluateSummary struct {
	ObjectiveNames []string
	Senses         []problem.Sense
	Objectives     *mat.Dense
	Stats          []model.ObjectiveStat
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string    `json:"run_id"`
	Kind         string    `json:"kind"`
	Instance     string    `json:"instance"`
	CreatedAtUTC string    `json:"created_at_utc"`
	Samples      int       `json:"samples"`
	Seed         int64     `json:"seed"`
	NVar         int       `json:"n_var,omitempty"`
	Objectives   []string  `json:"objectives"`
	Best         []float64 `json:"best"`
}

type PopulationRequest struct {
	RunID  string
	Latest bool
}

type PopulationSummary struct {
	Run            model.RunRecord
	DecisionNames  []string
	ObjectiveNames []string
	Decisions      *mat.Dense
	Objectives     *mat.Dense
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.KindMemory
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("workers must be >= 0, got %d", opts.Workers)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		logger:     logger,
		metrics:    opts.Metrics,
		runsDir:    runsDir,
		exportsDir: exportsDir,
		workers:    opts.Workers,
		now:        time.Now,
		newID:      uuid.NewString,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

// Layout describes the decision vector of an instance without sampling.
func (c *Client) Layout(in market.Instance) (LayoutSummary, error) {
	m, err := market.New(in)
	if err != nil {
		return LayoutSummary{}, err
	}
	layout, err := genome.NewLayout(m)
	if err != nil {
		return LayoutSummary{}, err
	}
	return LayoutSummary{
		Instance:       m.Name(),
		NVar:           layout.NVar(),
		NSourcing:      layout.NSourcing(),
		Products:       layout.NProducts(),
		Pruned:         m.Materials()*m.Suppliers() - layout.NSourcing(),
		MaterialAtGene: layout.MaterialAtGene(),
		SupplierAtGene: layout.SupplierAtGene(),
		MaterialBlocks: layout.MaterialBlocks(),
		Lower:          layout.Lower(),
		Upper:          layout.Upper(),
		Ceilings:       layout.Ceilings(),
	}, nil
}

// Sample draws a feasible population of the full problem, scores it and
// stores the run.
func (c *Client) Sample(ctx context.Context, req SampleRequest) (SampleSummary, error) {
	if req.Samples == 0 {
		req.Samples = defaultSamples
	}
	if req.Samples < 0 {
		return SampleSummary{}, fmt.Errorf("samples must be > 0, got %d", req.Samples)
	}
	workers := c.resolveWorkers(req.Workers)

	m, err := market.New(req.Instance)
	if err != nil {
		return SampleSummary{}, err
	}
	p, err := problem.New(m, problem.Options{
		MinimizeBoth: req.MinimizeBoth,
		Fractional:   req.Fractional,
		Workers:      workers,
		Logger:       c.logger,
	})
	if err != nil {
		return SampleSummary{}, err
	}

	layout := p.Layout()
	run := model.RunRecord{
		Kind:         model.RunKindSample,
		Samples:      req.Samples,
		Seed:         req.Seed,
		Workers:      workers,
		MinimizeBoth: req.MinimizeBoth,
		Fractional:   req.Fractional,
	}
	names := []string{"profit", "virgin_ratio"}
	if req.MinimizeBoth {
		names[0] = "neg_profit"
	}
	return c.sampleAndStore(ctx, p, "csc", m, layout, run, names, stats.DecisionNames(layout.MaterialAtGene(), layout.SupplierAtGene(), layout.NProducts()))
}

// Source samples the lower-level sourcing problem for a fixed materials need.
func (c *Client) Source(ctx context.Context, req SourceRequest) (SampleSummary, error) {
	if req.Samples == 0 {
		req.Samples = defaultSamples
	}
	if req.Samples < 0 {
		return SampleSummary{}, fmt.Errorf("samples must be > 0, got %d", req.Samples)
	}
	if (req.Need == nil) == (req.Plan == nil) {
		return SampleSummary{}, errors.New("source requires exactly one of need or plan")
	}
	workers := c.resolveWorkers(req.Workers)

	m, err := market.New(req.Instance)
	if err != nil {
		return SampleSummary{}, err
	}
	opts := problem.Options{Fractional: req.Fractional, Workers: workers, Logger: c.logger}

	var sub *problem.Sourcing
	if req.Plan != nil {
		full, err := problem.New(m, opts)
		if err != nil {
			return SampleSummary{}, err
		}
		sub, err = full.ForPlan(req.Plan)
		if err != nil {
			return SampleSummary{}, err
		}
	} else {
		sub, err = problem.NewSourcing(m, req.Need, opts)
		if err != nil {
			return SampleSummary{}, err
		}
	}

	layout := sub.Layout()
	run := model.RunRecord{
		Kind:       model.RunKindSourcing,
		Samples:    req.Samples,
		Seed:       req.Seed,
		Workers:    workers,
		Fractional: req.Fractional,
		Need:       sub.Need(),
	}
	names := []string{"cost", "virgin_ratio"}
	return c.sampleAndStore(ctx, sub, "sourcing", m, layout, run, names, stats.DecisionNames(layout.MaterialAtGene(), layout.SupplierAtGene(), 0))
}

func (c *Client) sampleAndStore(
	ctx context.Context,
	p problem.Problem,
	label string,
	m *market.Market,
	layout *genome.Layout,
	run model.RunRecord,
	objectiveNames, decisionNames []string,
) (SampleSummary, error) {
	if err := c.ensureStore(ctx); err != nil {
		return SampleSummary{}, err
	}

	pop, err := p.Sample(ctx, run.Samples, run.Seed)
	if err != nil {
		c.metrics.SampleFailed(label)
		return SampleSummary{}, fmt.Errorf("sample %s: %w", label, err)
	}
	c.metrics.Sampled(label, run.Samples)

	started := time.Now()
	objectives, err := p.Evaluate(pop)
	if err != nil {
		return SampleSummary{}, fmt.Errorf("evaluate %s: %w", label, err)
	}
	c.metrics.Evaluated(label, run.Samples, time.Since(started))

	senses := p.Senses()
	summary, err := stats.Summarize(objectives, objectiveNames, senseNames(senses))
	if err != nil {
		return SampleSummary{}, err
	}

	run.VersionedRecord = storage.Versioned()
	run.ID = c.newID()
	run.CreatedAt = c.now().UTC()
	run.Instance = m.Instance()
	run.NVar = p.NVar()
	run.Senses = senseNames(senses)
	run.Objectives = summary

	population := populationRecord(run.ID, layout, pop, objectives)
	if err := c.store.SaveRun(ctx, run); err != nil {
		return SampleSummary{}, err
	}
	if err := c.store.SavePopulation(ctx, population); err != nil {
		return SampleSummary{}, err
	}
	c.metrics.RunStored()

	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Run:            run,
		Population:     population,
		DecisionNames:  decisionNames,
		ObjectiveNames: objectiveNames,
	})
	if err != nil {
		return SampleSummary{}, err
	}
	if err := stats.AppendRunIndex(c.runsDir, stats.IndexEntry(run)); err != nil {
		return SampleSummary{}, err
	}

	c.logger.Info("run stored",
		zap.String("run_id", run.ID),
		zap.String("kind", run.Kind),
		zap.String("instance", run.Instance.Name),
		zap.Int("samples", run.Samples),
		zap.Int64("seed", run.Seed),
		zap.Float64s("best", bestValues(summary)),
	)

	return SampleSummary{
		RunID:          run.ID,
		ArtifactsDir:   runDir,
		NVar:           run.NVar,
		Need:           append([]float64(nil), run.Need...),
		Senses:         senses,
		DecisionNames:  decisionNames,
		ObjectiveNames: objectiveNames,
		Population:     pop,
		Objectives:     objectives,
		Stats:          summary,
	}, nil
}

// Evaluate scores caller-supplied decision vectors without storing anything.
func (c *Client) Evaluate(_ context.Context, req EvaluateRequest) (EvaluateSummary, error) {
	if req.Population == nil {
		return EvaluateSummary{}, errors.New("population is required")
	}
	m, err := market.New(req.Instance)
	if err != nil {
		return EvaluateSummary{}, err
	}
	p, err := problem.New(m, problem.Options{
		MinimizeBoth: req.MinimizeBoth,
		Workers:      c.resolveWorkers(req.Workers),
		Logger:       c.logger,
	})
	if err != nil {
		return EvaluateSummary{}, err
	}

	rows, _ := req.Population.Dims()
	started := time.Now()
	objectives, err := p.Evaluate(req.Population)
	if err != nil {
		return EvaluateSummary{}, err
	}
	c.metrics.Evaluated("csc", rows, time.Since(started))

	names := []string{"profit", "virgin_ratio"}
	if req.MinimizeBoth {
		names[0] = "neg_profit"
	}
	senses := p.Senses()
	summary, err := stats.Summarize(objectives, names, senseNames(senses))
	if err != nil {
		return EvaluateSummary{}, err
	}
	return EvaluateSummary{
		ObjectiveNames: names,
		Senses:         senses,
		Objectives:     objectives,
		Stats:          summary,
	}, nil
}

// Runs lists stored runs newest first. A store that holds no runs, such as a
// fresh memory store, falls back to the on-disk run index.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, err
	}

	out := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		out = append(out, runItem(stats.IndexEntry(run), run.NVar))
	}
	if len(out) > 0 {
		return out, nil
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	for _, entry := range entries {
		out = append(out, runItem(entry, 0))
	}
	return out, nil
}

// Population loads a stored run with its decision and objective matrices.
// Runs missing from the store are read back from their artifacts directory.
func (c *Client) Population(ctx context.Context, req PopulationRequest) (PopulationSummary, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return PopulationSummary{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return PopulationSummary{}, err
	}
	if !ok {
		return c.populationFromArtifacts(runID)
	}
	population, ok, err := c.store.GetPopulation(ctx, runID)
	if err != nil {
		return PopulationSummary{}, err
	}
	if !ok {
		return PopulationSummary{}, fmt.Errorf("population not found for run: %s", runID)
	}
	if population.Rows == 0 {
		return PopulationSummary{}, fmt.Errorf("population for run %s is empty", runID)
	}

	products := population.DecisionCols - len(population.MaterialAtGene)
	return PopulationSummary{
		Run:            run,
		DecisionNames:  stats.DecisionNames(population.MaterialAtGene, population.SupplierAtGene, products),
		ObjectiveNames: objectiveNames(run),
		Decisions:      mat.NewDense(population.Rows, population.DecisionCols, population.Decisions),
		Objectives:     mat.NewDense(population.Rows, population.ObjectiveCols, population.Objectives),
	}, nil
}

func (c *Client) populationFromArtifacts(runID string) (PopulationSummary, error) {
	run, ok, err := stats.ReadRun(c.runsDir, runID)
	if err != nil {
		return PopulationSummary{}, err
	}
	if !ok {
		return PopulationSummary{}, fmt.Errorf("run not found: %s", runID)
	}
	joined, header, ok, err := stats.ReadPopulation(c.runsDir, runID)
	if err != nil {
		return PopulationSummary{}, err
	}
	if !ok {
		return PopulationSummary{}, fmt.Errorf("population not found for run: %s", runID)
	}

	rows, cols := joined.Dims()
	if run.NVar <= 0 || run.NVar >= cols {
		return PopulationSummary{}, fmt.Errorf("population for run %s has %d columns, run declares n_var=%d", runID, cols, run.NVar)
	}
	if len(header) != cols {
		return PopulationSummary{}, fmt.Errorf("population for run %s has no header", runID)
	}
	decisions := mat.DenseCopyOf(joined.Slice(0, rows, 0, run.NVar))
	objectives := mat.DenseCopyOf(joined.Slice(0, rows, run.NVar, cols))
	return PopulationSummary{
		Run:            run,
		DecisionNames:  header[:run.NVar],
		ObjectiveNames: header[run.NVar:],
		Decisions:      decisions,
		Objectives:     objectives,
	}, nil
}

// Delete removes a run from the store and the run index. Artifact files are
// left in place.
func (c *Client) Delete(ctx context.Context, runID string) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	if err := c.store.DeleteRun(ctx, runID); err != nil {
		return err
	}
	if err := stats.RemoveRunIndex(c.runsDir, runID); err != nil {
		return err
	}
	c.logger.Info("run deleted", zap.String("run_id", runID))
	return nil
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID == "" && !latest {
		return "", errors.New("run id or latest is required")
	}
	if err := c.ensureStore(ctx); err != nil {
		return "", err
	}
	if runID != "" {
		return runID, nil
	}
	runs, err := c.store.ListRuns(ctx, 1)
	if err != nil {
		return "", err
	}
	if len(runs) > 0 {
		return runs[0].ID, nil
	}
	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *Client) resolveWorkers(requested int) int {
	if requested > 0 {
		return requested
	}
	if c.workers > 0 {
		return c.workers
	}
	return 1
}

func populationRecord(runID string, layout *genome.Layout, pop, objectives *mat.Dense) model.PopulationRecord {
	rows, decisionCols := pop.Dims()
	_, objectiveCols := objectives.Dims()
	return model.PopulationRecord{
		VersionedRecord: storage.Versioned(),
		RunID:           runID,
		Rows:            rows,
		DecisionCols:    decisionCols,
		ObjectiveCols:   objectiveCols,
		MaterialAtGene:  layout.MaterialAtGene(),
		SupplierAtGene:  layout.SupplierAtGene(),
		Decisions:       denseData(pop),
		Objectives:      denseData(objectives),
	}
}

// denseData copies a matrix into a packed row-major slice.
func denseData(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

func senseNames(senses []problem.Sense) []string {
	out := make([]string, len(senses))
	for i, sense := range senses {
		out[i] = sense.String()
	}
	return out
}

func runItem(entry stats.RunIndexEntry, nVar int) RunItem {
	return RunItem{
		RunID:        entry.RunID,
		Kind:         entry.Kind,
		Instance:     entry.Instance,
		CreatedAtUTC: entry.CreatedAtUTC,
		Samples:      entry.Samples,
		Seed:         entry.Seed,
		NVar:         nVar,
		Objectives:   entry.Objectives,
		Best:         entry.Best,
	}
}

func objectiveNames(run model.RunRecord) []string {
	names := make([]string, 0, len(run.Objectives))
	for _, objective := range run.Objectives {
		names = append(names, objective.Name)
	}
	return names
}

func bestValues(summary []model.ObjectiveStat) []float64 {
	out := make([]float64, len(summary))
	for i, s := range summary {
		out[i] = s.Best
	}
	return out
}
