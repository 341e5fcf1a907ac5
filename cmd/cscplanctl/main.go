package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"cscplan/internal/instance"
	"cscplan/internal/logging"
	"cscplan/internal/metrics"
	"cscplan/internal/model"
	"cscplan/internal/settings"
	"cscplan/internal/stats"
	"cscplan/pkg/cscplan"
)

const (
	runsDir         = "runs"
	defaultInstance = "reference"
	defaultSamples  = 100
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}
	env, err := settings.Load()
	if err != nil {
		return err
	}

	switch args[0] {
	case "layout":
		return runLayout(ctx, args[1:], env)
	case "instance":
		return runInstance(ctx, args[1:])
	case "sample":
		return runSample(ctx, args[1:], env)
	case "source":
		return runSource(ctx, args[1:], env)
	case "evaluate":
		return runEvaluate(ctx, args[1:], env)
	case "runs":
		return runRuns(ctx, args[1:], env)
	case "population":
		return runPopulation(ctx, args[1:], env)
	case "export":
		return runExport(ctx, args[1:], env)
	case "delete":
		return runDelete(ctx, args[1:], env)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type clientFlags struct {
	storeKind   *string
	dbPath      *string
	workers     *int
	logLevel    *string
	exportsDir  *string
	metricsAddr *string
}

func addClientFlags(fs *flag.FlagSet, env settings.Settings) *clientFlags {
	return &clientFlags{
		storeKind:   fs.String("store", env.Store, "run store backend: memory|sqlite"),
		dbPath:      fs.String("db-path", env.DBPath, "sqlite database path"),
		workers:     fs.Int("workers", env.Workers, "worker count (0 uses a single worker)"),
		logLevel:    fs.String("log-level", env.LogLevel, "log level: debug|info|warn|error"),
		exportsDir:  fs.String("exports-dir", env.ExportsDir, "export output directory"),
		metricsAddr: fs.String("metrics-addr", env.MetricsAddr, "serve prometheus metrics on this address while the command runs"),
	}
}

// open builds a client with its logger and metrics. The returned func releases
// everything open acquired.
func (f *clientFlags) open() (*cscplan.Client, func(), error) {
	logger, err := logging.New(*f.logLevel, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	registry := prometheus.NewRegistry()
	collectors := metrics.New()
	if err := collectors.Register(registry); err != nil {
		return nil, nil, err
	}

	client, err := cscplan.New(cscplan.Options{
		StoreKind:  *f.storeKind,
		DBPath:     *f.dbPath,
		RunsDir:    runsDir,
		ExportsDir: *f.exportsDir,
		Workers:    *f.workers,
		Logger:     logger,
		Metrics:    collectors,
	})
	if err != nil {
		return nil, nil, err
	}

	stopMetrics := func() {}
	if *f.metricsAddr != "" {
		stopMetrics, err = serveMetrics(*f.metricsAddr, registry, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}
	return client, func() {
		stopMetrics()
		_ = client.Close()
		_ = logger.Sync()
	}, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", listener.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}

func setFlagNames(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func runLayout(_ context.Context, args []string, env settings.Settings) error {
	fs := flag.NewFlagSet("layout", flag.ContinueOnError)
	instanceRef := fs.String("instance", defaultInstance, "builtin instance name or instance file (.json|.yaml)")
	jsonOut := fs.Bool("json", false, "emit layout as JSON")
	cf := addClientFlags(fs, env)
	if err := fs.Parse(args); err != nil {
		return err
	}

	in, err := instance.Resolve(*instanceRef)
	if err != nil {
		return err
	}
	client, closeClient, err := cf.open()
	if err != nil {
		return err
	}
	defer closeClient()

	layout, err := client.Layout(in)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(os.Stdout, map[string]any{
			"instance":         layout.Instance,
			"n_var":            layout.NVar,
			"n_sourcing":       layout.NSourcing,
			"products":         layout.Products,
			"pruned":           layout.Pruned,
			"material_at_gene": layout.MaterialAtGene,
			"supplier_at_gene": layout.SupplierAtGene,
			"material_blocks":  layout.MaterialBlocks,
			"lower":            layout.Lower,
			"upper":            layout.Upper,
			"ceilings":         layout.Ceilings,
		})
	}

	fmt.Printf("instance=%s n_var=%d n_sourcing=%d products=%d pruned=%d\n",
		layout.Instance, layout.NVar, layout.NSourcing, layout.Products, layout.Pruned)
	for i := range layout.MaterialAtGene {
		fmt.Printf("gene=%d material=%d supplier=%d upper=%g\n",
			i, layout.MaterialAtGene[i], layout.SupplierAtGene[i], layout.Upper[i])
	}
	for p, ceiling := range layout.Ceilings {
		fmt.Printf("gene=%d product=%d ceiling=%g\n", layout.NSourcing+p, p, ceiling)
	}
	return nil
}

func runInstance(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("instance", flag.ContinueOnError)
	instanceRef := fs.String("instance", defaultInstance, "builtin instance name or instance file (.json|.yaml)")
	format := fs.String("format", instance.FormatJSON, "output format: json|yaml")
	list := fs.Bool("list", false, "list builtin instance names")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *list {
		for _, name := range instance.BuiltinNames() {
			fmt.Println(name)
		}
		return nil
	}

	in, err := instance.Resolve(*instanceRef)
	if err != nil {
		return err
	}
	data, err := instance.Encode(in, *format)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runSample(ctx context.Context, args []string, env settings.Settings) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	instanceRef := fs.String("instance", defaultInstance, "builtin instance name or instance file (.json|.yaml)")
	samples := fs.Int("samples", defaultSamples, "population size")
	seed := fs.Int64("seed", 1, "rng seed")
	minimizeBoth := fs.Bool("minimize-both", false, "report negated profit so both objectives are minimised")
	fractional := fs.Bool("fractional", false, "keep sampled quantities fractional")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	cf := addClientFlags(fs, env)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolveRunConfig(*configPath, setFlagNames(fs), map[string]any{
		"instance":      *instanceRef,
		"samples":       *samples,
		"seed":          *seed,
		"workers":       *cf.workers,
		"minimize-both": *minimizeBoth,
		"fractional":    *fractional,
	})
	if err != nil {
		return err
	}
	in, err := instance.Resolve(cfg.Instance)
	if err != nil {
		return err
	}

	client, closeClient, err := cf.open()
	if err != nil {
		return err
	}
	defer closeClient()

	summary, err := client.Sample(ctx, cscplan.SampleRequest{
		Instance:     in,
		Samples:      cfg.Samples,
		Seed:         cfg.Seed,
		Workers:      cfg.Workers,
		MinimizeBoth: cfg.MinimizeBoth,
		Fractional:   cfg.Fractional,
	})
	if err != nil {
		return err
	}
	return printSampleSummary(os.Stdout, "sampled", in.Name, summary, *jsonOut)
}

func runSource(ctx context.Context, args []string, env settings.Settings) error {
	fs := flag.NewFlagSet("source", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path")
	instanceRef := fs.String("instance", defaultInstance, "builtin instance name or instance file (.json|.yaml)")
	need := fs.String("need", "", "comma separated materials need, one value per material")
	plan := fs.String("plan", "", "comma separated production plan, converted to its materials need")
	samples := fs.Int("samples", defaultSamples, "population size")
	seed := fs.Int64("seed", 1, "rng seed")
	fractional := fs.Bool("fractional", false, "keep sampled quantities fractional")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	cf := addClientFlags(fs, env)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := resolveRunConfig(*configPath, setFlagNames(fs), map[string]any{
		"instance":   *instanceRef,
		"need":       *need,
		"plan":       *plan,
		"samples":    *samples,
		"seed":       *seed,
		"workers":    *cf.workers,
		"fractional": *fractional,
	})
	if err != nil {
		return err
	}
	if (cfg.Need == nil) == (cfg.Plan == nil) {
		return errors.New("source requires exactly one of --need or --plan")
	}
	in, err := instance.Resolve(cfg.Instance)
	if err != nil {
		return err
	}

	client, closeClient, err := cf.open()
	if err != nil {
		return err
	}
	defer closeClient()

	summary, err := client.Source(ctx, cscplan.SourceRequest{
		Instance:   in,
		Need:       cfg.Need,
		Plan:       cfg.Plan,
		Samples:    cfg.Samples,
		Seed:       cfg.Seed,
		Workers:    cfg.Workers,
		Fractional: cfg.Fractional,
	})
	if err != nil {
		return err
	}
	return printSampleSummary(os.Stdout, "sourced", in.Name, summary, *jsonOut)
}

// resolveRunConfig starts from the config file when one is given and applies
// the explicitly set flags on top. Without a config file every flag applies.
func resolveRunConfig(configPath string, set map[string]bool, flagValue map[string]any) (runConfig, error) {
	cfg, err := loadOrDefaultRunConfig(configPath)
	if err != nil {
		return runConfig{}, err
	}
	if configPath == "" {
		set = make(map[string]bool, len(flagValue))
		for name, v := range flagValue {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			set[name] = true
		}
	}
	if err := overrideFromFlags(&cfg, set, flagValue); err != nil {
		return runConfig{}, err
	}
	return cfg, nil
}

func printSampleSummary(w io.Writer, verb, instanceName string, summary cscplan.SampleSummary, jsonOut bool) error {
	rows, _ := summary.Population.Dims()
	if jsonOut {
		return writeJSON(w, map[string]any{
			"run_id":        summary.RunID,
			"instance":      instanceName,
			"n_var":         summary.NVar,
			"samples":       rows,
			"need":          summary.Need,
			"artifacts_dir": summary.ArtifactsDir,
			"objectives":    summary.Stats,
		})
	}

	fmt.Fprintf(w, "%s run_id=%s instance=%s n_var=%d samples=%d artifacts=%s\n",
		verb, summary.RunID, instanceName, summary.NVar, rows, summary.ArtifactsDir)
	if len(summary.Need) > 0 {
		fmt.Fprintf(w, "need=%s\n", formatFloats(summary.Need))
	}
	printObjectiveStats(w, summary.Stats)
	return nil
}

func printObjectiveStats(w io.Writer, objectives []model.ObjectiveStat) {
	for _, o := range objectives {
		fmt.Fprintf(w, "objective=%s sense=%s min=%.6f max=%.6f mean=%.6f best=%.6f\n",
			o.Name, o.Sense, o.Min, o.Max, o.Mean, o.Best)
	}
}

func runEvaluate(ctx context.Context, args []string, env settings.Settings) error {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	instanceRef := fs.String("instance", defaultInstance, "builtin instance name or instance file (.json|.yaml)")
	populationPath := fs.String("population", "", "population CSV; leading n_var columns are used as decision vectors")
	minimizeBoth := fs.Bool("minimize-both", false, "report negated profit so both objectives are minimised")
	statsOnly := fs.Bool("stats", false, "print objective statistics instead of the objective matrix")
	cf := addClientFlags(fs, env)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *populationPath == "" {
		return errors.New("evaluate requires --population")
	}

	in, err := instance.Resolve(*instanceRef)
	if err != nil {
		return err
	}
	file, err := os.Open(*populationPath)
	if err != nil {
		return err
	}
	defer file.Close()
	population, _, err := stats.ReadMatrixCSV(file)
	if err != nil {
		return fmt.Errorf("read population: %w", err)
	}

	client, closeClient, err := cf.open()
	if err != nil {
		return err
	}
	defer closeClient()

	layout, err := client.Layout(in)
	if err != nil {
		return err
	}
	rows, cols := population.Dims()
	if cols < layout.NVar {
		return fmt.Errorf("population has %d columns, instance %s needs %d", cols, layout.Instance, layout.NVar)
	}
	decisions := mat.DenseCopyOf(population.Slice(0, rows, 0, layout.NVar))

	summary, err := client.Evaluate(ctx, cscplan.EvaluateRequest{
		Instance:     in,
		Population:   decisions,
		Workers:      *cf.workers,
		MinimizeBoth: *minimizeBoth,
	})
	if err != nil {
		return err
	}
	if *statsOnly {
		printObjectiveStats(os.Stdout, summary.Stats)
		return nil
	}
	return stats.WriteMatrixCSV(os.Stdout, summary.ObjectiveNames, summary.Objectives)
}

func runRuns(ctx context.Context, args []string, env settings.Settings) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	cf := addClientFlags(fs, env)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, closeClient, err := cf.open()
	if err != nil {
		return err
	}
	defer closeClient()

	items, err := client.Runs(ctx, cscplan.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(os.Stdout, items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	for _, item := range items {
		fmt.Printf("run_id=%s created_at=%s kind=%s instance=%s samples=%d seed=%d objectives=%s best=%s\n",
			item.RunID,
			item.CreatedAtUTC,
			item.Kind,
			item.Instance,
			item.Samples,
			item.Seed,
			strings.Join(item.Objectives, ","),
			formatFloats(item.Best),
		)
	}
	return nil
}

func runPopulation(ctx context.Context, args []string, env settings.Settings) error {
	fs := flag.NewFlagSet("population", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run")
	outPath := fs.String("out", "", "write the population CSV to this file instead of stdout")
	cf := addClientFlags(fs, env)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("population requires --run-id or --latest")
	}

	client, closeClient, err := cf.open()
	if err != nil {
		return err
	}
	defer closeClient()

	summary, err := client.Population(ctx, cscplan.PopulationRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}

	var joined mat.Dense
	joined.Augment(summary.Decisions, summary.Objectives)
	header := append(append([]string(nil), summary.DecisionNames...), summary.ObjectiveNames...)

	if *outPath == "" {
		return stats.WriteMatrixCSV(os.Stdout, header, &joined)
	}
	file, err := os.Create(*outPath)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := stats.WriteMatrixCSV(file, header, &joined); err != nil {
		return err
	}
	rows, _ := joined.Dims()
	fmt.Printf("population run_id=%s rows=%d to=%s\n", summary.Run.ID, rows, *outPath)
	return nil
}

func runExport(ctx context.Context, args []string, env settings.Settings) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", "", "export output directory (defaults to --exports-dir)")
	cf := addClientFlags(fs, env)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, closeClient, err := cf.open()
	if err != nil {
		return err
	}
	defer closeClient()

	exported, err := client.Export(ctx, cscplan.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runDelete(ctx context.Context, args []string, env settings.Settings) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	cf := addClientFlags(fs, env)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("delete requires --run-id")
	}

	client, closeClient, err := cf.open()
	if err != nil {
		return err
	}
	defer closeClient()

	if err := client.Delete(ctx, *runID); err != nil {
		return err
	}
	fmt.Printf("deleted run_id=%s\n", *runID)
	return nil
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ",")
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: cscplanctl <layout|instance|sample|source|evaluate|runs|population|export|delete> [flags]", msg)
}
