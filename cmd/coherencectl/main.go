package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"coherence/internal/report"
	"coherence/internal/stats"
	"coherence/internal/storage"
	coherenceapi "coherence/pkg/coherence"
)

const (
	benchmarksDir     = "benchmarks"
	exportsDir        = "exports"
	defaultConfigPath = "coherence.yaml"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "sweep":
		return runSweep(ctx, args[1:])
	case "mismatch":
		return runMismatch(ctx, args[1:])
	case "trace":
		return runTrace(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "leaderboard":
		return runLeaderboard(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// clientFlags select the store and logging for every command.
type clientFlags struct {
	storeKind *string
	dbPath    *string
	logLevel  *string
}

func registerClientFlags(fs *flag.FlagSet) *clientFlags {
	return &clientFlags{
		storeKind: fs.String("store", storage.DefaultStoreKind(), "store backend: "+strings.Join(storage.Kinds(), "|")),
		dbPath:    fs.String("db-path", "coherence.db", "sqlite database path"),
		logLevel:  fs.String("log-level", "info", "log level: debug|info|warn|error"),
	}
}

func (f *clientFlags) open() (*coherenceapi.Client, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(*f.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", *f.logLevel)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return coherenceapi.New(coherenceapi.Options{
		StoreKind:     *f.storeKind,
		DBPath:        *f.dbPath,
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
		Logger:        logger,
	})
}

func reportOptions() report.Options {
	f, ok := stdout.(*os.File)
	return report.Options{Color: ok && report.ColorEnabled(f)}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	configPath := fs.String("config", defaultConfigPath, "experiment config file to create")
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	wrote := false
	if _, err := os.Stat(*configPath); errors.Is(err, os.ErrNotExist) || *force {
		if err := coherenceapi.WriteConfig(*configPath, coherenceapi.DefaultConfig()); err != nil {
			return err
		}
		wrote = true
	} else if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "initialized store=%s config=%s written=%t\n", *cf.storeKind, filepath.Clean(*configPath), wrote)
	return nil
}

func runSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	ef := registerExperimentFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := ef.load(fs)
	if err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	return sweepAndPrint(ctx, client, cfg)
}

func sweepAndPrint(ctx context.Context, client *coherenceapi.Client, cfg coherenceapi.ExperimentConfig) error {
	summary, err := client.Sweep(ctx, coherenceapi.SweepRequest{Config: cfg})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "sweep completed run_id=%s\n", summary.RunID)
	if err := report.Leaderboard(stdout, summary.Leaderboard, reportOptions()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "artifacts_dir=%s\n", summary.ArtifactsDir)
	return report.Elapsed(stdout, "sweep", len(summary.Leaderboard.Rows), summary.Elapsed)
}

func runMismatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mismatch", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	ef := registerExperimentFlags(fs)
	maxChern := fs.Int("max-chern", 0, "largest Chern number on each axis (0 uses the config)")
	trials := fs.Int("trials", 0, "seeds per pair (0 uses the config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := ef.load(fs)
	if err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	return mismatchAndPrint(ctx, client, coherenceapi.MismatchRequest{Config: cfg, MaxChern: *maxChern, Trials: *trials})
}

func mismatchAndPrint(ctx context.Context, client *coherenceapi.Client, req coherenceapi.MismatchRequest) error {
	summary, err := client.Mismatch(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "mismatch completed run_id=%s\n", summary.RunID)
	if err := report.Mismatch(stdout, summary.Matrix, reportOptions()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "artifacts_dir=%s\n", summary.ArtifactsDir)
	return report.Elapsed(stdout, "mismatch", len(summary.Matrix.Cells)*summary.Matrix.Trials, summary.Elapsed)
}

// runRun is the full experiment: the leaderboard sweep followed by the
// mismatch matrix on the same configuration.
func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	ef := registerExperimentFlags(fs)
	maxChern := fs.Int("max-chern", 0, "largest Chern number on each axis (0 uses the config)")
	trials := fs.Int("trials", 0, "seeds per pair (0 uses the config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := ef.load(fs)
	if err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := sweepAndPrint(ctx, client, cfg); err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	return mismatchAndPrint(ctx, client, coherenceapi.MismatchRequest{Config: cfg, MaxChern: *maxChern, Trials: *trials})
}

func runTrace(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	ef := registerExperimentFlags(fs)
	scheme := fs.String("scheme", "", "modulation scheme (default: first configured)")
	pairRaw := fs.String("pair", "", "topology pair tx:rx (default: first configured)")
	stride := fs.Int("stride", 1, "keep every n-th sample in traces.csv")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := ef.load(fs)
	if err != nil {
		return err
	}
	req := coherenceapi.TraceRequest{Config: cfg, Scheme: *scheme, Stride: *stride}
	if *pairRaw != "" {
		pair, err := parsePair(*pairRaw)
		if err != nil {
			return err
		}
		req.Pair = &pair
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Trace(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "trace completed run_id=%s scheme=%s pair=%s seed=%d samples=%d\n",
		summary.RunID, summary.Scheme, summary.Pair, summary.Seed, summary.Samples)
	for _, fn := range summary.Functionals {
		if fn.Error != "" {
			fmt.Fprintf(stdout, "functional=%s status=failed error=%q\n", fn.Name, fn.Error)
			continue
		}
		fmt.Fprintf(stdout, "functional=%s ber=%.4f threshold=%.6g correlation=%.4f degenerate=%t\n",
			fn.Name, fn.Result.BitErrorRate, fn.Result.Threshold, fn.Result.Correlation, fn.Result.Degenerate)
	}
	fmt.Fprintf(stdout, "artifacts_dir=%s\n", summary.ArtifactsDir)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	limit := fs.Int("limit", 20, "max runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, coherenceapi.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	return report.Runs(stdout, runs, reportOptions())
}

func runLeaderboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the latest run of --kind")
	kind := fs.String("kind", stats.KindSweep, "result kind: sweep|mismatch")
	top := fs.Int("top", 0, "show only the best n rows (0 shows all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest")
	}
	if *runID == "" && !*latest {
		return errors.New("leaderboard requires --run-id or --latest")
	}
	if *kind != stats.KindSweep && *kind != stats.KindMismatch {
		return fmt.Errorf("unsupported kind: %s", *kind)
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	id := *runID
	if *latest {
		if id, err = client.LatestRunID(ctx, *kind); err != nil {
			return err
		}
	}
	if *kind == stats.KindMismatch {
		matrix, err := client.MismatchMatrix(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "run_id=%s\n", id)
		return report.Mismatch(stdout, matrix, reportOptions())
	}
	board, err := client.Leaderboard(ctx, id)
	if err != nil {
		return err
	}
	if *top > 0 && len(board.Rows) > *top {
		board.Rows = board.Rows[:*top]
	}
	fmt.Fprintf(stdout, "run_id=%s\n", id)
	return report.Leaderboard(stdout, board, reportOptions())
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cf := registerClientFlags(fs)
	runID := fs.String("run-id", "", "run id to export")
	latest := fs.Bool("latest", false, "export the latest run")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, coherenceapi.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s dir=%s\n", summary.RunID, summary.Directory)
	return nil
}

func usageError(msg string) error {
	commands := []string{"init", "run", "sweep", "mismatch", "trace", "runs", "leaderboard", "export"}
	return fmt.Errorf("%s\nusage: coherencectl <%s> [flags]", msg, strings.Join(commands, "|"))
}
