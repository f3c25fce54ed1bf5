package coherence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"coherence/internal/config"
	"coherence/internal/model"
	"coherence/internal/modulation"
	"coherence/internal/stats"
	"coherence/internal/storage"
	"coherence/internal/sweep"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "coherence.db"
	defaultWorkers       = 4
	defaultRunsLimit     = 20
)

type (
	ExperimentConfig = config.File
	Pair             = sweep.Pair
	Leaderboard      = model.Leaderboard
	MismatchMatrix   = model.MismatchMatrix
	RunRecord        = model.RunRecord
	DetectionResult  = model.DetectionResult
)

// DefaultConfig is a complete, runnable experiment description.
func DefaultConfig() ExperimentConfig { return config.Template() }

// LoadConfig reads a YAML, TOML or JSON experiment file.
func LoadConfig(path string) (ExperimentConfig, error) { return config.Load(path) }

// WriteConfig writes cfg in the format chosen by the path extension.
func WriteConfig(path string, cfg ExperimentConfig) error { return config.Write(path, cfg) }

type Options struct {
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string
	Logger        *slog.Logger
}

type Client struct {
	store       storage.Store
	initialized bool
	logger      *slog.Logger

	benchmarksDir string
	exportsDir    string
}

type SweepRequest struct {
	Config ExperimentConfig
	// Workers overrides Config.Workers when > 0.
	Workers int
}

type SweepSummary struct {
	RunID        string
	ArtifactsDir string
	Leaderboard  Leaderboard
	Elapsed      time.Duration
}

type MismatchRequest struct {
	Config ExperimentConfig
	// MaxChern and Trials override Config.Mismatch when > 0.
	MaxChern int
	Trials   int
	Workers  int
}

type MismatchSummary struct {
	RunID        string
	ArtifactsDir string
	Matrix       MismatchMatrix
	Elapsed      time.Duration
}

type TraceRequest struct {
	Config ExperimentConfig
	// Scheme defaults to the first configured scheme; Pair to the first resolved pair.
	Scheme string
	Pair   *Pair
	// Seed overrides Config.Numeric.Seed when non-nil.
	Seed *int64
	// Stride keeps every Stride-th sample in traces.csv.
	Stride int
}

type TraceFunctional struct {
	Name   string
	Result DetectionResult
	Error  string
}

type TraceSummary struct {
	RunID        string
	ArtifactsDir string
	Scheme       string
	Pair         Pair
	Seed         int64
	Samples      int
	Functionals  []TraceFunctional
}

type RunsRequest struct {
	Limit int
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
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		logger:        logger,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureInit(ctx)
}

// Sweep runs the full leaderboard experiment and persists it to the store and
// the benchmarks directory.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) (SweepSummary, error) {
	exp, err := c.experiment(req.Config, req.Workers)
	if err != nil {
		return SweepSummary{}, err
	}
	if err := c.ensureInit(ctx); err != nil {
		return SweepSummary{}, err
	}

	start := time.Now().UTC()
	runID := stats.NewRunID(stats.KindSweep, start)
	exp.Logger = c.logger.With("run_id", runID)
	board, err := sweep.Sweep(ctx, exp)
	if err != nil {
		return SweepSummary{}, err
	}
	board.VersionedRecord = storage.CurrentVersion()
	board.RunID = runID

	artifacts := stats.RunArtifacts{Config: runConfig(runID, stats.KindSweep, exp), Leaderboard: &board}
	runDir, err := c.persist(ctx, artifacts, start)
	if err != nil {
		return SweepSummary{}, err
	}
	if err := c.store.SaveLeaderboard(ctx, board); err != nil {
		return SweepSummary{}, err
	}

	return SweepSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		Leaderboard:  board,
		Elapsed:      time.Since(start),
	}, nil
}

// Mismatch runs the (C_tx, C_rx) accuracy matrix for the first configured
// scheme and functional.
func (c *Client) Mismatch(ctx context.Context, req MismatchRequest) (MismatchSummary, error) {
	if req.MaxChern <= 0 {
		req.MaxChern = req.Config.Mismatch.MaxChern
	}
	if req.Trials <= 0 {
		req.Trials = req.Config.Mismatch.Trials
	}
	if req.Trials <= 0 {
		req.Trials = 1
	}
	exp, err := c.experiment(req.Config, req.Workers)
	if err != nil {
		return MismatchSummary{}, err
	}
	if err := c.ensureInit(ctx); err != nil {
		return MismatchSummary{}, err
	}

	start := time.Now().UTC()
	runID := stats.NewRunID(stats.KindMismatch, start)
	exp.Logger = c.logger.With("run_id", runID)
	matrix, err := sweep.MismatchSweep(ctx, exp, req.MaxChern, req.Trials)
	if err != nil {
		return MismatchSummary{}, err
	}
	matrix.VersionedRecord = storage.CurrentVersion()
	matrix.RunID = runID

	cfg := runConfig(runID, stats.KindMismatch, exp)
	cfg.Schemes, cfg.Functionals = []string{matrix.Scheme}, []string{matrix.Functional}
	cfg.Pairs = nil
	cfg.MaxChern, cfg.Trials = req.MaxChern, req.Trials
	runDir, err := c.persist(ctx, stats.RunArtifacts{Config: cfg, Mismatch: &matrix}, start)
	if err != nil {
		return MismatchSummary{}, err
	}
	if err := c.store.SaveMismatch(ctx, matrix); err != nil {
		return MismatchSummary{}, err
	}

	return MismatchSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		Matrix:       matrix,
		Elapsed:      time.Since(start),
	}, nil
}

// Trace runs a single simulation and writes its field traces and per-bit
// functional values for plotting.
func (c *Client) Trace(ctx context.Context, req TraceRequest) (TraceSummary, error) {
	if req.Stride <= 0 {
		req.Stride = 1
	}
	exp, err := c.experiment(req.Config, 1)
	if err != nil {
		return TraceSummary{}, err
	}
	if err := exp.Validate(); err != nil {
		return TraceSummary{}, err
	}
	scheme := exp.Schemes[0]
	if req.Scheme != "" {
		if scheme, err = modulation.ParseScheme(req.Scheme); err != nil {
			return TraceSummary{}, err
		}
	}
	pair := exp.ResolvePairs()[0]
	if req.Pair != nil {
		pair = *req.Pair
	}
	seed := exp.Field.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}
	if err := c.ensureInit(ctx); err != nil {
		return TraceSummary{}, err
	}

	start := time.Now().UTC()
	runID := stats.NewRunID(stats.KindTrace, start)
	run, err := sweep.RunPair(ctx, exp, scheme, pair, seed)
	if err != nil {
		return TraceSummary{}, err
	}

	cfg := runConfig(runID, stats.KindTrace, exp)
	cfg.Schemes = []string{scheme.String()}
	cfg.Pairs = []string{pair.String()}
	cfg.Seed = seed
	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{Config: cfg})
	if err != nil {
		return TraceSummary{}, err
	}
	if err := stats.WriteTraceCSV(runDir, run.DriveSamples, run.Traces, req.Stride); err != nil {
		return TraceSummary{}, err
	}

	summary := TraceSummary{
		RunID:        runID,
		ArtifactsDir: filepath.Clean(runDir),
		Scheme:       scheme.String(),
		Pair:         pair,
		Seed:         seed,
		Samples:      run.ReceiverTrace().Len(),
	}
	var series []stats.FunctionalSeries
	for _, fr := range run.Functionals {
		item := TraceFunctional{Name: fr.Kind.String(), Result: fr.Result}
		if fr.Err != nil {
			item.Error = fr.Err.Error()
		} else {
			series = append(series, stats.FunctionalSeries{
				Name:      fr.Kind.String(),
				Values:    fr.Series,
				Decoded:   fr.Result.Decoded,
				Threshold: fr.Result.Threshold,
			})
		}
		summary.Functionals = append(summary.Functionals, item)
	}
	if err := stats.WriteFunctionalsCSV(runDir, exp.Bits, series); err != nil {
		return TraceSummary{}, err
	}

	entry := stats.Summarize(stats.RunArtifacts{Config: cfg}, start)
	entry.Rows = len(run.Functionals)
	for _, item := range summary.Functionals {
		if item.Error != "" {
			entry.FailedRows++
			continue
		}
		if ber := item.Result.BitErrorRate; entry.BestBER == nil || ber < *entry.BestBER {
			entry.BestBER = &ber
		}
	}
	if err := c.index(ctx, entry); err != nil {
		return TraceSummary{}, err
	}
	c.logger.Info("trace written", "run_id", runID, "scheme", summary.Scheme, "tx", pair.TxChern, "rx", pair.RxChern, "samples", summary.Samples)
	return summary, nil
}

// Runs lists runs newest first. A fresh memory store knows no runs, so the
// on-disk run index answers in that case.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunRecord, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}
	if err := c.ensureInit(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		return runs, nil
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}
	out := make([]RunRecord, 0, len(entries))
	for _, e := range entries {
		out = append(out, runRecord(e))
	}
	return out, nil
}

// Leaderboard returns a stored sweep leaderboard, falling back to the run's
// leaderboard.json.
func (c *Client) Leaderboard(ctx context.Context, runID string) (Leaderboard, error) {
	if runID == "" {
		return Leaderboard{}, errors.New("run id is required")
	}
	if err := c.ensureInit(ctx); err != nil {
		return Leaderboard{}, err
	}
	board, ok, err := c.store.GetLeaderboard(ctx, runID)
	if err != nil {
		return Leaderboard{}, err
	}
	if ok {
		return board, nil
	}
	if err := c.checkRunKind(runID, stats.KindSweep); err != nil {
		return Leaderboard{}, err
	}
	board, ok, err = stats.ReadLeaderboard(c.benchmarksDir, runID)
	if err != nil {
		return Leaderboard{}, err
	}
	if ok {
		return board, nil
	}
	rows, err := stats.ReadLeaderboardCSV(filepath.Join(c.benchmarksDir, runID, "leaderboard.csv"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Leaderboard{}, fmt.Errorf("leaderboard not found: %s", runID)
		}
		return Leaderboard{}, err
	}
	c.logger.Warn("leaderboard.json missing; rebuilt from leaderboard.csv", "run_id", runID, "rows", len(rows))
	return Leaderboard{VersionedRecord: storage.CurrentVersion(), RunID: runID, Rows: rows}, nil
}

// MismatchMatrix returns a stored mismatch matrix, falling back to the run's
// mismatch.json.
func (c *Client) MismatchMatrix(ctx context.Context, runID string) (MismatchMatrix, error) {
	if runID == "" {
		return MismatchMatrix{}, errors.New("run id is required")
	}
	if err := c.ensureInit(ctx); err != nil {
		return MismatchMatrix{}, err
	}
	matrix, ok, err := c.store.GetMismatch(ctx, runID)
	if err != nil {
		return MismatchMatrix{}, err
	}
	if ok {
		return matrix, nil
	}
	if err := c.checkRunKind(runID, stats.KindMismatch); err != nil {
		return MismatchMatrix{}, err
	}
	matrix, ok, err = stats.ReadMismatch(c.benchmarksDir, runID)
	if err != nil {
		return MismatchMatrix{}, err
	}
	if !ok {
		return MismatchMatrix{}, fmt.Errorf("mismatch matrix not found: %s", runID)
	}
	return matrix, nil
}

// checkRunKind rejects on-disk runs that are missing or of another kind.
func (c *Client) checkRunKind(runID, kind string) error {
	cfg, ok, err := stats.ReadRunConfig(c.benchmarksDir, runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run not found: %s", runID)
	}
	if cfg.Kind != kind {
		return fmt.Errorf("run %s is a %s run, not %s", runID, cfg.Kind, kind)
	}
	return nil
}

// LatestRunID returns the newest run of kind, or of any kind when kind is empty.
func (c *Client) LatestRunID(ctx context.Context, kind string) (string, error) {
	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if kind == "" || e.Kind == kind {
			return e.RunID, nil
		}
	}
	if kind == "" {
		return "", errors.New("no runs available")
	}
	return "", fmt.Errorf("no %s runs available", kind)
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		latest, err := c.LatestRunID(ctx, "")
		if err != nil {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = latest
	}

	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) ensureInit(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *Client) experiment(cfg ExperimentConfig, workers int) (sweep.Experiment, error) {
	exp, err := cfg.Experiment()
	if err != nil {
		return sweep.Experiment{}, err
	}
	if workers > 0 {
		exp.Workers = workers
	}
	if exp.Workers <= 0 {
		exp.Workers = defaultWorkers
	}
	exp.Logger = c.logger
	return exp, nil
}

func (c *Client) persist(ctx context.Context, artifacts stats.RunArtifacts, createdAt time.Time) (string, error) {
	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, artifacts)
	if err != nil {
		return "", err
	}
	if err := c.index(ctx, stats.Summarize(artifacts, createdAt)); err != nil {
		return "", err
	}
	return runDir, nil
}

func (c *Client) index(ctx context.Context, entry stats.RunIndexEntry) error {
	if err := stats.AppendRunIndex(c.benchmarksDir, entry); err != nil {
		return err
	}
	return c.store.SaveRun(ctx, runRecord(entry))
}

func runRecord(e stats.RunIndexEntry) RunRecord {
	return RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              e.RunID,
		Kind:            e.Kind,
		CreatedAtUTC:    e.CreatedAtUTC,
		Seed:            e.Seed,
		Rows:            e.Rows,
		FailedRows:      e.FailedRows,
		BestBER:         e.BestBER,
	}
}

func runConfig(runID, kind string, exp sweep.Experiment) stats.RunConfig {
	steps := exp.Field.Steps
	if steps == 0 {
		steps = modulation.SamplesPerBit(exp.Drive.BitDuration, exp.Field.Dt) * len(exp.Bits)
	}
	shift := exp.Drive.Shift
	if shift == ([2]float64{}) {
		shift = modulation.DefaultShift(exp.Drive.Carrier)
	}
	schemes := make([]string, len(exp.Schemes))
	for i, s := range exp.Schemes {
		schemes[i] = s.String()
	}
	functionals := make([]string, len(exp.Functionals))
	for i, k := range exp.Functionals {
		functionals[i] = k.String()
	}
	pairs := exp.ResolvePairs()
	pairNames := make([]string, len(pairs))
	for i, p := range pairs {
		pairNames[i] = p.String()
	}
	return stats.RunConfig{
		RunID:               runID,
		Kind:                kind,
		Bits:                append([]int(nil), exp.Bits...),
		Schemes:             schemes,
		Functionals:         functionals,
		Pairs:               pairNames,
		Dt:                  exp.Field.Dt,
		Steps:               steps,
		Gamma:               exp.Field.Gamma,
		Mass:                exp.Field.Mass,
		GUnit:               exp.Topology.GUnit,
		Sigma:               exp.Topology.Sigma,
		LeakageFloor:        exp.Topology.LeakageFloor,
		NoiseStd:            exp.Field.NoiseStd,
		Seed:                exp.Field.Seed,
		Carrier:             exp.Drive.Carrier,
		ShiftFrequencies:    shift,
		BitDuration:         exp.Drive.BitDuration,
		DriveAmplitude:      exp.Drive.Amplitude,
		Alpha:               exp.FunctionalParams.Alpha,
		Beta:                exp.FunctionalParams.Beta,
		EntropyK:            exp.FunctionalParams.EntropyK,
		EntropyBinWidth:     exp.FunctionalParams.EntropyBinWidth,
		SeparationTolerance: exp.Detection.SeparationTolerance,
		Significance:        exp.Detection.Significance,
		MaxLag:              exp.Detection.MaxLag,
		Workers:             exp.Workers,
	}
}
