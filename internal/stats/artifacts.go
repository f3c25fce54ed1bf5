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
	"strings"
	"time"

	"github.com/google/uuid"

	"coherence/internal/model"
)

const runIndexFile = "run_index.json"

const (
	KindSweep    = "sweep"
	KindMismatch = "mismatch"
	KindTrace    = "trace"
)

// RunConfig is the flattened experiment snapshot written as config.json.
type RunConfig struct {
	RunID               string     `json:"run_id"`
	Kind                string     `json:"kind"`
	Bits                []int      `json:"bits"`
	Schemes             []string   `json:"schemes"`
	Functionals         []string   `json:"functionals"`
	Pairs               []string   `json:"pairs,omitempty"`
	Dt                  float64    `json:"dt"`
	Steps               int        `json:"steps"`
	Gamma               float64    `json:"gamma"`
	Mass                float64    `json:"mass"`
	GUnit               float64    `json:"g_unit"`
	Sigma               float64    `json:"sigma"`
	LeakageFloor        float64    `json:"leakage_floor,omitempty"`
	NoiseStd            float64    `json:"noise_std"`
	Seed                int64      `json:"seed"`
	Carrier             float64    `json:"carrier"`
	ShiftFrequencies    [2]float64 `json:"shift_frequencies"`
	BitDuration         float64    `json:"bit_duration"`
	DriveAmplitude      float64    `json:"drive_amplitude"`
	Alpha               float64    `json:"alpha"`
	Beta                float64    `json:"beta"`
	EntropyK            float64    `json:"entropy_k"`
	EntropyBinWidth     float64    `json:"entropy_bin_width"`
	SeparationTolerance float64    `json:"separation_tolerance"`
	Significance        float64    `json:"significance"`
	MaxLag              int        `json:"max_lag"`
	Workers             int        `json:"workers"`
	MaxChern            int        `json:"max_chern,omitempty"`
	Trials              int        `json:"trials,omitempty"`
}

type RunArtifacts struct {
	Config      RunConfig             `json:"config"`
	Leaderboard *model.Leaderboard    `json:"leaderboard,omitempty"`
	Mismatch    *model.MismatchMatrix `json:"mismatch,omitempty"`
}

type RunIndexEntry struct {
	RunID        string   `json:"run_id"`
	Kind         string   `json:"kind"`
	Schemes      []string `json:"schemes"`
	Functionals  []string `json:"functionals"`
	Seed         int64    `json:"seed"`
	Workers      int      `json:"workers"`
	Rows         int      `json:"rows"`
	FailedRows   int      `json:"failed_rows"`
	BestBER      *float64 `json:"best_ber,omitempty"`
	CreatedAtUTC string   `json:"created_at_utc"`
}

// NewRunID builds "<kind>-<utc timestamp>-<short uuid>".
func NewRunID(kind string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", kind, now.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}

// Summarize derives the index entry of a run from its artifacts.
func Summarize(artifacts RunArtifacts, createdAt time.Time) RunIndexEntry {
	entry := RunIndexEntry{
		RunID:        artifacts.Config.RunID,
		Kind:         artifacts.Config.Kind,
		Schemes:      artifacts.Config.Schemes,
		Functionals:  artifacts.Config.Functionals,
		Seed:         artifacts.Config.Seed,
		Workers:      artifacts.Config.Workers,
		CreatedAtUTC: createdAt.UTC().Format(time.RFC3339),
	}
	if board := artifacts.Leaderboard; board != nil {
		entry.Rows = len(board.Rows)
		for _, row := range board.Rows {
			if row.BER == nil {
				entry.FailedRows++
				continue
			}
			if entry.BestBER == nil || *row.BER < *entry.BestBER {
				best := *row.BER
				entry.BestBER = &best
			}
		}
	}
	if matrix := artifacts.Mismatch; matrix != nil {
		entry.Rows = len(matrix.Cells)
		for _, cell := range matrix.Cells {
			if cell.FailedTrials > 0 {
				entry.FailedRows++
			}
		}
	}
	return entry
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := WriteRunConfig(baseDir, artifacts.Config.RunID, artifacts.Config); err != nil {
		return "", err
	}
	if board := artifacts.Leaderboard; board != nil {
		if err := writeJSON(filepath.Join(runDir, "leaderboard.json"), board); err != nil {
			return "", err
		}
		if err := WriteLeaderboardCSV(filepath.Join(runDir, "leaderboard.csv"), board.Rows); err != nil {
			return "", err
		}
	}
	if matrix := artifacts.Mismatch; matrix != nil {
		if err := writeJSON(filepath.Join(runDir, "mismatch.json"), matrix); err != nil {
			return "", err
		}
		if err := WriteMismatchCSV(filepath.Join(runDir, "mismatch.csv"), *matrix); err != nil {
			return "", err
		}
	}

	return runDir, nil
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

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

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

var optionalArtifacts = []string{
	"leaderboard.json",
	"leaderboard.csv",
	"mismatch.json",
	"mismatch.csv",
	"traces.csv",
	"functionals.csv",
}

// ExportRunArtifacts copies a run directory into outDir. config.json is
// required; every other artifact is copied when present.
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

	if err := copyFile(filepath.Join(src, "config.json"), filepath.Join(dst, "config.json")); err != nil {
		return "", err
	}
	for _, file := range optionalArtifacts {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func ReadLeaderboard(baseDir, runID string) (model.Leaderboard, bool, error) {
	path := filepath.Join(baseDir, runID, "leaderboard.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Leaderboard{}, false, nil
		}
		return model.Leaderboard{}, false, err
	}

	var board model.Leaderboard
	if err := json.Unmarshal(data, &board); err != nil {
		return model.Leaderboard{}, false, err
	}
	return board, true, nil
}

func ReadMismatch(baseDir, runID string) (model.MismatchMatrix, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, "mismatch.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return model.MismatchMatrix{}, false, nil
		}
		return model.MismatchMatrix{}, false, err
	}

	var matrix model.MismatchMatrix
	if err := json.Unmarshal(data, &matrix); err != nil {
		return model.MismatchMatrix{}, false, err
	}
	return matrix, true, nil
}

var leaderboardHeader = []string{
	"modulation", "functional", "tx_chern", "rx_chern", "seed", "status",
	"ber", "accuracy", "error_count", "n", "delta_mu", "threshold", "correlation", "degenerate", "error_kind",
}

// WriteLeaderboardCSV writes one line per row. Metric cells of failed rows stay empty.
func WriteLeaderboardCSV(path string, rows []model.LeaderboardRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(leaderboardHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.Scheme,
			row.Functional,
			strconv.Itoa(row.TxChern),
			strconv.Itoa(row.RxChern),
			strconv.FormatInt(row.Seed, 10),
			string(row.Status),
			formatOptional(row.BER),
			formatOptional(row.Accuracy),
			formatOptionalInt(row.Errors),
			strconv.Itoa(row.N),
			formatOptional(row.Separation),
			formatOptional(row.Threshold),
			formatOptional(row.Correlation),
			strconv.FormatBool(row.Degenerate),
			row.ErrorKind,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadLeaderboardCSV parses a file written by WriteLeaderboardCSV. Error
// messages are not part of the CSV and come back empty.
func ReadLeaderboardCSV(path string) ([]model.LeaderboardRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.LeaderboardRow{}, nil
		}
		return nil, err
	}
	if len(header) != len(leaderboardHeader) {
		return nil, fmt.Errorf("leaderboard header must have %d columns, got %d", len(leaderboardHeader), len(header))
	}

	rows := make([]model.LeaderboardRow, 0, 32)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row, err := parseLeaderboardRecord(record)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseLeaderboardRecord(record []string) (model.LeaderboardRow, error) {
	row := model.LeaderboardRow{
		Scheme:     record[0],
		Functional: record[1],
		Status:     model.RowStatus(record[5]),
		ErrorKind:  record[14],
	}
	var err error
	if row.TxChern, err = strconv.Atoi(record[2]); err != nil {
		return row, err
	}
	if row.RxChern, err = strconv.Atoi(record[3]); err != nil {
		return row, err
	}
	if row.Seed, err = strconv.ParseInt(record[4], 10, 64); err != nil {
		return row, err
	}
	if row.N, err = strconv.Atoi(record[9]); err != nil {
		return row, err
	}
	if row.Degenerate, err = strconv.ParseBool(record[13]); err != nil {
		return row, err
	}
	optional := []struct {
		col int
		dst **float64
	}{
		{6, &row.BER},
		{7, &row.Accuracy},
		{10, &row.Separation},
		{11, &row.Threshold},
		{12, &row.Correlation},
	}
	for _, o := range optional {
		if *o.dst, err = parseOptional(record[o.col]); err != nil {
			return row, err
		}
	}
	if record[8] != "" {
		n, err := strconv.Atoi(record[8])
		if err != nil {
			return row, err
		}
		row.Errors = &n
	}
	return row, nil
}

// WriteMismatchCSV writes the accuracy matrix in long form.
func WriteMismatchCSV(path string, matrix model.MismatchMatrix) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"tx_chern", "rx_chern", "mean_accuracy", "mean_correlation", "failed_trials", "degenerate_trials"}); err != nil {
		return err
	}
	for _, cell := range matrix.Cells {
		if err := writer.Write([]string{
			strconv.Itoa(cell.TxChern),
			strconv.Itoa(cell.RxChern),
			formatOptional(cell.MeanAccuracy),
			formatOptional(cell.MeanCorrelation),
			strconv.Itoa(cell.FailedTrials),
			strconv.Itoa(cell.DegenerateTrials),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatOptionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseOptional(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
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
