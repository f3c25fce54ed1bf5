package storage

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"coherence/internal/model"
)

func ptr[T any](v T) *T { return &v }

func sampleRun(id, created string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: CurrentVersion(),
		ID:              id,
		Kind:            "sweep",
		CreatedAtUTC:    created,
		Seed:            42,
		Rows:            3,
		FailedRows:      1,
		BestBER:         ptr(0.0),
	}
}

func sampleLeaderboard(runID string) model.Leaderboard {
	return model.Leaderboard{
		VersionedRecord: CurrentVersion(),
		RunID:           runID,
		Rows: []model.LeaderboardRow{
			{
				Scheme: "amplitude", Functional: "energy", TxChern: 3, RxChern: 3, Seed: 42,
				Status: model.RowOK, N: 10, BER: ptr(0.0), Accuracy: ptr(1.0), Errors: ptr(0),
				Separation: ptr(-0.04), Threshold: ptr(0.95), Correlation: ptr(-0.98),
			},
			{
				Scheme: "phase", Functional: "gradient", TxChern: -1, RxChern: 2, Seed: 43,
				Status: model.RowFailed, ErrorKind: model.KindInvalidParameter, Error: "invalid parameter: chern", N: 10,
			},
		},
	}
}

func sampleMismatch(runID string) model.MismatchMatrix {
	return model.MismatchMatrix{
		VersionedRecord: CurrentVersion(),
		RunID:           runID,
		Scheme:          "amplitude",
		Functional:      "energy",
		MaxChern:        1,
		Trials:          2,
		Cells: []model.MismatchCell{
			{TxChern: 0, RxChern: 0, MeanAccuracy: ptr(0.6), MeanCorrelation: ptr(-0.05), Correlations: []float64{0.1, -0.2}},
			{TxChern: 0, RxChern: 1, MeanAccuracy: ptr(0.5), MeanCorrelation: ptr(0.15), Correlations: []float64{0.3, 0.0}},
			{TxChern: 1, RxChern: 0, MeanAccuracy: ptr(0.7), MeanCorrelation: ptr(0.05), Correlations: []float64{-0.1, 0.2}},
			{TxChern: 1, RxChern: 1, MeanAccuracy: ptr(1.0), MeanCorrelation: ptr(-0.97), Correlations: []float64{-0.98, -0.96}},
		},
		Selectivity: []model.Selectivity{
			{TxChern: 1, MatchedCorrelation: ptr(-0.97), MismatchedStd: 0.21, Ratio: ptr(4.6)},
		},
	}
}

// exerciseStore runs the shared round-trip contract against any backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	runs := []model.RunRecord{
		sampleRun("run-a", "2026-01-02T00:00:00Z"),
		sampleRun("run-b", "2026-01-03T00:00:00Z"),
		sampleRun("run-c", "2026-01-01T00:00:00Z"),
	}
	for _, run := range runs {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}
	loaded, ok, err := store.GetRun(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(runs[0], loaded); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}
	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%v err=%v", ok, err)
	}

	listed, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	var ids []string
	for _, run := range listed {
		ids = append(ids, run.ID)
	}
	if diff := cmp.Diff([]string{"run-b", "run-a", "run-c"}, ids); diff != "" {
		t.Fatalf("run order (-want +got):\n%s", diff)
	}
	limited, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list runs with limit: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "run-b" {
		t.Fatalf("unexpected limited list: %+v", limited)
	}

	board := sampleLeaderboard("run-a")
	if err := store.SaveLeaderboard(ctx, board); err != nil {
		t.Fatalf("save leaderboard: %v", err)
	}
	loadedBoard, ok, err := store.GetLeaderboard(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get leaderboard: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(board, loadedBoard); diff != "" {
		t.Fatalf("leaderboard mismatch (-want +got):\n%s", diff)
	}
	if loadedBoard.Rows[1].BER != nil {
		t.Fatal("failed row must not carry a BER")
	}

	matrix := sampleMismatch("run-b")
	if err := store.SaveMismatch(ctx, matrix); err != nil {
		t.Fatalf("save mismatch: %v", err)
	}
	loadedMatrix, ok, err := store.GetMismatch(ctx, "run-b")
	if err != nil || !ok {
		t.Fatalf("get mismatch: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(matrix, loadedMatrix); diff != "" {
		t.Fatalf("mismatch matrix (-want +got):\n%s", diff)
	}
	if _, ok, err := store.GetMismatch(ctx, "run-a"); err != nil || ok {
		t.Fatalf("expected no mismatch for run-a, ok=%v err=%v", ok, err)
	}
}
