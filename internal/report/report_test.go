package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coherence/internal/model"
)

func ptr[T any](v T) *T { return &v }

func sampleLeaderboard() model.Leaderboard {
	return model.Leaderboard{Rows: []model.LeaderboardRow{
		{
			Scheme: "amplitude", Functional: "energy", TxChern: 3, RxChern: 3, Seed: 42, Status: model.RowOK,
			BER: ptr(0.0), Accuracy: ptr(1.0), Errors: ptr(0), N: 10, Separation: ptr(2.5e-5), Threshold: ptr(1e-4), Correlation: ptr(-0.98),
		},
		{
			Scheme: "phase", Functional: "gradient", TxChern: 3, RxChern: 0, Seed: 43, Status: model.RowOK,
			BER: ptr(0.5), Accuracy: ptr(0.5), Errors: ptr(5), N: 10, Separation: ptr(0.0), Threshold: ptr(0.0), Correlation: ptr(0.0), Degenerate: true,
		},
		{
			Scheme: "frequency_shift", Functional: "entropy", TxChern: 3, RxChern: 3, Seed: 44, Status: model.RowFailed,
			ErrorKind: model.KindNumericalInstability, Error: "numerical instability: dt too large", N: 10,
		},
	}}
}

func TestLeaderboardPlain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Leaderboard(&buf, sampleLeaderboard(), Options{}))
	out := buf.String()

	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "modulation")
	header := strings.Fields(strings.SplitN(out, "\n", 2)[0])
	assert.Equal(t, []string{"#", "modulation", "functional", "tx", "rx", "seed", "status", "ber", "accuracy", "errors", "n", "delta_mu", "threshold", "corr", "note"}, header)
	assert.Contains(t, out, " 0.0001 ")
	assert.Contains(t, out, "matched")
	assert.Contains(t, out, "degenerate")
	assert.Contains(t, out, model.KindNumericalInstability)
	assert.Contains(t, out, "3 rows, 1 failed")

	lines := strings.Split(out, "\n")
	var order []string
	for _, line := range lines {
		for _, scheme := range []string{"amplitude", "phase", "frequency_shift"} {
			if strings.Contains(line, " "+scheme+" ") {
				order = append(order, scheme)
			}
		}
	}
	assert.Equal(t, []string{"amplitude", "phase", "frequency_shift"}, order)
}

func TestLeaderboardColor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Leaderboard(&buf, sampleLeaderboard(), Options{Color: true}))
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestLeaderboardEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Leaderboard(&buf, model.Leaderboard{}, Options{}))
	assert.Equal(t, "no leaderboard rows\n", buf.String())
}

func TestMismatch(t *testing.T) {
	m := model.MismatchMatrix{
		Scheme: "amplitude", Functional: "energy", MaxChern: 1, Trials: 2,
		Cells: []model.MismatchCell{
			{TxChern: 0, RxChern: 0, MeanAccuracy: ptr(0.5), MeanCorrelation: ptr(0.0), Correlations: []float64{0, 0}},
			{TxChern: 0, RxChern: 1, MeanAccuracy: ptr(0.25), MeanCorrelation: ptr(0.0), Correlations: []float64{0.1, -0.1}},
			{TxChern: 1, RxChern: 0, FailedTrials: 2},
			{TxChern: 1, RxChern: 1, MeanAccuracy: ptr(1.0), MeanCorrelation: ptr(-0.97), Correlations: []float64{-0.96, -0.98}},
		},
		Selectivity: []model.Selectivity{
			{TxChern: 0, MatchedCorrelation: ptr(0.0)},
			{TxChern: 1, MatchedCorrelation: ptr(-0.97), MismatchedStd: 0.1, Ratio: ptr(9.7)},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Mismatch(&buf, m, Options{}))
	out := buf.String()
	assert.Contains(t, out, "scheme=amplitude functional=energy trials=2")
	assert.Contains(t, out, "0.250")
	assert.Contains(t, out, "1.000")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "9.70")
	assert.Contains(t, out, "undefined")
}

func TestRuns(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runs := []model.RunRecord{
		{ID: "sweep-a", Kind: "sweep", CreatedAtUTC: now.Add(-2 * time.Hour).Format(time.RFC3339Nano), Seed: 7, Rows: 1500, FailedRows: 2, BestBER: ptr(0.0)},
		{ID: "mismatch-b", Kind: "mismatch", CreatedAtUTC: "not-a-time", Seed: 8, Rows: 25},
	}
	var buf bytes.Buffer
	require.NoError(t, Runs(&buf, runs, Options{Now: now}))
	out := buf.String()
	assert.Contains(t, out, "sweep-a")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "1,500")
	assert.Contains(t, out, "not-a-time")
	assert.Contains(t, out, "0.0000")

	buf.Reset()
	require.NoError(t, Runs(&buf, nil, Options{}))
	assert.Equal(t, "no runs found\n", buf.String())
}

func TestElapsed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Elapsed(&buf, "sweep", 12000, 1500*time.Millisecond))
	assert.Equal(t, "sweep: 12,000 items in 1.5s\n", buf.String())
}
