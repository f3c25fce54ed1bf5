package sweep

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"coherence/internal/functional"
	"coherence/internal/model"
	"coherence/internal/modulation"
)

type job struct {
	idx    int
	scheme modulation.Scheme
	pair   Pair
	seed   int64
}

// jobs enumerates the simulations of a sweep in run-index order: schemes
// outermost, then pairs. Every functional is scored on the same simulation, so
// the rows of one job share its seed.
func (e Experiment) jobs() []job {
	pairs := e.ResolvePairs()
	out := make([]job, 0, len(e.Schemes)*len(pairs))
	for _, scheme := range e.Schemes {
		for _, pair := range pairs {
			idx := len(out)
			out = append(out, job{idx: idx, scheme: scheme, pair: pair, seed: e.Field.Seed + int64(idx)})
		}
	}
	return out
}

// Sweep runs the Cartesian product schemes x functionals x pairs and returns
// the leaderboard sorted by ascending BER with failed rows last. A failing
// combination becomes a failed row; only cancellation aborts the sweep.
func Sweep(ctx context.Context, exp Experiment) (model.Leaderboard, error) {
	if err := exp.Validate(); err != nil {
		return model.Leaderboard{}, err
	}
	log := exp.logger()
	jobs := exp.jobs()
	results := make([][]model.LeaderboardRow, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exp.workers(len(jobs)))
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			run, err := RunPair(gctx, exp, j.scheme, j.pair, j.seed)
			if err != nil && isCancellation(err) {
				return err
			}
			results[j.idx] = rowsFor(exp, j, run, err)
			log.Debug("sweep job finished",
				"scheme", j.scheme.String(),
				"tx", j.pair.TxChern,
				"rx", j.pair.RxChern,
				"seed", j.seed,
				"error", errString(err),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Leaderboard{}, err
	}

	rows := make([]model.LeaderboardRow, 0, len(jobs)*len(exp.Functionals))
	for _, r := range results {
		rows = append(rows, r...)
	}
	SortRows(rows)

	failed := 0
	for _, row := range rows {
		if row.Status == model.RowFailed {
			failed++
		}
	}
	log.Info("sweep complete",
		"functionals", FunctionalNames(exp.Functionals),
		"rows", len(rows),
		"failed", failed,
	)
	return model.Leaderboard{Rows: rows}, nil
}

// SortRows orders rows by ascending BER; failed rows go last. Ties keep the
// run-index order.
func SortRows(rows []model.LeaderboardRow) {
	slices.SortStableFunc(rows, func(a, b model.LeaderboardRow) int {
		aFailed, bFailed := a.BER == nil, b.BER == nil
		switch {
		case aFailed && bFailed:
			return 0
		case aFailed:
			return 1
		case bFailed:
			return -1
		case *a.BER < *b.BER:
			return -1
		case *a.BER > *b.BER:
			return 1
		default:
			return 0
		}
	})
}

func rowsFor(exp Experiment, j job, run PairRun, runErr error) []model.LeaderboardRow {
	rows := make([]model.LeaderboardRow, len(exp.Functionals))
	for i, kind := range exp.Functionals {
		row := model.LeaderboardRow{
			Scheme:     j.scheme.String(),
			Functional: kind.String(),
			TxChern:    j.pair.TxChern,
			RxChern:    j.pair.RxChern,
			Seed:       j.seed,
			N:          len(exp.Bits),
		}
		err := runErr
		var fr FunctionalRun
		if err == nil {
			fr = run.Functionals[i]
			err = fr.Err
		}
		if err != nil {
			rows[i] = failedRow(row, err)
			continue
		}
		rows[i] = okRow(row, fr)
	}
	return rows
}

func okRow(row model.LeaderboardRow, fr FunctionalRun) model.LeaderboardRow {
	res := fr.Result
	row.Status = model.RowOK
	row.N = res.N
	row.BER = float64Ptr(res.BitErrorRate)
	row.Accuracy = float64Ptr(res.Accuracy)
	row.Errors = intPtr(res.Errors)
	row.Separation = float64Ptr(res.Separation)
	row.Threshold = float64Ptr(res.Threshold)
	row.Correlation = float64Ptr(res.Correlation)
	row.Degenerate = res.Degenerate
	return row
}

func failedRow(row model.LeaderboardRow, err error) model.LeaderboardRow {
	row.Status = model.RowFailed
	row.ErrorKind = model.ErrorKind(err)
	row.Error = err.Error()
	return row
}

// FunctionalNames renders kinds for logs and artifacts.
func FunctionalNames(kinds []functional.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ",")
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func float64Ptr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
