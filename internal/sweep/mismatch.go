package sweep

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"coherence/internal/detection"
	"coherence/internal/model"
)

type trial struct {
	accuracy    float64
	correlation float64
	degenerate  bool
	failed      bool
}

// MismatchSweep runs every (C_tx, C_rx) pair in [0, maxChern]^2 with trials
// seeds each, using the first configured scheme and functional. Trial k of pair
// p runs with seed Field.Seed + p*trials + k.
func MismatchSweep(ctx context.Context, exp Experiment, maxChern, trials int) (model.MismatchMatrix, error) {
	if maxChern < 0 {
		return model.MismatchMatrix{}, fmt.Errorf("%w: max chern must be >= 0, got %d", model.ErrInvalidParameter, maxChern)
	}
	if trials < 1 {
		return model.MismatchMatrix{}, fmt.Errorf("%w: trials must be >= 1, got %d", model.ErrInvalidParameter, trials)
	}
	var pairs []Pair
	for tx := 0; tx <= maxChern; tx++ {
		for rx := 0; rx <= maxChern; rx++ {
			pairs = append(pairs, Pair{TxChern: tx, RxChern: rx})
		}
	}
	exp.Pairs = pairs
	if err := exp.Validate(); err != nil {
		return model.MismatchMatrix{}, err
	}
	scheme, kind := exp.Schemes[0], exp.Functionals[0]
	exp.Functionals = exp.Functionals[:1]
	log := exp.logger()

	results := make([]trial, len(pairs)*trials)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exp.workers(len(results)))
	for idx := range results {
		pair := pairs[idx/trials]
		seed := exp.Field.Seed + int64(idx)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			run, err := RunPair(gctx, exp, scheme, pair, seed)
			if err == nil {
				err = run.Functionals[0].Err
			}
			if err != nil {
				if isCancellation(err) {
					return err
				}
				log.Debug("mismatch trial failed", "tx", pair.TxChern, "rx", pair.RxChern, "seed", seed, "error", err.Error())
				results[idx] = trial{failed: true}
				return nil
			}
			res := run.Functionals[0].Result
			results[idx] = trial{accuracy: res.Accuracy, correlation: res.Correlation, degenerate: res.Degenerate}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.MismatchMatrix{}, err
	}

	matrix := model.MismatchMatrix{
		Scheme:     scheme.String(),
		Functional: kind.String(),
		MaxChern:   maxChern,
		Trials:     trials,
		Cells:      make([]model.MismatchCell, len(pairs)),
	}
	for p, pair := range pairs {
		matrix.Cells[p] = aggregate(pair, results[p*trials:(p+1)*trials])
	}
	for tx := 0; tx <= maxChern; tx++ {
		matrix.Selectivity = append(matrix.Selectivity, selectivity(matrix, tx))
	}
	log.Info("mismatch sweep complete",
		"scheme", matrix.Scheme,
		"functional", matrix.Functional,
		"pairs", len(pairs),
		"trials", trials,
	)
	return matrix, nil
}

func aggregate(pair Pair, trials []trial) model.MismatchCell {
	cell := model.MismatchCell{TxChern: pair.TxChern, RxChern: pair.RxChern}
	var accuracies []float64
	for _, t := range trials {
		if t.failed {
			cell.FailedTrials++
			continue
		}
		if t.degenerate {
			cell.DegenerateTrials++
		}
		accuracies = append(accuracies, t.accuracy)
		cell.Correlations = append(cell.Correlations, t.correlation)
	}
	if len(accuracies) > 0 {
		accuracy := stat.Mean(accuracies, nil)
		correlation := stat.Mean(cell.Correlations, nil)
		cell.MeanAccuracy, cell.MeanCorrelation = &accuracy, &correlation
	}
	return cell
}

// selectivity contrasts the matched cell of tx with every mismatched trial of
// the same transmitter. The ratio stays undefined when the matched cell failed.
func selectivity(matrix model.MismatchMatrix, tx int) model.Selectivity {
	out := model.Selectivity{TxChern: tx}
	if cell, ok := matrix.Cell(tx, tx); ok {
		out.MatchedCorrelation = cell.MeanCorrelation
	}
	var mismatched []float64
	for _, cell := range matrix.Cells {
		if cell.TxChern == tx && cell.RxChern != tx {
			mismatched = append(mismatched, cell.Correlations...)
		}
	}
	if len(mismatched) >= 2 {
		out.MismatchedStd = stat.StdDev(mismatched, nil)
	}
	if out.MatchedCorrelation == nil {
		return out
	}
	if ratio, err := detection.SelectivityRatio(*out.MatchedCorrelation, mismatched); err == nil {
		out.Ratio = &ratio
	}
	return out
}
