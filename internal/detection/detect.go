package detection

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"coherence/internal/model"
	"coherence/internal/modulation"
)

const (
	DefaultSeparationTolerance = 1e-9
	DefaultSignificance        = 4
)

var ErrUndefinedSelectivity = errors.New("selectivity ratio undefined")

// minSpread absorbs rounding in the standard deviation of identical samples.
const minSpread = 1e-12

type Options struct {
	// SeparationTolerance is relative to max(1, |mu0|, |mu1|).
	SeparationTolerance float64 `json:"separation_tolerance"`
	// Significance is the number of standard errors |mu1-mu0| must exceed.
	// Zero disables the test and leaves only SeparationTolerance.
	Significance float64 `json:"significance"`
	// MaxLag bounds the cross-correlation lag sweep, in bits.
	MaxLag int `json:"max_lag"`
}

func DefaultOptions() Options {
	return Options{
		SeparationTolerance: DefaultSeparationTolerance,
		Significance:        DefaultSignificance,
		MaxLag:              2,
	}
}

func (o Options) Validate() error {
	if o.SeparationTolerance < 0 || math.IsNaN(o.SeparationTolerance) {
		return fmt.Errorf("%w: separation tolerance must be >= 0", model.ErrInvalidParameter)
	}
	if o.Significance < 0 || math.IsNaN(o.Significance) || math.IsInf(o.Significance, 0) {
		return fmt.Errorf("%w: significance must be a finite value >= 0", model.ErrInvalidParameter)
	}
	return nil
}

// Detect picks the midpoint threshold between class means, decodes every bit
// and scores the result against truth.
//
// A separation that cannot be told apart from noise is reported as degenerate,
// never as an error. A degenerate result reports the median as threshold and
// declares no bit as 1, so its BER is the share of 1 bits in truth.
func Detect(values []float64, truth []int, opts Options) (model.DetectionResult, error) {
	if len(values) == 0 {
		return model.DetectionResult{}, fmt.Errorf("%w: no functional values", model.ErrInvalidParameter)
	}
	if len(values) != len(truth) {
		return model.DetectionResult{}, fmt.Errorf("%w: %d values for %d bits", model.ErrInvalidParameter, len(values), len(truth))
	}
	if err := opts.Validate(); err != nil {
		return model.DetectionResult{}, err
	}
	var zeros, ones []float64
	for i, bit := range truth {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return model.DetectionResult{}, fmt.Errorf("%w: functional value %d is not finite", model.ErrInvalidParameter, i)
		}
		switch bit {
		case 0:
			zeros = append(zeros, v)
		case 1:
			ones = append(ones, v)
		default:
			return model.DetectionResult{}, fmt.Errorf("%w: bit %d is %d, want 0 or 1", model.ErrInvalidParameter, i, bit)
		}
	}

	res := model.DetectionResult{N: len(values)}
	median := Median(values)
	res.MeanZero, res.MeanOne = median, median
	if len(zeros) > 0 {
		res.MeanZero = stat.Mean(zeros, nil)
	}
	if len(ones) > 0 {
		res.MeanOne = stat.Mean(ones, nil)
	}
	res.Separation = res.MeanOne - res.MeanZero

	if degenerate(zeros, ones, res, opts) {
		res.Degenerate = true
		res.Threshold = median
	} else {
		res.Threshold = (res.MeanZero + res.MeanOne) / 2
		res.Inverted = res.MeanOne < res.MeanZero
	}

	res.Decoded = make([]int, len(values))
	for i, v := range values {
		one := v > res.Threshold
		if res.Inverted {
			one = v < res.Threshold
		}
		if one && !res.Degenerate {
			res.Decoded[i] = 1
		}
		if res.Decoded[i] != truth[i] {
			res.Errors++
		}
	}
	res.BitErrorRate = float64(res.Errors) / float64(res.N)
	res.Accuracy = 1 - res.BitErrorRate

	xc := CrossCorrelate(values, modulation.Envelope(truth), opts.MaxLag)
	res.Correlation = xc.Zero
	res.PeakLag = xc.PeakLag
	res.PeakCorrelation = xc.Peak
	return res, nil
}

// degenerate reports separations that cannot be resolved. The floating-point
// floor always applies; the standard-error test needs two samples per class.
func degenerate(zeros, ones []float64, res model.DetectionResult, opts Options) bool {
	if len(zeros) == 0 || len(ones) == 0 {
		return true
	}
	sep := math.Abs(res.Separation)
	scale := math.Max(1, math.Max(math.Abs(res.MeanZero), math.Abs(res.MeanOne)))
	if sep <= opts.SeparationTolerance*scale {
		return true
	}
	if opts.Significance == 0 || len(zeros) < 2 || len(ones) < 2 {
		return false
	}
	return sep <= opts.Significance*StandardError(zeros, ones)
}

// StandardError is the Welch standard error of the difference of two class
// means, sqrt(s0^2/n0 + s1^2/n1). Classes need at least two samples each.
func StandardError(zeros, ones []float64) float64 {
	if len(zeros) < 2 || len(ones) < 2 {
		return math.NaN()
	}
	v0 := stat.Variance(zeros, nil)
	v1 := stat.Variance(ones, nil)
	return math.Sqrt(v0/float64(len(zeros)) + v1/float64(len(ones)))
}

// Median returns the middle value, averaging the two central values for even lengths.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Pearson is the correlation coefficient of a and b; zero variance yields 0.
func Pearson(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}

type CrossCorrelation struct {
	Zero    float64
	PeakLag int
	Peak    float64
}

// CrossCorrelate correlates series[i+lag] with envelope[i] for |lag| <= maxLag.
// Lags leaving fewer than three overlapping samples are skipped. Ties favor the
// smallest |lag|.
func CrossCorrelate(series, envelope []float64, maxLag int) CrossCorrelation {
	out := CrossCorrelation{Zero: Pearson(series, envelope)}
	out.Peak = out.Zero
	if maxLag < 0 {
		maxLag = 0
	}
	n := len(series)
	if len(envelope) < n {
		n = len(envelope)
	}
	for d := 1; d <= maxLag; d++ {
		for _, lag := range []int{-d, d} {
			if n-d < 3 {
				continue
			}
			var r float64
			if lag > 0 {
				r = Pearson(series[lag:n], envelope[:n-lag])
			} else {
				r = Pearson(series[:n+lag], envelope[-lag:n])
			}
			if math.Abs(r) > math.Abs(out.Peak) {
				out.Peak = r
				out.PeakLag = lag
			}
		}
	}
	return out
}

// SelectivityRatio contrasts the matched correlation with the spread of the
// mismatched correlations: |C0| / std(mismatched).
func SelectivityRatio(matched float64, mismatched []float64) (float64, error) {
	if len(mismatched) < 2 {
		return 0, fmt.Errorf("%w: need at least 2 mismatched samples, got %d", ErrUndefinedSelectivity, len(mismatched))
	}
	sd := stat.StdDev(mismatched, nil)
	if !(sd > minSpread) {
		return 0, fmt.Errorf("%w: mismatched correlations have zero spread", ErrUndefinedSelectivity)
	}
	return math.Abs(matched) / sd, nil
}
