package functional

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"github.com/mjibson/go-dsp/fft"

	"coherence/internal/model"
)

// Kind tags the closed set of coherence functionals.
type Kind int

const (
	Gradient Kind = iota
	EnergyLike
	Phase
	Entropy
	Hybrid
)

var kindNames = [...]string{
	Gradient:   "gradient",
	EnergyLike: "energy",
	Phase:      "phase",
	Entropy:    "entropy",
	Hybrid:     "hybrid",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("functional(%d)", int(k))
	}
	return kindNames[k]
}

func All() []Kind {
	return []Kind{Gradient, EnergyLike, Phase, Entropy, Hybrid}
}

func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gradient":
		return Gradient, nil
	case "energy", "energy_like", "energy-like":
		return EnergyLike, nil
	case "phase":
		return Phase, nil
	case "entropy":
		return Entropy, nil
	case "hybrid":
		return Hybrid, nil
	default:
		return 0, fmt.Errorf("%w: unknown functional %q", model.ErrInvalidParameter, name)
	}
}

// Params scale the exponents of the functionals.
type Params struct {
	Alpha           float64 `json:"alpha"`
	Beta            float64 `json:"beta"`
	EntropyK        float64 `json:"entropy_k"`
	EntropyBinWidth float64 `json:"entropy_bin_width"`
	MaxBins         int     `json:"max_bins"`
}

func DefaultParams() Params {
	return Params{Alpha: 1, Beta: 1, EntropyK: 1, EntropyBinWidth: 0.01, MaxBins: 4096}
}

func (p Params) Validate() error {
	if math.IsNaN(p.Alpha) || p.Alpha < 0 || math.IsNaN(p.Beta) || p.Beta < 0 {
		return fmt.Errorf("%w: alpha and beta must be >= 0", model.ErrInvalidParameter)
	}
	if !(p.EntropyK > 0) {
		return fmt.Errorf("%w: entropy k must be > 0, got %v", model.ErrInvalidParameter, p.EntropyK)
	}
	if !(p.EntropyBinWidth > 0) {
		return fmt.Errorf("%w: entropy bin width must be > 0, got %v", model.ErrInvalidParameter, p.EntropyBinWidth)
	}
	if p.MaxBins < 1 {
		return fmt.Errorf("%w: max bins must be >= 1, got %d", model.ErrInvalidParameter, p.MaxBins)
	}
	return nil
}

// Window is one bit period of a field trace.
type Window struct {
	Dt        float64
	Amplitude []float64
	// Velocity is optional; when absent the finite-difference derivative is used.
	Velocity []float64
}

// Functional reduces a window to one finite scalar.
type Functional interface {
	Kind() Kind
	Evaluate(w Window) float64
}

// New returns the evaluator for kind.
func New(kind Kind, p Params) (Functional, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case Gradient:
		return gradient{alpha: p.Alpha}, nil
	case EnergyLike:
		return energy{beta: p.Beta}, nil
	case Phase:
		return phase{}, nil
	case Entropy:
		return entropy{k: p.EntropyK, width: p.EntropyBinWidth, maxBins: p.MaxBins}, nil
	case Hybrid:
		return hybrid{g: gradient{alpha: p.Alpha}, e: energy{beta: p.Beta}}, nil
	default:
		return nil, fmt.Errorf("%w: unknown functional %d", model.ErrInvalidParameter, int(kind))
	}
}

// Windows splits a trace into consecutive windows of perBit samples.
func Windows(trace model.FieldTrace, perBit, bits int) ([]Window, error) {
	if perBit < 1 || bits < 1 {
		return nil, fmt.Errorf("%w: window size and bit count must be >= 1", model.ErrInvalidParameter)
	}
	if need := perBit * bits; trace.Len() < need {
		return nil, fmt.Errorf("%w: trace has %d samples, need %d", model.ErrInvalidParameter, trace.Len(), need)
	}
	withVelocity := len(trace.Velocity) == trace.Len()
	out := make([]Window, bits)
	for k := range out {
		lo, hi := k*perBit, (k+1)*perBit
		out[k] = Window{Dt: trace.Dt, Amplitude: trace.Amplitude[lo:hi]}
		if withVelocity {
			out[k].Velocity = trace.Velocity[lo:hi]
		}
	}
	return out, nil
}

// Series evaluates f over every window.
func Series(f Functional, windows []Window) []float64 {
	out := make([]float64, len(windows))
	for i, w := range windows {
		out[i] = f.Evaluate(w)
	}
	return out
}

// meanSquareGradient stands in for the spatial gradient with the finite-difference
// time derivative, since a single point carries no spatial extent.
func meanSquareGradient(w Window) float64 {
	if len(w.Amplitude) < 2 || !(w.Dt > 0) {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(w.Amplitude); i++ {
		d := (w.Amplitude[i] - w.Amplitude[i-1]) / w.Dt
		sum += d * d
	}
	return sum / float64(len(w.Amplitude)-1)
}

func meanSquareVelocity(w Window) float64 {
	if len(w.Velocity) == 0 || len(w.Velocity) != len(w.Amplitude) {
		return meanSquareGradient(w)
	}
	sum := 0.0
	for _, v := range w.Velocity {
		sum += v * v
	}
	return sum / float64(len(w.Velocity))
}

// finiteExp keeps exp(-x) finite and inside [0, 1] for non-negative x.
func finiteExp(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 1) {
		return 0
	}
	if x < 0 {
		x = 0
	}
	return math.Exp(-x)
}

type gradient struct{ alpha float64 }

func (gradient) Kind() Kind { return Gradient }

func (g gradient) Evaluate(w Window) float64 {
	return finiteExp(g.alpha * meanSquareGradient(w))
}

type energy struct{ beta float64 }

func (energy) Kind() Kind { return EnergyLike }

func (e energy) Evaluate(w Window) float64 {
	return finiteExp(e.beta * (meanSquareVelocity(w) + meanSquareGradient(w)))
}

type hybrid struct {
	g gradient
	e energy
}

func (hybrid) Kind() Kind { return Hybrid }

func (h hybrid) Evaluate(w Window) float64 {
	return math.Sqrt(h.g.Evaluate(w) * h.e.Evaluate(w))
}

type phase struct{}

func (phase) Kind() Kind { return Phase }

// Evaluate returns |mean(exp(i*phi))| with phi the instantaneous phase of the
// analytic signal.
func (phase) Evaluate(w Window) float64 {
	n := len(w.Amplitude)
	if n == 0 {
		return 0
	}
	for _, x := range w.Amplitude {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
	}
	var sum complex128
	for _, z := range analytic(w.Amplitude) {
		sum += cmplx.Exp(complex(0, cmplx.Phase(z)))
	}
	r := cmplx.Abs(sum) / float64(n)
	if math.IsNaN(r) {
		return 0
	}
	return math.Min(r, 1)
}

// analytic returns x + i*H[x] via the FFT.
func analytic(x []float64) []complex128 {
	n := len(x)
	spectrum := fft.FFTReal(x)
	for k := 1; k < n; k++ {
		switch {
		case 2*k < n:
			spectrum[k] *= 2
		case 2*k > n:
			spectrum[k] = 0
		}
	}
	return fft.IFFT(spectrum)
}

type entropy struct {
	k       float64
	width   float64
	maxBins int
}

func (entropy) Kind() Kind { return Entropy }

// Evaluate returns exp(-S/k) where S is the Shannon entropy of a fixed-width
// amplitude histogram. A constant window occupies one bin and yields 1.
func (e entropy) Evaluate(w Window) float64 {
	n := len(w.Amplitude)
	if n == 0 {
		return 1
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range w.Amplitude {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	span := hi - lo
	if span <= 0 {
		return 1
	}
	width := e.width
	bins := e.maxBins
	if fit := math.Floor(span/width) + 1; fit < float64(e.maxBins) {
		bins = int(fit)
	} else {
		width = span / float64(bins)
	}
	counts := make([]int, bins)
	for _, x := range w.Amplitude {
		idx := int((x - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	s := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(n)
		s -= p * math.Log(p)
	}
	return finiteExp(s / e.k)
}
