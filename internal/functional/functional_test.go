package functional

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coherence/internal/model"
)

func sineWindow(n int, dt, amplitude, omega float64) Window {
	w := Window{Dt: dt, Amplitude: make([]float64, n), Velocity: make([]float64, n)}
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		w.Amplitude[i] = amplitude * math.Sin(omega*t)
		w.Velocity[i] = amplitude * omega * math.Cos(omega*t)
	}
	return w
}

func mustNew(t *testing.T, kind Kind) Functional {
	t.Helper()
	f, err := New(kind, DefaultParams())
	require.NoError(t, err)
	require.Equal(t, kind, f.Kind())
	return f
}

func TestParseKindRoundTrip(t *testing.T) {
	for _, kind := range All() {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		assert.Equal(t, kind, parsed)
	}
	parsed, err := ParseKind("Energy-Like")
	require.NoError(t, err)
	assert.Equal(t, EnergyLike, parsed)

	_, err = ParseKind("curvature")
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestNewRejectsInvalidParams(t *testing.T) {
	bad := []Params{
		{Alpha: -1, Beta: 1, EntropyK: 1, EntropyBinWidth: 0.01, MaxBins: 10},
		{Alpha: 1, Beta: 1, EntropyK: 0, EntropyBinWidth: 0.01, MaxBins: 10},
		{Alpha: 1, Beta: 1, EntropyK: 1, EntropyBinWidth: 0, MaxBins: 10},
		{Alpha: 1, Beta: 1, EntropyK: 1, EntropyBinWidth: 0.01, MaxBins: 0},
	}
	for _, p := range bad {
		_, err := New(Gradient, p)
		assert.ErrorIs(t, err, model.ErrInvalidParameter, "%+v", p)
	}
	_, err := New(Kind(42), DefaultParams())
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestAllZeroWindowIsWellDefined(t *testing.T) {
	w := Window{Dt: 0.01, Amplitude: make([]float64, 200), Velocity: make([]float64, 200)}
	for _, kind := range All() {
		got := mustNew(t, kind).Evaluate(w)
		assert.False(t, math.IsNaN(got) || math.IsInf(got, 0), "%s", kind)
		assert.InDelta(t, 1.0, got, 1e-12, "%s on zero window", kind)
	}
}

func TestFunctionalsFiniteAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	windows := []Window{
		sineWindow(500, 0.01, 0.2, 1),
		sineWindow(257, 0.02, 3, 7),
		{Dt: 0.01, Amplitude: []float64{1e150, -1e150, 1e150}},
		{Dt: 0.01, Amplitude: []float64{0.5}},
	}
	noisy := Window{Dt: 0.01, Amplitude: make([]float64, 400)}
	for i := range noisy.Amplitude {
		noisy.Amplitude[i] = rng.NormFloat64()
	}
	windows = append(windows, noisy)

	for _, kind := range All() {
		f := mustNew(t, kind)
		for i, w := range windows {
			got := f.Evaluate(w)
			require.False(t, math.IsNaN(got) || math.IsInf(got, 0), "%s window %d", kind, i)
			assert.GreaterOrEqual(t, got, 0.0, "%s window %d", kind, i)
			assert.LessOrEqual(t, got, 1.0+1e-12, "%s window %d", kind, i)
		}
	}
}

func TestEnergyAndGradientDecreaseWithAmplitude(t *testing.T) {
	small := sineWindow(2000, 0.01, 0.18, 1)
	large := sineWindow(2000, 0.01, 0.27, 1)
	for _, kind := range []Kind{Gradient, EnergyLike, Hybrid, Entropy} {
		f := mustNew(t, kind)
		assert.Greater(t, f.Evaluate(small), f.Evaluate(large), "%s", kind)
	}
}

func TestEnergyMatchesClosedForm(t *testing.T) {
	// a*sin(t) over whole periods: mean v^2 = a^2/2 and the gradient proxy matches it.
	w := sineWindow(6283, 0.001, 0.3, 1)
	want := math.Exp(-(0.09/2 + 0.09/2))
	assert.InDelta(t, want, mustNew(t, EnergyLike).Evaluate(w), 1e-3)
	assert.InDelta(t, math.Exp(-0.09/2), mustNew(t, Gradient).Evaluate(w), 1e-3)
}

func TestPhaseCoherence(t *testing.T) {
	f := mustNew(t, Phase)
	rotating := sineWindow(1000, 0.01, 1, 2*math.Pi*5)
	assert.Less(t, f.Evaluate(rotating), 0.05)

	constant := Window{Dt: 0.01, Amplitude: []float64{0.4, 0.4, 0.4, 0.4}}
	assert.InDelta(t, 1.0, f.Evaluate(constant), 1e-9)
}

func TestEntropyConstantWindow(t *testing.T) {
	w := Window{Dt: 0.01, Amplitude: []float64{2, 2, 2, 2, 2}}
	assert.Equal(t, 1.0, mustNew(t, Entropy).Evaluate(w))
}

func TestEntropyRespectsMaxBins(t *testing.T) {
	p := DefaultParams()
	p.MaxBins = 2
	f, err := New(Entropy, p)
	require.NoError(t, err)
	w := Window{Dt: 0.01, Amplitude: []float64{0, 0, 10, 10}}
	assert.InDelta(t, math.Exp(-math.Log(2)), f.Evaluate(w), 1e-12)
}

func TestWindowsAndSeries(t *testing.T) {
	trace := model.FieldTrace{Chern: 1, Dt: 0.1, Amplitude: make([]float64, 12), Velocity: make([]float64, 12)}
	for i := range trace.Amplitude {
		trace.Amplitude[i] = float64(i)
	}
	windows, err := Windows(trace, 4, 3)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	assert.Equal(t, []float64{4, 5, 6, 7}, windows[1].Amplitude)
	assert.Len(t, windows[2].Velocity, 4)

	series := Series(mustNew(t, Entropy), windows)
	assert.Len(t, series, 3)

	_, err = Windows(trace, 5, 3)
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
	_, err = Windows(trace, 0, 3)
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}
