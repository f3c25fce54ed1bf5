package field

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"coherence/internal/model"
)

// StabilityBound is the leapfrog limit on dt*omega_max.
const StabilityBound = 2.0

// Params are shared by every channel of one run.
type Params struct {
	Dt               float64
	Steps            int
	Gamma            float64
	Mass             float64
	NoiseStd         float64
	Seed             int64
	InitialAmplitude float64
	InitialVelocity  float64
}

// ChannelForcing is the external drive for one channel, sampled on the run grid.
// A negative NoiseStd falls back to Params.NoiseStd.
type ChannelForcing struct {
	Chern    int
	Forcing  []float64
	NoiseStd float64
}

// Validate runs the pre-flight checks. No integration step happens on error.
func (p Params) Validate() error {
	if !(p.Dt > 0) || math.IsInf(p.Dt, 0) {
		return fmt.Errorf("%w: dt must be > 0, got %v", model.ErrInvalidParameter, p.Dt)
	}
	if !(p.Gamma > 0) || math.IsInf(p.Gamma, 0) {
		return fmt.Errorf("%w: gamma must be > 0, got %v", model.ErrInvalidParameter, p.Gamma)
	}
	if !(p.Mass > 0) || math.IsInf(p.Mass, 0) {
		return fmt.Errorf("%w: mass must be > 0, got %v", model.ErrInvalidParameter, p.Mass)
	}
	if p.Steps <= 0 {
		return fmt.Errorf("%w: steps must be > 0, got %d", model.ErrInvalidParameter, p.Steps)
	}
	if math.IsNaN(p.NoiseStd) || p.NoiseStd < 0 {
		return fmt.Errorf("%w: noise std must be >= 0, got %v", model.ErrInvalidParameter, p.NoiseStd)
	}
	if omega := p.OmegaMax(); p.Dt*omega >= StabilityBound {
		return fmt.Errorf("%w: dt*omega_max=%.4g violates bound %.1f (dt=%v, omega_max=%v)", model.ErrNumericalInstability, p.Dt*omega, StabilityBound, p.Dt, omega)
	}
	return nil
}

// OmegaMax is the largest natural frequency in the system.
func (p Params) OmegaMax() float64 {
	return p.Mass
}

// Integrate evolves every channel over p.Steps samples. All traces share the same length.
func Integrate(ctx context.Context, p Params, channels []ChannelForcing) ([]model.FieldTrace, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: at least one channel is required", model.ErrInvalidParameter)
	}
	seen := make(map[int]struct{}, len(channels))
	for _, ch := range channels {
		if ch.Chern < 0 {
			return nil, fmt.Errorf("%w: chern number must be >= 0, got %d", model.ErrInvalidParameter, ch.Chern)
		}
		if _, dup := seen[ch.Chern]; dup {
			return nil, fmt.Errorf("%w: duplicate channel for chern %d", model.ErrInvalidParameter, ch.Chern)
		}
		seen[ch.Chern] = struct{}{}
		if ch.Forcing != nil && len(ch.Forcing) != p.Steps {
			return nil, fmt.Errorf("%w: channel %d forcing has %d samples, want %d", model.ErrInvalidParameter, ch.Chern, len(ch.Forcing), p.Steps)
		}
		if math.IsNaN(ch.NoiseStd) {
			return nil, fmt.Errorf("%w: channel %d noise std is NaN", model.ErrInvalidParameter, ch.Chern)
		}
	}

	traces := make([]model.FieldTrace, 0, len(channels))
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		noiseStd := ch.NoiseStd
		if noiseStd < 0 {
			noiseStd = p.NoiseStd
		}
		traces = append(traces, evolve(p, ch.Chern, ch.Forcing, noiseStd))
	}
	return traces, nil
}

// ChannelSeed derives the per-channel noise stream from the run seed.
func ChannelSeed(seed int64, chern int) int64 {
	return seed*1_000_003 + int64(chern)*7_919 + 1
}

// evolve integrates x'' + gamma x' + m^2 x = f(t) with damped velocity Verlet.
// The damping term of the velocity half step is solved in closed form.
func evolve(p Params, chern int, forcing []float64, noiseStd float64) model.FieldTrace {
	n := p.Steps
	force := make([]float64, n)
	copy(force, forcing)
	if noiseStd > 0 {
		rng := rand.New(rand.NewSource(ChannelSeed(p.Seed, chern)))
		for i := range force {
			force[i] += noiseStd * rng.NormFloat64()
		}
	}

	dt := p.Dt
	m2 := p.Mass * p.Mass
	halfDamp := 1 + 0.5*p.Gamma*dt

	trace := model.FieldTrace{
		Chern:     chern,
		Dt:        dt,
		Amplitude: make([]float64, 0, n),
		Velocity:  make([]float64, 0, n),
	}
	x, v := p.InitialAmplitude, p.InitialVelocity
	trace.Amplitude = append(trace.Amplitude, x)
	trace.Velocity = append(trace.Velocity, v)
	a := force[0] - p.Gamma*v - m2*x
	for i := 1; i < n; i++ {
		x += v*dt + 0.5*a*dt*dt
		vHalf := v + 0.5*a*dt
		v = (vHalf + 0.5*dt*(force[i]-m2*x)) / halfDamp
		a = force[i] - p.Gamma*v - m2*x
		trace.Amplitude = append(trace.Amplitude, x)
		trace.Velocity = append(trace.Velocity, v)
	}
	return trace
}

// FinalChannel reports the channel state at the end of a trace.
func FinalChannel(trace model.FieldTrace) model.Channel {
	ch := model.NewChannel(trace.Chern)
	if n := trace.Len(); n > 0 {
		ch.Amplitude = trace.Amplitude[n-1]
		if len(trace.Velocity) == n {
			ch.Velocity = trace.Velocity[n-1]
		}
	}
	return ch
}
