package modulation

import (
	"fmt"
	"math"
	"strings"

	"coherence/internal/model"
)

// Scheme is the closed set of keying schemes.
type Scheme int

const (
	Amplitude Scheme = iota
	Phase
	FrequencyShift
)

var schemeNames = [...]string{
	Amplitude:      "amplitude",
	Phase:          "phase",
	FrequencyShift: "frequency_shift",
}

func (s Scheme) String() string {
	if s < 0 || int(s) >= len(schemeNames) {
		return fmt.Sprintf("scheme(%d)", int(s))
	}
	return schemeNames[s]
}

func AllSchemes() []Scheme {
	return []Scheme{Amplitude, Phase, FrequencyShift}
}

// ParseScheme accepts the canonical names plus the short aliases ask, psk and fsk.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "amplitude", "ask", "am":
		return Amplitude, nil
	case "phase", "psk", "bpsk":
		return Phase, nil
	case "frequency_shift", "frequency-shift", "fsk", "frequency":
		return FrequencyShift, nil
	default:
		return 0, fmt.Errorf("%w: unknown modulation scheme %q", model.ErrInvalidParameter, name)
	}
}

// Signal is the configured transmitter drive.
type Signal struct {
	Bits   []int
	Scheme Scheme
	// Carrier is the angular frequency used by the amplitude and phase schemes.
	Carrier float64
	// Shift holds f(0) and f(1) in cycles per unit time for frequency-shift keying.
	Shift       [2]float64
	BitDuration float64
	Amplitude   float64
}

func (s Signal) Model() model.DriveSignal {
	return model.DriveSignal{
		Bits:             append([]int(nil), s.Bits...),
		Scheme:           s.Scheme.String(),
		CarrierFrequency: s.Carrier,
		ShiftFrequencies: s.Shift,
		BitDuration:      s.BitDuration,
		Amplitude:        s.Amplitude,
	}
}

func (s Signal) Validate() error {
	if len(s.Bits) == 0 {
		return fmt.Errorf("%w: bit sequence is empty", model.ErrInvalidParameter)
	}
	for i, bit := range s.Bits {
		if bit != 0 && bit != 1 {
			return fmt.Errorf("%w: bit %d is %d, want 0 or 1", model.ErrInvalidParameter, i, bit)
		}
	}
	if !(s.BitDuration > 0) || math.IsInf(s.BitDuration, 0) {
		return fmt.Errorf("%w: bit duration must be > 0, got %v", model.ErrInvalidParameter, s.BitDuration)
	}
	if math.IsNaN(s.Amplitude) || s.Amplitude < 0 {
		return fmt.Errorf("%w: drive amplitude must be >= 0, got %v", model.ErrInvalidParameter, s.Amplitude)
	}
	switch s.Scheme {
	case Amplitude, Phase:
		if math.IsNaN(s.Carrier) || s.Carrier < 0 {
			return fmt.Errorf("%w: carrier frequency must be >= 0, got %v", model.ErrInvalidParameter, s.Carrier)
		}
	case FrequencyShift:
		if !(s.Shift[0] > 0) || !(s.Shift[1] > 0) {
			return fmt.Errorf("%w: shift frequencies must be > 0, got %v", model.ErrInvalidParameter, s.Shift)
		}
		if s.Shift[0] == s.Shift[1] {
			return fmt.Errorf("%w: shift frequencies must differ, got %v", model.ErrInvalidParameter, s.Shift)
		}
	default:
		return fmt.Errorf("%w: unknown scheme %d", model.ErrInvalidParameter, int(s.Scheme))
	}
	return nil
}

// SamplesPerBit is the window length on a grid of step dt.
func SamplesPerBit(bitDuration, dt float64) int {
	if !(dt > 0) {
		return 0
	}
	return int(math.Round(bitDuration / dt))
}

// Encode samples the drive at t_i = i*dt for i in [0, steps). Bit k owns
// samples [k*S, (k+1)*S); samples past the last bit are zero.
func Encode(s Signal, dt float64, steps int) ([]float64, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if !(dt > 0) {
		return nil, fmt.Errorf("%w: dt must be > 0, got %v", model.ErrInvalidParameter, dt)
	}
	perBit := SamplesPerBit(s.BitDuration, dt)
	if perBit < 2 {
		return nil, fmt.Errorf("%w: bit duration %v spans %d samples at dt=%v, need at least 2", model.ErrInvalidParameter, s.BitDuration, perBit, dt)
	}
	if need := perBit * len(s.Bits); steps < need {
		return nil, fmt.Errorf("%w: %d steps cannot hold %d bits of %d samples", model.ErrInvalidParameter, steps, len(s.Bits), perBit)
	}

	out := make([]float64, steps)
	for k, bit := range s.Bits {
		b := float64(bit)
		for i := k * perBit; i < (k+1)*perBit; i++ {
			t := float64(i) * dt
			switch s.Scheme {
			case Amplitude:
				out[i] = s.Amplitude * (1 + 0.5*b) * math.Sin(s.Carrier*t)
			case Phase:
				out[i] = s.Amplitude * math.Sin(s.Carrier*t+math.Pi*b)
			case FrequencyShift:
				out[i] = s.Amplitude * math.Sin(2*math.Pi*s.Shift[bit]*t)
			}
		}
	}
	return out, nil
}

// Envelope is the known per-bit drive envelope used for correlation.
func Envelope(bits []int) []float64 {
	out := make([]float64, len(bits))
	for i, bit := range bits {
		out[i] = float64(bit)
	}
	return out
}

// DefaultShift derives FSK frequencies from an angular carrier: f(0) sits on the
// carrier and f(1) is detuned upward by half.
func DefaultShift(carrier float64) [2]float64 {
	f0 := carrier / (2 * math.Pi)
	return [2]float64{f0, 1.5 * f0}
}

// Alternating returns n bits 1,0,1,0,...
func Alternating(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 1 - i%2
	}
	return out
}

// ParseBits reads a string such as "1010 0110"; separators are ignored.
func ParseBits(text string) ([]int, error) {
	var bits []int
	for _, r := range text {
		switch r {
		case '0', '1':
			bits = append(bits, int(r-'0'))
		case ' ', ',', '_', '\t':
		default:
			return nil, fmt.Errorf("%w: unexpected %q in bit string", model.ErrInvalidParameter, r)
		}
	}
	if len(bits) == 0 {
		return nil, fmt.Errorf("%w: bit sequence is empty", model.ErrInvalidParameter)
	}
	return bits, nil
}
