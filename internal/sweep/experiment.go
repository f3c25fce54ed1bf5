package sweep

import (
	"fmt"
	"log/slog"

	"coherence/internal/detection"
	"coherence/internal/field"
	"coherence/internal/functional"
	"coherence/internal/model"
	"coherence/internal/modulation"
	"coherence/internal/topology"
)

// Pair is one transmitter/receiver topology combination.
type Pair struct {
	TxChern int `json:"tx_chern" yaml:"tx_chern" toml:"tx_chern"`
	RxChern int `json:"rx_chern" yaml:"rx_chern" toml:"rx_chern"`
}

func (p Pair) String() string { return fmt.Sprintf("%d->%d", p.TxChern, p.RxChern) }

// Drive holds the transmitter waveform settings shared by every scheme.
type Drive struct {
	Carrier float64
	// Shift is f(0), f(1) for frequency-shift keying; zero derives it from Carrier.
	Shift       [2]float64
	BitDuration float64
	Amplitude   float64
}

// Experiment is the full configuration space of one sweep. It is read-only
// once a sweep starts.
type Experiment struct {
	Bits        []int
	Schemes     []modulation.Scheme
	Functionals []functional.Kind
	Pairs       []Pair
	// Nodes optionally names endpoints and carries per-node noise. When Pairs is
	// empty, every transmitter/receiver combination of Nodes is swept.
	Nodes []model.Node

	// Field.Steps of zero fits the grid exactly to the bit sequence.
	Field            field.Params
	Topology         topology.Config
	Drive            Drive
	FunctionalParams functional.Params
	Detection        detection.Options

	Workers int
	Logger  *slog.Logger
}

// Validate checks the sweep-wide settings. Per-run parameters are validated by
// each run so that a bad combination only fails its own rows.
func (e Experiment) Validate() error {
	if len(e.Bits) == 0 {
		return fmt.Errorf("%w: bit sequence is empty", model.ErrInvalidParameter)
	}
	if len(e.Schemes) == 0 {
		return fmt.Errorf("%w: at least one modulation scheme is required", model.ErrInvalidParameter)
	}
	if len(e.Functionals) == 0 {
		return fmt.Errorf("%w: at least one functional is required", model.ErrInvalidParameter)
	}
	if len(e.ResolvePairs()) == 0 {
		return fmt.Errorf("%w: no topology pairs configured", model.ErrInvalidParameter)
	}
	if e.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", model.ErrInvalidParameter, e.Workers)
	}
	return e.Detection.Validate()
}

// ResolvePairs returns Pairs, or every transmitter x receiver combination of Nodes.
func (e Experiment) ResolvePairs() []Pair {
	if len(e.Pairs) > 0 {
		return e.Pairs
	}
	var pairs []Pair
	for _, tx := range e.Nodes {
		if tx.Role != model.RoleTransmitter {
			continue
		}
		for _, rx := range e.Nodes {
			if rx.Role == model.RoleReceiver {
				pairs = append(pairs, Pair{TxChern: tx.Chern, RxChern: rx.Chern})
			}
		}
	}
	return pairs
}

// nodesFor builds the two endpoints of a pair, reusing configured node ids and
// noise levels when a node with the same role and Chern number exists.
func (e Experiment) nodesFor(pair Pair) []model.Node {
	tx := model.Node{ID: fmt.Sprintf("tx-%d", pair.TxChern), Chern: pair.TxChern, Role: model.RoleTransmitter}
	rx := model.Node{ID: fmt.Sprintf("rx-%d", pair.RxChern), Chern: pair.RxChern, Role: model.RoleReceiver}
	for _, node := range e.Nodes {
		switch {
		case node.Role == model.RoleTransmitter && node.Chern == pair.TxChern:
			tx = node
		case node.Role == model.RoleReceiver && node.Chern == pair.RxChern:
			rx = node
		}
	}
	if rx.ID == tx.ID {
		rx.ID += "-rx"
	}
	return []model.Node{tx, rx}
}

func (e Experiment) signal(scheme modulation.Scheme) modulation.Signal {
	shift := e.Drive.Shift
	if shift == ([2]float64{}) {
		shift = modulation.DefaultShift(e.Drive.Carrier)
	}
	return modulation.Signal{
		Bits:        e.Bits,
		Scheme:      scheme,
		Carrier:     e.Drive.Carrier,
		Shift:       shift,
		BitDuration: e.Drive.BitDuration,
		Amplitude:   e.Drive.Amplitude,
	}
}

func (e Experiment) samplesPerBit() int {
	return modulation.SamplesPerBit(e.Drive.BitDuration, e.Field.Dt)
}

func (e Experiment) fieldParams(seed int64) field.Params {
	p := e.Field
	p.Seed = seed
	if p.Steps == 0 {
		p.Steps = e.samplesPerBit() * len(e.Bits)
	}
	return p
}

func (e Experiment) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (e Experiment) workers(jobs int) int {
	w := e.Workers
	if w <= 0 {
		w = 1
	}
	if w > jobs {
		w = jobs
	}
	if w < 1 {
		w = 1
	}
	return w
}
