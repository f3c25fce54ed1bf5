package sweep

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"coherence/internal/detection"
	"coherence/internal/field"
	"coherence/internal/functional"
	"coherence/internal/model"
	"coherence/internal/modulation"
	"coherence/internal/topology"
)

// FunctionalRun is the per-bit series and detection outcome of one functional.
type FunctionalRun struct {
	Kind   functional.Kind
	Series []float64
	Result model.DetectionResult
	// Err is set when this functional failed while others on the same run succeeded.
	Err error
}

// PairRun is everything one simulation of a topology pair produced.
type PairRun struct {
	Pair          Pair
	Scheme        modulation.Scheme
	Seed          int64
	Routing       topology.Routing
	Drive         model.DriveSignal
	DriveSamples  []float64
	SamplesPerBit int
	Traces        []model.FieldTrace
	// Receiver indexes Traces.
	Receiver    int
	Functionals []FunctionalRun
}

// ReceiverTrace is the field seen by the receiving node.
func (r PairRun) ReceiverTrace() model.FieldTrace {
	return r.Traces[r.Receiver]
}

// RunPair routes the pair, encodes the drive, integrates every channel and
// scores each configured functional on the receiver's trace.
func RunPair(ctx context.Context, exp Experiment, scheme modulation.Scheme, pair Pair, seed int64) (PairRun, error) {
	run := PairRun{Pair: pair, Scheme: scheme, Seed: seed}
	if len(exp.Functionals) == 0 {
		return run, fmt.Errorf("%w: at least one functional is required", model.ErrInvalidParameter)
	}

	nodes := exp.nodesFor(pair)
	routing, err := topology.Route(exp.Topology, nodes)
	if err != nil {
		return run, err
	}
	run.Routing = routing
	if driven := routing.DrivenChannels(); driven > 1 {
		exp.logger().Warn("drive leaks into mismatched channels",
			"tx", pair.TxChern,
			"rx", pair.RxChern,
			"driven_channels", driven,
			"sigma", exp.Topology.Sigma,
		)
	}

	params := exp.fieldParams(seed)
	if err := params.Validate(); err != nil {
		return run, err
	}
	signal := exp.signal(scheme)
	drive, err := modulation.Encode(signal, params.Dt, params.Steps)
	if err != nil {
		return run, err
	}
	run.Drive = signal.Model()
	run.DriveSamples = drive
	run.SamplesPerBit = modulation.SamplesPerBit(signal.BitDuration, params.Dt)

	noise := channelNoise(routing, nodes)
	couplings := routing.Coupling[routing.Transmitter.ID]
	forcings := make([]field.ChannelForcing, len(routing.Channels))
	for i, ch := range routing.Channels {
		forcings[i] = field.ChannelForcing{Chern: ch.Chern, NoiseStd: -1}
		if std, ok := noise[i]; ok {
			forcings[i].NoiseStd = std
		}
		if k := couplings[i]; k != 0 {
			forcings[i].Forcing = make([]float64, len(drive))
			floats.ScaleTo(forcings[i].Forcing, k, drive)
		}
	}

	traces, err := field.Integrate(ctx, params, forcings)
	if err != nil {
		return run, err
	}
	run.Traces = traces
	run.Receiver = routing.ChannelOf[nodes[1].ID]
	for i := range run.Routing.Channels {
		run.Routing.Channels[i] = field.FinalChannel(traces[i])
	}

	windows, err := functional.Windows(run.ReceiverTrace(), run.SamplesPerBit, len(exp.Bits))
	if err != nil {
		return run, err
	}
	run.Functionals = make([]FunctionalRun, len(exp.Functionals))
	for i, kind := range exp.Functionals {
		fr := FunctionalRun{Kind: kind}
		f, err := functional.New(kind, exp.FunctionalParams)
		if err != nil {
			fr.Err = err
			run.Functionals[i] = fr
			continue
		}
		fr.Series = functional.Series(f, windows)
		fr.Result, fr.Err = detection.Detect(fr.Series, exp.Bits, exp.Detection)
		run.Functionals[i] = fr
	}
	return run, nil
}

// channelNoise maps channel index to the largest noise level any node on that
// channel asked for. Channels without an explicit node noise use the run default.
func channelNoise(routing topology.Routing, nodes []model.Node) map[int]float64 {
	out := make(map[int]float64)
	for _, node := range nodes {
		if node.NoiseStd <= 0 {
			continue
		}
		idx := routing.ChannelOf[node.ID]
		if node.NoiseStd > out[idx] {
			out[idx] = node.NoiseStd
		}
	}
	return out
}
