package model

import "math"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Role string

const (
	RoleTransmitter Role = "transmitter"
	RoleReceiver    Role = "receiver"
)

// Node is a simulated endpoint addressed by its Chern number.
type Node struct {
	ID       string  `json:"id" yaml:"id" toml:"id"`
	Chern    int     `json:"chern" yaml:"chern" toml:"chern"`
	Role     Role    `json:"role" yaml:"role" toml:"role"`
	NoiseStd float64 `json:"noise_std,omitempty" yaml:"noise_std" toml:"noise_std"`
}

// Channel is the coherence-field mode for one Chern number.
type Channel struct {
	Chern      int     `json:"chern"`
	AxionAngle float64 `json:"axion_angle"`
	Amplitude  float64 `json:"amplitude"`
	Velocity   float64 `json:"velocity"`
}

func NewChannel(chern int) Channel {
	return Channel{Chern: chern, AxionAngle: 2 * math.Pi * float64(chern)}
}

// DriveSignal is the modulation applied at the transmitter.
type DriveSignal struct {
	Bits             []int      `json:"bits"`
	Scheme           string     `json:"scheme"`
	CarrierFrequency float64    `json:"carrier_frequency"`
	ShiftFrequencies [2]float64 `json:"shift_frequencies"`
	BitDuration      float64    `json:"bit_duration"`
	Amplitude        float64    `json:"amplitude"`
}

// FieldTrace is the sampled field of one channel. Sample i is taken at i*Dt.
type FieldTrace struct {
	Chern     int       `json:"chern"`
	Dt        float64   `json:"dt"`
	Amplitude []float64 `json:"amplitude"`
	Velocity  []float64 `json:"velocity,omitempty"`
}

func (t FieldTrace) Len() int { return len(t.Amplitude) }

func (t FieldTrace) Time(i int) float64 { return float64(i) * t.Dt }

type DetectionResult struct {
	Decoded         []int   `json:"decoded"`
	BitErrorRate    float64 `json:"bit_error_rate"`
	Accuracy        float64 `json:"accuracy"`
	Errors          int     `json:"errors"`
	N               int     `json:"n"`
	MeanZero        float64 `json:"mean_zero"`
	MeanOne         float64 `json:"mean_one"`
	Separation      float64 `json:"separation"`
	Threshold       float64 `json:"threshold"`
	Inverted        bool    `json:"inverted"`
	Degenerate      bool    `json:"degenerate"`
	Correlation     float64 `json:"correlation"`
	PeakLag         int     `json:"peak_lag"`
	PeakCorrelation float64 `json:"peak_correlation"`
}

type RowStatus string

const (
	RowOK     RowStatus = "ok"
	RowFailed RowStatus = "failed"
)

// LeaderboardRow is one (scheme, functional, topology pair) combination.
// Metric fields stay nil on failed rows.
type LeaderboardRow struct {
	Scheme      string    `json:"modulation"`
	Functional  string    `json:"functional"`
	TxChern     int       `json:"tx_chern"`
	RxChern     int       `json:"rx_chern"`
	Seed        int64     `json:"seed"`
	Status      RowStatus `json:"status"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	BER         *float64  `json:"ber,omitempty"`
	Accuracy    *float64  `json:"accuracy,omitempty"`
	Errors      *int      `json:"error_count,omitempty"`
	N           int       `json:"n"`
	Separation  *float64  `json:"delta_mu,omitempty"`
	Threshold   *float64  `json:"threshold,omitempty"`
	Correlation *float64  `json:"correlation,omitempty"`
	Degenerate  bool      `json:"degenerate"`
}

func (r LeaderboardRow) Matched() bool { return r.TxChern == r.RxChern }

type Leaderboard struct {
	VersionedRecord
	RunID string           `json:"run_id"`
	Rows  []LeaderboardRow `json:"rows"`
}

// MismatchCell aggregates the trials of one (tx, rx) pair. The means stay nil
// when every trial failed.
type MismatchCell struct {
	TxChern          int       `json:"tx_chern"`
	RxChern          int       `json:"rx_chern"`
	MeanAccuracy     *float64  `json:"mean_accuracy,omitempty"`
	MeanCorrelation  *float64  `json:"mean_correlation,omitempty"`
	Correlations     []float64 `json:"correlations"`
	FailedTrials     int       `json:"failed_trials"`
	DegenerateTrials int       `json:"degenerate_trials"`
}

type Selectivity struct {
	TxChern            int      `json:"tx_chern"`
	MatchedCorrelation *float64 `json:"matched_correlation,omitempty"`
	MismatchedStd      float64  `json:"mismatched_std"`
	Ratio              *float64 `json:"ratio,omitempty"`
}

type MismatchMatrix struct {
	VersionedRecord
	RunID       string         `json:"run_id"`
	Scheme      string         `json:"scheme"`
	Functional  string         `json:"functional"`
	MaxChern    int            `json:"max_chern"`
	Trials      int            `json:"trials"`
	Cells       []MismatchCell `json:"cells"`
	Selectivity []Selectivity  `json:"selectivity"`
}

// Cell returns the aggregated cell for a pair.
func (m MismatchMatrix) Cell(tx, rx int) (MismatchCell, bool) {
	for _, cell := range m.Cells {
		if cell.TxChern == tx && cell.RxChern == rx {
			return cell, true
		}
	}
	return MismatchCell{}, false
}

// RunRecord is the persisted summary of one sweep invocation.
type RunRecord struct {
	VersionedRecord
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	CreatedAtUTC string   `json:"created_at_utc"`
	Seed         int64    `json:"seed"`
	Rows         int      `json:"rows"`
	FailedRows   int      `json:"failed_rows"`
	BestBER      *float64 `json:"best_ber,omitempty"`
}
