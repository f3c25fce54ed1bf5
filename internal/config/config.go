package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/naoina/toml"
	"gopkg.in/yaml.v3"

	"coherence/internal/detection"
	"coherence/internal/field"
	"coherence/internal/functional"
	"coherence/internal/model"
	"coherence/internal/modulation"
	"coherence/internal/sweep"
	"coherence/internal/topology"
)

// Numeric holds the field and router constants.
type Numeric struct {
	Dt               float64 `json:"dt" yaml:"dt" toml:"dt"`
	Steps            int     `json:"steps" yaml:"steps" toml:"steps"`
	Gamma            float64 `json:"gamma" yaml:"gamma" toml:"gamma"`
	Mass             float64 `json:"mass" yaml:"mass" toml:"mass"`
	GUnit            float64 `json:"g_unit" yaml:"g_unit" toml:"g_unit"`
	Sigma            float64 `json:"sigma" yaml:"sigma" toml:"sigma"`
	LeakageFloor     float64 `json:"leakage_floor" yaml:"leakage_floor" toml:"leakage_floor"`
	NoiseStd         float64 `json:"noise_std" yaml:"noise_std" toml:"noise_std"`
	Seed             int64   `json:"seed" yaml:"seed" toml:"seed"`
	InitialAmplitude float64 `json:"initial_amplitude" yaml:"initial_amplitude" toml:"initial_amplitude"`
	InitialVelocity  float64 `json:"initial_velocity" yaml:"initial_velocity" toml:"initial_velocity"`
}

type Drive struct {
	Carrier float64 `json:"carrier" yaml:"carrier" toml:"carrier"`
	// Shift lists f(0) and f(1) for frequency-shift keying. Empty derives them from Carrier.
	Shift       []float64 `json:"shift" yaml:"shift" toml:"shift"`
	BitDuration float64   `json:"bit_duration" yaml:"bit_duration" toml:"bit_duration"`
	Amplitude   float64   `json:"amplitude" yaml:"amplitude" toml:"amplitude"`
}

type Functional struct {
	Alpha           float64 `json:"alpha" yaml:"alpha" toml:"alpha"`
	Beta            float64 `json:"beta" yaml:"beta" toml:"beta"`
	EntropyK        float64 `json:"entropy_k" yaml:"entropy_k" toml:"entropy_k"`
	EntropyBinWidth float64 `json:"entropy_bin_width" yaml:"entropy_bin_width" toml:"entropy_bin_width"`
	MaxBins         int     `json:"max_bins" yaml:"max_bins" toml:"max_bins"`
}

type Detection struct {
	SeparationTolerance float64 `json:"separation_tolerance" yaml:"separation_tolerance" toml:"separation_tolerance"`
	Significance        float64 `json:"significance" yaml:"significance" toml:"significance"`
	MaxLag              int     `json:"max_lag" yaml:"max_lag" toml:"max_lag"`
}

type Mismatch struct {
	MaxChern int `json:"max_chern" yaml:"max_chern" toml:"max_chern"`
	Trials   int `json:"trials" yaml:"trials" toml:"trials"`
}

// File is the on-disk experiment description.
type File struct {
	Bits        string       `json:"bits" yaml:"bits" toml:"bits"`
	Schemes     []string     `json:"schemes" yaml:"schemes" toml:"schemes"`
	Functionals []string     `json:"functionals" yaml:"functionals" toml:"functionals"`
	Nodes       []model.Node `json:"nodes" yaml:"nodes" toml:"nodes"`
	Pairs       []sweep.Pair `json:"pairs" yaml:"pairs" toml:"pairs"`
	Workers     int          `json:"workers" yaml:"workers" toml:"workers"`

	Numeric    Numeric    `json:"numeric" yaml:"numeric" toml:"numeric"`
	Drive      Drive      `json:"drive" yaml:"drive" toml:"drive"`
	Functional Functional `json:"functional" yaml:"functional" toml:"functional"`
	Detection  Detection  `json:"detection" yaml:"detection" toml:"detection"`
	Mismatch   Mismatch   `json:"mismatch" yaml:"mismatch" toml:"mismatch"`
}

// Default returns the settings a file starts from before decoding. Sigma is
// left unset: it has no canonical value and every file must choose one.
func Default() File {
	fp := functional.DefaultParams()
	dp := detection.DefaultOptions()
	return File{
		Bits:        "1010101010",
		Schemes:     schemeNames(modulation.AllSchemes()),
		Functionals: functionalNames(functional.All()),
		Nodes: []model.Node{
			{ID: "tx-3", Chern: 3, Role: model.RoleTransmitter},
			{ID: "rx-3", Chern: 3, Role: model.RoleReceiver},
			{ID: "rx-2", Chern: 2, Role: model.RoleReceiver},
		},
		Numeric: Numeric{
			Dt:       0.01,
			Gamma:    1,
			Mass:     1,
			GUnit:    1,
			NoiseStd: 0.01,
			Seed:     1,
		},
		Drive: Drive{
			Carrier:     1,
			BitDuration: 20,
			Amplitude:   0.01,
		},
		Functional: Functional{
			Alpha:           fp.Alpha,
			Beta:            fp.Beta,
			EntropyK:        fp.EntropyK,
			EntropyBinWidth: fp.EntropyBinWidth,
			MaxBins:         fp.MaxBins,
		},
		Detection: Detection{
			SeparationTolerance: dp.SeparationTolerance,
			Significance:        dp.Significance,
			MaxLag:              dp.MaxLag,
		},
		Mismatch: Mismatch{MaxChern: 4, Trials: 8},
	}
}

// Template is the file written by `init`: the defaults plus a chosen sigma.
func Template() File {
	f := Default()
	f.Numeric.Sigma = 0.3
	return f
}

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// Load decodes path over Default. The format follows the extension: .yaml and
// .yml use YAML, .toml uses TOML and .json uses JSON. The default nodes only
// apply when the file names neither nodes nor pairs.
func Load(path string) (File, error) {
	cfg := Default()
	defaultNodes := cfg.Nodes
	cfg.Nodes = nil
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()

	switch format(path) {
	case "yaml":
		dec := yaml.NewDecoder(bufio.NewReader(f))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
	case "toml":
		err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
		var lineErr *toml.LineError
		if errors.As(err, &lineErr) {
			err = errors.New(path + ", " + err.Error())
		}
	case "json":
		dec := json.NewDecoder(bufio.NewReader(f))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	default:
		return File{}, fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return File{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if len(cfg.Nodes) == 0 && len(cfg.Pairs) == 0 {
		cfg.Nodes = defaultNodes
	}
	return cfg, nil
}

// Write encodes cfg to path in the format chosen by its extension.
func Write(path string, cfg File) error {
	var (
		data []byte
		err  error
	)
	switch format(path) {
	case "yaml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(cfg); err == nil {
			err = enc.Close()
		}
		data = buf.Bytes()
	case "toml":
		data, err = tomlSettings.Marshal(&cfg)
	case "json":
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return fmt.Errorf("encode config %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	default:
		return ""
	}
}

// Experiment resolves names and numbers into a sweep configuration.
func (f File) Experiment() (sweep.Experiment, error) {
	if !(f.Numeric.Sigma > 0) {
		return sweep.Experiment{}, fmt.Errorf("%w: sigma is required and must be > 0", model.ErrInvalidParameter)
	}
	bits, err := modulation.ParseBits(f.Bits)
	if err != nil {
		return sweep.Experiment{}, err
	}
	schemes, err := ParseSchemes(f.Schemes)
	if err != nil {
		return sweep.Experiment{}, err
	}
	kinds, err := ParseFunctionals(f.Functionals)
	if err != nil {
		return sweep.Experiment{}, err
	}
	var shift [2]float64
	switch len(f.Drive.Shift) {
	case 0:
	case 2:
		shift = [2]float64{f.Drive.Shift[0], f.Drive.Shift[1]}
	default:
		return sweep.Experiment{}, fmt.Errorf("%w: drive shift needs exactly two frequencies, got %d", model.ErrInvalidParameter, len(f.Drive.Shift))
	}
	for _, node := range f.Nodes {
		if node.Role != model.RoleTransmitter && node.Role != model.RoleReceiver {
			return sweep.Experiment{}, fmt.Errorf("%w: node %q has unknown role %q", model.ErrInvalidParameter, node.ID, node.Role)
		}
	}

	det := detection.Options{
		SeparationTolerance: f.Detection.SeparationTolerance,
		Significance:        f.Detection.Significance,
		MaxLag:              f.Detection.MaxLag,
	}
	if err := det.Validate(); err != nil {
		return sweep.Experiment{}, err
	}

	n := f.Numeric
	return sweep.Experiment{
		Bits:        bits,
		Schemes:     schemes,
		Functionals: kinds,
		Pairs:       append([]sweep.Pair(nil), f.Pairs...),
		Nodes:       append([]model.Node(nil), f.Nodes...),
		Field: field.Params{
			Dt:               n.Dt,
			Steps:            n.Steps,
			Gamma:            n.Gamma,
			Mass:             n.Mass,
			NoiseStd:         n.NoiseStd,
			Seed:             n.Seed,
			InitialAmplitude: n.InitialAmplitude,
			InitialVelocity:  n.InitialVelocity,
		},
		Topology: topology.Config{GUnit: n.GUnit, Sigma: n.Sigma, LeakageFloor: n.LeakageFloor},
		Drive: sweep.Drive{
			Carrier:     f.Drive.Carrier,
			Shift:       shift,
			BitDuration: f.Drive.BitDuration,
			Amplitude:   f.Drive.Amplitude,
		},
		FunctionalParams: functional.Params{
			Alpha:           f.Functional.Alpha,
			Beta:            f.Functional.Beta,
			EntropyK:        f.Functional.EntropyK,
			EntropyBinWidth: f.Functional.EntropyBinWidth,
			MaxBins:         f.Functional.MaxBins,
		},
		Detection: det,
		Workers:   f.Workers,
	}, nil
}

// ParseSchemes accepts names or a single comma separated list entry.
func ParseSchemes(names []string) ([]modulation.Scheme, error) {
	var out []modulation.Scheme
	for _, name := range splitNames(names) {
		s, err := modulation.ParseScheme(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func ParseFunctionals(names []string) ([]functional.Kind, error) {
	var out []functional.Kind
	for _, name := range splitNames(names) {
		k, err := functional.ParseKind(name)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func splitNames(names []string) []string {
	var out []string
	for _, entry := range names {
		for _, name := range strings.Split(entry, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func schemeNames(schemes []modulation.Scheme) []string {
	out := make([]string, len(schemes))
	for i, s := range schemes {
		out[i] = s.String()
	}
	return out
}

func functionalNames(kinds []functional.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}
