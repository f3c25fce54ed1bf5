package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"coherence/internal/config"
	"coherence/internal/model"
	"coherence/internal/sweep"
)

// experimentFlags are the config overrides shared by sweep, mismatch, run and trace.
type experimentFlags struct {
	configPath  *string
	bits        *string
	schemes     *string
	functionals *string
	pairs       *string
	seed        *int64
	sigma       *float64
	gUnit       *float64
	gamma       *float64
	mass        *float64
	dt          *float64
	steps       *int
	noise       *float64
	carrier     *float64
	bitDuration *float64
	amplitude   *float64
	workers     *int
}

func registerExperimentFlags(fs *flag.FlagSet) *experimentFlags {
	def := config.Template()
	return &experimentFlags{
		configPath:  fs.String("config", "", "experiment config file (.yaml, .yml, .toml or .json)"),
		bits:        fs.String("bits", def.Bits, "transmitted bit sequence"),
		schemes:     fs.String("schemes", strings.Join(def.Schemes, ","), "modulation schemes: amplitude,phase,frequency_shift"),
		functionals: fs.String("functionals", strings.Join(def.Functionals, ","), "functionals: gradient,energy,phase,entropy,hybrid"),
		pairs:       fs.String("pairs", "", "topology pairs as tx:rx list, e.g. 3:3,3:2"),
		seed:        fs.Int64("seed", def.Numeric.Seed, "base random seed"),
		sigma:       fs.Float64("sigma", def.Numeric.Sigma, "topological selectivity width"),
		gUnit:       fs.Float64("g-unit", def.Numeric.GUnit, "coupling unit"),
		gamma:       fs.Float64("gamma", def.Numeric.Gamma, "field damping"),
		mass:        fs.Float64("mass", def.Numeric.Mass, "field mass"),
		dt:          fs.Float64("dt", def.Numeric.Dt, "integration step"),
		steps:       fs.Int("steps", def.Numeric.Steps, "integration steps (0 fits the bit sequence)"),
		noise:       fs.Float64("noise", def.Numeric.NoiseStd, "field noise standard deviation"),
		carrier:     fs.Float64("carrier", def.Drive.Carrier, "carrier angular frequency"),
		bitDuration: fs.Float64("bit-duration", def.Drive.BitDuration, "bit duration in time units"),
		amplitude:   fs.Float64("amplitude", def.Drive.Amplitude, "drive amplitude"),
		workers:     fs.Int("workers", 4, "parallel simulations"),
	}
}

// load reads the config file (or the built-in template) and applies the flags
// that were set explicitly on the command line.
func (f *experimentFlags) load(fs *flag.FlagSet) (config.File, error) {
	setFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) {
		setFlags[fl.Name] = true
	})

	cfg := config.Template()
	if *f.configPath != "" {
		loaded, err := config.Load(*f.configPath)
		if err != nil {
			return config.File{}, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	err := overrideFromFlags(&cfg, setFlags, map[string]any{
		"bits":         *f.bits,
		"schemes":      *f.schemes,
		"functionals":  *f.functionals,
		"pairs":        *f.pairs,
		"seed":         *f.seed,
		"sigma":        *f.sigma,
		"g-unit":       *f.gUnit,
		"gamma":        *f.gamma,
		"mass":         *f.mass,
		"dt":           *f.dt,
		"steps":        *f.steps,
		"noise":        *f.noise,
		"carrier":      *f.carrier,
		"bit-duration": *f.bitDuration,
		"amplitude":    *f.amplitude,
		"workers":      *f.workers,
	})
	if err != nil {
		return config.File{}, err
	}
	return cfg, nil
}

func overrideFromFlags(cfg *config.File, set map[string]bool, flagValue map[string]any) error {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "bits":
			cfg.Bits = v.(string)
		case "schemes":
			cfg.Schemes = parseCommaSeparated(v.(string))
		case "functionals":
			cfg.Functionals = parseCommaSeparated(v.(string))
		case "pairs":
			pairs, err := parsePairs(v.(string))
			if err != nil {
				return err
			}
			cfg.Pairs = pairs
		case "seed":
			cfg.Numeric.Seed = v.(int64)
		case "sigma":
			cfg.Numeric.Sigma = v.(float64)
		case "g-unit":
			cfg.Numeric.GUnit = v.(float64)
		case "gamma":
			cfg.Numeric.Gamma = v.(float64)
		case "mass":
			cfg.Numeric.Mass = v.(float64)
		case "dt":
			cfg.Numeric.Dt = v.(float64)
		case "steps":
			cfg.Numeric.Steps = v.(int)
		case "noise":
			cfg.Numeric.NoiseStd = v.(float64)
		case "carrier":
			cfg.Drive.Carrier = v.(float64)
		case "bit-duration":
			cfg.Drive.BitDuration = v.(float64)
		case "amplitude":
			cfg.Drive.Amplitude = v.(float64)
		case "workers":
			cfg.Workers = v.(int)
		}
	}
	return nil
}

func parseCommaSeparated(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parsePairs reads "tx:rx" entries separated by commas.
func parsePairs(raw string) ([]sweep.Pair, error) {
	var pairs []sweep.Pair
	for _, item := range parseCommaSeparated(raw) {
		pair, err := parsePair(item)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func parsePair(raw string) (sweep.Pair, error) {
	tx, rx, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return sweep.Pair{}, fmt.Errorf("%w: pair %q must look like tx:rx", model.ErrInvalidParameter, raw)
	}
	txChern, err := strconv.Atoi(strings.TrimSpace(tx))
	if err != nil {
		return sweep.Pair{}, fmt.Errorf("%w: pair %q: %v", model.ErrInvalidParameter, raw, err)
	}
	rxChern, err := strconv.Atoi(strings.TrimSpace(rx))
	if err != nil {
		return sweep.Pair{}, fmt.Errorf("%w: pair %q: %v", model.ErrInvalidParameter, raw, err)
	}
	return sweep.Pair{TxChern: txChern, RxChern: rxChern}, nil
}
