package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coherence/internal/functional"
	"coherence/internal/model"
	"coherence/internal/modulation"
	"coherence/internal/sweep"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeFile(t, "exp.yaml", `
bits: "1100"
schemes: [phase]
functionals: [energy, entropy]
pairs:
  - {tx_chern: 2, rx_chern: 1}
numeric:
  sigma: 0.5
  seed: 9
drive:
  amplitude: 0.02
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1100", cfg.Bits)
	assert.Equal(t, []string{"phase"}, cfg.Schemes)
	assert.Equal(t, 0.5, cfg.Numeric.Sigma)
	assert.Equal(t, int64(9), cfg.Numeric.Seed)
	assert.Equal(t, 0.01, cfg.Numeric.Dt)
	assert.Equal(t, 20.0, cfg.Drive.BitDuration)
	assert.Equal(t, 0.02, cfg.Drive.Amplitude)
	assert.Empty(t, cfg.Nodes, "explicit pairs suppress the default nodes")

	exp, err := cfg.Experiment()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 0, 0}, exp.Bits)
	assert.Equal(t, []modulation.Scheme{modulation.Phase}, exp.Schemes)
	assert.Equal(t, []functional.Kind{functional.EnergyLike, functional.Entropy}, exp.Functionals)
	assert.Equal(t, []sweep.Pair{{TxChern: 2, RxChern: 1}}, exp.Pairs)
	assert.Equal(t, 0.5, exp.Topology.Sigma)
	assert.Equal(t, int64(9), exp.Field.Seed)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "exp.toml", `
bits = "10"
schemes = ["frequency_shift"]
functionals = ["gradient"]
workers = 2

[[nodes]]
id = "a"
chern = 4
role = "transmitter"

[[nodes]]
id = "b"
chern = 4
role = "receiver"
noise_std = 0.2

[numeric]
sigma = 0.25
gamma = 2.0

[drive]
shift = [0.1, 0.2]

[mismatch]
max_chern = 2
trials = 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, Mismatch{MaxChern: 2, Trials: 3}, cfg.Mismatch)
	require.Len(t, cfg.Nodes, 2)
	assert.Equal(t, model.Node{ID: "b", Chern: 4, Role: model.RoleReceiver, NoiseStd: 0.2}, cfg.Nodes[1])

	exp, err := cfg.Experiment()
	require.NoError(t, err)
	assert.Equal(t, [2]float64{0.1, 0.2}, exp.Drive.Shift)
	assert.Equal(t, 2.0, exp.Field.Gamma)
	assert.Equal(t, []sweep.Pair{{TxChern: 4, RxChern: 4}}, exp.ResolvePairs())
}

func TestLoadTOMLUnknownFieldNamesFile(t *testing.T) {
	path := writeFile(t, "bad.toml", "bogus = 1\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.toml")
}

func TestLoadRejectsUnknownYAMLAndJSONFields(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "bogus: 1\n"))
	require.Error(t, err)
	_, err = Load(writeFile(t, "bad.json", `{"bogus": 1}`))
	require.Error(t, err)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load(writeFile(t, "exp.ini", "x=1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestWriteLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"exp.yaml", "exp.yml", "exp.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			want := Template()
			require.NoError(t, Write(path, want))

			got, err := Load(path)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTemplateBuildsExperiment(t *testing.T) {
	exp, err := Template().Experiment()
	require.NoError(t, err)
	require.NoError(t, exp.Validate())
	assert.Len(t, exp.Schemes, 3)
	assert.Len(t, exp.Functionals, 5)
	assert.Equal(t, []sweep.Pair{{TxChern: 3, RxChern: 3}, {TxChern: 3, RxChern: 2}}, exp.ResolvePairs())
}

func TestExperimentRequiresSigma(t *testing.T) {
	_, err := Default().Experiment()
	require.ErrorIs(t, err, model.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "sigma")
}

func TestExperimentRejectsBadValues(t *testing.T) {
	cases := map[string]func(*File){
		"bits":         func(f *File) { f.Bits = "10x" },
		"scheme":       func(f *File) { f.Schemes = []string{"qam"} },
		"functional":   func(f *File) { f.Functionals = []string{"torsion"} },
		"shift":        func(f *File) { f.Drive.Shift = []float64{1} },
		"role":         func(f *File) { f.Nodes[0].Role = "relay" },
		"significance": func(f *File) { f.Detection.Significance = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := Template()
			mutate(&f)
			_, err := f.Experiment()
			require.ErrorIs(t, err, model.ErrInvalidParameter)
		})
	}
}

func TestParseSchemesSplitsCommaLists(t *testing.T) {
	got, err := ParseSchemes([]string{"amplitude, phase", "frequency_shift"})
	require.NoError(t, err)
	assert.Equal(t, []modulation.Scheme{modulation.Amplitude, modulation.Phase, modulation.FrequencyShift}, got)
}
