package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"coherence/internal/model"
)

// FunctionalSeries is one functional's per-bit values with its decision.
type FunctionalSeries struct {
	Name      string
	Values    []float64
	Decoded   []int
	Threshold float64
}

// WriteTraceCSV writes traces.csv with one column per channel amplitude. The
// drive column is omitted when drive is nil. stride > 1 keeps every stride-th sample.
func WriteTraceCSV(runDir string, drive []float64, traces []model.FieldTrace, stride int) error {
	if len(traces) == 0 {
		return fmt.Errorf("at least one trace is required")
	}
	n := traces[0].Len()
	for _, tr := range traces[1:] {
		if tr.Len() != n {
			return fmt.Errorf("trace for chern %d has %d samples, want %d", tr.Chern, tr.Len(), n)
		}
	}
	if drive != nil && len(drive) != n {
		return fmt.Errorf("drive has %d samples, want %d", len(drive), n)
	}
	if stride < 1 {
		stride = 1
	}

	file, err := os.Create(filepath.Join(runDir, "traces.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	header := []string{"step", "time"}
	if drive != nil {
		header = append(header, "drive")
	}
	for _, tr := range traces {
		header = append(header, fmt.Sprintf("chern_%d", tr.Chern))
	}
	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for i := 0; i < n; i += stride {
		record = record[:0]
		record = append(record, strconv.Itoa(i), formatFloat(traces[0].Time(i)))
		if drive != nil {
			record = append(record, formatFloat(drive[i]))
		}
		for _, tr := range traces {
			record = append(record, formatFloat(tr.Amplitude[i]))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFunctionalsCSV writes functionals.csv: one line per bit window with the
// transmitted bit, each functional's value and its decoded bit.
func WriteFunctionalsCSV(runDir string, bits []int, series []FunctionalSeries) error {
	for _, s := range series {
		if len(s.Values) != len(bits) || len(s.Decoded) != len(bits) {
			return fmt.Errorf("functional %s has %d values and %d decisions for %d bits", s.Name, len(s.Values), len(s.Decoded), len(bits))
		}
	}

	file, err := os.Create(filepath.Join(runDir, "functionals.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	header := []string{"bit_index", "bit"}
	for _, s := range series {
		header = append(header, s.Name, s.Name+"_decoded")
	}
	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for k, bit := range bits {
		record := []string{strconv.Itoa(k), strconv.Itoa(bit)}
		for _, s := range series {
			record = append(record, formatFloat(s.Values[k]), strconv.Itoa(s.Decoded[k]))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	thresholds := []string{"threshold", ""}
	for _, s := range series {
		thresholds = append(thresholds, formatFloat(s.Threshold), "")
	}
	if err := writer.Write(thresholds); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
