package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"

	"coherence/internal/model"
)

// Options control terminal rendering.
type Options struct {
	Color bool
	// Now anchors relative timestamps. Zero uses time.Now.
	Now time.Time
}

// ColorEnabled reports whether f is an interactive terminal.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type palette struct {
	ok, failed, warn, bold *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		ok:     color.New(color.FgGreen),
		failed: color.New(color.FgRed),
		warn:   color.New(color.FgYellow),
		bold:   color.New(color.Bold),
	}
	for _, c := range []*color.Color{p.ok, p.failed, p.warn, p.bold} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetColumnSeparator(" ")
	table.SetCenterSeparator(" ")
	table.SetHeaderLine(true)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetHeaderAlignment(tablewriter.ALIGN_RIGHT)
	return table
}

// Leaderboard renders rows in their stored order, best first.
func Leaderboard(w io.Writer, lb model.Leaderboard, opts Options) error {
	if len(lb.Rows) == 0 {
		_, err := fmt.Fprintln(w, "no leaderboard rows")
		return err
	}
	p := newPalette(opts.Color)
	table := newTable(w, []string{"#", "modulation", "functional", "tx", "rx", "seed", "status", "ber", "accuracy", "errors", "n", "delta_mu", "threshold", "corr", "note"})
	failed := 0
	for i, row := range lb.Rows {
		status := p.ok.Sprint(string(row.Status))
		note := ""
		switch {
		case row.Status == model.RowFailed:
			failed++
			status = p.failed.Sprint(string(row.Status))
			note = row.ErrorKind
		case row.Degenerate:
			note = p.warn.Sprint("degenerate")
		case row.Matched():
			note = "matched"
		}
		errs := "-"
		if row.Errors != nil {
			errs = strconv.Itoa(*row.Errors)
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			row.Scheme,
			row.Functional,
			strconv.Itoa(row.TxChern),
			strconv.Itoa(row.RxChern),
			strconv.FormatInt(row.Seed, 10),
			status,
			optFloat(row.BER, 4),
			optFloat(row.Accuracy, 4),
			errs,
			strconv.Itoa(row.N),
			optExp(row.Separation),
			optSig(row.Threshold, 6),
			optFloat(row.Correlation, 3),
			note,
		})
	}
	table.Render()
	_, err := fmt.Fprintf(w, "%s rows, %s failed\n", humanize.Comma(int64(len(lb.Rows))), humanize.Comma(int64(failed)))
	return err
}

// Mismatch renders the mean accuracy matrix (transmitters down, receivers
// across) followed by the per-transmitter selectivity ratios.
func Mismatch(w io.Writer, m model.MismatchMatrix, opts Options) error {
	p := newPalette(opts.Color)
	if _, err := fmt.Fprintf(w, "scheme=%s functional=%s trials=%d\n", m.Scheme, m.Functional, m.Trials); err != nil {
		return err
	}
	header := []string{"tx\\rx"}
	for rx := 0; rx <= m.MaxChern; rx++ {
		header = append(header, strconv.Itoa(rx))
	}
	table := newTable(w, header)
	for tx := 0; tx <= m.MaxChern; tx++ {
		record := []string{strconv.Itoa(tx)}
		for rx := 0; rx <= m.MaxChern; rx++ {
			cell, ok := m.Cell(tx, rx)
			switch {
			case !ok:
				record = append(record, "-")
			case cell.MeanAccuracy == nil:
				record = append(record, p.failed.Sprint("failed"))
			case tx == rx:
				record = append(record, p.bold.Sprint(optFloat(cell.MeanAccuracy, 3)))
			default:
				record = append(record, optFloat(cell.MeanAccuracy, 3))
			}
		}
		table.Append(record)
	}
	table.Render()
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	sel := newTable(w, []string{"tx", "matched_corr", "mismatched_std", "ratio"})
	for _, s := range m.Selectivity {
		ratio := p.warn.Sprint("undefined")
		if s.Ratio != nil {
			ratio = strconv.FormatFloat(*s.Ratio, 'f', 2, 64)
		}
		sel.Append([]string{
			strconv.Itoa(s.TxChern),
			optFloat(s.MatchedCorrelation, 3),
			strconv.FormatFloat(s.MismatchedStd, 'f', 3, 64),
			ratio,
		})
	}
	sel.Render()
	return nil
}

// Runs lists stored runs with relative creation times.
func Runs(w io.Writer, runs []model.RunRecord, opts Options) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs found")
		return err
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	p := newPalette(opts.Color)
	table := newTable(w, []string{"run_id", "kind", "created", "seed", "rows", "failed", "best_ber"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	for _, run := range runs {
		created := run.CreatedAtUTC
		if ts, err := time.Parse(time.RFC3339Nano, run.CreatedAtUTC); err == nil {
			created = humanize.RelTime(ts, now, "ago", "from now")
		}
		failed := humanize.Comma(int64(run.FailedRows))
		if run.FailedRows > 0 {
			failed = p.failed.Sprint(failed)
		}
		table.Append([]string{
			run.ID,
			run.Kind,
			created,
			strconv.FormatInt(run.Seed, 10),
			humanize.Comma(int64(run.Rows)),
			failed,
			optFloat(run.BestBER, 4),
		})
	}
	table.Render()
	return nil
}

// Elapsed prints a one-line completion summary for a command.
func Elapsed(w io.Writer, what string, items int, d time.Duration) error {
	_, err := fmt.Fprintf(w, "%s: %s items in %s\n", what, humanize.Comma(int64(items)), d.Round(time.Millisecond))
	return err
}

func optFloat(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func optSig(v *float64, digits int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', digits, 64)
}

func optExp(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'e', 2, 64)
}
