package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"coherence/internal/model"
)

func TestDecodeRunFixture(t *testing.T) {
	run, err := DecodeRun(readFixture(t, "run_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.Kind != "sweep" || run.Rows != 4 || run.FailedRows != 2 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.BestBER == nil || *run.BestBER != 0 {
		t.Fatalf("expected best ber 0, got %v", run.BestBER)
	}
}

func TestDecodeLeaderboardFixture(t *testing.T) {
	board, err := DecodeLeaderboard(readFixture(t, "leaderboard_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if len(board.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(board.Rows))
	}
	best := board.Rows[0]
	if best.Scheme != "amplitude" || best.BER == nil || *best.BER != 0 || !best.Matched() {
		t.Fatalf("unexpected best row: %+v", best)
	}
	for _, row := range board.Rows[2:] {
		if row.Status != model.RowFailed || row.BER != nil || row.Accuracy != nil {
			t.Fatalf("failed row decoded with metrics: %+v", row)
		}
	}
	if board.Rows[3].ErrorKind != model.KindNumericalInstability {
		t.Fatalf("unexpected error kind: %s", board.Rows[3].ErrorKind)
	}
}

func TestDecodeMismatchFixture(t *testing.T) {
	matrix, err := DecodeMismatch(readFixture(t, "mismatch_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	cell, ok := matrix.Cell(1, 1)
	if !ok || cell.MeanAccuracy == nil || *cell.MeanAccuracy != 1 {
		t.Fatalf("unexpected matched cell: %+v ok=%v", cell, ok)
	}
	if matrix.Selectivity[0].Ratio != nil {
		t.Fatal("expected undefined ratio for the trivial transmitter")
	}
	if r := matrix.Selectivity[1].Ratio; r == nil || *r != 4.62 {
		t.Fatalf("unexpected ratio: %v", r)
	}
}

func TestEncodeDecodeLeaderboardKeepsFailedRowsEmpty(t *testing.T) {
	board := sampleLeaderboard("run-1")
	data, err := EncodeLeaderboard(board)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeLeaderboard(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(board, decoded); diff != "" {
		t.Fatalf("leaderboard changed (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	cases := map[string]func([]byte) error{
		"run": func(b []byte) error {
			_, err := DecodeRun(b)
			return err
		},
		"leaderboard": func(b []byte) error {
			_, err := DecodeLeaderboard(b)
			return err
		},
		"mismatch": func(b []byte) error {
			_, err := DecodeMismatch(b)
			return err
		},
	}
	for name, decode := range cases {
		err := decode([]byte(`{"schema_version":2,"codec_version":1}`))
		if !errors.Is(err, ErrVersionMismatch) {
			t.Fatalf("%s: expected version mismatch, got %v", name, err)
		}
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := DecodeLeaderboard([]byte(`{"rows":`)); err == nil {
		t.Fatal("expected malformed payload error")
	}
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}
