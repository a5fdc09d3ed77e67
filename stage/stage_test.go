package stage

import (
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vout.csv.gz")

	w, err := NewWriter(path, gzip.BestSpeed)
	if err != nil {
		t.Fatalf("NewWriter: %s", err)
	}
	rows := [][]string{
		{"txid1", "0", "addr1", "100", "10", "hash1", "1000", "1", "2"},
		{"txid1", "1", "addr2", "200", "10", "hash1", "1000", "1", "2"},
	}
	for _, row := range rows {
		if err := w.WriteRow(row...); err != nil {
			t.Fatalf("WriteRow: %s", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %s", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %s", err)
	}
	defer r.Close()

	var got [][]string
	if err := r.ReadAll(func(row []string) error {
		got = append(got, append([]string(nil), row...))
		return nil
	}); err != nil {
		t.Fatalf("ReadAll: %s", err)
	}

	if len(got) != len(rows) {
		t.Fatalf("got %d rows, want %d", len(got), len(rows))
	}
	for i, row := range rows {
		if len(got[i]) != len(row) {
			t.Fatalf("row %d: got %v, want %v", i, got[i], row)
		}
		for j, field := range row {
			if got[i][j] != field {
				t.Fatalf("row %d field %d: got %q, want %q", i, j, got[i][j], field)
			}
		}
	}
}

func TestTablesFixedOrder(t *testing.T) {
	want := []string{Vout, Address, VinSpent, VinTxid, Coinbase, Block}
	got := Tables()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
