package sortutil

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
)

func writeGzipLines(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	defer gz.Close()
	for _, l := range lines {
		if _, err := gz.Write([]byte(l + "\n")); err != nil {
			t.Fatal(err)
		}
	}
}

func readGzipLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer gz.Close()

	var lines []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func TestSortInProcessDedupesAndOrders(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.csv.gz")
	dst := filepath.Join(dir, "out.csv.gz")

	writeGzipLines(t, src, []string{
		"charlie,3",
		"alice,1",
		"bob,2",
		"alice,1",
		"bob,9",
	})

	if err := Sort(context.Background(), src, dst, Config{MemoryBudgetRows: 2}); err != nil {
		t.Fatalf("Sort: %s", err)
	}

	got := readGzipLines(t, dst)
	want := []string{"alice,1", "bob,2", "bob,9", "charlie,3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSortInProcessEmptyInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.csv.gz")
	dst := filepath.Join(dir, "out.csv.gz")
	writeGzipLines(t, src, nil)

	if err := Sort(context.Background(), src, dst, Config{}); err != nil {
		t.Fatalf("Sort: %s", err)
	}
	if got := readGzipLines(t, dst); len(got) != 0 {
		t.Fatalf("expected no lines, got %v", got)
	}
}

func TestSubstitute(t *testing.T) {
	got := substitute("sort %s | uniq > %s # %s lines", "src.csv", "42", "dst.csv")
	want := "sort src.csv | uniq > 42 # dst.csv lines"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
