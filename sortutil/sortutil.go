// Package sortutil implements the External Sorter: given a staging file,
// produce a stable, sort-unique-by-line, byte-order (C-locale) version of
// it with every row for a given first-column key contiguous. The contract
// is the observable output; the mechanism is substitutable, matching §4.3
// and §9's "shelled sort vs in-process sort" note.
package sortutil

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/logger"
)

var log = logger.Get(logger.SubsystemTags.SORT)

// Config controls how the sort is carried out.
type Config struct {
	// CommandTemplate, if non-empty, is a shell command template with
	// three substitutions applied in order: source path, approximate
	// line count, destination path — mirroring system_sort_command in
	// the settings file. An empty template falls back to the in-process
	// merge sort.
	CommandTemplate string
	// MemoryBudgetRows bounds the in-process fallback's run size.
	MemoryBudgetRows int
}

const defaultMemoryBudgetRows = 500000

// Sort reads the gzip-compressed CSV file at src, and writes a
// gzip-compressed, sorted, line-unique version to dst.
func Sort(ctx context.Context, src, dst string, cfg Config) error {
	if cfg.CommandTemplate != "" {
		return sortWithCommand(ctx, src, dst, cfg)
	}
	return sortInProcess(src, dst, cfg)
}

// sortWithCommand substitutes source/line-count/destination into the
// configured template and shells out to it, the Go analogue of the
// original's `os.system(system_sort_command % (...))` call.
func sortWithCommand(ctx context.Context, src, dst string, cfg Config) error {
	lineCount, err := countLines(src)
	if err != nil {
		return errors.Wrapf(err, "counting lines in %q", src)
	}

	cmdline := cfg.CommandTemplate
	cmdline = substitute(cmdline, src, strconv.Itoa(lineCount), dst)

	log.Infof("sorting %s via external command (%d lines)", src, lineCount)
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "external sort command failed: %s", cmdline)
	}
	return nil
}

// substitute fills in the three %s-style placeholders of a sort command
// template, in order: source, line count, destination.
func substitute(template, src, lineCount, dst string) string {
	args := []string{src, lineCount, dst}
	var b strings.Builder
	argIdx := 0
	for i := 0; i < len(template); i++ {
		if template[i] == '%' && i+1 < len(template) && template[i+1] == 's' && argIdx < len(args) {
			b.WriteString(args[argIdx])
			argIdx++
			i++
			continue
		}
		b.WriteByte(template[i])
	}
	return b.String()
}

func countLines(path string) (int, error) {
	r, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, err
	}
	defer gz.Close()

	count := 0
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}

// sortInProcess is a bounded-memory external merge sort fallback, used
// when no system_sort_command is configured. It splits src into runs of
// at most MemoryBudgetRows lines, sorts each run in memory, and performs a
// k-way merge, deduplicating adjacent-equal lines as it writes dst.
func sortInProcess(src, dst string, cfg Config) error {
	budget := cfg.MemoryBudgetRows
	if budget <= 0 {
		budget = defaultMemoryBudgetRows
	}

	runFiles, err := writeSortedRuns(src, budget)
	if err != nil {
		return err
	}
	defer func() {
		for _, f := range runFiles {
			os.Remove(f)
		}
	}()

	return mergeRuns(runFiles, dst)
}

func writeSortedRuns(src string, budget int) ([]string, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", src)
	}
	defer in.Close()
	gz, err := gzip.NewReader(in)
	if err != nil {
		return nil, errors.Wrapf(err, "opening gzip stream %q", src)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var runFiles []string
	buf := make([]string, 0, budget)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		sort.Strings(buf)
		path, err := writeRun(buf)
		if err != nil {
			return err
		}
		runFiles = append(runFiles, path)
		buf = buf[:0]
		return nil
	}

	for scanner.Scan() {
		buf = append(buf, scanner.Text())
		if len(buf) >= budget {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return runFiles, nil
}

func writeRun(lines []string) (string, error) {
	f, err := os.CreateTemp("", "addrindex-sort-run-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			return "", err
		}
		if err := w.WriteByte('\n'); err != nil {
			return "", err
		}
	}
	return f.Name(), w.Flush()
}

// mergeRuns performs a k-way merge of sorted run files into a gzip CSV
// destination, dropping consecutive duplicate lines (sort -u semantics).
func mergeRuns(runFiles []string, dst string) error {
	readers := make([]*bufio.Scanner, len(runFiles))
	files := make([]*os.File, len(runFiles))
	heads := make([]string, len(runFiles))
	live := make([]bool, len(runFiles))

	for i, path := range runFiles {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		files[i] = f
		s := bufio.NewScanner(f)
		s.Buffer(make([]byte, 64*1024), 8*1024*1024)
		readers[i] = s
		if s.Scan() {
			heads[i] = s.Text()
			live[i] = true
		}
	}
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	gz, err := gzip.NewWriterLevel(out, gzip.BestSpeed)
	if err != nil {
		return err
	}
	defer gz.Close()
	w := bufio.NewWriter(gz)
	defer w.Flush()

	var lastWritten string
	haveWritten := false

	for {
		minIdx := -1
		for i := range heads {
			if !live[i] {
				continue
			}
			if minIdx == -1 || heads[i] < heads[minIdx] {
				minIdx = i
			}
		}
		if minIdx == -1 {
			break
		}

		if !haveWritten || heads[minIdx] != lastWritten {
			if _, err := fmt.Fprintln(w, heads[minIdx]); err != nil {
				return err
			}
			lastWritten = heads[minIdx]
			haveWritten = true
		}

		if readers[minIdx].Scan() {
			heads[minIdx] = readers[minIdx].Text()
		} else {
			live[minIdx] = false
		}
	}

	return w.Flush()
}
