// Package group implements the six Groupers: each streams one sorted
// staging file, accumulates every row sharing the current first-column
// key into a single JSON document, and either writes a bulk-load TSV
// (initial mode) or upserts the store directly (incremental mode).
package group

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/logger"
	"github.com/jeremyandrews/addrindex/stage"
	"github.com/jeremyandrews/addrindex/store"
)

var log = logger.Get(logger.SubsystemTags.GRUP)

// Mode selects bulk (initial load) or upsert (incremental) grouping.
type Mode int

const (
	ModeBulk Mode = iota
	ModeUpsert
)

// Result reports how many keys (documents) a grouper produced.
type Result struct {
	Documents int64
	Skipped   int64
}

// forEachGroup scans a sorted stage reader and invokes fn once per
// contiguous run of rows sharing the same first-column key — the External
// Sorter's contract guarantees every key's rows are contiguous, so a
// single current-key accumulator suffices; no sorting happens here.
func forEachGroup(r *stage.Reader, fn func(key string, rows [][]string) error) error {
	var curKey string
	var curRows [][]string
	seenAny := false

	flush := func() error {
		if len(curRows) == 0 {
			return nil
		}
		return fn(curKey, curRows)
	}

	for {
		row, err := r.ReadRow()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		key := row[0]
		if seenAny && key != curKey {
			if err := flush(); err != nil {
				return err
			}
			curRows = curRows[:0]
		}
		curKey = key
		seenAny = true
		curRows = append(curRows, row)
	}
	return flush()
}

// tsvWriter accumulates key\tjson\n rows for a bulk-mode load, escaping
// backslashes and tabs so the loader's FIELDS TERMINATED BY '\t' ESCAPED
// BY '\\' contract holds.
type tsvWriter struct {
	file *os.File
	w    *bufio.Writer
	path string
}

func newTSVWriter(path string) (*tsvWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating bulk staging file %q", path)
	}
	return &tsvWriter{file: f, w: bufio.NewWriter(f), path: path}, nil
}

func (t *tsvWriter) WriteDoc(key string, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "encoding document for key %q", key)
	}
	if _, err := t.w.WriteString(escapeTSV(key)); err != nil {
		return err
	}
	if err := t.w.WriteByte('\t'); err != nil {
		return err
	}
	if _, err := t.w.WriteString(escapeTSV(string(data))); err != nil {
		return err
	}
	return t.w.WriteByte('\n')
}

func (t *tsvWriter) Close() error {
	if err := t.w.Flush(); err != nil {
		return err
	}
	return t.file.Close()
}

func escapeTSV(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

// finishBulk truncates the destination table and bulk-loads the TSV file
// written during this grouper's run.
func finishBulk(s *store.Store, table, tsvPath string) error {
	if err := s.Truncate(table); err != nil {
		return errors.Wrapf(err, "truncating %s before bulk load", table)
	}
	return s.BulkLoad(table, tsvPath)
}
