// Package stage implements the CSV Staging layer: compressed,
// line-oriented working files written by the Extractor and consumed by
// the External Sorter and the Groupers. One file per table, columns are
// positional and undocumented beyond §4.2 of the working design — no
// header row, no numeric parsing at write time.
//
// Compression uses klauspost/compress/gzip rather than the standard
// library's compress/gzip: the staging files are written row-by-row over
// the lifetime of a multi-hour extract run, and klauspost's implementation
// gives a meaningfully faster BestSpeed path for that access pattern while
// remaining a drop-in gzip.Writer/gzip.Reader.
package stage

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Table names, matching the six staging files.
const (
	Vout     = "vout"
	Address  = "address"
	VinSpent = "vin_spent"
	VinTxid  = "vin_txid"
	Coinbase = "coinbase"
	Block    = "block"
)

// Tables lists every staging table in a fixed order, used by the sort
// phase to sort every staging file.
func Tables() []string {
	return []string{Vout, Address, VinSpent, VinTxid, Coinbase, Block}
}

// Writer appends fixed-arity rows to a gzip-compressed CSV staging file.
type Writer struct {
	file   *os.File
	gz     *gzip.Writer
	csv    *csv.Writer
}

// NewWriter opens path for append (or creates it), wrapping it in gzip and
// CSV layers. compressLevel follows gzip.NoCompression..gzip.BestCompression.
func NewWriter(path string, compressLevel int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening staging file %q", path)
	}
	gz, err := gzip.NewWriterLevel(f, compressLevel)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "initializing gzip writer for %q", path)
	}
	return &Writer{file: f, gz: gz, csv: csv.NewWriter(gz)}, nil
}

// WriteRow writes one positional row.
func (w *Writer) WriteRow(fields ...string) error {
	return w.csv.Write(fields)
}

// Close flushes and closes every layer, in order.
func (w *Writer) Close() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	if err := w.gz.Close(); err != nil {
		return err
	}
	return w.file.Close()
}

// Reader streams rows back out of a gzip-compressed CSV staging file.
type Reader struct {
	file *os.File
	gz   *gzip.Reader
	csv  *csv.Reader
}

// NewReader opens path for reading. A missing file is reported as a plain
// *os.PathError so callers can treat "phase never ran" distinctly.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	gz, err := gzip.NewReader(bufio.NewReaderSize(f, 64*1024))
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "initializing gzip reader for %q", path)
	}
	r := csv.NewReader(gz)
	r.FieldsPerRecord = -1
	return &Reader{file: f, gz: gz, csv: r}, nil
}

// ReadRow returns the next row, or io.EOF when exhausted.
func (r *Reader) ReadRow() ([]string, error) {
	return r.csv.Read()
}

// Close releases the underlying file and gzip reader.
func (r *Reader) Close() error {
	r.gz.Close()
	return r.file.Close()
}

// ReadAll drains every remaining row, invoking fn for each. It stops and
// returns fn's error if fn returns non-nil.
func (r *Reader) ReadAll(fn func(row []string) error) error {
	for {
		row, err := r.ReadRow()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}
