package group

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/satoshi"
	"github.com/jeremyandrews/addrindex/stage"
	"github.com/jeremyandrews/addrindex/store"
)

// RunVout groups the sorted vout staging file (txid, n, address, value,
// height, block_hash, block_time, vin_count, vout_count) into one
// vout[txid] document per key.
func RunVout(ctx context.Context, r *stage.Reader, s *store.Store, mode Mode, bulkPath string) (Result, error) {
	var res Result

	var tsv *tsvWriter
	if mode == ModeBulk {
		var err error
		tsv, err = newTSVWriter(bulkPath)
		if err != nil {
			return res, err
		}
		defer tsv.Close()
	}

	err := forEachGroup(r, func(txid string, rows [][]string) error {
		doc, err := buildVoutDoc(txid, rows)
		if err != nil {
			return err
		}
		res.Documents++

		switch mode {
		case ModeBulk:
			return tsv.WriteDoc(txid, doc)
		default:
			// vout is immutable on the canonical chain; upsert overwrites.
			return s.Update(store.TableVout, txid, doc)
		}
	})
	if err != nil {
		return res, err
	}

	if mode == ModeBulk {
		if err := tsv.Close(); err != nil {
			return res, err
		}
		if err := finishBulk(s, store.TableVout, bulkPath); err != nil {
			return res, err
		}
	}
	return res, nil
}

func buildVoutDoc(txid string, rows [][]string) (*store.VoutDoc, error) {
	doc := &store.VoutDoc{Addresses: map[string]map[string]store.VoutEntry{}}
	for _, row := range rows {
		if len(row) != 9 {
			return nil, errors.Errorf("malformed vout row for %s: %v", txid, row)
		}
		n, address, valueStr, heightStr, blockHash, timeStr, vinCountStr, voutCountStr :=
			row[1], row[2], row[3], row[4], row[5], row[6], row[7], row[8]

		value, err := satoshi.FromDecimalString(valueStr)
		if err != nil {
			return nil, errors.Wrapf(err, "vout %s.%s", txid, n)
		}
		height, err := strconv.ParseInt(heightStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing height for %s", txid)
		}
		timestamp, err := strconv.ParseInt(timeStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing timestamp for %s", txid)
		}
		vinCount, err := strconv.Atoi(vinCountStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing vin_count for %s", txid)
		}
		voutCount, err := strconv.Atoi(voutCountStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing vout_count for %s", txid)
		}

		doc.Height = height
		doc.BlockHash = blockHash
		doc.Timestamp = timestamp
		doc.VinCount = vinCount
		doc.VoutCount = voutCount

		if doc.Addresses[address] == nil {
			doc.Addresses[address] = map[string]store.VoutEntry{}
		}
		doc.Addresses[address][n] = store.VoutEntry{Value: value, Timestamp: timestamp}
	}
	return doc, nil
}
