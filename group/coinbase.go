package group

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/stage"
	"github.com/jeremyandrews/addrindex/store"
)

// RunCoinbase groups the sorted coinbase staging file (txid, coinbase_hex,
// vin_n, block_time, height) into one coinbase[txid] document per key.
// Coinbase value isn't carried by the coinbase row itself — it has to be
// computed by summing vout[txid]'s output values, so this grouper must run
// after the vout grouper has populated the store (§4.8's mandatory phase
// ordering). A missing vout[txid] is logged as INVALID_DATA and the row is
// skipped rather than failing the run.
func RunCoinbase(ctx context.Context, r *stage.Reader, s *store.Store, mode Mode, bulkPath string) (Result, error) {
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
		row := rows[0]
		if len(rows) > 1 {
			log.Warnf("multiple coinbase rows for txid %s, using the first", txid)
		}
		if len(row) != 5 {
			return errors.Errorf("malformed coinbase row for %s: %v", txid, row)
		}
		coinbaseHex, vinNStr, timeStr, heightStr := row[1], row[2], row[3], row[4]

		var voutDoc store.VoutDoc
		found, err := s.Select(store.TableVout, txid, &voutDoc)
		if err != nil {
			return err
		}
		if !found {
			log.Warnf("INVALID_DATA: coinbase %s has no matching vout document, skipping", txid)
			res.Skipped++
			return nil
		}

		vinN, err := strconv.Atoi(vinNStr)
		if err != nil {
			return errors.Wrapf(err, "parsing vin_n for %s", txid)
		}
		timestamp, err := strconv.ParseInt(timeStr, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parsing timestamp for %s", txid)
		}
		height, err := strconv.ParseInt(heightStr, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "parsing height for %s", txid)
		}

		var total int64
		for _, byN := range voutDoc.Addresses {
			for _, entry := range byN {
				total += entry.Value
			}
		}

		doc := &store.CoinbaseDoc{
			Value:     total,
			Coinbase:  coinbaseHex,
			VinN:      vinN,
			Timestamp: timestamp,
			Height:    height,
		}
		res.Documents++

		switch mode {
		case ModeBulk:
			return tsv.WriteDoc(txid, doc)
		default:
			return s.Update(store.TableCoinbase, txid, doc)
		}
	})
	if err != nil {
		return res, err
	}

	if mode == ModeBulk {
		if err := tsv.Close(); err != nil {
			return res, err
		}
		if err := finishBulk(s, store.TableCoinbase, bulkPath); err != nil {
			return res, err
		}
	}
	return res, nil
}
