package group

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/stage"
	"github.com/jeremyandrews/addrindex/store"
)

// RunVinTxid groups the sorted vin_txid staging file (txid, vin_n,
// spent_txid, spent_vout, block_time, height) into one vin_txid[txid]
// document per key, mirroring vin_spent keyed by the spending txid.
func RunVinTxid(ctx context.Context, r *stage.Reader, s *store.Store, mode Mode, bulkPath string) (Result, error) {
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
		doc, err := buildVinTxidDoc(txid, rows)
		if err != nil {
			return err
		}
		res.Documents++

		switch mode {
		case ModeBulk:
			return tsv.WriteDoc(txid, doc)
		default:
			return s.Update(store.TableVinTxid, txid, doc)
		}
	})
	if err != nil {
		return res, err
	}

	if mode == ModeBulk {
		if err := tsv.Close(); err != nil {
			return res, err
		}
		if err := finishBulk(s, store.TableVinTxid, bulkPath); err != nil {
			return res, err
		}
	}
	return res, nil
}

func buildVinTxidDoc(txid string, rows [][]string) (*store.VinTxidDoc, error) {
	doc := &store.VinTxidDoc{Vin: map[string]store.VinTxidEntry{}}
	for _, row := range rows {
		if len(row) != 6 {
			return nil, errors.Errorf("malformed vin_txid row for %s: %v", txid, row)
		}
		vinN, spentTxid, spentVoutStr, timeStr, heightStr := row[1], row[2], row[3], row[4], row[5]

		spentVout, err := strconv.Atoi(spentVoutStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing spent_vout for %s", txid)
		}
		timestamp, err := strconv.ParseInt(timeStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing timestamp for %s", txid)
		}
		height, err := strconv.ParseInt(heightStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing height for %s", txid)
		}

		doc.Timestamp = timestamp
		doc.Height = height
		doc.Vin[vinN] = store.VinTxidEntry{Spent: spentTxid, Vout: spentVout}
	}
	return doc, nil
}
