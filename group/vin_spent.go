package group

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/stage"
	"github.com/jeremyandrews/addrindex/store"
)

// RunVinSpent groups the sorted vin_spent staging file (spent_txid,
// spent_vout, txid, vin_n, block_time, height) into one
// vin_spent[spent_txid] document per key. In upsert mode, a new document
// is merged into any existing one by vout_n; a conflict on the same
// (spent_txid, vout_n) — a double-spend that should never occur on the
// canonical chain — is logged but resolved latest-wins rather than failing
// the run.
func RunVinSpent(ctx context.Context, r *stage.Reader, s *store.Store, mode Mode, bulkPath string) (Result, error) {
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

	err := forEachGroup(r, func(spentTxid string, rows [][]string) error {
		incoming, err := buildVinSpentDoc(spentTxid, rows)
		if err != nil {
			return err
		}
		res.Documents++

		switch mode {
		case ModeBulk:
			return tsv.WriteDoc(spentTxid, incoming)
		default:
			return upsertVinSpent(s, spentTxid, incoming)
		}
	})
	if err != nil {
		return res, err
	}

	if mode == ModeBulk {
		if err := tsv.Close(); err != nil {
			return res, err
		}
		if err := finishBulk(s, store.TableVinSpent, bulkPath); err != nil {
			return res, err
		}
	}
	return res, nil
}

func buildVinSpentDoc(spentTxid string, rows [][]string) (store.VinSpentDoc, error) {
	doc := store.VinSpentDoc{}
	for _, row := range rows {
		if len(row) != 6 {
			return nil, errors.Errorf("malformed vin_spent row for %s: %v", spentTxid, row)
		}
		spentVout, txid, vinNStr, timeStr, heightStr := row[1], row[2], row[3], row[4], row[5]

		vinN, err := strconv.Atoi(vinNStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing vin_n for %s", spentTxid)
		}
		timestamp, err := strconv.ParseInt(timeStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing timestamp for %s", spentTxid)
		}
		height, err := strconv.ParseInt(heightStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing height for %s", spentTxid)
		}

		doc[spentVout] = store.VinSpentEntry{Timestamp: timestamp, Height: height, TxID: txid, VinN: vinN}
	}
	return doc, nil
}

func upsertVinSpent(s *store.Store, spentTxid string, incoming store.VinSpentDoc) error {
	var existing store.VinSpentDoc
	found, err := s.Select(store.TableVinSpent, spentTxid, &existing)
	if err != nil {
		return err
	}
	if !found {
		return s.Insert(store.TableVinSpent, spentTxid, incoming)
	}

	for voutN, entry := range incoming {
		if prior, conflict := existing[voutN]; conflict && prior != entry {
			log.Warnf("vin_spent conflict on (%s, %s): %+v overwritten by %+v", spentTxid, voutN, prior, entry)
		}
		existing[voutN] = entry
	}
	return s.Update(store.TableVinSpent, spentTxid, existing)
}
