package group

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/stage"
	"github.com/jeremyandrews/addrindex/store"
)

// RunBlock groups the sorted block staging file (block_hash, txid, height,
// timestamp, vin_count, vout_count) into one block[hash] document per key.
func RunBlock(ctx context.Context, r *stage.Reader, s *store.Store, mode Mode, bulkPath string) (Result, error) {
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

	err := forEachGroup(r, func(hash string, rows [][]string) error {
		doc, err := buildBlockDoc(hash, rows)
		if err != nil {
			return err
		}
		res.Documents++

		switch mode {
		case ModeBulk:
			return tsv.WriteDoc(hash, doc)
		default:
			return s.Update(store.TableBlock, hash, doc)
		}
	})
	if err != nil {
		return res, err
	}

	if mode == ModeBulk {
		if err := tsv.Close(); err != nil {
			return res, err
		}
		if err := finishBulk(s, store.TableBlock, bulkPath); err != nil {
			return res, err
		}
	}
	return res, nil
}

func buildBlockDoc(hash string, rows [][]string) (*store.BlockDoc, error) {
	doc := &store.BlockDoc{Tx: map[string]store.BlockTxSummary{}}
	for _, row := range rows {
		if len(row) != 6 {
			return nil, errors.Errorf("malformed block row for %s: %v", hash, row)
		}
		txid, heightStr, timeStr, vinCountStr, voutCountStr := row[1], row[2], row[3], row[4], row[5]

		height, err := strconv.ParseInt(heightStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing height for block %s", hash)
		}
		timestamp, err := strconv.ParseInt(timeStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing timestamp for block %s", hash)
		}
		vinCount, err := strconv.Atoi(vinCountStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing vin_count for block %s", hash)
		}
		voutCount, err := strconv.Atoi(voutCountStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing vout_count for block %s", hash)
		}

		doc.Height = height
		doc.Timestamp = timestamp
		doc.Tx[txid] = store.BlockTxSummary{VinCount: vinCount, VoutCount: voutCount}
	}
	return doc, nil
}
