// Package extract implements the Extractor: it walks the chain from a
// starting block hash and writes one row per vout, per vin-spend, per
// coinbase-vin, per (address,vout), and per (block,tx) pair into six
// compressed CSV staging files. It performs no numeric parsing — column
// values are copied verbatim from the node's response; conversion to
// satoshi integers happens later, during grouping.
package extract

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/logger"
	"github.com/jeremyandrews/addrindex/rpc"
	"github.com/jeremyandrews/addrindex/stage"
)

var log = logger.Get(logger.SubsystemTags.EXTR)

// unknownAddress is the reserved label used for outputs with no parseable
// scriptPubKey address.
const unknownAddress = "unknown"

// Summary reports what was written, for the metadata checkpoint.
type Summary struct {
	Vout             int64
	Address          int64
	VinSpent         int64
	VinTxid          int64
	Coinbase         int64
	Block            int64
	LastProcessedHash string
	NextBlockHash     string
	BlocksWalked      int64
}

// Writers bundles the six staging writers the Extractor appends to.
type Writers struct {
	Vout     *stage.Writer
	Address  *stage.Writer
	VinSpent *stage.Writer
	VinTxid  *stage.Writer
	Coinbase *stage.Writer
	Block    *stage.Writer
}

// Close closes every writer, returning the first error encountered but
// attempting to close all of them regardless.
func (w *Writers) Close() error {
	var first error
	for _, c := range []*stage.Writer{w.Vout, w.Address, w.VinSpent, w.VinTxid, w.Coinbase, w.Block} {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenWriters opens the six staging files under dir, named per §4.2, using
// append mode so a resumed run continues a prior partial file.
func OpenWriters(dir string, compressLevel int) (*Writers, error) {
	open := func(name string) (*stage.Writer, error) {
		return stage.NewWriter(dir+"/"+name+".csv.gz", compressLevel)
	}
	vout, err := open(stage.Vout)
	if err != nil {
		return nil, err
	}
	address, err := open(stage.Address)
	if err != nil {
		return nil, err
	}
	vinSpent, err := open(stage.VinSpent)
	if err != nil {
		return nil, err
	}
	vinTxid, err := open(stage.VinTxid)
	if err != nil {
		return nil, err
	}
	coinbase, err := open(stage.Coinbase)
	if err != nil {
		return nil, err
	}
	block, err := open(stage.Block)
	if err != nil {
		return nil, err
	}
	return &Writers{
		Vout: vout, Address: address, VinSpent: vinSpent,
		VinTxid: vinTxid, Coinbase: coinbase, Block: block,
	}, nil
}

// Run walks the chain starting at startHash, stopping after limit blocks
// (0 means unbounded, stop only at the chain tip) or when the node
// reports no further block. It asserts the returned block's hash matches
// the hash requested, to catch a reorg landing mid-walk.
func Run(ctx context.Context, client *rpc.Client, w *Writers, startHash string, limit int64) (*Summary, error) {
	sum := &Summary{}
	next := startHash

	for limit == 0 || sum.BlocksWalked < limit {
		block, err := client.GetBlock(ctx, next)
		if err != nil {
			return sum, errors.Wrapf(err, "fetching block %s", next)
		}
		if block == nil {
			log.Infof("block %s unavailable, stopping at chain tip", next)
			break
		}
		if block.Hash != next {
			return sum, errors.Errorf("node returned block %q, requested %q — possible reorg mid-walk", block.Hash, next)
		}

		if err := writeBlock(w, block, sum); err != nil {
			return sum, err
		}

		sum.LastProcessedHash = block.Hash
		sum.BlocksWalked++

		if block.NextBlockHash == "" {
			sum.NextBlockHash = ""
			break
		}
		sum.NextBlockHash = block.NextBlockHash
		next = block.NextBlockHash
	}

	return sum, nil
}

func writeBlock(w *Writers, block *rpc.Block, sum *Summary) error {
	height := strconv.FormatInt(block.Height, 10)
	blockTime := strconv.FormatInt(block.Time, 10)

	for _, tx := range block.Tx {
		vinCount := strconv.Itoa(len(tx.Vin))
		voutCount := strconv.Itoa(len(tx.Vout))

		if err := w.Block.WriteRow(block.Hash, tx.TxID, height, blockTime, vinCount, voutCount); err != nil {
			return err
		}
		sum.Block++

		if err := writeVouts(w, tx, block, height, blockTime, vinCount, voutCount, sum); err != nil {
			return err
		}
		if err := writeVins(w, tx, height, blockTime, sum); err != nil {
			return err
		}
	}
	return nil
}

func writeVouts(w *Writers, tx rpc.Tx, block *rpc.Block, height, blockTime, vinCount, voutCount string, sum *Summary) error {
	for _, vout := range tx.Vout {
		n := strconv.Itoa(vout.N)
		addresses := vout.ScriptPubKey.Addresses
		if len(addresses) == 0 {
			if err := w.Vout.WriteRow(tx.TxID, n, unknownAddress, vout.Value, height, block.Hash, blockTime, vinCount, voutCount); err != nil {
				return err
			}
			sum.Vout++
			continue
		}
		for _, addr := range addresses {
			if err := w.Vout.WriteRow(tx.TxID, n, addr, vout.Value, height, block.Hash, blockTime, vinCount, voutCount); err != nil {
				return err
			}
			sum.Vout++

			if err := w.Address.WriteRow(addr, tx.TxID, n, vout.Value, height, blockTime); err != nil {
				return err
			}
			sum.Address++
		}
	}
	return nil
}

func writeVins(w *Writers, tx rpc.Tx, height, blockTime string, sum *Summary) error {
	coinbaseVins := 0
	for i, vin := range tx.Vin {
		vinN := strconv.Itoa(i)
		if vin.IsCoinbase() {
			coinbaseVins++
			if err := w.Coinbase.WriteRow(tx.TxID, vin.Coinbase, vinN, blockTime, height); err != nil {
				return err
			}
			sum.Coinbase++
			continue
		}

		spentVout := strconv.Itoa(vin.Vout)
		if err := w.VinSpent.WriteRow(vin.TxID, spentVout, tx.TxID, vinN, blockTime, height); err != nil {
			return err
		}
		sum.VinSpent++

		if err := w.VinTxid.WriteRow(tx.TxID, vinN, vin.TxID, spentVout, blockTime, height); err != nil {
			return err
		}
		sum.VinTxid++
	}

	if coinbaseVins > 1 {
		return errors.Errorf("transaction %s has %d coinbase vins, expected at most 1", tx.TxID, coinbaseVins)
	}
	return nil
}
