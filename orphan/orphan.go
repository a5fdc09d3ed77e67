// Package orphan implements the Orphan Unwinder: on incremental startup it
// checks whether the last processed block has been displaced onto a side
// branch, and if so walks backwards deleting that branch's writes until it
// rejoins the canonical chain.
package orphan

import (
	"context"
	"strconv"

	"github.com/jeremyandrews/addrindex/logger"
	"github.com/jeremyandrews/addrindex/notify"
	"github.com/jeremyandrews/addrindex/rpc"
	"github.com/jeremyandrews/addrindex/store"
)

var log = logger.Get(logger.SubsystemTags.ORPH)

// Result reports the new resume point after unwinding zero or more orphan
// blocks.
type Result struct {
	BlocksUnwound int
	ResumeHash    string
}

// Unwind checks lastProcessedHash and, while its confirmations are
// negative, deletes the block's writes and steps to its
// previousblockhash. It returns once it reaches a block with
// confirmations >= 0 (or runs out of ancestry), which becomes the new
// resume point.
//
// Unwinding is fail-safe: a missing document at any step is a no-op, not
// an error, since a partial prior run may have already deleted it.
func Unwind(ctx context.Context, client *rpc.Client, s *store.Store, notifier *notify.Notifier, symbol, lastProcessedHash string) (*Result, error) {
	res := &Result{ResumeHash: lastProcessedHash}

	hash := lastProcessedHash
	for hash != "" {
		block, err := client.GetBlock(ctx, hash)
		if err != nil {
			return res, err
		}
		if block == nil {
			// The block itself is gone from the node entirely; nothing
			// further to unwind against.
			res.ResumeHash = hash
			return res, nil
		}
		if block.Confirmations >= 0 {
			res.ResumeHash = block.Hash
			return res, nil
		}

		log.Warnf("unwinding orphan block %s (height %d)", block.Hash, block.Height)
		addresses, err := unwindBlock(s, block)
		if err != nil {
			return res, err
		}
		res.BlocksUnwound++

		if notifier != nil {
			notifier.NotifyOrphan(ctx, symbol, block.Height, block.Hash, block.Time, addresses)
		}

		hash = block.PreviousBlockHash
		res.ResumeHash = hash
	}

	return res, nil
}

func unwindBlock(s *store.Store, block *rpc.Block) ([]string, error) {
	touched := map[string]bool{}

	if err := deleteIfExists(s, store.TableBlock, block.Hash); err != nil {
		return nil, err
	}

	for _, tx := range block.Tx {
		if err := deleteIfExists(s, store.TableVout, tx.TxID); err != nil {
			return nil, err
		}

		for _, vin := range tx.Vin {
			if vin.IsCoinbase() {
				if err := deleteIfExists(s, store.TableCoinbase, tx.TxID); err != nil {
					return nil, err
				}
				continue
			}
			if err := deleteIfExists(s, store.TableVinTxid, tx.TxID); err != nil {
				return nil, err
			}
			if err := deleteIfExists(s, store.TableVinSpent, vin.TxID); err != nil {
				return nil, err
			}
		}

		for _, vout := range tx.Vout {
			for _, address := range vout.ScriptPubKey.Addresses {
				if err := removeAddressEntry(s, address, tx.TxID, vout.N); err != nil {
					return nil, err
				}
				touched[address] = true
			}
		}
	}

	addresses := make([]string, 0, len(touched))
	for a := range touched {
		addresses = append(addresses, a)
	}
	return addresses, nil
}

func deleteIfExists(s *store.Store, table, key string) error {
	return s.Delete(table, key)
}

// removeAddressEntry removes address[a][txid][n], cascading: an empty
// per-txid map is removed, and an address document left with no
// transactions is deleted entirely.
func removeAddressEntry(s *store.Store, address, txid string, n int) error {
	var doc store.AddressDoc
	found, err := s.Select(store.TableAddress, address, &doc)
	if err != nil {
		return err
	}
	if !found || doc.Skip {
		return nil
	}

	byN, ok := doc.Transactions[txid]
	if !ok {
		return nil
	}
	delete(byN, strconv.Itoa(n))
	if len(byN) == 0 {
		delete(doc.Transactions, txid)
	}

	if len(doc.Transactions) == 0 {
		return s.Delete(store.TableAddress, address)
	}
	return s.Update(store.TableAddress, address, &doc)
}
