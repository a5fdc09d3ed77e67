package group

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/satoshi"
	"github.com/jeremyandrews/addrindex/stage"
	"github.com/jeremyandrews/addrindex/store"
)

// DefaultSkipCap is the default soft cap on transactions tracked per
// address before it is replaced with a permanent {skip: true} marker.
const DefaultSkipCap = 1000000

// AddressResult extends Result with the set of addresses touched during an
// incremental run, which the caller forwards to the webhook notifier.
type AddressResult struct {
	Result
	TouchedAddresses []string
}

// RunAddress groups the sorted address staging file (address, txid, n,
// value, height, timestamp) into one address[a] document per key. In
// upsert mode, incoming transactions are merged into any existing
// document by txid then n; once the merged transaction count exceeds
// skipCap (0 uses DefaultSkipCap), the document is replaced entirely with
// a skip marker.
func RunAddress(ctx context.Context, r *stage.Reader, s *store.Store, mode Mode, bulkPath string, skipCap int) (AddressResult, error) {
	var res AddressResult
	if skipCap <= 0 {
		skipCap = DefaultSkipCap
	}

	var tsv *tsvWriter
	if mode == ModeBulk {
		var err error
		tsv, err = newTSVWriter(bulkPath)
		if err != nil {
			return res, err
		}
		defer tsv.Close()
	}

	err := forEachGroup(r, func(address string, rows [][]string) error {
		incoming, err := buildAddressDoc(address, rows)
		if err != nil {
			return err
		}
		res.Documents++
		res.TouchedAddresses = append(res.TouchedAddresses, address)

		switch mode {
		case ModeBulk:
			if incoming.TxCount() > skipCap {
				incoming = &store.AddressDoc{Skip: true}
			}
			return tsv.WriteDoc(address, incoming)
		default:
			return upsertAddress(s, address, incoming, skipCap)
		}
	})
	if err != nil {
		return res, err
	}

	if mode == ModeBulk {
		if err := tsv.Close(); err != nil {
			return res, err
		}
		if err := finishBulk(s, store.TableAddress, bulkPath); err != nil {
			return res, err
		}
	}
	return res, nil
}

func buildAddressDoc(address string, rows [][]string) (*store.AddressDoc, error) {
	doc := &store.AddressDoc{Transactions: map[string]map[string]store.AddressEntry{}}
	for _, row := range rows {
		if len(row) != 6 {
			return nil, errors.Errorf("malformed address row for %s: %v", address, row)
		}
		txid, n, valueStr, heightStr, timeStr := row[1], row[2], row[3], row[4], row[5]

		value, err := satoshi.FromDecimalString(valueStr)
		if err != nil {
			return nil, errors.Wrapf(err, "address %s tx %s", address, txid)
		}
		height, err := strconv.ParseInt(heightStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing height for %s", address)
		}
		timestamp, err := strconv.ParseInt(timeStr, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing timestamp for %s", address)
		}

		if doc.Transactions[txid] == nil {
			doc.Transactions[txid] = map[string]store.AddressEntry{}
		}
		doc.Transactions[txid][n] = store.AddressEntry{Value: value, Height: height, Timestamp: timestamp}
	}
	return doc, nil
}

func upsertAddress(s *store.Store, address string, incoming *store.AddressDoc, skipCap int) error {
	var existing store.AddressDoc
	found, err := s.Select(store.TableAddress, address, &existing)
	if err != nil {
		return err
	}
	if !found || existing.Skip {
		if !found {
			existing = store.AddressDoc{Transactions: map[string]map[string]store.AddressEntry{}}
		}
	}
	if existing.Skip {
		// Already over the cap; stays skipped for the life of the store.
		return s.Update(store.TableAddress, address, &existing)
	}

	for txid, byN := range incoming.Transactions {
		if existing.Transactions[txid] == nil {
			existing.Transactions[txid] = map[string]store.AddressEntry{}
		}
		for n, entry := range byN {
			existing.Transactions[txid][n] = entry
		}
	}

	if existing.TxCount() > skipCap {
		skipped := store.AddressDoc{Skip: true}
		if !found {
			return s.Insert(store.TableAddress, address, &skipped)
		}
		return s.Update(store.TableAddress, address, &skipped)
	}

	if !found {
		return s.Insert(store.TableAddress, address, &existing)
	}
	return s.Update(store.TableAddress, address, &existing)
}
