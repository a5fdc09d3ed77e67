// Package query implements the Query Engine: it joins the address, vout,
// vin_spent, vin_txid and coinbase tables to answer address detail,
// unspent-output, transaction, and block lookups.
package query

import (
	"context"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/logger"
	"github.com/jeremyandrews/addrindex/rpc"
	"github.com/jeremyandrews/addrindex/store"
)

var log = logger.Get(logger.SubsystemTags.QURY)

// TxidGuardrail is the maximum number of txids an address may carry before
// the engine refuses the expensive join and reports balances as
// "not calculated" instead.
const TxidGuardrail = 15000

// NotCalculated is returned in place of a numeric balance/total once an
// address crosses TxidGuardrail or the store's skip cap.
const NotCalculated = "not calculated"

// ErrNotFound is returned when a requested address, transaction, or block
// has no record in the store.
var ErrNotFound = errors.New("not found")

// ErrInvalidAddress is returned when the node's validateaddress call
// reports the address as malformed for this coin.
var ErrInvalidAddress = errors.New("address is invalid")

// Engine answers read-only queries for a single coin's store.
type Engine struct {
	Store  *store.Store
	Client *rpc.Client
}

// New returns an Engine bound to one coin's store and node client.
func New(s *store.Store, c *rpc.Client) *Engine {
	return &Engine{Store: s, Client: c}
}

// FromEntry describes one input-side resolution: either a prior output's
// address and value, or a coinbase generation.
type FromEntry struct {
	Address  string `json:"address,omitempty"`
	Coinbase string `json:"coinbase,omitempty"`
	Value    int64  `json:"value"`
}

// ToEntry describes one output-side resolution.
type ToEntry struct {
	Address string `json:"address"`
	Value   int64  `json:"value"`
	Spent   bool   `json:"spent"`
}

// TxRecord is one entry in an address's transaction history.
type TxRecord struct {
	TxID          string      `json:"txid"`
	Block         int64       `json:"block"`
	Confirmations int64       `json:"confirmations"`
	Timestamp     int64       `json:"timestamp"`
	Received      bool        `json:"received"`
	ValueIn       int64       `json:"value_in"`
	Sent          bool        `json:"sent"`
	ValueOut      int64       `json:"value_out"`
	FromCount     int         `json:"from_count"`
	ToCount       int         `json:"to_count"`
	Fee           int64       `json:"fee"`
	From          []FromEntry `json:"from"`
	To            []ToEntry   `json:"to"`
}

// AddressDetail is the full response for an address lookup.
type AddressDetail struct {
	Address      string      `json:"address"`
	IsValid      bool        `json:"isvalid"`
	Balance      interface{} `json:"balance"`
	Transactions []TxRecord  `json:"transactions"`
	Errors       int         `json:"errors,omitempty"`
}

// AddressDetail implements §4.7's address detail algorithm.
func (e *Engine) AddressDetail(ctx context.Context, address string) (*AddressDetail, error) {
	valid, err := e.checkAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	var doc store.AddressDoc
	found, err := e.Store.Select(store.TableAddress, address, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	detail := &AddressDetail{Address: address, IsValid: valid}

	if doc.Skip || doc.TxCount() > TxidGuardrail {
		detail.Balance = NotCalculated
		detail.Transactions = []TxRecord{}
		return detail, nil
	}

	blockCount, err := e.Client.GetBlockCount(ctx)
	if err != nil {
		return nil, err
	}

	heights, txidsByHeight, err := e.buildHeightMultimap(address, doc)
	if err != nil {
		return nil, err
	}

	var receivedTotal, sentTotal int64
	var errCount int
	records := make([]TxRecord, 0, len(doc.Transactions))

	for _, height := range heights {
		for _, txid := range txidsByHeight[height] {
			rec, received, sent, err := e.buildTxRecord(address, txid, blockCount)
			if err != nil {
				return nil, err
			}
			if received {
				receivedTotal += rec.ValueIn
			}
			if sent {
				sentTotal += rec.ValueOut
			}
			records = append(records, *rec)
		}
	}

	balance := receivedTotal - sentTotal
	if balance < 0 {
		errCount++
		log.Warnf("address %s computed a negative balance: %d", address, balance)
	}
	detail.Balance = balance
	detail.Transactions = records
	detail.Errors = errCount
	return detail, nil
}

// buildHeightMultimap scans every txid recorded for the address and builds
// a height -> []txid multimap covering both the receiving transaction and,
// for any output later spent, the spending transaction — the set of
// transactions where the address appears on either side.
func (e *Engine) buildHeightMultimap(address string, doc store.AddressDoc) ([]int64, map[int64][]string, error) {
	byHeight := map[int64][]string{}

	add := func(height int64, txid string) {
		for _, existing := range byHeight[height] {
			if existing == txid {
				return
			}
		}
		byHeight[height] = append(byHeight[height], txid)
	}

	for txid, byN := range doc.Transactions {
		var voutDoc store.VoutDoc
		found, err := e.Store.Select(store.TableVout, txid, &voutDoc)
		if err != nil {
			return nil, nil, err
		}
		if found {
			add(voutDoc.Height, txid)
		}

		var spentDoc store.VinSpentDoc
		spentFound, err := e.Store.Select(store.TableVinSpent, txid, &spentDoc)
		if err != nil {
			return nil, nil, err
		}
		if spentFound {
			for n := range byN {
				if spend, ok := spentDoc[n]; ok {
					add(spend.Height, spend.TxID)
				}
			}
		}
	}

	heights := make([]int64, 0, len(byHeight))
	for h := range byHeight {
		heights = append(heights, h)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] > heights[j] })
	return heights, byHeight, nil
}

// buildTxRecord resolves one transaction's full record, reporting whether
// the address received and/or sent value in it.
func (e *Engine) buildTxRecord(address, txid string, blockCount int64) (rec *TxRecord, received, sent bool, err error) {
	var voutDoc store.VoutDoc
	foundVout, err := e.Store.Select(store.TableVout, txid, &voutDoc)
	if err != nil {
		return nil, false, false, err
	}
	if !foundVout {
		return nil, false, false, errors.Errorf("transaction %s referenced but vout document is missing", txid)
	}

	var spentDoc store.VinSpentDoc
	hasSpent, err := e.Store.Select(store.TableVinSpent, txid, &spentDoc)
	if err != nil {
		return nil, false, false, err
	}

	to := make([]ToEntry, 0, voutDoc.VoutCount)
	var valueIn int64
	var voutTotal int64
	for addr, byN := range voutDoc.Addresses {
		for n, entry := range byN {
			voutTotal += entry.Value
			isSpent := hasSpent
			if hasSpent {
				if _, ok := spentDoc[n]; !ok {
					isSpent = false
				}
			}
			to = append(to, ToEntry{Address: addr, Value: entry.Value, Spent: isSpent})
			if addr == address {
				valueIn += entry.Value
				received = true
			}
		}
	}

	var from []FromEntry
	var vinTotal int64
	var fee int64

	var vinDoc store.VinTxidDoc
	hasVin, err := e.Store.Select(store.TableVinTxid, txid, &vinDoc)
	if err != nil {
		return nil, false, false, err
	}

	var valueOut int64
	if hasVin {
		from = make([]FromEntry, 0, len(vinDoc.Vin))
		for _, vin := range vinDoc.Vin {
			var spentVoutDoc store.VoutDoc
			foundSpent, err := e.Store.Select(store.TableVout, vin.Spent, &spentVoutDoc)
			if err != nil {
				return nil, false, false, err
			}
			fromAddr, value := resolveSpentOutput(spentVoutDoc, foundSpent, vin.Vout)
			vinTotal += value
			from = append(from, FromEntry{Address: fromAddr, Value: value})
			if fromAddr == address {
				valueOut += value
				sent = true
			}
		}
		fee = vinTotal - voutTotal
	} else {
		var coinbaseDoc store.CoinbaseDoc
		foundCoinbase, err := e.Store.Select(store.TableCoinbase, txid, &coinbaseDoc)
		if err != nil {
			return nil, false, false, err
		}
		if foundCoinbase {
			from = []FromEntry{{Coinbase: coinbaseDoc.Coinbase, Value: coinbaseDoc.Value}}
		}
		fee = 0
	}

	rec = &TxRecord{
		TxID:          txid,
		Block:         voutDoc.Height,
		Confirmations: blockCount - voutDoc.Height,
		Timestamp:     voutDoc.Timestamp,
		Received:      received,
		ValueIn:       valueIn,
		Sent:          sent,
		ValueOut:      valueOut,
		FromCount:     len(from),
		ToCount:       len(to),
		Fee:           fee,
		From:          from,
		To:            to,
	}
	return rec, received, sent, nil
}

func resolveSpentOutput(voutDoc store.VoutDoc, found bool, n int) (address string, value int64) {
	if !found {
		return "", 0
	}
	nKey := strconv.Itoa(n)
	for addr, byN := range voutDoc.Addresses {
		if entry, ok := byN[nKey]; ok {
			return addr, entry.Value
		}
	}
	return "", 0
}

// UnspentOutput is one entry in an unspent-output listing.
type UnspentOutput struct {
	TxID  string `json:"txid"`
	N     int    `json:"n"`
	Value int64  `json:"value"`
}

// UnspentResult is the response for the unspent-outputs endpoint.
type UnspentResult struct {
	Address string          `json:"address"`
	Balance interface{}     `json:"balance"`
	Outputs []UnspentOutput `json:"unspent"`
}

// Unspent implements §4.7's unspent-output listing.
func (e *Engine) Unspent(ctx context.Context, address string) (*UnspentResult, error) {
	if _, err := e.checkAddress(ctx, address); err != nil {
		return nil, err
	}

	var doc store.AddressDoc
	found, err := e.Store.Select(store.TableAddress, address, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	result := &UnspentResult{Address: address}
	if doc.Skip || doc.TxCount() > TxidGuardrail {
		result.Balance = NotCalculated
		result.Outputs = []UnspentOutput{}
		return result, nil
	}

	var total int64
	for txid, byN := range doc.Transactions {
		var spentDoc store.VinSpentDoc
		hasSpent, err := e.Store.Select(store.TableVinSpent, txid, &spentDoc)
		if err != nil {
			return nil, err
		}
		for nStr, entry := range byN {
			if hasSpent {
				if _, ok := spentDoc[nStr]; ok {
					continue
				}
			}
			n, _ := strconv.Atoi(nStr)
			result.Outputs = append(result.Outputs, UnspentOutput{TxID: txid, N: n, Value: entry.Value})
			total += entry.Value
		}
	}
	result.Balance = total
	return result, nil
}

// TxResult is the response for the transaction-lookup endpoint.
type TxResult struct {
	Coinbase *store.CoinbaseDoc `json:"coinbase,omitempty"`
	Vin      *store.VinTxidDoc  `json:"vin,omitempty"`
	Vout     *store.VoutDoc     `json:"vout"`
}

// Tx implements §4.7's getTx lookup.
func (e *Engine) Tx(ctx context.Context, txid string) (*TxResult, error) {
	var voutDoc store.VoutDoc
	found, err := e.Store.Select(store.TableVout, txid, &voutDoc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	result := &TxResult{Vout: &voutDoc}

	var vinDoc store.VinTxidDoc
	if hasVin, err := e.Store.Select(store.TableVinTxid, txid, &vinDoc); err != nil {
		return nil, err
	} else if hasVin {
		result.Vin = &vinDoc
	}

	var coinbaseDoc store.CoinbaseDoc
	if hasCoinbase, err := e.Store.Select(store.TableCoinbase, txid, &coinbaseDoc); err != nil {
		return nil, err
	} else if hasCoinbase {
		result.Coinbase = &coinbaseDoc
	}

	return result, nil
}

// Block implements §4.7's getBlock lookup.
func (e *Engine) Block(ctx context.Context, hash string) (*store.BlockDoc, error) {
	var doc store.BlockDoc
	found, err := e.Store.Select(store.TableBlock, hash, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return &doc, nil
}

func (e *Engine) checkAddress(ctx context.Context, address string) (bool, error) {
	result, err := e.Client.ValidateAddress(ctx, address)
	if err != nil {
		return false, err
	}
	if !result.IsValid {
		return false, ErrInvalidAddress
	}
	return true, nil
}

