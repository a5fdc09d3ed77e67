package store

import "encoding/json"

// Table name constants, matching the six hash/data tables of §3.
const (
	TableBlock    = "block"
	TableVout     = "vout"
	TableVinTxid  = "vin_txid"
	TableVinSpent = "vin_spent"
	TableCoinbase = "coinbase"
	TableAddress  = "address"
)

// Tables returns every table name, used to truncate them all on
// --regenerate. The order carries no meaning; phase ordering is enforced
// separately by the phase package.
func Tables() []string {
	return []string{TableVinSpent, TableVinTxid, TableCoinbase, TableVout, TableAddress, TableBlock}
}

// BlockTxSummary is the per-transaction entry inside a block document.
type BlockTxSummary struct {
	VinCount  int `json:"vin_count"`
	VoutCount int `json:"vout_count"`
}

// BlockDoc is the document stored at block[hash].
type BlockDoc struct {
	Height    int64                     `json:"height"`
	Timestamp int64                     `json:"timestamp"`
	Tx        map[string]BlockTxSummary `json:"tx"`
}

// VoutEntry is one (address, n) output entry inside a vout document.
type VoutEntry struct {
	Value     int64 `json:"value"`
	Timestamp int64 `json:"timestamp"`
}

// VoutDoc is the document stored at vout[txid].
type VoutDoc struct {
	Height    int64                                `json:"height"`
	BlockHash string                                `json:"block_hash"`
	Timestamp int64                                `json:"timestamp"`
	VinCount  int                                   `json:"vin_count"`
	VoutCount int                                   `json:"vout_count"`
	Addresses map[string]map[string]VoutEntry       `json:"addresses"` // address -> n -> entry
}

// VinTxidEntry describes what a single vin of a transaction spent.
type VinTxidEntry struct {
	Spent string `json:"spent"`
	Vout  int    `json:"vout"`
}

// VinTxidDoc is the document stored at vin_txid[txid].
type VinTxidDoc struct {
	Timestamp int64                   `json:"timestamp"`
	Height    int64                   `json:"height"`
	Vin       map[string]VinTxidEntry `json:"vin"` // vin_n -> entry
}

// VinSpentEntry records that a given (spent_txid, vout_n) was consumed.
type VinSpentEntry struct {
	Timestamp int64  `json:"timestamp"`
	Height    int64  `json:"height"`
	TxID      string `json:"txid"`
	VinN      int    `json:"vin_n"`
}

// VinSpentDoc is the document stored at vin_spent[spent_txid]: a map from
// the spent output's index to the spend that consumed it.
type VinSpentDoc map[string]VinSpentEntry // vout_n -> entry

// CoinbaseDoc is the document stored at coinbase[txid].
type CoinbaseDoc struct {
	Value     int64  `json:"value"`
	Coinbase  string `json:"coinbase"`
	VinN      int    `json:"vin_n"`
	Timestamp int64  `json:"timestamp"`
	Height    int64  `json:"height"`
}

// AddressEntry is one (txid, n) entry inside an address document.
type AddressEntry struct {
	Value     int64 `json:"value"`
	Height    int64 `json:"height"`
	Timestamp int64 `json:"timestamp"`
}

// AddressDoc is the document stored at address[a]: either the set of
// transactions touching the address, or a permanent skip marker once the
// address crosses the soft transaction cap.
type AddressDoc struct {
	Skip         bool
	Transactions map[string]map[string]AddressEntry // txid -> n -> entry
}

// MarshalJSON renders {"skip":true} for a skipped address, or the raw
// txid->n->entry map otherwise — matching the two document shapes §3
// describes for the address table.
func (d AddressDoc) MarshalJSON() ([]byte, error) {
	if d.Skip {
		return []byte(`{"skip":true}`), nil
	}
	if d.Transactions == nil {
		d.Transactions = map[string]map[string]AddressEntry{}
	}
	return json.Marshal(d.Transactions)
}

// UnmarshalJSON accepts either shape on read.
func (d *AddressDoc) UnmarshalJSON(data []byte) error {
	var skipProbe struct {
		Skip bool `json:"skip"`
	}
	if err := json.Unmarshal(data, &skipProbe); err == nil && skipProbe.Skip {
		d.Skip = true
		d.Transactions = nil
		return nil
	}

	var txs map[string]map[string]AddressEntry
	if err := json.Unmarshal(data, &txs); err != nil {
		return err
	}
	d.Skip = false
	d.Transactions = txs
	return nil
}

// TxCount returns the number of transactions recorded for a non-skipped
// address document.
func (d *AddressDoc) TxCount() int {
	return len(d.Transactions)
}
