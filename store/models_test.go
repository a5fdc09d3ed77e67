package store

import (
	"encoding/json"
	"testing"
)

func TestAddressDocRoundTripTransactions(t *testing.T) {
	doc := AddressDoc{
		Transactions: map[string]map[string]AddressEntry{
			"tx1": {"0": {Value: 5000000000, Height: 1, Timestamp: 1000}},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}

	var decoded AddressDoc
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if decoded.Skip {
		t.Fatal("expected Skip=false")
	}
	if decoded.TxCount() != 1 {
		t.Fatalf("expected 1 tx, got %d", decoded.TxCount())
	}
	entry := decoded.Transactions["tx1"]["0"]
	if entry.Value != 5000000000 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestAddressDocRoundTripSkip(t *testing.T) {
	doc := AddressDoc{Skip: true}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}
	if string(b) != `{"skip":true}` {
		t.Fatalf("unexpected encoding: %s", b)
	}

	var decoded AddressDoc
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if !decoded.Skip || decoded.Transactions != nil {
		t.Fatalf("expected skip marker, got %+v", decoded)
	}
}

func TestTablesOrder(t *testing.T) {
	tables := Tables()
	if len(tables) != 6 {
		t.Fatalf("expected 6 tables, got %d", len(tables))
	}
	seen := map[string]bool{}
	for _, tbl := range tables {
		if seen[tbl] {
			t.Fatalf("duplicate table %s", tbl)
		}
		seen[tbl] = true
	}
	for _, want := range []string{TableBlock, TableVout, TableVinTxid, TableVinSpent, TableCoinbase, TableAddress} {
		if !seen[want] {
			t.Fatalf("missing table %s", want)
		}
	}
}
