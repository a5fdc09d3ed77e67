package group

import (
	"testing"
)

func TestBuildVoutDoc(t *testing.T) {
	rows := [][]string{
		{"tx1", "0", "addr1", "0.5", "100", "hash1", "1000", "1", "2"},
		{"tx1", "1", "addr2", "0.25", "100", "hash1", "1000", "1", "2"},
	}
	doc, err := buildVoutDoc("tx1", rows)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if doc.Height != 100 || doc.BlockHash != "hash1" || doc.VoutCount != 2 {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	if doc.Addresses["addr1"]["0"].Value != 50000000 {
		t.Fatalf("unexpected value: %+v", doc.Addresses["addr1"]["0"])
	}
	if doc.Addresses["addr2"]["1"].Value != 25000000 {
		t.Fatalf("unexpected value: %+v", doc.Addresses["addr2"]["1"])
	}
}

func TestBuildAddressDoc(t *testing.T) {
	rows := [][]string{
		{"addr1", "tx1", "0", "1.0", "100", "1000"},
		{"addr1", "tx2", "1", "2.0", "101", "1001"},
	}
	doc, err := buildAddressDoc("addr1", rows)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if doc.TxCount() != 2 {
		t.Fatalf("expected 2 transactions, got %d", doc.TxCount())
	}
	if doc.Transactions["tx1"]["0"].Value != 100000000 {
		t.Fatalf("unexpected entry: %+v", doc.Transactions["tx1"]["0"])
	}
}

func TestBuildBlockDoc(t *testing.T) {
	rows := [][]string{
		{"hash1", "tx1", "100", "1000", "1", "2"},
		{"hash1", "tx2", "100", "1000", "2", "1"},
	}
	doc, err := buildBlockDoc("hash1", rows)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if doc.Height != 100 || len(doc.Tx) != 2 {
		t.Fatalf("unexpected doc: %+v", doc)
	}
	if doc.Tx["tx2"].VinCount != 2 {
		t.Fatalf("unexpected tx2: %+v", doc.Tx["tx2"])
	}
}
