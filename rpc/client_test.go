package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGetBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "deadbeef") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"hash":"deadbeef","height":1,"time":1000,"tx":[{"txid":"t1","vin":[{"coinbase":"abcd"}],"vout":[{"value":"50","n":0,"scriptPubKey":{"addresses":["addr1"]}}]}]}`))
	}))
	defer srv.Close()

	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), "")
	block, err := c.GetBlock(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if block == nil || block.Hash != "deadbeef" {
		t.Fatalf("unexpected block: %+v", block)
	}
	if len(block.Tx) != 1 || !block.Tx[0].Vin[0].IsCoinbase() {
		t.Fatalf("unexpected tx: %+v", block.Tx)
	}
}

func TestGetBlockNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), "")
	block, err := c.GetBlock(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if block != nil {
		t.Fatalf("expected nil block, got %+v", block)
	}
}

func TestGetBlockPermanentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(strings.TrimPrefix(srv.URL, "http://"), "")
	_, err := c.GetBlock(context.Background(), "whatever")
	if err == nil {
		t.Fatal("expected a permanent HTTP error")
	}
	if _, ok := err.(*PermanentHTTPError); !ok {
		t.Fatalf("expected *PermanentHTTPError, got %T: %s", err, err)
	}
}
