package query

import (
	"testing"

	"github.com/jeremyandrews/addrindex/store"
)

func TestResolveSpentOutputFound(t *testing.T) {
	voutDoc := store.VoutDoc{
		Addresses: map[string]map[string]store.VoutEntry{
			"addr1": {"0": {Value: 12345}},
		},
	}
	addr, value := resolveSpentOutput(voutDoc, true, 0)
	if addr != "addr1" || value != 12345 {
		t.Fatalf("unexpected resolution: %s %d", addr, value)
	}
}

func TestResolveSpentOutputMissing(t *testing.T) {
	addr, value := resolveSpentOutput(store.VoutDoc{}, false, 0)
	if addr != "" || value != 0 {
		t.Fatalf("expected zero value for missing vout, got %s %d", addr, value)
	}
}
