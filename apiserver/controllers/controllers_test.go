package controllers

import (
	"net/http"
	"testing"

	"github.com/jeremyandrews/addrindex/query"
)

type fakeRegistry struct {
	types []string
}

func (f fakeRegistry) Engine(coinType string) (*query.Engine, bool) {
	for _, t := range f.types {
		if t == coinType {
			return &query.Engine{}, true
		}
	}
	return nil, false
}

func (f fakeRegistry) CoinTypes() []string { return f.types }

func TestValidateCoinTypeKnown(t *testing.T) {
	reg := fakeRegistry{types: []string{"bitcoin"}}
	if hErr := ValidateCoinType(reg, "bitcoin"); hErr != nil {
		t.Fatalf("expected nil, got %+v", hErr)
	}
}

func TestValidateCoinTypeUnknown(t *testing.T) {
	reg := fakeRegistry{types: []string{"bitcoin"}}
	hErr := ValidateCoinType(reg, "nosuchtype")
	if hErr == nil || hErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", hErr)
	}
	if hErr.Details != "must be one of: [bitcoin]" {
		t.Fatalf("unexpected details: %s", hErr.Details)
	}
}

func TestTranslateErrNotFound(t *testing.T) {
	hErr := translateErr(query.ErrNotFound)
	if hErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", hErr.Code)
	}
}

func TestTranslateErrInvalidAddress(t *testing.T) {
	hErr := translateErr(query.ErrInvalidAddress)
	if hErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", hErr.Code)
	}
}
