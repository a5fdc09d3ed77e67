package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/jeremyandrews/addrindex/query"
)

func newTestRouter() *mux.Router {
	router := mux.NewRouter()
	addRoutes(router, NewRegistry(), false)
	return router
}

func TestRootRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUnrecognizedCoinTypeReturns400Envelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/address/nosuchcoin/abc123", nil)
	rec := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	var e envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decoding response: %s", err)
	}
	if e.Error != "unrecognized coin type" {
		t.Fatalf("unexpected error message: %q", e.Error)
	}
	if e.Code != http.StatusBadRequest {
		t.Fatalf("unexpected envelope code: %d", e.Code)
	}
}

func TestMissingAddressReturns400(t *testing.T) {
	reg := NewRegistry()
	reg.Add("bitcoin", "BTC", &query.Engine{})
	router := mux.NewRouter()
	addRoutes(router, reg, false)

	req := httptest.NewRequest(http.MethodGet, "/api/address/bitcoin", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
