package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotifyNewBlockDeliversFormFields(t *testing.T) {
	var gotEvent, gotAddresses string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %s", err)
		}
		gotEvent = r.FormValue("event")
		gotAddresses = r.FormValue("addresses")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	n.NotifyNewBlock(context.Background(), "bitcoin", 100, "hash1", 1000, []string{"addr1", "addr2"})

	if gotEvent != "new block" {
		t.Fatalf("unexpected event: %q", gotEvent)
	}
	if gotAddresses != "addr1,addr2" {
		t.Fatalf("unexpected addresses: %q", gotAddresses)
	}
}

func TestNotifyNoopWithoutURL(t *testing.T) {
	n := New("")
	// Must not panic or block; there is nothing to assert beyond survival.
	n.NotifyNewBlock(context.Background(), "bitcoin", 1, "h", 1, nil)
}
