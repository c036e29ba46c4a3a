package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("symbol"); got != "ETHUSDT" {
			t.Errorf("unexpected symbol %q", got)
		}
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"1234.56000000"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	price, err := c.GetPrice(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("GetPrice failed: %v", err)
	}
	if price != 1234.56 {
		t.Fatalf("expected 1234.56, got %v", price)
	}
}

func TestGetPriceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.GetPrice(context.Background(), "ETHUSDT"); err == nil {
		t.Fatal("expected error on 503")
	}
}
