package autodetect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"niftyshort/internal/config"
)

func TestDetectParsesResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/atm" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Result{ATMStrike: 24500, ExpiryToken: "07AUG25"})
	}))
	defer srv.Close()

	c := New(config.AutodetectConfig{BaseURL: srv.URL})
	result, err := c.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if result.ATMStrike != 24500 {
		t.Errorf("ATMStrike = %d, want 24500", result.ATMStrike)
	}
	if result.ExpiryToken != "07AUG25" {
		t.Errorf("ExpiryToken = %q, want 07AUG25", result.ExpiryToken)
	}
}

func TestDetectReturnsErrorOnServerFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(config.AutodetectConfig{BaseURL: srv.URL})
	if _, err := c.Detect(context.Background()); err == nil {
		t.Fatalf("expected error on server failure")
	}
}

func TestSymbolWindowBuildsBothSides(t *testing.T) {
	t.Parallel()
	result := Result{ATMStrike: 24500, ExpiryToken: "07AUG25"}
	symbols := result.SymbolWindow(2, 50)

	if len(symbols) != 10 {
		t.Fatalf("expected 10 symbols (5 strikes x 2 sides), got %d", len(symbols))
	}
	found := false
	for _, s := range symbols {
		if s == "NIFTY07AUG2524500CE" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected ATM CE symbol in window, got %v", symbols)
	}
}
