package refdata

import (
	"testing"

	"github.com/spreadwatch/spreadwatch/internal/models"
)

func TestNewRejectsOutOfRangeFees(t *testing.T) {
	pairs := []models.TradingPair{{Symbol: "BTC_USD", Base: "BTC", Quote: "USD", Active: true}}

	for _, fee := range []float64{-0.001, 1.0, 1.5} {
		_, err := New([]models.Exchange{{Name: "binance", Fee: fee, Active: true}}, pairs)
		if err == nil {
			t.Fatalf("fee %v accepted, want rejection at load time", fee)
		}
	}

	// Boundary: zero fee is a valid fraction.
	if _, err := New([]models.Exchange{{Name: "binance", Fee: 0, Active: true}}, pairs); err != nil {
		t.Fatalf("fee 0 rejected: %v", err)
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	exchanges := []models.Exchange{
		{Name: "binance", Fee: 0.001, Active: true},
		{Name: "binance", Fee: 0.002, Active: true},
	}
	if _, err := New(exchanges, nil); err == nil {
		t.Fatal("duplicate exchange accepted")
	}

	pairs := []models.TradingPair{
		{Symbol: "BTC_USD", Base: "BTC", Quote: "USD", Active: true},
		{Symbol: "BTC_USD", Base: "BTC", Quote: "USD", Active: true},
	}
	if _, err := New(nil, pairs); err == nil {
		t.Fatal("duplicate trading pair accepted")
	}
}

func TestInactiveRowsAreSkipped(t *testing.T) {
	exchanges := []models.Exchange{
		{Name: "binance", Fee: 0.001, Active: true},
		{Name: "mtgox", Fee: 0.006, Active: false},
	}
	pairs := []models.TradingPair{
		{Symbol: "BTC_USD", Base: "BTC", Quote: "USD", Active: true},
		{Symbol: "LUNA_USD", Base: "LUNA", Quote: "USD", Active: false},
	}

	r, err := New(exchanges, pairs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, ok := r.Exchange("mtgox"); ok {
		t.Fatal("inactive exchange is resolvable")
	}
	if _, ok := r.Pair("LUNA_USD"); ok {
		t.Fatal("inactive pair is resolvable")
	}
	if got := r.Symbols(); len(got) != 1 || got[0] != "BTC_USD" {
		t.Fatalf("Symbols() = %v, want [BTC_USD]", got)
	}
}

func TestLookupsAndFees(t *testing.T) {
	exchanges, pairs := Seed()
	r, err := New(exchanges, pairs)
	if err != nil {
		t.Fatalf("New(Seed()): %v", err)
	}

	ex, ok := r.Exchange("kraken")
	if !ok || ex.Fee != 0.0026 {
		t.Fatalf("Exchange(kraken) = %+v, %v", ex, ok)
	}
	if _, ok := r.Pair("BTC_USD"); !ok {
		t.Fatal("Pair(BTC_USD) not found")
	}
	if _, ok := r.Pair("BTC_JPY"); ok {
		t.Fatal("Pair(BTC_JPY) unexpectedly found")
	}

	fees := r.Fees()
	if len(fees) != 3 || fees["binance"] != 0.001 {
		t.Fatalf("Fees() = %v", fees)
	}
}
