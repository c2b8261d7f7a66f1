package quotestore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spreadwatch/spreadwatch/internal/models"
)

func quoteAt(exchange, pair string, bid, ask float64, age time.Duration) models.Quote {
	return models.Quote{
		Exchange:   exchange,
		Pair:       pair,
		LastPrice:  (bid + ask) / 2,
		Bid:        bid,
		Ask:        ask,
		ObservedAt: time.Now().Add(-age),
	}
}

func TestUpsertReplacesSameKey(t *testing.T) {
	s := New()

	s.Upsert(quoteAt("binance", "BTC_USD", 67000, 67001, 0))
	s.Upsert(quoteAt("binance", "BTC_USD", 68000, 68001, 0))

	if got := s.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}

	snap := s.Snapshot(time.Minute)
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(snap))
	}
	if snap[0].Bid != 68000 {
		t.Fatalf("snapshot kept bid %v, want the later upsert 68000", snap[0].Bid)
	}
}

func TestSnapshotFreshnessWindow(t *testing.T) {
	s := New()

	s.Upsert(quoteAt("binance", "BTC_USD", 67000, 67001, 10*time.Second))
	s.Upsert(quoteAt("coinbase", "BTC_USD", 67100, 67101, 3*time.Minute))

	snap := s.Snapshot(2 * time.Minute)
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d entries, want 1 (stale quote must be excluded)", len(snap))
	}
	if snap[0].Exchange != "binance" {
		t.Fatalf("snapshot kept %s, want binance", snap[0].Exchange)
	}

	// A stale entry is excluded by predicate, not removed.
	if got := s.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
}

func TestSnapshotShrinkingWindowOnlyRemoves(t *testing.T) {
	s := New()

	ages := []time.Duration{5 * time.Second, 25 * time.Second, 90 * time.Second}
	for i, age := range ages {
		s.Upsert(quoteAt(fmt.Sprintf("ex%d", i), "BTC_USD", 67000, 67001, age))
	}

	wide := s.Snapshot(2 * time.Minute)
	narrow := s.Snapshot(30 * time.Second)

	if len(wide) != 3 || len(narrow) != 2 {
		t.Fatalf("got %d wide / %d narrow entries, want 3 / 2", len(wide), len(narrow))
	}
	inWide := make(map[string]bool)
	for _, q := range wide {
		inWide[q.Exchange] = true
	}
	for _, q := range narrow {
		if !inWide[q.Exchange] {
			t.Fatalf("shrinking the window added entry %s", q.Exchange)
		}
	}
}

func TestSnapshotFirstSeenOrderStableAcrossOverwrites(t *testing.T) {
	s := New()

	s.Upsert(quoteAt("kraken", "BTC_USD", 67000, 67001, 0))
	s.Upsert(quoteAt("binance", "BTC_USD", 67010, 67011, 0))
	s.Upsert(quoteAt("coinbase", "BTC_USD", 67020, 67021, 0))

	// Overwriting the first key must not move it to the back.
	s.Upsert(quoteAt("kraken", "BTC_USD", 67500, 67501, 0))

	snap := s.Snapshot(time.Minute)
	want := []string{"kraken", "binance", "coinbase"}
	if len(snap) != len(want) {
		t.Fatalf("snapshot has %d entries, want %d", len(snap), len(want))
	}
	for i, q := range snap {
		if q.Exchange != want[i] {
			t.Fatalf("snapshot[%d] = %s, want %s", i, q.Exchange, want[i])
		}
	}
	if snap[0].Bid != 67500 {
		t.Fatalf("overwritten entry kept bid %v, want 67500", snap[0].Bid)
	}
}

func TestPurgeRemovesOnlyOldEntries(t *testing.T) {
	s := New()

	s.Upsert(quoteAt("binance", "BTC_USD", 67000, 67001, 48*time.Hour))
	s.Upsert(quoteAt("binance", "ETH_USD", 3500, 3501, time.Minute))

	removed := s.Purge(24 * time.Hour)
	if removed != 1 {
		t.Fatalf("Purge removed %d, want 1", removed)
	}
	if got := s.Len(); got != 1 {
		t.Fatalf("Len() = %d after purge, want 1", got)
	}
	snap := s.Snapshot(time.Hour)
	if len(snap) != 1 || snap[0].Pair != "ETH_USD" {
		t.Fatalf("purge removed the wrong entry: %+v", snap)
	}
}

func TestConcurrentUpsertsKeepOneEntryPerKey(t *testing.T) {
	s := New()

	const writers = 8
	const rounds = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			exchange := fmt.Sprintf("ex%d", w%4)
			for i := 0; i < rounds; i++ {
				s.Upsert(quoteAt(exchange, "BTC_USD", float64(67000+i), float64(67001+i), 0))
				s.Snapshot(time.Minute)
			}
		}(w)
	}
	wg.Wait()

	if got := s.Len(); got != 4 {
		t.Fatalf("Len() = %d after concurrent upserts, want 4 distinct keys", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.Upsert(quoteAt("binance", "BTC_USD", 67000, 67001, 0))

	snap := s.Snapshot(time.Minute)
	snap[0].Bid = 0

	again := s.Snapshot(time.Minute)
	if again[0].Bid != 67000 {
		t.Fatalf("mutating a snapshot leaked into the store: bid = %v", again[0].Bid)
	}
}
