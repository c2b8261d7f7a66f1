package quotestore

import (
	"sort"
	"sync"
	"time"

	"github.com/spreadwatch/spreadwatch/internal/models"
)

type key struct {
	exchange string
	pair     string
}

type entry struct {
	quote models.Quote
	seq   uint64 // assigned when the key is first inserted, stable across overwrites
}

// Store holds the latest Quote per (exchange, pair) key behind one coarse
// lock. Connectors write, the matcher and the prices endpoint read. Expiry is
// by predicate in Snapshot; Purge only bounds memory on a slow cycle.
type Store struct {
	mu      sync.RWMutex
	entries map[key]entry
	nextSeq uint64
}

func New() *Store {
	return &Store{entries: make(map[key]entry)}
}

// Upsert replaces any existing quote for the same (exchange, pair) key. The
// entry is swapped as a unit, so readers never see a half-written quote.
func (s *Store) Upsert(q models.Quote) {
	k := key{exchange: q.Exchange, pair: q.Pair}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq
	if prev, ok := s.entries[k]; ok {
		seq = prev.seq
	} else {
		s.nextSeq++
	}
	s.entries[k] = entry{quote: q, seq: seq}
}

// Snapshot returns a copy of every quote no older than maxAge, ordered by
// first insertion of its key. The ordering is the tie-break the matcher
// relies on, so it must be deterministic rather than map iteration order.
func (s *Store) Snapshot(maxAge time.Duration) []models.Quote {
	now := time.Now()

	s.mu.RLock()
	fresh := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		if now.Sub(e.quote.ObservedAt) <= maxAge {
			fresh = append(fresh, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].seq < fresh[j].seq })

	quotes := make([]models.Quote, len(fresh))
	for i, e := range fresh {
		quotes[i] = e.quote
	}
	return quotes
}

// Purge removes entries observed strictly before the horizon and reports how
// many were dropped.
func (s *Store) Purge(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.quote.ObservedAt.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of keys currently held, fresh or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
