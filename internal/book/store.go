// Package book holds the shared in-memory store of the latest order-book
// snapshot per (venue, symbol) stream, with a freshness policy enforced on
// every read.
package book

import (
	"sync"
	"time"

	"github.com/arbwatch/arbwatch/internal/models"
)

// FreshnessTTL is the maximum snapshot age any reader will accept.
const FreshnessTTL = 60 * time.Second

type key struct {
	venue  string
	symbol string
}

// Store maps (venue, symbol) to the most recent snapshot. Writers replace
// entries atomically; readers see either the previous or the new snapshot,
// never a partial one. Critical sections are single-map operations.
type Store struct {
	mu    sync.RWMutex
	books map[key]*models.OrderBook
	now   func() time.Time
}

// NewStore builds an empty store. The store warms up from ingestion; there
// is no persistence across restarts.
func NewStore() *Store {
	return &Store{
		books: make(map[key]*models.OrderBook),
		now:   time.Now,
	}
}

// Put installs a snapshot, replacing any previous entry for the stream.
func (s *Store) Put(b *models.OrderBook) {
	s.mu.Lock()
	s.books[key{venue: b.Venue, symbol: b.Symbol}] = b
	s.mu.Unlock()
}

// Get returns the latest snapshot for the stream regardless of age.
func (s *Store) Get(venue, symbol string) (*models.OrderBook, bool) {
	s.mu.RLock()
	b, ok := s.books[key{venue: venue, symbol: symbol}]
	s.mu.RUnlock()
	return b, ok
}

// Fresh returns the latest snapshot only when it is younger than
// FreshnessTTL and carries both sides.
func (s *Store) Fresh(venue, symbol string) (*models.OrderBook, bool) {
	b, ok := s.Get(venue, symbol)
	if !ok || !b.TwoSided() || b.Age(s.now()) > FreshnessTTL {
		return nil, false
	}
	return b, true
}

// BooksForSymbol returns all fresh, two-sided snapshots of one symbol,
// keyed by venue.
func (s *Store) BooksForSymbol(symbol string) map[string]*models.OrderBook {
	now := s.now()
	out := make(map[string]*models.OrderBook)

	s.mu.RLock()
	for k, b := range s.books {
		if k.symbol == symbol && b.TwoSided() && b.Age(now) <= FreshnessTTL {
			out[k.venue] = b
		}
	}
	s.mu.RUnlock()
	return out
}

// VenueSymbols returns the symbols currently held for one venue,
// regardless of freshness.
func (s *Store) VenueSymbols(venue string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.books {
		if k.venue == venue {
			out = append(out, k.symbol)
		}
	}
	return out
}

// Stats counts total and fresh snapshots per venue.
func (s *Store) Stats() (total, fresh int, perVenue map[string]int) {
	now := s.now()
	perVenue = make(map[string]int)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, b := range s.books {
		total++
		perVenue[k.venue]++
		if b.Age(now) <= FreshnessTTL {
			fresh++
		}
	}
	return total, fresh, perVenue
}
