package scan

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/book"
	"github.com/arbwatch/arbwatch/internal/config"
	"github.com/arbwatch/arbwatch/internal/depth"
	"github.com/arbwatch/arbwatch/internal/fees"
	"github.com/arbwatch/arbwatch/internal/models"
)

// pathCacheTTL bounds how long enumerated cycles are reused before the
// venue's market list is consulted again.
const pathCacheTTL = 5 * time.Minute

// hop is one edge of a triangular cycle: convert from one asset to
// another through a concrete market, either selling the held asset into
// the bids or buying the target off the asks.
type hop struct {
	symbol string
	side   models.Side
}

// cycle is a three-hop path starting and ending at a base asset.
type cycle struct {
	base   string
	assets [3]string
	hops   [3]hop
}

// TriScanner detects triangular arbitrage on a single venue: three taker
// legs through the venue's own markets returning to the starting asset
// with a positive after-fee gain.
type TriScanner struct {
	cfg     *config.Config
	store   *book.Store
	fees    *fees.Model
	emit    func(models.TriOpportunity)
	observe func(elapsed, overrun time.Duration)

	markets func(venue string) map[string]models.MarketMeta
	venues  []string

	mu     sync.Mutex
	cache  map[string][]cycle
	cached map[string]time.Time

	now func() time.Time
}

// NewTriScanner builds a triangular scanner over the given venues.
// markets resolves a venue's current market list; observe, when non-nil,
// receives each pass's duration and cadence overrun.
func NewTriScanner(cfg *config.Config, store *book.Store, feeModel *fees.Model, venues []string, markets func(venue string) map[string]models.MarketMeta, emit func(models.TriOpportunity), observe func(elapsed, overrun time.Duration)) *TriScanner {
	return &TriScanner{
		cfg:     cfg,
		store:   store,
		fees:    feeModel,
		emit:    emit,
		observe: observe,
		markets: markets,
		venues:  venues,
		cache:   make(map[string][]cycle),
		cached:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// Run scans until ctx is done.
func (s *TriScanner) Run(ctx context.Context) {
	c := newCadence(s.cfg.ScanInterval)
	timer := time.NewTimer(c.current)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		start := s.now()
		found := s.ScanOnce()
		elapsed := s.now().Sub(start)
		if s.observe != nil {
			var overrun time.Duration
			if elapsed > c.current {
				overrun = elapsed - c.current
			}
			s.observe(elapsed, overrun)
		}
		if found > 0 {
			log.Debug().Int("opportunities", found).Dur("elapsed", elapsed).
				Msg("tri scan pass")
		}
		timer.Reset(c.observe(elapsed))
	}
}

// ScanOnce runs one pass over every venue and returns the number of
// opportunities emitted.
func (s *TriScanner) ScanOnce() int {
	found := 0
	for _, venue := range s.venues {
		for _, cy := range s.cycles(venue) {
			if opp, ok := s.simulate(venue, cy); ok {
				s.emit(opp)
				found++
			}
		}
	}
	return found
}

// cycles returns the venue's enumerated cycles, re-deriving them from the
// market list when the cache entry is stale.
func (s *TriScanner) cycles(venue string) []cycle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.cached[venue]; ok && s.now().Sub(at) < pathCacheTTL {
		return s.cache[venue]
	}

	cycles := enumerateCycles(s.markets(venue), s.cfg.TriBases, s.cfg.TriExcludeQuotes)
	s.cache[venue] = cycles
	s.cached[venue] = s.now()
	log.Debug().Str("venue", venue).Int("cycles", len(cycles)).Msg("triangular paths enumerated")
	return cycles
}

// enumerateCycles derives every base -> a2 -> a3 -> base path expressible
// with the venue's active markets. Each hop resolves against the direct
// from/to market first (a sell into its bids); the inverse to/from market
// is the buy fallback. Output is sorted lexicographically by the asset
// triple so detections are stable across runs.
func enumerateCycles(markets map[string]models.MarketMeta, bases, excludeQuotes []string) []cycle {
	excluded := make(map[string]bool, len(excludeQuotes))
	for _, q := range excludeQuotes {
		excluded[q] = true
	}

	byPair := make(map[string]models.MarketMeta)
	assetSet := make(map[string]bool)
	for _, m := range markets {
		if !m.Active || m.Base == "" || m.Quote == "" {
			continue
		}
		if excluded[m.Base] || excluded[m.Quote] {
			continue
		}
		key := m.Base + "/" + m.Quote
		if ex, ok := byPair[key]; !ok || m.Symbol < ex.Symbol {
			byPair[key] = m
		}
		assetSet[m.Base] = true
		assetSet[m.Quote] = true
	}

	resolve := func(from, to string) (hop, bool) {
		if m, ok := byPair[from+"/"+to]; ok {
			return hop{symbol: m.Symbol, side: models.SideSell}, true
		}
		if m, ok := byPair[to+"/"+from]; ok {
			return hop{symbol: m.Symbol, side: models.SideBuy}, true
		}
		return hop{}, false
	}

	assets := make([]string, 0, len(assetSet))
	for a := range assetSet {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	var out []cycle
	for _, base := range bases {
		for _, a2 := range assets {
			if a2 == base {
				continue
			}
			h1, ok := resolve(base, a2)
			if !ok {
				continue
			}
			for _, a3 := range assets {
				if a3 == base || a3 == a2 {
					continue
				}
				h2, ok := resolve(a2, a3)
				if !ok {
					continue
				}
				h3, ok := resolve(a3, base)
				if !ok {
					continue
				}
				out = append(out, cycle{
					base:   base,
					assets: [3]string{base, a2, a3},
					hops:   [3]hop{h1, h2, h3},
				})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].assets, out[j].assets
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	return out
}

// simulate walks one cycle with the configured notional, charging the
// taker rate on every hop.
func (s *TriScanner) simulate(venue string, cy cycle) (models.TriOpportunity, bool) {
	amount := s.cfg.MinNotional
	var legs [3]models.Leg

	for i, h := range cy.hops {
		b, ok := s.store.Fresh(venue, h.symbol)
		if !ok {
			return models.TriOpportunity{}, false
		}

		taker := s.fees.TakerFor(venue, h.symbol)
		var out float64
		var filled bool
		switch h.side {
		case models.SideSell:
			out, _, filled = depth.SpendBase(b.Bids, amount)
			legs[i] = models.Leg{Symbol: h.symbol, Price: b.BestBid(), Side: models.SideSell}
		default:
			out, _, filled = depth.SpendQuote(b.Asks, amount)
			legs[i] = models.Leg{Symbol: h.symbol, Price: b.BestAsk(), Side: models.SideBuy}
		}
		if !filled || out <= 0 {
			return models.TriOpportunity{}, false
		}
		amount = out * (1 - taker)
	}

	start := s.cfg.MinNotional
	gainBPS := (amount - start) / start * 10000
	if gainBPS < s.cfg.MinTriGainBPS {
		return models.TriOpportunity{}, false
	}

	return models.TriOpportunity{
		Venue:       venue,
		BaseAsset:   cy.base,
		Cycle:       cy.assets,
		StartAmount: start,
		EndAmount:   amount,
		GainBPS:     gainBPS,
		Notional:    start,
		Legs:        legs,
		Fees:        s.fees.For(venue).For(cy.hops[0].symbol),
		DetectedAt:  s.now(),
	}, true
}

// CycleSymbols lists the market symbols a venue's cycles touch, useful
// for ensuring ingestion covers the triangular universe.
func (s *TriScanner) CycleSymbols(venue string) []string {
	seen := make(map[string]struct{})
	for _, cy := range s.cycles(venue) {
		for _, h := range cy.hops {
			seen[h.symbol] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
