// Package fees resolves per-venue trading fee schedules with provenance
// tracking. Detection uses taker rates only: an opportunity must be
// executable immediately.
package fees

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/models"
)

// Conservative defaults applied when a venue is unknown. Deliberately
// higher than most venues charge.
const (
	DefaultMaker = 0.0008
	DefaultTaker = 0.0015
)

// knownFees carries commonly published spot schedules per venue.
var knownFees = map[string]models.FeePair{
	"binance":  {Maker: 0.0002, Taker: 0.0005},
	"okx":      {Maker: 0.0008, Taker: 0.0010},
	"bybit":    {Maker: 0.0001, Taker: 0.0006},
	"coinbase": {Maker: 0.0040, Taker: 0.0060},
	"kraken":   {Maker: 0.0016, Taker: 0.0026},
	"kucoin":   {Maker: 0.0008, Taker: 0.0010},
	"gateio":   {Maker: 0.0015, Taker: 0.0020},
	"huobi":    {Maker: 0.0015, Taker: 0.0020},
	"bitfinex": {Maker: 0.0010, Taker: 0.0020},
	"mexc":     {Maker: 0.0000, Taker: 0.0020},
}

// Override is a partial fee override sourced from environment variables.
type Override struct {
	Maker *float64
	Taker *float64
}

// Model caches one immutable Fees value per venue. Entries are written
// once and replaced wholesale thereafter (copy-on-write under the mutex).
type Model struct {
	mu        sync.RWMutex
	cache     map[string]models.Fees
	overrides map[string]Override
}

// NewModel builds a fee model with the given env overrides, keyed by
// lowercase venue name.
func NewModel(overrides map[string]Override) *Model {
	if overrides == nil {
		overrides = map[string]Override{}
	}
	return &Model{
		cache:     make(map[string]models.Fees),
		overrides: overrides,
	}
}

// Seed installs a venue's published schedule (provenance "public").
// Symbol-specific pairs may be attached. Seeding after the first lookup
// for the venue is ignored: fees are immutable once fetched.
func (m *Model) Seed(venue string, maker, taker float64, symbolOverride map[string]models.FeePair) error {
	if !validRate(maker) || !validRate(taker) {
		return fmt.Errorf("fees for %s out of range [0,1): maker=%f taker=%f", venue, maker, taker)
	}
	venue = strings.ToLower(venue)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cache[venue]; ok {
		return nil
	}
	f := models.Fees{
		Venue:          venue,
		Maker:          maker,
		Taker:          taker,
		Source:         models.FeeSourcePublic,
		SymbolOverride: symbolOverride,
	}
	m.cache[venue] = m.applyOverride(f)
	return nil
}

// For returns the fee schedule for a venue, falling back to the built-in
// table and then to conservative defaults.
func (m *Model) For(venue string) models.Fees {
	venue = strings.ToLower(venue)

	m.mu.RLock()
	f, ok := m.cache[venue]
	m.mu.RUnlock()
	if ok {
		return f
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.cache[venue]; ok {
		return f
	}
	f = fallback(venue)
	f = m.applyOverride(f)
	m.cache[venue] = f
	return f
}

// TakerFor is the taker rate for a (venue, symbol) pair.
func (m *Model) TakerFor(venue, symbol string) float64 {
	return m.For(venue).For(symbol).Taker
}

func (m *Model) applyOverride(f models.Fees) models.Fees {
	ov, ok := m.overrides[f.Venue]
	if !ok {
		return f
	}
	if ov.Maker != nil {
		f.Maker = *ov.Maker
		f.Source = models.FeeSourceEnv
	}
	if ov.Taker != nil {
		f.Taker = *ov.Taker
		f.Source = models.FeeSourceEnv
	}
	if f.Source == models.FeeSourceEnv {
		log.Debug().Str("venue", f.Venue).Float64("maker", f.Maker).Float64("taker", f.Taker).
			Msg("fee override from environment")
	}
	return f
}

func fallback(venue string) models.Fees {
	if p, ok := knownFees[venue]; ok {
		return models.Fees{Venue: venue, Maker: p.Maker, Taker: p.Taker, Source: models.FeeSourceDefault}
	}
	return models.Fees{Venue: venue, Maker: DefaultMaker, Taker: DefaultTaker, Source: models.FeeSourceDefault}
}

// Summary renders a short maker/taker percentage string for logs.
func Summary(f models.Fees) string {
	return fmt.Sprintf("%.3f%%/%.3f%% (%s)", f.Maker*100, f.Taker*100, f.Source)
}

func validRate(r float64) bool {
	return r >= 0 && r < 1
}
