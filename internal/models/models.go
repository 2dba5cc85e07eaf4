package models

import (
	"fmt"
	"sort"
	"time"
)

// FeeSource records where a venue's fee schedule came from.
type FeeSource string

const (
	FeeSourcePublic  FeeSource = "public"
	FeeSourceDefault FeeSource = "default"
	FeeSourceEnv     FeeSource = "env"
)

// Mode tags how fresh the books behind a detection were. Books older than
// 5s are assumed to come from REST polling rather than a live stream.
type Mode string

const (
	ModeStream Mode = "stream"
	ModePoll   Mode = "poll"
)

// Side is the taker side of a simulated leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// MarketMeta describes a tradable market on one venue.
type MarketMeta struct {
	Symbol string
	Base   string
	Quote  string
	Active bool
	Venue  string
}

// DepthLevel is a single resting price level. Levels with non-positive
// price or amount are invalid and rejected during normalization.
type DepthLevel struct {
	Price  float64
	Amount float64
}

// OrderBook is one snapshot of the top-N depth for a (venue, symbol) pair.
// Bids are sorted descending, asks ascending. Snapshots are immutable once
// built; newer snapshots replace older ones wholesale.
type OrderBook struct {
	Venue     string
	Symbol    string
	Bids      []DepthLevel
	Asks      []DepthLevel
	Timestamp time.Time
	Nonce     int64
}

// ErrCrossedBook is returned by Normalize when best bid >= best ask.
type ErrCrossedBook struct {
	Venue  string
	Symbol string
	Bid    float64
	Ask    float64
}

func (e *ErrCrossedBook) Error() string {
	return fmt.Sprintf("crossed book %s %s: bid %.8f >= ask %.8f", e.Venue, e.Symbol, e.Bid, e.Ask)
}

// Normalize drops invalid levels, sorts both sides, and rejects crossed
// books. It returns the book it was called on for chaining.
func (b *OrderBook) Normalize() (*OrderBook, error) {
	b.Bids = validLevels(b.Bids)
	b.Asks = validLevels(b.Asks)

	sort.Slice(b.Bids, func(i, j int) bool { return b.Bids[i].Price > b.Bids[j].Price })
	sort.Slice(b.Asks, func(i, j int) bool { return b.Asks[i].Price < b.Asks[j].Price })

	if len(b.Bids) > 0 && len(b.Asks) > 0 && b.Bids[0].Price >= b.Asks[0].Price {
		return nil, &ErrCrossedBook{Venue: b.Venue, Symbol: b.Symbol, Bid: b.Bids[0].Price, Ask: b.Asks[0].Price}
	}
	return b, nil
}

func validLevels(levels []DepthLevel) []DepthLevel {
	out := levels[:0]
	for _, lv := range levels {
		if lv.Price > 0 && lv.Amount > 0 {
			out = append(out, lv)
		}
	}
	return out
}

// BestBid returns the top bid price, or 0 when the side is empty.
func (b *OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 when the side is empty.
func (b *OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// TwoSided reports whether both sides carry at least one level.
func (b *OrderBook) TwoSided() bool {
	return len(b.Bids) > 0 && len(b.Asks) > 0
}

// Age is the time elapsed since the snapshot was taken.
func (b *OrderBook) Age(now time.Time) time.Duration {
	return now.Sub(b.Timestamp)
}

// Fees is a venue fee schedule. Immutable once built; symbol-specific
// overrides take precedence over the venue-wide pair.
type Fees struct {
	Venue          string
	Maker          float64
	Taker          float64
	Source         FeeSource
	SymbolOverride map[string]FeePair
}

// FeePair is a (maker, taker) rate pair.
type FeePair struct {
	Maker float64
	Taker float64
}

// For returns the (maker, taker) pair for a symbol, preferring the
// symbol-specific override when present.
func (f Fees) For(symbol string) FeePair {
	if p, ok := f.SymbolOverride[symbol]; ok {
		return p
	}
	return FeePair{Maker: f.Maker, Taker: f.Taker}
}

// VWAPResult is the outcome of sweeping one book side for a target notional.
type VWAPResult struct {
	Price       float64
	Volume      float64
	LevelsUsed  int
	FullyFilled bool
}

// Opportunity is a detected cross-exchange arbitrage: buy on one venue,
// sell the same symbol on another for a positive after-fee spread.
type Opportunity struct {
	Symbol          string
	BuyVenue        string
	SellVenue       string
	BuyPriceBefore  float64
	SellPriceBefore float64
	BuyPriceAfter   float64
	SellPriceAfter  float64
	SpreadBPS       float64
	Notional        float64
	BuyLevels       int
	SellLevels      int
	BuyFees         FeePair
	SellFees        FeePair
	Mode            Mode
	DetectedAt      time.Time
}

// DedupeKey identifies equivalent detections for alert suppression.
func (o Opportunity) DedupeKey() string {
	return fmt.Sprintf("CROSS|%s|%s|%s|%d", o.BuyVenue, o.SellVenue, o.Symbol, int64(o.Notional))
}

// Leg is one simulated trade of a triangular cycle.
type Leg struct {
	Symbol string
	Price  float64
	Side   Side
}

// TriOpportunity is a detected triangular arbitrage: three legs on one
// venue returning to the base asset with a positive after-fee gain.
type TriOpportunity struct {
	Venue       string
	BaseAsset   string
	Cycle       [3]string
	StartAmount float64
	EndAmount   float64
	GainBPS     float64
	Notional    float64
	Legs        [3]Leg
	Fees        FeePair
	DetectedAt  time.Time
}

// DedupeKey identifies equivalent detections for alert suppression.
func (o TriOpportunity) DedupeKey() string {
	return fmt.Sprintf("TRI|%s|%s|%s|%s|%d", o.Venue, o.Cycle[0], o.Cycle[1], o.Cycle[2], int64(o.Notional))
}

// VenueHealth is a point-in-time snapshot of one venue's data-flow health.
type VenueHealth struct {
	Venue             string
	StreamConnected   bool
	RestOK            bool
	LastStreamMsg     time.Time
	LastRest          time.Time
	ReconnectCount    int
	ErrorRate         float64
	QueueDepth        int
	CoalescedCount    int64
	SchedulerLagMS    float64
	SubscribedSymbols []string
	Timestamp         time.Time
}

// Healthy reports whether either transport delivered data within the last
// minute.
func (h VenueHealth) Healthy(now time.Time) bool {
	streamRecent := !h.LastStreamMsg.IsZero() && now.Sub(h.LastStreamMsg) < time.Minute
	restRecent := !h.LastRest.IsZero() && now.Sub(h.LastRest) < time.Minute
	return (h.StreamConnected && streamRecent) || (h.RestOK && restRecent)
}
