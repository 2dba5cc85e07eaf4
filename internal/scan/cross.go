// Package scan runs the opportunity detectors against the shared book
// store: cross-exchange spread scanning and single-venue triangular
// scanning, each on its own adaptive cadence.
package scan

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/book"
	"github.com/arbwatch/arbwatch/internal/config"
	"github.com/arbwatch/arbwatch/internal/depth"
	"github.com/arbwatch/arbwatch/internal/fees"
	"github.com/arbwatch/arbwatch/internal/models"
)

// streamModeMaxAge tags an opportunity "stream" only when every book that
// produced it is at most this old.
const streamModeMaxAge = 5 * time.Second

// cadence adapts a scan loop's interval: stretch by 1.5x when a pass
// overruns its budget, relax back toward base when it does not.
type cadence struct {
	base    time.Duration
	current time.Duration
}

func newCadence(base time.Duration) *cadence {
	return &cadence{base: base, current: base}
}

func (c *cadence) observe(elapsed time.Duration) time.Duration {
	if elapsed > c.current {
		c.current = c.current * 3 / 2
	} else if c.current > c.base {
		c.current = c.current * 9 / 10
		if c.current < c.base {
			c.current = c.base
		}
	}
	return c.current
}

// CrossScanner detects cross-exchange spreads: buy the target notional on
// one venue's asks, sell it on another venue's bids, both sides priced by
// depth-walking VWAP with taker fees applied.
type CrossScanner struct {
	cfg     *config.Config
	store   *book.Store
	fees    *fees.Model
	emit    func(models.Opportunity)
	observe func(elapsed, overrun time.Duration)
	now     func() time.Time
}

// NewCrossScanner builds a cross-exchange scanner. emit receives every
// detection; observe, when non-nil, receives each pass's duration and
// cadence overrun.
func NewCrossScanner(cfg *config.Config, store *book.Store, feeModel *fees.Model, emit func(models.Opportunity), observe func(elapsed, overrun time.Duration)) *CrossScanner {
	return &CrossScanner{
		cfg:     cfg,
		store:   store,
		fees:    feeModel,
		emit:    emit,
		observe: observe,
		now:     time.Now,
	}
}

// Run scans until ctx is done, stretching the cadence when passes overrun.
func (s *CrossScanner) Run(ctx context.Context) {
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
				Msg("cross scan pass")
		}
		timer.Reset(c.observe(elapsed))
	}
}

// ScanOnce runs one full pass over the symbol universe and returns the
// number of opportunities emitted.
func (s *CrossScanner) ScanOnce() int {
	found := 0
	for _, symbol := range s.cfg.SymbolUniverse {
		books := s.store.BooksForSymbol(symbol)
		if len(books) < 2 {
			continue
		}
		found += s.scanSymbol(symbol, books)
	}
	return found
}

func (s *CrossScanner) scanSymbol(symbol string, books map[string]*models.OrderBook) int {
	found := 0
	for buyVenue, buyBook := range books {
		// cheap skip before the depth walk
		if !depth.SufficientDepth(buyBook.Asks, s.cfg.MinNotional, s.cfg.DepthLevels) {
			continue
		}
		buy := depth.BuyVWAP(buyBook.Asks, s.cfg.MinNotional)
		if !buy.FullyFilled {
			continue
		}
		buyTaker := s.fees.TakerFor(buyVenue, symbol)
		buyAfter := depth.AfterFees(buy, buyTaker, models.SideBuy)

		for sellVenue, sellBook := range books {
			if sellVenue == buyVenue {
				continue
			}
			sell := depth.SellVWAP(sellBook.Bids, s.cfg.MinNotional)
			if !sell.FullyFilled {
				continue
			}
			sellTaker := s.fees.TakerFor(sellVenue, symbol)
			sellAfter := depth.AfterFees(sell, sellTaker, models.SideSell)

			if sellAfter <= buyAfter {
				continue
			}
			mid := (buyAfter + sellAfter) / 2
			spreadBPS := (sellAfter - buyAfter) / mid * 10000
			if spreadBPS < s.cfg.MinSpreadBPS {
				continue
			}

			opp := models.Opportunity{
				Symbol:          symbol,
				BuyVenue:        buyVenue,
				SellVenue:       sellVenue,
				BuyPriceBefore:  buy.Price,
				SellPriceBefore: sell.Price,
				BuyPriceAfter:   buyAfter,
				SellPriceAfter:  sellAfter,
				SpreadBPS:       spreadBPS,
				Notional:        s.cfg.MinNotional,
				BuyLevels:       buy.LevelsUsed,
				SellLevels:      sell.LevelsUsed,
				BuyFees:         s.fees.For(buyVenue).For(symbol),
				SellFees:        s.fees.For(sellVenue).For(symbol),
				Mode:            s.mode(buyBook, sellBook),
				DetectedAt:      s.now(),
			}
			s.emit(opp)
			found++
			log.Debug().Str("symbol", symbol).
				Str("buy", buyVenue).Str("sell", sellVenue).
				Float64("buy_slippage_bps", depth.Slippage(buyBook.Asks, s.cfg.MinNotional)).
				Float64("sell_slippage_bps", depth.Slippage(sellBook.Bids, s.cfg.MinNotional)).
				Msg("detection depth cost")
		}
	}
	return found
}

// mode tags the detection by how the underlying data arrived: "stream"
// only when both books are recent enough to have come off a live feed.
func (s *CrossScanner) mode(books ...*models.OrderBook) models.Mode {
	now := s.now()
	for _, b := range books {
		if now.Sub(b.Timestamp) > streamModeMaxAge {
			return models.ModePoll
		}
	}
	return models.ModeStream
}
