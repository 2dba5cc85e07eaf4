package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbwatch/arbwatch/internal/book"
	"github.com/arbwatch/arbwatch/internal/config"
	"github.com/arbwatch/arbwatch/internal/fees"
	"github.com/arbwatch/arbwatch/internal/models"
)

func triMarkets() map[string]models.MarketMeta {
	return map[string]models.MarketMeta{
		"BTC/USDT": {Symbol: "BTC/USDT", Base: "BTC", Quote: "USDT", Active: true},
		"ETH/BTC":  {Symbol: "ETH/BTC", Base: "ETH", Quote: "BTC", Active: true},
		"ETH/USDT": {Symbol: "ETH/USDT", Base: "ETH", Quote: "USDT", Active: true},
	}
}

func triFixture(t *testing.T, minGainBPS float64) (*TriScanner, *[]models.TriOpportunity) {
	t.Helper()
	cfg := &config.Config{
		MinTriGainBPS: minGainBPS,
		MinNotional:   100,
		TriBases:      []string{"USDT"},
	}
	model := fees.NewModel(nil)
	require.NoError(t, model.Seed("testex", 0.0005, 0.0010, nil))

	store := book.NewStore()
	var got []models.TriOpportunity
	s := NewTriScanner(cfg, store, model, []string{"testex"},
		func(string) map[string]models.MarketMeta { return triMarkets() },
		func(o models.TriOpportunity) { got = append(got, o) }, nil)
	return s, &got
}

func putTriBooks(s *TriScanner, ethUSDTBid float64) {
	now := time.Now()
	put := func(symbol string, bid, ask float64) {
		s.store.Put(&models.OrderBook{
			Venue:     "testex",
			Symbol:    symbol,
			Bids:      []models.DepthLevel{{Price: bid, Amount: 1000}},
			Asks:      []models.DepthLevel{{Price: ask, Amount: 1000}},
			Timestamp: now,
		})
	}
	put("BTC/USDT", 49990, 50000)
	put("ETH/BTC", 0.0499, 0.05)
	put("ETH/USDT", ethUSDTBid, ethUSDTBid+5)
}

func TestEnumerateCyclesSortedAndComplete(t *testing.T) {
	cycles := enumerateCycles(triMarkets(), []string{"USDT"}, nil)
	require.Len(t, cycles, 2)

	// lexicographic order on the asset triple
	assert.Equal(t, [3]string{"USDT", "BTC", "ETH"}, cycles[0].assets)
	assert.Equal(t, [3]string{"USDT", "ETH", "BTC"}, cycles[1].assets)

	// USDT -> BTC buys BTC off the asks of BTC/USDT
	assert.Equal(t, "BTC/USDT", cycles[0].hops[0].symbol)
	assert.Equal(t, models.SideBuy, cycles[0].hops[0].side)
	// ETH -> USDT sells ETH into the bids of ETH/USDT
	assert.Equal(t, "ETH/USDT", cycles[0].hops[2].symbol)
	assert.Equal(t, models.SideSell, cycles[0].hops[2].side)
}

func TestEnumerateCyclesPrefersDirectMarket(t *testing.T) {
	markets := triMarkets()
	markets["BTC/ETH"] = models.MarketMeta{Symbol: "BTC/ETH", Base: "BTC", Quote: "ETH", Active: true}

	cycles := enumerateCycles(markets, []string{"USDT"}, nil)
	require.Len(t, cycles, 2)

	// with both BTC/ETH and ETH/BTC listed, each hop sells the direct
	// market rather than buying the inverse
	assert.Equal(t, "BTC/ETH", cycles[0].hops[1].symbol)
	assert.Equal(t, models.SideSell, cycles[0].hops[1].side)
	assert.Equal(t, "ETH/BTC", cycles[1].hops[1].symbol)
	assert.Equal(t, models.SideSell, cycles[1].hops[1].side)
}

func TestEnumerateCyclesExcludesQuotes(t *testing.T) {
	cycles := enumerateCycles(triMarkets(), []string{"USDT"}, []string{"BTC"})
	assert.Empty(t, cycles)
}

func TestEnumerateCyclesSkipsInactiveMarkets(t *testing.T) {
	markets := triMarkets()
	m := markets["ETH/BTC"]
	m.Active = false
	markets["ETH/BTC"] = m

	cycles := enumerateCycles(markets, []string{"USDT"}, nil)
	assert.Empty(t, cycles)
}

func TestTriScanDetectsProfitableCycle(t *testing.T) {
	s, got := triFixture(t, 30)

	// USDT -> BTC -> ETH -> USDT nets roughly 70 bps after three 10 bps
	// taker legs at these prices.
	putTriBooks(s, 2525)

	found := s.ScanOnce()
	require.Equal(t, 1, found)
	require.Len(t, *got, 1)

	o := (*got)[0]
	assert.Equal(t, "testex", o.Venue)
	assert.Equal(t, [3]string{"USDT", "BTC", "ETH"}, o.Cycle)
	assert.Equal(t, 100.0, o.StartAmount)
	assert.Greater(t, o.EndAmount, 100.0)
	assert.InDelta(t, 69.7, o.GainBPS, 1.0)
	assert.Equal(t, models.SideBuy, o.Legs[0].Side)
	assert.Equal(t, models.SideSell, o.Legs[2].Side)
}

func TestTriScanSellHopPricesAtBestBid(t *testing.T) {
	s, got := triFixture(t, 30)
	putTriBooks(s, 2525)

	// the final leg's proceeds price at the best bid even when the top
	// level is thin: 0.03992004 ETH converts at 2600 with the remainder
	// swept from the 2400 level
	s.store.Put(&models.OrderBook{
		Venue:  "testex",
		Symbol: "ETH/USDT",
		Bids: []models.DepthLevel{
			{Price: 2600, Amount: 0.0001},
			{Price: 2400, Amount: 10},
		},
		Asks:      []models.DepthLevel{{Price: 2605, Amount: 10}},
		Timestamp: time.Now(),
	})

	require.Equal(t, 1, s.ScanOnce())
	require.Len(t, *got, 1)

	o := (*got)[0]
	assert.InDelta(t, 103.69, o.EndAmount, 0.05)
	assert.InDelta(t, 368.8, o.GainBPS, 5.0)
}

func TestTriScanRespectsThreshold(t *testing.T) {
	s, got := triFixture(t, 100)
	putTriBooks(s, 2525)

	assert.Equal(t, 0, s.ScanOnce())
	assert.Empty(t, *got)
}

func TestTriScanNoGainNoAlert(t *testing.T) {
	s, got := triFixture(t, 30)
	// flat pricing: the cycle loses the fee drag
	putTriBooks(s, 2500)

	assert.Equal(t, 0, s.ScanOnce())
	assert.Empty(t, *got)
}

func TestTriScanRequiresFreshBooks(t *testing.T) {
	s, got := triFixture(t, 30)
	putTriBooks(s, 2525)

	// age out one leg
	stale := &models.OrderBook{
		Venue:     "testex",
		Symbol:    "ETH/BTC",
		Bids:      []models.DepthLevel{{Price: 0.0499, Amount: 1000}},
		Asks:      []models.DepthLevel{{Price: 0.05, Amount: 1000}},
		Timestamp: time.Now().Add(-2 * time.Minute),
	}
	s.store.Put(stale)

	assert.Equal(t, 0, s.ScanOnce())
	assert.Empty(t, *got)
}

func TestCycleCacheReused(t *testing.T) {
	calls := 0
	cfg := &config.Config{MinTriGainBPS: 30, MinNotional: 100, TriBases: []string{"USDT"}}
	s := NewTriScanner(cfg, book.NewStore(), fees.NewModel(nil), []string{"testex"},
		func(string) map[string]models.MarketMeta {
			calls++
			return triMarkets()
		},
		func(models.TriOpportunity) {}, nil)

	s.cycles("testex")
	s.cycles("testex")
	assert.Equal(t, 1, calls)

	s.cached["testex"] = time.Now().Add(-2 * pathCacheTTL)
	s.cycles("testex")
	assert.Equal(t, 2, calls)
}
